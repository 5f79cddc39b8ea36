package gasbank

import (
	"context"
	"errors"
	"testing"

	domain "github.com/R3E-Network/pledge_layer/internal/app/domain/gas"
	"github.com/R3E-Network/pledge_layer/internal/app/storage/memory"
)

func TestService_DepositAndBalance(t *testing.T) {
	svc := New(memory.New(), nil)

	bal, err := svc.Deposit(context.Background(), "alice", 100, "tx1")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if bal.Amount != 100 {
		t.Fatalf("unexpected balance: %d", bal.Amount)
	}

	bal, err = svc.Deposit(context.Background(), "alice", 50, "tx2")
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if bal.Amount != 150 {
		t.Fatalf("deposits should accumulate: %d", bal.Amount)
	}

	amount, err := svc.Balance(context.Background(), "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if amount != 150 {
		t.Fatalf("unexpected balance: %d", amount)
	}

	if amount, err := svc.Balance(context.Background(), "unknown"); err != nil || amount != 0 {
		t.Fatalf("unknown identity should hold zero, got %d, %v", amount, err)
	}
}

func TestService_DepositValidation(t *testing.T) {
	svc := New(memory.New(), nil)

	if _, err := svc.Deposit(context.Background(), "  ", 10, ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
	if _, err := svc.Deposit(context.Background(), "alice", 0, ""); err == nil {
		t.Fatalf("expected error for non-positive amount")
	}
}

func TestService_Forward(t *testing.T) {
	svc := New(memory.New(), nil)

	if _, err := svc.Deposit(context.Background(), "alice", 100, ""); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := svc.Forward(context.Background(), "alice", "owner", 60); err != nil {
		t.Fatalf("forward: %v", err)
	}

	src, _ := svc.Balance(context.Background(), "alice")
	dst, _ := svc.Balance(context.Background(), "owner")
	if src != 40 || dst != 60 {
		t.Fatalf("unexpected balances after forward: src=%d dst=%d", src, dst)
	}

	transfers, err := svc.Transfers(context.Background(), "owner")
	if err != nil {
		t.Fatalf("transfers: %v", err)
	}
	if len(transfers) != 1 || transfers[0].Kind != domain.KindForward {
		t.Fatalf("forward not recorded: %+v", transfers)
	}
}

func TestService_ForwardInsufficient(t *testing.T) {
	svc := New(memory.New(), nil)

	if _, err := svc.Deposit(context.Background(), "alice", 10, ""); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	err := svc.Forward(context.Background(), "alice", "owner", 11)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	// A failed forward leaves both balances untouched.
	src, _ := svc.Balance(context.Background(), "alice")
	dst, _ := svc.Balance(context.Background(), "owner")
	if src != 10 || dst != 0 {
		t.Fatalf("failed forward mutated balances: src=%d dst=%d", src, dst)
	}
}

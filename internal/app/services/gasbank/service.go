// Package gasbank tracks per-identity balances and implements the value
// rail over which surrender payments are forwarded to the contract owner.
package gasbank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	domain "github.com/R3E-Network/pledge_layer/internal/app/domain/gas"
	"github.com/R3E-Network/pledge_layer/internal/app/storage"
	"github.com/R3E-Network/pledge_layer/pkg/logger"
)

// ErrInsufficientFunds rejects a forward whose payer balance cannot cover
// the amount.
var ErrInsufficientFunds = errors.New("insufficient gas balance")

// Service mediates all balance mutations. Forwards are serialized so a
// debit and its matching credit are never observed apart.
type Service struct {
	mu    sync.Mutex
	store storage.GasStore
	log   *logger.Logger
}

// New creates a configured gas bank service.
func New(store storage.GasStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("gasbank")
	}
	return &Service{store: store, log: log}
}

// Deposit credits an identity's balance.
func (s *Service) Deposit(ctx context.Context, address string, amount int64, reference string) (domain.Balance, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.Balance{}, fmt.Errorf("address is required")
	}
	if amount <= 0 {
		return domain.Balance{}, fmt.Errorf("deposit amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bal, err := s.balanceLocked(ctx, address)
	if err != nil {
		return domain.Balance{}, err
	}
	bal.Amount += amount

	bal, err = s.store.SaveGasBalance(ctx, bal)
	if err != nil {
		return domain.Balance{}, err
	}
	if _, err := s.store.CreateGasTransfer(ctx, domain.Transfer{
		To:        address,
		Amount:    amount,
		Kind:      domain.KindDeposit,
		Reference: reference,
	}); err != nil {
		s.log.WithError(err).Warn("record deposit failed")
	}

	s.log.WithField("address", address).
		WithField("amount", amount).
		Info("gas deposited")
	return bal, nil
}

// Forward moves amount from one identity to another in a single serialized
// step. It fails without touching either balance when the payer cannot
// cover the amount.
func (s *Service) Forward(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("forward amount must be positive")
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("forward destination is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.balanceLocked(ctx, from)
	if err != nil {
		return err
	}
	if src.Amount < amount {
		return fmt.Errorf("%s holds %d, needs %d: %w", from, src.Amount, amount, ErrInsufficientFunds)
	}
	dst, err := s.balanceLocked(ctx, to)
	if err != nil {
		return err
	}

	src.Amount -= amount
	dst.Amount += amount

	if _, err := s.store.SaveGasBalance(ctx, src); err != nil {
		return err
	}
	if _, err := s.store.SaveGasBalance(ctx, dst); err != nil {
		return err
	}
	if _, err := s.store.CreateGasTransfer(ctx, domain.Transfer{
		From:   from,
		To:     to,
		Amount: amount,
		Kind:   domain.KindForward,
	}); err != nil {
		s.log.WithError(err).Warn("record forward failed")
	}

	s.log.WithField("from", from).
		WithField("to", to).
		WithField("amount", amount).
		Info("gas forwarded")
	return nil
}

// Balance returns the recorded holding for an identity. Unknown identities
// hold zero.
func (s *Service) Balance(ctx context.Context, address string) (int64, error) {
	bal, err := s.store.GetGasBalance(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return bal.Amount, nil
}

// Transfers lists the ledger entries touching an identity.
func (s *Service) Transfers(ctx context.Context, address string) ([]domain.Transfer, error) {
	return s.store.ListGasTransfers(ctx, address)
}

func (s *Service) balanceLocked(ctx context.Context, address string) (domain.Balance, error) {
	bal, err := s.store.GetGasBalance(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Balance{Address: address}, nil
	}
	return bal, err
}

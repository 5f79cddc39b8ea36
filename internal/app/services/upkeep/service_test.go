package upkeep

import (
	"context"
	"errors"
	"testing"

	domainpledge "github.com/R3E-Network/pledge_layer/internal/app/domain/pledge"
	domain "github.com/R3E-Network/pledge_layer/internal/app/domain/randomness"
	"github.com/R3E-Network/pledge_layer/internal/app/services/access"
	"github.com/R3E-Network/pledge_layer/internal/app/services/gasbank"
	"github.com/R3E-Network/pledge_layer/internal/app/services/pledge"
	"github.com/R3E-Network/pledge_layer/internal/app/storage/memory"
)

func newUpkeepFixture(t *testing.T) (*Service, *pledge.Service, *SeededSource) {
	t.Helper()
	acc, err := access.New("owner", nil, nil)
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	store := memory.New()
	registry := pledge.New(acc, store, gasbank.New(store, nil), nil, nil)
	source := NewSeededSource(1)
	return New(registry, source, store, nil, domain.Params{}, nil), registry, source
}

func TestService_CheckReady(t *testing.T) {
	svc, registry, _ := newUpkeepFixture(t)

	ready, err := svc.CheckReady(context.Background(), "alice")
	if err != nil || ready {
		t.Fatalf("empty collection should not be ready: %v %v", ready, err)
	}

	// Readiness is a pure predicate: no request was issued, no state moved.
	reqs, _ := svc.store.ListRandomnessRequests(context.Background())
	if len(reqs) != 0 {
		t.Fatalf("check must not issue requests: %d", len(reqs))
	}

	if _, err := registry.Generate(context.Background(), "alice", "health", "red"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	ready, err = svc.CheckReady(context.Background(), "alice")
	if err != nil || !ready {
		t.Fatalf("holder should be ready: %v %v", ready, err)
	}

	// Anyone may probe any identity; unknown ones simply read not ready.
	if ready, err := svc.CheckReady(context.Background(), "nobody"); err != nil || ready {
		t.Fatalf("unknown identity should read not ready: %v %v", ready, err)
	}
}

func TestService_PerformUpkeep(t *testing.T) {
	svc, registry, _ := newUpkeepFixture(t)

	if _, err := registry.Generate(context.Background(), "alice", "health", "red"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	req, err := svc.PerformUpkeep(context.Background(), "alice")
	if err != nil {
		t.Fatalf("perform upkeep: %v", err)
	}
	if req.ID == "" {
		t.Fatalf("request should carry the oracle identifier")
	}
	if req.Account != "alice" {
		t.Fatalf("unexpected account: %s", req.Account)
	}
	if req.Status != domain.StatusPending {
		t.Fatalf("fresh request should be pending: %s", req.Status)
	}
	if req.Params.Confirmations != domain.Confirmations || req.Params.WordCount != domain.WordCount {
		t.Fatalf("fixed parameters not applied: %+v", req.Params)
	}
	if req.Params.Lane != domain.DefaultLane || req.Params.SubscriptionID != domain.DefaultSubscriptionID {
		t.Fatalf("default passthrough parameters not applied: %+v", req.Params)
	}

	// Eggs are untouched: readiness is a coarse gate, not a consumption.
	eggs, _ := registry.Eggs(context.Background(), "alice")
	if len(eggs) != 1 {
		t.Fatalf("upkeep must not consume eggs: %d", len(eggs))
	}

	// Each performance issues exactly one new request.
	second, err := svc.PerformUpkeep(context.Background(), "alice")
	if err != nil {
		t.Fatalf("second upkeep: %v", err)
	}
	if second.ID == req.ID {
		t.Fatalf("request identifiers should be distinct")
	}
	reqs, _ := svc.store.ListRandomnessRequests(context.Background())
	if len(reqs) != 2 {
		t.Fatalf("expected two ledger entries, got %d", len(reqs))
	}
}

func TestService_PerformUpkeepNotReady(t *testing.T) {
	svc, _, source := newUpkeepFixture(t)

	_, err := svc.PerformUpkeep(context.Background(), "alice")
	if !errors.Is(err, domainpledge.ErrCapacity) {
		t.Fatalf("upkeep without eggs should fail, got %v", err)
	}
	if len(source.Pending()) != 0 {
		t.Fatalf("failed upkeep must not reach the oracle")
	}
}

func TestSeededSource_Deterministic(t *testing.T) {
	a := NewSeededSource(7)
	b := NewSeededSource(7)

	idA, err := a.RequestRandomWords(context.Background(), domain.DefaultParams())
	if err != nil {
		t.Fatalf("request a: %v", err)
	}
	idB, err := b.RequestRandomWords(context.Background(), domain.DefaultParams())
	if err != nil {
		t.Fatalf("request b: %v", err)
	}
	if idA != idB {
		t.Fatalf("identifiers should replay: %s vs %s", idA, idB)
	}

	var wordsA, wordsB []uint64
	if err := a.Deliver(context.Background(), idA, func(_ context.Context, _ string, w []uint64) error {
		wordsA = w
		return nil
	}); err != nil {
		t.Fatalf("deliver a: %v", err)
	}
	if err := b.Deliver(context.Background(), idB, func(_ context.Context, _ string, w []uint64) error {
		wordsB = w
		return nil
	}); err != nil {
		t.Fatalf("deliver b: %v", err)
	}
	if len(wordsA) != domain.WordCount || wordsA[0] != wordsB[0] {
		t.Fatalf("word streams should replay: %v vs %v", wordsA, wordsB)
	}

	// A request delivers at most once.
	if err := a.Deliver(context.Background(), idA, func(context.Context, string, []uint64) error { return nil }); err == nil {
		t.Fatalf("second delivery should fail")
	}
}

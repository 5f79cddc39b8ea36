package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/R3E-Network/pledge_layer/internal/app/domain/gas"
	"github.com/R3E-Network/pledge_layer/internal/app/domain/pledge"
	"github.com/R3E-Network/pledge_layer/internal/app/domain/randomness"
	"github.com/R3E-Network/pledge_layer/internal/app/storage"
)

func TestStore_PledgeAccounts(t *testing.T) {
	store := New()

	if _, err := store.GetPledgeAccount(context.Background(), "alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	saved, err := store.SavePledgeUpdate(context.Background(), pledge.Account{Address: "alice", HasGenerated: true}, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", saved)
	}

	saved.TransferCount = 1
	updated, err := store.SavePledgeUpdate(context.Background(), saved, nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.CreatedAt.Equal(saved.CreatedAt) {
		t.Fatalf("creation time should be preserved on update")
	}

	if _, err := store.SavePledgeUpdate(context.Background(), pledge.Account{Address: "bob"}, nil); err != nil {
		t.Fatalf("save bob: %v", err)
	}
	accts, err := store.ListPledgeAccounts(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accts) != 2 || accts[0].Address != "alice" || accts[1].Address != "bob" {
		t.Fatalf("unexpected listing: %+v", accts)
	}
}

func TestStore_Eggs(t *testing.T) {
	store := New()

	eggs, err := store.GetEggs(context.Background(), "alice")
	if err != nil || len(eggs) != 0 {
		t.Fatalf("unknown address should read empty: %v %v", eggs, err)
	}

	in := []pledge.Egg{{ID: "e1", Owner: "alice", Wish: "health", Colour: "red", SentAt: time.Now().UTC()}}
	if err := store.SaveEggs(context.Background(), "alice", in); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := store.GetEggs(context.Background(), "alice")
	if err != nil || len(out) != 1 || out[0].ID != "e1" {
		t.Fatalf("unexpected read: %v %v", out, err)
	}

	// Reads return copies; mutating the result must not leak back.
	out[0].Wish = "mutated"
	again, _ := store.GetEggs(context.Background(), "alice")
	if again[0].Wish != "health" {
		t.Fatalf("stored egg was mutated through a read")
	}

	if err := store.SaveEggs(context.Background(), "alice", nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if eggs, _ := store.GetEggs(context.Background(), "alice"); len(eggs) != 0 {
		t.Fatalf("collection should be empty after clearing")
	}
}

func TestStore_SavePledgeUpdateCollections(t *testing.T) {
	store := New()

	egg := pledge.Egg{ID: "e1", Owner: "alice", Wish: "health", Colour: "red", SentAt: time.Now().UTC()}
	if err := store.SaveEggs(context.Background(), "alice", []pledge.Egg{egg}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	moved := egg
	moved.Owner = "bob"
	acct := pledge.Account{Address: "alice", HasGenerated: true, TransferCount: 1}
	if _, err := store.SavePledgeUpdate(context.Background(), acct, map[string][]pledge.Egg{
		"alice": nil,
		"bob":   {moved},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if eggs, _ := store.GetEggs(context.Background(), "alice"); len(eggs) != 0 {
		t.Fatalf("source collection should be empty: %+v", eggs)
	}
	if eggs, _ := store.GetEggs(context.Background(), "bob"); len(eggs) != 1 || eggs[0].Owner != "bob" {
		t.Fatalf("destination collection missing the record: %+v", eggs)
	}
	got, err := store.GetPledgeAccount(context.Background(), "alice")
	if err != nil || got.TransferCount != 1 {
		t.Fatalf("counters not persisted: %+v %v", got, err)
	}
}

func TestStore_RandomnessRequests(t *testing.T) {
	store := New()

	req, err := store.CreateRandomnessRequest(context.Background(), randomness.Request{
		ID:      "req-1",
		Account: "alice",
		Params:  randomness.DefaultParams(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.Status != randomness.StatusPending || req.RequestedAt.IsZero() {
		t.Fatalf("defaults not applied: %+v", req)
	}

	if _, err := store.CreateRandomnessRequest(context.Background(), randomness.Request{ID: "req-1"}); err == nil {
		t.Fatalf("duplicate identifier should be rejected")
	}

	req.Status = randomness.StatusFulfilled
	req.Words = []uint64{42}
	req.Index = 2
	if _, err := store.UpdateRandomnessRequest(context.Background(), req); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetRandomnessRequest(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != randomness.StatusFulfilled || got.Index != 2 {
		t.Fatalf("update not visible: %+v", got)
	}
	if !got.RequestedAt.Equal(req.RequestedAt) {
		t.Fatalf("request time should be immutable")
	}

	if _, err := store.UpdateRandomnessRequest(context.Background(), randomness.Request{ID: "missing"}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// List preserves creation order.
	if _, err := store.CreateRandomnessRequest(context.Background(), randomness.Request{ID: "req-2"}); err != nil {
		t.Fatalf("create second: %v", err)
	}
	reqs, _ := store.ListRandomnessRequests(context.Background())
	if len(reqs) != 2 || reqs[0].ID != "req-1" || reqs[1].ID != "req-2" {
		t.Fatalf("unexpected order: %+v", reqs)
	}
}

func TestStore_Gas(t *testing.T) {
	store := New()

	if _, err := store.GetGasBalance(context.Background(), "alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	bal, err := store.SaveGasBalance(context.Background(), gas.Balance{Address: "alice", Amount: 100})
	if err != nil {
		t.Fatalf("save balance: %v", err)
	}
	if bal.UpdatedAt.IsZero() {
		t.Fatalf("update time not set")
	}

	tr, err := store.CreateGasTransfer(context.Background(), gas.Transfer{From: "alice", To: "owner", Amount: 60, Kind: gas.KindForward})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}
	if tr.ID == "" || tr.CreatedAt.IsZero() {
		t.Fatalf("transfer defaults not applied: %+v", tr)
	}

	// Both endpoints see the entry.
	for _, addr := range []string{"alice", "owner"} {
		list, err := store.ListGasTransfers(context.Background(), addr)
		if err != nil || len(list) != 1 {
			t.Fatalf("transfer not visible for %s: %v %v", addr, list, err)
		}
	}
}

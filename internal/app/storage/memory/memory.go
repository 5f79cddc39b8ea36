// Package memory provides the in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is the default backend for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/pledge_layer/internal/app/domain/gas"
	"github.com/R3E-Network/pledge_layer/internal/app/domain/pledge"
	"github.com/R3E-Network/pledge_layer/internal/app/domain/randomness"
	"github.com/R3E-Network/pledge_layer/internal/app/storage"
)

// Store keeps every record in maps guarded by a single RWMutex.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	accounts     map[string]pledge.Account
	eggs         map[string][]pledge.Egg
	requests     map[string]randomness.Request
	requestOrder []string
	balances     map[string]gas.Balance
	transfers    map[string][]gas.Transfer
}

var _ storage.PledgeStore = (*Store)(nil)
var _ storage.RandomnessStore = (*Store)(nil)
var _ storage.GasStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:    1,
		accounts:  make(map[string]pledge.Account),
		eggs:      make(map[string][]pledge.Egg),
		requests:  make(map[string]randomness.Request),
		balances:  make(map[string]gas.Balance),
		transfers: make(map[string][]gas.Transfer),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// PledgeStore implementation -------------------------------------------------

func (s *Store) GetPledgeAccount(_ context.Context, address string) (pledge.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[address]
	if !ok {
		return pledge.Account{}, fmt.Errorf("pledge account %s: %w", address, storage.ErrNotFound)
	}
	return acct, nil
}

func (s *Store) SavePledgeUpdate(_ context.Context, acct pledge.Account, collections map[string][]pledge.Egg) (pledge.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.accounts[acct.Address]; ok {
		acct.CreatedAt = existing.CreatedAt
	} else {
		acct.CreatedAt = now
	}
	acct.UpdatedAt = now
	s.accounts[acct.Address] = acct

	// One lock scope covers the account and every collection, so readers
	// never observe the update half applied.
	for address, eggs := range collections {
		if len(eggs) == 0 {
			delete(s.eggs, address)
		} else {
			s.eggs[address] = cloneEggs(eggs)
		}
	}
	return acct, nil
}

func (s *Store) ListPledgeAccounts(_ context.Context) ([]pledge.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]pledge.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (s *Store) GetEggs(_ context.Context, address string) ([]pledge.Egg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneEggs(s.eggs[address]), nil
}

func (s *Store) SaveEggs(_ context.Context, address string, eggs []pledge.Egg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(eggs) == 0 {
		delete(s.eggs, address)
		return nil
	}
	s.eggs[address] = cloneEggs(eggs)
	return nil
}

// RandomnessStore implementation ---------------------------------------------

func (s *Store) CreateRandomnessRequest(_ context.Context, req randomness.Request) (randomness.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = s.nextIDLocked()
	} else if _, exists := s.requests[req.ID]; exists {
		return randomness.Request{}, fmt.Errorf("randomness request %s already exists", req.ID)
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = randomness.StatusPending
	}

	s.requests[req.ID] = cloneRequest(req)
	s.requestOrder = append(s.requestOrder, req.ID)
	return req, nil
}

func (s *Store) UpdateRandomnessRequest(_ context.Context, req randomness.Request) (randomness.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.requests[req.ID]
	if !ok {
		return randomness.Request{}, fmt.Errorf("randomness request %s: %w", req.ID, storage.ErrNotFound)
	}
	req.RequestedAt = original.RequestedAt

	s.requests[req.ID] = cloneRequest(req)
	return req, nil
}

func (s *Store) GetRandomnessRequest(_ context.Context, id string) (randomness.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return randomness.Request{}, fmt.Errorf("randomness request %s: %w", id, storage.ErrNotFound)
	}
	return cloneRequest(req), nil
}

func (s *Store) ListRandomnessRequests(_ context.Context) ([]randomness.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]randomness.Request, 0, len(s.requestOrder))
	for _, id := range s.requestOrder {
		out = append(out, cloneRequest(s.requests[id]))
	}
	return out, nil
}

// GasStore implementation ----------------------------------------------------

func (s *Store) GetGasBalance(_ context.Context, address string) (gas.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bal, ok := s.balances[address]
	if !ok {
		return gas.Balance{}, fmt.Errorf("gas balance %s: %w", address, storage.ErrNotFound)
	}
	return bal, nil
}

func (s *Store) SaveGasBalance(_ context.Context, bal gas.Balance) (gas.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal.UpdatedAt = time.Now().UTC()
	s.balances[bal.Address] = bal
	return bal, nil
}

func (s *Store) CreateGasTransfer(_ context.Context, tr gas.Transfer) (gas.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tr.ID == "" {
		tr.ID = s.nextIDLocked()
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = time.Now().UTC()
	}

	if tr.From != "" {
		s.transfers[tr.From] = append(s.transfers[tr.From], tr)
	}
	if tr.To != "" && tr.To != tr.From {
		s.transfers[tr.To] = append(s.transfers[tr.To], tr)
	}
	return tr, nil
}

func (s *Store) ListGasTransfers(_ context.Context, address string) ([]gas.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]gas.Transfer, len(s.transfers[address]))
	copy(out, s.transfers[address])
	return out, nil
}

// Helpers ----------------------------------------------------------------------

func cloneEggs(eggs []pledge.Egg) []pledge.Egg {
	if eggs == nil {
		return nil
	}
	out := make([]pledge.Egg, len(eggs))
	copy(out, eggs)
	return out
}

func cloneRequest(req randomness.Request) randomness.Request {
	if req.Words != nil {
		words := make([]uint64, len(req.Words))
		copy(words, req.Words)
		req.Words = words
	}
	return req
}

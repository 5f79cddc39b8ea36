package upkeep

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	domain "github.com/R3E-Network/pledge_layer/internal/app/domain/randomness"
)

// SeededSource is a deterministic oracle adapter for tests and local runs.
// Request identifiers are sequential and word sequences derive from the
// seed, so a run replays exactly. It also enforces the collaborator-side
// contract that each identifier is fulfilled at most once.
type SeededSource struct {
	mu      sync.Mutex
	rng     *rand.Rand
	next    int
	pending map[string][]uint64
}

var _ RandomnessSource = (*SeededSource)(nil)

// NewSeededSource creates a source whose word stream derives from seed.
func NewSeededSource(seed int64) *SeededSource {
	return &SeededSource{
		rng:     rand.New(rand.NewSource(seed)),
		pending: make(map[string][]uint64),
	}
}

// RequestRandomWords issues the next deterministic request identifier and
// pre-draws its words.
func (s *SeededSource) RequestRandomWords(_ context.Context, params domain.Params) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	id := fmt.Sprintf("req-%04d", s.next)

	words := make([]uint64, params.WordCount)
	for i := range words {
		words[i] = s.rng.Uint64()
	}
	s.pending[id] = words
	return id, nil
}

// Deliver hands the words drawn for a request to the given fulfillment
// callback, then forgets the request. A second delivery for the same
// identifier fails.
func (s *SeededSource) Deliver(ctx context.Context, id string, fulfill func(ctx context.Context, id string, words []uint64) error) error {
	s.mu.Lock()
	words, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown or already delivered request %s", id)
	}
	return fulfill(ctx, id, words)
}

// Pending returns the identifiers awaiting delivery.
func (s *SeededSource) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.pending))
	for id := range s.pending {
		out = append(out, id)
	}
	return out
}

// Package randomness receives oracle fulfillments and reduces them to
// bounded reward indices.
package randomness

import (
	"context"
	"fmt"
	"time"

	domainpledge "github.com/R3E-Network/pledge_layer/internal/app/domain/pledge"
	domain "github.com/R3E-Network/pledge_layer/internal/app/domain/randomness"
	"github.com/R3E-Network/pledge_layer/internal/app/events"
	"github.com/R3E-Network/pledge_layer/internal/app/metrics"
	"github.com/R3E-Network/pledge_layer/internal/app/storage"
	"github.com/R3E-Network/pledge_layer/pkg/logger"
)

// Service handles the response half of the oracle round trip.
type Service struct {
	store storage.RandomnessStore
	bus   *events.Bus
	log   *logger.Logger
}

// New creates a configured callback handler.
func New(store storage.RandomnessStore, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("randomness")
	}
	return &Service{store: store, bus: bus, log: log}
}

// Fulfill records the oracle's response for a previously issued request and
// emits the reward index derived from the first word. The index is purely
// informational: nothing in the registry is mutated and no mapping back to a
// specific egg exists.
func (s *Service) Fulfill(ctx context.Context, requestID string, words []uint64) (int, error) {
	if len(words) == 0 {
		return 0, fmt.Errorf("no random words supplied: %w", domainpledge.ErrValidation)
	}

	req, err := s.store.GetRandomnessRequest(ctx, requestID)
	if err != nil {
		return 0, err
	}
	if req.Status == domain.StatusFulfilled {
		return 0, fmt.Errorf("request %s already fulfilled: %w", requestID, domainpledge.ErrState)
	}

	index := domain.DrawIndex(words)

	req.Status = domain.StatusFulfilled
	req.FulfilledAt = time.Now().UTC()
	req.Words = words
	req.Index = index
	if _, err := s.store.UpdateRandomnessRequest(ctx, req); err != nil {
		return 0, err
	}

	s.log.WithField("request_id", requestID).
		WithField("index", index).
		Info("randomness fulfilled")
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:   events.TypeRewardIndex,
			Fields: map[string]interface{}{"request_id": requestID, "index": index},
		})
	}
	metrics.RecordFulfillment(index)
	return index, nil
}

// Request retrieves one ledger entry.
func (s *Service) Request(ctx context.Context, id string) (domain.Request, error) {
	return s.store.GetRandomnessRequest(ctx, id)
}

// Requests lists the ledger in request order.
func (s *Service) Requests(ctx context.Context) ([]domain.Request, error) {
	return s.store.ListRandomnessRequests(ctx)
}

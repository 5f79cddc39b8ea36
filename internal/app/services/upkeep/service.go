// Package upkeep exposes the readiness predicate and trigger operation the
// external automation collaborator polls, and issues randomness requests to
// the oracle when an account is ready.
package upkeep

import (
	"context"
	"fmt"

	domainpledge "github.com/R3E-Network/pledge_layer/internal/app/domain/pledge"
	domain "github.com/R3E-Network/pledge_layer/internal/app/domain/randomness"
	"github.com/R3E-Network/pledge_layer/internal/app/events"
	"github.com/R3E-Network/pledge_layer/internal/app/metrics"
	"github.com/R3E-Network/pledge_layer/internal/app/services/pledge"
	"github.com/R3E-Network/pledge_layer/internal/app/storage"
	"github.com/R3E-Network/pledge_layer/pkg/logger"
)

// RandomnessSource is the oracle capability the scheduler consumes. The
// returned identifier is opaque; the oracle owns its uniqueness.
type RandomnessSource interface {
	RequestRandomWords(ctx context.Context, params domain.Params) (string, error)
}

// Service implements the upkeep trigger.
type Service struct {
	registry *pledge.Service
	source   RandomnessSource
	store    storage.RandomnessStore
	bus      *events.Bus
	params   domain.Params
	log      *logger.Logger
}

// New creates a configured upkeep service. Zero-valued params fall back to
// the fixed defaults.
func New(registry *pledge.Service, source RandomnessSource, store storage.RandomnessStore, bus *events.Bus, params domain.Params, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("upkeep")
	}
	if params == (domain.Params{}) {
		params = domain.DefaultParams()
	}
	return &Service{
		registry: registry,
		source:   source,
		store:    store,
		bus:      bus,
		params:   params,
		log:      log,
	}
}

// Params returns the fixed request parameters in use.
func (s *Service) Params() domain.Params {
	return s.params
}

// CheckReady reports whether an account's collection is non-empty. It is a
// pure predicate: callable by anyone, for any identity, in any contract
// state, with no side effects.
func (s *Service) CheckReady(ctx context.Context, account string) (bool, error) {
	return s.registry.HasEggs(ctx, account)
}

// PerformUpkeep re-evaluates readiness and, when ready, issues exactly one
// randomness request with the fixed parameters. Readiness is a coarse gate:
// no specific egg is consumed, marked or referenced.
func (s *Service) PerformUpkeep(ctx context.Context, account string) (domain.Request, error) {
	success := false
	defer func() { metrics.RecordUpkeepRun(success) }()

	ready, err := s.CheckReady(ctx, account)
	if err != nil {
		return domain.Request{}, err
	}
	if !ready {
		return domain.Request{}, fmt.Errorf("account %s holds no eggs: %w", account, domainpledge.ErrCapacity)
	}

	id, err := s.source.RequestRandomWords(ctx, s.params)
	if err != nil {
		return domain.Request{}, fmt.Errorf("request randomness: %w", err)
	}

	req, err := s.store.CreateRandomnessRequest(ctx, domain.Request{
		ID:      id,
		Account: account,
		Params:  s.params,
		Status:  domain.StatusPending,
	})
	if err != nil {
		return domain.Request{}, err
	}

	s.log.WithField("account", account).
		WithField("request_id", req.ID).
		Info("upkeep performed")
	if s.bus != nil {
		s.bus.Publish(events.Event{
			Type:   events.TypeUpkeepRequested,
			Fields: map[string]interface{}{"request_id": req.ID},
		})
	}
	success = true
	return req, nil
}

// Package access owns the contract owner identity and the one-way
// Open/Closed flag, and provides the guards the other services call before
// privileged or state-dependent operations.
package access

import (
	"fmt"
	"strings"
	"sync"

	domain "github.com/R3E-Network/pledge_layer/internal/app/domain/pledge"
	"github.com/R3E-Network/pledge_layer/internal/app/events"
	"github.com/R3E-Network/pledge_layer/pkg/logger"
)

// Service holds the contract state. The owner is immutable after
// construction; the flag only ever transitions Open to Closed.
type Service struct {
	mu    sync.RWMutex
	owner string
	open  bool
	bus   *events.Bus
	log   *logger.Logger
}

// New constructs the controller with the given owner and state Open.
func New(owner string, bus *events.Bus, log *logger.Logger) (*Service, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("owner identity is required: %w", domain.ErrValidation)
	}
	if log == nil {
		log = logger.NewDefault("access")
	}
	return &Service{owner: owner, open: true, bus: bus, log: log}, nil
}

// Owner returns the immutable owner identity.
func (s *Service) Owner() string {
	return s.owner
}

// IsOpen reports whether the contract is still open.
func (s *Service) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open
}

// RequireOwner fails unless the actor is the owner.
func (s *Service) RequireOwner(actor string) error {
	if actor != s.owner {
		return fmt.Errorf("%s: %w", actor, domain.ErrUnauthorized)
	}
	return nil
}

// RequireOpen fails unless the contract is open.
func (s *Service) RequireOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return fmt.Errorf("contract closed: %w", domain.ErrState)
	}
	return nil
}

// Close transitions the contract to Closed. Only the owner may close, only
// while open; closing an already closed contract fails rather than silently
// succeeding.
func (s *Service) Close(actor string) error {
	if err := s.RequireOwner(actor); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return fmt.Errorf("contract already closed: %w", domain.ErrState)
	}
	s.open = false

	s.log.WithField("owner", s.owner).Info("contract closed")
	if s.bus != nil {
		s.bus.Publish(events.Event{Type: events.TypeContractClosed})
	}
	return nil
}

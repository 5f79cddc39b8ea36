// Package pledge implements the egg registry: generation, bounded editing,
// one-time transfer and surrender of pledge records.
package pledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/R3E-Network/pledge_layer/internal/app/domain/pledge"
	"github.com/R3E-Network/pledge_layer/internal/app/events"
	"github.com/R3E-Network/pledge_layer/internal/app/metrics"
	"github.com/R3E-Network/pledge_layer/internal/app/services/access"
	"github.com/R3E-Network/pledge_layer/internal/app/storage"
	"github.com/R3E-Network/pledge_layer/pkg/logger"
)

// PaymentRail forwards value between identities. Surrender treats a rail
// failure as fatal: no registry state changes when Forward errors.
type PaymentRail interface {
	Forward(ctx context.Context, from, to string, amount int64) error
}

// Service is the egg registry. A single mutex serializes every mutating
// operation, so each call observes and leaves a consistent registry; within
// one operation there is no suspension point.
type Service struct {
	mu     sync.Mutex
	access *access.Service
	store  storage.PledgeStore
	rail   PaymentRail
	bus    *events.Bus
	log    *logger.Logger
	now    func() time.Time
}

// New creates a configured registry service.
func New(accessSvc *access.Service, store storage.PledgeStore, rail PaymentRail, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("pledge")
	}
	return &Service{
		access: accessSvc,
		store:  store,
		rail:   rail,
		bus:    bus,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the registry clock. Tests use it to cross the edit
// window without sleeping.
func (s *Service) WithClock(now func() time.Time) {
	s.now = now
}

// Generate mints the actor's one lifetime egg. The contract must be open and
// the actor must never have generated before, regardless of what happened to
// previously held eggs.
func (s *Service) Generate(ctx context.Context, actor, wish, colour string) (domain.Egg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	success := false
	defer func() { metrics.RecordPledgeOperation("generate", success) }()

	if err := s.access.RequireOpen(); err != nil {
		return domain.Egg{}, err
	}

	acct, err := s.account(ctx, actor)
	if err != nil {
		return domain.Egg{}, err
	}
	if acct.HasGenerated {
		return domain.Egg{}, fmt.Errorf("%s already generated an egg: %w", actor, domain.ErrState)
	}

	egg := domain.Egg{
		ID:        uuid.NewString(),
		Owner:     actor,
		EditCount: 0,
		SentAt:    s.now(),
		Wish:      wish,
		Colour:    colour,
	}

	eggs, err := s.store.GetEggs(ctx, actor)
	if err != nil {
		return domain.Egg{}, err
	}

	// The new record and the generation flag land together or not at all,
	// so a failed write leaves the lifetime allowance intact.
	acct.HasGenerated = true
	if _, err := s.store.SavePledgeUpdate(ctx, acct, map[string][]domain.Egg{
		actor: append(eggs, egg),
	}); err != nil {
		return domain.Egg{}, err
	}

	s.log.WithField("account", actor).Info("egg generated")
	s.publish(events.TypeEggGenerated, map[string]interface{}{
		"account": actor,
		"wish":    wish,
		"colour":  colour,
	})
	success = true
	return egg, nil
}

// Edit rewrites an egg's wish and colour in place. There is deliberately no
// open-state gate here; editing stays possible after the contract closes.
// The record's new edit count derives from the descriptor's count field.
func (s *Service) Edit(ctx context.Context, actor, newWish, newColour string, desc domain.Egg) (domain.Egg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	success := false
	defer func() { metrics.RecordPledgeOperation("edit", success) }()

	// Validation trims, storage does not: the record keeps the caller's
	// text verbatim, exactly as Generate stores it.
	if strings.TrimSpace(newWish) == "" {
		return domain.Egg{}, fmt.Errorf("wish must not be empty: %w", domain.ErrValidation)
	}
	if strings.TrimSpace(newColour) == "" {
		return domain.Egg{}, fmt.Errorf("colour must not be empty: %w", domain.ErrValidation)
	}

	// Edit lock: once a record has been edited twice it stays locked until
	// the window from its last send has elapsed. Edits never refresh the
	// window, so past it the record is editable regardless of count.
	if desc.EditCount >= domain.EditLockCount && s.now().Sub(desc.SentAt) <= domain.EditLockWindow {
		return domain.Egg{}, fmt.Errorf("egg edited %d times and still inside the edit window: %w", desc.EditCount, domain.ErrCapacity)
	}

	eggs, err := s.store.GetEggs(ctx, actor)
	if err != nil {
		return domain.Egg{}, err
	}
	idx, ok := findEgg(eggs, desc)
	if !ok {
		return domain.Egg{}, fmt.Errorf("edit %s: %w", actor, domain.ErrNotFound)
	}

	eggs[idx].Wish = newWish
	eggs[idx].Colour = newColour
	eggs[idx].EditCount = desc.EditCount + 1
	if err := s.store.SaveEggs(ctx, actor, eggs); err != nil {
		return domain.Egg{}, err
	}

	s.log.WithField("account", actor).
		WithField("edit_count", eggs[idx].EditCount).
		Info("egg edited")
	s.publish(events.TypeEggEdited, map[string]interface{}{
		"account": actor,
		"wish":    newWish,
		"colour":  newColour,
		"egg":     eggs[idx],
	})
	success = true
	return eggs[idx], nil
}

// Transfer relocates an egg to the receiver, refreshing its timestamp. Each
// account may transfer at most once over its lifetime, however many eggs it
// holds. Removal uses swap-and-pop, so the source collection's order is not
// preserved.
func (s *Service) Transfer(ctx context.Context, actor, receiver string, desc domain.Egg) (domain.Egg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	success := false
	defer func() { metrics.RecordPledgeOperation("transfer", success) }()

	if err := s.access.RequireOpen(); err != nil {
		return domain.Egg{}, err
	}
	if strings.TrimSpace(receiver) == "" {
		return domain.Egg{}, fmt.Errorf("receiver identity must not be null: %w", domain.ErrValidation)
	}

	acct, err := s.account(ctx, actor)
	if err != nil {
		return domain.Egg{}, err
	}
	if acct.TransferCount > 0 {
		return domain.Egg{}, fmt.Errorf("%s already transferred an egg: %w", actor, domain.ErrCapacity)
	}

	eggs, err := s.store.GetEggs(ctx, actor)
	if err != nil {
		return domain.Egg{}, err
	}
	idx, ok := findEgg(eggs, desc)
	if !ok {
		return domain.Egg{}, fmt.Errorf("transfer %s: %w", actor, domain.ErrNotFound)
	}

	moved := eggs[idx]
	eggs = swapAndPop(eggs, idx)

	moved.Owner = receiver
	moved.SentAt = s.now()

	received, err := s.store.GetEggs(ctx, receiver)
	if err != nil {
		return domain.Egg{}, err
	}
	if receiver == actor {
		// Self-transfer relocates within one collection; the store copy
		// still holds the pre-removal record.
		received = eggs
	}

	// Removal, insertion and the counter commit as one step, so the egg
	// is never absent from both collections or present in two.
	acct.TransferCount++
	collections := map[string][]domain.Egg{actor: eggs}
	collections[receiver] = append(received, moved)
	if _, err := s.store.SavePledgeUpdate(ctx, acct, collections); err != nil {
		return domain.Egg{}, err
	}

	s.log.WithField("account", actor).
		WithField("receiver", receiver).
		Info("egg transferred")
	s.publish(events.TypeEggTransferred, map[string]interface{}{
		"account":  actor,
		"receiver": receiver,
		"egg":      moved,
	})
	success = true
	return moved, nil
}

// Surrender gives an egg up permanently for a payment at or above the
// threshold. The entire payment is forwarded to the contract owner first;
// if forwarding fails the operation aborts with no registry mutation.
func (s *Service) Surrender(ctx context.Context, actor string, payment int64, desc domain.Egg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	success := false
	defer func() { metrics.RecordPledgeOperation("surrender", success) }()

	if payment < domain.SurrenderThreshold {
		return fmt.Errorf("payment %d below threshold %d: %w", payment, domain.SurrenderThreshold, domain.ErrValidation)
	}

	if err := s.rail.Forward(ctx, actor, s.access.Owner(), payment); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrTransferFailed)
	}

	eggs, err := s.store.GetEggs(ctx, actor)
	if err != nil {
		return err
	}
	idx, ok := findEgg(eggs, desc)
	if !ok {
		return fmt.Errorf("surrender %s: %w", actor, domain.ErrNotFound)
	}

	acct, err := s.account(ctx, actor)
	if err != nil {
		return err
	}

	// The removal and the surrender counter commit together.
	acct.GivenCount++
	if _, err := s.store.SavePledgeUpdate(ctx, acct, map[string][]domain.Egg{
		actor: swapAndPop(eggs, idx),
	}); err != nil {
		return err
	}

	s.log.WithField("account", actor).
		WithField("payment", payment).
		Info("egg surrendered")
	s.publish(events.TypeSurrenderRequested, nil)
	success = true
	return nil
}

// Eggs returns an account's collection.
func (s *Service) Eggs(ctx context.Context, address string) ([]domain.Egg, error) {
	return s.store.GetEggs(ctx, address)
}

// HasEggs reports whether an account holds at least one egg. It is the
// readiness signal polled by the upkeep scheduler.
func (s *Service) HasEggs(ctx context.Context, address string) (bool, error) {
	eggs, err := s.store.GetEggs(ctx, address)
	if err != nil {
		return false, err
	}
	return len(eggs) > 0, nil
}

// Account returns an account's counters. Unknown identities report zero
// counters.
func (s *Service) Account(ctx context.Context, address string) (domain.Account, error) {
	return s.account(ctx, address)
}

// ListAccounts returns every account the registry has seen.
func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.store.ListPledgeAccounts(ctx)
}

func (s *Service) account(ctx context.Context, address string) (domain.Account, error) {
	acct, err := s.store.GetPledgeAccount(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Account{Address: address}, nil
	}
	return acct, err
}

func (s *Service) publish(t events.Type, fields map[string]interface{}) {
	if s.bus != nil {
		s.bus.Publish(events.Event{Type: t, Fields: fields})
	}
}

// findEgg performs the structural lookup shared by edit, transfer and
// surrender: a linear scan over the collection comparing all five fields of
// each stored record against the descriptor, stopping at the first match.
func findEgg(eggs []domain.Egg, desc domain.Egg) (int, bool) {
	for i, egg := range eggs {
		if egg.Matches(desc) {
			return i, true
		}
	}
	return 0, false
}

// swapAndPop removes index i by moving the last element into its slot and
// shrinking the slice. Order is not preserved.
func swapAndPop(eggs []domain.Egg, i int) []domain.Egg {
	eggs[i] = eggs[len(eggs)-1]
	return eggs[:len(eggs)-1]
}

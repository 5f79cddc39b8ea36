// Package app ties the pledge services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"

	domainrand "github.com/R3E-Network/pledge_layer/internal/app/domain/randomness"
	"github.com/R3E-Network/pledge_layer/internal/app/events"
	"github.com/R3E-Network/pledge_layer/internal/app/services/access"
	"github.com/R3E-Network/pledge_layer/internal/app/services/gasbank"
	"github.com/R3E-Network/pledge_layer/internal/app/services/pledge"
	randomsvc "github.com/R3E-Network/pledge_layer/internal/app/services/randomness"
	"github.com/R3E-Network/pledge_layer/internal/app/services/upkeep"
	"github.com/R3E-Network/pledge_layer/internal/app/storage"
	"github.com/R3E-Network/pledge_layer/internal/app/storage/memory"
	"github.com/R3E-Network/pledge_layer/internal/app/system"
	"github.com/R3E-Network/pledge_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Pledge     storage.PledgeStore
	Randomness storage.RandomnessStore
	Gas        storage.GasStore
}

// Settings carries the wiring knobs the services need.
type Settings struct {
	// Owner is the immutable contract owner identity.
	Owner string

	// Params are the fixed oracle request parameters. Zero value selects
	// the defaults.
	Params domainrand.Params

	// Source is the oracle adapter. Nil selects a seeded deterministic
	// source.
	Source upkeep.RandomnessSource

	// Rail is the value-transfer adapter. Nil selects the gas bank.
	Rail pledge.PaymentRail

	// UpkeepSchedule drives the keeper runner; empty disables it.
	UpkeepSchedule string
}

// Application wires the domain services together.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Bus        *events.Bus
	Access     *access.Service
	Registry   *pledge.Service
	GasBank    *gasbank.Service
	Upkeep     *upkeep.Service
	Randomness *randomsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(settings Settings, stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Pledge == nil {
		stores.Pledge = mem
	}
	if stores.Randomness == nil {
		stores.Randomness = mem
	}
	if stores.Gas == nil {
		stores.Gas = mem
	}

	bus := events.NewBus(0, log.WithField("component", "events"))

	accessSvc, err := access.New(settings.Owner, bus, log.WithField("component", "access"))
	if err != nil {
		return nil, fmt.Errorf("configure access controller: %w", err)
	}

	gasSvc := gasbank.New(stores.Gas, log.WithField("component", "gasbank"))

	rail := settings.Rail
	if rail == nil {
		rail = gasSvc
	}
	registry := pledge.New(accessSvc, stores.Pledge, rail, bus, log.WithField("component", "pledge"))

	source := settings.Source
	if source == nil {
		source = upkeep.NewSeededSource(1)
	}
	upkeepSvc := upkeep.New(registry, source, stores.Randomness, bus, settings.Params, log.WithField("component", "upkeep"))

	randomSvc := randomsvc.New(stores.Randomness, bus, log.WithField("component", "randomness"))

	manager := system.NewManager()
	if settings.UpkeepSchedule != "" {
		runner := upkeep.NewRunner(upkeepSvc, registry, settings.UpkeepSchedule, log.WithField("component", "upkeep-runner"))
		if err := manager.Register(runner); err != nil {
			return nil, fmt.Errorf("register upkeep runner: %w", err)
		}
	}

	return &Application{
		manager:    manager,
		log:        log,
		Bus:        bus,
		Access:     accessSvc,
		Registry:   registry,
		GasBank:    gasSvc,
		Upkeep:     upkeepSvc,
		Randomness: randomSvc,
	}, nil
}

// Start starts the managed background components.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops the managed background components in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

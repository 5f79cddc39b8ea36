package upkeep

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"

	domainpledge "github.com/R3E-Network/pledge_layer/internal/app/domain/pledge"
	"github.com/R3E-Network/pledge_layer/internal/app/services/pledge"
	"github.com/R3E-Network/pledge_layer/internal/app/system"
	"github.com/R3E-Network/pledge_layer/pkg/logger"
)

// DefaultSchedule drives the keeper loop twice a minute.
const DefaultSchedule = "@every 30s"

// Runner is the in-repo automation collaborator: a cron-driven loop that
// sweeps every known account, checks readiness and performs upkeep for the
// ready ones.
type Runner struct {
	svc      *Service
	registry *pledge.Service
	schedule string
	log      *logger.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ system.Service = (*Runner)(nil)

// NewRunner creates a keeper runner on the given cron schedule.
func NewRunner(svc *Service, registry *pledge.Service, schedule string, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewDefault("upkeep-runner")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Runner{
		svc:      svc,
		registry: registry,
		schedule: schedule,
		log:      log,
	}
}

func (r *Runner) Name() string { return "upkeep-runner" }

// Start schedules the sweep.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() { r.sweep(ctx) }); err != nil {
		return err
	}
	c.Start()
	r.cron = c

	r.log.WithField("schedule", r.schedule).Info("upkeep runner started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) sweep(ctx context.Context) {
	accounts, err := r.registry.ListAccounts(ctx)
	if err != nil {
		r.log.WithError(err).Warn("list accounts failed")
		return
	}

	for _, acct := range accounts {
		ready, err := r.svc.CheckReady(ctx, acct.Address)
		if err != nil {
			r.log.WithError(err).Warnf("readiness check for %s failed", acct.Address)
			continue
		}
		if !ready {
			continue
		}

		req, err := r.svc.PerformUpkeep(ctx, acct.Address)
		if err != nil {
			// Another sweep may have raced the collection empty.
			if !errors.Is(err, domainpledge.ErrCapacity) {
				r.log.WithError(err).Warnf("upkeep for %s failed", acct.Address)
			}
			continue
		}
		r.log.WithField("account", acct.Address).
			WithField("request_id", req.ID).
			Debugf("upkeep request issued")
	}
}

// Package main runs the pledge layer daemon: the egg registry, the upkeep
// scheduler and the randomness callback handler behind one HTTP API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/R3E-Network/pledge_layer/internal/app"
	domainrand "github.com/R3E-Network/pledge_layer/internal/app/domain/randomness"
	"github.com/R3E-Network/pledge_layer/internal/app/httpapi"
	"github.com/R3E-Network/pledge_layer/internal/app/services/pledge"
	"github.com/R3E-Network/pledge_layer/internal/app/services/upkeep"
	"github.com/R3E-Network/pledge_layer/internal/app/storage/postgres"
	"github.com/R3E-Network/pledge_layer/internal/chain"
	"github.com/R3E-Network/pledge_layer/internal/config"
	"github.com/R3E-Network/pledge_layer/pkg/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging)
	log.WithField("owner", cfg.Pledge.Owner).Info("starting pledged")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("pledged exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, closeDB, err := openStores(cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()

	settings := app.Settings{
		Owner: cfg.Pledge.Owner,
		Params: domainrand.Params{
			Lane:             cfg.Randomness.Lane,
			SubscriptionID:   cfg.Randomness.SubscriptionID,
			Confirmations:    domainrand.Confirmations,
			CallbackGasLimit: cfg.Randomness.CallbackGasLimit,
			WordCount:        domainrand.WordCount,
		},
	}
	if cfg.Upkeep.Enabled {
		settings.UpkeepSchedule = cfg.Upkeep.Schedule
	}

	if cfg.Randomness.Mode == "chain" {
		source, rail, err := dialChain(ctx, cfg.Chain)
		if err != nil {
			return err
		}
		settings.Source = source
		settings.Rail = rail
		log.WithField("rpc", cfg.Chain.RPCEndpoint).Info("chain adapters ready")
	} else if cfg.Randomness.Seed != 0 {
		settings.Source = upkeep.NewSeededSource(cfg.Randomness.Seed)
	}

	application, err := app.New(settings, stores, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(stopCtx); err != nil {
			log.WithError(err).Warn("stop services")
		}
	}()

	handler := httpapi.NewHandler(application, httpapi.Options{
		OracleToken: cfg.Randomness.OracleToken,
	}, log)
	limiter := httpapi.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      limiter.Handler(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStores selects PostgreSQL when a DSN is configured, the in-memory
// store otherwise. The returned closer is a no-op for the memory store.
func openStores(cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	if cfg.Database.DSN == "" {
		log.Info("using in-memory storage")
		return app.Stores{}, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return app.Stores{}, nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("ping database: %w", err)
	}
	if cfg.Database.Bootstrap {
		if _, err := db.Exec(postgres.Schema()); err != nil {
			db.Close()
			return app.Stores{}, nil, fmt.Errorf("bootstrap schema: %w", err)
		}
		log.Info("database schema bootstrapped")
	}

	store := postgres.New(db)
	log.Info("using postgres storage")
	return app.Stores{Pledge: store, Randomness: store, Gas: store}, func() { db.Close() }, nil
}

func dialChain(ctx context.Context, cfg chain.Config) (upkeep.RandomnessSource, pledge.PaymentRail, error) {
	client, err := chain.Dial(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("dial chain: %w", err)
	}
	source, err := chain.NewRandomSource(client, cfg.OracleContract)
	if err != nil {
		return nil, nil, err
	}
	rail, err := chain.NewRail(client, cfg.GasToken)
	if err != nil {
		return nil, nil, err
	}
	return source, rail, nil
}

// Package app wires configuration into the stores and engines shared by the
// binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-learn/internal/catalog"
	"github.com/p-n-ai/pai-learn/internal/enrollment"
	"github.com/p-n-ai/pai-learn/internal/gradebook"
	"github.com/p-n-ai/pai-learn/internal/learning"
	"github.com/p-n-ai/pai-learn/internal/platform/cache"
	"github.com/p-n-ai/pai-learn/internal/platform/config"
	"github.com/p-n-ai/pai-learn/internal/platform/database"
	"github.com/p-n-ai/pai-learn/internal/platform/metrics"
	"github.com/p-n-ai/pai-learn/internal/review"
)

// Check is a named readiness check.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// App holds every long-lived component of the process.
type App struct {
	Catalog     catalog.Store
	Ledger      enrollment.Ledger
	Events      enrollment.EventLogger
	Eligibility *enrollment.Eligibility
	Review      *review.Engine
	Learning    *learning.Service
	Gradebook   *gradebook.Exporter
	Metrics     *metrics.Metrics
	Checks      []Check

	closers []func()
}

// Build connects to the configured backends and assembles the engines.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Metrics: metrics.New()}

	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.Checks = append(a.Checks, Check{Name: "database", Fn: db.HealthCheck})

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				a.Close()
				return nil, fmt.Errorf("migrate database: %w", err)
			}
			slog.Info("database schema applied")
		}

		store, err := catalog.NewPostgresStore(db.Pool)
		if err != nil {
			a.Close()
			return nil, err
		}
		ledger, err := enrollment.NewPostgresLedger(db.Pool)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Catalog = store
		a.Ledger = ledger
		a.Events = enrollment.NewPostgresEventLogger(db.Pool)

	default:
		a.Catalog = catalog.NewMemoryStore()
		a.Ledger = enrollment.NewMemoryLedger()
		a.Events = enrollment.NopEventLogger{}
	}

	a.Events = a.Metrics.Events(a.Events)

	var locker review.Locker = review.NewLocalLocker()
	if cfg.UsesCache() {
		c, err := cache.New(ctx, cfg.Cache)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		a.closers = append(a.closers, func() { c.Close() })
		a.Checks = append(a.Checks, Check{Name: "cache", Fn: c.HealthCheck})
		locker = c.Locker(cfg.Review.LockTTL, cfg.Review.LockWait)
	}

	if cfg.CatalogPath != "" {
		loader, err := catalog.NewLoader(cfg.CatalogPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := loader.Seed(ctx, a.Catalog); err != nil {
			a.Close()
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
	}

	a.Eligibility = enrollment.NewEligibility(enrollment.EligibilityConfig{
		Catalog: a.Catalog,
		Ledger:  a.Ledger,
		Events:  a.Events,
	})
	a.Review = review.NewEngine(review.EngineConfig{
		Catalog: a.Catalog,
		Ledger:  a.Ledger,
		Locker:  locker,
		Events:  a.Events,
	})
	a.Learning = learning.NewService(learning.Config{
		Catalog:     a.Catalog,
		Ledger:      a.Ledger,
		Eligibility: a.Eligibility,
		Review:      a.Review,
	})
	a.Gradebook = gradebook.NewExporter(a.Catalog, a.Ledger)

	slog.Info("application assembled",
		"store", cfg.Store.Backend,
		"cache", cfg.UsesCache(),
		"catalog_path", cfg.CatalogPath,
	)
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

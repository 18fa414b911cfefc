package app

import (
	"context"
	"fmt"
	"log/slog"

	"timetracker/internal/adapter/memory"
	msql "timetracker/internal/adapter/mysql"
	sqlitestore "timetracker/internal/adapter/sqlite"
	"timetracker/internal/clock"
	"timetracker/internal/config"
	"timetracker/internal/identity"
	"timetracker/internal/migrate"
	"timetracker/internal/ports"
	"timetracker/internal/usecase"
)

// App wires adapters and use cases.
type App struct {
	log      *slog.Logger
	cfg      config.Config
	store    ports.TimeEntryStore
	tracker  ports.Tracker
	resolver identity.Resolver
}

// New opens the configured store and wires the tracker around it.
func New(ctx context.Context, log *slog.Logger, cfg config.Config) (*App, error) {
	store, err := OpenStore(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithStore(log, cfg, store, clock.Real()), nil
}

// NewWithStore wires the app around an already opened store.
func NewWithStore(log *slog.Logger, cfg config.Config, store ports.TimeEntryStore, clk clock.Clock) *App {
	uc := &usecase.TrackerUseCase{
		Log:     log,
		Store:   store,
		Clock:   clk,
		Timeout: cfg.Store.OpTimeout,
	}
	return &App{
		log:     log,
		cfg:     cfg,
		store:   store,
		tracker: uc,
		resolver: identity.HeaderResolver{
			Header:   cfg.Identity.Header,
			Fallback: cfg.Identity.DevUserID,
		},
	}
}

// OpenStore returns the store selected by cfg.Store.Driver. For MySQL,
// migrations run before the store is opened.
func OpenStore(ctx context.Context, log *slog.Logger, cfg config.Config) (ports.TimeEntryStore, error) {
	switch cfg.Store.Driver {
	case config.DriverMySQL:
		if err := migrate.Run(ctx, cfg.MySQL.DSN, log); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return msql.NewClient(ctx, cfg.MySQL.DSN, log)
	case config.DriverSQLite:
		return sqlitestore.Open(ctx, sqlitestore.Config{Path: cfg.SQLite.Path, Logger: log})
	case config.DriverMemory:
		log.Warn("using in-memory store; entries are lost on restart")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

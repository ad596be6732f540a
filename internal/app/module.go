// Package app wires one profile's process-wide components with fx.
package app

import (
	"context"
	"fmt"

	"github.com/matheus3301/helpline/internal/api"
	"github.com/matheus3301/helpline/internal/bus"
	"github.com/matheus3301/helpline/internal/config"
	"github.com/matheus3301/helpline/internal/geo"
	"github.com/matheus3301/helpline/internal/handoff"
	"github.com/matheus3301/helpline/internal/identity"
	"github.com/matheus3301/helpline/internal/lock"
	"github.com/matheus3301/helpline/internal/logging"
	"github.com/matheus3301/helpline/internal/profile"
	"github.com/matheus3301/helpline/internal/push"
	"github.com/matheus3301/helpline/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds what the command line resolved before the graph is built.
type Params struct {
	Profile string
	Config  *config.Config
	// Console tees logs to stderr. Off while the TUI owns the terminal.
	Console bool
	// Locator overrides the configured position source.
	Locator geo.Locator
}

// Module returns the fx module for a profile, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("app",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideIdentity,
			provideAPI,
			provideDialer,
			provideLocator,
			provideHandoff,
			newApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Path:    profile.LogPath(p.Profile),
		Profile: p.Profile,
		Console: p.Console,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Debug("profile lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// provideStore depends on the lock so the database is only opened by its holder.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, result, err := store.OpenMigrated(dbPath)
	if err != nil {
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	}
	logger.Debug("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideIdentity(db *store.DB) *identity.Context {
	return identity.New(db)
}

func provideAPI(p Params, logger *zap.Logger) *api.Client {
	return api.New(api.Options{
		BaseURL: p.Config.APIURL,
		Timeout: p.Config.HTTPTimeout.D(),
		Logger:  logger,
	})
}

func provideDialer(p Params, logger *zap.Logger) (push.Dialer, error) {
	url, err := p.Config.PushURL()
	if err != nil {
		return nil, err
	}
	backoff := push.Backoff{
		Initial:     p.Config.ReconnectInitial.D(),
		Max:         p.Config.ReconnectMax.D(),
		Multiplier:  push.DefaultBackoff.Multiplier,
		MaxAttempts: p.Config.ReconnectMaxAttempts,
	}
	return push.NewDialer(url, backoff, logger), nil
}

// provideLocator prefers an explicit override, then the configured static
// position, then a manual locator fed by the UI.
func provideLocator(p Params) geo.Locator {
	if p.Locator != nil {
		return p.Locator
	}
	if lat, lon, ok := p.Config.StaticLocation(); ok {
		return geo.Static{P: geo.Point{Latitude: lat, Longitude: lon}}
	}
	return geo.NewManual()
}

func provideHandoff(id *identity.Context, client *api.Client, db *store.DB, logger *zap.Logger) *handoff.Handoff {
	return handoff.New(id, client, db, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, lk *lock.Lock, db *store.DB, id *identity.Context, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := id.Init(); err != nil {
				return fmt.Errorf("load identity: %w", err)
			}
			logger.Info("profile opened", zap.Bool("logged_in", id.LoggedIn()))
			return nil
		},
		OnStop: func(context.Context) error {
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Debug("profile closed")
			_ = logger.Sync()
			return nil
		},
	})
}

package app

import (
	"context"
	"errors"

	"github.com/matheus3301/helpline/internal/api"
	"github.com/matheus3301/helpline/internal/bus"
	"github.com/matheus3301/helpline/internal/chat"
	"github.com/matheus3301/helpline/internal/config"
	"github.com/matheus3301/helpline/internal/geo"
	"github.com/matheus3301/helpline/internal/handoff"
	"github.com/matheus3301/helpline/internal/home"
	"github.com/matheus3301/helpline/internal/identity"
	"github.com/matheus3301/helpline/internal/push"
	"github.com/matheus3301/helpline/internal/room"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// App is the component graph of one opened profile.
type App struct {
	Profile  string
	Config   *config.Config
	Logger   *zap.Logger
	Bus      *bus.Bus
	Identity *identity.Context
	API      *api.Client
	Dial     push.Dialer
	Locator  geo.Locator
	Handoff  *handoff.Handoff
}

func newApp(p Params, logger *zap.Logger, b *bus.Bus, id *identity.Context, client *api.Client,
	dial push.Dialer, loc geo.Locator, h *handoff.Handoff) *App {
	return &App{
		Profile:  p.Profile,
		Config:   p.Config,
		Logger:   logger,
		Bus:      b,
		Identity: id,
		API:      client,
		Dial:     dial,
		Locator:  loc,
		Handoff:  h,
	}
}

// NewChat prepares a session for roomID. The caller starts and closes it.
func (a *App) NewChat(roomID room.ID) (*chat.Session, error) {
	return chat.New(chat.Options{
		Room:          roomID,
		Identity:      a.Identity,
		API:           a.API,
		Dial:          a.Dial,
		Locator:       a.Locator,
		LocateTimeout: a.Config.LocateTimeout.D(),
		Bus:           a.Bus,
		Logger:        a.Logger,
	})
}

// NewHome prepares the dashboard. The caller runs it.
func (a *App) NewHome() *home.Home {
	return home.New(home.Options{
		Identity:        a.Identity,
		Feed:            a.API,
		Handoffs:        a.Handoff,
		Dial:            a.Dial,
		Locator:         a.Locator,
		RadiusKm:        a.Config.RadiusKm,
		MoveThresholdM:  a.Config.MoveThresholdM,
		RefreshInterval: a.Config.RefreshInterval.D(),
		LocateTimeout:   a.Config.LocateTimeout.D(),
		Bus:             a.Bus,
		Logger:          a.Logger,
	})
}

// Run opens the profile, runs fn and closes the profile again.
func Run(ctx context.Context, p Params, fn func(context.Context, *App) error) error {
	var a *App
	fxApp := fx.New(
		Module(p),
		fx.Populate(&a),
		fx.NopLogger,
	)
	if err := fxApp.Err(); err != nil {
		return err
	}
	if err := fxApp.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx, a)
	stopErr := fxApp.Stop(context.WithoutCancel(ctx))
	return errors.Join(runErr, stopErr)
}

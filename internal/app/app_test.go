package app

import (
	"context"
	"errors"
	"testing"

	"github.com/matheus3301/helpline/internal/api"
	"github.com/matheus3301/helpline/internal/config"
	"github.com/matheus3301/helpline/internal/geo"
	"github.com/matheus3301/helpline/internal/lock"
	"github.com/matheus3301/helpline/internal/profile"
	"github.com/matheus3301/helpline/internal/room"
)

func testParams(t *testing.T) Params {
	t.Helper()
	t.Setenv(profile.HomeEnv, t.TempDir())
	return Params{Profile: "test", Config: config.Default()}
}

func TestRunOpensProfile(t *testing.T) {
	p := testParams(t)
	called := false
	err := Run(context.Background(), p, func(_ context.Context, a *App) error {
		called = true
		if a.Profile != "test" {
			t.Errorf("Profile = %q, want test", a.Profile)
		}
		if a.Identity.LoggedIn() {
			t.Error("fresh profile should not be logged in")
		}
		if _, ok := a.Locator.(*geo.Manual); !ok {
			t.Errorf("Locator = %T, want *geo.Manual without a configured position", a.Locator)
		}
		if a.NewHome() == nil {
			t.Error("NewHome returned nil")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestRunPersistsLoginAcrossRuns(t *testing.T) {
	p := testParams(t)
	err := Run(context.Background(), p, func(_ context.Context, a *App) error {
		return a.Identity.Login("tok", api.User{ID: "u1", Name: "Asha"})
	})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	err = Run(context.Background(), p, func(_ context.Context, a *App) error {
		if got := a.Identity.Self(); got != "u1" {
			t.Errorf("Self = %q, want u1", got)
		}
		s, err := a.NewChat(room.ID("u1_u2"))
		if err != nil {
			return err
		}
		return s.Close()
	})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
}

func TestRunLockedProfile(t *testing.T) {
	p := testParams(t)
	err := Run(context.Background(), p, func(ctx context.Context, _ *App) error {
		inner := Run(ctx, p, func(context.Context, *App) error {
			t.Error("inner fn ran while the profile was locked")
			return nil
		})
		var held *lock.LockHeldError
		if !errors.As(inner, &held) {
			t.Errorf("inner Run = %v, want LockHeldError", inner)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("outer Run: %v", err)
	}
}

func TestRunReturnsFnError(t *testing.T) {
	p := testParams(t)
	boom := errors.New("boom")
	err := Run(context.Background(), p, func(context.Context, *App) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("Run = %v, want boom", err)
	}
}

func TestConfiguredStaticLocator(t *testing.T) {
	p := testParams(t)
	lat, lon := 12.97, 77.59
	p.Config.Latitude, p.Config.Longitude = &lat, &lon
	err := Run(context.Background(), p, func(ctx context.Context, a *App) error {
		got, err := a.Locator.Current(ctx)
		if err != nil {
			return err
		}
		if got.Latitude != lat || got.Longitude != lon {
			t.Errorf("Current = %v, want %v,%v", got, lat, lon)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// Command helpline is the client for the helpline network: ask for help
// nearby, accept requests and chat with the person on the other side.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/matheus3301/helpline/internal/api"
	"github.com/matheus3301/helpline/internal/lock"
	"github.com/matheus3301/helpline/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", describe(err))
		os.Exit(1)
	}
}

// describe prefers the server's own wording and adds a hint for the
// errors a user can act on.
func describe(err error) string {
	msg := err.Error()
	if sm := api.ServerMessage(err); sm != "" {
		msg = sm
	}
	var held *lock.LockHeldError
	switch {
	case errors.As(err, &held):
		return msg + "\nclose the other helpline window or pick another --profile"
	case errors.Is(err, api.ErrAuth):
		return msg + "\nrun `helpline login` to sign in again"
	case errors.Is(err, api.ErrNetwork):
		return msg + "\ncheck that the server at --api-url is reachable"
	case errors.Is(err, store.ErrDirtySchema):
		return msg + "\nremove the profile's helpline.db and sign in again"
	default:
		return msg
	}
}

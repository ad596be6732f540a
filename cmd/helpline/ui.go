package main

import (
	"context"
	"errors"

	"github.com/matheus3301/helpline/internal/app"
	"github.com/matheus3301/helpline/internal/room"
	"github.com/matheus3301/helpline/internal/tui"
	"github.com/spf13/cobra"
)

var errNoChat = errors.New("no chat to resume yet; accept a request or pass a room id")

func newHomeCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Open the nearby feed in the terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd, true, func(ctx context.Context, a *app.App) error {
				return tui.NewApp(a, tui.Options{}).Run(ctx)
			})
		},
	}
}

func newChatCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [room]",
		Short: "Open a chat in the terminal UI, the last one by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id room.ID
			if len(args) == 1 {
				var err error
				if id, err = room.Normalize(args[0]); err != nil {
					return err
				}
			}
			return f.run(cmd, true, func(ctx context.Context, a *app.App) error {
				if id == "" {
					last, ok := a.Identity.LastChat()
					if !ok {
						return errNoChat
					}
					id = last
				}
				return tui.NewApp(a, tui.Options{Room: id}).Run(ctx)
			})
		},
	}
}

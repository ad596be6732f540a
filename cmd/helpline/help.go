package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/helpline/internal/app"
	"github.com/matheus3301/helpline/internal/geo"
	"github.com/matheus3301/helpline/internal/home"
	"github.com/matheus3301/helpline/internal/store"
	"github.com/spf13/cobra"
)

// locate fixes the position once and loads the feed around it.
func locate(ctx context.Context, h *home.Home) error {
	if err := h.Refresh(ctx); err != nil {
		if errors.Is(err, geo.ErrLocationUnavailable) {
			return fmt.Errorf("%w: pass --lat and --lon, or set latitude and longitude in the config", err)
		}
		return err
	}
	return nil
}

func newPostCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "post <description>",
		Short: "Ask for help at your current position",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.run(cmd, false, func(ctx context.Context, a *app.App) error {
				h := a.NewHome()
				if err := locate(ctx, h); err != nil {
					return err
				}
				if err := h.Post(ctx, strings.Join(args, " ")); err != nil {
					return err
				}
				p, _ := h.Location()
				fmt.Fprintf(cmd.OutOrStdout(), "Posted at %s. Run `helpline home` to be notified when someone accepts.\n", p)
				return nil
			})
		},
	}
}

func newNearbyCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "nearby",
		Short: "List open help requests around you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd, false, func(ctx context.Context, a *app.App) error {
				h := a.NewHome()
				if err := locate(ctx, h); err != nil {
					return err
				}
				reqs := h.Nearby()
				if len(reqs) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No open requests within %g km.\n", h.RadiusKm())
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tDISTANCE\tFROM\tREQUEST")
				for _, r := range reqs {
					desc := r.Description
					if r.Mine {
						desc += " (yours)"
					}
					fmt.Fprintf(tw, "%s\t%.2f km\t%s\t%s\n", r.ID, r.DistanceKm, r.RequesterName, desc)
				}
				return tw.Flush()
			})
		},
	}
}

func newAcceptCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "accept <request-id>",
		Short: "Accept a nearby request and open a chat with its author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.run(cmd, false, func(ctx context.Context, a *app.App) error {
				h := a.NewHome()
				if err := locate(ctx, h); err != nil {
					return err
				}
				id, err := h.Accept(ctx, args[0])
				if err != nil {
					if errors.Is(err, home.ErrUnknownRequest) {
						return fmt.Errorf("%w: %s is not in your nearby feed", err, args[0])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Accepted. Chat with `helpline chat %s`.\n", id)
				return nil
			})
		},
	}
}

func newChatsCmd(f *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List your recent handoffs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd, false, func(_ context.Context, a *app.App) error {
				handoffs, err := a.Handoff.Recent(limit)
				if err != nil {
					return err
				}
				if len(handoffs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No chats yet.")
					return nil
				}
				last, _ := a.Identity.LastChat()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ROOM\tPEER\tROLE\tUPDATED")
				for _, h := range handoffs {
					room := h.RoomID
					if room == last.String() {
						room += " *"
					}
					role := "helped by"
					if h.Role == store.RoleAccepter {
						role = "helping"
					}
					peer := h.PeerName
					if peer == "" {
						peer = h.PeerID
					}
					updated := time.UnixMilli(h.UpdatedAt).Local().Format(time.DateTime)
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", room, peer, role, updated)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of chats to list")
	return cmd
}

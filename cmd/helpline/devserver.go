package main

import (
	"github.com/matheus3301/helpline/internal/devserver"
	"github.com/matheus3301/helpline/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDevServerCmd() *cobra.Command {
	var (
		addr     string
		secret   string
		radiusKm float64
	)
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory helpline backend for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Profile: "devserver", Console: true})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			srv := devserver.New(devserver.Options{
				Secret:   []byte(secret),
				RadiusKm: radiusKm,
				Logger:   logger,
			})
			logger.Info("nothing is persisted; restart to reset", zap.String("addr", addr))
			return srv.Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&secret, "secret", "", "token signing secret (random when empty)")
	cmd.Flags().Float64Var(&radiusKm, "radius", 10, "default nearby radius in km")
	return cmd
}

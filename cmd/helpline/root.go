package main

import (
	"context"
	"fmt"

	"github.com/matheus3301/helpline/internal/app"
	"github.com/matheus3301/helpline/internal/config"
	"github.com/matheus3301/helpline/internal/profile"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	profile   string
	config    string
	envFile   string
	apiURL    string
	socketURL string
	lat, lon  float64
	radiusKm  float64
	verbose   bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "helpline",
		Short:         "Ask for help nearby and chat with whoever accepts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.profile, "profile", "", "profile name (overrides default_profile)")
	pf.StringVar(&f.config, "config", "", "config file (default ~/.helpline/config.toml)")
	pf.StringVar(&f.envFile, "env-file", "", "dotenv file with HELPLINE_* overrides (default ~/.helpline/.env)")
	pf.StringVar(&f.apiURL, "api-url", "", "REST base URL")
	pf.StringVar(&f.socketURL, "socket-url", "", "push channel URL (derived from --api-url when empty)")
	pf.Float64Var(&f.lat, "lat", 0, "fixed latitude to report as your position")
	pf.Float64Var(&f.lon, "lon", 0, "fixed longitude to report as your position")
	pf.Float64Var(&f.radiusKm, "radius", 0, "nearby search radius in km")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "log to stderr as well as the profile log")

	root.AddCommand(
		newLoginCmd(f),
		newRegisterCmd(f),
		newLogoutCmd(f),
		newWhoamiCmd(f),
		newProfileCmd(f),
		newPostCmd(f),
		newNearbyCmd(f),
		newAcceptCmd(f),
		newChatsCmd(f),
		newHomeCmd(f),
		newChatCmd(f),
		newDevServerCmd(),
	)
	return root
}

// resolve loads the configuration and applies flag overrides on top of it.
func (f *rootFlags) resolve(cmd *cobra.Command) (*config.Config, string, error) {
	cfgPath := f.config
	if cfgPath == "" {
		cfgPath = profile.ConfigPath()
	}
	envPath := f.envFile
	if envPath == "" {
		envPath = profile.EnvPath()
	}
	cfg, err := config.Resolve(cfgPath, envPath)
	if err != nil {
		return nil, "", err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL = f.apiURL
	}
	if flags.Changed("socket-url") {
		cfg.SocketURL = f.socketURL
	}
	if flags.Changed("radius") {
		cfg.RadiusKm = f.radiusKm
	}
	if flags.Changed("lat") != flags.Changed("lon") {
		return nil, "", fmt.Errorf("--lat and --lon must be given together")
	}
	if flags.Changed("lat") {
		cfg.Latitude, cfg.Longitude = &f.lat, &f.lon
	}

	name := profile.Resolve(f.profile, cfg)
	if err := profile.ValidateName(name); err != nil {
		return nil, "", err
	}
	return cfg, name, nil
}

// run opens the profile for the duration of fn. The console log sink is
// left off for full-screen commands.
func (f *rootFlags) run(cmd *cobra.Command, fullScreen bool, fn func(context.Context, *app.App) error) error {
	cfg, name, err := f.resolve(cmd)
	if err != nil {
		return err
	}
	p := app.Params{
		Profile: name,
		Config:  cfg,
		Console: f.verbose && !fullScreen,
	}
	return app.Run(cmd.Context(), p, fn)
}

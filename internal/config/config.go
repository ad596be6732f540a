package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HELPLINE_"

// Config represents the global ~/.helpline/config.toml.
type Config struct {
	DefaultProfile       string   `toml:"default_profile"`
	APIURL               string   `toml:"api_url"`
	SocketURL            string   `toml:"socket_url,omitempty"`
	RadiusKm             float64  `toml:"radius_km"`
	MoveThresholdM       float64  `toml:"move_threshold_m"`
	RefreshInterval      Duration `toml:"refresh_interval"`
	LocateTimeout        Duration `toml:"locate_timeout"`
	ReconnectInitial     Duration `toml:"reconnect_initial"`
	ReconnectMax         Duration `toml:"reconnect_max"`
	ReconnectMaxAttempts int      `toml:"reconnect_max_attempts"`
	HTTPTimeout          Duration `toml:"http_timeout"`
	Latitude             *float64 `toml:"latitude,omitempty"`
	Longitude            *float64 `toml:"longitude,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIURL:           "http://localhost:8080",
		RadiusKm:         10,
		MoveThresholdM:   50,
		LocateTimeout:    Duration(10 * time.Second),
		ReconnectInitial: Duration(500 * time.Millisecond),
		ReconnectMax:     Duration(15 * time.Second),
		HTTPTimeout:      Duration(15 * time.Second),
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve layers defaults, the file at path (if present) and the
// environment. envFile, when non-empty and present, supplies environment
// values that the real environment has not set.
func Resolve(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	lookup, err := Environ(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Environ returns a lookup over the process environment backed by the
// values of envFile. A missing envFile is not an error.
func Environ(envFile string) (func(string) (string, bool), error) {
	var file map[string]string
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			file = m
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}, nil
}

// ApplyEnv overrides fields from HELPLINE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	float := func(name string) (float64, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return 0, false
		}
		return f, true
	}
	num := func(name string, dst *float64) {
		if f, ok := float(name); ok {
			*dst = f
		}
	}
	optNum := func(name string, dst **float64) {
		if f, ok := float(name); ok {
			*dst = &f
		}
	}
	dur := func(name string, dst *Duration) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			}
		}
	}

	str("PROFILE", &c.DefaultProfile)
	str("API_URL", &c.APIURL)
	str("SOCKET_URL", &c.SocketURL)
	num("RADIUS_KM", &c.RadiusKm)
	num("MOVE_THRESHOLD_M", &c.MoveThresholdM)
	dur("REFRESH_INTERVAL", &c.RefreshInterval)
	dur("LOCATE_TIMEOUT", &c.LocateTimeout)
	dur("RECONNECT_INITIAL", &c.ReconnectInitial)
	dur("RECONNECT_MAX", &c.ReconnectMax)
	dur("HTTP_TIMEOUT", &c.HTTPTimeout)
	optNum("LATITUDE", &c.Latitude)
	optNum("LONGITUDE", &c.Longitude)
	if v, ok := lookup(EnvPrefix + "RECONNECT_MAX_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRECONNECT_MAX_ATTEMPTS: %w", EnvPrefix, err))
		} else {
			c.ReconnectMaxAttempts = n
		}
	}
	return errors.Join(errs...)
}

// PushURL returns the websocket endpoint: socket_url, or api_url with a ws
// scheme and a /ws path.
func (c *Config) PushURL() (string, error) {
	if c.SocketURL != "" {
		return c.SocketURL, nil
	}
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return "", fmt.Errorf("parse api_url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// StaticLocation returns the configured fallback position, if both
// coordinates are set.
func (c *Config) StaticLocation() (lat, lon float64, ok bool) {
	if c.Latitude == nil || c.Longitude == nil {
		return 0, 0, false
	}
	return *c.Latitude, *c.Longitude, true
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Duration is a time.Duration written as a string like "15s".
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

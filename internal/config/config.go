// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSecretLen = 32

// Config holds every runtime setting of the API binary.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	PostgresDSN string // empty selects the in-memory store
	RedisAddr   string // empty keeps refresh tokens in the primary store
	RedisDB     int

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	RateBurst  int
	RatePerSec float64

	MaxFailedLogins int
	Lockout         time.Duration

	BootstrapTenant   string
	BootstrapUser     string
	BootstrapPassword string
}

// StoreMode names the backing store selected by the DSN.
func (c Config) StoreMode() string {
	if c.PostgresDSN == "" {
		return "memory"
	}
	return "postgres"
}

// Load reads files (default ".env") into the process environment without
// overriding variables that are already set, then parses the environment.
// Missing files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, usually os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}
	cfg := Config{
		HTTPAddr:          e.str("TKFLEET_HTTP_ADDR", ":8080"),
		GRPCAddr:          e.str("TKFLEET_GRPC_ADDR", ":9090"),
		PostgresDSN:       e.str("TKFLEET_PG_DSN", ""),
		RedisAddr:         e.str("TKFLEET_REDIS_ADDR", ""),
		RedisDB:           e.integer("TKFLEET_REDIS_DB", 0),
		JWTSecret:         e.str("TKFLEET_JWT_SECRET", ""),
		AccessTTL:         time.Duration(e.integer("TKFLEET_JWT_EXPIRE_MINUTES", 60)) * time.Minute,
		RefreshTTL:        e.duration("TKFLEET_REFRESH_TTL", 7*24*time.Hour),
		RateBurst:         e.integer("TKFLEET_RATE_BURST", 40),
		RatePerSec:        e.number("TKFLEET_RATE_PER_SEC", 20),
		MaxFailedLogins:   e.integer("TKFLEET_MAX_FAILED_LOGINS", 5),
		Lockout:           e.duration("TKFLEET_LOCKOUT", 15*time.Minute),
		BootstrapTenant:   e.str("TKFLEET_BOOTSTRAP_TENANT", ""),
		BootstrapUser:     e.str("TKFLEET_BOOTSTRAP_USER", ""),
		BootstrapPassword: e.str("TKFLEET_BOOTSTRAP_PASSWORD", ""),
	}
	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("config: TKFLEET_JWT_SECRET must be at least %d bytes", minSecretLen))
	}
	if c.AccessTTL <= 0 {
		errs = append(errs, errors.New("config: TKFLEET_JWT_EXPIRE_MINUTES must be positive"))
	}
	if c.RefreshTTL <= c.AccessTTL {
		errs = append(errs, errors.New("config: TKFLEET_REFRESH_TTL must exceed the access token lifetime"))
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		errs = append(errs, errors.New("config: rate limit settings must be positive"))
	}
	if c.MaxFailedLogins <= 0 || c.Lockout <= 0 {
		errs = append(errs, errors.New("config: lockout settings must be positive"))
	}
	boot := []string{c.BootstrapTenant, c.BootstrapUser, c.BootstrapPassword}
	set := 0
	for _, v := range boot {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != len(boot) {
		errs = append(errs, errors.New("config: bootstrap tenant, user and password must be set together"))
	}
	return errors.Join(errs...)
}

// Bootstrap reports whether a root tenant should be ensured at startup.
func (c Config) Bootstrap() bool {
	return c.BootstrapTenant != "" && c.BootstrapUser != "" && c.BootstrapPassword != ""
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) integer(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: invalid int %q", key, raw))
		return def
	}
	return n
}

func (e *env) number(key string, def float64) float64 {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: invalid number %q", key, raw))
		return def
	}
	return f
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: invalid duration %q", key, raw))
		return def
	}
	return d
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads membership settings from a YAML file, command-line
// flags, and the DATABASE_URL environment variable, in increasing order of
// precedence for flags and as a fallback for the database URL.
package config

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/membership/internal/auth"
	"github.com/holomush/membership/internal/docstore"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// DatabaseURLEnv is consulted when no database URL is configured.
const DatabaseURLEnv = "DATABASE_URL"

// Defaults.
const (
	DefaultBackend        = BackendPostgres
	DefaultNamespace      = "default"
	DefaultLogFormat      = "text"
	DefaultLogLevel       = "info"
	DefaultConnectTimeout = 10 * time.Second
)

// Config is the complete membership configuration.
type Config struct {
	Store     StoreConfig    `koanf:"store"`
	Database  DatabaseConfig `koanf:"database"`
	Namespace string         `koanf:"namespace"`
	Log       LogConfig      `koanf:"log"`
	Hasher    HasherConfig   `koanf:"hasher"`
	Policy    PolicyConfig   `koanf:"policy"`

	// Namespaces holds the effective policy of every namespace with
	// overrides: the default policy with the namespace's keys merged on top.
	Namespaces map[string]PolicyConfig `koanf:"-"`
}

// StoreConfig selects and tunes the document store.
type StoreConfig struct {
	Backend            string        `koanf:"backend"`
	ConsistencyTimeout time.Duration `koanf:"consistency_timeout"`
	IndexLag           time.Duration `koanf:"index_lag"`
}

// DatabaseConfig configures the PostgreSQL backend.
type DatabaseConfig struct {
	URL            string        `koanf:"url"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// HasherConfig selects the password digest algorithm.
type HasherConfig struct {
	Algorithm string `koanf:"algorithm"`
}

// PolicyConfig is the file form of auth.Policy.
type PolicyConfig struct {
	MinPasswordLength   int           `koanf:"min_password_length"`
	MinNonAlphanumeric  int           `koanf:"min_non_alphanumeric"`
	PasswordPattern     string        `koanf:"password_pattern"`
	RequiresUniqueEmail bool          `koanf:"requires_unique_email"`
	MaxInvalidAttempts  int           `koanf:"max_invalid_attempts"`
	LockoutDuration     time.Duration `koanf:"lockout_duration"`
	AttemptWindow       time.Duration `koanf:"attempt_window"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	p := auth.DefaultPolicy()
	return &Config{
		Store: StoreConfig{
			Backend:            DefaultBackend,
			ConsistencyTimeout: docstore.DefaultConsistencyTimeout,
		},
		Database:  DatabaseConfig{ConnectTimeout: DefaultConnectTimeout},
		Namespace: DefaultNamespace,
		Log:       LogConfig{Format: DefaultLogFormat, Level: DefaultLogLevel},
		Hasher:    HasherConfig{Algorithm: string(auth.DefaultAlgorithm)},
		Policy: PolicyConfig{
			MinPasswordLength:   p.MinPasswordLength,
			MinNonAlphanumeric:  p.MinNonAlphanumeric,
			RequiresUniqueEmail: p.RequiresUniqueEmail,
			MaxInvalidAttempts:  p.Lockout.MaxInvalidAttempts,
			LockoutDuration:     p.Lockout.Duration,
			AttemptWindow:       p.Lockout.Window,
		},
		Namespaces: map[string]PolicyConfig{},
	}
}

// flagKeys maps command-line flag names to configuration keys. Flags not
// listed are ignored.
var flagKeys = map[string]string{
	"backend":             "store.backend",
	"consistency-timeout": "store.consistency_timeout",
	"index-lag":           "store.index_lag",
	"database-url":        "database.url",
	"namespace":           "namespace",
	"log-format":          "log.format",
	"log-level":           "log.level",
	"hasher":              "hasher.algorithm",
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty), and the changed flags in fs (skipped when nil). getenv supplies
// DATABASE_URL when no URL was configured; nil means no environment.
func Load(path string, fs *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}
	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	for _, ns := range k.MapKeys("namespaces") {
		merged := koanf.New(".")
		if err := merged.Merge(k.Cut("namespaces." + ns)); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("namespace", ns).Wrap(err)
		}
		policy := cfg.Policy
		if err := merged.Unmarshal("", &policy); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("namespace", ns).Wrap(err)
		}
		cfg.Namespaces[ns] = policy
	}

	if cfg.Database.URL == "" && getenv != nil {
		cfg.Database.URL = getenv(DatabaseURLEnv)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendPostgres:
		if c.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").
				Errorf("database.url or the %s environment variable is required for the postgres backend", DatabaseURLEnv)
		}
	case BackendMemory:
	default:
		return oops.Code("CONFIG_INVALID").
			With("backend", c.Store.Backend).
			Errorf("store.backend must be %q or %q, got %q", BackendPostgres, BackendMemory, c.Store.Backend)
	}
	if c.Store.ConsistencyTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("store.consistency_timeout must be positive")
	}
	if c.Store.IndexLag < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("store.index_lag cannot be negative")
	}
	if strings.TrimSpace(c.Namespace) == "" {
		return oops.Code("CONFIG_INVALID").Errorf("namespace is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := auth.ParseAlgorithm(c.Hasher.Algorithm); err != nil {
		return oops.Code("CONFIG_INVALID").
			With("algorithm", c.Hasher.Algorithm).
			Errorf("hasher.algorithm: %v", err)
	}
	if err := c.Policy.validate("policy"); err != nil {
		return err
	}
	for ns, p := range c.Namespaces {
		if err := p.validate("namespaces." + ns); err != nil {
			return err
		}
	}
	return nil
}

func (p PolicyConfig) validate(key string) error {
	if p.MinPasswordLength < 1 || p.MinPasswordLength > auth.MaxPasswordLength {
		return oops.Code("CONFIG_INVALID").
			Errorf("%s.min_password_length must be between 1 and %d", key, auth.MaxPasswordLength)
	}
	if p.MinNonAlphanumeric < 0 || p.MinNonAlphanumeric > p.MinPasswordLength {
		return oops.Code("CONFIG_INVALID").
			Errorf("%s.min_non_alphanumeric must be between 0 and min_password_length", key)
	}
	if p.MaxInvalidAttempts < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("%s.max_invalid_attempts cannot be negative", key)
	}
	if p.LockoutDuration < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("%s.lockout_duration cannot be negative", key)
	}
	if p.AttemptWindow < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("%s.attempt_window cannot be negative", key)
	}
	if p.PasswordPattern != "" {
		if _, err := regexp.Compile(p.PasswordPattern); err != nil {
			return oops.Code("CONFIG_INVALID").With("key", key+".password_pattern").Wrap(err)
		}
	}
	return nil
}

// AuthPolicy converts p to an auth.Policy.
func (p PolicyConfig) AuthPolicy() (auth.Policy, error) {
	policy := auth.Policy{
		MinPasswordLength:   p.MinPasswordLength,
		MinNonAlphanumeric:  p.MinNonAlphanumeric,
		RequiresUniqueEmail: p.RequiresUniqueEmail,
		Lockout: auth.Lockout{
			MaxInvalidAttempts: p.MaxInvalidAttempts,
			Duration:           p.LockoutDuration,
			Window:             p.AttemptWindow,
		},
	}
	if p.PasswordPattern != "" {
		re, err := regexp.Compile(p.PasswordPattern)
		if err != nil {
			return auth.Policy{}, oops.Code("CONFIG_INVALID").With("pattern", p.PasswordPattern).Wrap(err)
		}
		policy.PasswordPattern = re
	}
	return policy, nil
}

// Policies returns the default and per-namespace policies.
func (c *Config) Policies() (auth.Policies, error) {
	def, err := c.Policy.AuthPolicy()
	if err != nil {
		return auth.Policies{}, err
	}
	out := auth.Policies{Default: def, Namespaces: make(map[string]auth.Policy, len(c.Namespaces))}
	for ns, p := range c.Namespaces {
		policy, err := p.AuthPolicy()
		if err != nil {
			return auth.Policies{}, oops.With("namespace", ns).Wrap(err)
		}
		out.Namespaces[ns] = policy
	}
	return out, nil
}

// ParseLevel parses a log level name.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, oops.Code("CONFIG_INVALID").
			With("level", name).
			Errorf("log.level must be debug, info, warn, or error, got %q", name)
	}
	return level, nil
}

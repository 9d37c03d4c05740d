// Package config loads herdsync settings from a YAML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, HERDSYNC_*
// environment variables. The merged result is checked against an embedded
// CUE schema before use. A missing file is not an error.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Load.
const (
	EnvBackendURL = "HERDSYNC_BACKEND_URL"
	EnvToken      = "HERDSYNC_TOKEN"
	EnvDB         = "HERDSYNC_DB"
	EnvQuota      = "HERDSYNC_QUOTA_BYTES"
	EnvLogLevel   = "HERDSYNC_LOG_LEVEL"
)

//go:embed schema.cue
var schemaSource string

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Backend BackendConfig `yaml:"backend" json:"backend"`
	Auth    AuthConfig    `yaml:"auth" json:"auth"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Watch   WatchConfig   `yaml:"watch" json:"watch"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

type BackendConfig struct {
	// BaseURL of the registry service. Empty means offline only: records
	// can be captured but not synced.
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type AuthConfig struct {
	Token string `yaml:"token" json:"token"`
}

type StorageConfig struct {
	// Path of the SQLite database holding the local key space.
	Path string `yaml:"path" json:"path"`

	// QuotaBytes caps the local key space. 0 disables the cap.
	QuotaBytes int64 `yaml:"quota_bytes" json:"quota_bytes"`
}

type WatchConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend: BackendConfig{Timeout: 10 * time.Second},
		Storage: StorageConfig{Path: "herdsync.db", QuotaBytes: 5 << 20},
		Watch:   WatchConfig{Interval: 30 * time.Second},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads path (if non-empty and present), applies environment
// overrides from getenv (os.Getenv when nil), and validates the result.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := decode(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode parses YAML on top of cfg, rejecting unknown keys.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(getenv(EnvToken)); v != "" {
		cfg.Auth.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvDB)); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(getenv(EnvQuota)); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, EnvQuota, v)
		}
		cfg.Storage.QuotaBytes = n
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	return nil
}

// Validate checks cfg against the embedded schema.
func Validate(cfg Config) error {
	cctx := cuecontext.New()
	schema := cctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(cctx.Encode(cfg))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// SlogLevel maps Log.Level to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

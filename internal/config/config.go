// Package config loads PsychIntake settings.
//
// Settings are layered, later layers winning: built-in defaults, the optional
// profile file <state-dir>/config.yaml, the environment (a .env file is read
// first and never overrides variables already set), and command-line
// overrides. Environment variables carry the PSYCHINTAKE_ prefix.
//
// Example (~/.psychintake/config.yaml):
//
//	api_base_url: https://intake.example.org
//	request_timeout: 45s
//	log_level: debug
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/PsychIntake/internal/api"
	"github.com/BTreeMap/PsychIntake/internal/notify"
	"github.com/BTreeMap/PsychIntake/internal/retry"
	"github.com/BTreeMap/PsychIntake/internal/store"
)

const (
	// EnvPrefix is prepended to every environment variable name.
	EnvPrefix = "PSYCHINTAKE_"
	// DefaultStateDirName is created under the user's home directory.
	DefaultStateDirName = ".psychintake"
	// FileName is the profile file read from the state directory.
	FileName = "config.yaml"
	// DefaultDBFileName is the SQLite file used when no DSN is configured.
	DefaultDBFileName = "psychintake.db"
	DefaultLogLevel   = "info"
)

// Config holds every externally overridable setting.
type Config struct {
	APIBaseURL string `yaml:"api_base_url" env:"API_BASE_URL"`
	// WSURL overrides the notification socket URL derived from APIBaseURL.
	WSURL string `yaml:"ws_url" env:"WS_URL"`
	// StateDir cannot be set from the profile file, which lives inside it.
	StateDir          string        `yaml:"-" env:"STATE_DIR"`
	StoreDSN          string        `yaml:"store_dsn" env:"STORE_DSN"`
	Profile           string        `yaml:"profile" env:"PROFILE"`
	RequestTimeout    time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	LogLevel          string        `yaml:"log_level" env:"LOG_LEVEL"`
	ReconnectAttempts int           `yaml:"reconnect_attempts" env:"RECONNECT_ATTEMPTS"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" env:"RECONNECT_DELAY"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
}

// Overrides are command-line values. Zero values are not applied.
type Overrides struct {
	APIBaseURL     string
	WSURL          string
	StateDir       string
	StoreDSN       string
	Profile        string
	LogLevel       string
	RequestTimeout time.Duration
}

// LoadOptions control where Load reads from.
type LoadOptions struct {
	// EnvFile is the dotenv file to read. Empty means ".env" in the working
	// directory; a missing file is not an error.
	EnvFile string
	// Environ replaces the process environment when non-nil.
	Environ map[string]string
	// HomeDir replaces os.UserHomeDir when non-empty.
	HomeDir   string
	Overrides Overrides
}

// Defaults returns the built-in settings for stateDir.
func Defaults(stateDir string) Config {
	return Config{
		APIBaseURL:        api.DefaultBaseURL,
		StateDir:          stateDir,
		Profile:           store.DefaultProfile,
		RequestTimeout:    api.DefaultTimeout,
		LogLevel:          DefaultLogLevel,
		ReconnectAttempts: retry.DefaultMaxAttempts,
		ReconnectDelay:    retry.DefaultDelay,
		HeartbeatInterval: notify.DefaultHeartbeatInterval,
	}
}

// Load resolves the configuration from every layer and validates it.
func Load(opts LoadOptions) (*Config, error) {
	environ, err := environment(opts)
	if err != nil {
		return nil, err
	}

	stateDir, err := resolveStateDir(opts, environ)
	if err != nil {
		return nil, err
	}
	cfg := Defaults(stateDir)

	file := filepath.Join(stateDir, FileName)
	if err := cfg.readFile(file); err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.apply(opts.Overrides)
	cfg.StateDir = stateDir

	if cfg.StoreDSN == "" {
		cfg.StoreDSN = filepath.Join(cfg.StateDir, DefaultDBFileName)
		slog.Debug("config.Load: no store DSN provided, defaulting to SQLite", "sqlite_path", cfg.StoreDSN)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("config.Load: configuration resolved",
		"api_base_url", cfg.APIBaseURL,
		"ws_url_set", cfg.WSURL != "",
		"state_dir", cfg.StateDir,
		"store_type", store.DetectDSNType(cfg.StoreDSN),
		"store_dsn_set", cfg.StoreDSN != "",
		"profile", cfg.Profile,
		"request_timeout", cfg.RequestTimeout,
		"log_level", cfg.LogLevel)
	return &cfg, nil
}

// environment merges the dotenv file under the real (or supplied) environment.
func environment(opts LoadOptions) (map[string]string, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	merged, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
		slog.Debug("config.Load: no dotenv file", "path", envFile)
		merged = make(map[string]string)
	} else {
		slog.Debug("config.Load: loaded dotenv file", "path", envFile, "vars", len(merged))
	}

	environ := opts.Environ
	if environ == nil {
		environ = make(map[string]string)
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				environ[k] = v
			}
		}
	}
	for k, v := range environ {
		merged[k] = v
	}
	return merged, nil
}

func resolveStateDir(opts LoadOptions, environ map[string]string) (string, error) {
	if dir := strings.TrimSpace(opts.Overrides.StateDir); dir != "" {
		return expandHome(dir, opts.HomeDir)
	}
	if dir := strings.TrimSpace(environ[EnvPrefix+"STATE_DIR"]); dir != "" {
		return expandHome(dir, opts.HomeDir)
	}
	home, err := homeDir(opts.HomeDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultStateDirName), nil
}

func homeDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get user home dir: %w", err)
	}
	return home, nil
}

func expandHome(path, home string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	h, err := homeDir(home)
	if err != nil {
		return "", err
	}
	return filepath.Join(h, strings.TrimPrefix(path, "~")), nil
}

// readFile layers the profile file over c. A missing file is not an error.
func (c *Config) readFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse yaml config %s: %w", path, err)
	}
	slog.Debug("config.Load: applied profile file", "path", path)
	return nil
}

func (c *Config) apply(o Overrides) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&c.APIBaseURL, o.APIBaseURL)
	set(&c.WSURL, o.WSURL)
	set(&c.StoreDSN, o.StoreDSN)
	set(&c.Profile, o.Profile)
	set(&c.LogLevel, o.LogLevel)
	if o.RequestTimeout > 0 {
		c.RequestTimeout = o.RequestTimeout
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api base url %q", c.APIBaseURL)
	}
	if c.WSURL != "" {
		u, err := url.Parse(c.WSURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("invalid websocket url %q", c.WSURL)
		}
	}
	if strings.TrimSpace(c.StateDir) == "" {
		return errors.New("state directory is empty")
	}
	if strings.TrimSpace(c.Profile) == "" {
		return errors.New("profile is empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.ReconnectAttempts < 0 {
		return fmt.Errorf("reconnect attempts must not be negative, got %d", c.ReconnectAttempts)
	}
	if c.ReconnectDelay < 0 || c.HeartbeatInterval < 0 {
		return errors.New("reconnect delay and heartbeat interval must not be negative")
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// ReconnectPolicy is the notification channel's reconnect policy.
func (c *Config) ReconnectPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: c.ReconnectAttempts, Delay: retry.Linear(c.ReconnectDelay)}
}

// UsesLocalFile reports whether the store lives in the state directory, so
// the directory must exist before the store is opened.
func (c *Config) UsesLocalFile() bool {
	return store.DetectDSNType(c.StoreDSN) == store.TypeSQLite
}

// EnsureStateDir creates the state directory with owner-only permissions.
func (c *Config) EnsureStateDir() error {
	if err := os.MkdirAll(c.StateDir, 0o700); err != nil {
		return fmt.Errorf("create state dir %s: %w", c.StateDir, err)
	}
	return nil
}

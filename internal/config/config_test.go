package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/PsychIntake/internal/api"
	"github.com/BTreeMap/PsychIntake/internal/notify"
	"github.com/BTreeMap/PsychIntake/internal/retry"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// isolated returns options that never read the real environment or home.
func isolated(t *testing.T, environ map[string]string) LoadOptions {
	t.Helper()
	if environ == nil {
		environ = map[string]string{}
	}
	dir := t.TempDir()
	return LoadOptions{
		EnvFile: filepath.Join(dir, "missing.env"),
		Environ: environ,
		HomeDir: filepath.Join(dir, "home"),
	}
}

func TestLoadDefaults(t *testing.T) {
	opts := isolated(t, nil)
	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	wantDir := filepath.Join(opts.HomeDir, DefaultStateDirName)
	if cfg.StateDir != wantDir {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, wantDir)
	}
	if cfg.StoreDSN != filepath.Join(wantDir, DefaultDBFileName) || !cfg.UsesLocalFile() {
		t.Errorf("StoreDSN = %q", cfg.StoreDSN)
	}
	if cfg.APIBaseURL != api.DefaultBaseURL || cfg.RequestTimeout != api.DefaultTimeout {
		t.Errorf("api settings = %q %s", cfg.APIBaseURL, cfg.RequestTimeout)
	}
	if cfg.HeartbeatInterval != notify.DefaultHeartbeatInterval || cfg.LogLevel != DefaultLogLevel {
		t.Errorf("heartbeat = %s log level = %q", cfg.HeartbeatInterval, cfg.LogLevel)
	}
	p := cfg.ReconnectPolicy()
	if p.MaxAttempts != retry.DefaultMaxAttempts {
		t.Errorf("reconnect attempts = %d", p.MaxAttempts)
	}
	if d, ok := p.Attempt(1); !ok || d != retry.DefaultDelay {
		t.Errorf("reconnect delay = %s, %v", d, ok)
	}
}

func TestLoadLayering(t *testing.T) {
	opts := isolated(t, map[string]string{
		"PSYCHINTAKE_REQUEST_TIMEOUT": "12s",
		"PSYCHINTAKE_PROFILE":         "clinic",
		"UNRELATED":                   "x",
	})
	stateDir := filepath.Join(opts.HomeDir, DefaultStateDirName)
	writeFile(t, filepath.Join(stateDir, FileName), strings.Join([]string{
		"api_base_url: https://file.example.org",
		"request_timeout: 45s",
		"log_level: debug",
		"reconnect_attempts: 2",
		"heartbeat_interval: 10s",
		"profile: from-file",
	}, "\n"))

	cfg, err := Load(opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"file value", cfg.APIBaseURL, "https://file.example.org"},
		{"env over file", cfg.RequestTimeout, 12 * time.Second},
		{"env over file", cfg.Profile, "clinic"},
		{"file int", cfg.ReconnectAttempts, 2},
		{"file duration", cfg.HeartbeatInterval, 10 * time.Second},
		{"default kept", cfg.ReconnectDelay, retry.DefaultDelay},
		{"file string", cfg.LogLevel, "debug"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	opts.Overrides = Overrides{APIBaseURL: "http://flag.example.org:9000", RequestTimeout: time.Second, Profile: "  "}
	cfg, err = Load(opts)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIBaseURL != "http://flag.example.org:9000" || cfg.RequestTimeout != time.Second {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.Profile != "clinic" {
		t.Errorf("blank flag overrode profile: %q", cfg.Profile)
	}
}

func TestDotenvDoesNotOverrideEnvironment(t *testing.T) {
	opts := isolated(t, map[string]string{"PSYCHINTAKE_LOG_LEVEL": "warn"})
	opts.EnvFile = filepath.Join(t.TempDir(), ".env")
	writeFile(t, opts.EnvFile, "PSYCHINTAKE_LOG_LEVEL=debug\nPSYCHINTAKE_WS_URL=wss://ws.example.org/socket\n")

	cfg, err := Load(opts)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want the environment value", cfg.LogLevel)
	}
	if cfg.WSURL != "wss://ws.example.org/socket" {
		t.Errorf("WSURL = %q, want the dotenv value", cfg.WSURL)
	}
}

func TestStateDirResolution(t *testing.T) {
	opts := isolated(t, map[string]string{"PSYCHINTAKE_STATE_DIR": "~/custom"})
	cfg, err := Load(opts)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(opts.HomeDir, "custom"); cfg.StateDir != want {
		t.Errorf("StateDir = %q, want %q", cfg.StateDir, want)
	}

	flagDir := t.TempDir()
	opts.Overrides.StateDir = flagDir
	writeFile(t, filepath.Join(flagDir, FileName), "store_dsn: redis://localhost:6379/2\n")
	cfg, err = Load(opts)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StateDir != flagDir {
		t.Errorf("StateDir = %q, want flag value", cfg.StateDir)
	}
	if cfg.StoreDSN != "redis://localhost:6379/2" || cfg.UsesLocalFile() {
		t.Errorf("profile file in flag state dir not read: %q", cfg.StoreDSN)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		file    string
	}{
		{"bad base url", map[string]string{"PSYCHINTAKE_API_BASE_URL": "ftp://example.org"}, ""},
		{"bad ws url", map[string]string{"PSYCHINTAKE_WS_URL": "http://example.org"}, ""},
		{"bad log level", map[string]string{"PSYCHINTAKE_LOG_LEVEL": "chatty"}, ""},
		{"bad duration", map[string]string{"PSYCHINTAKE_REQUEST_TIMEOUT": "soon"}, ""},
		{"negative attempts", map[string]string{"PSYCHINTAKE_RECONNECT_ATTEMPTS": "-1"}, ""},
		{"zero timeout", map[string]string{"PSYCHINTAKE_REQUEST_TIMEOUT": "0s"}, ""},
		{"malformed yaml", nil, "api_base_url: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := isolated(t, tt.environ)
			if tt.file != "" {
				writeFile(t, filepath.Join(opts.HomeDir, DefaultStateDirName, FileName), tt.file)
			}
			if _, err := Load(opts); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "INFO", "warn", "error"} {
		c := Config{LogLevel: lvl}
		if _, err := c.SlogLevel(); err != nil {
			t.Errorf("SlogLevel(%q): %v", lvl, err)
		}
	}
}

func TestEnsureStateDir(t *testing.T) {
	c := Config{StateDir: filepath.Join(t.TempDir(), "a", "b")}
	if err := c.EnsureStateDir(); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(c.StateDir)
	if err != nil || !info.IsDir() {
		t.Fatalf("state dir not created: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}
}

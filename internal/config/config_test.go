package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setRequired sets the minimum environment for a valid Load.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "token-abc")
	t.Setenv("OWNER_ID", "111")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DiscordToken != "token-abc" || cfg.OwnerID != "111" {
		t.Errorf("required fields: %+v", cfg)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr default: %q", cfg.ListenAddr)
	}
	if cfg.ProfileAPIURL != "https://users.roblox.com" {
		t.Errorf("ProfileAPIURL default: %q", cfg.ProfileAPIURL)
	}
	if cfg.ProfileHTTPTimeout != 5*time.Second {
		t.Errorf("ProfileHTTPTimeout default: %s", cfg.ProfileHTTPTimeout)
	}
	if cfg.PoolWorkers != 2 || cfg.PoolQueueDepth != 1024 {
		t.Errorf("pool defaults: %+v", cfg)
	}
	if cfg.JanitorInterval != time.Minute {
		t.Errorf("JanitorInterval default: %s", cfg.JanitorInterval)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("log defaults: %q %q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("POOL_WORKERS", "8")
	t.Setenv("JANITOR_INTERVAL", "30s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr: %q", cfg.ListenAddr)
	}
	if cfg.PoolWorkers != 8 {
		t.Errorf("PoolWorkers: %d", cfg.PoolWorkers)
	}
	if cfg.JanitorInterval != 30*time.Second {
		t.Errorf("JanitorInterval: %s", cfg.JanitorInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: %q", cfg.LogLevel)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("OWNER_ID", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DISCORD_TOKEN") {
		t.Errorf("got %v, want DISCORD_TOKEN error", err)
	}

	t.Setenv("DISCORD_TOKEN", "token-abc")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "OWNER_ID") {
		t.Errorf("got %v, want OWNER_ID error", err)
	}
}

func TestLoadFileSecret(t *testing.T) {
	t.Setenv("OWNER_ID", "111")
	t.Setenv("DISCORD_TOKEN", "")

	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  file-token\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DISCORD_TOKEN_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DiscordToken != "file-token" {
		t.Errorf("got %q, want trimmed file content", cfg.DiscordToken)
	}
}

func TestLoadFileSecretMissingFile(t *testing.T) {
	setRequired(t)
	t.Setenv("DISCORD_TOKEN_FILE", filepath.Join(t.TempDir(), "does-not-exist"))

	if _, err := Load(); err == nil {
		t.Error("unreadable secret file must fail Load")
	}
}

func TestStripEnvQuotes(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`"quoted"`, "quoted"},
		{`'quoted'`, "quoted"},
		{`plain`, "plain"},
		{`"mismatched'`, `"mismatched'`},
		{`"`, `"`},
		{``, ``},
		{`""`, ``},
	}
	for _, c := range cases {
		if got := stripEnvQuotes(c.in); got != c.want {
			t.Errorf("stripEnvQuotes(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestLoadStripsDockerQuoting(t *testing.T) {
	setRequired(t)
	t.Setenv("DISCORD_TOKEN", `"token-abc"`)
	t.Setenv("LISTEN_ADDR", `':8081'`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DiscordToken != "token-abc" {
		t.Errorf("DiscordToken: %q", cfg.DiscordToken)
	}
	if cfg.ListenAddr != ":8081" {
		t.Errorf("ListenAddr: %q", cfg.ListenAddr)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DiscordToken:       "t",
			OwnerID:            "1",
			ListenAddr:         ":8080",
			ProfileAPIURL:      "https://users.roblox.com",
			ProfileHTTPTimeout: 5 * time.Second,
			PoolWorkers:        2,
			PoolQueueDepth:     16,
			LogLevel:           "info",
			LogFormat:          "json",
			JanitorInterval:    time.Minute,
		}
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("baseline should validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad profile url", func(c *Config) { c.ProfileAPIURL = "users.roblox.com" }},
		{"zero timeout", func(c *Config) { c.ProfileHTTPTimeout = 0 }},
		{"zero workers", func(c *Config) { c.PoolWorkers = 0 }},
		{"too many workers", func(c *Config) { c.PoolWorkers = 65 }},
		{"zero queue", func(c *Config) { c.PoolQueueDepth = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"zero janitor interval", func(c *Config) { c.JanitorInterval = 0 }},
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := valid()
			c.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad addr", func(c *Config) { c.Viewer.HTTPAddr = "nope" }, "viewer.http_addr"},
		{"low bitrate", func(c *Config) { c.Player.DefaultBitrate = 100 }, "player.default_bitrate"},
		{"tick", func(c *Config) { c.Player.TickMS = 1 }, "player.tick_ms"},
		{"rate", func(c *Config) { c.Player.SampleRate = 11025 }, "player.sample_rate"},
		{"memory buffer", func(c *Config) { c.Player.MemoryBufferMB = 0 }, "player.memory_buffer_mb"},
		{"max buffer", func(c *Config) { c.Player.MaxBufferMB = 8 }, "player.max_buffer_mb"},
		{"provider", func(c *Config) { c.Speech.Provider = "polly" }, "speech.provider"},
		{"http provider without url", func(c *Config) { c.Speech.Provider = "http" }, "speech.url"},
		{"no broker no session url", func(c *Config) { c.Broker.Enabled = false }, "realtime.session_url"},
		{"session url scheme", func(c *Config) { c.Realtime.SessionURL = "ftp://x" }, "realtime.session_url"},
		{"vad", func(c *Config) { c.Realtime.VADThreshold = 2 }, "realtime.vad_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadKeepsDefaultsAndStripsBOM(t *testing.T) {
	p := filepath.Join(t.TempDir(), FileName)
	body := "\xEF\xBB\xBF" + `{"player": {"skip_seconds": 15}}`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Player.SkipSeconds != 15 {
		t.Fatalf("skip_seconds = %d", cfg.Player.SkipSeconds)
	}
	if cfg.Player.DefaultBitrate != 128000 || cfg.Realtime.TrailingChars != 1000 {
		t.Fatalf("defaults lost: %+v", cfg.Player)
	}
}

func TestEnsureCreatesDefault(t *testing.T) {
	p := filepath.Join(t.TempDir(), FileName)
	_, created, err := Ensure(p)
	if err != nil || !created {
		t.Fatalf("Ensure = created %v, %v", created, err)
	}
	if _, created, err = Ensure(p); err != nil || created {
		t.Fatalf("second Ensure = created %v, %v", created, err)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	env := EnvElevenLabsKey + "=from-dotenv\n" + EnvHTTPAddr + "=127.0.0.1:9999\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvOpenAIKey, "from-env")
	// registered so the values godotenv sets are restored after the test
	t.Setenv(EnvElevenLabsKey, "")
	os.Unsetenv(EnvElevenLabsKey)
	t.Setenv(EnvHTTPAddr, "")
	os.Unsetenv(EnvHTTPAddr)

	if err := LoadEnv(dir); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Speech.APIKey != "from-dotenv" || cfg.Broker.OpenAIKey != "from-env" {
		t.Fatalf("keys = %q / %q", cfg.Speech.APIKey, cfg.Broker.OpenAIKey)
	}
	if cfg.Viewer.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("addr = %q", cfg.Viewer.HTTPAddr)
	}
	if got := cfg.SessionURL(); got != "http://127.0.0.1:9999/session" {
		t.Fatalf("SessionURL = %q", got)
	}

	if err := LoadEnv(t.TempDir()); err != nil {
		t.Fatalf("LoadEnv without file: %v", err)
	}
}

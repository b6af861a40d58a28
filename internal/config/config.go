package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/685Degrees/echo-reader/internal/util"
)

// FileName is the config file inside the data directory.
const FileName = "echo.json"

type Config struct {
	Paths    Paths    `json:"paths"`
	Viewer   Viewer   `json:"viewer"`
	Player   Player   `json:"player"`
	Speech   Speech   `json:"speech"`
	Realtime Realtime `json:"realtime"`
	Broker   Broker   `json:"broker"`
}

type Paths struct {
	// Text files dropped here are imported as books. Relative to the data dir.
	Inbox string `json:"inbox"`

	// Optional Lua script with a normalize(text) function. Relative to the data dir.
	NormalizeScript string `json:"normalize_script"`
}

type Viewer struct {
	HTTPAddr    string `json:"http_addr"`
	Debug       bool   `json:"debug"`
	OpenBrowser bool   `json:"open_browser"`
}

type Player struct {
	// Bits per second assumed for progress estimates when a stream doesn't
	// reveal its own bitrate.
	DefaultBitrate int     `json:"default_bitrate"`
	PrimeSeconds   float64 `json:"prime_seconds"`
	TickMS         int     `json:"tick_ms"`
	ChunkBytes     int     `json:"chunk_bytes"`
	SkipSeconds    int     `json:"skip_seconds"`
	// Output device buffer. Larger values survive scheduling hiccups but make
	// pause less precise.
	OutputBufferMS int `json:"output_buffer_ms"`
	SampleRate     int `json:"sample_rate"`
	// Decoded audio kept in RAM per book; the rest goes to a temp file.
	MemoryBufferMB int `json:"memory_buffer_mb"`
	// Largest decoded book. 4096 MiB is about 6.7 h of 44.1 kHz stereo.
	MaxBufferMB int `json:"max_buffer_mb"`
}

type Speech struct {
	// "elevenlabs" calls the provider directly; "http" posts to URL, which is
	// any server speaking the /api/tts contract.
	Provider string `json:"provider"`
	URL      string `json:"url"`
	APIKey   string `json:"api_key,omitempty"`
	Voice    string `json:"voice"`
	Model    string `json:"model"`
	// Requests per minute when a long text is synthesized in chunks. 0 = unpaced.
	RequestsPerMinute int `json:"requests_per_minute"`
}

type Realtime struct {
	// Credential endpoint. Empty means the built-in broker on viewer.http_addr.
	SessionURL   string   `json:"session_url"`
	NegotiateURL string   `json:"negotiate_url"`
	Model        string   `json:"model"`
	ICEServers   []string `json:"ice_servers"`

	TrailingChars  int    `json:"trailing_chars"`
	LookaheadChars int    `json:"lookahead_chars"`
	Preamble       string `json:"preamble,omitempty"`

	VADThreshold      float64 `json:"vad_threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

// Broker holds the provider keys. These never leave the process; clients get
// ephemeral credentials and proxied audio.
type Broker struct {
	Enabled           bool   `json:"enabled"`
	OpenAIBaseURL     string `json:"openai_base_url"`
	OpenAIKey         string `json:"openai_api_key,omitempty"`
	Voice             string `json:"voice"`
	ElevenLabsURL     string `json:"elevenlabs_base_url"`
	SessionsPerMinute int    `json:"sessions_per_minute"`
}

func Default() Config {
	return Config{
		Paths: Paths{
			Inbox:           "inbox",
			NormalizeScript: "normalize.lua",
		},
		Viewer: Viewer{
			HTTPAddr: "127.0.0.1:8790",
		},
		Player: Player{
			DefaultBitrate: 128000,
			PrimeSeconds:   0.5,
			TickMS:         250,
			ChunkBytes:     32 * 1024,
			SkipSeconds:    30,
			OutputBufferMS: 200,
			SampleRate:     44100,
			MemoryBufferMB: 32,
			MaxBufferMB:    4096,
		},
		Speech: Speech{
			Provider:          "elevenlabs",
			Voice:             "21m00Tcm4TlvDq8ikWAM",
			Model:             "eleven_turbo_v2_5",
			RequestsPerMinute: 20,
		},
		Realtime: Realtime{
			NegotiateURL:      "https://api.openai.com/v1/realtime",
			Model:             "gpt-4o-realtime-preview-2024-12-17",
			ICEServers:        []string{"stun:stun.l.google.com:19302"},
			TrailingChars:     1000,
			LookaheadChars:    200,
			VADThreshold:      0.5,
			PrefixPaddingMS:   300,
			SilenceDurationMS: 500,
		},
		Broker: Broker{
			Enabled:           true,
			OpenAIBaseURL:     "https://api.openai.com",
			Voice:             "alloy",
			ElevenLabsURL:     "https://api.elevenlabs.io",
			SessionsPerMinute: 10,
		},
	}
}

func (c *Config) Validate() error {
	// Paths
	if strings.TrimSpace(c.Paths.Inbox) == "" {
		return errors.New("paths.inbox is required")
	}

	// Viewer
	if strings.TrimSpace(c.Viewer.HTTPAddr) == "" {
		return errors.New("viewer.http_addr is required")
	}
	if _, _, err := net.SplitHostPort(c.Viewer.HTTPAddr); err != nil {
		return fmt.Errorf("viewer.http_addr: %w", err)
	}

	// Player
	if c.Player.DefaultBitrate < 8000 {
		return errors.New("player.default_bitrate must be >= 8000")
	}
	if c.Player.PrimeSeconds <= 0 || c.Player.PrimeSeconds > 10 {
		return errors.New("player.prime_seconds must be in (0, 10]")
	}
	if c.Player.TickMS < 10 || c.Player.TickMS > 5000 {
		return errors.New("player.tick_ms must be 10..5000")
	}
	if c.Player.ChunkBytes < 512 {
		return errors.New("player.chunk_bytes must be >= 512")
	}
	if c.Player.SkipSeconds <= 0 {
		return errors.New("player.skip_seconds must be > 0")
	}
	if c.Player.OutputBufferMS < 0 {
		return errors.New("player.output_buffer_ms must be >= 0")
	}
	if c.Player.MemoryBufferMB < 1 {
		return errors.New("player.memory_buffer_mb must be >= 1")
	}
	if c.Player.MaxBufferMB < c.Player.MemoryBufferMB {
		return errors.New("player.max_buffer_mb must be >= player.memory_buffer_mb")
	}
	switch c.Player.SampleRate {
	case 22050, 24000, 44100, 48000:
	default:
		return errors.New("player.sample_rate must be 22050, 24000, 44100 or 48000")
	}

	// Speech
	switch c.Speech.Provider {
	case "elevenlabs":
	case "http":
		if err := validateURL(c.Speech.URL); err != nil {
			return fmt.Errorf("speech.url: %w", err)
		}
	default:
		return fmt.Errorf("speech.provider %q: must be elevenlabs or http", c.Speech.Provider)
	}
	if c.Speech.RequestsPerMinute < 0 {
		return errors.New("speech.requests_per_minute must be >= 0")
	}

	// Realtime
	if s := strings.TrimSpace(c.Realtime.SessionURL); s != "" {
		if err := validateURL(s); err != nil {
			return fmt.Errorf("realtime.session_url: %w", err)
		}
	} else if !c.Broker.Enabled {
		return errors.New("realtime.session_url is required when the broker is disabled")
	}
	if err := validateURL(c.Realtime.NegotiateURL); err != nil {
		return fmt.Errorf("realtime.negotiate_url: %w", err)
	}
	if strings.TrimSpace(c.Realtime.Model) == "" {
		return errors.New("realtime.model is required")
	}
	if c.Realtime.TrailingChars <= 0 {
		return errors.New("realtime.trailing_chars must be > 0")
	}
	if c.Realtime.LookaheadChars < 0 {
		return errors.New("realtime.lookahead_chars must be >= 0")
	}
	if c.Realtime.VADThreshold < 0 || c.Realtime.VADThreshold > 1 {
		return errors.New("realtime.vad_threshold must be 0..1")
	}

	// Broker
	if c.Broker.Enabled {
		if err := validateURL(c.Broker.OpenAIBaseURL); err != nil {
			return fmt.Errorf("broker.openai_base_url: %w", err)
		}
		if err := validateURL(c.Broker.ElevenLabsURL); err != nil {
			return fmt.Errorf("broker.elevenlabs_base_url: %w", err)
		}
		if c.Broker.SessionsPerMinute < 0 {
			return errors.New("broker.sessions_per_minute must be >= 0")
		}
	}

	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// Environment variables that override file values.
const (
	EnvElevenLabsKey = "ELEVENLABS_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvHTTPAddr      = "ECHO_HTTP_ADDR"
)

// LoadEnv reads <dir>/.env into the process environment. Variables already
// set win over the file. A missing file is not an error.
func LoadEnv(dir string) error {
	p := filepath.Join(dir, ".env")
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(p); err != nil {
		return fmt.Errorf("load %s: %w", p, err)
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvElevenLabsKey)); v != "" {
		c.Speech.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvOpenAIKey)); v != "" {
		c.Broker.OpenAIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHTTPAddr)); v != "" {
		c.Viewer.HTTPAddr = v
	}
}

// SessionURL is the credential endpoint, defaulting to the built-in broker.
func (c *Config) SessionURL() string {
	if s := strings.TrimSpace(c.Realtime.SessionURL); s != "" {
		return s
	}
	return util.NormalizeURL(c.Viewer.HTTPAddr) + "/session"
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, false, err
	}
	return cfg, true, nil
}

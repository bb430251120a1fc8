package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Matching    MatchingConfig    `toml:"matching"`
	Sync        SyncConfig        `toml:"sync"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	YouTube YouTubeConfig `toml:"youtube"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// YouTubeConfig contains YouTube Music proxy settings.
type YouTubeConfig struct {
	ProxyURL    string `toml:"proxy_url"`
	HeadersPath string `toml:"headers_path"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// MatchingConfig tunes the fuzzy-matching engine. The recall/precision
// tradeoff is user-facing, so none of these are hardcoded.
type MatchingConfig struct {
	TitleWeight     float64 `toml:"title_weight"`
	ArtistWeight    float64 `toml:"artist_weight"`
	DurationWeight  float64 `toml:"duration_weight"`
	FeaturedWeight  float64 `toml:"featured_weight"`
	AcceptThreshold float64 `toml:"accept_threshold"`
	TieMargin       float64 `toml:"tie_margin"`
	SearchLimit     int     `toml:"search_limit"`
}

// SyncConfig controls orchestration: concurrency, rate limits, and retries.
type SyncConfig struct {
	Workers           int     `toml:"workers"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	MaxAttempts       int     `toml:"max_attempts"`
	BackoffBaseMS     int     `toml:"backoff_base_ms"`
	BackoffCapMS      int     `toml:"backoff_cap_ms"`
	AdapterTimeoutMS  int     `toml:"adapter_timeout_ms"`
}

// ServerConfig contains settings for the OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ValidateMatching checks the matching section for out-of-range knobs.
// Weights must be non-negative; thresholds and margins must sit in [0,1].
func (c *Config) ValidateMatching() error {
	m := c.Matching
	for name, w := range map[string]float64{
		"title_weight":    m.TitleWeight,
		"artist_weight":   m.ArtistWeight,
		"duration_weight": m.DurationWeight,
		"featured_weight": m.FeaturedWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %f", ErrInvalidConfig, name, w)
		}
	}
	if m.AcceptThreshold <= 0 || m.AcceptThreshold > 1 {
		return fmt.Errorf("%w: accept_threshold must be in (0,1], got %f", ErrInvalidConfig, m.AcceptThreshold)
	}
	if m.TieMargin < 0 || m.TieMargin >= 1 {
		return fmt.Errorf("%w: tie_margin must be in [0,1), got %f", ErrInvalidConfig, m.TieMargin)
	}
	if m.SearchLimit <= 0 {
		return fmt.Errorf("%w: search_limit must be positive, got %d", ErrInvalidConfig, m.SearchLimit)
	}
	return nil
}

// ValidateSync checks the sync section before a job is allowed to start.
func (c *Config) ValidateSync() error {
	s := c.Sync
	if s.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, s.Workers)
	}
	if s.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: requests_per_second must be positive, got %f", ErrInvalidConfig, s.RequestsPerSecond)
	}
	if s.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max_attempts must be positive, got %d", ErrInvalidConfig, s.MaxAttempts)
	}
	if s.BackoffBaseMS <= 0 || s.BackoffCapMS < s.BackoffBaseMS {
		return fmt.Errorf("%w: backoff bounds invalid (base %dms, cap %dms)", ErrInvalidConfig, s.BackoffBaseMS, s.BackoffCapMS)
	}
	if s.AdapterTimeoutMS <= 0 {
		return fmt.Errorf("%w: adapter_timeout_ms must be positive, got %d", ErrInvalidConfig, s.AdapterTimeoutMS)
	}
	return nil
}

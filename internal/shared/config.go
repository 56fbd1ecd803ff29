package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Copy        CopyConfig        `toml:"copy"`
	Poll        PollConfig        `toml:"poll"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Drive DriveConfig `toml:"drive"`
}

// DriveConfig contains Google Drive OAuth2 credentials and the path of the cached token.
type DriveConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	TokenPath    string `toml:"token_path"`
	BaseURL      string `toml:"base_url"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// URL returns the base URL clients use to reach the server.
func (s ServerConfig) URL() string {
	host := s.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, s.Port)
}

// CopyConfig contains copy engine and job registry settings.
type CopyConfig struct {
	Concurrency        int     `toml:"concurrency"`          // Default workers per job, clamped to 1..10
	CallTimeoutSeconds int     `toml:"call_timeout_seconds"` // Bound on each backend call
	RateLimit          float64 `toml:"rate_limit"`           // Backend requests per second, 0 disables
	DisplayLimit       int     `toml:"display_limit"`        // Items rendered per job snapshot
	GCMaxAgeMinutes    int     `toml:"gc_max_age_minutes"`   // Terminal jobs older than this are collected
	GCIntervalMinutes  int     `toml:"gc_interval_minutes"`
}

// CallTimeout returns the per-call timeout as a [time.Duration].
func (c CopyConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// GCMaxAge returns the job retention window as a [time.Duration].
func (c CopyConfig) GCMaxAge() time.Duration {
	return time.Duration(c.GCMaxAgeMinutes) * time.Minute
}

// GCInterval returns the collection period as a [time.Duration].
func (c CopyConfig) GCInterval() time.Duration {
	return time.Duration(c.GCIntervalMinutes) * time.Minute
}

// PollConfig contains client-side polling cadence.
type PollConfig struct {
	IntervalMS int `toml:"interval_ms"`
	BackoffMS  int `toml:"backoff_ms"`
}

// Interval returns the regular polling interval.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMS) * time.Millisecond
}

// Backoff returns the interval used after a transport fault.
func (p PollConfig) Backoff() time.Duration {
	return time.Duration(p.BackoffMS) * time.Millisecond
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}
	return config, nil
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

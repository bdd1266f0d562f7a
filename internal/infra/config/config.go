// Package config provides configuration loading from YAML files.
package config

import (
	"net/url"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Poller   PollerConfig   `yaml:"poller"`
	Player   PlayerConfig   `yaml:"player"`
	Fallback FallbackConfig `yaml:"fallback"`
	Server   ServerConfig   `yaml:"server"`
	Admin    AdminConfig    `yaml:"admin"`
	Request  RequestConfig  `yaml:"request"`
}

// APIConfig represents the remote jukebox API configuration.
type APIConfig struct {
	BaseURL   string `yaml:"base_url" validate:"required,url"`
	TimeoutMs int    `yaml:"timeout_ms" validate:"gte=0"` // 0 leaves timeouts to the transport
}

// PollerConfig represents queue polling configuration.
type PollerConfig struct {
	IntervalMs int `yaml:"interval_ms" default:"3000" validate:"gte=250,lte=60000"`
}

// PlayerConfig represents player backend configuration.
type PlayerConfig struct {
	Backend           string    `yaml:"backend" default:"screen" validate:"oneof=screen mpv"`
	Volume            *int      `yaml:"volume" default:"80" validate:"gte=0,lte=100"` // 0 mutes
	AcquireTimeoutMs  int       `yaml:"acquire_timeout_ms" default:"15000" validate:"gte=100"`
	CreateTimeoutMs   int       `yaml:"create_timeout_ms" default:"12000" validate:"gte=100"`
	FallbackSkipLimit *int      `yaml:"fallback_skip_limit" default:"8" validate:"gte=0,lte=100"` // 0 disables skipping
	MPV               MPVConfig `yaml:"mpv"`
}

// MPVConfig represents the mpv backend configuration.
type MPVConfig struct {
	Executable string   `yaml:"executable" default:"mpv"`
	SocketPath string   `yaml:"socket_path"`
	Windowed   bool     `yaml:"windowed"` // Fullscreen unless set
	ExtraArgs  []string `yaml:"extra_args"`
}

// FallbackConfig represents fallback playlist configuration.
type FallbackConfig struct {
	DefaultPlaylist string `yaml:"default_playlist"` // Playlist id or URL used when the server supplies none
}

// ServerConfig represents the host control server configuration.
type ServerConfig struct {
	Addr      string      `yaml:"addr" default:":8090"`
	PublicURL string      `yaml:"public_url" validate:"omitempty,url"` // Requester page encoded in the QR code
	Advertise bool        `yaml:"advertise" default:"false"`
	Instance  string      `yaml:"instance" default:"rockola-host"`
	Hooks     HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// RequestConfig represents requester-side configuration.
type RequestConfig struct {
	TableCode        string `yaml:"table_code" default:"BAR" validate:"required"`
	RequestedByMax   int    `yaml:"requested_by_max" default:"32" validate:"gte=1"`
	SearchLimit      int    `yaml:"search_limit" default:"20" validate:"gte=1,lte=100"`
	SearchMinChars   int    `yaml:"search_min_chars" default:"2" validate:"gte=1"`
	SearchDebounceMs int    `yaml:"search_debounce_ms" default:"350" validate:"gte=0"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("ROCKOLA_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("ROCKOLA_ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("ROCKOLA_PUBLIC_URL"); v != "" {
		c.Server.PublicURL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	return validateBaseURL(c.API.BaseURL)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, "failed to parse api.base_url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Newf("api.base_url must be http or https (got %q)", u.Scheme)
	}
	return nil
}

// RequesterConfig is the part of the configuration a requester client reads.
// The host-only sections may be present in the file and are ignored.
type RequesterConfig struct {
	API     APIConfig     `yaml:"api"`
	Request RequestConfig `yaml:"request"`
}

// LoadRequester loads the requester configuration from a YAML file.
func LoadRequester(path string) (*RequesterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return ParseRequester(data)
}

// ParseRequester parses the requester configuration from YAML bytes.
func ParseRequester(data []byte) (*RequesterConfig, error) {
	var cfg RequesterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	if v := os.Getenv("ROCKOLA_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	if err := validateBaseURL(cfg.API.BaseURL); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// PollInterval returns the queue polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poller.IntervalMs) * time.Millisecond
}

// PlayerVolume returns the configured volume. An explicit 0 is kept.
func (c *Config) PlayerVolume() int {
	if c.Player.Volume == nil {
		return 80
	}
	return *c.Player.Volume
}

// FallbackSkipLimit returns the embed-blocked skip limit. An explicit 0 is kept.
func (c *Config) FallbackSkipLimit() int {
	if c.Player.FallbackSkipLimit == nil {
		return 8
	}
	return *c.Player.FallbackSkipLimit
}

// APITimeout returns the HTTP client timeout, zero when unset.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutMs) * time.Millisecond
}

// AcquireTimeout returns the player capability acquisition timeout.
func (c *Config) AcquireTimeout() time.Duration {
	return time.Duration(c.Player.AcquireTimeoutMs) * time.Millisecond
}

// CreateTimeout returns the player construction timeout.
func (c *Config) CreateTimeout() time.Duration {
	return time.Duration(c.Player.CreateTimeoutMs) * time.Millisecond
}

// APITimeout returns the HTTP client timeout, zero when unset.
func (c *RequesterConfig) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutMs) * time.Millisecond
}

// SearchDebounce returns the interactive search debounce delay.
func (c *RequesterConfig) SearchDebounce() time.Duration {
	return time.Duration(c.Request.SearchDebounceMs) * time.Millisecond
}

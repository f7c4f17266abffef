package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/streamwarden/streamwarden/internal/profile"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultRequestTimeout    = 15 * time.Second
	DefaultProfileInterval   = 10 * time.Second
	DefaultProfileDuration   = 60 * time.Second
	DefaultProcessorsDir     = "processors"
	DefaultLivePort          = 8080
	DefaultBroadcastInterval = 2 * time.Second
)

// DefaultConnectionNames is the fallback known-connection set used by the
// validator when the control plane cannot be reached to list connections.
var DefaultConnectionNames = []string{"sample_stream_solar", "kgShardedCluster01"}

// Config is the top-level configuration. Fields map 1:1 to
// config.example.yaml.
type Config struct {
	ControlPlane ControlPlaneConfig `yaml:"control_plane"`
	Processors   ProcessorsConfig   `yaml:"processors"`
	Profile      ProfileConfig      `yaml:"profile"`
	Live         LiveConfig         `yaml:"live"`
}

// ControlPlaneConfig describes the managed stream-processing service the
// tool talks to.
type ControlPlaneConfig struct {
	// Endpoint is the base URL of the control-plane API, up to but not
	// including the workspace segment.
	Endpoint string `yaml:"endpoint"`

	// Workspace is the stream-processing workspace (instance) name. All
	// processor and connection operations are scoped to it.
	Workspace string `yaml:"workspace"`

	// Auth configures how requests to the control plane are authenticated.
	Auth AuthConfig `yaml:"auth"`

	// Timeout bounds every individual HTTP request.
	Timeout time.Duration `yaml:"timeout"`

	// MetricsEndpoint, when set, points at a Prometheus exposition endpoint
	// serving per-processor stats. Self-hosted deployments use this instead
	// of the control-plane stats API for profiling.
	MetricsEndpoint string `yaml:"metrics_endpoint"`
}

// AuthConfig specifies the authentication mode for the control plane.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// API key fields — used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// Bearer token fields — used when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields — used when Mode == "basic".
	// Username is the literal username (safe to store in config).
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// ProcessorsConfig locates local pipeline definitions and names the
// connections the validator accepts.
type ProcessorsConfig struct {
	// Dir is the directory holding <name>.json pipeline definition files.
	Dir string `yaml:"dir"`

	// Connections overrides the known-connection set for validation.
	// Empty means: ask the control plane, falling back to
	// DefaultConnectionNames when that fails.
	Connections []string `yaml:"connections"`

	// Strict promotes missing-output-stage findings from warnings to errors.
	Strict bool `yaml:"strict"`
}

// ProfileConfig holds the defaults for profiling runs. Flags on the profile
// subcommand override these per run.
type ProfileConfig struct {
	// Interval is the gap between samples.
	Interval time.Duration `yaml:"interval"`

	// Duration is the total run length. Zero means run until interrupted.
	Duration time.Duration `yaml:"duration"`

	// Thresholds raise alerts the moment a sample violates them.
	Thresholds profile.Thresholds `yaml:"thresholds"`

	// Webhooks receive every raised alert in addition to the log output.
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one alert delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// LiveConfig configures the WebSocket endpoint that streams profiling ticks.
type LiveConfig struct {
	// Port is the HTTP listen port. Zero disables the live endpoint.
	Port int `yaml:"port"`

	// BroadcastInterval is how often connected clients receive the latest tick.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// ConnectionNames returns the configured connection override, or the
// built-in fallback set when none is configured.
func (c *Config) ConnectionNames() []string {
	if len(c.Processors.Connections) > 0 {
		return c.Processors.Connections
	}
	return DefaultConnectionNames
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		ControlPlane: ControlPlaneConfig{
			Timeout: DefaultRequestTimeout,
		},
		Processors: ProcessorsConfig{
			Dir: DefaultProcessorsDir,
		},
		Profile: ProfileConfig{
			Interval: DefaultProfileInterval,
			Duration: DefaultProfileDuration,
		},
		Live: LiveConfig{
			Port:              DefaultLivePort,
			BroadcastInterval: DefaultBroadcastInterval,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.ControlPlane.Endpoint == "" {
		return fmt.Errorf("control_plane.endpoint is required")
	}
	if cfg.ControlPlane.Workspace == "" {
		return fmt.Errorf("control_plane.workspace is required")
	}
	if cfg.ControlPlane.Timeout <= 0 {
		return fmt.Errorf("control_plane.timeout must be positive")
	}
	switch cfg.ControlPlane.Auth.Mode {
	case "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("control_plane.auth: unknown mode %q", cfg.ControlPlane.Auth.Mode)
	}
	if cfg.ControlPlane.Auth.Mode == "apikey" && cfg.ControlPlane.Auth.Header == "" {
		return fmt.Errorf("control_plane.auth: apikey mode requires header")
	}
	if cfg.Processors.Dir == "" {
		return fmt.Errorf("processors.dir is required")
	}
	if cfg.Profile.Interval <= 0 {
		return fmt.Errorf("profile.interval must be positive")
	}
	if cfg.Profile.Duration < 0 {
		return fmt.Errorf("profile.duration must not be negative")
	}
	for i, wh := range cfg.Profile.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("profile.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}
	if cfg.Live.Port < 0 || cfg.Live.Port > 65535 {
		return fmt.Errorf("live.port %d out of range", cfg.Live.Port)
	}
	if cfg.Live.Port != 0 && cfg.Live.BroadcastInterval <= 0 {
		return fmt.Errorf("live.broadcast_interval must be positive")
	}
	return nil
}

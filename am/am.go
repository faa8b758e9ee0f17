// Package am loads sprout configuration.
//
// Values are layered with viper: built-in defaults, then system, user and
// project TOML files, then SPROUT_* environment variables.
package am

// Config represents the core sprout configuration
type Config struct {
	Stream  StreamConfig  `mapstructure:"stream" json:"stream" toml:"stream" yaml:"stream"`
	Buffer  BufferConfig  `mapstructure:"buffer" json:"buffer" toml:"buffer" yaml:"buffer"`
	Graph   GraphConfig   `mapstructure:"graph" json:"graph" toml:"graph" yaml:"graph"`
	Backend BackendConfig `mapstructure:"backend" json:"backend" toml:"backend" yaml:"backend"`
	Server  ServerConfig  `mapstructure:"server" json:"server" toml:"server" yaml:"server"`
	Log     LogConfig     `mapstructure:"log" json:"log" toml:"log" yaml:"log"`
}

// StreamConfig configures the event stream transport
type StreamConfig struct {
	// Agent service root (e.g., "http://localhost:8000")
	BaseURL string `mapstructure:"base_url" json:"base_url" toml:"base_url" yaml:"base_url"`

	// Time allowed for response headers
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds" json:"connect_timeout_seconds" toml:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`

	// Largest single line accepted from the stream
	MaxFrameBytes int `mapstructure:"max_frame_bytes" json:"max_frame_bytes" toml:"max_frame_bytes" yaml:"max_frame_bytes"`

	// Permit localhost and RFC1918 targets
	AllowPrivateHosts bool `mapstructure:"allow_private_hosts" json:"allow_private_hosts" toml:"allow_private_hosts" yaml:"allow_private_hosts"`
}

// BufferConfig configures the mutation batching window
type BufferConfig struct {
	WindowMS int `mapstructure:"window_ms" json:"window_ms" toml:"window_ms" yaml:"window_ms"`
}

// GraphConfig configures the graph store
type GraphConfig struct {
	// How long a removed node stays visible as removing
	RemovalGraceMS int `mapstructure:"removal_grace_ms" json:"removal_grace_ms" toml:"removal_grace_ms" yaml:"removal_grace_ms"`

	// Mastery score at which a node counts as complete
	MasteryThreshold float64 `mapstructure:"mastery_threshold" json:"mastery_threshold" toml:"mastery_threshold" yaml:"mastery_threshold"`
}

// BackendConfig configures the REST backend used for refreshes
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url" json:"base_url" toml:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds" toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// ServerConfig configures the renderer hub started by "sprout serve"
type ServerConfig struct {
	Addr string `mapstructure:"addr" json:"addr" toml:"addr" yaml:"addr"`

	// Origin prefixes accepted for WebSocket upgrades; requests without an Origin are always accepted
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins" toml:"allowed_origins" yaml:"allowed_origins"`
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json" json:"json" toml:"json" yaml:"json"`
}

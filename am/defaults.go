package am

import "github.com/spf13/viper"

// Built-in default values. Exported so components can fall back to them
// when constructed without a loaded Config.
const (
	DefaultStreamBaseURL         = "http://localhost:8000"
	DefaultConnectTimeoutSeconds = 30
	DefaultMaxFrameBytes         = 1 << 20 // 1 MiB
	DefaultBufferWindowMS        = 1000
	DefaultRemovalGraceMS        = 400
	DefaultMasteryThreshold      = 0.7
	DefaultBackendBaseURL        = "http://localhost:8000/backend-api"
	DefaultBackendTimeoutSeconds = 30
	DefaultServerAddr            = "localhost:8710"
	configDirName                = ".sprout"
	envPrefix                    = "SPROUT"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Stream transport defaults
	v.SetDefault("stream.base_url", DefaultStreamBaseURL)
	v.SetDefault("stream.connect_timeout_seconds", DefaultConnectTimeoutSeconds)
	v.SetDefault("stream.max_frame_bytes", DefaultMaxFrameBytes)
	v.SetDefault("stream.allow_private_hosts", true) // agent service usually runs locally

	// Mutation buffer defaults
	v.SetDefault("buffer.window_ms", DefaultBufferWindowMS)

	// Graph store defaults
	v.SetDefault("graph.removal_grace_ms", DefaultRemovalGraceMS)
	v.SetDefault("graph.mastery_threshold", DefaultMasteryThreshold)

	// Backend defaults
	v.SetDefault("backend.base_url", DefaultBackendBaseURL)
	v.SetDefault("backend.timeout_seconds", DefaultBackendTimeoutSeconds)

	// Renderer hub defaults
	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.allowed_origins", []string{"http://localhost", "https://localhost", "http://127.0.0.1"})

	// Logging defaults
	v.SetDefault("log.json", false)
}

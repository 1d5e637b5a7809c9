package config

import "time"

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

const (
	EnvPrefix      = "STORYBOOK"
	ConfigName     = "storybook"
	DefaultAddr    = ":8080"
	DefaultMaxPage = 5

	DefaultHeartbeatInterval = 15 * time.Second
	DefaultIdleTimeout       = 10 * time.Minute
	DefaultReadTimeout       = 30 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultMaxBodyBytes      = 64 << 10
)

// Executor kinds.
const (
	ExecutorGPTScript = "gptscript"
	ExecutorReplay    = "replay"
)

// Config is the full storybook configuration shared by both binaries.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Client   ClientConfig   `mapstructure:"client"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	// RateLimitPerMinute caps run requests per client address; zero disables.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int `mapstructure:"rate_limit_burst"`
}

// StreamConfig bounds a single event stream.
type StreamConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// IdleTimeout aborts a run when the executor emits nothing for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// MaxDuration caps a whole stream; zero means unlimited.
	MaxDuration   time.Duration `mapstructure:"max_duration"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	MaxPages      int           `mapstructure:"max_pages"`
}

// ExecutorConfig selects and configures the job executor.
type ExecutorConfig struct {
	Kind        string        `mapstructure:"kind"`
	Binary      string        `mapstructure:"binary"`
	Script      string        `mapstructure:"script"`
	WorkDir     string        `mapstructure:"workdir"`
	ExtraArgs   []string      `mapstructure:"extra_args"`
	ReplayFile  string        `mapstructure:"replay_file"`
	ReplayDelay time.Duration `mapstructure:"replay_delay"`
}

// ClientConfig holds the CLI defaults.
type ClientConfig struct {
	ServerURL string `mapstructure:"server_url"`
	Pages     int    `mapstructure:"pages"`
	// MaxPages bounds the page count the CLI offers and accepts locally. It
	// should match the server's stream.max_pages.
	MaxPages  int    `mapstructure:"max_pages"`
	Path      string `mapstructure:"path"`
	Plain     bool   `mapstructure:"plain"`
	Record    string `mapstructure:"record"`
	WebSocket bool   `mapstructure:"websocket"`
}

// Metadata records where each setting came from.
type Metadata struct {
	sources  map[string]ValueSource
	file     string
	loadedAt time.Time
}

// Source returns the origin of key (for example "stream.idle_timeout").
func (m Metadata) Source(key string) ValueSource {
	if src, ok := m.sources[key]; ok {
		return src
	}
	return SourceDefault
}

// ConfigFile is the file that was read, or "" when none was found.
func (m Metadata) ConfigFile() string { return m.file }

// LoadedAt is when the configuration was resolved.
func (m Metadata) LoadedAt() time.Time { return m.loadedAt }

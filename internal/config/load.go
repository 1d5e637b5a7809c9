package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// Overrides are caller-supplied values keyed like the file ("stream.max_pages").
type Overrides map[string]any

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup   EnvLookup
	overrides   Overrides
	configPath  string
	searchPaths []string
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithOverrides applies caller overrides that take highest precedence.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// WithConfigPath forces the loader to read configuration from a specific file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = path
	}
}

// WithSearchPaths replaces the directories searched for storybook.yaml.
func WithSearchPaths(dirs ...string) Option {
	return func(o *loadOptions) {
		o.searchPaths = dirs
	}
}

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// DefaultSearchPaths are the working directory and $HOME/.storybook.
func DefaultSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".storybook"))
	}
	return paths
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            DefaultAddr,
			Environment:     "development",
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     DefaultReadTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			MaxBodyBytes:    DefaultMaxBodyBytes,
			RateLimitBurst:  4,
		},
		Stream: StreamConfig{
			HeartbeatInterval: DefaultHeartbeatInterval,
			IdleTimeout:       DefaultIdleTimeout,
			MaxConcurrent:     16,
			MaxPages:          DefaultMaxPage,
		},
		Executor: ExecutorConfig{
			Kind:      ExecutorGPTScript,
			Binary:    "gptscript",
			Script:    "story-book.gpt",
			ExtraArgs: []string{},
		},
		Client: ClientConfig{
			ServerURL: "http://localhost:8080",
			Pages:     1,
			MaxPages:  DefaultMaxPage,
			Path:      "stories",
		},
	}
}

// Load resolves the configuration. Precedence, lowest first: defaults, the
// config file, STORYBOOK_* environment variables, overrides.
func Load(opts ...Option) (Config, Metadata, error) {
	options := loadOptions{envLookup: DefaultEnvLookup}
	for _, opt := range opts {
		opt(&options)
	}
	if options.searchPaths == nil {
		options.searchPaths = DefaultSearchPaths()
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}
	v := viper.New()
	setDefaults(v, Defaults())

	if err := readFile(v, options); err != nil {
		return Config{}, Metadata{}, err
	}
	meta.file = v.ConfigFileUsed()
	for _, key := range v.AllKeys() {
		if v.InConfig(key) {
			meta.sources[key] = SourceFile
		}
	}

	for _, key := range v.AllKeys() {
		if value, ok := options.envLookup(EnvName(key)); ok && strings.TrimSpace(value) != "" {
			v.Set(key, value)
			meta.sources[key] = SourceEnv
		}
	}

	for key, value := range options.overrides {
		key = strings.ToLower(key)
		v.Set(key, value)
		meta.sources[key] = SourceOverride
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, Metadata{}, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, Metadata{}, err
	}
	return cfg, meta, nil
}

// EnvName maps a config key to its environment variable.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Keys lists every recognised config key in order.
func Keys() []string {
	v := viper.New()
	setDefaults(v, Defaults())
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

func readFile(v *viper.Viper, options loadOptions) error {
	if options.configPath != "" {
		v.SetConfigFile(options.configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", options.configPath, err)
		}
		return nil
	}

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	for _, dir := range options.searchPaths {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.environment", d.Server.Environment)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.rate_limit_per_minute", d.Server.RateLimitPerMinute)
	v.SetDefault("server.rate_limit_burst", d.Server.RateLimitBurst)

	v.SetDefault("stream.heartbeat_interval", d.Stream.HeartbeatInterval)
	v.SetDefault("stream.idle_timeout", d.Stream.IdleTimeout)
	v.SetDefault("stream.max_duration", d.Stream.MaxDuration)
	v.SetDefault("stream.max_concurrent", d.Stream.MaxConcurrent)
	v.SetDefault("stream.max_pages", d.Stream.MaxPages)

	v.SetDefault("executor.kind", d.Executor.Kind)
	v.SetDefault("executor.binary", d.Executor.Binary)
	v.SetDefault("executor.script", d.Executor.Script)
	v.SetDefault("executor.workdir", d.Executor.WorkDir)
	v.SetDefault("executor.extra_args", d.Executor.ExtraArgs)
	v.SetDefault("executor.replay_file", d.Executor.ReplayFile)
	v.SetDefault("executor.replay_delay", d.Executor.ReplayDelay)

	v.SetDefault("client.server_url", d.Client.ServerURL)
	v.SetDefault("client.pages", d.Client.Pages)
	v.SetDefault("client.max_pages", d.Client.MaxPages)
	v.SetDefault("client.path", d.Client.Path)
	v.SetDefault("client.plain", d.Client.Plain)
	v.SetDefault("client.record", d.Client.Record)
	v.SetDefault("client.websocket", d.Client.WebSocket)
}

func normalize(cfg *Config) {
	cfg.Server.Environment = strings.ToLower(strings.TrimSpace(cfg.Server.Environment))
	cfg.Executor.Kind = strings.ToLower(strings.TrimSpace(cfg.Executor.Kind))
	cfg.Client.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.Client.ServerURL), "/")
	origins := cfg.Server.AllowedOrigins[:0]
	for _, origin := range cfg.Server.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	cfg.Server.AllowedOrigins = origins
}

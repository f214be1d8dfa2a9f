package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Registry RegistryConfig `mapstructure:"registry"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Player   PlayerConfig   `mapstructure:"player"`
	Decoder  DecoderConfig  `mapstructure:"decoder"`
}

type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	DebugEndpoints  bool          `mapstructure:"debug_endpoints"`

	// Requests per second accepted by the control API; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	HTTP3 HTTP3Config `mapstructure:"http3"`
}

// HTTP3Config enables an additional QUIC listener for remote GUIs.
type HTTP3Config struct {
	Enabled        bool          `mapstructure:"enabled"`
	Port           int           `mapstructure:"port"`
	TLSCertFile    string        `mapstructure:"tls_cert_file"`
	TLSKeyFile     string        `mapstructure:"tls_key_file"`
	MaxIdleTimeout time.Duration `mapstructure:"max_idle_timeout"`
}

type RedisConfig struct {
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type RegistryConfig struct {
	Backend           string        `mapstructure:"backend"` // memory or redis
	TTL               time.Duration `mapstructure:"ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	Workstation       string        `mapstructure:"workstation"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// PlayerConfig tunes the playback controller, frame cache and seek behaviour.
type PlayerConfig struct {
	CacheCapacity       int           `mapstructure:"cache_capacity"`
	ProximityWindow     int64         `mapstructure:"proximity_window"`
	MaxDecodeForward    int64         `mapstructure:"max_decode_forward"`
	MinRate             float64       `mapstructure:"min_rate"`
	MaxRate             float64       `mapstructure:"max_rate"`
	RetryBudget         int           `mapstructure:"retry_budget"`
	MinTick             time.Duration `mapstructure:"min_tick"`
	EventBuffer         int           `mapstructure:"event_buffer"`
	ResetIndexOnFarSeek bool          `mapstructure:"reset_index_on_far_seek"`
}

type DecoderConfig struct {
	FFmpegPath   string        `mapstructure:"ffmpeg_path"`
	FFprobePath  string        `mapstructure:"ffprobe_path"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// Load reads configPath (may be empty) and applies REEL_* environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("REEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults are static; an unmarshal failure here is a programming error.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.listen_addr", "127.0.0.1")
	v.SetDefault("server.http_port", 8089)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "0s") // event streams are long-lived
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.debug_endpoints", false)
	v.SetDefault("server.rate_limit", 200)
	v.SetDefault("server.rate_burst", 50)
	v.SetDefault("server.http3.enabled", false)
	v.SetDefault("server.http3.port", 8443)
	v.SetDefault("server.http3.max_idle_timeout", "30s")

	// Redis defaults
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 1)

	// Registry defaults
	v.SetDefault("registry.backend", "memory")
	v.SetDefault("registry.ttl", "30s")
	v.SetDefault("registry.heartbeat_interval", "10s")
	v.SetDefault("registry.workstation", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)

	// Player defaults
	v.SetDefault("player.cache_capacity", 48)
	v.SetDefault("player.proximity_window", 48)
	v.SetDefault("player.max_decode_forward", 600)
	v.SetDefault("player.min_rate", 0.125)
	v.SetDefault("player.max_rate", 16.0)
	v.SetDefault("player.retry_budget", 5)
	v.SetDefault("player.min_tick", "5ms")
	v.SetDefault("player.event_buffer", 256)
	v.SetDefault("player.reset_index_on_far_seek", true)

	// Decoder defaults
	v.SetDefault("decoder.ffmpeg_path", "")
	v.SetDefault("decoder.ffprobe_path", "")
	v.SetDefault("decoder.probe_timeout", "10s")
}

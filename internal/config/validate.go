package config

import (
	"fmt"
	"math"
	"os"
)

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry config: %w", err)
	}

	if c.Registry.Backend == "redis" {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis config: %w", err)
		}
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Player.Validate(); err != nil {
		return fmt.Errorf("player config: %w", err)
	}

	if err := c.Decoder.Validate(); err != nil {
		return fmt.Errorf("decoder config: %w", err)
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if s.HTTPPort < 1 || s.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", s.HTTPPort)
	}

	if s.ListenAddr == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	if s.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}

	if s.RateLimit > 0 && s.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be positive when rate_limit is set")
	}

	if err := s.HTTP3.Validate(); err != nil {
		return fmt.Errorf("http3: %w", err)
	}

	return nil
}

func (h *HTTP3Config) Validate() error {
	if !h.Enabled {
		return nil
	}

	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("invalid HTTP3 port: %d", h.Port)
	}

	if h.TLSCertFile == "" {
		return fmt.Errorf("TLS certificate file is required")
	}

	if h.TLSKeyFile == "" {
		return fmt.Errorf("TLS key file is required")
	}

	if _, err := os.Stat(h.TLSCertFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS certificate file not found: %s", h.TLSCertFile)
	}

	if _, err := os.Stat(h.TLSKeyFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS key file not found: %s", h.TLSKeyFile)
	}

	return nil
}

func (r *RedisConfig) Validate() error {
	if len(r.Addresses) == 0 {
		return fmt.Errorf("at least one Redis address is required")
	}

	if r.DB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", r.DB)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if r.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive")
	}

	if r.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns cannot be negative")
	}

	if r.MinIdleConns > r.PoolSize {
		return fmt.Errorf("min_idle_conns cannot be greater than pool_size")
	}

	return nil
}

func (r *RegistryConfig) Validate() error {
	switch r.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("backend must be 'memory' or 'redis', got %q", r.Backend)
	}

	if r.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	if r.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}

	if r.HeartbeatInterval >= r.TTL {
		return fmt.Errorf("heartbeat_interval (%s) must be shorter than ttl (%s)", r.HeartbeatInterval, r.TTL)
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", m.Port)
		}

		if m.Path == "" {
			return fmt.Errorf("metrics path cannot be empty")
		}
	}

	return nil
}

func (p *PlayerConfig) Validate() error {
	if p.CacheCapacity < 1 {
		return fmt.Errorf("cache_capacity must be at least 1")
	}

	if p.ProximityWindow < 0 {
		return fmt.Errorf("proximity_window cannot be negative")
	}

	if p.MaxDecodeForward < 1 {
		return fmt.Errorf("max_decode_forward must be positive")
	}

	if p.MinRate <= 0 || p.MaxRate <= 0 {
		return fmt.Errorf("min_rate and max_rate must be positive")
	}

	if p.MinRate > 1 || p.MaxRate < 1 {
		return fmt.Errorf("rate bounds [%g, %g] must include 1", p.MinRate, p.MaxRate)
	}

	if !isPowerOfTwo(p.MinRate) || !isPowerOfTwo(p.MaxRate) {
		return fmt.Errorf("rate bounds must be powers of two")
	}

	if p.RetryBudget < 1 {
		return fmt.Errorf("retry_budget must be at least 1")
	}

	if p.MinTick <= 0 {
		return fmt.Errorf("min_tick must be positive")
	}

	if p.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be at least 1")
	}

	return nil
}

func (d *DecoderConfig) Validate() error {
	if d.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive")
	}

	if d.FFmpegPath != "" {
		if _, err := os.Stat(d.FFmpegPath); err != nil {
			return fmt.Errorf("ffmpeg_path: %w", err)
		}
	}

	if d.FFprobePath != "" {
		if _, err := os.Stat(d.FFprobePath); err != nil {
			return fmt.Errorf("ffprobe_path: %w", err)
		}
	}

	return nil
}

func isPowerOfTwo(f float64) bool {
	frac, _ := math.Frexp(f)
	return frac == 0.5
}

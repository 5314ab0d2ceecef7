package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "RELAY"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Policy     string        `mapstructure:"policy"`
	ConnRate   RateConfig    `mapstructure:"conn_rate"`
	Sink       SinkConfig    `mapstructure:"sink"`
}

// RateConfig limits new WebSocket connections per client IP.
// A zero Limit disables the limiter.
type RateConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type SinkConfig struct {
	Kind         string `mapstructure:"kind"`
	Dir          string `mapstructure:"dir"`
	RedisURL     string `mapstructure:"redis_url"`
	StreamMaxLen int64  `mapstructure:"stream_max_len"`
	QueueSize    int    `mapstructure:"queue_size"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default).
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName if it exists, then applies RELAY_* environment
// overrides, e.g. RELAY_PORT or RELAY_SINK_KIND.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 2000)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("policy", "drop")
	v.SetDefault("conn_rate.limit", 0)
	v.SetDefault("conn_rate.interval", "1m")
	v.SetDefault("sink.kind", "file")
	v.SetDefault("sink.dir", "./audio_bin")
	v.SetDefault("sink.redis_url", "redis://localhost:6379/0")
	v.SetDefault("sink.stream_max_len", 10000)
	v.SetDefault("sink.queue_size", 1024)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("sink", cfg.Sink.Kind).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer))
	}
	switch c.Policy {
	case "drop", "kick":
	default:
		errs = append(errs, fmt.Errorf("unknown policy %q", c.Policy))
	}
	if c.Sink.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("sink.queue_size must be positive, got %d", c.Sink.QueueSize))
	}
	switch c.Sink.Kind {
	case "file":
		if c.Sink.Dir == "" {
			errs = append(errs, errors.New("sink.dir is required for file sink"))
		}
	case "redis":
		if c.Sink.RedisURL == "" {
			errs = append(errs, errors.New("sink.redis_url is required for redis sink"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("unknown sink kind %q", c.Sink.Kind))
	}
	return errors.Join(errs...)
}

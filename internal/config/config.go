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

type Engine struct {
	Version  string `mapstructure:"version"`
	DataPort int    `mapstructure:"data_port"`
	// Latency delays simulated handshakes and device starts.
	Latency time.Duration `mapstructure:"latency"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	SendBuffer int           `mapstructure:"send_buffer"`

	CommandTimeout      time.Duration `mapstructure:"command_timeout"`
	HandshakeTimeout    time.Duration `mapstructure:"handshake_timeout"`
	DeviceWatchInterval time.Duration `mapstructure:"device_watch_interval"`
	DefaultVideoBitrate int           `mapstructure:"default_video_bitrate"`
	RateLimit           float64       `mapstructure:"rate_limit"`
	RateBurst           int           `mapstructure:"rate_burst"`
	CustomFrameRate     int           `mapstructure:"custom_frame_rate"`

	Engine Engine `mapstructure:"engine"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "callplane")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("command_timeout", "30s")
	v.SetDefault("handshake_timeout", "30s")
	v.SetDefault("device_watch_interval", "2s")
	v.SetDefault("default_video_bitrate", 800000)
	v.SetDefault("rate_limit", 50.0)
	v.SetDefault("rate_burst", 100)
	v.SetDefault("custom_frame_rate", 15)
	v.SetDefault("engine.version", "sim-1.0.0")
	v.SetDefault("engine.data_port", 0)
	v.SetDefault("engine.latency", "0s")
}

// Load reads config/config.<env>.yaml. An empty env falls back to CONFIG_ENV
// and then to "dev". Every key can be overridden with a CALLPLANE_ variable,
// nested keys joined by underscores.
func Load(env string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("CALLPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("engine", cfg.Engine.Version).Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.SendBuffer <= 0:
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	case c.CommandTimeout <= 0:
		return fmt.Errorf("command_timeout must be positive, got %s", c.CommandTimeout)
	}
	return nil
}

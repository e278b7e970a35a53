// Package config loads server settings from a YAML file and AGORA_*
// environment variables.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/odosui/agora/pkg/engines"
	"github.com/odosui/agora/pkg/profiles"
	"github.com/odosui/agora/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	EnvPrefix         = "AGORA"
	DefaultConfigPath = "config.yaml"
)

type Eviction struct {
	Idle     time.Duration `mapstructure:"idle" validate:"gte=0"`
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

type Config struct {
	Listen       string `mapstructure:"listen" validate:"required"`
	DatabaseURL  string `mapstructure:"database_url" validate:"required"`
	ClientOrigin string `mapstructure:"client_origin"`

	OpenAIKey    string `mapstructure:"openai_key"`
	AnthropicKey string `mapstructure:"anthropic_key"`
	XAIKey       string `mapstructure:"xai_key"`
	DeepSeekKey  string `mapstructure:"deepseek_key"`

	Redis    redisstream.Settings `mapstructure:"redis"`
	Eviction Eviction             `mapstructure:"eviction"`

	// Path is the config file that was read, empty when none was found.
	Path     string        `mapstructure:"-"`
	Profiles *profiles.Set `mapstructure:"-"`
}

// APIKey returns the credential configured for v.
func (c *Config) APIKey(v engines.Vendor) string {
	switch v {
	case engines.VendorOpenAI:
		return c.OpenAIKey
	case engines.VendorAnthropic:
		return c.AnthropicKey
	case engines.VendorXAI:
		return c.XAIKey
	case engines.VendorDeepSeek:
		return c.DeepSeekKey
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":3000")
	v.SetDefault("database_url", "agora.db")
	v.SetDefault("client_origin", "http://localhost:5173")
	v.SetDefault("openai_key", "")
	v.SetDefault("anthropic_key", "")
	v.SetDefault("xai_key", "")
	v.SetDefault("deepseek_key", "")
	v.SetDefault("eviction.idle", "0s")
	v.SetDefault("eviction.interval", "1m")
	redisstream.SetDefaults(v, "redis")
}

// Load reads path (or ./config.yaml when path is empty and the file exists),
// applies env overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "config: read")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: invalid")
	}

	cfg.Path = v.ConfigFileUsed()
	cfg.Profiles = profiles.NewSet()
	if cfg.Path != "" {
		ps, err := profiles.LoadFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		cfg.Profiles = ps
	}
	return &cfg, nil
}

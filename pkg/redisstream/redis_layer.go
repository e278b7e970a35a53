package redisstream

import "github.com/spf13/viper"

// Settings holds Redis Streams transport configuration for the chat event bus.
type Settings struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Group    string `mapstructure:"group" validate:"required_if=Enabled true"`
	Consumer string `mapstructure:"consumer" validate:"required_if=Enabled true"`
}

// SetDefaults registers the redis defaults under prefix (usually "redis").
func SetDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".enabled", false)
	v.SetDefault(prefix+".addr", "localhost:6379")
	v.SetDefault(prefix+".group", "chat-ui")
	v.SetDefault(prefix+".consumer", "ui-1")
}

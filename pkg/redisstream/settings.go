package redisstream

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Settings holds Redis Streams transport configuration for Watermill.
type Settings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Group    string `mapstructure:"group" yaml:"group"`
	Consumer string `mapstructure:"consumer" yaml:"consumer"`
}

func DefaultSettings() Settings {
	return Settings{
		Addr:     "localhost:6379",
		Group:    "chat-ui",
		Consumer: "ui-1",
	}
}

// AddFlags registers the redis-* flags. Their names map onto the redis.* config keys.
func AddFlags(fs *pflag.FlagSet) {
	d := DefaultSettings()
	fs.Bool("redis-enabled", d.Enabled, "Enable Redis Streams transport for notifications")
	fs.String("redis-addr", d.Addr, "Redis address host:port")
	fs.String("redis-group", d.Group, "Redis consumer group")
	fs.String("redis-consumer", d.Consumer, "Redis consumer name")
}

func (s Settings) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.Addr == "" {
		return errors.New("redis: addr is required when enabled")
	}
	if s.Group == "" || s.Consumer == "" {
		return errors.New("redis: group and consumer are required when enabled")
	}
	return nil
}

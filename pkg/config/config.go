// Package config merges streamchat settings from flags, environment, a .env file
// and an optional YAML config file.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/go-go-golems/streamchat/pkg/events"
	"github.com/go-go-golems/streamchat/pkg/redisstream"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "STREAMCHAT"
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 10 * time.Minute
	appDir         = "streamchat"
)

type Settings struct {
	BaseURL             string               `mapstructure:"base_url" yaml:"base_url"`
	Timeout             time.Duration        `mapstructure:"timeout" yaml:"timeout"`
	CredentialsFile     string               `mapstructure:"credentials_file" yaml:"credentials_file"`
	JournalPath         string               `mapstructure:"journal_path" yaml:"journal_path"`
	Model               string               `mapstructure:"model" yaml:"model"`
	Mode                string               `mapstructure:"mode" yaml:"mode"`
	WireFormat          string               `mapstructure:"wire_format" yaml:"wire_format"`
	TrustBeginSessionID bool                 `mapstructure:"trust_begin_session_id" yaml:"trust_begin_session_id"`
	EventsTopic         string               `mapstructure:"events_topic" yaml:"events_topic"`
	LogLevel            string               `mapstructure:"log_level" yaml:"log_level"`
	Redis               redisstream.Settings `mapstructure:"redis" yaml:"redis"`
}

// Dir returns $XDG_CONFIG_HOME/streamchat (or the platform equivalent).
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve user config dir")
	}
	return filepath.Join(dir, appDir), nil
}

// Defaults returns the settings used when no source overrides them. Paths fall
// back to empty when the user config dir cannot be resolved.
func Defaults() Settings {
	s := Settings{
		BaseURL:     DefaultBaseURL,
		Timeout:     DefaultTimeout,
		Model:       chatclient.DefaultModel,
		Mode:        chatclient.DefaultMode,
		WireFormat:  chatclient.WireFormatEnvelope,
		EventsTopic: events.DefaultTopic,
		LogLevel:    zerolog.InfoLevel.String(),
		Redis:       redisstream.DefaultSettings(),
	}
	if dir, err := Dir(); err == nil {
		s.CredentialsFile = filepath.Join(dir, "credentials.yaml")
		s.JournalPath = filepath.Join(dir, "journal.db")
	}
	return s
}

// AddFlags registers one flag per setting. Flag names are the keys with '_' and
// '.' turned into '-'.
func AddFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("config", "", "Path to a YAML config file")
	fs.String("base-url", d.BaseURL, "Backend base URL")
	fs.Duration("timeout", d.Timeout, "Request timeout")
	fs.String("credentials-file", d.CredentialsFile, "Where the bearer token is stored")
	fs.String("journal-path", d.JournalPath, "sqlite file for the exchange journal (empty keeps it in memory)")
	fs.String("model", d.Model, "Model sent with each message")
	fs.String("mode", d.Mode, "Mode sent with each message")
	fs.String("wire-format", d.WireFormat, "Stream payload format: envelope or legacy")
	fs.Bool("trust-begin-session-id", d.TrustBeginSessionID, "Adopt the session id from the begin event without waiting for the list")
	fs.String("events-topic", d.EventsTopic, "Topic notifications are published on")
	fs.String("log-level", d.LogLevel, "Log level (trace, debug, info, warn, error)")
	redisstream.AddFlags(fs)
}

func keys() []string {
	return []string{
		"base_url", "timeout", "credentials_file", "journal_path", "model", "mode",
		"wire_format", "trust_begin_session_id", "events_topic", "log_level",
		"redis.enabled", "redis.addr", "redis.group", "redis.consumer",
	}
}

func flagName(key string) string {
	return strings.NewReplacer("_", "-", ".", "-").Replace(key)
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("credentials_file", d.CredentialsFile)
	v.SetDefault("journal_path", d.JournalPath)
	v.SetDefault("model", d.Model)
	v.SetDefault("mode", d.Mode)
	v.SetDefault("wire_format", d.WireFormat)
	v.SetDefault("trust_begin_session_id", d.TrustBeginSessionID)
	v.SetDefault("events_topic", d.EventsTopic)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.group", d.Redis.Group)
	v.SetDefault("redis.consumer", d.Redis.Consumer)
}

// Load resolves settings with precedence flags > environment > .env > config
// file > defaults. fs may be nil. An explicit configFile must exist; the default
// one in Dir() is optional.
func Load(v *viper.Viper, fs *pflag.FlagSet, configFile string) (*Settings, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for _, key := range keys() {
			f := fs.Lookup(flagName(key))
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.Wrapf(err, "bind flag %s", f.Name)
			}
		}
	}

	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}
	s.CredentialsFile = expandHome(s.CredentialsFile)
	s.JournalPath = expandHome(s.JournalPath)
	s.WireFormat = strings.ToLower(strings.TrimSpace(s.WireFormat))

	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &s, nil
}

func readConfigFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config %s", configFile)
		}
		return nil
	}
	dir, err := Dir()
	if err != nil {
		return nil
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "read config")
	}
	return nil
}

// loadDotEnv exports the variables of path without overriding ones already set.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return errors.Wrapf(err, "load %s", path)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.BaseURL) == "" {
		return errors.New("base_url cannot be empty")
	}
	if s.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	if s.CredentialsFile == "" {
		return errors.New("credentials_file cannot be empty")
	}
	if _, err := chatclient.CodecFor(s.WireFormat); err != nil {
		return err
	}
	if s.EventsTopic == "" {
		return errors.New("events_topic cannot be empty")
	}
	if _, err := zerolog.ParseLevel(s.LogLevel); err != nil {
		return errors.Wrapf(err, "log_level %q", s.LogLevel)
	}
	return s.Redis.Validate()
}

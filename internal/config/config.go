// Package config loads rbridge's command-line configuration from defaults,
// an optional rbridge.yaml and RBRIDGE_* environment variables.
package config

import (
	stderrors "errors"
	"strings"

	"github.com/spf13/viper"

	"github.com/wippyai/rbridge/errors"
	"github.com/wippyai/rbridge/session"
)

const (
	// AppName is the application name and the config file's base name.
	AppName = "rbridge"
	// EnvPrefix prefixes every environment override, e.g. RBRIDGE_R_HOME.
	EnvPrefix = "RBRIDGE"
)

// Config is the resolved configuration.
type Config struct {
	// RHome overrides R home discovery when set.
	RHome string `mapstructure:"r_home"`
	// Args are R's command-line arguments; Args[0] is the program name.
	Args        []string `mapstructure:"args"`
	Interactive bool     `mapstructure:"interactive"`
	// MinVersion rejects older R installations, e.g. "4.1".
	MinVersion string  `mapstructure:"min_version"`
	Session    Session `mapstructure:"session"`
	Log        Log     `mapstructure:"log"`
}

// Session names the environment variables of the session channel.
type Session struct {
	InboundKey  string `mapstructure:"inbound_key"`
	OutboundKey string `mapstructure:"outbound_key"`
}

// Log configures the CLI's zap logger.
type Log struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Format is "console" or "json".
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Args:        []string{"rbridge", "--quiet", "--no-save"},
		Interactive: true,
		Session: Session{
			InboundKey:  session.InboundKey,
			OutboundKey: session.OutboundKey,
		},
		Log: Log{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Options select where configuration is read from.
type Options struct {
	// File is an explicit config file. It must exist when set.
	File string
	// Dirs are searched for rbridge.yaml when File is empty.
	Dirs []string
	// Viper, when set, is used instead of New() so callers can bind
	// command-line flags first.
	Viper *viper.Viper
}

// Load resolves the configuration. A missing rbridge.yaml in Dirs is not
// an error.
func Load(opts Options) (*Config, error) {
	v := opts.Viper
	if v == nil {
		v = New()
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "read "+opts.File)
		}
	} else if len(opts.Dirs) > 0 {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		for _, dir := range opts.Dirs {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return nil, errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "read config")
			}
		}
	}

	return Decode(v)
}

// New returns a viper instance with defaults and environment binding set
// up. Callers may bind command-line flags to it before Decode.
func New() *viper.Viper {
	v := viper.New()

	defaults := Default()
	v.SetDefault("r_home", defaults.RHome)
	v.SetDefault("args", defaults.Args)
	v.SetDefault("interactive", defaults.Interactive)
	v.SetDefault("min_version", defaults.MinVersion)
	v.SetDefault("session.inbound_key", defaults.Session.InboundKey)
	v.SetDefault("session.outbound_key", defaults.Session.OutboundKey)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Decode unmarshals and validates v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindConfiguration, err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot type-check.
func (c *Config) Validate() error {
	if len(c.Args) == 0 {
		return errors.InvalidInput(errors.PhaseConfig, "args must include the program name")
	}
	if c.Session.InboundKey == "" || c.Session.OutboundKey == "" {
		return errors.InvalidInput(errors.PhaseConfig, "session keys cannot be empty")
	}
	if c.Session.InboundKey == c.Session.OutboundKey {
		return errors.InvalidInput(errors.PhaseConfig, "session inbound and outbound keys must differ")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.InvalidInput(errors.PhaseConfig, "log.format must be console or json, got "+c.Log.Format)
	}
	return nil
}

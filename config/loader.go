package config

import (
	stderrors "errors"
	"io"
	"strings"

	"github.com/spf13/viper"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
)

// EnvPrefix prefixes environment overrides, e.g. XFER_CONCURRENCY or XFER_LOG_LEVEL.
const EnvPrefix = "XFER"

// Defaults applied beneath the file and the environment.
const (
	DefaultPartSize     = "100MiB"
	DefaultConcurrency  = 4
	DefaultAbortTimeout = "30s"
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("part_size", DefaultPartSize)
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("abort_timeout", DefaultAbortTimeout)
	v.SetDefault("detect_content_type", true)
	v.SetDefault("journal", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", "200ms")
	v.SetDefault("retry.max_delay", "10s")
	return v
}

// Load reads the configuration at path. With an empty path, xfer.yaml is
// searched for in the working directory and $HOME/.config/xfer.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("xfer")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/xfer")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, errors.NewError("load config", errors.Wrap(errors.ErrInvalidInput, err)).
				WithObject(path)
		}
	}
	return decode(v)
}

// Read parses configuration of the given format ("yaml", "json", "toml") from r.
func Read(r io.Reader, format string) (*Config, error) {
	v := newViper()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, errors.NewError("read config", errors.Wrap(errors.ErrInvalidInput, err))
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewError("decode config", errors.Wrap(errors.ErrInvalidInput, err))
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

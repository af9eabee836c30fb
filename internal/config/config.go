// Package config loads mediachan settings from a YAML file with sane
// defaults for every field.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	Audio    AudioConfig   `mapstructure:"audio"`
	Storage  StorageConfig `mapstructure:"storage"`
	LogLevel string        `mapstructure:"log_level"`
}

type AudioConfig struct {
	// Recording format. Playback follows whatever the source file says.
	SampleRate    int    `mapstructure:"sample_rate"`
	Channels      int    `mapstructure:"channels"`
	BitsPerSample int    `mapstructure:"bits_per_sample"`
	DeviceID      string `mapstructure:"device_id"`
}

type StorageConfig struct {
	// Root is the default writable directory for relative paths.
	Root string `mapstructure:"root"`
	// AssetRoot backs the /assets/ prefix.
	AssetRoot string `mapstructure:"asset_root"`
	// CacheRoot is the private fallback when Root is unavailable.
	CacheRoot string `mapstructure:"cache_root"`
}

// Load reads the config at path, or the default location when path is
// empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("audio.sample_rate", 9600)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.bits_per_sample", 16)
	v.SetDefault("audio.device_id", "")
	v.SetDefault("storage.root", defaultRoot())
	v.SetDefault("storage.asset_root", "")
	v.SetDefault("storage.cache_root", defaultCacheRoot())
	v.SetDefault("log_level", "info")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mediachan")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 {
		return fmt.Errorf("audio.channels must be 1 (mono capture), got %d", c.Audio.Channels)
	}
	if c.Audio.BitsPerSample != 16 {
		return fmt.Errorf("audio.bits_per_sample must be 16, got %d", c.Audio.BitsPerSample)
	}
	return nil
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mediachan")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mediachan")
}

func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(home, "mediachan")
}

func defaultCacheRoot() string {
	cache, err := os.UserCacheDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(cache, "mediachan")
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Playback PlaybackConfig `mapstructure:"playback" yaml:"playback"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

type AudioConfig struct {
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int    `mapstructure:"channels" yaml:"channels"`
	Backend    string `mapstructure:"backend" yaml:"backend"` // "ffmpeg", "device", "auto"
	Device     string `mapstructure:"device" yaml:"device"`   // capture device name, empty for default

	// Platforms whose embedded web views mishandle blob URLs. Audio for
	// these platforms is resolved to data URLs instead.
	DataURLPlatforms []string `mapstructure:"data_url_platforms" yaml:"data_url_platforms"`

	// Platform override, defaults to runtime.GOOS.
	Platform string `mapstructure:"platform" yaml:"platform"`
}

type StorageConfig struct {
	DataDirectory string `mapstructure:"data_directory" yaml:"data_directory"`
}

type PlaybackConfig struct {
	// Position poll interval in milliseconds. Must stay at or below 100
	// so the progress display updates at 10 Hz or better.
	PollIntervalMs int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`

	// Maximum number of concurrently preloaded native assets.
	MaxAssets int `mapstructure:"max_assets" yaml:"max_assets"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

var defaultConfig = Config{
	Audio: AudioConfig{
		SampleRate:       44100,
		Channels:         1,
		Backend:          "auto",
		DataURLPlatforms: []string{"ios"},
	},
	Storage: StorageConfig{
		DataDirectory: filepath.Join(os.Getenv("HOME"), ".local", "share", "voicenotes"),
	},
	Playback: PlaybackConfig{
		PollIntervalMs: 100,
		MaxAssets:      4,
	},
	Server: ServerConfig{
		Port: "8080",
	},
}

// Default returns a copy of the built-in default configuration.
func Default() *Config {
	cfg := defaultConfig
	cfg.Audio.Platform = runtime.GOOS
	return &cfg
}

// Load reads configuration from the given file, falling back to defaults
// for any missing values. An empty file name yields the defaults.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix("VOICENOTES")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configFile); os.IsNotExist(statErr) {
			// Missing config file is not an error, defaults apply.
			return cfg, nil
		}
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Storage.DataDirectory = expandPath(cfg.Storage.DataDirectory)
	if cfg.Audio.Platform == "" {
		cfg.Audio.Platform = runtime.GOOS
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the audio engine cannot
// work with.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be > 0, got: %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got: %d", c.Audio.Channels)
	}
	switch strings.ToLower(c.Audio.Backend) {
	case "", "auto", "ffmpeg", "device":
	default:
		return fmt.Errorf("audio.backend must be 'ffmpeg', 'device' or 'auto', got: %s", c.Audio.Backend)
	}
	if c.Storage.DataDirectory == "" {
		return fmt.Errorf("storage.data_directory is required")
	}
	if c.Playback.PollIntervalMs <= 0 || c.Playback.PollIntervalMs > 100 {
		return fmt.Errorf("playback.poll_interval_ms must be in (0, 100], got: %d", c.Playback.PollIntervalMs)
	}
	if c.Playback.MaxAssets <= 0 {
		return fmt.Errorf("playback.max_assets must be > 0, got: %d", c.Playback.MaxAssets)
	}
	return nil
}

// PrefersDataURLs reports whether the configured platform is one where
// blob-style URLs are known to be unreliable for media playback.
func (c *Config) PrefersDataURLs() bool {
	platform := c.Audio.Platform
	if platform == "" {
		platform = runtime.GOOS
	}
	for _, p := range c.Audio.DataURLPlatforms {
		if strings.EqualFold(p, platform) {
			return true
		}
	}
	return false
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	appName   = "dictator"
	envPrefix = "DICTATOR"
)

type Config struct {
	APIURL          string `json:"apiUrl" mapstructure:"apiUrl"`
	APIKey          string `json:"apiKey" mapstructure:"apiKey"`
	DefaultModel    string `json:"defaultModel" mapstructure:"defaultModel"`
	Theme           string `json:"theme" mapstructure:"theme"`
	LogLevel        string `json:"logLevel" mapstructure:"logLevel"`
	CopyToClipboard bool   `json:"copyToClipboard" mapstructure:"copyToClipboard"`
	Notifications   bool   `json:"notifications" mapstructure:"notifications"`

	// MaxRecordingSeconds auto-stops a recording. Zero disables it.
	MaxRecordingSeconds int `json:"maxRecordingSeconds" mapstructure:"maxRecordingSeconds"`

	Audio AudioConfig `json:"audio" mapstructure:"audio"`

	path string
}

type AudioConfig struct {
	DeviceName      string `json:"deviceName" mapstructure:"deviceName"`
	SampleRate      int    `json:"sampleRate" mapstructure:"sampleRate"`
	FramesPerBuffer int    `json:"framesPerBuffer" mapstructure:"framesPerBuffer"`
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	return &Config{
		APIURL:              "http://localhost:9934",
		Theme:               "catppuccinMocha",
		LogLevel:            "info",
		CopyToClipboard:     true,
		Notifications:       true,
		MaxRecordingSeconds: 300,
		Audio: AudioConfig{
			SampleRate:      16000,
			FramesPerBuffer: 512,
		},
	}
}

// Load reads the config from the platform config path, writing defaults
// there first if the file does not exist.
func Load() (*Config, error) {
	return LoadFrom(configPath())
}

// LoadFrom reads the config at path. An optional .env file in the same
// directory is loaded first, and DICTATOR_* environment variables override
// file values.
func LoadFrom(path string) (*Config, error) {
	dir := filepath.Dir(path)
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		cfg.path = path
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	setDefaults(v, Default())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.path = path
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("apiUrl", d.APIURL)
	v.SetDefault("apiKey", d.APIKey)
	v.SetDefault("defaultModel", d.DefaultModel)
	v.SetDefault("theme", d.Theme)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("copyToClipboard", d.CopyToClipboard)
	v.SetDefault("notifications", d.Notifications)
	v.SetDefault("maxRecordingSeconds", d.MaxRecordingSeconds)
	v.SetDefault("audio.deviceName", d.Audio.DeviceName)
	v.SetDefault("audio.sampleRate", d.Audio.SampleRate)
	v.SetDefault("audio.framesPerBuffer", d.Audio.FramesPerBuffer)
}

// MaxRecording returns the auto-stop limit.
func (c *Config) MaxRecording() time.Duration {
	return time.Duration(c.MaxRecordingSeconds) * time.Second
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := c.Path()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	if c.path == "" {
		return configPath()
	}
	return c.path
}

// WithPath returns a copy of c bound to path.
func (c *Config) WithPath(path string) *Config {
	cp := *c
	cp.path = path
	return &cp
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.json")
}

// CachePath returns the platform-specific cache directory for the app
func CachePath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Caches"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.cache"
		}
	}

	return filepath.Join(base, appName)
}

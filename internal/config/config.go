package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SearchIndex string        `mapstructure:"search_index"`
	// DeletePolicy controls what happens to a feed's articles on
	// unsubscribe: "purge" removes them, "orphan" archives them.
	DeletePolicy string `mapstructure:"delete_policy"`
}

type FeedConfig struct {
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	MaxRedirects int           `mapstructure:"max_redirects"`
	MaxRetries   int           `mapstructure:"max_retries"`
	UserAgent    string        `mapstructure:"user_agent"`
}

type RefreshConfig struct {
	Workers         int           `mapstructure:"workers"`
	Interval        time.Duration `mapstructure:"interval"`
	EventBufferSize int           `mapstructure:"event_buffer_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Database: DatabaseConfig{
			Path:         filepath.Join(homeDir, ".skim.db"),
			Timeout:      1 * time.Second,
			SearchIndex:  filepath.Join(homeDir, ".skim", "index.bleve"),
			DeletePolicy: "purge",
		},
		Feed: FeedConfig{
			HTTPTimeout:  30 * time.Second,
			MaxBodyBytes: 10 << 20,
			MaxRedirects: 5,
			MaxRetries:   2,
			UserAgent:    "skim/1.0 (https://github.com/jmlarsen/skim)",
		},
		Refresh: RefreshConfig{
			Workers:         5,
			Interval:        15 * time.Minute,
			EventBufferSize: 64,
		},
		Log: LogConfig{
			Level: "off",
			Path:  filepath.Join(homeDir, ".skim", "skim.log"),
		},
	}
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	cfg := defaultConfig()
	v.SetDefault("database", cfg.Database)
	v.SetDefault("feed", cfg.Feed)
	v.SetDefault("refresh", cfg.Refresh)
	v.SetDefault("log", cfg.Log)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "skim")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SKIM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects values the refresh pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Refresh.Workers < 1 {
		return fmt.Errorf("refresh.workers must be at least 1, got %d", c.Refresh.Workers)
	}
	if c.Refresh.EventBufferSize < 1 {
		return fmt.Errorf("refresh.event_buffer_size must be at least 1, got %d", c.Refresh.EventBufferSize)
	}
	if c.Feed.MaxBodyBytes < 1 {
		return fmt.Errorf("feed.max_body_bytes must be positive, got %d", c.Feed.MaxBodyBytes)
	}
	switch c.Database.DeletePolicy {
	case "purge", "orphan":
	default:
		return fmt.Errorf("database.delete_policy must be %q or %q, got %q", "purge", "orphan", c.Database.DeletePolicy)
	}
	return nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Database.SearchIndex = expandPath(cfg.Database.SearchIndex)
	cfg.Log.Path = expandPath(cfg.Log.Path)
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Durations as strings for TOML readability
	dbCfg := map[string]interface{}{
		"path":          config.Database.Path,
		"timeout":       config.Database.Timeout.String(),
		"search_index":  config.Database.SearchIndex,
		"delete_policy": config.Database.DeletePolicy,
	}

	feedCfg := map[string]interface{}{
		"http_timeout":   config.Feed.HTTPTimeout.String(),
		"max_body_bytes": config.Feed.MaxBodyBytes,
		"max_redirects":  config.Feed.MaxRedirects,
		"max_retries":    config.Feed.MaxRetries,
		"user_agent":     config.Feed.UserAgent,
	}

	refreshCfg := map[string]interface{}{
		"workers":           config.Refresh.Workers,
		"interval":          config.Refresh.Interval.String(),
		"event_buffer_size": config.Refresh.EventBufferSize,
	}

	v.Set("database", dbCfg)
	v.Set("feed", feedCfg)
	v.Set("refresh", refreshCfg)
	v.Set("log", map[string]interface{}{
		"level": config.Log.Level,
		"path":  config.Log.Path,
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}

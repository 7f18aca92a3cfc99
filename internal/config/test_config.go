package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Database.Path = ":memory:"
	cfg.Feed.HTTPTimeout = 5 * time.Second
	cfg.Feed.MaxRetries = 0
	cfg.Feed.UserAgent = "skim-test/1.0"
	cfg.Refresh.Workers = 3
	cfg.Refresh.Interval = 1 * time.Minute
	cfg.Refresh.EventBufferSize = 16
	return cfg
}

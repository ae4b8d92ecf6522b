package scheduler

import (
	"time"

	"github.com/smallbiznis/catalogsync/internal/config"
)

// Config controls scheduler intervals and job deadlines.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	CronEnabled bool
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 24 * time.Hour,
		JobTimeout:  2 * time.Hour,
		CronEnabled: true,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.Ingest.RunInterval,
		JobTimeout:  cfg.Ingest.LockTTL,
		CronEnabled: cfg.Ingest.CronEnabled,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

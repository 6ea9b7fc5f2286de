package telemetry

import (
	"time"

	"github.com/temoto/c2link/helpers"
)

const (
	DefaultStale           = 10 * time.Second
	DefaultRetention       = 24 * time.Hour
	DefaultCleanupInterval = time.Hour
)

type Config struct {
	// vehicle not heard for stale_sec is LOST_LINK
	StaleSec           int    `hcl:"stale_sec"`
	RetentionHours     int    `hcl:"retention_hours"`
	CleanupIntervalSec int    `hcl:"cleanup_interval_sec"`
	JournalPath        string `hcl:"journal_path"`
	// accept telemetry of vehicles not in store
	AutoRegister bool `hcl:"auto_register"`
	LogDebug     bool `hcl:"log_debug"`
}

func (c *Config) stale() time.Duration { return helpers.IntSecondDefault(c.StaleSec, DefaultStale) }
func (c *Config) retention() time.Duration {
	if c.RetentionHours == 0 {
		return DefaultRetention
	}
	return time.Duration(c.RetentionHours) * time.Hour
}
func (c *Config) cleanupInterval() time.Duration {
	return helpers.IntSecondDefault(c.CleanupIntervalSec, DefaultCleanupInterval)
}

package command

import (
	"time"

	"github.com/juju/errors"
	"github.com/temoto/c2link/helpers"
)

const (
	DefaultTimeout          = 10 * time.Second
	DefaultEmergencyTimeout = 5 * time.Second
	DefaultQOS              = 2
)

type Config struct {
	TimeoutSec          int    `hcl:"timeout_sec"`
	EmergencyTimeoutSec int    `hcl:"emergency_timeout_sec"`
	QOS                 int    `hcl:"qos"`
	Fallback            string `hcl:"fallback"`
	OutboxPath          string `hcl:"outbox_path"`
	RetrySec            int    `hcl:"outbox_retry_sec"`
	LogDebug            bool   `hcl:"log_debug"`
}

// Settings are validated Config values.
type Settings struct {
	Timeout          time.Duration
	EmergencyTimeout time.Duration
	QOS              byte
	Fallback         FallbackPolicy
}

func (c *Config) Settings() (Settings, error) {
	s := Settings{
		Timeout:          helpers.IntSecondDefault(c.TimeoutSec, DefaultTimeout),
		EmergencyTimeout: helpers.IntSecondDefault(c.EmergencyTimeoutSec, DefaultEmergencyTimeout),
		QOS:              DefaultQOS,
	}
	switch c.QOS {
	case 0:
	case 1, 2:
		s.QOS = byte(c.QOS)
	default:
		// commands need broker acknowledgement
		return s, errors.NotValidf("command qos=%d must be 1 or 2", c.QOS)
	}
	var err error
	if s.Fallback, err = ParseFallback(c.Fallback); err != nil {
		return s, err
	}
	return s, nil
}

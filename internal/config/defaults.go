package config

import "strings"

const (
	DefaultPath             = "./pewcron.yaml"
	DefaultTriggerSpec      = "* * * * *"
	DefaultHTTPAddr         = "127.0.0.1:9321"
	DefaultMinWindowMinutes = 30
	DefaultLockResetTimeout = 360
)

// Default returns the configuration used when a section is omitted.
func Default() *Config {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Errors:  LoggingErrors{Enabled: true},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	d := &c.Defaults
	if d.LockResetTimeout == nil {
		v := DefaultLockResetTimeout
		d.LockResetTimeout = &v
	}
	if d.Tries == 0 {
		d.Tries = 1
	}
	if strings.TrimSpace(d.TryDelay) == "" {
		d.TryDelay = "0s"
	}
	if d.MinWindowMinutes == 0 {
		d.MinWindowMinutes = DefaultMinWindowMinutes
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "memory"
	}
	if strings.TrimSpace(c.Trigger.Spec) == "" {
		c.Trigger.Spec = DefaultTriggerSpec
	}
	if c.HTTP.Enabled && strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
}

package evaluateprogress

import (
	"errors"
	"time"
)

type Config struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:  20 * time.Second,
		CacheTTL: 5 * time.Minute,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.CacheTTL < 0 {
		return errors.New("cache ttl cannot be negative")
	}
	return nil
}

package uploaddocument

import (
	"errors"
	"time"
)

type Config struct {
	Timeout  time.Duration
	MaxBytes int64
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:  60 * time.Second,
		MaxBytes: 10 << 20,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.MaxBytes <= 0 {
		return errors.New("max bytes must be positive")
	}
	return nil
}

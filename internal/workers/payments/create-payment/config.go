package createpayment

import (
	"errors"
	"time"
)

type Config struct {
	Timeout  time.Duration
	Currency string
	// Fees is the default amount per payment type when the job carries none.
	Fees map[string]float64
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:  30 * time.Second,
		Currency: "usd",
		Fees:     map[string]float64{},
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.Currency == "" {
		return errors.New("currency is required")
	}
	for t, fee := range c.Fees {
		if fee < 0 {
			return errors.New("fee for " + t + " cannot be negative")
		}
	}
	return nil
}

package issuedocumenturl

import "time"

type Config struct {
	Timeout    time.Duration
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    10 * time.Second,
		DefaultTTL: 15 * time.Minute,
		MaxTTL:     24 * time.Hour,
	}
}

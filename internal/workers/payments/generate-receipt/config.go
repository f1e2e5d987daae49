package generatereceipt

import "time"

type Config struct {
	Timeout time.Duration
	// URLTTL is how long the returned download link stays valid.
	URLTTL time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
		URLTTL:  15 * time.Minute,
	}
}

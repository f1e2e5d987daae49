// internal/workers/application/send-notification/config.go
package sendnotification

import (
	"time"

	"gritsync/internal/common/config"
)

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	FromEmail    string
	SenderID     string
	// SMSThreshold is the lowest priority that also goes out by SMS.
	SMSThreshold string
	Timeout      time.Duration
}

func LoadConfig() *Config {
	return &Config{
		SMSThreshold: PriorityHigh,
		Timeout:      30 * time.Second,
	}
}

// FromNotificationConfig maps the notifications section of the service config.
func FromNotificationConfig(nc config.NotificationConfig) *Config {
	c := LoadConfig()
	c.EmailEnabled = nc.Email.Enabled
	c.FromEmail = nc.Email.FromEmail
	c.SMSEnabled = nc.SMS.Enabled
	c.SenderID = nc.SMS.SenderID
	if nc.SMS.PriorityThreshold != "" {
		c.SMSThreshold = nc.SMS.PriorityThreshold
	}
	return c
}

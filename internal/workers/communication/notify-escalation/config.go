// internal/workers/communication/notify-escalation/config.go
package notifyescalation

import "time"

type Config struct {
	EmailEnabled bool
	FromEmail    string
	Recipients   []string
	SNSEnabled   bool
	TopicARN     string
	Timeout      time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}

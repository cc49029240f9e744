// internal/workers/communication/notify-escalation/models.go
package notifyescalation

import "qa-autoresponder/internal/models"

type Input struct {
	Question models.Question `json:"question"`
	Decision models.Decision `json:"decision"`
}

type Output struct {
	NotificationID string   `json:"notificationId"`
	Status         string   `json:"status"`
	Channels       []string `json:"channels,omitempty"`
	SentAt         string   `json:"sentAt"`
}

// Statuses
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
	StatusSkipped  = "skipped"
)

// Channels
const (
	ChannelEmail = "email"
	ChannelSNS   = "sns"
)

// internal/workers/application/send-notification/models.go
package sendnotification

type Input struct {
	ApplicationID    string `json:"applicationId" validate:"required"`
	NotificationType string `json:"notificationType" validate:"required,oneof=step_completed status_changed payment_received document_uploaded"`
	Priority         string `json:"priority,omitempty" validate:"omitempty,oneof=low normal high"`

	// Template details; which ones apply depends on the notification type.
	StepTitle     string  `json:"stepTitle,omitempty"`
	Status        string  `json:"status,omitempty"`
	Percentage    *int    `json:"percentage,omitempty" validate:"omitempty,min=0,max=100"`
	Amount        float64 `json:"amount,omitempty" validate:"gte=0"`
	Currency      string  `json:"currency,omitempty"`
	ReceiptNumber string  `json:"receiptNumber,omitempty"`
	DocumentKind  string  `json:"documentKind,omitempty"`
}

type Output struct {
	NotificationID string   `json:"notificationId"`
	Status         string   `json:"status"` // "sent", "disabled"
	Channels       []string `json:"channels"`
	SentAt         string   `json:"sentAt"` // ISO 8601
}

// Notification types
const (
	TypeStepCompleted    = "step_completed"
	TypeStatusChanged    = "status_changed"
	TypePaymentReceived  = "payment_received"
	TypeDocumentUploaded = "document_uploaded"
)

// Statuses
const (
	StatusSent     = "sent"
	StatusDisabled = "disabled"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

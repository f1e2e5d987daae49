package generatereceipt

type Input struct {
	PaymentID string `json:"paymentId" validate:"required"`
	// Regenerate renders a new PDF even when one is already stored.
	Regenerate bool `json:"regenerate"`
}

type Output struct {
	PaymentID     string `json:"paymentId"`
	ReceiptNumber string `json:"receiptNumber"`
	ReceiptPath   string `json:"receiptPath"`
	ReceiptURL    string `json:"receiptUrl"`
	ExpiresAt     string `json:"expiresAt"` // ISO 8601
	Generated     bool   `json:"generated"`
}

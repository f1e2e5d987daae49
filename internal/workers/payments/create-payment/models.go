package createpayment

type Input struct {
	ApplicationID string  `json:"applicationId" validate:"required"`
	PaymentType   string  `json:"paymentType" validate:"required,oneof=step1 step2 full quick_results"`
	Amount        float64 `json:"amount,omitempty" validate:"gte=0"`
	Currency      string  `json:"currency,omitempty" validate:"omitempty,len=3"`
	// PaymentID is set when a failed attempt is retried; the stored row is reused.
	PaymentID string `json:"paymentId,omitempty"`
}

type Output struct {
	PaymentID    string  `json:"paymentId"`
	IntentID     string  `json:"intentId"`
	ClientSecret string  `json:"clientSecret"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
}

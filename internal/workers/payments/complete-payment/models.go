package completepayment

type Input struct {
	PaymentID string `json:"paymentId,omitempty" validate:"required_without=IntentID"`
	IntentID  string `json:"intentId,omitempty" validate:"required_without=PaymentID"`
	// Outcome is paid or failed; when empty the processor is asked.
	Outcome string `json:"outcome,omitempty" validate:"omitempty,oneof=paid failed"`
}

type Output struct {
	PaymentID         string   `json:"paymentId"`
	ApplicationID     string   `json:"applicationId"`
	PaymentType       string   `json:"paymentType"`
	PreviousStatus    string   `json:"previousStatus"`
	Status            string   `json:"status"`
	Rederived         []string `json:"rederived"`
	Percentage        int      `json:"percentage"`
	ApplicationStatus string   `json:"applicationStatus,omitempty"`
}

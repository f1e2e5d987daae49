package getprocessingaccount

type Input struct {
	AccountID     string `json:"accountId" validate:"required"`
	ApplicationID string `json:"applicationId,omitempty"`
	// Reveal unseals the password and answers; otherwise they are masked.
	Reveal bool `json:"reveal"`
}

type SecurityQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Output struct {
	AccountID         string             `json:"accountId"`
	ApplicationID     string             `json:"applicationId"`
	AccountType       string             `json:"accountType"`
	Name              string             `json:"name,omitempty"`
	Email             string             `json:"email"`
	Password          string             `json:"password"`
	SecurityQuestions []SecurityQuestion `json:"securityQuestions"`
	Revealed          bool               `json:"revealed"`
	UpdatedAt         string             `json:"updatedAt"`
}

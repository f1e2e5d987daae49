package saveprocessingaccount

type SecurityQuestion struct {
	Question string `json:"question" validate:"required,max=256"`
	Answer   string `json:"answer" validate:"required,max=256"`
}

type Input struct {
	// AccountID selects an existing account to update; empty inserts.
	AccountID     string `json:"accountId,omitempty" validate:"omitempty,uuid"`
	ApplicationID string `json:"applicationId" validate:"required"`
	AccountType   string `json:"accountType" validate:"required,oneof=gmail pearson_vue custom"`
	Name          string `json:"name,omitempty" validate:"max=120"`
	Email         string `json:"email" validate:"required,email"`
	// Password may be left empty on update to keep the stored one.
	Password          string             `json:"password,omitempty" validate:"max=256"`
	SecurityQuestions []SecurityQuestion `json:"securityQuestions,omitempty" validate:"max=5,dive"`
}

type Output struct {
	AccountID       string `json:"accountId"`
	ApplicationID   string `json:"applicationId"`
	AccountType     string `json:"accountType"`
	Created         bool   `json:"created"`
	ProgressUpdated bool   `json:"progressUpdated"`
	UpdatedAt       string `json:"updatedAt"` // ISO 8601
}

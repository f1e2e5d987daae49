package updateapplicationstatus

type Input struct {
	ApplicationID string `json:"applicationId" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=initiated in-progress rejected completed pending approved"`
	UpdatedBy     string `json:"updatedBy,omitempty"`
}

type Output struct {
	ApplicationID  string `json:"applicationId"`
	PreviousStatus string `json:"previousStatus"`
	Status         string `json:"status"`
	UpdatedAt      string `json:"updatedAt"` // ISO 8601
}

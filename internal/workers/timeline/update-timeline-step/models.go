package updatetimelinestep

import "encoding/json"

type Input struct {
	ApplicationID string          `json:"applicationId" validate:"required"`
	StepKey       string          `json:"stepKey" validate:"required,stepkey"`
	Status        string          `json:"status" validate:"omitempty,oneof=pending completed"`
	Data          json.RawMessage `json:"data,omitempty"`
}

type Output struct {
	StepKey           string `json:"stepKey"`
	StepStatus        string `json:"stepStatus"`
	ParentKey         string `json:"parentKey,omitempty"`
	ParentStatus      string `json:"parentStatus,omitempty"`
	CompletedItems    int    `json:"completedItems"`
	TotalItems        int    `json:"totalItems"`
	Percentage        int    `json:"percentage"`
	ApplicationStatus string `json:"applicationStatus"`
}

package evaluateprogress

type Input struct {
	ApplicationID string `json:"applicationId" validate:"required"`
	// UseCache returns a cached evaluation when one is present.
	UseCache bool `json:"useCache"`
	// SkipIndex evaluates without writing the search index.
	SkipIndex bool `json:"skipIndex"`
}

type Output struct {
	ApplicationID     string   `json:"applicationId"`
	ApplicationType   string   `json:"applicationType"`
	ApplicationStatus string   `json:"applicationStatus"`
	Percentage        int      `json:"percentage"`
	CompletedItems    int      `json:"completedItems"`
	TotalItems        int      `json:"totalItems"`
	CompletedSteps    []string `json:"completedSteps"`
	StatusReason      string   `json:"statusReason,omitempty"`
	Cached            bool     `json:"cached"`
	Indexed           bool     `json:"indexed"`
}

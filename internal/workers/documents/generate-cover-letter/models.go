package generatecoverletter

type Input struct {
	ApplicationID string   `json:"applicationId" validate:"required"`
	Recipient     []string `json:"recipient" validate:"required,min=1,max=6,dive,required,max=120"`
	Subject       string   `json:"subject,omitempty" validate:"max=200"`
	// Paragraphs replaces the default body for the application type.
	Paragraphs []string `json:"paragraphs,omitempty" validate:"max=12,dive,required"`
	// Enclosures replaces the list derived from the documents on file.
	Enclosures []string `json:"enclosures,omitempty" validate:"max=20,dive,required"`
}

type Output struct {
	ApplicationID string `json:"applicationId"`
	Path          string `json:"path"`
	URL           string `json:"url"`
	ExpiresAt     string `json:"expiresAt"` // ISO 8601
	Size          int    `json:"size"`
}

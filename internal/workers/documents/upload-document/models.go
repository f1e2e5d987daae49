package uploaddocument

type Input struct {
	ApplicationID string `json:"applicationId" validate:"required"`
	Kind          string `json:"kind" validate:"required,oneof=picture diploma passport"`
	ContentType   string `json:"contentType" validate:"required,oneof=image/jpeg image/png application/pdf"`
	// Content is the base64-encoded file.
	Content string `json:"content" validate:"required,base64"`
}

type Output struct {
	ApplicationID      string `json:"applicationId"`
	Kind               string `json:"kind"`
	Path               string `json:"path"`
	Size               int    `json:"size"`
	DocumentsSubmitted bool   `json:"documentsSubmitted"`
	Percentage         int    `json:"percentage"`
	ApplicationStatus  string `json:"applicationStatus"`
}

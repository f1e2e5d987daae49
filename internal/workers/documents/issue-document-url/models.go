package issuedocumenturl

type Input struct {
	ApplicationID string `json:"applicationId" validate:"required"`
	// Kind resolves the path from the application's document columns.
	Kind string `json:"kind,omitempty" validate:"omitempty,oneof=picture diploma passport"`
	Path string `json:"path,omitempty" validate:"required_without=Kind"`
	// TTLSeconds overrides the default link lifetime, capped by config.
	TTLSeconds int `json:"ttlSeconds,omitempty" validate:"gte=0"`
}

type Output struct {
	Path      string `json:"path"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"` // ISO 8601
}

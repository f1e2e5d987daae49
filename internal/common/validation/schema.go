package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const (
	datePattern = `^$|^[0-9]{4}-[0-9]{2}-[0-9]{2}$`
	timePattern = `^$|^([01][0-9]|2[0-3]):[0-5][0-9]$`
)

// stepDataSchemas constrain the shape of timeline step payloads. Keys are
// never required here: partial data is storable and simply not complete.
var stepDataSchemas = map[string]string{
	"att_received": `{
		"type": "object",
		"properties": {
			"code":        {"type": "string", "maxLength": 64},
			"expiry_date": {"type": "string", "pattern": "` + datePattern + `"}
		}
	}`,
	"exam_date_booked":     bookingSchema,
	"biometrics_scheduled": bookingSchema,
	"quick_results": `{
		"type": "object",
		"properties": {
			"result":      {"type": "string", "maxLength": 32},
			"released_at": {"type": "string", "pattern": "` + datePattern + `"}
		}
	}`,
	"i765_submitted": `{
		"type": "object",
		"properties": {
			"receipt_number": {"type": "string", "pattern": "^$|^[A-Z]{3}[0-9]{10}$"},
			"filed_date":     {"type": "string", "pattern": "` + datePattern + `"}
		}
	}`,
	"card_received": `{
		"type": "object",
		"properties": {
			"card_number":   {"type": "string", "maxLength": 32},
			"received_date": {"type": "string", "pattern": "` + datePattern + `"}
		}
	}`,
	"mandatory_courses": `{
		"type": "object",
		"properties": {
			"infection":   {"type": ["boolean", "string"]},
			"child_abuse": {"type": ["boolean", "string"]}
		}
	}`,
}

const bookingSchema = `{
	"type": "object",
	"properties": {
		"date":     {"type": "string", "pattern": "` + datePattern + `"},
		"time":     {"type": "string", "pattern": "` + timePattern + `"},
		"location": {"type": "string", "maxLength": 256}
	}
}`

const genericSchema = `{"type": "object"}`

var (
	compileOnce     sync.Once
	compiledSchemas map[string]*gojsonschema.Schema
	compiledGeneric *gojsonschema.Schema
	compileErr      error
)

func compileSchemas() {
	compiledSchemas = make(map[string]*gojsonschema.Schema, len(stepDataSchemas))
	for key, raw := range stepDataSchemas {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			compileErr = fmt.Errorf("step data schema %s: %w", key, err)
			return
		}
		compiledSchemas[key] = s
	}
	compiledGeneric, compileErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(genericSchema))
}

// ValidateStepData checks a step payload against the schema for its key.
// Keys without a dedicated schema only need to be a JSON object.
func ValidateStepData(stepKey string, data map[string]interface{}) (*ValidationResult, error) {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return nil, compileErr
	}

	schema, ok := compiledSchemas[stepKey]
	if !ok {
		schema = compiledGeneric
	}
	if data == nil {
		data = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		field := e.Field()
		if field == "(root)" {
			field = stepKey
		}
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Message: e.Description(),
			Code:    strings.ToUpper(e.Type()),
		})
	}
	return out, nil
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

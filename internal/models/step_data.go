package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field is a step payload value. It accepts JSON strings, numbers and
// booleans; false and null read as blank.
type Field string

func (f *Field) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")), bytes.Equal(b, []byte("false")):
		*f = ""
	case bytes.Equal(b, []byte("true")):
		*f = "true"
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Field(s)
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		if _, err := strconv.ParseFloat(string(b), 64); err != nil {
			return fmt.Errorf("invalid number %s", b)
		}
		*f = Field(b)
	default:
		return fmt.Errorf("unsupported step data value %s", b)
	}
	return nil
}

func (f Field) Present() bool {
	return strings.TrimSpace(string(f)) != ""
}

func (f Field) String() string {
	return string(f)
}

// StepData is the closed set of payload shapes a timeline step can carry.
type StepData interface {
	Kind() string
	// Has reports whether field holds a non-blank value.
	Has(field string) bool
}

type ATTData struct {
	Code       Field `json:"code"`
	ExpiryDate Field `json:"expiry_date"`
}

func (ATTData) Kind() string { return "att" }

func (d ATTData) Has(field string) bool {
	switch field {
	case "code":
		return d.Code.Present()
	case "expiry_date":
		return d.ExpiryDate.Present()
	}
	return false
}

// ExamBookingData is shared by exam and biometrics appointments.
type ExamBookingData struct {
	Date     Field `json:"date"`
	Time     Field `json:"time"`
	Location Field `json:"location"`
}

func (ExamBookingData) Kind() string { return "booking" }

func (d ExamBookingData) Has(field string) bool {
	switch field {
	case "date":
		return d.Date.Present()
	case "time":
		return d.Time.Present()
	case "location":
		return d.Location.Present()
	}
	return false
}

type QuickResultsData struct {
	Result     Field `json:"result"`
	ReleasedAt Field `json:"released_at"`
}

func (QuickResultsData) Kind() string { return "quick_results" }

func (d QuickResultsData) Has(field string) bool {
	switch field {
	case "result":
		return d.Result.Present()
	case "released_at":
		return d.ReleasedAt.Present()
	}
	return false
}

type FilingData struct {
	ReceiptNumber Field `json:"receipt_number"`
	FiledDate     Field `json:"filed_date"`
}

func (FilingData) Kind() string { return "filing" }

func (d FilingData) Has(field string) bool {
	switch field {
	case "receipt_number":
		return d.ReceiptNumber.Present()
	case "filed_date":
		return d.FiledDate.Present()
	}
	return false
}

type CardData struct {
	CardNumber   Field `json:"card_number"`
	ReceivedDate Field `json:"received_date"`
}

func (CardData) Kind() string { return "card" }

func (d CardData) Has(field string) bool {
	switch field {
	case "card_number":
		return d.CardNumber.Present()
	case "received_date":
		return d.ReceivedDate.Present()
	}
	return false
}

type MandatoryCoursesData struct {
	Infection  Field `json:"infection"`
	ChildAbuse Field `json:"child_abuse"`
}

func (MandatoryCoursesData) Kind() string { return "mandatory_courses" }

func (d MandatoryCoursesData) Has(field string) bool {
	switch field {
	case "infection":
		return d.Infection.Present()
	case "child_abuse":
		return d.ChildAbuse.Present()
	}
	return false
}

// GenericData carries payloads of keys with no dedicated shape.
type GenericData map[string]Field

func (GenericData) Kind() string { return "generic" }

func (d GenericData) Has(field string) bool {
	return d[field].Present()
}

func emptyStepData(stepKey string) StepData {
	switch stepKey {
	case "att_received":
		return &ATTData{}
	case "exam_date_booked", "biometrics_scheduled":
		return &ExamBookingData{}
	case "quick_results":
		return &QuickResultsData{}
	case "i765_submitted":
		return &FilingData{}
	case "card_received":
		return &CardData{}
	case "mandatory_courses":
		return &MandatoryCoursesData{}
	default:
		return &GenericData{}
	}
}

// DecodeStepData decodes raw into the variant registered for stepKey.
// On malformed input it returns the empty variant together with the error,
// so callers can log and carry on as if no data was stored.
func DecodeStepData(stepKey string, raw json.RawMessage) (StepData, error) {
	target := emptyStepData(stepKey)
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return deref(target), nil
	}
	if err := json.Unmarshal(trimmed, target); err != nil {
		return deref(emptyStepData(stepKey)), fmt.Errorf("decode %s data: %w", stepKey, err)
	}
	return deref(target), nil
}

func deref(d StepData) StepData {
	switch v := d.(type) {
	case *ATTData:
		return *v
	case *ExamBookingData:
		return *v
	case *QuickResultsData:
		return *v
	case *FilingData:
		return *v
	case *CardData:
		return *v
	case *MandatoryCoursesData:
		return *v
	case *GenericData:
		if *v == nil {
			return GenericData{}
		}
		return *v
	}
	return d
}

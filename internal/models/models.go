// Package models holds the records of the case-management store.
package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

const (
	AppTypeNCLEX = "NCLEX"
	AppTypeEAD   = "EAD"
)

const (
	StepPending   = "pending"
	StepCompleted = "completed"
)

const (
	PaymentStep1        = "step1"
	PaymentStep2        = "step2"
	PaymentFull         = "full"
	PaymentQuickResults = "quick_results"

	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

const (
	AccountGmail      = "gmail"
	AccountPearsonVUE = "pearson_vue"
	AccountCustom     = "custom"
)

// Legacy application columns that predate the timeline.
const (
	FieldCreatedAt    = "created_at"
	FieldPicturePath  = "picture_path"
	FieldDiplomaPath  = "diploma_path"
	FieldPassportPath = "passport_path"
)

type Application struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Type         string    `json:"type"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	MobileNumber string    `json:"mobile_number"`
	PicturePath  string    `json:"picture_path"`
	DiplomaPath  string    `json:"diploma_path"`
	PassportPath string    `json:"passport_path"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (a *Application) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// LegacyField returns a raw column value by name; unknown names and unset
// timestamps read as "".
func (a *Application) LegacyField(name string) string {
	if a == nil {
		return ""
	}
	switch name {
	case FieldCreatedAt:
		if a.CreatedAt.IsZero() {
			return ""
		}
		return a.CreatedAt.Format(time.RFC3339)
	case FieldPicturePath:
		return a.PicturePath
	case FieldDiplomaPath:
		return a.DiplomaPath
	case FieldPassportPath:
		return a.PassportPath
	default:
		return ""
	}
}

type TimelineStep struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	StepKey       string          `json:"step_key"`
	Status        string          `json:"status"`
	Data          json.RawMessage `json:"data,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (s *TimelineStep) IsCompleted() bool {
	return s != nil && strings.EqualFold(strings.TrimSpace(s.Status), StepCompleted)
}

// HasData reports whether raw carries a payload. Blank input and a JSON
// null both count as none.
func HasData(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

// Payload decodes Data into the variant for the step key.
func (s *TimelineStep) Payload() (StepData, error) {
	return DecodeStepData(s.StepKey, s.Data)
}

type Payment struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	UserID        string    `json:"user_id"`
	PaymentType   string    `json:"payment_type"`
	Status        string    `json:"status"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	IntentID      string    `json:"intent_id,omitempty"`
	ReceiptPath   string    `json:"receipt_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (p *Payment) IsPaid() bool {
	return strings.EqualFold(strings.TrimSpace(p.Status), PaymentPaid)
}

type SecurityQuestion struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type ProcessingAccount struct {
	ID                string             `json:"id"`
	ApplicationID     string             `json:"application_id"`
	AccountType       string             `json:"account_type"`
	Name              string             `json:"name,omitempty"`
	Email             string             `json:"email"`
	Password          string             `json:"password"`
	SecurityQuestions []SecurityQuestion `json:"security_questions,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

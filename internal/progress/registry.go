package progress

import (
	"errors"
	"fmt"
	"strings"

	"gritsync/internal/models"
)

// Step keys shared by both application types.
const (
	MainAppSubmission     = "app_submission"
	SubAppCreated         = "app_created"
	SubDocumentsSubmitted = "documents_submitted"
	SubAppPaid            = "app_paid"
	SubAppStep2Paid       = "app_step2_paid"
	SubQuickResults       = "quick_results"
)

// SubPearsonAccountCreated exists on NCLEX applications only.
const SubPearsonAccountCreated = "pearson_account_created"

var ErrUnknownApplicationType = errors.New("unknown application type")

type SubStep struct {
	Key    string
	Title  string
	Policy Policy
}

type MainStep struct {
	Key      string
	Title    string
	SubSteps []SubStep
}

// Registry is the ordered step catalog of one application type.
type Registry struct {
	AppType string
	Steps   []MainStep
}

// MainFor returns the main step that declares subKey.
func (r *Registry) MainFor(subKey string) (*MainStep, bool) {
	for i := range r.Steps {
		for _, sub := range r.Steps[i].SubSteps {
			if sub.Key == subKey {
				return &r.Steps[i], true
			}
		}
	}
	return nil, false
}

func (r *Registry) IsMain(key string) bool {
	for _, m := range r.Steps {
		if m.Key == key {
			return true
		}
	}
	return false
}

func (r *Registry) IsSub(key string) bool {
	_, ok := r.MainFor(key)
	return ok
}

// Sub returns the sub-step declaration for key.
func (r *Registry) Sub(key string) (SubStep, bool) {
	if m, ok := r.MainFor(key); ok {
		for _, sub := range m.SubSteps {
			if sub.Key == key {
				return sub, true
			}
		}
	}
	return SubStep{}, false
}

// Contains reports whether key names any main or sub-step.
func (r *Registry) Contains(key string) bool {
	return r.IsMain(key) || r.IsSub(key)
}

func appSubmission(documentFields ...string) MainStep {
	return MainStep{
		Key:   MainAppSubmission,
		Title: "Application Submission",
		SubSteps: []SubStep{
			{SubAppCreated, "Application Created", UnionLegacy(models.FieldCreatedAt)},
			{SubDocumentsSubmitted, "Documents Submitted", UnionLegacy(documentFields...)},
			{SubAppPaid, "Application Fee Paid", PaymentPresence(models.PaymentStep1, models.PaymentFull)},
		},
	}
}

func step2Paid() SubStep {
	return SubStep{SubAppStep2Paid, "Step 2 Fee Paid", PaymentPresence(models.PaymentStep2, models.PaymentFull)}
}

func nclexRegistry() *Registry {
	return &Registry{
		AppType: models.AppTypeNCLEX,
		Steps: []MainStep{
			appSubmission(models.FieldPicturePath, models.FieldDiplomaPath, models.FieldPassportPath),
			{
				Key:   "credentialing",
				Title: "Credentialing",
				SubSteps: []SubStep{
					{"letter_submitted", "Letter Submitted", Direct()},
					{"official_docs_submitted", "Official Documents Submitted", Direct()},
					{"mandatory_courses", "Mandatory Courses", AnyOf(Direct(), CompositeData("infection", "child_abuse"))},
				},
			},
			{
				Key:   "bon_application",
				Title: "Board of Nursing Application",
				SubSteps: []SubStep{
					{"bon_submitted", "BON Application Submitted", Direct()},
					step2Paid(),
				},
			},
			{
				Key:   "nclex_eligibility",
				Title: "NCLEX Eligibility",
				SubSteps: []SubStep{
					{"eligibility_approved", "Eligibility Approved", Direct()},
				},
			},
			{
				Key:   "pearson_vue",
				Title: "Pearson VUE Registration",
				SubSteps: []SubStep{
					{SubPearsonAccountCreated, "Pearson VUE Account Created", AnyOf(Direct(), AccountPresence(models.AccountPearsonVUE))},
					{"exam_fee_paid", "Exam Fee Paid", Direct()},
				},
			},
			{
				Key:   "authorization_to_test",
				Title: "Authorization to Test",
				SubSteps: []SubStep{
					{"att_received", "ATT Received", CompositeData("code", "expiry_date")},
				},
			},
			{
				Key:   "exam_scheduling",
				Title: "Exam Scheduling",
				SubSteps: []SubStep{
					{"exam_date_booked", "Exam Date Booked", CompositeData("date", "time", "location")},
				},
			},
			{
				Key:   "exam_results",
				Title: "Exam Results",
				SubSteps: []SubStep{
					{SubQuickResults, "Quick Results", AnyOf(Direct(), CompositeData("result"))},
				},
			},
		},
	}
}

func eadRegistry() *Registry {
	return &Registry{
		AppType: models.AppTypeEAD,
		Steps: []MainStep{
			appSubmission(models.FieldPicturePath, models.FieldPassportPath),
			{
				Key:   "i765_filing",
				Title: "Form I-765 Filing",
				SubSteps: []SubStep{
					{"i765_prepared", "I-765 Prepared", Direct()},
					step2Paid(),
					{"i765_submitted", "I-765 Submitted", CompositeData("receipt_number", "filed_date")},
				},
			},
			{
				Key:   "biometrics",
				Title: "Biometrics",
				SubSteps: []SubStep{
					{"biometrics_scheduled", "Biometrics Scheduled", CompositeData("date", "time", "location")},
					{"biometrics_completed", "Biometrics Completed", Direct()},
				},
			},
			{
				Key:   "ead_decision",
				Title: "EAD Decision",
				SubSteps: []SubStep{
					{"ead_approved", "EAD Approved", Direct()},
					{"card_received", "Card Received", CompositeData("card_number", "received_date")},
				},
			},
		},
	}
}

// NormalizeAppType upper-cases and trims an application type.
func NormalizeAppType(appType string) string {
	return strings.ToUpper(strings.TrimSpace(appType))
}

// RegistryFor returns a fresh registry for appType.
func RegistryFor(appType string) (*Registry, error) {
	switch NormalizeAppType(appType) {
	case models.AppTypeNCLEX:
		return nclexRegistry(), nil
	case models.AppTypeEAD:
		return eadRegistry(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownApplicationType, appType)
	}
}

// registryForSnapshot falls back to NCLEX when the application or its type is unknown.
func registryForSnapshot(s Snapshot) *Registry {
	if s.Application != nil {
		if r, err := RegistryFor(s.Application.Type); err == nil {
			return r
		}
	}
	return nclexRegistry()
}

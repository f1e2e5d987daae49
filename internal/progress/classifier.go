package progress

import (
	"strings"
)

type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusInProgress Status = "in-progress"
	StatusRejected   Status = "rejected"
	StatusCompleted  Status = "completed"
	// Pending and Approved are legacy stored values; Classify never returns them.
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
)

// Rule is one row of the status decision table.
type Rule struct {
	Name   string
	Status Status
	Match  func(Snapshot) bool
}

func explicitStatus(s Snapshot) string {
	if s.Application == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s.Application.Status))
}

// Rules returns the decision table in precedence order. The last rule
// always matches.
func Rules() []Rule {
	return []Rule{
		{
			Name:   "explicit-completed",
			Status: StatusCompleted,
			Match: func(s Snapshot) bool {
				st := explicitStatus(s)
				return st == string(StatusCompleted) || st == string(StatusApproved)
			},
		},
		{
			Name:   "explicit-rejected",
			Status: StatusRejected,
			Match: func(s Snapshot) bool {
				return explicitStatus(s) == string(StatusRejected)
			},
		},
		{
			Name:   "quick-results-recorded",
			Status: StatusCompleted,
			Match: func(s Snapshot) bool {
				return s.Step(SubQuickResults) != nil && s.StepData(SubQuickResults).Has("result")
			},
		},
		{
			Name:   "quick-results-completed",
			Status: StatusCompleted,
			Match: func(s Snapshot) bool {
				return s.Step(SubQuickResults).IsCompleted()
			},
		},
		{
			Name:   "submission-incomplete",
			Status: StatusInitiated,
			Match: func(s Snapshot) bool {
				return !SubmissionComplete(s)
			},
		},
		{
			Name:   "in-progress",
			Status: StatusInProgress,
			Match:  func(Snapshot) bool { return true },
		},
	}
}

// SubmissionComplete is the creation, documents and fee composite of the
// application submission step, evaluated from the sub-step predicates.
func SubmissionComplete(s Snapshot) bool {
	reg := registryForSnapshot(s)
	for _, key := range []string{SubAppCreated, SubDocumentsSubmitted, SubAppPaid} {
		sub, ok := reg.Sub(key)
		if !ok || !sub.Policy.Eval(key, s) {
			return false
		}
	}
	return true
}

// Classify returns the status of the first matching rule.
func Classify(s Snapshot) Status {
	st, _ := Explain(s)
	return st
}

// Explain is Classify plus the name of the rule that decided.
func Explain(s Snapshot) (Status, string) {
	for _, r := range Rules() {
		if r.Match(s) {
			return r.Status, r.Name
		}
	}
	return StatusInProgress, "in-progress"
}

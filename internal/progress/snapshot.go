package progress

import (
	"gritsync/internal/models"
)

// Snapshot is the full record set the predicates read. It is always built
// from a fresh fetch; nothing derived from it outlives a mutation.
type Snapshot struct {
	Application *models.Application
	Steps       []models.TimelineStep
	Payments    []models.Payment
	Accounts    []models.ProcessingAccount
}

// Step returns the row for key. When several rows share a key the most
// recently updated one wins and the greater id breaks ties, matching the
// row the store's upsert targets.
func (s Snapshot) Step(key string) *models.TimelineStep {
	var found *models.TimelineStep
	for i := range s.Steps {
		st := &s.Steps[i]
		if st.StepKey != key {
			continue
		}
		if found == nil || st.UpdatedAt.After(found.UpdatedAt) ||
			(st.UpdatedAt.Equal(found.UpdatedAt) && st.ID > found.ID) {
			found = st
		}
	}
	return found
}

// StepData decodes the payload of key; a missing row or malformed payload
// yields the empty variant.
func (s Snapshot) StepData(key string) models.StepData {
	st := s.Step(key)
	if st == nil {
		d, _ := models.DecodeStepData(key, nil)
		return d
	}
	d, _ := st.Payload()
	return d
}

// DataErrors lists payloads that failed to decode, for logging.
func (s Snapshot) DataErrors() []error {
	var errs []error
	for i := range s.Steps {
		if _, err := s.Steps[i].Payload(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (s Snapshot) HasAccount(accountType string) bool {
	for _, a := range s.Accounts {
		if a.AccountType == accountType {
			return true
		}
	}
	return false
}

// Empty reports whether nothing has been recorded against the timeline yet.
func (s Snapshot) Empty() bool {
	return len(s.Steps) == 0 && len(s.Payments) == 0
}

package progress

import (
	"gritsync/internal/models"
)

type SubResult struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type MainResult struct {
	Key       string      `json:"key"`
	Title     string      `json:"title"`
	Completed bool        `json:"completed"`
	Explicit  bool        `json:"explicit"`
	SubSteps  []SubResult `json:"subSteps"`
}

// Result is the evaluated state of one registry over one snapshot.
type Result struct {
	AppType        string       `json:"applicationType"`
	Steps          []MainResult `json:"steps"`
	CompletedItems int          `json:"completedItems"`
	TotalItems     int          `json:"totalItems"`
	Percentage     int          `json:"percentage"`
	DataErrors     []error      `json:"-"`
}

func (r Result) Main(key string) (MainResult, bool) {
	for _, m := range r.Steps {
		if m.Key == key {
			return m, true
		}
	}
	return MainResult{}, false
}

func (r Result) Sub(key string) (SubResult, bool) {
	for _, m := range r.Steps {
		for _, sub := range m.SubSteps {
			if sub.Key == key {
				return sub, true
			}
		}
	}
	return SubResult{}, false
}

// CompletedKeys lists every completed main and sub-step key in registry order.
func (r Result) CompletedKeys() []string {
	var keys []string
	for _, m := range r.Steps {
		if m.Completed {
			keys = append(keys, m.Key)
		}
		for _, sub := range m.SubSteps {
			if sub.Completed {
				keys = append(keys, sub.Key)
			}
		}
	}
	return keys
}

// Evaluate applies every predicate of reg to s.
//
// A main step is complete when its own row says so or when all of its
// sub-steps are; a main step with no sub-steps needs its own row. Items of
// a completed main step all count as completed. Until any step or payment
// has been recorded nothing is reported complete and the percentage stays 0.
func Evaluate(reg *Registry, s Snapshot) Result {
	res := Result{AppType: reg.AppType, DataErrors: s.DataErrors()}

	for _, m := range reg.Steps {
		mr := MainResult{Key: m.Key, Title: m.Title}
		mr.Explicit = s.Step(m.Key).IsCompleted()

		done := 0
		for _, sub := range m.SubSteps {
			ok := sub.Policy.Eval(sub.Key, s)
			if ok {
				done++
			}
			mr.SubSteps = append(mr.SubSteps, SubResult{Key: sub.Key, Title: sub.Title, Completed: ok})
		}

		derived := len(m.SubSteps) > 0 && done == len(m.SubSteps)
		mr.Completed = mr.Explicit || derived

		res.TotalItems += 1 + len(m.SubSteps)
		if mr.Completed {
			res.CompletedItems += 1 + len(m.SubSteps)
		} else {
			res.CompletedItems += done
		}
		res.Steps = append(res.Steps, mr)
	}

	if s.Empty() {
		res.CompletedItems = 0
		for i := range res.Steps {
			res.Steps[i].Completed = false
			for j := range res.Steps[i].SubSteps {
				res.Steps[i].SubSteps[j].Completed = false
			}
		}
	}
	res.Percentage = Percentage(res.CompletedItems, res.TotalItems)
	return res
}

// EvaluateSnapshot evaluates s against the registry of its application type,
// NCLEX when the type is missing or unknown.
func EvaluateSnapshot(s Snapshot) Result {
	return Evaluate(registryForSnapshot(s), s)
}

// Percentage is round-half-up of 100*completed/total, and 0 when total is 0.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*completed + total) / (2 * total)
}

// ParentStatusFor decides what the parent of subKey should be written as
// after subKey changed: completed when every sibling predicate holds,
// pending otherwise. ok is false when subKey is not a sub-step of reg.
func ParentStatusFor(reg *Registry, s Snapshot, subKey string) (mainKey, status string, ok bool) {
	m, found := reg.MainFor(subKey)
	if !found {
		return "", "", false
	}
	for _, sub := range m.SubSteps {
		if !sub.Policy.Eval(sub.Key, s) {
			return m.Key, models.StepPending, true
		}
	}
	return m.Key, models.StepCompleted, true
}

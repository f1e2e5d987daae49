package progress

import (
	"strings"
)

// Policy is a named, side-effect-free completion predicate for a sub-step.
type Policy struct {
	Name string
	eval func(key string, s Snapshot) bool
}

func (p Policy) Eval(key string, s Snapshot) bool {
	if p.eval == nil {
		return false
	}
	return p.eval(key, s)
}

// Direct is true when the step's own row is completed.
func Direct() Policy {
	return Policy{
		Name: "direct",
		eval: func(key string, s Snapshot) bool {
			return s.Step(key).IsCompleted()
		},
	}
}

// UnionLegacy is Direct, or every listed application column is non-empty.
func UnionLegacy(fields ...string) Policy {
	return Policy{
		Name: "union-legacy(" + strings.Join(fields, ",") + ")",
		eval: func(key string, s Snapshot) bool {
			if s.Step(key).IsCompleted() {
				return true
			}
			if s.Application == nil || len(fields) == 0 {
				return false
			}
			for _, f := range fields {
				if strings.TrimSpace(s.Application.LegacyField(f)) == "" {
					return false
				}
			}
			return true
		},
	}
}

// PaymentPresence is true when any paid payment has one of the given types.
func PaymentPresence(types ...string) Policy {
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return Policy{
		Name: "payment(" + strings.Join(types, "|") + ")",
		eval: func(_ string, s Snapshot) bool {
			for i := range s.Payments {
				p := &s.Payments[i]
				if p.IsPaid() && allowed[p.PaymentType] {
					return true
				}
			}
			return false
		},
	}
}

// CompositeData is true only when the step payload holds every field.
// The row's status flag is not consulted.
func CompositeData(fields ...string) Policy {
	return Policy{
		Name: "composite(" + strings.Join(fields, ",") + ")",
		eval: func(key string, s Snapshot) bool {
			if s.Step(key) == nil || len(fields) == 0 {
				return false
			}
			data := s.StepData(key)
			for _, f := range fields {
				if !data.Has(f) {
					return false
				}
			}
			return true
		},
	}
}

// AccountPresence is true when a processing account of accountType exists.
func AccountPresence(accountType string) Policy {
	return Policy{
		Name: "account(" + accountType + ")",
		eval: func(_ string, s Snapshot) bool {
			return s.HasAccount(accountType)
		},
	}
}

// AnyOf is true when at least one of ps is.
func AnyOf(ps ...Policy) Policy {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return Policy{
		Name: "any(" + strings.Join(names, ";") + ")",
		eval: func(key string, s Snapshot) bool {
			for _, p := range ps {
				if p.Eval(key, s) {
					return true
				}
			}
			return false
		},
	}
}


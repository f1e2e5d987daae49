package feed

import (
	"encoding/json"

	"gritsync/internal/models"
)

// Action tells the caller what a reduced event requires.
type Action int

const (
	// ActionNone means the event changed nothing.
	ActionNone Action = iota
	// ActionApplied means the event was merged into the state.
	ActionApplied
	// ActionRefetch means the event could not be merged and the affected
	// collection must be reloaded from the store.
	ActionRefetch
)

func (a Action) String() string {
	switch a {
	case ActionApplied:
		return "applied"
	case ActionRefetch:
		return "refetch"
	default:
		return "none"
	}
}

// State is one application's record set, indexed by primary key.
type State struct {
	Application *models.Application
	Steps       map[string]models.TimelineStep
	Payments    map[string]models.Payment
	Accounts    map[string]models.ProcessingAccount
}

// NewState indexes freshly fetched rows.
func NewState(app *models.Application, steps []models.TimelineStep, payments []models.Payment, accounts []models.ProcessingAccount) State {
	st := State{
		Application: app,
		Steps:       make(map[string]models.TimelineStep, len(steps)),
		Payments:    make(map[string]models.Payment, len(payments)),
		Accounts:    make(map[string]models.ProcessingAccount, len(accounts)),
	}
	for _, s := range steps {
		st.Steps[s.ID] = s
	}
	for _, p := range payments {
		st.Payments[p.ID] = p
	}
	for _, a := range accounts {
		st.Accounts[a.ID] = a
	}
	return st
}

// Reduce merges ev into st and returns the new state. st is never mutated.
func Reduce(st State, ev Event) (State, Action) {
	switch ev.Table {
	case TableApplications:
		return reduceApplication(st, ev)
	case TableSteps:
		m, act := reduceRows(st.Steps, ev, func(s models.TimelineStep) string { return s.ID })
		st.Steps = m
		return st, act
	case TablePayments:
		m, act := reduceRows(st.Payments, ev, func(p models.Payment) string { return p.ID })
		st.Payments = m
		return st, act
	case TableAccounts:
		m, act := reduceRows(st.Accounts, ev, func(a models.ProcessingAccount) string { return a.ID })
		st.Accounts = m
		return st, act
	default:
		return st, ActionNone
	}
}

func reduceApplication(st State, ev Event) (State, Action) {
	switch ev.Type {
	case Delete:
		if st.Application == nil || st.Application.ID != ev.RecordID {
			return st, ActionNone
		}
		st.Application = nil
		return st, ActionApplied
	case Insert, Update:
		var app models.Application
		if len(ev.Record) == 0 || json.Unmarshal(ev.Record, &app) != nil || app.ID == "" {
			return st, ActionRefetch
		}
		if ev.Type == Update && (st.Application == nil || st.Application.ID != app.ID) {
			return st, ActionRefetch
		}
		st.Application = &app
		return st, ActionApplied
	default:
		return st, ActionRefetch
	}
}

func reduceRows[T any](rows map[string]T, ev Event, key func(T) string) (map[string]T, Action) {
	switch ev.Type {
	case Delete:
		if _, ok := rows[ev.RecordID]; !ok {
			return rows, ActionNone
		}
		next := clone(rows)
		delete(next, ev.RecordID)
		return next, ActionApplied
	case Insert, Update:
		var rec T
		if len(ev.Record) == 0 || json.Unmarshal(ev.Record, &rec) != nil || key(rec) == "" {
			return rows, ActionRefetch
		}
		id := key(rec)
		if _, ok := rows[id]; !ok && ev.Type == Update {
			return rows, ActionRefetch
		}
		next := clone(rows)
		next[id] = rec
		return next, ActionApplied
	default:
		return rows, ActionRefetch
	}
}

func clone[T any](m map[string]T) map[string]T {
	out := make(map[string]T, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Package session is the per-application view model behind the progress
// endpoints: four independently loaded collections, a change-feed inbox and
// derived selectors.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"gritsync/internal/common/logger"
	"gritsync/internal/common/metrics"
	"gritsync/internal/feed"
	"gritsync/internal/models"
	"gritsync/internal/progress"
	"gritsync/internal/store"
	"gritsync/internal/timeline"
)

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseLoaded  Phase = "loaded"
	PhaseError   Phase = "error"
)

type Collection string

const (
	CollectionApplication Collection = "application"
	CollectionSteps       Collection = "steps"
	CollectionPayments    Collection = "payments"
	CollectionAccounts    Collection = "accounts"
)

var collections = []Collection{CollectionApplication, CollectionSteps, CollectionPayments, CollectionAccounts}

var tableCollections = map[string]Collection{
	feed.TableApplications: CollectionApplication,
	feed.TableSteps:        CollectionSteps,
	feed.TablePayments:     CollectionPayments,
	feed.TableAccounts:     CollectionAccounts,
}

// Resource is the load state of one collection.
type Resource struct {
	Phase Phase  `json:"phase"`
	Error string `json:"error,omitempty"`
}

type Session struct {
	applicationID string
	reader        timeline.Reader
	logger        logger.Logger

	mu        sync.RWMutex
	state     feed.State
	resources map[Collection]Resource
	missing   bool
}

func New(applicationID string, reader timeline.Reader, log logger.Logger) *Session {
	s := &Session{
		applicationID: applicationID,
		reader:        reader,
		logger:        log.WithFields(map[string]interface{}{"applicationId": applicationID}),
		state:         feed.NewState(nil, nil, nil, nil),
		resources:     make(map[Collection]Resource, len(collections)),
	}
	for _, c := range collections {
		s.resources[c] = Resource{Phase: PhaseIdle}
	}
	return s
}

func (s *Session) ApplicationID() string {
	return s.applicationID
}

// Load fetches every collection concurrently. A failed collection is left
// empty in phase error and the session stays usable; the first failure is
// returned so the caller can surface it.
func (s *Session) Load(ctx context.Context) error {
	var g errgroup.Group
	for _, c := range collections {
		c := c
		g.Go(func() error { return s.fetch(ctx, c) })
	}
	return g.Wait()
}

func (s *Session) setPhase(c Collection, p Phase, err error) {
	r := Resource{Phase: p}
	if err != nil {
		r.Error = err.Error()
	}
	s.resources[c] = r
}

// fetch reloads one collection and replaces it in the state.
func (s *Session) fetch(ctx context.Context, c Collection) error {
	s.mu.Lock()
	s.setPhase(c, PhaseLoading, nil)
	s.mu.Unlock()

	var (
		app      *models.Application
		steps    []models.TimelineStep
		payments []models.Payment
		accounts []models.ProcessingAccount
		err      error
	)
	switch c {
	case CollectionApplication:
		app, err = s.reader.GetApplication(ctx, s.applicationID)
	case CollectionSteps:
		steps, err = s.reader.ListTimelineSteps(ctx, s.applicationID)
	case CollectionPayments:
		payments, err = s.reader.ListPayments(ctx, s.applicationID)
	case CollectionAccounts:
		accounts, err = s.reader.ListAccounts(ctx, s.applicationID)
	}

	if err != nil {
		metrics.SessionFetchFailures.WithLabelValues(string(c)).Inc()
		s.logger.Error("collection fetch failed, showing empty", map[string]interface{}{
			"collection": string(c),
			"error":      err.Error(),
		})
	}

	// the fetched value, or the empty default on failure
	fresh := feed.NewState(app, steps, payments, accounts)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch c {
	case CollectionApplication:
		s.state.Application = fresh.Application
		s.missing = errors.Is(err, store.ErrNotFound)
	case CollectionSteps:
		s.state.Steps = fresh.Steps
	case CollectionPayments:
		s.state.Payments = fresh.Payments
	case CollectionAccounts:
		s.state.Accounts = fresh.Accounts
	}
	if err != nil {
		s.setPhase(c, PhaseError, err)
		return err
	}
	s.setPhase(c, PhaseLoaded, nil)
	return nil
}

// Apply merges one change event, refetching the affected collection when
// the event cannot be merged in place. Events for other applications are
// ignored.
func (s *Session) Apply(ctx context.Context, ev feed.Event) feed.Action {
	if ev.ApplicationID != "" && ev.ApplicationID != s.applicationID {
		return feed.ActionNone
	}

	s.mu.Lock()
	next, act := feed.Reduce(s.state, ev)
	s.state = next
	s.mu.Unlock()

	if act == feed.ActionRefetch {
		if c, ok := tableCollections[ev.Table]; ok {
			_ = s.fetch(ctx, c)
		}
	}
	s.logger.Debug("change event applied", map[string]interface{}{
		"table":  ev.Table,
		"type":   string(ev.Type),
		"action": act.String(),
	})
	return act
}

// Run applies events until ctx ends or events is closed. onChange, when set,
// runs after every event that changed the state.
func (s *Session) Run(ctx context.Context, events <-chan feed.Event, onChange func()) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if act := s.Apply(ctx, ev); act != feed.ActionNone && onChange != nil {
				onChange()
			}
		}
	}
}

func (s *Session) Resource(c Collection) Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resources[c]
}

// Snapshot copies the current state into evaluator input, steps ordered by
// update time.
func (s *Session) Snapshot() progress.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := progress.Snapshot{
		Steps:    make([]models.TimelineStep, 0, len(s.state.Steps)),
		Payments: make([]models.Payment, 0, len(s.state.Payments)),
		Accounts: make([]models.ProcessingAccount, 0, len(s.state.Accounts)),
	}
	if s.state.Application != nil {
		app := *s.state.Application
		snap.Application = &app
	}
	for _, st := range s.state.Steps {
		snap.Steps = append(snap.Steps, st)
	}
	for _, p := range s.state.Payments {
		snap.Payments = append(snap.Payments, p)
	}
	for _, a := range s.state.Accounts {
		snap.Accounts = append(snap.Accounts, a)
	}
	sort.Slice(snap.Steps, func(i, j int) bool {
		if snap.Steps[i].UpdatedAt.Equal(snap.Steps[j].UpdatedAt) {
			return snap.Steps[i].ID < snap.Steps[j].ID
		}
		return snap.Steps[i].UpdatedAt.Before(snap.Steps[j].UpdatedAt)
	})
	sort.Slice(snap.Payments, func(i, j int) bool { return snap.Payments[i].CreatedAt.Before(snap.Payments[j].CreatedAt) })
	sort.Slice(snap.Accounts, func(i, j int) bool { return snap.Accounts[i].CreatedAt.Before(snap.Accounts[j].CreatedAt) })
	return snap
}

func (s *Session) Progress() progress.Result {
	return progress.EvaluateSnapshot(s.Snapshot())
}

func (s *Session) Status() progress.Status {
	return progress.Classify(s.Snapshot())
}

// View is the JSON document served for one application.
type View struct {
	ApplicationID string                  `json:"applicationId"`
	Resources     map[Collection]Resource `json:"resources"`
	Status        progress.Status         `json:"status"`
	Progress      progress.Result         `json:"progress"`
}

func (s *Session) View() View {
	snap := s.Snapshot()
	res := progress.EvaluateSnapshot(snap)
	for _, err := range res.DataErrors {
		s.logger.Warn("step data treated as empty", map[string]interface{}{"error": err.Error()})
	}

	s.mu.RLock()
	resources := make(map[Collection]Resource, len(s.resources))
	for c, r := range s.resources {
		resources[c] = r
	}
	s.mu.RUnlock()

	return View{
		ApplicationID: s.applicationID,
		Resources:     resources,
		Status:        progress.Classify(snap),
		Progress:      res,
	}
}

// Loaded reports whether the application row itself was found.
func (s *Session) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Application != nil
}

// Missing reports whether the last application fetch found no such row.
func (s *Session) Missing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.missing
}

// Package timeline writes timeline steps and keeps their parent main steps
// consistent with the completion evaluator.
package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	apperrors "gritsync/internal/common/errors"
	"gritsync/internal/common/logger"
	"gritsync/internal/common/metrics"
	"gritsync/internal/common/observability"
	"gritsync/internal/common/validation"
	"gritsync/internal/feed"
	"gritsync/internal/models"
	"gritsync/internal/progress"
	"gritsync/internal/store"
)

// Publisher receives one change event per written row.
type Publisher interface {
	Publish(ctx context.Context, ev feed.Event) error
}

type UpdateRequest struct {
	ApplicationID string
	StepKey       string
	Status        string
	Data          json.RawMessage
}

// Outcome is the state observed after a mutation chain finished.
type Outcome struct {
	Step         *models.TimelineStep
	ParentKey    string
	ParentStatus string
	Snapshot     progress.Snapshot
	Progress     progress.Result
	Status       progress.Status
}

type Mutator struct {
	store  Store
	pub    Publisher
	obs    *observability.Observability
	logger logger.Logger
}

func NewMutator(s Store, pub Publisher, obs *observability.Observability, log logger.Logger) *Mutator {
	if obs == nil {
		obs = observability.Noop()
	}
	return &Mutator{
		store:  s,
		pub:    pub,
		obs:    obs,
		logger: log.WithFields(map[string]interface{}{"component": "timeline-mutator"}),
	}
}

// normalizeStatus lower-cases status. Blank stays blank so the store keeps
// the stored status on a data-only edit.
func normalizeStatus(status string) (string, bool) {
	switch s := strings.ToLower(strings.TrimSpace(status)); s {
	case "", models.StepPending, models.StepCompleted:
		return s, true
	default:
		return "", false
	}
}

func (m *Mutator) registryFor(ctx context.Context, applicationID string) (*models.Application, *progress.Registry, error) {
	app, err := m.store.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, apperrors.NewApplicationNotFoundError(applicationID)
		}
		return nil, nil, apperrors.NewQueryExecutionFailedError("get_application", err)
	}
	reg, err := progress.RegistryFor(app.Type)
	if err != nil {
		return nil, nil, apperrors.NewInvalidInputError(err.Error())
	}
	return app, reg, nil
}

func validateData(stepKey string, raw json.RawMessage) error {
	if !models.HasData(raw) {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return apperrors.NewStepDataInvalidError(stepKey, "data must be a JSON object")
	}
	res, err := validation.ValidateStepData(stepKey, obj)
	if err != nil {
		return apperrors.NewStepDataInvalidError(stepKey, err.Error())
	}
	if !res.Valid {
		return apperrors.NewStepDataInvalidError(stepKey, strings.Join(res.GetErrorMessages(), "; "))
	}
	return nil
}

// UpdateSubStep persists one sub-step and then re-derives its parent from a
// fresh read. Recording an exam result also marks the application completed.
// The parent write is not transactional with the sub-step write; a
// concurrent edit between the two can leave the parent stale until the next
// mutation.
func (m *Mutator) UpdateSubStep(ctx context.Context, req UpdateRequest) (out *Outcome, err error) {
	ctx, span := m.obs.StartSpan(ctx, "timeline.UpdateSubStep",
		attribute.String("application.id", req.ApplicationID),
		attribute.String("step.key", req.StepKey))
	defer func() { observability.EndSpan(span, err) }()

	status, ok := normalizeStatus(req.Status)
	if !ok {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("status must be pending or completed, got %q", req.Status))
	}
	app, reg, err := m.registryFor(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !reg.IsSub(req.StepKey) {
		return nil, apperrors.NewUnknownStepKeyError(app.Type, req.StepKey)
	}
	if err := validateData(req.StepKey, req.Data); err != nil {
		return nil, err
	}

	var events []feed.Event
	defer func() { m.publish(ctx, events) }()

	written, inserted, err := m.store.UpsertTimelineStep(ctx, models.TimelineStep{
		ApplicationID: req.ApplicationID,
		StepKey:       req.StepKey,
		Status:        status,
		Data:          req.Data,
	})
	if err != nil {
		metrics.TimelineStepWrites.WithLabelValues(req.StepKey, "error").Inc()
		return nil, apperrors.NewStepWriteFailedError(req.StepKey, err)
	}
	metrics.TimelineStepWrites.WithLabelValues(req.StepKey, written.Status).Inc()
	events = m.appendStepEvent(events, written, inserted)

	if req.StepKey == progress.SubQuickResults && hasResult(req.Data) {
		if err := m.store.UpdateApplicationStatus(ctx, req.ApplicationID, string(progress.StatusCompleted)); err != nil {
			return &Outcome{Step: written}, apperrors.NewStatusUpdateFailedError(err)
		}
		refreshed, err := m.store.GetApplication(ctx, req.ApplicationID)
		if err != nil {
			return &Outcome{Step: written}, apperrors.NewQueryExecutionFailedError("get_application", err)
		}
		events = m.appendRecordEvent(events, feed.TableApplications, feed.Update, req.ApplicationID, refreshed.ID, refreshed)
	}

	out, evs, err := m.rederive(ctx, reg, req.ApplicationID, req.StepKey)
	events = append(events, evs...)
	if out != nil {
		out.Step = written
	}
	return out, err
}

// UpdateMainStep writes a main step directly. The written status overrides
// whatever its sub-steps derive to.
func (m *Mutator) UpdateMainStep(ctx context.Context, req UpdateRequest) (out *Outcome, err error) {
	ctx, span := m.obs.StartSpan(ctx, "timeline.UpdateMainStep",
		attribute.String("application.id", req.ApplicationID),
		attribute.String("step.key", req.StepKey))
	defer func() { observability.EndSpan(span, err) }()

	status, ok := normalizeStatus(req.Status)
	if !ok {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("status must be pending or completed, got %q", req.Status))
	}
	app, reg, err := m.registryFor(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !reg.IsMain(req.StepKey) {
		return nil, apperrors.NewUnknownStepKeyError(app.Type, req.StepKey)
	}
	if err := validateData(req.StepKey, req.Data); err != nil {
		return nil, err
	}

	written, inserted, err := m.store.UpsertTimelineStep(ctx, models.TimelineStep{
		ApplicationID: req.ApplicationID,
		StepKey:       req.StepKey,
		Status:        status,
		Data:          req.Data,
	})
	if err != nil {
		metrics.TimelineStepWrites.WithLabelValues(req.StepKey, "error").Inc()
		return nil, apperrors.NewStepWriteFailedError(req.StepKey, err)
	}
	metrics.TimelineStepWrites.WithLabelValues(req.StepKey, written.Status).Inc()
	m.publish(ctx, m.appendStepEvent(nil, written, inserted))

	snap, err := LoadSnapshot(ctx, m.store, req.ApplicationID)
	if err != nil {
		return &Outcome{Step: written}, apperrors.NewRederiveFailedError(err)
	}
	out = m.outcome(reg, snap)
	out.Step = written
	return out, nil
}

// Rederive re-reads the application and rewrites the parent of subKey. It
// is the tail of UpdateSubStep, used when a sub-step predicate changed
// through a payment or a document rather than through its own row.
func (m *Mutator) Rederive(ctx context.Context, applicationID, subKey string) (out *Outcome, err error) {
	ctx, span := m.obs.StartSpan(ctx, "timeline.Rederive",
		attribute.String("application.id", applicationID),
		attribute.String("step.key", subKey))
	defer func() { observability.EndSpan(span, err) }()

	_, reg, err := m.registryFor(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if !reg.IsSub(subKey) {
		return nil, apperrors.NewUnknownStepKeyError(reg.AppType, subKey)
	}
	out, events, err := m.rederive(ctx, reg, applicationID, subKey)
	m.publish(ctx, events)
	return out, err
}

func (m *Mutator) rederive(ctx context.Context, reg *progress.Registry, applicationID, subKey string) (*Outcome, []feed.Event, error) {
	snap, err := LoadSnapshot(ctx, m.store, applicationID)
	if err != nil {
		return nil, nil, apperrors.NewRederiveFailedError(err)
	}
	for _, derr := range snap.DataErrors() {
		m.logger.Warn("step data treated as empty", map[string]interface{}{
			"applicationId": applicationID,
			"error":         derr.Error(),
		})
	}

	mainKey, parentStatus, ok := progress.ParentStatusFor(reg, snap, subKey)
	if !ok {
		return m.outcome(reg, snap), nil, nil
	}

	parent, inserted, err := m.store.UpsertTimelineStep(ctx, models.TimelineStep{
		ApplicationID: applicationID,
		StepKey:       mainKey,
		Status:        parentStatus,
	})
	if err != nil {
		metrics.ParentRederivations.WithLabelValues(mainKey, "error").Inc()
		out := m.outcome(reg, snap)
		out.ParentKey = mainKey
		return out, nil, apperrors.NewRederiveFailedError(fmt.Errorf("write %s: %w", mainKey, err))
	}
	metrics.ParentRederivations.WithLabelValues(mainKey, parentStatus).Inc()
	m.logger.Info("parent step re-derived", map[string]interface{}{
		"applicationId": applicationID,
		"subStep":       subKey,
		"mainStep":      mainKey,
		"status":        parentStatus,
	})

	snap.Steps = replaceStep(snap.Steps, *parent)
	out := m.outcome(reg, snap)
	out.ParentKey = mainKey
	out.ParentStatus = parentStatus
	return out, m.appendStepEvent(nil, parent, inserted), nil
}

func (m *Mutator) outcome(reg *progress.Registry, snap progress.Snapshot) *Outcome {
	res := progress.Evaluate(reg, snap)
	metrics.ProgressPercentage.WithLabelValues(reg.AppType).Observe(float64(res.Percentage))
	return &Outcome{
		Snapshot: snap,
		Progress: res,
		Status:   progress.Classify(snap),
	}
}

// replaceStep swaps the row with the same id, or appends the row.
func replaceStep(steps []models.TimelineStep, st models.TimelineStep) []models.TimelineStep {
	out := make([]models.TimelineStep, 0, len(steps)+1)
	replaced := false
	for _, s := range steps {
		if s.ID == st.ID {
			out = append(out, st)
			replaced = true
			continue
		}
		out = append(out, s)
	}
	if !replaced {
		out = append(out, st)
	}
	return out
}

func hasResult(raw json.RawMessage) bool {
	d, err := models.DecodeStepData(progress.SubQuickResults, raw)
	return err == nil && d.Has("result")
}

func (m *Mutator) appendStepEvent(events []feed.Event, st *models.TimelineStep, inserted bool) []feed.Event {
	typ := feed.Update
	if inserted {
		typ = feed.Insert
	}
	return m.appendRecordEvent(events, feed.TableSteps, typ, st.ApplicationID, st.ID, st)
}

func (m *Mutator) appendRecordEvent(events []feed.Event, table string, typ feed.EventType, applicationID, recordID string, record interface{}) []feed.Event {
	ev, err := feed.NewEvent(table, typ, applicationID, recordID, record)
	if err != nil {
		m.logger.Warn("change event not built", map[string]interface{}{"error": err.Error()})
		return events
	}
	return append(events, ev)
}

// publish is best effort: sessions that miss an event resync on their next load.
func (m *Mutator) publish(ctx context.Context, events []feed.Event) {
	if m.pub == nil {
		return
	}
	for _, ev := range events {
		if err := m.pub.Publish(ctx, ev); err != nil {
			m.logger.Warn("change event not published", map[string]interface{}{
				"table":    ev.Table,
				"recordId": ev.RecordID,
				"error":    err.Error(),
			})
		}
	}
}

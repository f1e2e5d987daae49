package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"gritsync/internal/models"
)

const stepColumns = `id, application_id, step_key, COALESCE(status, ''), data, completed_at, created_at, updated_at`

func scanStep(r rowScanner) (*models.TimelineStep, error) {
	var (
		st          models.TimelineStep
		data        []byte
		completedAt sql.NullTime
	)
	if err := r.Scan(&st.ID, &st.ApplicationID, &st.StepKey, &st.Status, &data, &completedAt, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		st.Data = json.RawMessage(data)
	}
	if completedAt.Valid {
		t := completedAt.Time
		st.CompletedAt = &t
	}
	return &st, nil
}

func (s *Store) ListTimelineSteps(ctx context.Context, applicationID string) ([]models.TimelineStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stepColumns+` FROM application_timeline_steps WHERE application_id = $1 ORDER BY updated_at, id`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []models.TimelineStep{}
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *st)
	}
	return steps, rows.Err()
}

// UpsertTimelineStep writes the row for (application_id, step_key), updating
// the most recent existing row or inserting a new one. The table carries no
// unique constraint, so this is an update-then-insert rather than ON CONFLICT.
// Absent or null data leaves stored data untouched on update, and a blank
// status keeps the stored one. New rows default to pending.
func (s *Store) UpsertTimelineStep(ctx context.Context, step models.TimelineStep) (*models.TimelineStep, bool, error) {
	var data interface{}
	if models.HasData(step.Data) {
		data = []byte(step.Data)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE application_timeline_steps
		SET status = COALESCE(NULLIF($3, ''), status, 'pending'),
		    data = COALESCE($4::jsonb, data),
		    completed_at = CASE WHEN COALESCE(NULLIF($3, ''), status) = 'completed' THEN COALESCE(completed_at, now()) ELSE NULL END,
		    updated_at = now()
		WHERE id = (
			SELECT id FROM application_timeline_steps
			WHERE application_id = $1 AND step_key = $2
			ORDER BY updated_at DESC, id DESC LIMIT 1
		)
		RETURNING `+stepColumns,
		step.ApplicationID, step.StepKey, step.Status, data)
	updated, err := scanStep(row)
	if err == nil {
		return updated, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	if step.ID == "" {
		step.ID = uuid.NewString()
	}
	if step.Status == "" {
		step.Status = models.StepPending
	}
	row = s.db.QueryRowContext(ctx, `
		INSERT INTO application_timeline_steps (id, application_id, step_key, status, data, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, CASE WHEN $4 = 'completed' THEN now() END, now(), now())
		RETURNING `+stepColumns,
		step.ID, step.ApplicationID, step.StepKey, step.Status, data)
	inserted, err := scanStep(row)
	if err != nil {
		return nil, false, err
	}
	return inserted, true, nil
}

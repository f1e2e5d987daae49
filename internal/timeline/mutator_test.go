package timeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "gritsync/internal/common/errors"
	"gritsync/internal/common/logger"
	"gritsync/internal/feed"
	"gritsync/internal/models"
	"gritsync/internal/progress"
	"gritsync/internal/store"
)

// memStore keeps rows in memory and logs every call in order.
type memStore struct {
	mu       sync.Mutex
	app      *models.Application
	steps    []models.TimelineStep
	payments []models.Payment
	accounts []models.ProcessingAccount
	calls    []string
	seq      int
	clock    time.Time

	failUpsert map[string]error
	failList   error
}

func newMemStore(app *models.Application) *memStore {
	return &memStore{app: app, clock: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), failUpsert: map[string]error{}}
}

func (s *memStore) log(call string) {
	s.calls = append(s.calls, call)
}

func (s *memStore) GetApplication(_ context.Context, id string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("get_application")
	if s.app == nil || s.app.ID != id {
		return nil, store.ErrNotFound
	}
	cp := *s.app
	return &cp, nil
}

func (s *memStore) ListTimelineSteps(context.Context, string) ([]models.TimelineStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("list_steps")
	if s.failList != nil {
		return nil, s.failList
	}
	return append([]models.TimelineStep(nil), s.steps...), nil
}

func (s *memStore) ListPayments(context.Context, string) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("list_payments")
	return append([]models.Payment(nil), s.payments...), nil
}

func (s *memStore) ListAccounts(context.Context, string) ([]models.ProcessingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("list_accounts")
	return append([]models.ProcessingAccount(nil), s.accounts...), nil
}

func (s *memStore) UpsertTimelineStep(_ context.Context, st models.TimelineStep) (*models.TimelineStep, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("upsert:" + st.StepKey + "=" + st.Status)
	if err := s.failUpsert[st.StepKey]; err != nil {
		return nil, false, err
	}
	s.clock = s.clock.Add(time.Minute)
	for i := range s.steps {
		if s.steps[i].StepKey == st.StepKey {
			if st.Status != "" {
				s.steps[i].Status = st.Status
			}
			if models.HasData(st.Data) {
				s.steps[i].Data = st.Data
			}
			s.steps[i].UpdatedAt = s.clock
			cp := s.steps[i]
			return &cp, false, nil
		}
	}
	s.seq++
	st.ID = fmt.Sprintf("step-%d", s.seq)
	if st.Status == "" {
		st.Status = models.StepPending
	}
	st.UpdatedAt = s.clock
	s.steps = append(s.steps, st)
	return &st, true, nil
}

func (s *memStore) UpdateApplicationStatus(_ context.Context, _ string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log("set_status:" + status)
	s.app.Status = status
	return nil
}

type recordingPublisher struct {
	events []feed.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev feed.Event) error {
	p.events = append(p.events, ev)
	return nil
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, ev feed.Event) error {
	return m.Called(ctx, ev).Error(0)
}

func nclexApp() *models.Application {
	return &models.Application{ID: "app-1", Type: models.AppTypeNCLEX, CreatedAt: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)}
}

func newTestMutator(t *testing.T, s Store, pub Publisher) *Mutator {
	return NewMutator(s, pub, nil, logger.NewTestLogger(t))
}

func code(err error) apperrors.ErrorCode {
	return apperrors.Normalize(err).Code
}

func TestUpdateSubStep_ParentFollowsSiblings(t *testing.T) {
	s := newMemStore(nclexApp())
	pub := &recordingPublisher{}
	m := newTestMutator(t, s, pub)
	ctx := context.Background()

	out, err := m.UpdateSubStep(ctx, UpdateRequest{ApplicationID: "app-1", StepKey: "letter_submitted", Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, "credentialing", out.ParentKey)
	assert.Equal(t, models.StepPending, out.ParentStatus)

	_, err = m.UpdateSubStep(ctx, UpdateRequest{ApplicationID: "app-1", StepKey: "official_docs_submitted", Status: "completed"})
	require.NoError(t, err)

	out, err = m.UpdateSubStep(ctx, UpdateRequest{ApplicationID: "app-1", StepKey: "mandatory_courses", Status: "Completed "})
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, out.ParentStatus)
	assert.Equal(t, models.StepCompleted, out.Step.Status)

	main, _ := out.Progress.Main("credentialing")
	assert.True(t, main.Completed)
	assert.True(t, main.Explicit, "outcome reflects the parent row just written")

	// one event per row written: each sub-step insert plus the parent insert then two updates
	require.Len(t, pub.events, 6)
	assert.Equal(t, feed.Insert, pub.events[0].Type)
	assert.Equal(t, feed.Insert, pub.events[1].Type)
	assert.Equal(t, feed.Update, pub.events[3].Type)
	for _, ev := range pub.events {
		assert.Equal(t, feed.TableSteps, ev.Table)
		assert.Equal(t, "app-1", ev.ApplicationID)
	}

	// completing back to pending downgrades the parent
	out, err = m.UpdateSubStep(ctx, UpdateRequest{ApplicationID: "app-1", StepKey: "letter_submitted", Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, models.StepPending, out.ParentStatus)
}

func TestUpdateSubStep_ReadsAfterWrite(t *testing.T) {
	s := newMemStore(nclexApp())
	m := newTestMutator(t, s, nil)

	_, err := m.UpdateSubStep(context.Background(), UpdateRequest{ApplicationID: "app-1", StepKey: "bon_submitted", Status: "completed"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"get_application",
		"upsert:bon_submitted=completed",
		"get_application",
		"list_steps",
		"list_payments",
		"list_accounts",
		"upsert:bon_application=pending",
	}, s.calls)
}

func TestUpdateSubStep_ExamResultCompletesApplication(t *testing.T) {
	s := newMemStore(nclexApp())
	pub := &recordingPublisher{}
	m := newTestMutator(t, s, pub)

	out, err := m.UpdateSubStep(context.Background(), UpdateRequest{
		ApplicationID: "app-1",
		StepKey:       progress.SubQuickResults,
		Status:        "pending",
		Data:          json.RawMessage(`{"result":"pass"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "completed", s.app.Status)
	assert.Equal(t, "completed", out.Snapshot.Application.Status)
	assert.Equal(t, progress.StatusCompleted, out.Status)
	assert.Equal(t, models.StepCompleted, out.ParentStatus, "composite result completes exam_results")
	assert.Contains(t, s.calls, "set_status:completed")

	var tables []string
	for _, ev := range pub.events {
		tables = append(tables, ev.Table)
	}
	assert.Equal(t, []string{feed.TableSteps, feed.TableApplications, feed.TableSteps}, tables)
}

func TestUpdateSubStep_ExamResultWithoutResultLeavesStatus(t *testing.T) {
	s := newMemStore(nclexApp())
	m := newTestMutator(t, s, nil)

	_, err := m.UpdateSubStep(context.Background(), UpdateRequest{
		ApplicationID: "app-1", StepKey: progress.SubQuickResults, Data: json.RawMessage(`{"released_at":"2026-04-01"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "", s.app.Status)
	assert.NotContains(t, s.calls, "set_status:completed")
}

func TestUpdateSubStep_DataOnlyEditKeepsStatus(t *testing.T) {
	s := newMemStore(nclexApp())
	m := newTestMutator(t, s, nil)
	ctx := context.Background()

	_, err := m.UpdateSubStep(ctx, UpdateRequest{ApplicationID: "app-1", StepKey: "bon_submitted", Status: "completed"})
	require.NoError(t, err)

	out, err := m.UpdateSubStep(ctx, UpdateRequest{
		ApplicationID: "app-1", StepKey: "bon_submitted", Data: json.RawMessage(`{"note":"resent"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, out.Step.Status)
	assert.JSONEq(t, `{"note":"resent"}`, string(out.Step.Data))
	sub, _ := out.Progress.Sub("bon_submitted")
	assert.True(t, sub.Completed)
}

func TestUpdateSubStep_NullDataKeepsStoredData(t *testing.T) {
	s := newMemStore(nclexApp())
	m := newTestMutator(t, s, nil)
	ctx := context.Background()

	_, err := m.UpdateSubStep(ctx, UpdateRequest{
		ApplicationID: "app-1", StepKey: "att_received", Status: "completed",
		Data: json.RawMessage(`{"code":"ABC123","expiry_date":"2026-09-01"}`),
	})
	require.NoError(t, err)

	out, err := m.UpdateSubStep(ctx, UpdateRequest{
		ApplicationID: "app-1", StepKey: "att_received", Status: "completed", Data: json.RawMessage("null"),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"ABC123","expiry_date":"2026-09-01"}`, string(out.Step.Data))
	sub, _ := out.Progress.Sub("att_received")
	assert.True(t, sub.Completed, "composite fields survive a null data edit")
}

func TestUpdateSubStep_Rejections(t *testing.T) {
	tests := []struct {
		name string
		req  UpdateRequest
		want apperrors.ErrorCode
	}{
		{"unknown application", UpdateRequest{ApplicationID: "nope", StepKey: "bon_submitted"}, apperrors.ErrCodeApplicationNotFound},
		{"main step key", UpdateRequest{ApplicationID: "app-1", StepKey: "credentialing"}, apperrors.ErrCodeUnknownStepKey},
		{"key from the other registry", UpdateRequest{ApplicationID: "app-1", StepKey: "i765_prepared"}, apperrors.ErrCodeUnknownStepKey},
		{"bad status", UpdateRequest{ApplicationID: "app-1", StepKey: "bon_submitted", Status: "done"}, apperrors.ErrCodeInvalidInput},
		{"data not an object", UpdateRequest{ApplicationID: "app-1", StepKey: "att_received", Data: json.RawMessage(`[1]`)}, apperrors.ErrCodeStepDataInvalid},
		{"data fails schema", UpdateRequest{ApplicationID: "app-1", StepKey: "att_received", Data: json.RawMessage(`{"expiry_date":"soon"}`)}, apperrors.ErrCodeStepDataInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newMemStore(nclexApp())
			m := newTestMutator(t, s, nil)

			_, err := m.UpdateSubStep(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.want, code(err))
			assert.Empty(t, s.steps, "nothing written")
		})
	}
}

func TestUpdateSubStep_WriteFailures(t *testing.T) {
	t.Run("sub-step write", func(t *testing.T) {
		s := newMemStore(nclexApp())
		s.failUpsert["bon_submitted"] = errors.New("connection reset")
		pub := &recordingPublisher{}

		_, err := newTestMutator(t, s, pub).UpdateSubStep(context.Background(),
			UpdateRequest{ApplicationID: "app-1", StepKey: "bon_submitted", Status: "completed"})
		assert.Equal(t, apperrors.ErrCodeStepWriteFailed, code(err))
		assert.Contains(t, apperrors.Normalize(err).UserMessage(), "connection reset")
		assert.Empty(t, pub.events)
	})

	t.Run("parent write", func(t *testing.T) {
		s := newMemStore(nclexApp())
		s.failUpsert["bon_application"] = errors.New("deadlock detected")
		pub := &recordingPublisher{}

		out, err := newTestMutator(t, s, pub).UpdateSubStep(context.Background(),
			UpdateRequest{ApplicationID: "app-1", StepKey: "bon_submitted", Status: "completed"})
		assert.Equal(t, apperrors.ErrCodeRederiveFailed, code(err))
		require.NotNil(t, out)
		assert.Equal(t, "bon_submitted", out.Step.StepKey)
		assert.Len(t, pub.events, 1, "the sub-step write is still announced")
	})

	t.Run("re-read", func(t *testing.T) {
		s := newMemStore(nclexApp())
		s.failList = errors.New("timeout")

		_, err := newTestMutator(t, s, nil).UpdateSubStep(context.Background(),
			UpdateRequest{ApplicationID: "app-1", StepKey: "bon_submitted", Status: "completed"})
		assert.Equal(t, apperrors.ErrCodeRederiveFailed, code(err))
		assert.NotContains(t, s.calls, "upsert:bon_application=pending")
	})
}

func TestUpdateSubStep_PublishFailureIsNotFatal(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	s := newMemStore(nclexApp())
	out, err := newTestMutator(t, s, pub).UpdateSubStep(context.Background(),
		UpdateRequest{ApplicationID: "app-1", StepKey: "eligibility_approved", Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, out.ParentStatus)
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestUpdateMainStep(t *testing.T) {
	s := newMemStore(nclexApp())
	m := newTestMutator(t, s, nil)

	out, err := m.UpdateMainStep(context.Background(), UpdateRequest{ApplicationID: "app-1", StepKey: "authorization_to_test", Status: "completed"})
	require.NoError(t, err)
	main, _ := out.Progress.Main("authorization_to_test")
	assert.True(t, main.Completed)
	sub, _ := out.Progress.Sub("att_received")
	assert.False(t, sub.Completed)

	_, err = m.UpdateMainStep(context.Background(), UpdateRequest{ApplicationID: "app-1", StepKey: "att_received", Status: "completed"})
	assert.Equal(t, apperrors.ErrCodeUnknownStepKey, code(err))
}

func TestRederive_AfterPayment(t *testing.T) {
	app := nclexApp()
	app.PicturePath, app.DiplomaPath, app.PassportPath = "a", "b", "c"
	s := newMemStore(app)
	s.payments = []models.Payment{{ID: "pay-1", PaymentType: models.PaymentFull, Status: models.PaymentPaid}}
	m := newTestMutator(t, s, nil)

	out, err := m.Rederive(context.Background(), "app-1", progress.SubAppPaid)
	require.NoError(t, err)
	assert.Equal(t, progress.MainAppSubmission, out.ParentKey)
	assert.Equal(t, models.StepCompleted, out.ParentStatus)
	assert.Equal(t, progress.StatusInProgress, out.Status)

	_, err = m.Rederive(context.Background(), "app-1", "ead_approved")
	assert.Equal(t, apperrors.ErrCodeUnknownStepKey, code(err))
}

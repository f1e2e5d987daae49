package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gritsync/internal/common/logger"
	"gritsync/internal/feed"
	"gritsync/internal/models"
	"gritsync/internal/progress"
	"gritsync/internal/store"
)

type MockReader struct {
	mock.Mock
}

func (m *MockReader) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Application), args.Error(1)
}

func (m *MockReader) ListTimelineSteps(ctx context.Context, id string) ([]models.TimelineStep, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TimelineStep), args.Error(1)
}

func (m *MockReader) ListPayments(ctx context.Context, id string) ([]models.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Payment), args.Error(1)
}

func (m *MockReader) ListAccounts(ctx context.Context, id string) ([]models.ProcessingAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ProcessingAccount), args.Error(1)
}

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func submittedApp() *models.Application {
	return &models.Application{
		ID: "app-1", Type: models.AppTypeNCLEX, CreatedAt: t0,
		PicturePath: "p", DiplomaPath: "d", PassportPath: "pp",
	}
}

func loadedSession(t *testing.T) (*Session, *MockReader) {
	t.Helper()
	r := &MockReader{}
	r.On("GetApplication", mock.Anything, "app-1").Return(submittedApp(), nil)
	r.On("ListTimelineSteps", mock.Anything, "app-1").Return([]models.TimelineStep{
		{ID: "s1", ApplicationID: "app-1", StepKey: "letter_submitted", Status: models.StepCompleted, UpdatedAt: t0},
	}, nil)
	r.On("ListPayments", mock.Anything, "app-1").Return([]models.Payment{
		{ID: "pay-1", ApplicationID: "app-1", PaymentType: models.PaymentStep1, Status: models.PaymentPending},
	}, nil)
	r.On("ListAccounts", mock.Anything, "app-1").Return([]models.ProcessingAccount{}, nil)

	s := New("app-1", r, logger.NewTestLogger(t))
	require.NoError(t, s.Load(context.Background()))
	return s, r
}

func TestNew_StartsIdle(t *testing.T) {
	s := New("app-1", &MockReader{}, logger.NewNoOpLogger())
	for _, c := range collections {
		assert.Equal(t, PhaseIdle, s.Resource(c).Phase)
	}
	assert.Equal(t, 0, s.Progress().Percentage)
	assert.Equal(t, progress.StatusInitiated, s.Status())
}

func TestLoad(t *testing.T) {
	s, r := loadedSession(t)
	r.AssertExpectations(t)

	for _, c := range collections {
		assert.Equal(t, PhaseLoaded, s.Resource(c).Phase, c)
	}
	assert.True(t, s.Loaded())
	// app_created, documents_submitted, letter_submitted
	assert.Equal(t, 3, s.Progress().CompletedItems)
	assert.Equal(t, progress.StatusInitiated, s.Status(), "step1 fee still pending")
}

func TestLoad_FailureFallsBackToEmpty(t *testing.T) {
	r := &MockReader{}
	r.On("GetApplication", mock.Anything, "app-1").Return(submittedApp(), nil)
	r.On("ListTimelineSteps", mock.Anything, "app-1").Return(nil, errors.New("statement timeout"))
	r.On("ListPayments", mock.Anything, "app-1").Return([]models.Payment{}, nil)
	r.On("ListAccounts", mock.Anything, "app-1").Return([]models.ProcessingAccount{}, nil)

	s := New("app-1", r, logger.NewTestLogger(t))
	err := s.Load(context.Background())
	require.Error(t, err)

	steps := s.Resource(CollectionSteps)
	assert.Equal(t, PhaseError, steps.Phase)
	assert.Equal(t, "statement timeout", steps.Error)
	assert.Equal(t, PhaseLoaded, s.Resource(CollectionApplication).Phase)

	v := s.View()
	assert.Empty(t, s.Snapshot().Steps)
	assert.Equal(t, PhaseError, v.Resources[CollectionSteps].Phase)
	assert.Equal(t, 0, v.Progress.Percentage)
}

func stepEvent(t *testing.T, typ feed.EventType, st models.TimelineStep) feed.Event {
	raw, err := json.Marshal(st)
	require.NoError(t, err)
	return feed.Event{Table: feed.TableSteps, Type: typ, ApplicationID: "app-1", RecordID: st.ID, Record: raw}
}

func TestApply_PatchesInPlace(t *testing.T) {
	s, r := loadedSession(t)

	raw, _ := json.Marshal(models.Payment{ID: "pay-1", ApplicationID: "app-1", PaymentType: models.PaymentStep1, Status: models.PaymentPaid})
	act := s.Apply(context.Background(), feed.Event{Table: feed.TablePayments, Type: feed.Update, ApplicationID: "app-1", RecordID: "pay-1", Record: raw})

	assert.Equal(t, feed.ActionApplied, act)
	assert.Equal(t, progress.StatusInProgress, s.Status())
	r.AssertNumberOfCalls(t, "ListPayments", 1)
}

func TestApply_RefetchesOnMismatch(t *testing.T) {
	s, r := loadedSession(t)

	act := s.Apply(context.Background(), stepEvent(t, feed.Update,
		models.TimelineStep{ID: "s-unknown", ApplicationID: "app-1", StepKey: "bon_submitted", Status: models.StepCompleted}))

	assert.Equal(t, feed.ActionRefetch, act)
	r.AssertNumberOfCalls(t, "ListTimelineSteps", 2)
	assert.Equal(t, PhaseLoaded, s.Resource(CollectionSteps).Phase)
}

func TestApply_IgnoresOtherApplications(t *testing.T) {
	s, _ := loadedSession(t)
	ev := stepEvent(t, feed.Insert, models.TimelineStep{ID: "s9", StepKey: "bon_submitted", Status: models.StepCompleted})
	ev.ApplicationID = "app-2"

	assert.Equal(t, feed.ActionNone, s.Apply(context.Background(), ev))
	assert.Len(t, s.Snapshot().Steps, 1)
}

func TestRun(t *testing.T) {
	s, _ := loadedSession(t)
	events := make(chan feed.Event, 3)
	events <- stepEvent(t, feed.Insert, models.TimelineStep{ID: "s2", ApplicationID: "app-1", StepKey: "official_docs_submitted", Status: models.StepCompleted, UpdatedAt: t0.Add(time.Minute)})
	events <- feed.Event{Table: feed.TablePayments, Type: feed.Delete, ApplicationID: "app-1", RecordID: "nope"}
	events <- stepEvent(t, feed.Insert, models.TimelineStep{ID: "s3", ApplicationID: "app-1", StepKey: "mandatory_courses", Status: models.StepCompleted, UpdatedAt: t0.Add(2 * time.Minute)})
	close(events)

	changes := 0
	require.NoError(t, s.Run(context.Background(), events, func() { changes++ }))
	assert.Equal(t, 2, changes, "no-op delete does not notify")

	res := s.Progress()
	main, _ := res.Main("credentialing")
	assert.True(t, main.Completed)
	assert.Equal(t, []string{"s1", "s2", "s3"}, []string{s.Snapshot().Steps[0].ID, s.Snapshot().Steps[1].ID, s.Snapshot().Steps[2].ID})
}

func TestRun_StopsWhenContextEnds(t *testing.T) {
	s, _ := loadedSession(t)
	events := make(chan feed.Event)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, events, nil) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestLoad_MissingApplication(t *testing.T) {
	r := &MockReader{}
	r.On("GetApplication", mock.Anything, "gone").Return(nil, store.ErrNotFound)
	r.On("ListTimelineSteps", mock.Anything, "gone").Return([]models.TimelineStep{}, nil)
	r.On("ListPayments", mock.Anything, "gone").Return([]models.Payment{}, nil)
	r.On("ListAccounts", mock.Anything, "gone").Return([]models.ProcessingAccount{}, nil)

	s := New("gone", r, logger.NewTestLogger(t))
	require.ErrorIs(t, s.Load(context.Background()), store.ErrNotFound)
	assert.True(t, s.Missing())
	assert.False(t, s.Loaded())
}

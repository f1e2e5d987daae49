package saveprocessingaccount

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "gritsync/internal/common/errors"
	"gritsync/internal/common/logger"
	"gritsync/internal/common/secrets"
	"gritsync/internal/feed"
	"gritsync/internal/models"
	"gritsync/internal/progress"
	"gritsync/internal/store"
	"gritsync/internal/timeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeStore keeps accounts in memory and records the last save.
type fakeStore struct {
	accounts map[string]*models.ProcessingAccount
	saved    *models.ProcessingAccount
	saveErr  error
}

func (f *fakeStore) GetAccount(_ context.Context, id string) (*models.ProcessingAccount, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) SaveAccount(_ context.Context, a models.ProcessingAccount) (*models.ProcessingAccount, bool, error) {
	if f.saveErr != nil {
		return nil, false, f.saveErr
	}
	inserted := a.ID == ""
	if inserted {
		a.ID = "5b1f6c3e-2d4a-4f7b-9c8e-1a2b3c4d5e6f"
		a.CreatedAt = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	}
	a.UpdatedAt = time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	f.saved = &a
	return &a, inserted, nil
}

type MockRederiver struct {
	mock.Mock
}

func (m *MockRederiver) Rederive(ctx context.Context, applicationID, subKey string) (*timeline.Outcome, error) {
	args := m.Called(ctx, applicationID, subKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*timeline.Outcome), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishRecord(ctx context.Context, table string, typ feed.EventType, applicationID, recordID string, record interface{}) error {
	return m.Called(ctx, table, typ, applicationID, recordID, record).Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Invalidate(ctx context.Context, applicationID string) error {
	return m.Called(ctx, applicationID).Error(0)
}

const existingID = "0c9d8e7f-6a5b-4c3d-8e2f-1a0b9c8d7e6f"

func newTestHandler(t *testing.T) (*Handler, *fakeStore, *MockRederiver, *MockPublisher, *secrets.Sealer) {
	c := new(MockCache)
	c.On("Invalidate", mock.Anything, mock.Anything).Return(nil)
	return newCachedTestHandler(t, c)
}

func newCachedTestHandler(t *testing.T, c Invalidator) (*Handler, *fakeStore, *MockRederiver, *MockPublisher, *secrets.Sealer) {
	sealer, err := secrets.NewSealer(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)

	password, _ := sealer.Seal("old-secret")
	answer, _ := sealer.Seal("Manila")
	fs := &fakeStore{accounts: map[string]*models.ProcessingAccount{
		existingID: {
			ID: existingID, ApplicationID: "app-1", AccountType: models.AccountGmail,
			Email: "ana@example.com", Password: password,
			SecurityQuestions: []models.SecurityQuestion{{Question: "Birthplace?", Answer: answer}},
		},
	}}
	red := new(MockRederiver)
	pub := new(MockPublisher)
	return NewHandler(LoadConfig(), fs, sealer, red, pub, c, logger.NewZapAdapter(zaptest.NewLogger(t))), fs, red, pub, sealer
}

func TestHandler_Execute_InsertSealsSecrets(t *testing.T) {
	h, fs, red, pub, sealer := newTestHandler(t)
	pub.On("PublishRecord", mock.Anything, feed.TableAccounts, feed.Insert, "app-1", mock.Anything, mock.Anything).Return(nil)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-1",
		AccountType:   "Gmail",
		Email:         " ana.nclex@gmail.com ",
		Password:      "hunter2",
		SecurityQuestions: []SecurityQuestion{
			{Question: "First pet?", Answer: " Bantay "},
		},
	})
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.False(t, out.ProgressUpdated)
	assert.Equal(t, "gmail", out.AccountType)
	assert.Equal(t, "2026-05-02T08:00:00Z", out.UpdatedAt)

	require.NotNil(t, fs.saved)
	assert.Equal(t, "ana.nclex@gmail.com", fs.saved.Email)
	assert.True(t, secrets.IsSealed(fs.saved.Password))
	assert.NotContains(t, fs.saved.Password, "hunter2")

	plain, err := sealer.Open(fs.saved.Password)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	require.Len(t, fs.saved.SecurityQuestions, 1)
	answer, err := sealer.Open(fs.saved.SecurityQuestions[0].Answer)
	require.NoError(t, err)
	assert.Equal(t, "Bantay", answer)

	red.AssertNotCalled(t, "Rederive", mock.Anything, mock.Anything, mock.Anything)
	pub.AssertExpectations(t)
}

func TestHandler_Execute_UpdateKeepsStoredSecrets(t *testing.T) {
	h, fs, _, pub, _ := newTestHandler(t)
	pub.On("PublishRecord", mock.Anything, feed.TableAccounts, feed.Update, "app-1", existingID, mock.Anything).Return(nil)

	before := *fs.accounts[existingID]
	out, err := h.Execute(context.Background(), &Input{
		AccountID:     existingID,
		ApplicationID: "app-1",
		AccountType:   "gmail",
		Name:          "Ana Cruz",
		Email:         "ana@example.com",
	})
	require.NoError(t, err)
	assert.False(t, out.Created)
	assert.Equal(t, before.Password, fs.saved.Password)
	assert.Equal(t, before.SecurityQuestions, fs.saved.SecurityQuestions)
	assert.Equal(t, "Ana Cruz", fs.saved.Name)
}

func TestHandler_Execute_PearsonRederives(t *testing.T) {
	h, _, red, pub, _ := newTestHandler(t)
	pub.On("PublishRecord", mock.Anything, feed.TableAccounts, feed.Insert, "app-1", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	red.On("Rederive", mock.Anything, "app-1", progress.SubPearsonAccountCreated).Return(&timeline.Outcome{}, nil)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-1",
		AccountType:   "pearson_vue",
		Email:         "ana@example.com",
		Password:      "pv-pass",
	})
	require.NoError(t, err, "publish failures do not fail the job")
	assert.True(t, out.ProgressUpdated)
	red.AssertExpectations(t)
}

func TestHandler_Execute_PearsonOnEADApplication(t *testing.T) {
	h, _, red, pub, _ := newTestHandler(t)
	pub.On("PublishRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	red.On("Rederive", mock.Anything, "app-1", progress.SubPearsonAccountCreated).
		Return(nil, apperrors.NewUnknownStepKeyError("EAD", progress.SubPearsonAccountCreated))

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-1",
		AccountType:   "pearson_vue",
		Email:         "ana@example.com",
		Password:      "pv-pass",
	})
	require.NoError(t, err)
	assert.False(t, out.ProgressUpdated)
}

func TestHandler_Execute_InvalidatesProgressCache(t *testing.T) {
	c := new(MockCache)
	c.On("Invalidate", mock.Anything, "app-1").Return(errors.New("redis down")).Once()
	h, _, red, pub, _ := newCachedTestHandler(t, c)
	pub.On("PublishRecord", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	red.On("Rederive", mock.Anything, "app-1", progress.SubPearsonAccountCreated).Return(&timeline.Outcome{}, nil)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID: "app-1",
		AccountType:   "pearson_vue",
		Email:         "ana@example.com",
		Password:      "pv-pass",
	})
	require.NoError(t, err, "cache failures do not fail the job")
	assert.True(t, out.ProgressUpdated)
	c.AssertExpectations(t)
}

func TestHandler_Execute_FailedSaveKeepsCache(t *testing.T) {
	c := new(MockCache)
	h, fs, _, _, _ := newCachedTestHandler(t, c)
	fs.saveErr = errors.New("violates foreign key constraint")

	_, err := h.Execute(context.Background(), &Input{ApplicationID: "app-1", AccountType: "gmail", Email: "a@b.co", Password: "x"})
	require.Error(t, err)
	c.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   Input
		saveErr error
		code    apperrors.ErrorCode
		detail  string
	}{
		{
			name:  "bad account type",
			input: Input{ApplicationID: "app-1", AccountType: "yahoo", Email: "a@b.co", Password: "x"},
			code:  apperrors.ErrCodeInvalidInput,
		},
		{
			name:  "bad email",
			input: Input{ApplicationID: "app-1", AccountType: "gmail", Email: "nope", Password: "x"},
			code:  apperrors.ErrCodeInvalidInput,
		},
		{
			name:   "new account without password",
			input:  Input{ApplicationID: "app-1", AccountType: "gmail", Email: "a@b.co"},
			code:   apperrors.ErrCodeInvalidInput,
			detail: "password is required",
		},
		{
			name:  "blank security answer",
			input: Input{ApplicationID: "app-1", AccountType: "gmail", Email: "a@b.co", Password: "x", SecurityQuestions: []SecurityQuestion{{Question: "Q?"}}},
			code:  apperrors.ErrCodeInvalidInput,
		},
		{
			name:  "unknown account",
			input: Input{AccountID: "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d", ApplicationID: "app-1", AccountType: "gmail", Email: "a@b.co"},
			code:  apperrors.ErrCodeAccountNotFound,
		},
		{
			name:   "account of another application",
			input:  Input{AccountID: existingID, ApplicationID: "app-2", AccountType: "gmail", Email: "a@b.co"},
			code:   apperrors.ErrCodeInvalidInput,
			detail: "another application",
		},
		{
			name:    "save fails",
			input:   Input{ApplicationID: "app-1", AccountType: "gmail", Email: "a@b.co", Password: "x"},
			saveErr: errors.New("violates foreign key constraint"),
			code:    apperrors.ErrCodeAccountSaveFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, fs, _, _, _ := newTestHandler(t)
			fs.saveErr = tt.saveErr

			_, err := h.Execute(context.Background(), &tt.input)
			require.Error(t, err)
			std := apperrors.Normalize(err)
			assert.Equal(t, tt.code, std.Code)
			if tt.detail != "" {
				assert.True(t, strings.Contains(std.Details, tt.detail), std.Details)
			}
		})
	}
}

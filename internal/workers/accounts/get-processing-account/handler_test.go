package getprocessingaccount

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	apperrors "gritsync/internal/common/errors"
	"gritsync/internal/common/logger"
	"gritsync/internal/common/secrets"
	"gritsync/internal/models"
	"gritsync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetAccount(ctx context.Context, id string) (*models.ProcessingAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProcessingAccount), args.Error(1)
}

func newSealer(t *testing.T, fill byte) *secrets.Sealer {
	key := make([]byte, 32)
	for i := range key {
		key[i] = fill
	}
	s, err := secrets.NewSealer(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	return s
}

func sealedAccount(t *testing.T, s *secrets.Sealer) *models.ProcessingAccount {
	pw, err := s.Seal("pv-pass")
	require.NoError(t, err)
	ans, err := s.Seal("Cebu")
	require.NoError(t, err)
	return &models.ProcessingAccount{
		ID: "acc-1", ApplicationID: "app-1", AccountType: models.AccountPearsonVUE,
		Email: "ana@example.com", Password: pw,
		SecurityQuestions: []models.SecurityQuestion{{Question: "Birthplace?", Answer: ans}},
		UpdatedAt:         time.Date(2026, 4, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestHandler_Execute(t *testing.T) {
	sealer := newSealer(t, 7)
	acc := sealedAccount(t, sealer)

	tests := []struct {
		name         string
		reveal       bool
		wantPassword string
		wantAnswer   string
	}{
		{"masked by default", false, "********", "********"},
		{"revealed", true, "pv-pass", "Cebu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := new(MockStore)
			s.On("GetAccount", mock.Anything, "acc-1").Return(acc, nil)
			h := NewHandler(LoadConfig(), s, sealer, logger.NewZapAdapter(zaptest.NewLogger(t)))

			out, err := h.Execute(context.Background(), &Input{AccountID: "acc-1", ApplicationID: "app-1", Reveal: tt.reveal})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPassword, out.Password)
			require.Len(t, out.SecurityQuestions, 1)
			assert.Equal(t, "Birthplace?", out.SecurityQuestions[0].Question)
			assert.Equal(t, tt.wantAnswer, out.SecurityQuestions[0].Answer)
			assert.Equal(t, "2026-04-03T10:00:00Z", out.UpdatedAt)
		})
	}
}

func TestHandler_Execute_LegacyPlaintextPassesThrough(t *testing.T) {
	s := new(MockStore)
	s.On("GetAccount", mock.Anything, "acc-2").Return(&models.ProcessingAccount{
		ID: "acc-2", ApplicationID: "app-1", AccountType: models.AccountGmail, Password: "legacy",
	}, nil)
	h := NewHandler(LoadConfig(), s, newSealer(t, 1), logger.NewZapAdapter(zaptest.NewLogger(t)))

	out, err := h.Execute(context.Background(), &Input{AccountID: "acc-2", Reveal: true})
	require.NoError(t, err)
	assert.Equal(t, "legacy", out.Password)
	assert.Empty(t, out.SecurityQuestions)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  Input
		setup  func(s *MockStore, t *testing.T)
		opener *secrets.Sealer
		code   apperrors.ErrorCode
	}{
		{
			name:  "missing id",
			input: Input{},
			setup: func(*MockStore, *testing.T) {},
			code:  apperrors.ErrCodeInvalidInput,
		},
		{
			name:  "not found",
			input: Input{AccountID: "acc-9"},
			setup: func(s *MockStore, _ *testing.T) {
				s.On("GetAccount", mock.Anything, "acc-9").Return(nil, store.ErrNotFound)
			},
			code: apperrors.ErrCodeAccountNotFound,
		},
		{
			name:  "other application",
			input: Input{AccountID: "acc-1", ApplicationID: "app-2"},
			setup: func(s *MockStore, t *testing.T) {
				s.On("GetAccount", mock.Anything, "acc-1").Return(sealedAccount(t, newSealer(t, 7)), nil)
			},
			code: apperrors.ErrCodeAccountNotFound,
		},
		{
			name:  "sealed with another key",
			input: Input{AccountID: "acc-1", Reveal: true},
			setup: func(s *MockStore, t *testing.T) {
				s.On("GetAccount", mock.Anything, "acc-1").Return(sealedAccount(t, newSealer(t, 7)), nil)
			},
			opener: newSealer(t, 9),
			code:   apperrors.ErrCodeInvalidInput,
		},
		{
			name:  "query fails",
			input: Input{AccountID: "acc-1"},
			setup: func(s *MockStore, _ *testing.T) {
				s.On("GetAccount", mock.Anything, "acc-1").Return(nil, errors.New("connection reset"))
			},
			code: apperrors.ErrCodeQueryFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := new(MockStore)
			tt.setup(s, t)
			opener := tt.opener
			if opener == nil {
				opener = newSealer(t, 7)
			}
			h := NewHandler(LoadConfig(), s, opener, logger.NewZapAdapter(zaptest.NewLogger(t)))

			_, err := h.Execute(context.Background(), &tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.Normalize(err).Code)
		})
	}
}

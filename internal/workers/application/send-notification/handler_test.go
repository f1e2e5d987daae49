// internal/workers/application/send-notification/handler_test.go
package sendnotification

import (
	"context"
	"errors"
	"testing"
	"time"

	"gritsync/internal/common/config"
	apperrors "gritsync/internal/common/errors"
	"gritsync/internal/common/logger"
	"gritsync/internal/models"
	"gritsync/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Application), args.Error(1)
}

type MockSESService struct {
	mock.Mock
}

func (m *MockSESService) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ses.SendEmailOutput), args.Error(1)
}

type MockSNSService struct {
	mock.Mock
}

func (m *MockSNSService) Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

func createTestConfig() *Config {
	return &Config{
		EmailEnabled: true,
		SMSEnabled:   true,
		FromEmail:    "noreply@gritsync.example",
		SMSThreshold: PriorityHigh,
		Timeout:      30 * time.Second,
	}
}

type deps struct {
	store *MockStore
	ses   *MockSESService
	sns   *MockSNSService
}

func newTestHandler(t *testing.T, cfg *Config) (*Handler, deps) {
	d := deps{new(MockStore), new(MockSESService), new(MockSNSService)}
	h, err := NewHandler(cfg, d.store, d.ses, d.sns, logger.NewZapAdapter(zaptest.NewLogger(t)))
	require.NoError(t, err)
	h.now = func() time.Time { return time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC) }
	return h, d
}

func testApp() *models.Application {
	return &models.Application{
		ID: "app-1", Type: models.AppTypeNCLEX, FirstName: "Maria", LastName: "Santos",
		Email: "maria@example.com", MobileNumber: "+639171234567",
	}
}

func pct(v int) *int { return &v }

func TestHandler_Execute_EmailAndSMS(t *testing.T) {
	h, d := newTestHandler(t, createTestConfig())
	d.store.On("GetApplication", mock.Anything, "app-1").Return(testApp(), nil)

	var email *ses.SendEmailInput
	d.ses.On("SendEmail", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		email = args.Get(1).(*ses.SendEmailInput)
	}).Return(&ses.SendEmailOutput{MessageId: aws.String("m-1")}, nil)
	var sms *sns.PublishInput
	d.sns.On("Publish", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sms = args.Get(1).(*sns.PublishInput)
	}).Return(&sns.PublishOutput{}, nil)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID:    "app-1",
		NotificationType: TypeStepCompleted,
		Priority:         "HIGH",
		StepTitle:        "ATT Received",
		Percentage:       pct(64),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, out.Status)
	assert.Equal(t, []string{ChannelEmail, ChannelSMS}, out.Channels)
	assert.NotEmpty(t, out.NotificationID)
	assert.Equal(t, "2026-07-01T12:00:00Z", out.SentAt)

	require.NotNil(t, email)
	assert.Equal(t, []string{"maria@example.com"}, email.Destination.ToAddresses)
	assert.Equal(t, "noreply@gritsync.example", aws.ToString(email.Source))
	assert.Equal(t, "NCLEX update: ATT Received completed", aws.ToString(email.Message.Subject.Data))
	assert.Contains(t, aws.ToString(email.Message.Body.Text.Data), "Hi Maria,")
	assert.Contains(t, aws.ToString(email.Message.Body.Text.Data), "64% of the way there")

	require.NotNil(t, sms)
	assert.Equal(t, "+639171234567", aws.ToString(sms.PhoneNumber))
	assert.Equal(t, "GritSync: ATT Received completed (64%).", aws.ToString(sms.Message))
}

func TestHandler_Execute_NormalPrioritySkipsSMS(t *testing.T) {
	h, d := newTestHandler(t, createTestConfig())
	d.store.On("GetApplication", mock.Anything, "app-1").Return(testApp(), nil)
	d.ses.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *ses.SendEmailInput) bool {
		return aws.ToString(in.Message.Subject.Data) == "Payment received (GS-20260701-ABCDEF12)"
	})).Return(&ses.SendEmailOutput{}, nil)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID:    "app-1",
		NotificationType: TypePaymentReceived,
		Amount:           150,
		Currency:         "usd",
		ReceiptNumber:    "GS-20260701-ABCDEF12",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ChannelEmail}, out.Channels)
	d.sns.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	d.ses.AssertExpectations(t)
}

func TestHandler_Execute_SMSFailureIsNotFatal(t *testing.T) {
	h, d := newTestHandler(t, createTestConfig())
	d.store.On("GetApplication", mock.Anything, "app-1").Return(testApp(), nil)
	d.ses.On("SendEmail", mock.Anything, mock.Anything).Return(&ses.SendEmailOutput{}, nil)
	d.sns.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("opted out"))

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID:    "app-1",
		NotificationType: TypeStatusChanged,
		Priority:         PriorityHigh,
		Status:           "completed",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, out.Status)
	assert.Equal(t, []string{ChannelEmail}, out.Channels)
}

func TestHandler_Execute_ChannelsDisabled(t *testing.T) {
	cfg := createTestConfig()
	cfg.EmailEnabled = false
	cfg.SMSEnabled = false
	h, d := newTestHandler(t, cfg)
	d.store.On("GetApplication", mock.Anything, "app-1").Return(testApp(), nil)

	out, err := h.Execute(context.Background(), &Input{
		ApplicationID:    "app-1",
		NotificationType: TypeDocumentUploaded,
		DocumentKind:     "passport",
		Priority:         PriorityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, out.Status)
	assert.Empty(t, out.Channels)
	d.ses.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func TestHandler_Execute_MissingRecipient(t *testing.T) {
	h, d := newTestHandler(t, createTestConfig())
	d.store.On("GetApplication", mock.Anything, "app-9").Return(nil, store.ErrNotFound)

	out, err := h.Execute(context.Background(), &Input{ApplicationID: "app-9", NotificationType: TypeStatusChanged})
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, out.Status)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		setup func(d deps)
		code  apperrors.ErrorCode
	}{
		{"unknown type", Input{ApplicationID: "app-1", NotificationType: "welcome"}, func(deps) {}, apperrors.ErrCodeInvalidInput},
		{"bad priority", Input{ApplicationID: "app-1", NotificationType: TypeStatusChanged, Priority: "urgent"}, func(deps) {}, apperrors.ErrCodeInvalidInput},
		{"percentage out of range", Input{ApplicationID: "app-1", NotificationType: TypeStepCompleted, Percentage: pct(140)}, func(deps) {}, apperrors.ErrCodeInvalidInput},
		{"store fails", Input{ApplicationID: "app-1", NotificationType: TypeStatusChanged}, func(d deps) {
			d.store.On("GetApplication", mock.Anything, "app-1").Return(nil, errors.New("timeout"))
		}, apperrors.ErrCodeQueryFailed},
		{"email fails", Input{ApplicationID: "app-1", NotificationType: TypeStatusChanged, Status: "rejected"}, func(d deps) {
			d.store.On("GetApplication", mock.Anything, "app-1").Return(testApp(), nil)
			d.ses.On("SendEmail", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))
		}, apperrors.ErrCodeNotificationSendFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, d := newTestHandler(t, createTestConfig())
			tt.setup(d)

			_, err := h.Execute(context.Background(), &tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.Normalize(err).Code)
		})
	}
}

func TestFromNotificationConfig(t *testing.T) {
	var nc config.NotificationConfig
	nc.Email.Enabled = true
	nc.Email.FromEmail = "ops@gritsync.example"
	nc.SMS.SenderID = "GRITSYNC"

	cfg := FromNotificationConfig(nc)
	assert.True(t, cfg.EmailEnabled)
	assert.False(t, cfg.SMSEnabled)
	assert.Equal(t, PriorityHigh, cfg.SMSThreshold)
	assert.Equal(t, "GRITSYNC", cfg.SenderID)
}

func TestTemplates_AllTypesRender(t *testing.T) {
	templates, err := loadTemplates()
	require.NoError(t, err)
	m := newMessage(&models.Application{ID: "a", Type: models.AppTypeEAD}, &Input{Amount: 10})
	for typ, tmpl := range templates {
		for _, part := range []string{"subject", "body", "sms"} {
			var err error
			switch part {
			case "subject":
				_, err = render(tmpl.subject, m)
			case "body":
				_, err = render(tmpl.body, m)
			default:
				_, err = render(tmpl.sms, m)
			}
			assert.NoError(t, err, "%s %s", typ, part)
		}
	}
	assert.Equal(t, "there", m.FirstName)
	assert.Equal(t, "USD 10.00", m.Amount)
}

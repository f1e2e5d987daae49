// internal/workers/application/send-notification/handler.go
package sendnotification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "gritsync/internal/common/errors"
	"gritsync/internal/common/logger"
	"gritsync/internal/common/validation"
	"gritsync/internal/models"
	"gritsync/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "send-notification"
)

var priorityRank = map[string]int{
	PriorityLow:    0,
	PriorityNormal: 1,
	PriorityHigh:   2,
}

type Store interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
}

type SESService interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

type Handler struct {
	config    *Config
	store     Store
	sesClient SESService
	snsClient SNSService
	templates map[string]notificationTemplate
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
	now       func() time.Time
}

func NewHandler(config *Config, s Store, sesClient SESService, snsClient SNSService, log logger.Logger) (*Handler, error) {
	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		store:     s,
		sesClient: sesClient,
		snsClient: snsClient,
		templates: templates,
		errors:    apperrors.NewErrorHandler(log),
		logger:    log,
		now:       time.Now,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errors.HandleJobError(context.Background(), client, job,
			apperrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	input.Priority = strings.ToLower(strings.TrimSpace(input.Priority))
	if input.Priority == "" {
		input.Priority = PriorityNormal
	}
	if res := validation.Struct(input); !res.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(res.GetErrorMessages(), "; "))
	}

	tmpl, ok := h.templates[input.NotificationType]
	if !ok {
		return nil, apperrors.NewInvalidInputError("no template for " + input.NotificationType)
	}

	out := &Output{
		NotificationID: uuid.New().String(),
		Status:         StatusDisabled,
		Channels:       []string{},
		SentAt:         h.now().UTC().Format(time.RFC3339),
	}

	app, err := h.store.GetApplication(ctx, input.ApplicationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.logger.Warn("recipient not found", map[string]interface{}{
				"applicationId": input.ApplicationID,
			})
			return out, nil
		}
		return nil, apperrors.NewQueryExecutionFailedError("get_application", err)
	}

	msg := newMessage(app, input)

	if h.config.EmailEnabled && app.Email != "" {
		subject, err := render(tmpl.subject, msg)
		if err != nil {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("render subject: %v", err))
		}
		body, err := render(tmpl.body, msg)
		if err != nil {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("render body: %v", err))
		}
		if err := h.sendEmail(ctx, app.Email, subject, body); err != nil {
			return nil, apperrors.NewNotificationSendFailedError(ChannelEmail, err)
		}
		out.Channels = append(out.Channels, ChannelEmail)
	}

	if h.config.SMSEnabled && app.MobileNumber != "" && priorityRank[input.Priority] >= priorityRank[h.config.SMSThreshold] {
		text, err := render(tmpl.sms, msg)
		if err != nil {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("render sms: %v", err))
		}
		// SMS is a courtesy copy; email already went out
		if err := h.sendSMS(ctx, app.MobileNumber, text); err != nil {
			h.logger.Warn("SMS send failed", map[string]interface{}{
				"applicationId": app.ID,
				"error":         err.Error(),
			})
		} else {
			out.Channels = append(out.Channels, ChannelSMS)
		}
	}

	if len(out.Channels) > 0 {
		out.Status = StatusSent
	}

	h.logger.Info("notification processed", map[string]interface{}{
		"applicationId":    app.ID,
		"notificationType": input.NotificationType,
		"channels":         out.Channels,
	})
	return out, nil
}

func newMessage(app *models.Application, input *Input) message {
	first := strings.TrimSpace(app.FirstName)
	if first == "" {
		first = "there"
	}
	m := message{
		FirstName:       first,
		ApplicationID:   app.ID,
		ApplicationType: app.Type,
		StepTitle:       input.StepTitle,
		Status:          input.Status,
		ReceiptNumber:   input.ReceiptNumber,
		DocumentKind:    input.DocumentKind,
	}
	if input.Percentage != nil {
		m.Percentage = strconv.Itoa(*input.Percentage)
	}
	if input.Amount > 0 {
		currency := strings.ToUpper(input.Currency)
		if currency == "" {
			currency = "USD"
		}
		m.Amount = fmt.Sprintf("%s %.2f", currency, input.Amount)
	}
	return m
}

func (h *Handler) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := h.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
		Source: aws.String(h.config.FromEmail),
	})
	return err
}

func (h *Handler) sendSMS(ctx context.Context, to, text string) error {
	in := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(text),
	}
	if h.config.SenderID != "" {
		in.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(h.config.SenderID)},
		}
	}
	_, err := h.snsClient.Publish(ctx, in)
	return err
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

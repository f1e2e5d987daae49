package createpayment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "gritsync/internal/common/errors"
	"gritsync/internal/common/logger"
	"gritsync/internal/common/payments"
	"gritsync/internal/common/validation"
	"gritsync/internal/feed"
	"gritsync/internal/models"
	"gritsync/internal/store"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "create-payment"
)

type Store interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	InsertPayment(ctx context.Context, p models.Payment) (*models.Payment, error)
	SetPaymentIntent(ctx context.Context, id, intentID string) error
}

type Processor interface {
	CreateIntent(ctx context.Context, paymentID string, amount float64, currency string) (*payments.Intent, error)
}

type Publisher interface {
	PublishRecord(ctx context.Context, table string, typ feed.EventType, applicationID, recordID string, record interface{}) error
}

type Handler struct {
	config    *Config
	store     Store
	processor Processor
	pub       Publisher
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, s Store, processor Processor, pub Publisher, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		store:     s,
		processor: processor,
		pub:       pub,
		errors:    apperrors.NewErrorHandler(log),
		logger:    log,
	}
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
	input.PaymentType = strings.ToLower(strings.TrimSpace(input.PaymentType))
	if res := validation.Struct(input); !res.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(res.GetErrorMessages(), "; "))
	}

	amount := input.Amount
	if amount == 0 {
		amount = h.config.Fees[input.PaymentType]
	}
	if amount <= 0 {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("no amount given and no fee configured for %s", input.PaymentType))
	}
	currency := strings.ToLower(input.Currency)
	if currency == "" {
		currency = h.config.Currency
	}

	app, err := h.store.GetApplication(ctx, input.ApplicationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewApplicationNotFoundError(input.ApplicationID)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get_application", err)
	}

	payment, err := h.pendingPayment(ctx, input, app, amount, currency)
	if err != nil {
		return nil, err
	}

	intent, err := h.processor.CreateIntent(ctx, payment.ID, payment.Amount, payment.Currency)
	if err != nil {
		return nil, apperrors.NewPaymentProcessorFailedError(err).WithMetadata("paymentId", payment.ID)
	}
	if err := h.store.SetPaymentIntent(ctx, payment.ID, intent.ID); err != nil {
		return nil, apperrors.NewPaymentCreateFailedError(err).WithMetadata("paymentId", payment.ID)
	}
	payment.IntentID = intent.ID

	if err := h.pub.PublishRecord(ctx, feed.TablePayments, feed.Insert, payment.ApplicationID, payment.ID, payment); err != nil {
		h.logger.Warn("payment event not published", map[string]interface{}{
			"paymentId": payment.ID,
			"error":     err.Error(),
		})
	}

	h.logger.Info("payment created", map[string]interface{}{
		"applicationId": payment.ApplicationID,
		"paymentId":     payment.ID,
		"paymentType":   payment.PaymentType,
		"intentId":      intent.ID,
		"amount":        payment.Amount,
	})

	return &Output{
		PaymentID:    payment.ID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
		Status:       payment.Status,
	}, nil
}

// pendingPayment returns the row a retried job already created, or inserts a new one.
func (h *Handler) pendingPayment(ctx context.Context, input *Input, app *models.Application, amount float64, currency string) (*models.Payment, error) {
	if input.PaymentID != "" {
		p, err := h.store.GetPayment(ctx, input.PaymentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperrors.NewPaymentNotFoundError(input.PaymentID)
			}
			return nil, apperrors.NewQueryExecutionFailedError("get_payment", err)
		}
		if p.ApplicationID != app.ID {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("payment %s belongs to another application", p.ID))
		}
		if p.IsPaid() {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("payment %s is already paid", p.ID))
		}
		return p, nil
	}

	p, err := h.store.InsertPayment(ctx, models.Payment{
		ApplicationID: app.ID,
		UserID:        app.UserID,
		PaymentType:   input.PaymentType,
		Amount:        amount,
		Currency:      currency,
	})
	if err != nil {
		return nil, apperrors.NewPaymentCreateFailedError(err)
	}
	return p, nil
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

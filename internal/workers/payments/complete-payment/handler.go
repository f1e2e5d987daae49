package completepayment

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
	"gritsync/internal/progress"
	"gritsync/internal/store"
	"gritsync/internal/timeline"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "complete-payment"
)

type Store interface {
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByIntent(ctx context.Context, intentID string) (*models.Payment, error)
	SetPaymentStatus(ctx context.Context, id, status string) (*models.Payment, error)
}

type Processor interface {
	GetIntent(ctx context.Context, intentID string) (*payments.Intent, error)
}

type Rederiver interface {
	Rederive(ctx context.Context, applicationID, subKey string) (*timeline.Outcome, error)
}

type Publisher interface {
	PublishRecord(ctx context.Context, table string, typ feed.EventType, applicationID, recordID string, record interface{}) error
}

// Invalidator drops a cached progress entry after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, applicationID string) error
}

type Handler struct {
	config    *Config
	store     Store
	processor Processor
	rederiver Rederiver
	pub       Publisher
	cache     Invalidator
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, s Store, processor Processor, rederiver Rederiver, pub Publisher, cache Invalidator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		store:     s,
		processor: processor,
		rederiver: rederiver,
		pub:       pub,
		cache:     cache,
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

// feeSubSteps lists the sub-steps whose predicate reads payments of paymentType.
func feeSubSteps(paymentType string) []string {
	switch paymentType {
	case models.PaymentStep1:
		return []string{progress.SubAppPaid}
	case models.PaymentStep2:
		return []string{progress.SubAppStep2Paid}
	case models.PaymentFull:
		return []string{progress.SubAppPaid, progress.SubAppStep2Paid}
	default:
		return nil
	}
}

// outcomeFor maps a processor intent status onto a payment status; ""
// means the intent has not settled yet.
func outcomeFor(intentStatus string) string {
	switch intentStatus {
	case payments.IntentSucceeded:
		return models.PaymentPaid
	case payments.IntentCanceled, payments.IntentFailed:
		return models.PaymentFailed
	default:
		return ""
	}
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	input.Outcome = strings.ToLower(strings.TrimSpace(input.Outcome))
	if res := validation.Struct(input); !res.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(res.GetErrorMessages(), "; "))
	}

	payment, err := h.locate(ctx, input)
	if err != nil {
		return nil, err
	}

	outcome := input.Outcome
	if outcome == "" {
		if payment.IntentID == "" {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("payment %s has no intent to verify", payment.ID))
		}
		intent, err := h.processor.GetIntent(ctx, payment.IntentID)
		if err != nil {
			if errors.Is(err, payments.ErrIntentNotFound) {
				return nil, apperrors.NewPaymentNotFoundError(payment.IntentID)
			}
			return nil, apperrors.NewPaymentProcessorFailedError(err)
		}
		outcome = outcomeFor(intent.Status)
	}

	out := &Output{
		PaymentID:      payment.ID,
		ApplicationID:  payment.ApplicationID,
		PaymentType:    payment.PaymentType,
		PreviousStatus: payment.Status,
		Status:         payment.Status,
		Rederived:      []string{},
	}
	written := false
	defer func() {
		if written {
			h.invalidate(ctx, payment.ApplicationID)
		}
	}()
	if outcome == "" {
		h.logger.Info("payment not settled yet", map[string]interface{}{
			"paymentId": payment.ID,
			"intentId":  payment.IntentID,
		})
		return out, nil
	}
	if payment.IsPaid() && outcome == models.PaymentFailed {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("payment %s is already paid", payment.ID))
	}

	if !strings.EqualFold(payment.Status, outcome) {
		updated, err := h.store.SetPaymentStatus(ctx, payment.ID, outcome)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperrors.NewPaymentNotFoundError(payment.ID)
			}
			return nil, apperrors.NewQueryExecutionFailedError("set_payment_status", err)
		}
		payment = updated
		written = true
		if err := h.pub.PublishRecord(ctx, feed.TablePayments, feed.Update, payment.ApplicationID, payment.ID, payment); err != nil {
			h.logger.Warn("payment event not published", map[string]interface{}{
				"paymentId": payment.ID,
				"error":     err.Error(),
			})
		}
	}
	out.Status = payment.Status

	// re-running on an already paid payment still rewrites the parents
	if payment.IsPaid() {
		written = true
		for _, key := range feeSubSteps(payment.PaymentType) {
			res, err := h.rederiver.Rederive(ctx, payment.ApplicationID, key)
			if err != nil {
				return nil, err
			}
			out.Rederived = append(out.Rederived, key)
			out.Percentage = res.Progress.Percentage
			out.ApplicationStatus = string(res.Status)
		}
	}

	h.logger.Info("payment outcome applied", map[string]interface{}{
		"paymentId":      payment.ID,
		"applicationId":  payment.ApplicationID,
		"previousStatus": out.PreviousStatus,
		"status":         out.Status,
		"rederived":      out.Rederived,
	})
	return out, nil
}

func (h *Handler) locate(ctx context.Context, input *Input) (*models.Payment, error) {
	var (
		p   *models.Payment
		err error
		ref string
	)
	if input.PaymentID != "" {
		ref = input.PaymentID
		p, err = h.store.GetPayment(ctx, input.PaymentID)
	} else {
		ref = input.IntentID
		p, err = h.store.GetPaymentByIntent(ctx, input.IntentID)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewPaymentNotFoundError(ref)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get_payment", err)
	}
	return p, nil
}

func (h *Handler) invalidate(ctx context.Context, applicationID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, applicationID); err != nil {
		h.logger.Warn("progress cache invalidation failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
	}
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

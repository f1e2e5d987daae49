package generatereceipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "gritsync/internal/common/errors"
	"gritsync/internal/common/logger"
	"gritsync/internal/common/pdf"
	"gritsync/internal/common/validation"
	"gritsync/internal/models"
	"gritsync/internal/store"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "generate-receipt"
)

type Store interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	SetReceiptPath(ctx context.Context, id, path string) error
}

type Storage interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Handler struct {
	config   *Config
	store    Store
	storage  Storage
	renderer *pdf.Renderer
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
	now      func() time.Time
}

func NewHandler(config *Config, s Store, storage Storage, renderer *pdf.Renderer, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		store:    s,
		storage:  storage,
		renderer: renderer,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
		now:      time.Now,
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

// ReceiptKey is the object key of a payment's receipt.
func ReceiptKey(applicationID, paymentID string) string {
	return fmt.Sprintf("receipts/%s/%s.pdf", applicationID, paymentID)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if res := validation.Struct(input); !res.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(res.GetErrorMessages(), "; "))
	}

	payment, err := h.store.GetPayment(ctx, input.PaymentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewPaymentNotFoundError(input.PaymentID)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get_payment", err)
	}
	if !payment.IsPaid() {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("payment %s is %s, receipts are issued for paid payments", payment.ID, payment.Status))
	}

	paidAt := payment.UpdatedAt
	if paidAt.IsZero() {
		paidAt = h.now()
	}
	out := &Output{
		PaymentID:     payment.ID,
		ReceiptNumber: pdf.ReceiptNumber(payment.ID, paidAt),
		ReceiptPath:   payment.ReceiptPath,
	}

	if out.ReceiptPath == "" || input.Regenerate {
		key, err := h.render(ctx, payment, paidAt)
		if err != nil {
			return nil, err
		}
		out.ReceiptPath = key
		out.Generated = true
	}

	url, err := h.storage.SignedURL(ctx, out.ReceiptPath, h.config.URLTTL)
	if err != nil {
		return nil, apperrors.NewSignedURLFailedError(out.ReceiptPath, err)
	}
	out.ReceiptURL = url
	out.ExpiresAt = h.now().Add(h.config.URLTTL).UTC().Format(time.RFC3339)

	h.logger.Info("receipt issued", map[string]interface{}{
		"paymentId":     payment.ID,
		"receiptNumber": out.ReceiptNumber,
		"generated":     out.Generated,
	})
	return out, nil
}

func (h *Handler) render(ctx context.Context, payment *models.Payment, paidAt time.Time) (string, error) {
	rc := pdf.Receipt{
		PaymentID:     payment.ID,
		ApplicationID: payment.ApplicationID,
		PaymentType:   payment.PaymentType,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		IntentID:      payment.IntentID,
		PaidAt:        paidAt,
	}
	app, err := h.store.GetApplication(ctx, payment.ApplicationID)
	switch {
	case err == nil:
		rc.ApplicationType = app.Type
		rc.ApplicantName = app.FullName()
		rc.Email = app.Email
	case errors.Is(err, store.ErrNotFound):
		return "", apperrors.NewApplicationNotFoundError(payment.ApplicationID)
	default:
		return "", apperrors.NewQueryExecutionFailedError("get_application", err)
	}

	body, err := h.renderer.RenderReceipt(rc)
	if err != nil {
		return "", apperrors.NewReceiptRenderFailedError(err)
	}

	key := ReceiptKey(payment.ApplicationID, payment.ID)
	if err := h.storage.Upload(ctx, key, body, "application/pdf"); err != nil {
		return "", apperrors.NewDocumentUploadFailedError(key, err)
	}
	if err := h.store.SetReceiptPath(ctx, payment.ID, key); err != nil {
		return "", apperrors.NewQueryExecutionFailedError("set_receipt_path", err)
	}
	return key, nil
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

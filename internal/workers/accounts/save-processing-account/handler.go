package saveprocessingaccount

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "gritsync/internal/common/errors"
	"gritsync/internal/common/logger"
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
	TaskType = "save-processing-account"
)

type Store interface {
	GetAccount(ctx context.Context, id string) (*models.ProcessingAccount, error)
	SaveAccount(ctx context.Context, a models.ProcessingAccount) (*models.ProcessingAccount, bool, error)
}

type Sealer interface {
	Seal(plaintext string) (string, error)
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
	sealer    Sealer
	rederiver Rederiver
	pub       Publisher
	cache     Invalidator
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, s Store, sealer Sealer, rederiver Rederiver, pub Publisher, cache Invalidator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		store:     s,
		sealer:    sealer,
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

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	input.AccountType = strings.ToLower(strings.TrimSpace(input.AccountType))
	input.Email = strings.TrimSpace(input.Email)
	if res := validation.Struct(input); !res.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(res.GetErrorMessages(), "; "))
	}

	account := models.ProcessingAccount{
		ID:            input.AccountID,
		ApplicationID: input.ApplicationID,
		AccountType:   input.AccountType,
		Name:          strings.TrimSpace(input.Name),
		Email:         input.Email,
	}

	var existing *models.ProcessingAccount
	if input.AccountID != "" {
		var err error
		existing, err = h.store.GetAccount(ctx, input.AccountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperrors.NewAccountNotFoundError(input.AccountID)
			}
			return nil, apperrors.NewQueryExecutionFailedError("get_account", err)
		}
		if existing.ApplicationID != input.ApplicationID {
			return nil, apperrors.NewInvalidInputError(
				fmt.Sprintf("account %s belongs to another application", input.AccountID))
		}
	} else if input.Password == "" {
		return nil, apperrors.NewInvalidInputError("password: password is required for a new account")
	}

	if err := h.seal(&account, input, existing); err != nil {
		return nil, apperrors.NewAccountSaveFailedError(err)
	}

	saved, inserted, err := h.store.SaveAccount(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewAccountNotFoundError(input.AccountID)
		}
		return nil, apperrors.NewAccountSaveFailedError(err)
	}
	defer h.invalidate(ctx, saved.ApplicationID)

	typ := feed.Update
	if inserted {
		typ = feed.Insert
	}
	if err := h.pub.PublishRecord(ctx, feed.TableAccounts, typ, saved.ApplicationID, saved.ID, saved); err != nil {
		h.logger.Warn("account event not published", map[string]interface{}{
			"accountId": saved.ID,
			"error":     err.Error(),
		})
	}

	updated := false
	if saved.AccountType == models.AccountPearsonVUE {
		updated = h.rederivePearson(ctx, saved.ApplicationID)
	}

	h.logger.Info("processing account saved", map[string]interface{}{
		"accountId":     saved.ID,
		"applicationId": saved.ApplicationID,
		"accountType":   saved.AccountType,
		"created":       inserted,
	})

	return &Output{
		AccountID:       saved.ID,
		ApplicationID:   saved.ApplicationID,
		AccountType:     saved.AccountType,
		Created:         inserted,
		ProgressUpdated: updated,
		UpdatedAt:       saved.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// seal encrypts the secrets of input into a. Blank password or omitted
// questions on update keep the stored values, which are already sealed.
func (h *Handler) seal(a *models.ProcessingAccount, input *Input, existing *models.ProcessingAccount) error {
	if input.Password == "" && existing != nil {
		a.Password = existing.Password
	} else {
		sealed, err := h.sealer.Seal(input.Password)
		if err != nil {
			return fmt.Errorf("seal password: %w", err)
		}
		a.Password = sealed
	}

	if input.SecurityQuestions == nil && existing != nil {
		a.SecurityQuestions = existing.SecurityQuestions
		return nil
	}
	a.SecurityQuestions = make([]models.SecurityQuestion, 0, len(input.SecurityQuestions))
	for i, q := range input.SecurityQuestions {
		answer, err := h.sealer.Seal(strings.TrimSpace(q.Answer))
		if err != nil {
			return fmt.Errorf("seal answer %d: %w", i, err)
		}
		a.SecurityQuestions = append(a.SecurityQuestions, models.SecurityQuestion{
			Question: strings.TrimSpace(q.Question),
			Answer:   answer,
		})
	}
	return nil
}

// rederivePearson persists the account-derived sub-step. Failures only log:
// evaluation derives the same sub-step from the account row.
func (h *Handler) rederivePearson(ctx context.Context, applicationID string) bool {
	_, err := h.rederiver.Rederive(ctx, applicationID, progress.SubPearsonAccountCreated)
	if err == nil {
		return true
	}
	if apperrors.Normalize(err).Code == apperrors.ErrCodeUnknownStepKey {
		h.logger.Debug("application has no pearson step", map[string]interface{}{
			"applicationId": applicationID,
		})
		return false
	}
	h.logger.Warn("pearson step not rederived", map[string]interface{}{
		"applicationId": applicationID,
		"error":         err.Error(),
	})
	return false
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

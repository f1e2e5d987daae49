package getprocessingaccount

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
	"gritsync/internal/models"
	"gritsync/internal/store"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "get-processing-account"

	mask = "********"
)

type Store interface {
	GetAccount(ctx context.Context, id string) (*models.ProcessingAccount, error)
}

type Opener interface {
	Open(sealed string) (string, error)
}

type Handler struct {
	config *Config
	store  Store
	opener Opener
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, s Store, opener Opener, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		store:  s,
		opener: opener,
		errors: apperrors.NewErrorHandler(log),
		logger: log,
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
	if res := validation.Struct(input); !res.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(res.GetErrorMessages(), "; "))
	}

	a, err := h.store.GetAccount(ctx, input.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewAccountNotFoundError(input.AccountID)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get_account", err)
	}
	// an account outside the caller's application reads as missing
	if input.ApplicationID != "" && a.ApplicationID != input.ApplicationID {
		return nil, apperrors.NewAccountNotFoundError(input.AccountID)
	}

	out := &Output{
		AccountID:         a.ID,
		ApplicationID:     a.ApplicationID,
		AccountType:       a.AccountType,
		Name:              a.Name,
		Email:             a.Email,
		SecurityQuestions: make([]SecurityQuestion, 0, len(a.SecurityQuestions)),
		Revealed:          input.Reveal,
		UpdatedAt:         a.UpdatedAt.UTC().Format(time.RFC3339),
	}

	out.Password, err = h.reveal(a.Password, input.Reveal)
	if err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("account %s password: %v", a.ID, err))
	}
	for i, q := range a.SecurityQuestions {
		answer, err := h.reveal(q.Answer, input.Reveal)
		if err != nil {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("account %s answer %d: %v", a.ID, i, err))
		}
		out.SecurityQuestions = append(out.SecurityQuestions, SecurityQuestion{Question: q.Question, Answer: answer})
	}

	h.logger.Info("processing account read", map[string]interface{}{
		"accountId": a.ID,
		"revealed":  input.Reveal,
	})
	return out, nil
}

func (h *Handler) reveal(v string, open bool) (string, error) {
	if v == "" {
		return "", nil
	}
	if !open {
		return mask, nil
	}
	return h.opener.Open(v)
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

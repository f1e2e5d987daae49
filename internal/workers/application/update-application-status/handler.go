package updateapplicationstatus

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
	"gritsync/internal/store"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "update-application-status"
)

type Store interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	UpdateApplicationStatus(ctx context.Context, id, status string) error
}

type Publisher interface {
	PublishRecord(ctx context.Context, table string, typ feed.EventType, applicationID, recordID string, record interface{}) error
}

type Invalidator interface {
	Invalidate(ctx context.Context, applicationID string) error
}

type Handler struct {
	config *Config
	store  Store
	pub    Publisher
	cache  Invalidator
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, s Store, pub Publisher, cache Invalidator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		store:  s,
		pub:    pub,
		cache:  cache,
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
	input.Status = strings.ToLower(strings.TrimSpace(input.Status))
	if res := validation.Struct(input); !res.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(res.GetErrorMessages(), "; "))
	}

	app, err := h.store.GetApplication(ctx, input.ApplicationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewApplicationNotFoundError(input.ApplicationID)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get_application", err)
	}
	previous := app.Status

	if err := h.store.UpdateApplicationStatus(ctx, input.ApplicationID, input.Status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewApplicationNotFoundError(input.ApplicationID)
		}
		return nil, apperrors.NewStatusUpdateFailedError(err)
	}

	updated := *app
	updated.Status = input.Status
	updated.UpdatedAt = time.Now().UTC()

	if err := h.pub.PublishRecord(ctx, feed.TableApplications, feed.Update, updated.ID, updated.ID, &updated); err != nil {
		h.logger.Warn("status change event not published", map[string]interface{}{
			"applicationId": updated.ID,
			"error":         err.Error(),
		})
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, updated.ID); err != nil {
			h.logger.Warn("progress cache invalidation failed", map[string]interface{}{
				"applicationId": updated.ID,
				"error":         err.Error(),
			})
		}
	}

	h.logger.Info("application status updated", map[string]interface{}{
		"applicationId":  updated.ID,
		"previousStatus": previous,
		"status":         updated.Status,
		"updatedBy":      input.UpdatedBy,
	})

	return &Output{
		ApplicationID:  updated.ID,
		PreviousStatus: previous,
		Status:         updated.Status,
		UpdatedAt:      updated.UpdatedAt.Format(time.RFC3339),
	}, nil
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

package uploaddocument

import (
	"context"
	"encoding/base64"
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
	TaskType = "upload-document"
)

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

type Store interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	SetDocumentPath(ctx context.Context, id, kind, path string) error
}

type Storage interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
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
	storage   Storage
	rederiver Rederiver
	pub       Publisher
	cache     Invalidator
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, s Store, storage Storage, rederiver Rederiver, pub Publisher, cache Invalidator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		store:     s,
		storage:   storage,
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

// DocumentKey is the object key of one application document.
func DocumentKey(applicationID, kind, contentType string) string {
	return "documents/" + applicationID + "/" + kind + extensions[contentType]
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	input.Kind = strings.ToLower(strings.TrimSpace(input.Kind))
	input.ContentType = strings.ToLower(strings.TrimSpace(input.ContentType))
	if res := validation.Struct(input); !res.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(res.GetErrorMessages(), "; "))
	}

	body, err := base64.StdEncoding.DecodeString(input.Content)
	if err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("content: %v", err))
	}
	if len(body) == 0 {
		return nil, apperrors.NewInvalidInputError("content is empty")
	}
	if int64(len(body)) > h.config.MaxBytes {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("content is %d bytes, limit is %d", len(body), h.config.MaxBytes))
	}

	app, err := h.store.GetApplication(ctx, input.ApplicationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewApplicationNotFoundError(input.ApplicationID)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get_application", err)
	}

	key := DocumentKey(app.ID, input.Kind, input.ContentType)
	if err := h.storage.Upload(ctx, key, body, input.ContentType); err != nil {
		return nil, apperrors.NewDocumentUploadFailedError(key, err)
	}
	if err := h.store.SetDocumentPath(ctx, app.ID, input.Kind, key); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("set_document_path", err)
	}
	defer h.invalidate(ctx, app.ID)

	updated := *app
	switch input.Kind {
	case "picture":
		updated.PicturePath = key
	case "diploma":
		updated.DiplomaPath = key
	case "passport":
		updated.PassportPath = key
	}
	updated.UpdatedAt = time.Now().UTC()
	if err := h.pub.PublishRecord(ctx, feed.TableApplications, feed.Update, app.ID, app.ID, &updated); err != nil {
		h.logger.Warn("document event not published", map[string]interface{}{
			"applicationId": app.ID,
			"error":         err.Error(),
		})
	}

	res, err := h.rederiver.Rederive(ctx, app.ID, progress.SubDocumentsSubmitted)
	if err != nil {
		return nil, err
	}
	sub, _ := res.Progress.Sub(progress.SubDocumentsSubmitted)

	h.logger.Info("document uploaded", map[string]interface{}{
		"applicationId":      app.ID,
		"kind":               input.Kind,
		"path":               key,
		"size":               len(body),
		"documentsSubmitted": sub.Completed,
	})

	return &Output{
		ApplicationID:      app.ID,
		Kind:               input.Kind,
		Path:               key,
		Size:               len(body),
		DocumentsSubmitted: sub.Completed,
		Percentage:         res.Progress.Percentage,
		ApplicationStatus:  string(res.Status),
	}, nil
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

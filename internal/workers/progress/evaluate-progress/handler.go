package evaluateprogress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "gritsync/internal/common/errors"
	"gritsync/internal/common/logger"
	"gritsync/internal/common/metrics"
	"gritsync/internal/common/validation"
	"gritsync/internal/progress"
	"gritsync/internal/search"
	"gritsync/internal/store"
	"gritsync/internal/timeline"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "evaluate-progress"
)

type Cache interface {
	Get(ctx context.Context, applicationID string) (*search.Document, bool, error)
	Set(ctx context.Context, doc search.Document) error
}

type Indexer interface {
	Index(ctx context.Context, doc search.Document) error
}

type Handler struct {
	config  *Config
	reader  timeline.Reader
	cache   Cache
	indexer Indexer
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
	now     func() time.Time
}

func NewHandler(config *Config, reader timeline.Reader, cache Cache, indexer Indexer, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		reader:  reader,
		cache:   cache,
		indexer: indexer,
		errors:  apperrors.NewErrorHandler(log),
		logger:  log,
		now:     time.Now,
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

	if input.UseCache && h.cache != nil {
		doc, ok, err := h.cache.Get(ctx, input.ApplicationID)
		if err != nil {
			h.logger.Warn("progress cache read failed", map[string]interface{}{
				"applicationId": input.ApplicationID,
				"error":         err.Error(),
			})
		}
		if ok {
			out := fromDocument(*doc)
			out.Cached = true
			return out, nil
		}
	}

	snap, err := timeline.LoadSnapshot(ctx, h.reader, input.ApplicationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewApplicationNotFoundError(input.ApplicationID)
		}
		return nil, apperrors.NewQueryExecutionFailedError("load_snapshot", err)
	}

	res := progress.EvaluateSnapshot(snap)
	for _, derr := range res.DataErrors {
		h.logger.Warn("step data unreadable, treated as absent", map[string]interface{}{
			"applicationId": input.ApplicationID,
			"error":         derr.Error(),
		})
	}
	status, reason := progress.Explain(snap)
	metrics.ProgressPercentage.WithLabelValues(res.AppType).Observe(float64(res.Percentage))

	doc := search.NewDocument(snap, res, status, h.now())
	out := fromDocument(doc)
	out.StatusReason = reason

	if h.cache != nil {
		if err := h.cache.Set(ctx, doc); err != nil {
			h.logger.Warn("progress cache write failed", map[string]interface{}{
				"applicationId": input.ApplicationID,
				"error":         err.Error(),
			})
		}
	}

	if !input.SkipIndex && h.indexer != nil {
		if err := h.indexer.Index(ctx, doc); err != nil {
			return nil, apperrors.NewSearchQueryFailedError(err)
		}
		out.Indexed = true
	}

	h.logger.Info("progress evaluated", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"percentage":    out.Percentage,
		"status":        out.ApplicationStatus,
		"reason":        reason,
	})
	return out, nil
}

func fromDocument(doc search.Document) *Output {
	return &Output{
		ApplicationID:     doc.ApplicationID,
		ApplicationType:   doc.Type,
		ApplicationStatus: doc.Status,
		Percentage:        doc.Percentage,
		CompletedItems:    doc.CompletedItems,
		TotalItems:        doc.TotalItems,
		CompletedSteps:    doc.CompletedSteps,
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

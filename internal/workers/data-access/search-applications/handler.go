package searchapplications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "gritsync/internal/common/errors"
	"gritsync/internal/common/logger"
	"gritsync/internal/common/validation"
	"gritsync/internal/search"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "search-applications"
)

type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Results, error)
	IndexName() string
}

type Handler struct {
	config   *Config
	searcher Searcher
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, searcher Searcher, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		searcher: searcher,
		errors:   apperrors.NewErrorHandler(log),
		logger:   log,
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
	input.Type = strings.ToUpper(strings.TrimSpace(input.Type))
	if res := validation.Struct(input); !res.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(res.GetErrorMessages(), "; "))
	}
	if input.MinPercentage != nil && input.MaxPercentage != nil && *input.MinPercentage > *input.MaxPercentage {
		return nil, apperrors.NewInvalidInputError("minPercentage must not exceed maxPercentage")
	}

	q := search.Query{
		Text:          input.Text,
		Status:        input.Status,
		Type:          input.Type,
		MinPercentage: input.MinPercentage,
		MaxPercentage: input.MaxPercentage,
		SortBy:        input.SortBy,
		From:          input.Pagination.From,
		Size:          input.Pagination.Size,
	}.Normalize()

	res, err := h.searcher.Search(ctx, q)
	if err != nil {
		if errors.Is(err, search.ErrIndexNotFound) {
			return nil, apperrors.NewIndexNotFoundError(h.searcher.IndexName())
		}
		return nil, apperrors.NewSearchQueryFailedError(err)
	}

	h.logger.Info("search completed", map[string]interface{}{
		"text":      q.Text,
		"status":    q.Status,
		"type":      q.Type,
		"totalHits": res.Total,
		"returned":  len(res.Hits),
		"took":      res.Took,
	})

	return &Output{
		Data:      res.Hits,
		TotalHits: res.Total,
		Took:      res.Took,
		From:      q.From,
		Size:      q.Size,
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

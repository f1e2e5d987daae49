package updatetimelinestep

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "gritsync/internal/common/errors"
	"gritsync/internal/common/logger"
	"gritsync/internal/common/validation"
	"gritsync/internal/models"
	"gritsync/internal/progress"
	"gritsync/internal/timeline"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "update-timeline-step"
)

// Mutator is the part of timeline.Mutator this worker drives.
type Mutator interface {
	UpdateSubStep(ctx context.Context, req timeline.UpdateRequest) (*timeline.Outcome, error)
	UpdateMainStep(ctx context.Context, req timeline.UpdateRequest) (*timeline.Outcome, error)
}

// Invalidator drops a cached progress entry after a write.
type Invalidator interface {
	Invalidate(ctx context.Context, applicationID string) error
}

type Handler struct {
	config  *Config
	mutator Mutator
	cache   Invalidator
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(config *Config, mutator Mutator, cache Invalidator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		mutator: mutator,
		cache:   cache,
		errors:  apperrors.NewErrorHandler(log),
		logger:  log,
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

// isMainKey reports whether key names a main step in any registry; the
// mutator checks it again against the application's own type.
func isMainKey(key string) bool {
	for _, t := range []string{models.AppTypeNCLEX, models.AppTypeEAD} {
		if reg, err := progress.RegistryFor(t); err == nil && reg.IsMain(key) {
			return true
		}
	}
	return false
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	input.StepKey = strings.TrimSpace(input.StepKey)
	input.Status = strings.ToLower(strings.TrimSpace(input.Status))
	if res := validation.Struct(input); !res.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(res.GetErrorMessages(), "; "))
	}

	req := timeline.UpdateRequest{
		ApplicationID: input.ApplicationID,
		StepKey:       input.StepKey,
		Status:        input.Status,
		Data:          input.Data,
	}

	var (
		out *timeline.Outcome
		err error
	)
	if isMainKey(input.StepKey) {
		out, err = h.mutator.UpdateMainStep(ctx, req)
	} else {
		out, err = h.mutator.UpdateSubStep(ctx, req)
	}
	if h.cache != nil && out != nil {
		if cerr := h.cache.Invalidate(ctx, input.ApplicationID); cerr != nil {
			h.logger.Warn("progress cache invalidation failed", map[string]interface{}{
				"applicationId": input.ApplicationID,
				"error":         cerr.Error(),
			})
		}
	}
	if err != nil {
		return nil, err
	}

	output := &Output{
		StepKey:           input.StepKey,
		ParentKey:         out.ParentKey,
		ParentStatus:      out.ParentStatus,
		CompletedItems:    out.Progress.CompletedItems,
		TotalItems:        out.Progress.TotalItems,
		Percentage:        out.Progress.Percentage,
		ApplicationStatus: string(out.Status),
	}
	if out.Step != nil {
		output.StepStatus = out.Step.Status
	}

	h.logger.Info("timeline step updated", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"stepKey":       input.StepKey,
		"stepStatus":    output.StepStatus,
		"parentKey":     output.ParentKey,
		"parentStatus":  output.ParentStatus,
		"percentage":    output.Percentage,
	})
	return output, nil
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

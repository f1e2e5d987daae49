package issuedocumenturl

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
	TaskType = "issue-document-url"
)

// object prefixes an application may sign, each followed by "<applicationId>/"
var ownedPrefixes = []string{"documents/", "receipts/", "cover-letters/"}

type Store interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
}

type Signer interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Handler struct {
	config *Config
	store  Store
	signer Signer
	errors *apperrors.ErrorHandler
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, s Store, signer Signer, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		store:  s,
		signer: signer,
		errors: apperrors.NewErrorHandler(log),
		logger: log,
		now:    time.Now,
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

func ownedBy(path, applicationID string) bool {
	for _, p := range ownedPrefixes {
		if strings.HasPrefix(path, p+applicationID+"/") {
			return true
		}
	}
	return false
}

func (h *Handler) ttl(seconds int) time.Duration {
	if seconds <= 0 {
		return h.config.DefaultTTL
	}
	ttl := time.Duration(seconds) * time.Second
	if ttl > h.config.MaxTTL {
		return h.config.MaxTTL
	}
	return ttl
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	input.Kind = strings.ToLower(strings.TrimSpace(input.Kind))
	input.Path = strings.TrimSpace(input.Path)
	if res := validation.Struct(input); !res.Valid {
		return nil, apperrors.NewInvalidInputError(strings.Join(res.GetErrorMessages(), "; "))
	}

	path := input.Path
	if path == "" {
		app, err := h.store.GetApplication(ctx, input.ApplicationID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperrors.NewApplicationNotFoundError(input.ApplicationID)
			}
			return nil, apperrors.NewQueryExecutionFailedError("get_application", err)
		}
		col, _ := store.DocumentColumn(input.Kind)
		path = app.LegacyField(col)
		if path == "" {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("no %s on file for application %s", input.Kind, input.ApplicationID))
		}
	}
	if strings.Contains(path, "..") || !ownedBy(path, input.ApplicationID) {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("path %q does not belong to application %s", path, input.ApplicationID))
	}

	ttl := h.ttl(input.TTLSeconds)
	url, err := h.signer.SignedURL(ctx, path, ttl)
	if err != nil {
		return nil, apperrors.NewSignedURLFailedError(path, err)
	}

	h.logger.Info("document link issued", map[string]interface{}{
		"applicationId": input.ApplicationID,
		"path":          path,
		"ttl":           ttl.String(),
	})

	return &Output{
		Path:      path,
		URL:       url,
		ExpiresAt: h.now().Add(ttl).UTC().Format(time.RFC3339),
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

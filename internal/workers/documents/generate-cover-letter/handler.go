package generatecoverletter

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
	TaskType = "generate-cover-letter"
)

var defaultParagraphs = map[string][]string{
	models.AppTypeNCLEX: {
		"I am writing to submit my application for licensure by examination as a Registered Nurse. I completed my nursing education abroad and wish to sit for the NCLEX-RN.",
		"Enclosed are the documents required for the evaluation of my credentials. Please do not hesitate to contact me should any additional information be needed.",
	},
	models.AppTypeEAD: {
		"Please find enclosed my Form I-765, Application for Employment Authorization, together with the supporting evidence listed below.",
		"Kindly direct any request for further evidence to the contact details above.",
	},
}

type Store interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
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

func CoverLetterKey(applicationID string) string {
	return "cover-letters/" + applicationID + "/cover-letter.pdf"
}

// enclosuresOnFile lists the documents already uploaded for app.
func enclosuresOnFile(app *models.Application) []string {
	var out []string
	if app.PicturePath != "" {
		out = append(out, "Passport-size photograph")
	}
	if app.DiplomaPath != "" {
		out = append(out, "Nursing diploma")
	}
	if app.PassportPath != "" {
		out = append(out, "Passport biographic page")
	}
	return out
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
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

	letter := pdf.CoverLetter{
		ApplicantName:   app.FullName(),
		Email:           app.Email,
		MobileNumber:    app.MobileNumber,
		ApplicationType: app.Type,
		Recipient:       input.Recipient,
		Subject:         input.Subject,
		Paragraphs:      input.Paragraphs,
		Enclosures:      input.Enclosures,
		Date:            h.now(),
	}
	if len(letter.Paragraphs) == 0 {
		letter.Paragraphs = defaultParagraphs[strings.ToUpper(app.Type)]
	}
	if len(letter.Enclosures) == 0 {
		letter.Enclosures = enclosuresOnFile(app)
	}

	body, err := h.renderer.RenderCoverLetter(letter)
	if err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("render cover letter: %v", err))
	}

	key := CoverLetterKey(app.ID)
	if err := h.storage.Upload(ctx, key, body, "application/pdf"); err != nil {
		return nil, apperrors.NewDocumentUploadFailedError(key, err)
	}
	url, err := h.storage.SignedURL(ctx, key, h.config.URLTTL)
	if err != nil {
		return nil, apperrors.NewSignedURLFailedError(key, err)
	}

	h.logger.Info("cover letter generated", map[string]interface{}{
		"applicationId": app.ID,
		"path":          key,
		"enclosures":    len(letter.Enclosures),
	})

	return &Output{
		ApplicationID: app.ID,
		Path:          key,
		URL:           url,
		ExpiresAt:     h.now().Add(h.config.URLTTL).UTC().Format(time.RFC3339),
		Size:          len(body),
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

package timeline

import (
	"context"
	"errors"
	"fmt"

	"gritsync/internal/models"
	"gritsync/internal/progress"
	"gritsync/internal/store"
)

// Reader is the fetch side of the record store.
type Reader interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	ListTimelineSteps(ctx context.Context, applicationID string) ([]models.TimelineStep, error)
	ListPayments(ctx context.Context, applicationID string) ([]models.Payment, error)
	ListAccounts(ctx context.Context, applicationID string) ([]models.ProcessingAccount, error)
}

// Store is what the mutation protocol reads and writes.
type Store interface {
	Reader
	UpsertTimelineStep(ctx context.Context, step models.TimelineStep) (*models.TimelineStep, bool, error)
	UpdateApplicationStatus(ctx context.Context, id, status string) error
}

// LoadSnapshot fetches every collection of one application in order. Any
// failure aborts; callers that must stay renderable use the session layer.
func LoadSnapshot(ctx context.Context, r Reader, applicationID string) (progress.Snapshot, error) {
	app, err := r.GetApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return progress.Snapshot{}, err
		}
		return progress.Snapshot{}, fmt.Errorf("fetch application: %w", err)
	}
	steps, err := r.ListTimelineSteps(ctx, applicationID)
	if err != nil {
		return progress.Snapshot{}, fmt.Errorf("fetch timeline steps: %w", err)
	}
	payments, err := r.ListPayments(ctx, applicationID)
	if err != nil {
		return progress.Snapshot{}, fmt.Errorf("fetch payments: %w", err)
	}
	accounts, err := r.ListAccounts(ctx, applicationID)
	if err != nil {
		return progress.Snapshot{}, fmt.Errorf("fetch processing accounts: %w", err)
	}
	return progress.Snapshot{Application: app, Steps: steps, Payments: payments, Accounts: accounts}, nil
}

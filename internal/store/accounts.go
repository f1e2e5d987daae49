package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"gritsync/internal/models"
)

const accountColumns = `id, application_id, account_type, COALESCE(name, ''), COALESCE(email, ''),
	COALESCE(password, ''), security_questions, created_at, updated_at`

func scanAccount(r rowScanner) (*models.ProcessingAccount, error) {
	var (
		a         models.ProcessingAccount
		questions []byte
	)
	if err := r.Scan(&a.ID, &a.ApplicationID, &a.AccountType, &a.Name, &a.Email,
		&a.Password, &questions, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &a.SecurityQuestions); err != nil {
			return nil, fmt.Errorf("account %s security questions: %w", a.ID, err)
		}
	}
	return &a, nil
}

func (s *Store) ListAccounts(ctx context.Context, applicationID string) ([]models.ProcessingAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM processing_accounts WHERE application_id = $1 ORDER BY created_at`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.ProcessingAccount{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.ProcessingAccount, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM processing_accounts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// SaveAccount inserts a when it has no id and updates it otherwise. The
// second return is true on insert.
func (s *Store) SaveAccount(ctx context.Context, a models.ProcessingAccount) (*models.ProcessingAccount, bool, error) {
	questions, err := json.Marshal(a.SecurityQuestions)
	if err != nil {
		return nil, false, err
	}

	if a.ID != "" {
		saved, err := scanAccount(s.db.QueryRowContext(ctx, `
			UPDATE processing_accounts
			SET account_type = $2, name = $3, email = $4, password = $5, security_questions = $6::jsonb, updated_at = now()
			WHERE id = $1
			RETURNING `+accountColumns,
			a.ID, a.AccountType, a.Name, a.Email, a.Password, questions))
		if err != nil {
			return nil, false, notFound(err)
		}
		return saved, false, nil
	}

	saved, err := scanAccount(s.db.QueryRowContext(ctx, `
		INSERT INTO processing_accounts (id, application_id, account_type, name, email, password, security_questions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, now(), now())
		RETURNING `+accountColumns,
		uuid.NewString(), a.ApplicationID, a.AccountType, a.Name, a.Email, a.Password, questions))
	if err != nil {
		return nil, false, err
	}
	return saved, true, nil
}

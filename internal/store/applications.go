package store

import (
	"context"
	"fmt"
	"strings"

	"gritsync/internal/models"
)

const applicationColumns = `id, COALESCE(user_id, ''), type, COALESCE(first_name, ''), COALESCE(last_name, ''),
	COALESCE(email, ''), COALESCE(mobile_number, ''), COALESCE(picture_path, ''),
	COALESCE(diploma_path, ''), COALESCE(passport_path, ''), COALESCE(status, ''),
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(r rowScanner) (*models.Application, error) {
	var a models.Application
	err := r.Scan(&a.ID, &a.UserID, &a.Type, &a.FirstName, &a.LastName,
		&a.Email, &a.MobileNumber, &a.PicturePath,
		&a.DiplomaPath, &a.PassportPath, &a.Status,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	a, err := scanApplication(row)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// ListApplicationIDs returns application ids, optionally restricted to one
// type, oldest first.
func (s *Store) ListApplicationIDs(ctx context.Context, appType string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM applications WHERE ($1 = '' OR upper(type) = upper($1)) ORDER BY created_at`, appType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateApplicationStatus overwrites the explicit status. The value is stored
// trimmed; matching on it is case-insensitive downstream.
func (s *Store) UpdateApplicationStatus(ctx context.Context, id, status string) error {
	return exactlyOne(s.db.ExecContext(ctx,
		`UPDATE applications SET status = $2, updated_at = now() WHERE id = $1`,
		id, strings.TrimSpace(status)))
}

var documentColumns = map[string]string{
	"picture":  models.FieldPicturePath,
	"diploma":  models.FieldDiplomaPath,
	"passport": models.FieldPassportPath,
}

// DocumentColumn maps a document kind to its legacy path column.
func DocumentColumn(kind string) (string, bool) {
	col, ok := documentColumns[strings.ToLower(strings.TrimSpace(kind))]
	return col, ok
}

func (s *Store) SetDocumentPath(ctx context.Context, id, kind, path string) error {
	col, ok := DocumentColumn(kind)
	if !ok {
		return fmt.Errorf("unknown document kind %q", kind)
	}
	return exactlyOne(s.db.ExecContext(ctx,
		`UPDATE applications SET `+col+` = $2, updated_at = now() WHERE id = $1`, id, path))
}

package store

import (
	"context"

	"github.com/google/uuid"

	"gritsync/internal/models"
)

const paymentColumns = `id, application_id, COALESCE(user_id, ''), payment_type, status, amount,
	COALESCE(currency, ''), COALESCE(intent_id, ''), COALESCE(receipt_path, ''), created_at, updated_at`

func scanPayment(r rowScanner) (*models.Payment, error) {
	var p models.Payment
	if err := r.Scan(&p.ID, &p.ApplicationID, &p.UserID, &p.PaymentType, &p.Status, &p.Amount,
		&p.Currency, &p.IntentID, &p.ReceiptPath, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPayments(ctx context.Context, applicationID string) ([]models.Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE application_id = $1 ORDER BY created_at`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (s *Store) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Store) GetPaymentByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE intent_id = $1`, intentID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// InsertPayment stores p as pending and returns the stored row.
func (s *Store) InsertPayment(ctx context.Context, p models.Payment) (*models.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO payments (id, application_id, user_id, payment_type, status, amount, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, now(), now())
		RETURNING `+paymentColumns,
		p.ID, p.ApplicationID, p.UserID, p.PaymentType, p.Amount, p.Currency)
	return scanPayment(row)
}

func (s *Store) SetPaymentIntent(ctx context.Context, id, intentID string) error {
	return exactlyOne(s.db.ExecContext(ctx,
		`UPDATE payments SET intent_id = $2, updated_at = now() WHERE id = $1`, id, intentID))
}

func (s *Store) SetPaymentStatus(ctx context.Context, id, status string) (*models.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx,
		`UPDATE payments SET status = $2, updated_at = now() WHERE id = $1 RETURNING `+paymentColumns, id, status))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Store) SetReceiptPath(ctx context.Context, id, path string) error {
	return exactlyOne(s.db.ExecContext(ctx,
		`UPDATE payments SET receipt_path = $2, updated_at = now() WHERE id = $1`, id, path))
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gritsync/internal/models"
)

var ts = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return New(db), mock
}

var (
	appCols     = []string{"id", "user_id", "type", "first_name", "last_name", "email", "mobile_number", "picture_path", "diploma_path", "passport_path", "status", "created_at", "updated_at"}
	stepCols    = []string{"id", "application_id", "step_key", "status", "data", "completed_at", "created_at", "updated_at"}
	paymentCols = []string{"id", "application_id", "user_id", "payment_type", "status", "amount", "currency", "intent_id", "receipt_path", "created_at", "updated_at"}
	accountCols = []string{"id", "application_id", "account_type", "name", "email", "password", "security_questions", "created_at", "updated_at"}
)

func TestGetApplication(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`FROM applications WHERE id = \$1`).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(appCols).AddRow(
			"app-1", "user-1", "NCLEX", "Maria", "Santos", "maria@example.com", "+639170000000",
			"p.jpg", "", "pp.pdf", "", ts, ts))

	app, err := s.GetApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "Maria Santos", app.FullName())
	assert.Equal(t, "", app.DiplomaPath)

	mock.ExpectQuery(`FROM applications WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = s.GetApplication(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateApplicationStatus(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`UPDATE applications SET status = \$2`).
		WithArgs("app-1", "Rejected").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.UpdateApplicationStatus(context.Background(), "app-1", "  Rejected "))

	mock.ExpectExec(`UPDATE applications SET status = \$2`).
		WithArgs("nope", "completed").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.UpdateApplicationStatus(context.Background(), "nope", "completed"), ErrNotFound)
}

func TestSetDocumentPath(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`UPDATE applications SET diploma_path = \$2`).
		WithArgs("app-1", "applications/app-1/diploma.pdf").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SetDocumentPath(context.Background(), "app-1", "Diploma", "applications/app-1/diploma.pdf"))

	assert.Error(t, s.SetDocumentPath(context.Background(), "app-1", "selfie", "x"))
}

func TestListTimelineSteps(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`FROM application_timeline_steps WHERE application_id = \$1`).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(stepCols).
			AddRow("s1", "app-1", "letter_submitted", "completed", nil, ts, ts, ts).
			AddRow("s2", "app-1", "att_received", "pending", []byte(`{"code":"X1"}`), nil, ts, ts))

	steps, err := s.ListTimelineSteps(context.Background(), "app-1")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.True(t, steps[0].IsCompleted())
	assert.NotNil(t, steps[0].CompletedAt)
	assert.Nil(t, steps[0].Data)
	assert.JSONEq(t, `{"code":"X1"}`, string(steps[1].Data))
	assert.Nil(t, steps[1].CompletedAt)
}

func TestUpsertTimelineStep(t *testing.T) {
	t.Run("updates existing row", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery(`UPDATE application_timeline_steps`).
			WithArgs("app-1", "bon_submitted", "completed", nil).
			WillReturnRows(sqlmock.NewRows(stepCols).AddRow("s1", "app-1", "bon_submitted", "completed", nil, ts, ts, ts))

		st, inserted, err := s.UpsertTimelineStep(context.Background(), models.TimelineStep{
			ApplicationID: "app-1", StepKey: "bon_submitted", Status: "completed",
		})
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.Equal(t, "s1", st.ID)
	})

	t.Run("inserts when absent", func(t *testing.T) {
		s, mock := newMock(t)
		data := json.RawMessage(`{"code":"X1","expiry_date":"2026-12-31"}`)

		mock.ExpectQuery(`UPDATE application_timeline_steps`).
			WithArgs("app-1", "att_received", "pending", []byte(data)).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`INSERT INTO application_timeline_steps`).
			WithArgs(sqlmock.AnyArg(), "app-1", "att_received", "pending", []byte(data)).
			WillReturnRows(sqlmock.NewRows(stepCols).AddRow("s9", "app-1", "att_received", "pending", []byte(data), nil, ts, ts))

		st, inserted, err := s.UpsertTimelineStep(context.Background(), models.TimelineStep{
			ApplicationID: "app-1", StepKey: "att_received", Status: "pending", Data: data,
		})
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.Equal(t, "s9", st.ID)
		assert.JSONEq(t, string(data), string(st.Data))
	})

	t.Run("propagates write errors", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery(`UPDATE application_timeline_steps`).WillReturnError(sql.ErrConnDone)

		_, _, err := s.UpsertTimelineStep(context.Background(), models.TimelineStep{ApplicationID: "a", StepKey: "k"})
		assert.ErrorIs(t, err, sql.ErrConnDone)
	})
}

func TestPayments(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(`INSERT INTO payments`).
		WithArgs(sqlmock.AnyArg(), "app-1", "user-1", "step1", 250.0, "usd").
		WillReturnRows(sqlmock.NewRows(paymentCols).AddRow("pay-1", "app-1", "user-1", "step1", "pending", 250.0, "usd", "", "", ts, ts))
	p, err := s.InsertPayment(ctx, models.Payment{ApplicationID: "app-1", UserID: "user-1", PaymentType: "step1", Amount: 250, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, p.Status)

	mock.ExpectExec(`UPDATE payments SET intent_id = \$2`).
		WithArgs("pay-1", "pi_123").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SetPaymentIntent(ctx, "pay-1", "pi_123"))

	mock.ExpectQuery(`FROM payments WHERE intent_id = \$1`).
		WithArgs("pi_123").
		WillReturnRows(sqlmock.NewRows(paymentCols).AddRow("pay-1", "app-1", "user-1", "step1", "pending", 250.0, "usd", "pi_123", "", ts, ts))
	p, err = s.GetPaymentByIntent(ctx, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, "pay-1", p.ID)

	mock.ExpectQuery(`UPDATE payments SET status = \$2`).
		WithArgs("pay-1", "paid").
		WillReturnRows(sqlmock.NewRows(paymentCols).AddRow("pay-1", "app-1", "user-1", "step1", "paid", 250.0, "usd", "pi_123", "", ts, ts))
	p, err = s.SetPaymentStatus(ctx, "pay-1", "paid")
	require.NoError(t, err)
	assert.True(t, p.IsPaid())

	mock.ExpectQuery(`FROM payments WHERE id = \$1`).
		WithArgs("pay-x").
		WillReturnError(sql.ErrNoRows)
	_, err = s.GetPayment(ctx, "pay-x")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(`FROM payments WHERE application_id = \$1`).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(paymentCols))
	list, err := s.ListPayments(ctx, "app-1")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestSaveAccount(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	questions := []models.SecurityQuestion{{Question: "First pet?", Answer: "sb1:abc"}}
	qJSON, _ := json.Marshal(questions)

	mock.ExpectQuery(`INSERT INTO processing_accounts`).
		WithArgs(sqlmock.AnyArg(), "app-1", "pearson_vue", "", "m@example.com", "sb1:pw", qJSON).
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow("acc-1", "app-1", "pearson_vue", "", "m@example.com", "sb1:pw", qJSON, ts, ts))

	a, inserted, err := s.SaveAccount(ctx, models.ProcessingAccount{
		ApplicationID: "app-1", AccountType: "pearson_vue", Email: "m@example.com", Password: "sb1:pw", SecurityQuestions: questions,
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, questions, a.SecurityQuestions)

	mock.ExpectQuery(`UPDATE processing_accounts`).
		WithArgs("acc-404", "gmail", "", "x@example.com", "", []byte("null")).
		WillReturnError(sql.ErrNoRows)
	_, _, err = s.SaveAccount(ctx, models.ProcessingAccount{ID: "acc-404", AccountType: "gmail", Email: "x@example.com"})
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery(`FROM processing_accounts WHERE application_id = \$1`).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow("acc-1", "app-1", "pearson_vue", "", "m@example.com", "sb1:pw", nil, ts, ts))
	list, err := s.ListAccounts(ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].SecurityQuestions)
}

func TestListApplicationIDs(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT id FROM applications`).
		WithArgs("EAD").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a1").AddRow("a2"))

	ids, err := s.ListApplicationIDs(context.Background(), "EAD")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids)
}

func TestUpsertTimelineStep_NullDataKeepsStoredData(t *testing.T) {
	s, mock := newMock(t)
	stored := []byte(`{"code":"X1","expiry_date":"2026-12-31"}`)

	mock.ExpectQuery(`UPDATE application_timeline_steps`).
		WithArgs("app-1", "att_received", "completed", nil).
		WillReturnRows(sqlmock.NewRows(stepCols).AddRow("s1", "app-1", "att_received", "completed", stored, ts, ts, ts))

	st, _, err := s.UpsertTimelineStep(context.Background(), models.TimelineStep{
		ApplicationID: "app-1", StepKey: "att_received", Status: "completed", Data: json.RawMessage(" null "),
	})
	require.NoError(t, err)
	assert.JSONEq(t, string(stored), string(st.Data))
}

func TestUpsertTimelineStep_BlankStatus(t *testing.T) {
	t.Run("update keeps stored status", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery(`SET status = COALESCE\(NULLIF\(\$3, ''\), status, 'pending'\)`).
			WithArgs("app-1", "exam_fee_paid", "", []byte(`{"note":"receipt mailed"}`)).
			WillReturnRows(sqlmock.NewRows(stepCols).AddRow("s1", "app-1", "exam_fee_paid", "completed", []byte(`{"note":"receipt mailed"}`), ts, ts, ts))

		st, inserted, err := s.UpsertTimelineStep(context.Background(), models.TimelineStep{
			ApplicationID: "app-1", StepKey: "exam_fee_paid", Data: json.RawMessage(`{"note":"receipt mailed"}`),
		})
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.True(t, st.IsCompleted())
	})

	t.Run("insert defaults to pending", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery(`UPDATE application_timeline_steps`).
			WithArgs("app-1", "exam_fee_paid", "", nil).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`INSERT INTO application_timeline_steps`).
			WithArgs(sqlmock.AnyArg(), "app-1", "exam_fee_paid", models.StepPending, nil).
			WillReturnRows(sqlmock.NewRows(stepCols).AddRow("s2", "app-1", "exam_fee_paid", "pending", nil, nil, ts, ts))

		st, inserted, err := s.UpsertTimelineStep(context.Background(), models.TimelineStep{
			ApplicationID: "app-1", StepKey: "exam_fee_paid",
		})
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.Equal(t, models.StepPending, st.Status)
	})
}

func TestTimelineOrderingBreaksTiesOnID(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`ORDER BY updated_at, id`).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows(stepCols))
	mock.ExpectQuery(`ORDER BY updated_at DESC, id DESC LIMIT 1`).
		WithArgs("app-1", "bon_submitted", "completed", nil).
		WillReturnRows(sqlmock.NewRows(stepCols).AddRow("s1", "app-1", "bon_submitted", "completed", nil, ts, ts, ts))

	_, err := s.ListTimelineSteps(context.Background(), "app-1")
	require.NoError(t, err)
	_, _, err = s.UpsertTimelineStep(context.Background(), models.TimelineStep{
		ApplicationID: "app-1", StepKey: "bon_submitted", Status: "completed",
	})
	require.NoError(t, err)
}

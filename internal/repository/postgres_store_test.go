package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/intake-gateway/internal/models"
)

func newPostgresStore(t *testing.T) (*PostgresPaymentStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p, err := NewSQLConnPool(context.Background(), db, 1)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	return NewPostgresPaymentStore(p), mock
}

func TestPostgresPaymentStore_InitDB(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS payments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_payments_requested_at").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS processor_totals").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO processor_totals").WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, store.InitDB(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPaymentStore_Save(t *testing.T) {
	store, mock := newPostgresStore(t)
	amount := decimal.RequireFromString("19.90")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payments").
		WithArgs("p-1", "default", amount, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE processor_totals").
		WithArgs("default", amount).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	saved, err := store.Save(context.Background(), "p-1", models.ProcessorDefault, amount, time.Now())
	require.NoError(t, err)
	assert.True(t, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPaymentStore_SaveDuplicate(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	saved, err := store.Save(context.Background(), "p-1", models.ProcessorFallback, decimal.NewFromInt(1), time.Now())
	require.NoError(t, err)
	assert.False(t, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPaymentStore_SaveRollsBackOnTotalsFailure(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE processor_totals").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	saved, err := store.Save(context.Background(), "p-1", models.ProcessorDefault, decimal.NewFromInt(1), time.Now())
	assert.Error(t, err)
	assert.False(t, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPaymentStore_SummaryLifetime(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectQuery("SELECT processor, total_requests, total_amount FROM processor_totals").
		WillReturnRows(sqlmock.NewRows([]string{"processor", "total_requests", "total_amount"}).
			AddRow("default", 2, "30.50").
			AddRow("fallback", 1, "5.005"))

	summary, err := store.Summary(context.Background(), models.TimeRange{})
	require.NoError(t, err)

	resp := summary.Response()
	assert.Equal(t, models.ProcessorSummaryResponse{TotalRequests: 2, TotalAmount: 30.50}, resp.Default)
	assert.Equal(t, models.ProcessorSummaryResponse{TotalRequests: 1, TotalAmount: 5.01}, resp.Fallback)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPaymentStore_SummaryRanged(t *testing.T) {
	store, mock := newPostgresStore(t)
	from := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	to := from.Add(time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT processor, COUNT(*), COALESCE(SUM(amount), 0) FROM payments WHERE requested_at >= $1 AND requested_at <= $2 GROUP BY processor")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"processor", "count", "sum"}).AddRow("default", 1, "10.00"))

	summary, err := store.Summary(context.Background(), models.TimeRange{From: from, To: to, Filtered: true})
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Default.TotalRequests)
	assert.Equal(t, int64(0), summary.Fallback.TotalRequests)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPaymentStore_SummaryOpenRange(t *testing.T) {
	store, mock := newPostgresStore(t)
	from := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT processor, COUNT(*), COALESCE(SUM(amount), 0) FROM payments WHERE requested_at >= $1 GROUP BY processor")).
		WithArgs(from).
		WillReturnRows(sqlmock.NewRows([]string{"processor", "count", "sum"}))

	_, err := store.Summary(context.Background(), models.TimeRange{From: from, Filtered: true})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPaymentStore_PurgeAll(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectExec("TRUNCATE payments, processor_totals").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO processor_totals").WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, store.PurgeAll(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPaymentStore_IsProcessed(t *testing.T) {
	store, mock := newPostgresStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	processed, err := store.IsProcessed(context.Background(), "p-1")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

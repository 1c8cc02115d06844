package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/intake-gateway/internal/models"
	"github.com/akylbek/payment-system/intake-gateway/internal/pool"
)

// NewSQLConnPool pins size connections out of db.
func NewSQLConnPool(ctx context.Context, db *sql.DB, size int) (*pool.Pool[*sql.Conn], error) {
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)

	return pool.New(size, func() (*sql.Conn, error) {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}, func(conn *sql.Conn) error {
		return conn.Close()
	})
}

// PostgresPaymentStore uses the payments primary key as the processed
// marker, so record, marker and totals commit together.
type PostgresPaymentStore struct {
	pool *pool.Pool[*sql.Conn]
}

func NewPostgresPaymentStore(p *pool.Pool[*sql.Conn]) *PostgresPaymentStore {
	return &PostgresPaymentStore{pool: p}
}

func (s *PostgresPaymentStore) InitDB(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			correlation_id VARCHAR(255) PRIMARY KEY,
			processor VARCHAR(16) NOT NULL,
			amount NUMERIC(20,4) NOT NULL,
			requested_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_requested_at ON payments(requested_at)`,
		`CREATE TABLE IF NOT EXISTS processor_totals (
			processor VARCHAR(16) PRIMARY KEY,
			total_requests BIGINT NOT NULL DEFAULT 0,
			total_amount NUMERIC(20,4) NOT NULL DEFAULT 0
		)`,
		seedTotalsQuery,
	}

	return s.pool.With(func(conn *sql.Conn) error {
		for _, query := range queries {
			if _, err := conn.ExecContext(ctx, query); err != nil {
				return err
			}
		}
		return nil
	})
}

const seedTotalsQuery = `INSERT INTO processor_totals (processor) VALUES ('default'), ('fallback')
	ON CONFLICT (processor) DO NOTHING`

func (s *PostgresPaymentStore) Save(ctx context.Context, correlationID string, processor models.Processor, amount decimal.Decimal, at time.Time) (bool, error) {
	if processor != models.ProcessorDefault && processor != models.ProcessorFallback {
		return false, fmt.Errorf("%w: %q", ErrUnknownProcessor, processor)
	}

	return pool.Do(s.pool, func(conn *sql.Conn) (bool, error) {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return false, err
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO payments (correlation_id, processor, amount, requested_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (correlation_id) DO NOTHING
		`, correlationID, string(processor), amount, at.UTC())
		if err != nil {
			return false, fmt.Errorf("record payment %s: %w", correlationID, err)
		}

		inserted, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		if inserted == 0 {
			return false, nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE processor_totals
			SET total_requests = total_requests + 1, total_amount = total_amount + $2
			WHERE processor = $1
		`, string(processor), amount); err != nil {
			return false, fmt.Errorf("update totals: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *PostgresPaymentStore) Summary(ctx context.Context, r models.TimeRange) (models.Summary, error) {
	query := `SELECT processor, total_requests, total_amount FROM processor_totals`
	var args []any

	if r.Filtered {
		var conds []string
		if !r.From.IsZero() {
			args = append(args, r.From.UTC())
			conds = append(conds, fmt.Sprintf("requested_at >= $%d", len(args)))
		}
		if !r.To.IsZero() {
			args = append(args, r.To.UTC())
			conds = append(conds, fmt.Sprintf("requested_at <= $%d", len(args)))
		}

		query = `SELECT processor, COUNT(*), COALESCE(SUM(amount), 0) FROM payments`
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		query += " GROUP BY processor"
	}

	return pool.Do(s.pool, func(conn *sql.Conn) (models.Summary, error) {
		var summary models.Summary

		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return summary, fmt.Errorf("query summary: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				processor string
				requests  int64
				amount    decimal.Decimal
			)
			if err := rows.Scan(&processor, &requests, &amount); err != nil {
				return summary, err
			}
			if totals := summary.Totals(models.Processor(processor)); totals != nil {
				totals.TotalRequests = requests
				totals.TotalAmount = amount
			}
		}
		return summary, rows.Err()
	})
}

func (s *PostgresPaymentStore) PurgeAll(ctx context.Context) error {
	return s.pool.With(func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `TRUNCATE payments, processor_totals`); err != nil {
			return err
		}
		_, err := conn.ExecContext(ctx, seedTotalsQuery)
		return err
	})
}

func (s *PostgresPaymentStore) IsProcessed(ctx context.Context, correlationID string) (bool, error) {
	return pool.Do(s.pool, func(conn *sql.Conn) (bool, error) {
		var exists bool
		err := conn.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM payments WHERE correlation_id = $1)`, correlationID).Scan(&exists)
		return exists, err
	})
}

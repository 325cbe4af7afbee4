// Package ledger keeps an audit row per calculation request in PostgreSQL.
// The API inserts the row when a request is accepted and the worker fills in
// the outcome once the response has been published.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/calculator"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/postgres"
)

const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

const schema = `
CREATE TABLE IF NOT EXISTS calculation_requests (
	id             UUID PRIMARY KEY,
	first_number   DOUBLE PRECISION NOT NULL,
	second_number  DOUBLE PRECISION NOT NULL,
	operation      TEXT NOT NULL,
	status         TEXT NOT NULL,
	result         DOUBLE PRECISION,
	error_message  TEXT,
	requested_at   TIMESTAMPTZ NOT NULL,
	processed_at   TIMESTAMPTZ
)`

// Ledger tracks each request's lifecycle in the calculation_requests table.
type Ledger struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a Ledger on db. Call EnsureSchema before first use.
func New(db *postgres.Client) *Ledger {
	return &Ledger{
		db:     db,
		logger: slog.Default().With("component", "ledger"),
	}
}

// EnsureSchema creates the ledger table if it does not exist.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating ledger schema: %w", err)
	}
	return nil
}

// Record inserts a PENDING row for req. Recording the same request twice is a
// no-op.
func (l *Ledger) Record(ctx context.Context, req calculator.CalculationRequest) error {
	_, err := l.db.DB.ExecContext(ctx,
		`INSERT INTO calculation_requests (id, first_number, second_number, operation, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		req.ID, req.FirstNumber, req.SecondNumber, req.Operation, StatusPending, req.RequestTime,
	)
	if err != nil {
		return fmt.Errorf("recording request %s: %w", req.ID, err)
	}
	return nil
}

// Complete stores the outcome of resp. Only a PENDING row is updated, so a
// redelivered request keeps the outcome recorded the first time. Responses
// for requests that were never recorded are ignored.
func (l *Ledger) Complete(ctx context.Context, resp calculator.CalculationResponse) error {
	status := StatusCompleted
	if !resp.IsSuccess {
		status = StatusFailed
	}
	return l.db.InTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM calculation_requests WHERE id = $1 FOR UPDATE`, resp.ID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			l.logger.Debug("no ledger row for response", "request_id", resp.ID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("locking ledger row %s: %w", resp.ID, err)
		}
		if current != StatusPending {
			return nil
		}

		var result sql.NullFloat64
		if resp.IsSuccess {
			result = sql.NullFloat64{Float64: resp.Result, Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE calculation_requests
			SET status = $2, result = $3, error_message = NULLIF($4, ''), processed_at = $5
			WHERE id = $1`,
			resp.ID, status, result, resp.ErrorMessage, resp.ProcessedTime,
		)
		if err != nil {
			return fmt.Errorf("completing ledger row %s: %w", resp.ID, err)
		}
		return nil
	})
}

// Entry is one ledger row.
type Entry struct {
	ID           string
	Operation    string
	Status       string
	Result       sql.NullFloat64
	ErrorMessage sql.NullString
}

// Lookup returns the ledger row for id.
func (l *Ledger) Lookup(ctx context.Context, id string) (*Entry, error) {
	var e Entry
	err := l.db.DB.QueryRowContext(ctx,
		`SELECT id, operation, status, result, error_message FROM calculation_requests WHERE id = $1`, id,
	).Scan(&e.ID, &e.Operation, &e.Status, &e.Result, &e.ErrorMessage)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

package database

import (
	"context"
	"fmt"
	"time"

	"asset-manager/internal/manager"
)

// ActionRecord is one audited action as stored in Postgres.
type ActionRecord struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Symbol     string    `json:"symbol"`
	Operation  string    `json:"operation"`
	Amount     float64   `json:"amount"`
	Price      float64   `json:"price"`
	Reason     string    `json:"reason"`
	Priority   string    `json:"priority"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ActionRepository appends executed and failed actions to the audit
// table. The in-memory store stays bounded; this history is not.
type ActionRepository struct {
	db *DB
}

// NewActionRepository creates an action audit repository.
func NewActionRepository(db *DB) *ActionRepository {
	return &ActionRepository{db: db}
}

// RecordAction appends one finished action. A failed action may be
// retried and recorded again later, so the row is upserted by id.
func (r *ActionRepository) RecordAction(ctx context.Context, a manager.Action, status, errMsg string) error {
	query := `
		INSERT INTO portfolio_actions
			(id, type, symbol, operation, amount, price, reason, priority, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			recorded_at = NOW()`

	_, err := r.db.Pool.Exec(ctx, query,
		a.ID, string(a.Type), a.Symbol, string(a.Operation),
		a.Amount, a.Price, a.Reason, string(a.Priority),
		status, errMsg, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record action %s: %w", a.ID, err)
	}
	return nil
}

// History returns the most recent audited actions, newest first.
func (r *ActionRepository) History(ctx context.Context, limit int) ([]ActionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, type, symbol, operation, amount, price, reason, priority, status,
		       COALESCE(error, ''), created_at, recorded_at
		FROM portfolio_actions
		ORDER BY recorded_at DESC
		LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query action history: %w", err)
	}
	defer rows.Close()

	var records []ActionRecord
	for rows.Next() {
		var rec ActionRecord
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Symbol, &rec.Operation,
			&rec.Amount, &rec.Price, &rec.Reason, &rec.Priority, &rec.Status,
			&rec.Error, &rec.CreatedAt, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

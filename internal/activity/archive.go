package activity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Archive persists activity events to PostgreSQL. Unlike the in-memory Log it
// is unbounded; it exists for after-the-fact auditing, not for the live feed.
type Archive struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewArchive creates an Archive backed by the given connection pool.
func NewArchive(pool *pgxpool.Pool, logger *zap.Logger) *Archive {
	return &Archive{pool: pool, logger: logger}
}

// Store implements Sink.
func (a *Archive) Store(ctx context.Context, ev Event) error {
	if _, err := a.pool.Exec(ctx,
		`INSERT INTO activity_events (event_type, request_id, tx_hash, occurred_at)
		 VALUES ($1, $2, $3, $4)`,
		string(ev.Type), ev.RequestID, ev.TxHash, ev.Timestamp,
	); err != nil {
		return fmt.Errorf("insert activity event: %w", err)
	}
	return nil
}

// Recent returns up to limit archived events, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT event_type, request_id, tx_hash, occurred_at
		 FROM activity_events ORDER BY occurred_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var typ string
		if err := rows.Scan(&typ, &ev.RequestID, &ev.TxHash, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity event: %w", err)
		}
		ev.Type = EventType(typ)
		out = append(out, ev)
	}
	return out, rows.Err()
}

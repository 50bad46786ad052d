package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/notes/backend/internal/contracts"
)

// PostgresLog stores events in products.events
// ⭐ SSOT: 이벤트 로그 저장소는 여기서만
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog creates a new event log
func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

// Append implements contracts.EventLog. The dedup check and the insert run
// under a transaction-scoped advisory lock on the dedup key, so only writers
// of the same event contend.
func (l *PostgresLog) Append(ctx context.Context, event contracts.Event, window time.Duration) (bool, error) {
	id, err := uuid.Parse(event.ID)
	if err != nil {
		id = uuid.New()
		event.ID = id.String()
	}
	if event.DetectedAt.IsZero() {
		event.DetectedAt = time.Now()
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, event.DedupKey()); err != nil {
		return false, fmt.Errorf("lock event key: %w", err)
	}

	// window <= 0 suppresses any earlier record
	query := `
		INSERT INTO products.events (
			id, product_id, event_type, event_date, underlying,
			basket_level, payoff_impact, observation_index, message, detected_at
		)
		SELECT $1::uuid, $2::text, $3::text, $4::date, $5::text,
		       $6::float8, $7::float8, $8::int, $9::text, $10::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM products.events
			WHERE product_id = $2
			  AND event_type = $3
			  AND event_date = $4
			  AND underlying = $5
			  AND ($11::bigint <= 0 OR detected_at > $10::timestamptz - make_interval(secs => $11::bigint))
		)
	`

	tag, err := tx.Exec(ctx, query,
		id,
		event.ProductID,
		string(event.Type),
		contracts.Day(event.Date),
		event.Underlying,
		event.BasketLevel,
		event.PayoffImpact,
		event.ObservationIndex,
		event.Message,
		event.DetectedAt,
		int64(window/time.Second),
	)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByProduct implements contracts.EventLog
func (l *PostgresLog) ListByProduct(ctx context.Context, productID string) ([]contracts.Event, error) {
	query := `
		SELECT id, product_id, event_type, event_date, underlying,
		       COALESCE(basket_level, 0), payoff_impact, observation_index, message, detected_at
		FROM products.events
		WHERE product_id = $1
		ORDER BY event_date ASC, detected_at ASC
	`

	rows, err := l.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []contracts.Event
	for rows.Next() {
		var (
			e         contracts.Event
			id        uuid.UUID
			eventType string
		)
		if err := rows.Scan(&id, &e.ProductID, &eventType, &e.Date, &e.Underlying,
			&e.BasketLevel, &e.PayoffImpact, &e.ObservationIndex, &e.Message, &e.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.ID = id.String()
		e.Type = contracts.EventType(eventType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortEvents(out)
	return out, nil
}

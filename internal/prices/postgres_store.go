package prices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/notes/backend/internal/contracts"
)

// PostgresStore reads price records from market.price_records/price_history
// ⭐ SSOT: 가격 데이터 저장소는 여기서만
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new price store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// GetRecord implements contracts.PriceStore
func (s *PostgresStore) GetRecord(ctx context.Context, fullTicker string) (*contracts.PriceRecord, error) {
	ticker := strings.ToUpper(fullTicker)

	query := `
		SELECT full_ticker, current_price, price_date
		FROM market.price_records
		WHERE full_ticker = $1
	`

	var record contracts.PriceRecord
	err := s.pool.QueryRow(ctx, query, ticker).Scan(&record.FullTicker, &record.CurrentPrice, &record.PriceDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", contracts.ErrDataUnavailable, ticker)
	}
	if err != nil {
		return nil, fmt.Errorf("query price record %s: %w", ticker, err)
	}

	history, err := s.history(ctx, ticker)
	if err != nil {
		return nil, err
	}
	record.History = history
	return &record, nil
}

func (s *PostgresStore) history(ctx context.Context, ticker string) ([]contracts.PricePoint, error) {
	query := `
		SELECT trade_date, close, adjusted_close
		FROM market.price_history
		WHERE full_ticker = $1
		ORDER BY trade_date ASC
	`

	rows, err := s.pool.Query(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("query price history %s: %w", ticker, err)
	}
	defer rows.Close()

	var points []contracts.PricePoint
	for rows.Next() {
		var p contracts.PricePoint
		if err := rows.Scan(&p.Date, &p.Close, &p.AdjustedClose); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// SaveRecord upserts a record and its history in one transaction
func (s *PostgresStore) SaveRecord(ctx context.Context, record contracts.PriceRecord) error {
	ticker := strings.ToUpper(record.FullTicker)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO market.price_records (full_ticker, current_price, price_date, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (full_ticker) DO UPDATE SET
			current_price = EXCLUDED.current_price,
			price_date = EXCLUDED.price_date,
			updated_at = NOW()
	`, ticker, record.CurrentPrice, contracts.Day(record.PriceDate))
	if err != nil {
		return fmt.Errorf("upsert price record %s: %w", ticker, err)
	}

	batch := &pgx.Batch{}
	for _, p := range record.History {
		batch.Queue(`
			INSERT INTO market.price_history (full_ticker, trade_date, close, adjusted_close)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (full_ticker, trade_date) DO UPDATE SET
				close = EXCLUDED.close,
				adjusted_close = EXCLUDED.adjusted_close
		`, ticker, contracts.Day(p.Date), p.Close, p.AdjustedClose)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert price history %s: %w", ticker, err)
		}
	}

	return tx.Commit(ctx)
}

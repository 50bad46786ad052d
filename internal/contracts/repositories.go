package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: 외부 협력자 인터페이스 정의는 여기서만

// PriceStore reads records from the price cache. Missing records return
// ErrDataUnavailable; any other error is a store fault.
type PriceStore interface {
	GetRecord(ctx context.Context, fullTicker string) (*PriceRecord, error)
}

// HolidayProvider supplies market holidays. Implementations never fail:
// on error they return an empty list and the calendar degrades to
// weekend-only adjustment.
type HolidayProvider interface {
	MarketHolidays(ctx context.Context) []time.Time
}

// EventLog is the append-only, shared event log. Append reports false when
// an event with the same DedupKey was recorded within window (window <= 0
// suppresses any earlier record).
type EventLog interface {
	Append(ctx context.Context, event Event, window time.Duration) (bool, error)
	ListByProduct(ctx context.Context, productID string) ([]Event, error)
}

// ProductRepository serves product records
type ProductRepository interface {
	Get(ctx context.Context, id string) (*Product, error)
	ListActive(ctx context.Context) ([]Product, error)
}

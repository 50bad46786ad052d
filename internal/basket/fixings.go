package basket

import (
	"fmt"
	"time"

	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/prices"
)

// Fixing pairs an underlying with its strike and resolved price history
type Fixing struct {
	Underlying contracts.Underlying
	Strike     float64
	History    *contracts.PriceHistory // nil when the ticker did not resolve
}

// Ticker is the underlying's lookup key
func (f Fixing) Ticker() string {
	return f.Underlying.FullTicker()
}

// LevelAt returns the rebased level (100 = strike) of the first close on or after date
func (f Fixing) LevelAt(date time.Time, adjusted bool) (float64, error) {
	if f.History == nil {
		return 0, fmt.Errorf("%w: no history for %s", contracts.ErrDataUnavailable, f.Ticker())
	}
	point, err := prices.PriceOnOrAfter(f.History, date)
	if err != nil {
		return 0, err
	}
	perf, err := UnderlyingPerformance(point.Value(adjusted), f.Strike)
	if err != nil {
		return 0, err
	}
	return Rebased(perf), nil
}

// Fixings is a basket whose performance can be observed at any date
type Fixings struct {
	Items    []Fixing
	Policy   contracts.BasketPolicy
	Adjusted bool
}

// PerformancesAt returns each underlying's performance on date; underlyings
// without data are marked unavailable rather than dropped
func (f Fixings) PerformancesAt(date time.Time) []Performance {
	perfs := make([]Performance, 0, len(f.Items))
	for _, item := range f.Items {
		p := Performance{Ticker: item.Ticker()}
		if level, err := item.LevelAt(date, f.Adjusted); err == nil {
			p.Value = FromLevel(level)
			p.Available = true
		}
		perfs = append(perfs, p)
	}
	return perfs
}

// PerformanceAt returns the basket performance on date
func (f Fixings) PerformanceAt(date time.Time) (float64, error) {
	perf, err := Reduce(f.PerformancesAt(date), f.Policy)
	if err != nil {
		return 0, fmt.Errorf("%w: basket on %s: %w", contracts.ErrDataUnavailable, date.Format(contracts.DateLayout), err)
	}
	return perf, nil
}

// LevelAt returns the rebased basket level on date
func (f Fixings) LevelAt(date time.Time) (float64, error) {
	perf, err := f.PerformanceAt(date)
	if err != nil {
		return 0, err
	}
	return Rebased(perf), nil
}

package evaluation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/events"
	"github.com/wonny/notes/backend/internal/prices"
	"github.com/wonny/notes/backend/pkg/config"
	"github.com/wonny/notes/backend/pkg/logger"
)

var tradeDate = contracts.Date(2024, time.January, 15)

// weekdays builds a record of weekday closes from the trade date to end
func weekdays(ticker string, end time.Time, closeAt func(time.Time) float64) contracts.PriceRecord {
	r := contracts.PriceRecord{FullTicker: ticker}
	for d := tradeDate; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		r.History = append(r.History, contracts.PricePoint{Date: d, Close: closeAt(d)})
	}
	return r
}

func newEvaluator(records ...contracts.PriceRecord) (*Evaluator, *events.MemoryLog) {
	store := prices.NewMemoryStore(records...)
	provider := prices.NewProvider(store, config.PriceConfig{
		FallbackExchanges: []string{"US", "PA", "DE"},
		BreakerFailures:   5,
		BreakerTimeout:    time.Minute,
	}, logger.Nop())

	cfg := config.EngineConfig{PaymentLagDays: 5, DedupWindow: 24 * time.Hour, YieldEvery: 10}
	log := events.NewMemoryLog()
	detector := events.NewDetector(log, cfg, logger.Nop())
	return NewEvaluator(provider, nil, detector, cfg, logger.Nop()), log
}

func reverseConvertible(id string, u contracts.Underlying) contracts.Product {
	return contracts.Product{
		ID:                   id,
		Name:                 "Barrier Reverse Convertible",
		Currency:             "EUR",
		Notional:             1000,
		TradeDate:            tradeDate,
		FinalObservationDate: contracts.Date(2025, time.January, 15),
		MaturityDate:         contracts.Date(2025, time.January, 22),
		Underlyings:          []contracts.Underlying{u},
		Basket:               contracts.BasketPolicy{Kind: contracts.BasketWorstOf},
		Structure: contracts.ProductStructure{
			Kind: contracts.TemplateReverseConvertible,
			ReverseConvertible: &contracts.ReverseConvertibleTerms{
				ProtectionBarrier: 70,
				CouponRate:        8,
			},
		},
	}
}

func TestEvaluate_ResolvesStrikeFromTradeDate(t *testing.T) {
	evalDate := contracts.Date(2024, time.June, 28)
	record := weekdays("AAA.US", evalDate, func(d time.Time) float64 {
		if d.Before(contracts.Date(2024, time.June, 1)) {
			return 50
		}
		return 30
	})
	e, _ := newEvaluator(record)

	var observed []contracts.TraceEntry
	r, err := e.Evaluate(context.Background(), Request{
		Product: reverseConvertible("RC-1", contracts.Underlying{Ticker: "AAA", Exchange: "US"}),
		Date:    evalDate,
		Observe: func(entry contracts.TraceEntry) { observed = append(observed, entry) },
	})
	require.NoError(t, err)

	require.Len(t, r.Underlyings, 1)
	u := r.Underlyings[0]
	assert.InDelta(t, 50, u.Strike, 1e-9)
	assert.InDelta(t, 30, u.Price, 1e-9)
	assert.Equal(t, "-40.00%", u.PerformanceDisplay)
	assert.Equal(t, contracts.DataQualityLive, r.DataQuality)

	require.True(t, r.Redemption.Available)
	assert.InDelta(t, 50.857, r.Redemption.Value, 0.001)
	assert.Equal(t, "100 + (-40.00) × 1.4286 + 8.00 = 50.86 (barrier 70.00% breached)", r.Redemption.Formula)
	assert.Equal(t, "EUR 508.57", r.Redemption.AmountDisplay)

	assert.NotEmpty(t, r.RunID)
	assert.NotEmpty(t, observed)
	assert.Equal(t, len(r.Trace), len(observed))
}

func TestEvaluate_MissingTickerFallsBackToStrike(t *testing.T) {
	e, _ := newEvaluator()

	r, err := e.Evaluate(context.Background(), Request{
		Product: reverseConvertible("RC-2", contracts.Underlying{Ticker: "ZZZ", Exchange: "US", Strike: 100}),
		Date:    contracts.Date(2024, time.June, 28),
	})
	require.NoError(t, err)

	assert.Equal(t, contracts.DataQualityFallback, r.DataQuality)
	assert.False(t, r.HasCurrentData)
	assert.True(t, r.Underlyings[0].Available)
	assert.Equal(t, "0.00%", r.Underlyings[0].PerformanceDisplay)
	assert.InDelta(t, 108, r.Redemption.Value, 1e-9)
}

func TestEvaluate_PeriodicCouponExcludedFromRedemption(t *testing.T) {
	evalDate := contracts.Date(2024, time.June, 28)
	e, _ := newEvaluator(weekdays("AAA.US", evalDate, func(time.Time) float64 { return 100 }))

	product := reverseConvertible("RC-Q", contracts.Underlying{Ticker: "AAA", Exchange: "US", Strike: 100})
	product.Structure.ReverseConvertible.CouponPeriodicityMonths = 3

	r, err := e.Evaluate(context.Background(), Request{Product: product, Date: evalDate})
	require.NoError(t, err)

	require.Len(t, r.Events, 1)
	assert.Equal(t, contracts.EventCouponPaid, r.Events[0].Type)
	assert.InDelta(t, 2, r.Events[0].PayoffImpact, 1e-9)
	require.True(t, r.Redemption.Available)
	assert.InDelta(t, 100, r.Redemption.Value, 1e-9, "quarterly coupons are paid on their own dates")
}

func TestEvaluate_UnresolvableStrikeDegrades(t *testing.T) {
	e, _ := newEvaluator()

	r, err := e.Evaluate(context.Background(), Request{
		Product: reverseConvertible("RC-3", contracts.Underlying{Ticker: "ZZZ", Exchange: "US"}),
		Date:    contracts.Date(2024, time.June, 28),
	})
	require.NoError(t, err, "missing market data never fails an evaluation")

	assert.Equal(t, contracts.DataQualityUnavailable, r.DataQuality)
	assert.False(t, r.Underlyings[0].Available)
	assert.False(t, r.Basket.Available)
	assert.False(t, r.Redemption.Available)
	assert.Equal(t, contracts.UnavailableDisplay, r.Redemption.ValueDisplay)
}

func TestEvaluate_ExchangeFallback(t *testing.T) {
	evalDate := contracts.Date(2024, time.June, 28)
	e, _ := newEvaluator(weekdays("AAA.US", evalDate, func(time.Time) float64 { return 100 }))

	r, err := e.Evaluate(context.Background(), Request{
		Product: reverseConvertible("RC-4", contracts.Underlying{Ticker: "AAA", Exchange: "DE", Strike: 100}),
		Date:    evalDate,
	})
	require.NoError(t, err)
	assert.Equal(t, "AAA.DE", r.Underlyings[0].Ticker)
	assert.Equal(t, "AAA.US", r.Underlyings[0].ResolvedTicker)
	assert.Equal(t, contracts.DataQualityLive, r.DataQuality)
}

func TestEvaluate_InvalidProduct(t *testing.T) {
	e, _ := newEvaluator()
	p := reverseConvertible("", contracts.Underlying{Ticker: "AAA", Exchange: "US", Strike: 100})

	_, err := e.Evaluate(context.Background(), Request{Product: p})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrInvalidProduct))
}

func TestEvaluate_PhoenixEventsAreIdempotent(t *testing.T) {
	evalDate := contracts.Date(2024, time.August, 1)
	e, log := newEvaluator(weekdays("AAA.US", evalDate, func(time.Time) float64 { return 90 }))

	product := contracts.Product{
		ID:                   "PHX-1",
		Name:                 "Phoenix on AAA",
		Currency:             "EUR",
		Notional:             10000,
		TradeDate:            tradeDate,
		FinalObservationDate: contracts.Date(2025, time.January, 15),
		MaturityDate:         contracts.Date(2025, time.January, 22),
		Underlyings:          []contracts.Underlying{{Ticker: "AAA", Exchange: "US", Strike: 100}},
		Basket:               contracts.BasketPolicy{Kind: contracts.BasketWorstOf},
		Structure: contracts.ProductStructure{
			Kind: contracts.TemplatePhoenixMemory,
			Phoenix: &contracts.PhoenixTerms{
				ProtectionBarrier: 60, CouponBarrier: 70, AutocallLevel: 100,
				CouponRate: 2, Memory: true, PeriodicityMonths: 3,
			},
		},
	}

	first, err := e.Evaluate(context.Background(), Request{Product: product, Date: evalDate})
	require.NoError(t, err)
	assert.Equal(t, 2, first.NewEvents)
	require.Len(t, first.Events, 2)
	for _, ev := range first.Events {
		assert.Equal(t, contracts.EventCouponPaid, ev.Type)
		assert.True(t, ev.Fresh)
	}
	require.Len(t, first.Schedule, 4)
	assert.Equal(t, "observed", first.Schedule[1].Status)
	assert.Equal(t, "next", first.Schedule[2].Status)
	assert.InDelta(t, 100, first.Redemption.Value, 1e-9)

	second, err := e.Evaluate(context.Background(), Request{Product: product, Date: evalDate})
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewEvents)
	assert.Len(t, second.Events, 2)
	assert.Equal(t, 2, log.Len())
}

func TestEvaluateAll_ContainsFailures(t *testing.T) {
	evalDate := contracts.Date(2024, time.June, 28)
	e, _ := newEvaluator(weekdays("AAA.US", evalDate, func(time.Time) float64 { return 100 }))

	bad := reverseConvertible("RC-BAD", contracts.Underlying{Ticker: "AAA", Exchange: "US", Strike: 100})
	bad.MaturityDate = contracts.Date(2024, time.March, 1)
	good := reverseConvertible("RC-GOOD", contracts.Underlying{Ticker: "AAA", Exchange: "US", Strike: 100})

	outcomes := e.EvaluateAll(context.Background(), []contracts.Product{bad, good}, evalDate)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "RC-BAD", outcomes[0].ProductID)
	assert.Contains(t, outcomes[0].Error, "invalid schedule")
	assert.Nil(t, outcomes[0].Report)

	assert.Equal(t, "RC-GOOD", outcomes[1].ProductID)
	assert.Empty(t, outcomes[1].Error)
	require.NotNil(t, outcomes[1].Report)
	assert.InDelta(t, 108, outcomes[1].Report.Redemption.Value, 1e-9)
}

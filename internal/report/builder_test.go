package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/events"
	"github.com/wonny/notes/backend/internal/redemption"
)

func ptr(v float64) *float64 { return &v }

func phoenixProduct() contracts.Product {
	return contracts.Product{
		ID:                   "PHX-1",
		Name:                 "Phoenix Memory on AAA",
		Currency:             "EUR",
		Notional:             10000,
		TradeDate:            contracts.Date(2024, time.January, 15),
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
}

func quarterly() []contracts.ObservationScheduleEntry {
	dates := []time.Time{
		contracts.Date(2024, time.April, 15),
		contracts.Date(2024, time.July, 15),
		contracts.Date(2024, time.October, 15),
		contracts.Date(2025, time.January, 15),
	}
	out := make([]contracts.ObservationScheduleEntry, len(dates))
	for i, d := range dates {
		out[i] = contracts.ObservationScheduleEntry{
			Index:           i + 1,
			ObservationDate: d,
			PaymentDate:     d.AddDate(0, 0, 7),
			CouponBarrier:   70,
			AutocallBarrier: ptr(100),
			CouponRate:      2,
			IsFinal:         i == len(dates)-1,
		}
	}
	return out
}

func newBuilder() *Builder {
	b := NewBuilder()
	b.now = func() time.Time { return time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC) }
	return b
}

func TestBuild_FullReport(t *testing.T) {
	product := phoenixProduct()
	paid := contracts.Event{ProductID: "PHX-1", Type: contracts.EventCouponPaid, Date: contracts.Date(2024, 4, 15), BasketLevel: 90, PayoffImpact: 2, ObservationIndex: 1}
	memorized := contracts.Event{ProductID: "PHX-1", Type: contracts.EventCouponMemorized, Date: contracts.Date(2024, 7, 15), BasketLevel: 65, PayoffImpact: 2, ObservationIndex: 2}

	detection := &events.Result{
		State:  contracts.StateAccumulating,
		Memory: contracts.MemoryState{Accumulated: 2, Count: 1},
		Observations: []events.ObservationResult{
			{Entry: quarterly()[0], Available: true, Level: 90, Outcome: redemption.OutcomeCouponPaid},
			{Entry: quarterly()[1], Available: true, Level: 65, Outcome: redemption.OutcomeCouponMemorized},
		},
		BarrierStates: map[string]contracts.BarrierState{"AAA.US": contracts.AboveBarrier},
		Detected:      []contracts.Event{paid, memorized},
		Emitted:       []contracts.Event{memorized},
	}

	trace := contracts.NewTrace(nil)
	trace.Info(contracts.StagePrices, "resolved", nil)

	r := newBuilder().Build(Inputs{
		RunID:          "run-1",
		Product:        product,
		EvaluationDate: contracts.Date(2024, time.August, 1),
		Underlyings: []UnderlyingInput{{
			Underlying:     product.Underlyings[0],
			ResolvedTicker: "AAA.US",
			Strike:         100,
			Price:          &contracts.Price{Ticker: "AAA.US", Value: 80, Date: contracts.Date(2024, 7, 31)},
			Quality:        contracts.DataQualityLive,
		}},
		BasketPerformance: ptr(-20),
		Redemption:        &redemption.Result{Value: 80, Formula: "100 - 20.00 = 80.00"},
		Schedule:          quarterly(),
		Detection:         detection,
		History:           []contracts.Event{paid},
		Trace:             trace,
	})

	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, contracts.StateAccumulating, r.Status)
	assert.Equal(t, "Live", r.StatusDisplay)
	assert.Equal(t, contracts.DataQualityLive, r.DataQuality)
	assert.True(t, r.HasCurrentData)

	require.Len(t, r.Underlyings, 1)
	u := r.Underlyings[0]
	assert.True(t, u.Available)
	assert.Equal(t, "-20.00%", u.PerformanceDisplay)
	assert.Equal(t, "80.00%", u.LevelDisplay)
	assert.Equal(t, "EUR 80.00", u.PriceDisplay)
	assert.Equal(t, contracts.AboveBarrier, u.BarrierState)

	assert.True(t, r.Basket.Available)
	assert.Equal(t, "worst-of", r.Basket.Policy)
	assert.Equal(t, "80.00%", r.Basket.LevelDisplay)

	assert.True(t, r.Redemption.Available)
	assert.Equal(t, "indicative", r.Redemption.Basis)
	assert.InDelta(t, 8000, r.Redemption.Amount, 1e-9)
	assert.Equal(t, "EUR 8,000.00", r.Redemption.AmountDisplay)

	assert.Equal(t, "2.00% (1 coupons)", r.MemoryDisplay)

	require.Len(t, r.Schedule, 4)
	assert.Equal(t, "observed", r.Schedule[0].Status)
	assert.Equal(t, "90.00%", r.Schedule[0].BasketLevelDisplay)
	assert.Equal(t, string(redemption.OutcomeCouponMemorized), r.Schedule[1].Outcome)
	assert.Equal(t, "next", r.Schedule[2].Status)
	assert.Equal(t, "upcoming", r.Schedule[3].Status)

	// history duplicates are merged with this run's detections
	require.Len(t, r.Events, 2)
	assert.False(t, r.Events[0].Fresh)
	assert.True(t, r.Events[1].Fresh)
	assert.Equal(t, 1, r.NewEvents)

	assert.Equal(t, "trade", r.Timeline[0].Kind)
	assert.Equal(t, "maturity", r.Timeline[len(r.Timeline)-1].Kind)
	for i := 1; i < len(r.Timeline); i++ {
		assert.False(t, r.Timeline[i].Date.Before(r.Timeline[i-1].Date))
	}
	assert.Len(t, r.Trace, 1)
}

func TestBuild_MissingInputsDegrade(t *testing.T) {
	product := phoenixProduct()

	r := newBuilder().Build(Inputs{
		Product:        product,
		EvaluationDate: contracts.Date(2024, time.August, 1),
		Underlyings: []UnderlyingInput{{
			Underlying: product.Underlyings[0],
			Strike:     100,
			Err:        contracts.ErrDataUnavailable,
		}},
		BasketErr:     errors.New("basket: data unavailable"),
		RedemptionErr: errors.New("no basket performance"),
		ScheduleErr:   contracts.ErrInvalidSchedule,
	})

	assert.NotEmpty(t, r.RunID)
	assert.Equal(t, contracts.DataQualityUnavailable, r.DataQuality)
	assert.False(t, r.HasCurrentData)

	u := r.Underlyings[0]
	assert.False(t, u.Available)
	assert.Equal(t, contracts.UnavailableDisplay, u.PriceDisplay)
	assert.Equal(t, contracts.UnavailableDisplay, u.LevelDisplay)

	assert.False(t, r.Basket.Available)
	assert.Equal(t, "basket: data unavailable", r.Basket.Reason)
	assert.False(t, r.Redemption.Available)
	assert.Equal(t, contracts.UnavailableDisplay, r.Redemption.ValueDisplay)

	assert.False(t, r.ScheduleAvailable)
	assert.Equal(t, "invalid schedule", r.ScheduleError)
	assert.Empty(t, r.Schedule)
	assert.Equal(t, "0.00% (0 coupons)", r.MemoryDisplay)
}

func TestBuild_FallbackQualityPropagates(t *testing.T) {
	product := phoenixProduct()

	r := newBuilder().Build(Inputs{
		Product:        product,
		EvaluationDate: contracts.Date(2024, time.August, 1),
		Underlyings: []UnderlyingInput{{
			Underlying: product.Underlyings[0],
			Strike:     100,
			Price:      &contracts.Price{Value: 95, Date: contracts.Date(2024, 7, 1)},
			Quality:    contracts.DataQualityFallback,
		}},
		BasketPerformance: ptr(-5),
	})

	assert.Equal(t, contracts.DataQualityFallback, r.DataQuality)
	assert.False(t, r.HasCurrentData)
	assert.True(t, r.Underlyings[0].Available)
	assert.False(t, r.Underlyings[0].HasCurrentData)
}

func TestBuild_AutocalledSuppressesLaterObservations(t *testing.T) {
	product := phoenixProduct()
	autocall := contracts.Event{ProductID: "PHX-1", Type: contracts.EventAutocall, Date: contracts.Date(2024, 7, 15), BasketLevel: 105, PayoffImpact: 102}

	r := newBuilder().Build(Inputs{
		Product:           product,
		EvaluationDate:    contracts.Date(2024, time.December, 1),
		BasketPerformance: ptr(3),
		Redemption:        &redemption.Result{Value: 103},
		Schedule:          quarterly(),
		Detection: &events.Result{
			State:        contracts.StateAutocalled,
			TerminatedOn: contracts.Date(2024, 7, 15),
			Redemption:   &redemption.Result{Value: 102, Called: true},
			Detected:     []contracts.Event{autocall},
		},
	})

	assert.Equal(t, "Autocalled", r.StatusDisplay)
	assert.Equal(t, "autocalled", r.Redemption.Basis)
	assert.InDelta(t, 102, r.Redemption.Value, 1e-9)

	assert.Equal(t, "observed", r.Schedule[1].Status)
	assert.Equal(t, "suppressed", r.Schedule[2].Status)
	assert.Equal(t, "suppressed", r.Schedule[3].Status)

	for _, item := range r.Timeline {
		assert.NotEqual(t, "maturity", item.Kind)
	}
}

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/notes/backend/internal/basket"
	"github.com/wonny/notes/backend/internal/calendar"
	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/schedule"
	"github.com/wonny/notes/backend/pkg/config"
	"github.com/wonny/notes/backend/pkg/logger"
)

var (
	tradeDate = contracts.Date(2024, time.January, 15)
	fixedNow  = time.Date(2025, time.February, 1, 12, 0, 0, 0, time.UTC)
)

// series builds weekday closes from the trade date to end, with the
// rebased level given by levelAt
func series(ticker string, strike float64, end time.Time, levelAt func(time.Time) float64) *contracts.PriceHistory {
	var pts []contracts.PricePoint
	for d := tradeDate; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		pts = append(pts, contracts.PricePoint{Date: d, Close: strike * levelAt(d) / 100})
	}
	return contracts.NewPriceHistory(ticker, pts)
}

func flat(level float64) func(time.Time) float64 {
	return func(time.Time) float64 { return level }
}

// stepped returns the level of the last step starting on or before d
func stepped(steps ...struct {
	from  time.Time
	level float64
}) func(time.Time) float64 {
	return func(d time.Time) float64 {
		level := steps[0].level
		for _, s := range steps {
			if !d.Before(s.from) {
				level = s.level
			}
		}
		return level
	}
}

type step = struct {
	from  time.Time
	level float64
}

func phoenixProduct() contracts.Product {
	return contracts.Product{
		ID:                   "PHX-1",
		Name:                 "Phoenix Worst-of",
		Currency:             "EUR",
		Notional:             10000,
		TradeDate:            tradeDate,
		FinalObservationDate: contracts.Date(2025, time.January, 15),
		MaturityDate:         contracts.Date(2025, time.January, 22),
		Underlyings: []contracts.Underlying{
			{Ticker: "AAA", Exchange: "US", Strike: 100},
			{Ticker: "BBB", Exchange: "PA", Strike: 200},
		},
		Basket: contracts.BasketPolicy{Kind: contracts.BasketWorstOf},
		Structure: contracts.ProductStructure{
			Kind: contracts.TemplatePhoenixMemory,
			Phoenix: &contracts.PhoenixTerms{
				ProtectionBarrier: 60,
				CouponBarrier:     70,
				AutocallLevel:     100,
				CouponRate:        2,
				Memory:            true,
				PeriodicityMonths: 3,
				NonCallPeriods:    1,
				Monitoring:        contracts.MonitoringContinuous,
			},
		},
	}
}

func phoenixInput(t *testing.T, product contracts.Product, a, b *contracts.PriceHistory, today time.Time) Input {
	t.Helper()
	params, ok := schedule.ForProduct(product, schedule.DefaultPaymentLag)
	require.True(t, ok)
	entries, err := schedule.Generate(params, calendar.WeekendOnly())
	require.NoError(t, err)

	return Input{
		Product:  product,
		Schedule: entries,
		Fixings: basket.Fixings{
			Items: []basket.Fixing{
				{Underlying: product.Underlyings[0], Strike: product.Underlyings[0].Strike, History: a},
				{Underlying: product.Underlyings[1], Strike: product.Underlyings[1].Strike, History: b},
			},
			Policy: product.Basket,
		},
		Calendar: calendar.WeekendOnly(),
		Today:    today,
	}
}

func newDetector(log contracts.EventLog) *Detector {
	d := NewDetector(log, config.EngineConfig{DedupWindow: 24 * time.Hour, YieldEvery: 10}, logger.Nop())
	d.now = func() time.Time { return fixedNow }
	return d
}

func lifecycleInput(t *testing.T) Input {
	end := contracts.Date(2025, time.January, 31)
	b := series("BBB.PA", 200, end, stepped(
		step{tradeDate, 90},
		step{contracts.Date(2024, time.April, 1), 65},
		step{contracts.Date(2024, time.July, 1), 55},
		step{contracts.Date(2024, time.October, 1), 80},
		step{contracts.Date(2025, time.January, 1), 85},
	))
	a := series("AAA.US", 100, end, flat(100))
	return phoenixInput(t, phoenixProduct(), a, b, fixedNow)
}

type kind struct {
	Type       contracts.EventType
	Date       string
	Underlying string
	Impact     float64
}

func kinds(events []contracts.Event) []kind {
	out := make([]kind, 0, len(events))
	for _, e := range events {
		out = append(out, kind{e.Type, e.Date.Format(contracts.DateLayout), e.Underlying, e.PayoffImpact})
	}
	return out
}

func TestDetect_PhoenixLifecycle(t *testing.T) {
	log := NewMemoryLog()
	res, err := newDetector(log).Detect(context.Background(), lifecycleInput(t), nil)
	require.NoError(t, err)

	assert.Equal(t, []kind{
		{contracts.EventCouponMemorized, "2024-04-15", "", 2},
		{contracts.EventBarrierBreach, "2024-07-01", "BBB.PA", 0},
		{contracts.EventCouponMemorized, "2024-07-15", "", 2},
		{contracts.EventBarrierRecovered, "2024-10-01", "BBB.PA", 0},
		{contracts.EventCouponPaid, "2024-10-15", "", 6},
		{contracts.EventCouponPaid, "2025-01-15", "", 2},
		{contracts.EventFinalObservation, "2025-01-15", "", 100},
		{contracts.EventProductMatured, "2025-01-22", "", 100},
	}, kinds(res.Emitted))

	assert.Equal(t, contracts.StateMatured, res.State)
	assert.Equal(t, contracts.MemoryState{}, res.Memory)
	assert.Equal(t, contracts.AboveBarrier, res.BarrierStates["BBB.PA"])
	assert.Equal(t, contracts.AboveBarrier, res.BarrierStates["AAA.US"])
	require.NotNil(t, res.Redemption)
	assert.Equal(t, 100.0, res.Redemption.Value)
	assert.Len(t, res.Observations, 4)
	assert.Equal(t, 8, log.Len())

	for _, e := range res.Emitted {
		assert.NotEmpty(t, e.ID)
		assert.NotEmpty(t, e.Message)
		assert.Equal(t, "PHX-1", e.ProductID)
	}
}

func TestDetect_Idempotent(t *testing.T) {
	log := NewMemoryLog()
	d := newDetector(log)
	in := lifecycleInput(t)

	first, err := d.Detect(context.Background(), in, nil)
	require.NoError(t, err)
	require.NotEmpty(t, first.Emitted)

	second, err := d.Detect(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Empty(t, second.Emitted, "a second pass records nothing new")
	assert.Equal(t, len(first.Emitted), second.Suppressed)
	assert.Equal(t, len(first.Detected), len(second.Detected))
	assert.Equal(t, len(first.Emitted), log.Len())
}

func TestDetect_DedupWindowExpires(t *testing.T) {
	log := NewMemoryLog()
	d := newDetector(log)
	in := lifecycleInput(t)

	_, err := d.Detect(context.Background(), in, nil)
	require.NoError(t, err)

	d.now = func() time.Time { return fixedNow.Add(25 * time.Hour) }
	again, err := d.Detect(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Len(t, again.Emitted, 8, "records older than the window no longer suppress")
}

func TestDetect_AutocallTerminates(t *testing.T) {
	end := contracts.Date(2025, time.January, 31)
	b := series("BBB.PA", 200, end, stepped(
		step{tradeDate, 65},
		step{contracts.Date(2024, time.July, 1), 101},
		step{contracts.Date(2024, time.August, 1), 30},
	))
	a := series("AAA.US", 100, end, flat(110))
	in := phoenixInput(t, phoenixProduct(), a, b, fixedNow)

	res, err := newDetector(NewMemoryLog()).Detect(context.Background(), in, nil)
	require.NoError(t, err)

	assert.Equal(t, []kind{
		{contracts.EventCouponMemorized, "2024-04-15", "", 2},
		{contracts.EventAutocall, "2024-07-15", "", 104},
	}, kinds(res.Emitted), "autocall suppresses later observations and barrier monitoring")

	assert.Equal(t, contracts.StateAutocalled, res.State)
	assert.Equal(t, contracts.Date(2024, time.July, 15), res.TerminatedOn)
	assert.Equal(t, 104.0, res.Redemption.Value)
	assert.Equal(t, contracts.AboveBarrier, res.BarrierStates["BBB.PA"])
}

func TestDetect_OnlyObservationsReachedByToday(t *testing.T) {
	in := lifecycleInput(t)
	in.Today = contracts.Date(2024, time.July, 14)

	res, err := newDetector(NewMemoryLog()).Detect(context.Background(), in, nil)
	require.NoError(t, err)

	assert.Equal(t, []kind{
		{contracts.EventCouponMemorized, "2024-04-15", "", 2},
		{contracts.EventBarrierBreach, "2024-07-01", "BBB.PA", 0},
	}, kinds(res.Emitted))
	assert.Equal(t, contracts.StateAccumulating, res.State)
	assert.Equal(t, contracts.MemoryState{Accumulated: 2, Count: 1}, res.Memory)
	assert.Equal(t, contracts.BelowBarrier, res.BarrierStates["BBB.PA"])
}

func TestDetect_EnricherFaultSkipsOnlyThatEvent(t *testing.T) {
	log := NewMemoryLog()
	d := newDetector(log).WithEnricher(EnricherFunc(func(ctx context.Context, p contracts.Product, e *contracts.Event) error {
		switch e.Type {
		case contracts.EventCouponMemorized:
			panic("price lookup exploded")
		case contracts.EventBarrierBreach:
			return errors.New("lookup failed")
		}
		return Messages{}.Enrich(ctx, p, e)
	}))

	trace := contracts.NewTrace(nil)
	res, err := d.Detect(context.Background(), lifecycleInput(t), trace)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Skipped)
	assert.Len(t, res.Emitted, 5)
	assert.Equal(t, 3, trace.Count(contracts.TraceWarn))
}

func TestDetect_MissingDataContainedPerObservation(t *testing.T) {
	end := contracts.Date(2024, time.August, 1)
	b := series("BBB.PA", 200, end, flat(90))
	a := series("AAA.US", 100, contracts.Date(2025, time.January, 31), flat(100))
	in := phoenixInput(t, phoenixProduct(), a, b, fixedNow)

	res, err := newDetector(NewMemoryLog()).Detect(context.Background(), in, nil)
	require.NoError(t, err)

	assert.Equal(t, []kind{
		{contracts.EventCouponPaid, "2024-04-15", "", 2},
		{contracts.EventCouponPaid, "2024-07-15", "", 2},
	}, kinds(res.Emitted))
	require.Len(t, res.Observations, 4)
	assert.NotEmpty(t, res.Observations[2].Err)
	assert.False(t, res.Observations[3].Available)
	assert.Equal(t, contracts.StateAccumulating, res.State, "maturity needs a final fixing")
	assert.Equal(t, 1, res.Skipped)
}

func TestDetect_ReverseConvertible(t *testing.T) {
	product := contracts.Product{
		ID:                   "RC-1",
		Name:                 "Barrier Reverse Convertible",
		Currency:             "USD",
		Notional:             1000,
		TradeDate:            tradeDate,
		FinalObservationDate: contracts.Date(2025, time.January, 15),
		MaturityDate:         contracts.Date(2025, time.January, 22),
		Underlyings:          []contracts.Underlying{{Ticker: "AAA", Exchange: "US", Strike: 100}},
		Basket:               contracts.BasketPolicy{Kind: contracts.BasketWorstOf},
		Structure: contracts.ProductStructure{
			Kind:               contracts.TemplateReverseConvertible,
			ReverseConvertible: &contracts.ReverseConvertibleTerms{ProtectionBarrier: 70, CouponRate: 8},
		},
	}
	a := series("AAA.US", 100, contracts.Date(2025, time.January, 31), flat(60))

	in := Input{
		Product: product,
		Fixings: basket.Fixings{
			Items:  []basket.Fixing{{Underlying: product.Underlyings[0], Strike: 100, History: a}},
			Policy: product.Basket,
		},
		Today: fixedNow,
	}

	res, err := newDetector(NewMemoryLog()).Detect(context.Background(), in, nil)
	require.NoError(t, err)
	require.Len(t, res.Emitted, 2)
	assert.Equal(t, contracts.EventFinalObservation, res.Emitted[0].Type)
	assert.InDelta(t, 50.857, res.Emitted[0].PayoffImpact, 0.001)
	assert.Equal(t, contracts.EventProductMatured, res.Emitted[1].Type)
	assert.Equal(t, contracts.StateMatured, res.State)
	assert.Empty(t, res.BarrierStates, "european monitoring emits no barrier events")
}

func TestDetect_ReverseConvertiblePeriodicCouponPaidOnce(t *testing.T) {
	product := contracts.Product{
		ID:                   "RC-2",
		Name:                 "Barrier Reverse Convertible Quarterly",
		Currency:             "USD",
		Notional:             1000,
		TradeDate:            tradeDate,
		FinalObservationDate: contracts.Date(2025, time.January, 15),
		MaturityDate:         contracts.Date(2025, time.January, 22),
		Underlyings:          []contracts.Underlying{{Ticker: "AAA", Exchange: "US", Strike: 100}},
		Basket:               contracts.BasketPolicy{Kind: contracts.BasketWorstOf},
		Structure: contracts.ProductStructure{
			Kind: contracts.TemplateReverseConvertible,
			ReverseConvertible: &contracts.ReverseConvertibleTerms{
				ProtectionBarrier: 70, CouponRate: 8, CouponPeriodicityMonths: 3,
			},
		},
	}
	params, ok := schedule.ForProduct(product, schedule.DefaultPaymentLag)
	require.True(t, ok)
	entries, err := schedule.Generate(params, calendar.WeekendOnly())
	require.NoError(t, err)

	a := series("AAA.US", 100, contracts.Date(2025, time.January, 31), flat(100))
	in := Input{
		Product:  product,
		Schedule: entries,
		Fixings: basket.Fixings{
			Items:  []basket.Fixing{{Underlying: product.Underlyings[0], Strike: 100, History: a}},
			Policy: product.Basket,
		},
		Today: fixedNow,
	}

	res, err := newDetector(NewMemoryLog()).Detect(context.Background(), in, nil)
	require.NoError(t, err)

	assert.Equal(t, []kind{
		{contracts.EventCouponPaid, "2024-04-15", "", 2},
		{contracts.EventCouponPaid, "2024-07-15", "", 2},
		{contracts.EventCouponPaid, "2024-10-15", "", 2},
		{contracts.EventCouponPaid, "2025-01-15", "", 2},
		{contracts.EventFinalObservation, "2025-01-15", "", 100},
		{contracts.EventProductMatured, "2025-01-22", "", 100},
	}, kinds(res.Emitted))

	total := res.Redemption.Value
	for _, o := range res.Observations {
		total += o.Paid
	}
	assert.InDelta(t, 108, total, 1e-9, "coupons and redemption together pay 100 + coupon")
}

func TestDetect_PhoenixFinalMissIsRepaidAtMaturity(t *testing.T) {
	end := contracts.Date(2025, time.January, 31)
	a := series("AAA.US", 100, end, flat(100))
	b := series("BBB.PA", 200, end, flat(65))
	in := phoenixInput(t, phoenixProduct(), a, b, fixedNow)

	res, err := newDetector(NewMemoryLog()).Detect(context.Background(), in, nil)
	require.NoError(t, err)

	assert.Equal(t, []kind{
		{contracts.EventCouponMemorized, "2024-04-15", "", 2},
		{contracts.EventCouponMemorized, "2024-07-15", "", 2},
		{contracts.EventCouponMemorized, "2024-10-15", "", 2},
		{contracts.EventCouponMemorized, "2025-01-15", "", 2},
		{contracts.EventFinalObservation, "2025-01-15", "", 108},
		{contracts.EventProductMatured, "2025-01-22", "", 108},
	}, kinds(res.Emitted))
	assert.Equal(t, contracts.MemoryState{Accumulated: 8, Count: 4}, res.Memory)
	require.NotNil(t, res.Redemption)
	assert.Equal(t, 108.0, res.Redemption.Value)
}

func TestDetect_PhoenixTruncatedScheduleFixesOnFinalDate(t *testing.T) {
	product := phoenixProduct()
	// 13 months at a 3-month period leaves a one-month stub after the last observation
	product.FinalObservationDate = contracts.Date(2025, time.March, 14)
	product.MaturityDate = contracts.Date(2025, time.March, 21)

	end := contracts.Date(2025, time.March, 31)
	a := series("AAA.US", 100, end, flat(100))
	b := series("BBB.PA", 200, end, stepped(
		step{tradeDate, 90},
		step{contracts.Date(2025, time.February, 1), 50},
	))
	in := phoenixInput(t, product, a, b, contracts.Date(2025, time.April, 1))
	require.Len(t, in.Schedule, 4)
	require.True(t, in.Schedule[3].IsFinal)

	res, err := newDetector(NewMemoryLog()).Detect(context.Background(), in, nil)
	require.NoError(t, err)

	assert.Equal(t, []kind{
		{contracts.EventCouponPaid, "2024-04-15", "", 2},
		{contracts.EventCouponPaid, "2024-07-15", "", 2},
		{contracts.EventCouponPaid, "2024-10-15", "", 2},
		{contracts.EventCouponPaid, "2025-01-15", "", 2},
		{contracts.EventBarrierBreach, "2025-02-03", "BBB.PA", 0},
		{contracts.EventFinalObservation, "2025-03-14", "", 50},
		{contracts.EventProductMatured, "2025-03-21", "", 50},
	}, kinds(res.Emitted))
	require.NotNil(t, res.FinalLevel)
	assert.Equal(t, 50.0, *res.FinalLevel, "maturity uses the final observation date fixing")
	assert.Equal(t, contracts.StateMatured, res.State)
}

func TestDetect_ParticipationIssuerCall(t *testing.T) {
	callDate := contracts.Date(2024, time.June, 3)
	product := contracts.Product{
		ID:                   "PN-1",
		Name:                 "Participation Note",
		Currency:             "EUR",
		Notional:             1000,
		TradeDate:            tradeDate,
		FinalObservationDate: contracts.Date(2025, time.January, 15),
		MaturityDate:         contracts.Date(2025, time.January, 22),
		Underlyings:          []contracts.Underlying{{Ticker: "AAA", Exchange: "US", Strike: 100}},
		Basket:               contracts.BasketPolicy{Kind: contracts.BasketAverage},
		Structure: contracts.ProductStructure{
			Kind:          contracts.TemplateParticipationNote,
			Participation: &contracts.ParticipationTerms{ParticipationRate: 120, CallDate: &callDate, CallPrice: 104},
		},
	}
	a := series("AAA.US", 100, contracts.Date(2025, time.January, 31), flat(120))

	in := Input{
		Product: product,
		Fixings: basket.Fixings{
			Items:  []basket.Fixing{{Underlying: product.Underlyings[0], Strike: 100, History: a}},
			Policy: product.Basket,
		},
		Today: fixedNow,
	}

	res, err := newDetector(NewMemoryLog()).Detect(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, []kind{{contracts.EventIssuerCall, "2024-06-03", "", 104}}, kinds(res.Emitted))
	assert.Equal(t, contracts.StateCalled, res.State)
	assert.True(t, res.Redemption.Called)
}

func TestDetect_InvalidProduct(t *testing.T) {
	in := lifecycleInput(t)
	in.Product.ID = ""

	_, err := newDetector(NewMemoryLog()).Detect(context.Background(), in, nil)
	assert.True(t, errors.Is(err, contracts.ErrInvalidProduct))
}

package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceHistory_Normalize(t *testing.T) {
	h := NewPriceHistory("AAPL.US", []PricePoint{
		{Date: Date(2024, time.January, 17), Close: 102},
		{Date: Date(2024, time.January, 15), Close: 100},
		{Date: time.Date(2024, time.January, 16, 21, 0, 0, 0, time.UTC), Close: 99},
		{Date: Date(2024, time.January, 16), Close: 101}, // duplicate day, last wins
		{Date: Date(2024, time.January, 18), Close: 0},   // dropped
	})

	require.Equal(t, 3, h.Len())
	for i := 1; i < h.Len(); i++ {
		assert.True(t, h.Points[i].Date.After(h.Points[i-1].Date), "dates must be strictly increasing")
	}
	assert.Equal(t, 101.0, h.Points[1].Close)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, 102.0, last.Close)
}

func TestPriceHistory_Between(t *testing.T) {
	h := NewPriceHistory("X", []PricePoint{
		{Date: Date(2024, time.January, 15), Close: 1},
		{Date: Date(2024, time.January, 16), Close: 2},
		{Date: Date(2024, time.January, 17), Close: 3},
	})

	pts := h.Between(Date(2024, time.January, 16), Date(2024, time.January, 20))
	require.Len(t, pts, 2)
	assert.Equal(t, 2.0, pts[0].Close)

	assert.Empty(t, h.Between(Date(2024, time.February, 1), Date(2024, time.February, 2)))
	assert.Empty(t, (*PriceHistory)(nil).Between(Date(2024, 1, 1), Date(2024, 2, 1)))
}

func TestPricePoint_Value(t *testing.T) {
	p := PricePoint{Close: 100, AdjustedClose: 98}
	assert.Equal(t, 100.0, p.Value(false))
	assert.Equal(t, 98.0, p.Value(true))
	assert.Equal(t, 100.0, PricePoint{Close: 100}.Value(true))
}

func TestDataQuality_Worse(t *testing.T) {
	assert.Equal(t, DataQualityFallback, DataQualityLive.Worse(DataQualityFallback))
	assert.Equal(t, DataQualityUnavailable, DataQualityFallback.Worse(DataQualityUnavailable))
	assert.Equal(t, DataQualityFallback, DataQualityFallback.Worse(DataQualityLive))
}

func TestEvent_DedupKey(t *testing.T) {
	e := Event{ProductID: "P1", Type: EventCouponPaid, Date: time.Date(2024, 4, 15, 13, 0, 0, 0, time.UTC)}
	assert.Equal(t, "P1|coupon_paid|2024-04-15|", e.DedupKey())

	b := Event{ProductID: "P1", Type: EventBarrierBreach, Date: Date(2024, 4, 15), Underlying: "AAPL.US"}
	assert.Equal(t, "P1|barrier_breach|2024-04-15|AAPL.US", b.DedupKey())
}

func TestTrace(t *testing.T) {
	var observed []TraceEntry
	tr := NewTrace(func(e TraceEntry) { observed = append(observed, e) })

	tr.Info(StagePrices, "resolved", map[string]interface{}{"ticker": "AAPL.US"})
	tr.Warn(StagePrices, "fallback to strike", nil)

	assert.Len(t, tr.Entries(), 2)
	assert.Len(t, observed, 2)
	assert.Equal(t, 1, tr.Count(TraceWarn))

	var nilTrace *Trace
	assert.NotPanics(t, func() { nilTrace.Info(StageReport, "ignored", nil) })
}

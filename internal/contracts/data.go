package contracts

import (
	"sort"
	"time"
)

// DataQuality marks how a value was obtained
type DataQuality string

const (
	// DataQualityLive means every input came from the price store
	DataQualityLive DataQuality = "live"
	// DataQualityFallback means at least one input was substituted (usually by the strike)
	DataQualityFallback DataQuality = "fallback"
	// DataQualityUnavailable means the value could not be computed
	DataQualityUnavailable DataQuality = "unavailable"
)

// Worse returns the lower quality of q and other
func (q DataQuality) Worse(other DataQuality) DataQuality {
	rank := map[DataQuality]int{DataQualityLive: 0, DataQualityFallback: 1, DataQualityUnavailable: 2}
	if rank[other] > rank[q] {
		return other
	}
	return q
}

// PricePoint is one daily close
type PricePoint struct {
	Date          time.Time `json:"date"`
	Close         float64   `json:"close"`
	AdjustedClose float64   `json:"adjustedClose"`
}

// Value returns the adjusted close when requested and present, else the close
func (p PricePoint) Value(adjusted bool) float64 {
	if adjusted && p.AdjustedClose > 0 {
		return p.AdjustedClose
	}
	return p.Close
}

// PriceRecord is the shape of one entry of the external price cache
type PriceRecord struct {
	FullTicker   string       `json:"fullTicker"`
	CurrentPrice float64      `json:"currentPrice"`
	PriceDate    time.Time    `json:"priceDate"`
	History      []PricePoint `json:"history"`
}

// PriceHistory is a daily series for one ticker with strictly increasing dates
type PriceHistory struct {
	Ticker string       `json:"ticker"`
	Points []PricePoint `json:"points"`
}

// NewPriceHistory copies points into a normalized history
func NewPriceHistory(ticker string, points []PricePoint) *PriceHistory {
	h := &PriceHistory{Ticker: ticker, Points: append([]PricePoint(nil), points...)}
	h.Normalize()
	return h
}

// Normalize sorts by date, truncates dates to days, drops non-positive
// closes and keeps the last point of any duplicated date.
func (h *PriceHistory) Normalize() {
	pts := make([]PricePoint, 0, len(h.Points))
	for _, p := range h.Points {
		if p.Close <= 0 || p.Date.IsZero() {
			continue
		}
		p.Date = Day(p.Date)
		pts = append(pts, p)
	}

	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Date.Before(pts[j].Date) })

	out := pts[:0]
	for _, p := range pts {
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	h.Points = out
}

// Len returns the number of points
func (h *PriceHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Points)
}

// Last returns the latest point
func (h *PriceHistory) Last() (PricePoint, bool) {
	if h.Len() == 0 {
		return PricePoint{}, false
	}
	return h.Points[len(h.Points)-1], true
}

// Between returns the points with from <= date <= to
func (h *PriceHistory) Between(from, to time.Time) []PricePoint {
	if h.Len() == 0 {
		return nil
	}
	from, to = Day(from), Day(to)
	lo := sort.Search(len(h.Points), func(i int) bool { return !h.Points[i].Date.Before(from) })
	hi := sort.Search(len(h.Points), func(i int) bool { return h.Points[i].Date.After(to) })
	if lo >= hi {
		return nil
	}
	return h.Points[lo:hi]
}

// Price is a single resolved quote
type Price struct {
	Ticker string    `json:"ticker"`
	Value  float64   `json:"value"`
	Date   time.Time `json:"date"`
}

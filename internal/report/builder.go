// Package report assembles one EvaluationReport from the engine outputs.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/notes/backend/internal/basket"
	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/events"
	"github.com/wonny/notes/backend/internal/format"
	"github.com/wonny/notes/backend/internal/redemption"
)

// UnderlyingInput is the resolved state of one underlying
type UnderlyingInput struct {
	Underlying     contracts.Underlying
	ResolvedTicker string
	Strike         float64
	Price          *contracts.Price // nil when unresolved
	Quality        contracts.DataQuality
	Err            error
}

// Inputs is everything the builder aggregates. Any field may be missing.
type Inputs struct {
	RunID          string
	Product        contracts.Product
	EvaluationDate time.Time

	Underlyings []UnderlyingInput

	BasketPerformance *float64
	BasketErr         error

	Redemption    *redemption.Result
	RedemptionErr error

	Schedule    []contracts.ObservationScheduleEntry
	ScheduleErr error

	Detection    *events.Result
	DetectionErr error
	History      []contracts.Event // previously recorded events

	Trace *contracts.Trace
}

// Builder renders reports
type Builder struct {
	now func() time.Time
}

// NewBuilder creates a builder
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// Build merges the inputs into one report. It never fails: a section whose
// inputs are missing is marked unavailable.
func (b *Builder) Build(in Inputs) *contracts.EvaluationReport {
	p := in.Product
	r := &contracts.EvaluationReport{
		RunID:          in.RunID,
		ProductID:      p.ID,
		ProductName:    p.Name,
		ISIN:           p.ISIN,
		Currency:       p.Currency,
		Template:       p.Structure.Kind,
		EvaluationDate: contracts.Day(in.EvaluationDate),
		GeneratedAt:    b.now().UTC(),
		Status:         contracts.StateAccumulating,
		DataQuality:    contracts.DataQualityLive,
		HasCurrentData: true,
		Underlyings:    []contracts.UnderlyingReport{},
		Schedule:       []contracts.ScheduleRow{},
		Events:         []contracts.EventView{},
		Timeline:       []contracts.TimelineItem{},
	}
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}

	b.underlyings(r, in)
	b.basket(r, in)
	b.status(r, in)
	b.redemption(r, in)
	b.memory(r, in)
	b.schedule(r, in)
	b.events(r, in)
	b.timeline(r, in)

	r.StatusDisplay = statusDisplay(r.Status)
	r.Trace = in.Trace.Entries()
	return r
}

func (b *Builder) underlyings(r *contracts.EvaluationReport, in Inputs) {
	states := map[string]contracts.BarrierState{}
	if in.Detection != nil {
		states = in.Detection.BarrierStates
	}

	for _, u := range in.Underlyings {
		ur := contracts.UnderlyingReport{
			Ticker:             u.Underlying.FullTicker(),
			ResolvedTicker:     u.ResolvedTicker,
			Name:               u.Underlying.Name,
			Currency:           u.Underlying.Currency,
			Strike:             u.Strike,
			StrikeDisplay:      contracts.UnavailableDisplay,
			PriceDisplay:       contracts.UnavailableDisplay,
			PerformanceDisplay: contracts.UnavailableDisplay,
			LevelDisplay:       contracts.UnavailableDisplay,
			DataQuality:        u.Quality,
			BarrierState:       states[u.Underlying.FullTicker()],
		}
		if ur.Currency == "" {
			ur.Currency = r.Currency
		}
		if u.Strike > 0 {
			ur.StrikeDisplay = format.Price(ur.Currency, u.Strike)
		}

		if u.Price != nil && u.Strike > 0 {
			if perf, err := basket.UnderlyingPerformance(u.Price.Value, u.Strike); err == nil {
				date := u.Price.Date
				ur.Price = u.Price.Value
				ur.PriceDisplay = format.Price(ur.Currency, u.Price.Value)
				ur.PriceDate = &date
				ur.Performance = perf
				ur.PerformanceDisplay = format.SignedPercent(perf)
				ur.Level = basket.Rebased(perf)
				ur.LevelDisplay = format.Percent(ur.Level)
				ur.Available = true
			}
		}
		if !ur.Available {
			ur.DataQuality = contracts.DataQualityUnavailable
		}
		if ur.DataQuality == "" {
			ur.DataQuality = contracts.DataQualityLive
		}
		ur.HasCurrentData = ur.DataQuality == contracts.DataQualityLive

		r.DataQuality = r.DataQuality.Worse(ur.DataQuality)
		r.Underlyings = append(r.Underlyings, ur)
	}

	if len(in.Underlyings) == 0 {
		r.DataQuality = contracts.DataQualityUnavailable
	}
	r.HasCurrentData = r.DataQuality == contracts.DataQualityLive
}

func (b *Builder) basket(r *contracts.EvaluationReport, in Inputs) {
	r.Basket = contracts.BasketReport{
		Policy:             in.Product.Basket.String(),
		PerformanceDisplay: contracts.UnavailableDisplay,
		LevelDisplay:       contracts.UnavailableDisplay,
	}
	if in.BasketPerformance == nil {
		r.Basket.Reason = reason(in.BasketErr, "basket performance unavailable")
		r.DataQuality = contracts.DataQualityUnavailable
		r.HasCurrentData = false
		return
	}
	perf := *in.BasketPerformance
	r.Basket.Available = true
	r.Basket.Performance = perf
	r.Basket.PerformanceDisplay = format.SignedPercent(perf)
	r.Basket.Level = basket.Rebased(perf)
	r.Basket.LevelDisplay = format.Percent(r.Basket.Level)
}

func (b *Builder) status(r *contracts.EvaluationReport, in Inputs) {
	if in.Detection != nil {
		r.Status = in.Detection.State
	}
}

func (b *Builder) redemption(r *contracts.EvaluationReport, in Inputs) {
	rr := contracts.RedemptionReport{
		Basis:         "indicative",
		ValueDisplay:  contracts.UnavailableDisplay,
		AmountDisplay: contracts.UnavailableDisplay,
	}

	res := in.Redemption
	if r.Status.Terminal() && in.Detection != nil && in.Detection.Redemption != nil {
		// a terminated product reports what it actually paid
		res = in.Detection.Redemption
	}
	switch r.Status {
	case contracts.StateAutocalled:
		rr.Basis = "autocalled"
	case contracts.StateCalled:
		rr.Basis = "called"
	case contracts.StateMatured:
		rr.Basis = "matured"
	}

	if res == nil {
		rr.Reason = reason(in.RedemptionErr, "redemption unavailable")
		r.Redemption = rr
		return
	}

	rr.Available = true
	rr.Value = res.Value
	rr.ValueDisplay = format.Percent(res.Value)
	rr.Formula = res.Formula
	rr.Components = res.Components
	rr.Amount = in.Product.Notional * res.Value / 100
	rr.AmountDisplay = format.Amount(in.Product.Currency, rr.Amount)
	r.Redemption = rr
}

func (b *Builder) memory(r *contracts.EvaluationReport, in Inputs) {
	if in.Detection != nil {
		r.Memory = in.Detection.Memory
	}
	r.MemoryDisplay = fmt.Sprintf("%s (%d coupons)", format.Percent(r.Memory.Accumulated), r.Memory.Count)
}

func (b *Builder) schedule(r *contracts.EvaluationReport, in Inputs) {
	if in.ScheduleErr != nil {
		r.ScheduleError = in.ScheduleErr.Error()
		return
	}
	r.ScheduleAvailable = true

	observed := map[int]events.ObservationResult{}
	if in.Detection != nil {
		for _, o := range in.Detection.Observations {
			observed[o.Entry.Index] = o
		}
	}

	today := r.EvaluationDate
	terminatedOn := time.Time{}
	if in.Detection != nil && in.Detection.State.Terminal() {
		terminatedOn = in.Detection.TerminatedOn
	}
	nextMarked := false

	for _, e := range in.Schedule {
		row := contracts.ScheduleRow{
			Index:              e.Index,
			ObservationDate:    e.ObservationDate,
			ObservationDisplay: format.Date(e.ObservationDate),
			PaymentDate:        e.PaymentDate,
			PaymentDisplay:     format.Date(e.PaymentDate),
			AutocallBarrier:    e.AutocallBarrier,
			AutocallDisplay:    "-",
			CouponBarrier:      e.CouponBarrier,
			CouponBarrierDisp:  format.Percent(e.CouponBarrier),
			CouponRate:         e.CouponRate,
			CouponDisplay:      format.Percent(e.CouponRate),
			BasketLevelDisplay: "-",
		}
		if e.AutocallBarrier != nil {
			row.AutocallDisplay = format.Percent(*e.AutocallBarrier)
		}

		switch {
		case !terminatedOn.IsZero() && e.ObservationDate.After(terminatedOn):
			row.Status = "suppressed"
		case !e.ObservationDate.After(today):
			row.Status = "observed"
			if o, ok := observed[e.Index]; ok {
				if o.Available {
					level := o.Level
					row.BasketLevel = &level
					row.BasketLevelDisplay = format.Percent(level)
				} else {
					row.BasketLevelDisplay = contracts.UnavailableDisplay
				}
				row.Outcome = string(o.Outcome)
			}
		case !nextMarked:
			row.Status = "next"
			nextMarked = true
		default:
			row.Status = "upcoming"
		}
		r.Schedule = append(r.Schedule, row)
	}
}

func (b *Builder) events(r *contracts.EvaluationReport, in Inputs) {
	seen := map[string]bool{}
	add := func(e contracts.Event, fresh bool) {
		if seen[e.DedupKey()] {
			return
		}
		seen[e.DedupKey()] = true
		r.Events = append(r.Events, contracts.EventView{
			Event:         e,
			Fresh:         fresh,
			DateDisplay:   format.Date(e.Date),
			LevelDisplay:  levelDisplay(e),
			ImpactDisplay: impactDisplay(e),
		})
	}

	if in.Detection != nil {
		for _, e := range in.Detection.Detected {
			fresh := in.Detection.IsEmitted(e)
			if fresh {
				r.NewEvents++
			}
			add(e, fresh)
		}
	}
	for _, e := range in.History {
		add(e, false)
	}

	sort.SliceStable(r.Events, func(i, j int) bool {
		return r.Events[i].Date.Before(r.Events[j].Date)
	})
}

func (b *Builder) timeline(r *contracts.EvaluationReport, in Inputs) {
	p := in.Product
	items := []contracts.TimelineItem{
		{Date: contracts.Day(p.TradeDate), Kind: "trade", Label: "Trade date, strikes fixed"},
	}

	for _, row := range r.Schedule {
		if row.Status == "suppressed" {
			continue
		}
		items = append(items, contracts.TimelineItem{
			Date:  row.ObservationDate,
			Kind:  "observation",
			Label: fmt.Sprintf("Observation %d (%s)", row.Index, row.Status),
		})
		items = append(items, contracts.TimelineItem{
			Date:  row.PaymentDate,
			Kind:  "payment",
			Label: fmt.Sprintf("Payment %d", row.Index),
		})
	}
	for _, e := range r.Events {
		items = append(items, contracts.TimelineItem{Date: e.Date, Kind: "event", Label: string(e.Type)})
	}
	if !r.Status.Terminal() || r.Status == contracts.StateMatured {
		items = append(items, contracts.TimelineItem{Date: contracts.Day(p.MaturityDate), Kind: "maturity", Label: "Maturity"})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Date.Before(items[j].Date) })
	for i := range items {
		items[i].DateDisplay = format.Date(items[i].Date)
	}
	r.Timeline = items
}

func levelDisplay(e contracts.Event) string {
	if e.BasketLevel == 0 {
		return "-"
	}
	return format.Percent(e.BasketLevel)
}

func impactDisplay(e contracts.Event) string {
	switch e.Type {
	case contracts.EventBarrierBreach, contracts.EventBarrierRecovered:
		return "-"
	}
	return format.Percent(e.PayoffImpact)
}

func statusDisplay(s contracts.ProductState) string {
	switch s {
	case contracts.StateAccumulating:
		return "Live"
	case contracts.StateAutocalled:
		return "Autocalled"
	case contracts.StateCalled:
		return "Called by issuer"
	case contracts.StateMatured:
		return "Matured"
	}
	return string(s)
}

func reason(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}

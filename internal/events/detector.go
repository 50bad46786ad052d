// Package events walks a product's schedule against realized prices and
// records the contractual events it finds in the shared event log.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/notes/backend/internal/basket"
	"github.com/wonny/notes/backend/internal/calendar"
	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/metrics"
	"github.com/wonny/notes/backend/internal/redemption"
	"github.com/wonny/notes/backend/internal/schedule"
	"github.com/wonny/notes/backend/pkg/config"
	"github.com/wonny/notes/backend/pkg/logger"
	"github.com/wonny/notes/backend/pkg/yield"
)

// DefaultDedupWindow is the recency window of duplicate suppression
const DefaultDedupWindow = 24 * time.Hour

// Input is everything one detection pass reads
type Input struct {
	Product  contracts.Product
	Schedule []contracts.ObservationScheduleEntry
	Fixings  basket.Fixings
	Calendar *calendar.Calendar
	Today    time.Time
}

// ObservationResult is the evaluation of one schedule entry reached by today
type ObservationResult struct {
	Entry     contracts.ObservationScheduleEntry `json:"entry"`
	Available bool                               `json:"available"`
	Level     float64                            `json:"level"`
	Outcome   redemption.Outcome                 `json:"outcome,omitempty"`
	Paid      float64                            `json:"paid"`
	Formula   string                             `json:"formula,omitempty"`
	Err       string                             `json:"error,omitempty"`
}

// Result is the outcome of one detection pass
type Result struct {
	State         contracts.ProductState
	Memory        contracts.MemoryState
	TerminatedOn  time.Time
	FinalLevel    *float64
	Redemption    *redemption.Result // realized value once terminal or past final observation
	Observations  []ObservationResult
	BarrierStates map[string]contracts.BarrierState

	Detected   []contracts.Event // every event derived from the inputs
	Emitted    []contracts.Event // appended to the log by this pass
	Suppressed int
	Skipped    int
}

// IsEmitted reports whether an event with e's key was appended by this pass
func (r *Result) IsEmitted(e contracts.Event) bool {
	for _, x := range r.Emitted {
		if x.DedupKey() == e.DedupKey() {
			return true
		}
	}
	return false
}

// Detector is the event detection engine
// ⭐ SSOT: 이벤트 판정 상태 머신은 여기서만
type Detector struct {
	log        contracts.EventLog
	window     time.Duration
	enricher   Enricher
	publish    func(contracts.Event)
	yieldEvery int
	logger     *logger.Logger
	now        func() time.Time
}

// NewDetector creates a detector recording into log
func NewDetector(log contracts.EventLog, cfg config.EngineConfig, lg *logger.Logger) *Detector {
	window := cfg.DedupWindow
	if window == 0 {
		window = DefaultDedupWindow
	}
	return &Detector{
		log:        log,
		window:     window,
		enricher:   Messages{},
		yieldEvery: cfg.YieldEvery,
		logger:     lg.WithComponent("events"),
		now:        time.Now,
	}
}

// WithEnricher replaces the default message enricher
func (d *Detector) WithEnricher(e Enricher) *Detector {
	d.enricher = e
	return d
}

// WithPublisher sets a sink receiving every newly recorded event
func (d *Detector) WithPublisher(fn func(contracts.Event)) *Detector {
	d.publish = fn
	return d
}

// Scratch returns a detector with the same settings recording into a fresh
// in-memory log and publishing nothing. What it detects never reaches the
// shared log or its subscribers.
func (d *Detector) Scratch() *Detector {
	c := *d
	c.log = NewMemoryLog()
	c.publish = nil
	return &c
}

// Log returns the event log
func (d *Detector) Log() contracts.EventLog {
	return d.log
}

// pass holds the mutable state of one Detect call
type pass struct {
	in       Input
	today    time.Time
	cal      *calendar.Calendar
	res      *Result
	found    []contracts.Event
	trace    *contracts.Trace
	cp       *yield.Checkpoint
	finalDay time.Time
}

func (p *pass) add(e contracts.Event) {
	e.ProductID = p.in.Product.ID
	e.Date = contracts.Day(e.Date)
	p.found = append(p.found, e)
}

// Detect runs the state machine over every observation reached by in.Today,
// then records the events. Failures are contained per observation and per
// event; only an invalid product is returned as an error.
func (d *Detector) Detect(ctx context.Context, in Input, trace *contracts.Trace) (*Result, error) {
	if err := in.Product.Validate(); err != nil {
		return nil, err
	}

	cal := in.Calendar
	if cal == nil {
		cal = calendar.WeekendOnly()
	}

	p := &pass{
		in:    in,
		today: contracts.Day(in.Today),
		cal:   cal,
		res: &Result{
			State:         contracts.StateAccumulating,
			BarrierStates: make(map[string]contracts.BarrierState),
		},
		trace:    trace,
		cp:       yield.New(d.yieldEvery),
		finalDay: cal.Adjust(in.Product.FinalObservationDate),
	}

	switch in.Product.Structure.Kind {
	case contracts.TemplatePhoenixMemory:
		p.walkPhoenix()
	case contracts.TemplateReverseConvertible:
		p.walkReverseConvertible()
	case contracts.TemplateParticipationNote:
		p.walkParticipation()
	}

	p.maturity()
	p.monitorBarriers()

	sortEvents(p.found)
	d.record(ctx, p)

	trace.Info(contracts.StageEvents, "detection complete", map[string]interface{}{
		"state":      string(p.res.State),
		"detected":   len(p.res.Detected),
		"emitted":    len(p.res.Emitted),
		"suppressed": p.res.Suppressed,
		"skipped":    p.res.Skipped,
	})

	return p.res, nil
}

// walkPhoenix drives coupon, memory and autocall transitions in schedule order
func (p *pass) walkPhoenix() {
	terms := *p.in.Product.Structure.Phoenix
	fixedInSchedule := false

	for _, entry := range p.in.Schedule {
		p.cp.Tick()
		if entry.ObservationDate.After(p.today) {
			break
		}
		atFinal := entry.IsFinal && contracts.Day(entry.ObservationDate).Equal(contracts.Day(p.finalDay))
		if atFinal {
			fixedInSchedule = true
		}

		or := ObservationResult{Entry: entry}
		level, err := p.in.Fixings.LevelAt(entry.ObservationDate)
		if err != nil {
			p.skipObservation(&or, err)
			continue
		}

		obs, err := redemption.PhoenixObservation(level, entry.AutocallBarrier, terms, p.res.Memory)
		if err != nil {
			p.skipObservation(&or, err)
			continue
		}

		or.Available = true
		or.Level = level
		or.Outcome = obs.Outcome
		or.Paid = obs.Paid
		or.Formula = obs.Formula
		p.res.Observations = append(p.res.Observations, or)
		p.res.Memory = obs.Memory

		base := contracts.Event{Date: entry.ObservationDate, BasketLevel: level, ObservationIndex: entry.Index}
		switch obs.Outcome {
		case redemption.OutcomeAutocall:
			e := base
			e.Type = contracts.EventAutocall
			e.PayoffImpact = obs.Value
			p.add(e)

			p.res.State = contracts.StateAutocalled
			p.res.TerminatedOn = entry.ObservationDate
			p.res.Redemption = &redemption.Result{
				Value:   obs.Value,
				Formula: obs.Formula,
				Called:  true,
			}
		case redemption.OutcomeCouponPaid:
			e := base
			e.Type = contracts.EventCouponPaid
			e.PayoffImpact = obs.Paid
			p.add(e)
		case redemption.OutcomeCouponMemorized:
			e := base
			e.Type = contracts.EventCouponMemorized
			e.PayoffImpact = terms.CouponRate
			p.add(e)
		}

		if atFinal {
			p.res.FinalLevel = &level
			value := obs.Value
			if obs.Outcome != redemption.OutcomeAutocall {
				mat, err := redemption.PhoenixMaturity(basket.FromLevel(level), terms, p.res.Memory)
				if err != nil {
					p.fault("final redemption failed", err)
					continue
				}
				p.res.Redemption = &mat
				value = mat.Value
			}
			e := base
			e.Type = contracts.EventFinalObservation
			e.PayoffImpact = value
			p.add(e)
		}

		if p.res.State.Terminal() {
			// autocall suppresses every later observation
			return
		}
	}

	if fixedInSchedule {
		return
	}
	// a truncated schedule ends before the final observation date; the
	// maturity fixing is still taken there, with the memory carried so far
	p.final(func(perf float64) (redemption.Result, error) {
		return redemption.PhoenixMaturity(perf, terms, p.res.Memory)
	})
}

// walkReverseConvertible pays periodic coupons and fixes the final redemption
func (p *pass) walkReverseConvertible() {
	terms := *p.in.Product.Structure.ReverseConvertible

	for _, entry := range p.in.Schedule {
		p.cp.Tick()
		if entry.ObservationDate.After(p.today) {
			break
		}
		or := ObservationResult{Entry: entry, Outcome: redemption.OutcomeCouponPaid, Paid: entry.CouponRate}
		e := contracts.Event{
			Type:             contracts.EventCouponPaid,
			Date:             entry.ObservationDate,
			PayoffImpact:     entry.CouponRate,
			ObservationIndex: entry.Index,
		}
		// coupons are unconditional; the level is informational only
		if level, err := p.in.Fixings.LevelAt(entry.ObservationDate); err == nil {
			or.Available = true
			or.Level = level
			e.BasketLevel = level
		}
		p.res.Observations = append(p.res.Observations, or)
		p.add(e)
	}

	// periodic coupons were paid above; the final redemption carries only
	// the unpaid part of the coupon
	terms.CouponRate = schedule.MaturityCoupon(p.in.Product)
	p.final(func(perf float64) (redemption.Result, error) {
		return redemption.ReverseConvertible(perf, terms)
	})
}

// walkParticipation handles the issuer call, then the final fixing
func (p *pass) walkParticipation() {
	terms := *p.in.Product.Structure.Participation

	if terms.CallActive(p.today) && !contracts.Day(*terms.CallDate).After(p.finalDay) {
		callDay := contracts.Day(*terms.CallDate)
		e := contracts.Event{Type: contracts.EventIssuerCall, Date: callDay, PayoffImpact: terms.CallPrice}
		if level, err := p.in.Fixings.LevelAt(callDay); err == nil {
			e.BasketLevel = level
		}
		p.add(e)

		res, err := redemption.Participation(0, terms, p.today)
		if err == nil {
			p.res.Redemption = &res
		}
		p.res.State = contracts.StateCalled
		p.res.TerminatedOn = callDay
		return
	}

	p.final(func(perf float64) (redemption.Result, error) {
		return redemption.Participation(perf, terms, p.finalDay)
	})
}

// final takes the fixing on the final observation date and emits
// final_observation with the redemption calc computes from it
func (p *pass) final(calc func(perf float64) (redemption.Result, error)) {
	if p.finalDay.After(p.today) {
		return
	}

	level, err := p.in.Fixings.LevelAt(p.finalDay)
	if err != nil {
		p.fault("final fixing unavailable", err)
		return
	}
	res, err := calc(basket.FromLevel(level))
	if err != nil {
		p.fault("final redemption failed", err)
		return
	}

	p.res.FinalLevel = &level
	p.res.Redemption = &res
	p.add(contracts.Event{
		Type:         contracts.EventFinalObservation,
		Date:         p.finalDay,
		BasketLevel:  level,
		PayoffImpact: res.Value,
	})
}

// maturity emits product_matured at or after the maturity date unless the
// product already terminated
func (p *pass) maturity() {
	if p.res.State.Terminal() {
		return
	}
	maturityDay := p.cal.Adjust(p.in.Product.MaturityDate)
	if maturityDay.After(p.today) {
		return
	}
	if p.res.Redemption == nil || p.res.FinalLevel == nil {
		p.fault("maturity reached without a final fixing", contracts.ErrDataUnavailable)
		return
	}

	p.add(contracts.Event{
		Type:         contracts.EventProductMatured,
		Date:         maturityDay,
		BasketLevel:  *p.res.FinalLevel,
		PayoffImpact: p.res.Redemption.Value,
	})
	p.res.State = contracts.StateMatured
	p.res.TerminatedOn = maturityDay
}

// monitorBarriers walks daily closes of every underlying and emits an event
// on each crossing of the protection barrier. Edge-triggered: one event per
// crossing, not per day spent below.
func (p *pass) monitorBarriers() {
	structure := p.in.Product.Structure
	if structure.Monitoring() != contracts.MonitoringContinuous {
		return
	}
	barrier, ok := structure.ProtectionBarrier()
	if !ok {
		return
	}

	end := p.today
	if p.finalDay.Before(end) {
		end = p.finalDay
	}
	if !p.res.TerminatedOn.IsZero() && p.res.TerminatedOn.Before(end) {
		end = p.res.TerminatedOn
	}
	start := contracts.Day(p.in.Product.TradeDate)

	for _, item := range p.in.Fixings.Items {
		ticker := item.Ticker()
		if item.History == nil || item.Strike <= 0 {
			p.trace.Warn(contracts.StageEvents, "barrier monitoring skipped: no history", map[string]interface{}{"ticker": ticker})
			continue
		}

		state := contracts.AboveBarrier
		for _, pt := range item.History.Between(start, end) {
			p.cp.Tick()
			perf, err := basket.UnderlyingPerformance(pt.Value(p.in.Fixings.Adjusted), item.Strike)
			if err != nil {
				continue
			}
			level := basket.Rebased(perf)

			switch {
			case state == contracts.AboveBarrier && level < barrier:
				state = contracts.BelowBarrier
				p.add(contracts.Event{Type: contracts.EventBarrierBreach, Date: pt.Date, Underlying: ticker, BasketLevel: level})
			case state == contracts.BelowBarrier && level >= barrier:
				state = contracts.AboveBarrier
				p.add(contracts.Event{Type: contracts.EventBarrierRecovered, Date: pt.Date, Underlying: ticker, BasketLevel: level})
			}
		}
		p.res.BarrierStates[ticker] = state
	}
}

func (p *pass) skipObservation(or *ObservationResult, err error) {
	or.Err = err.Error()
	p.res.Observations = append(p.res.Observations, *or)
	p.trace.Warn(contracts.StageEvents, "observation skipped", map[string]interface{}{
		"index": or.Entry.Index,
		"date":  or.Entry.ObservationDate.Format(contracts.DateLayout),
		"error": err.Error(),
	})
	metrics.StageFaults.WithLabelValues(string(contracts.StageEvents)).Inc()
}

func (p *pass) fault(msg string, err error) {
	p.res.Skipped++
	p.trace.Warn(contracts.StageEvents, msg, map[string]interface{}{"error": err.Error()})
	metrics.StageFaults.WithLabelValues(string(contracts.StageEvents)).Inc()
}

// record enriches and appends every detected event. One failing event never
// stops the others.
func (d *Detector) record(ctx context.Context, p *pass) {
	now := d.now()
	log := d.logger.WithProduct(p.in.Product.ID)

	for _, e := range p.found {
		p.cp.Tick()
		e.ID = uuid.NewString()
		e.DetectedAt = now

		if err := d.enrich(ctx, p.in.Product, &e); err != nil {
			p.res.Skipped++
			log.WithError(err).WithField("event_type", string(e.Type)).Warn("Event enrichment failed, skipping event")
			p.trace.Warn(contracts.StageEvents, "event skipped", map[string]interface{}{
				"type":  string(e.Type),
				"date":  e.Date.Format(contracts.DateLayout),
				"error": err.Error(),
			})
			metrics.StageFaults.WithLabelValues(string(contracts.StageEvents)).Inc()
			continue
		}
		p.res.Detected = append(p.res.Detected, e)

		appended, err := d.log.Append(ctx, e, d.window)
		if err != nil {
			p.res.Skipped++
			log.WithError(err).WithField("event_type", string(e.Type)).Error("Event log append failed")
			metrics.StageFaults.WithLabelValues(string(contracts.StageEvents)).Inc()
			continue
		}
		if !appended {
			p.res.Suppressed++
			metrics.EventsSuppressed.WithLabelValues(string(e.Type)).Inc()
			continue
		}

		p.res.Emitted = append(p.res.Emitted, e)
		metrics.EventsEmitted.WithLabelValues(string(e.Type)).Inc()
		log.WithFields(map[string]interface{}{
			"event_type": string(e.Type),
			"event_date": e.Date.Format(contracts.DateLayout),
		}).Info("Event recorded")

		if d.publish != nil {
			d.publish(e)
		}
	}
}

// enrich runs the enricher, converting a panic into an error
func (d *Detector) enrich(ctx context.Context, product contracts.Product, e *contracts.Event) (err error) {
	if d.enricher == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: enricher panic: %v", contracts.ErrComputationFault, r)
		}
	}()
	return d.enricher.Enrich(ctx, product, e)
}

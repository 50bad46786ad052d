// Package evaluation runs one product through the whole engine and returns
// its report.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/notes/backend/internal/basket"
	"github.com/wonny/notes/backend/internal/calendar"
	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/events"
	"github.com/wonny/notes/backend/internal/metrics"
	"github.com/wonny/notes/backend/internal/prices"
	"github.com/wonny/notes/backend/internal/redemption"
	"github.com/wonny/notes/backend/internal/report"
	"github.com/wonny/notes/backend/internal/schedule"
	"github.com/wonny/notes/backend/pkg/config"
	"github.com/wonny/notes/backend/pkg/logger"
	"github.com/wonny/notes/backend/pkg/yield"
)

// Evaluator coordinates the evaluation stages
// ⭐ SSOT: 평가 파이프라인 조율은 여기서만
type Evaluator struct {
	prices     *prices.Provider
	holidays   contracts.HolidayProvider
	detector   *events.Detector
	builder    *report.Builder
	paymentLag int
	yieldEvery int
	logger     *logger.Logger
	now        func() time.Time
}

// NewEvaluator creates an evaluator. holidays may be nil for a weekend-only calendar.
func NewEvaluator(
	provider *prices.Provider,
	holidays contracts.HolidayProvider,
	detector *events.Detector,
	cfg config.EngineConfig,
	log *logger.Logger,
) *Evaluator {
	lag := cfg.PaymentLagDays
	if lag < 0 {
		lag = schedule.DefaultPaymentLag
	}
	return &Evaluator{
		prices:     provider,
		holidays:   holidays,
		detector:   detector,
		builder:    report.NewBuilder(),
		paymentLag: lag,
		yieldEvery: cfg.YieldEvery,
		logger:     log.WithComponent("evaluation"),
		now:        time.Now,
	}
}

// Isolated returns an evaluator whose events stay in a private log.
// Client-supplied products are evaluated this way so a what-if request
// never records events against a stored product.
func (e *Evaluator) Isolated() *Evaluator {
	c := *e
	if e.detector != nil {
		c.detector = e.detector.Scratch()
	}
	return &c
}

// Request is one evaluation
type Request struct {
	Product contracts.Product
	Date    time.Time          // zero means today
	RunID   string             // generated when empty
	Observe contracts.Observer // optional live trace sink
}

// Outcome is the result of one product in a batch
type Outcome struct {
	ProductID string                      `json:"product_id"`
	Report    *contracts.EvaluationReport `json:"report,omitempty"`
	Error     string                      `json:"error,omitempty"`
}

// Evaluate runs every stage for one product. Only an invalid product is
// returned as an error; every other failure degrades the report.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*contracts.EvaluationReport, error) {
	return e.evaluate(ctx, req, nil)
}

// EvaluateAll evaluates products in order against one shared calendar. A
// failing product is reported in its Outcome and never stops the batch.
func (e *Evaluator) EvaluateAll(ctx context.Context, products []contracts.Product, date time.Time) []Outcome {
	cal := calendar.Load(ctx, e.holidays)
	cp := yield.New(e.yieldEvery)
	runID := uuid.NewString()

	outcomes := make([]Outcome, 0, len(products))
	for _, p := range products {
		cp.Tick()
		out := Outcome{ProductID: p.ID}

		r, err := e.safeEvaluate(ctx, Request{Product: p, Date: date, RunID: runID}, cal)
		if err != nil {
			out.Error = err.Error()
			e.logger.WithProduct(p.ID).WithError(err).Warn("Product evaluation failed")
		}
		out.Report = r
		outcomes = append(outcomes, out)
	}

	e.logger.WithRun(runID).WithField("products", len(products)).Info("Batch evaluation complete")
	return outcomes
}

// safeEvaluate contains a panic inside one product
func (e *Evaluator) safeEvaluate(ctx context.Context, req Request, cal *calendar.Calendar) (r *contracts.EvaluationReport, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.StageFaults.WithLabelValues(string(contracts.StageReport)).Inc()
			err = fmt.Errorf("%w: evaluation panic: %v", contracts.ErrComputationFault, rec)
			r = nil
		}
	}()
	return e.evaluate(ctx, req, cal)
}

func (e *Evaluator) evaluate(ctx context.Context, req Request, cal *calendar.Calendar) (*contracts.EvaluationReport, error) {
	start := e.now()
	p := req.Product

	if err := p.Validate(); err != nil {
		metrics.StageFaults.WithLabelValues("validate").Inc()
		return nil, err
	}

	date := req.Date
	if date.IsZero() {
		date = start
	}
	date = contracts.Day(date)

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	trace := contracts.NewTrace(req.Observe)
	log := e.logger.WithRun(runID).WithProduct(p.ID).WithField("date", date.Format(contracts.DateLayout))
	log.Debug("Starting evaluation")

	if cal == nil {
		cal = calendar.Load(ctx, e.holidays)
	}
	trace.Info(contracts.StageSchedule, "calendar loaded", map[string]interface{}{"holidays": cal.HolidayCount()})

	in := report.Inputs{
		RunID:          runID,
		Product:        p,
		EvaluationDate: date,
		Trace:          trace,
	}

	// Prices and strikes
	fixings := basket.Fixings{Policy: p.Basket, Adjusted: e.prices.Adjusted()}
	perfs := make([]basket.Performance, 0, len(p.Underlyings))
	for _, u := range p.Underlyings {
		ui, fixing := e.resolveUnderlying(ctx, u, p.TradeDate, date, trace)
		in.Underlyings = append(in.Underlyings, ui)
		fixings.Items = append(fixings.Items, fixing)

		perf := basket.Performance{Ticker: u.FullTicker()}
		if ui.Price != nil && ui.Strike > 0 {
			if v, err := basket.UnderlyingPerformance(ui.Price.Value, ui.Strike); err == nil {
				perf.Value = v
				perf.Available = true
			}
		}
		perfs = append(perfs, perf)
	}

	// Basket
	if v, err := basket.Reduce(perfs, p.Basket); err != nil {
		in.BasketErr = err
		metrics.StageFaults.WithLabelValues(string(contracts.StageBasket)).Inc()
		trace.Warn(contracts.StageBasket, "basket performance unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		in.BasketPerformance = &v
		trace.Info(contracts.StageBasket, "basket reduced", map[string]interface{}{
			"policy":      p.Basket.String(),
			"performance": v,
			"driver":      basket.Driver(perfs, p.Basket, v),
		})
	}

	// Schedule
	if params, ok := schedule.ForProduct(p, e.paymentLag); ok {
		entries, err := schedule.Generate(params, cal)
		if err != nil {
			in.ScheduleErr = err
			metrics.StageFaults.WithLabelValues(string(contracts.StageSchedule)).Inc()
			trace.Error(contracts.StageSchedule, "schedule generation failed", map[string]interface{}{"error": err.Error()})
		} else {
			in.Schedule = entries
			trace.Info(contracts.StageSchedule, "schedule generated", map[string]interface{}{"observations": len(entries)})
		}
	}

	// Events
	if e.detector != nil {
		res, err := e.detector.Detect(ctx, events.Input{
			Product:  p,
			Schedule: in.Schedule,
			Fixings:  fixings,
			Calendar: cal,
			Today:    date,
		}, trace)
		if err != nil {
			in.DetectionErr = err
			trace.Error(contracts.StageEvents, "event detection failed", map[string]interface{}{"error": err.Error()})
		} else {
			in.Detection = res
		}

		history, err := e.detector.Log().ListByProduct(ctx, p.ID)
		if err != nil {
			log.WithError(err).Warn("Event history unavailable")
		} else {
			in.History = history
		}
	}

	// Redemption
	if in.BasketPerformance != nil {
		memory := contracts.MemoryState{}
		if in.Detection != nil {
			memory = in.Detection.Memory
		}
		res, err := indicativeRedemption(p, *in.BasketPerformance, memory, date)
		if err != nil {
			in.RedemptionErr = err
			metrics.StageFaults.WithLabelValues(string(contracts.StageRedemption)).Inc()
			trace.Error(contracts.StageRedemption, "redemption failed", map[string]interface{}{"error": err.Error()})
		} else {
			in.Redemption = &res
			trace.Info(contracts.StageRedemption, "indicative redemption", map[string]interface{}{"formula": res.Formula})
		}
	} else {
		in.RedemptionErr = fmt.Errorf("%w: no basket performance", contracts.ErrDataUnavailable)
	}

	r := e.builder.Build(in)
	trace.Info(contracts.StageReport, "report built", map[string]interface{}{"data_quality": string(r.DataQuality)})
	r.Trace = trace.Entries()

	metrics.EvaluationsTotal.WithLabelValues(string(p.Structure.Kind), string(r.DataQuality)).Inc()
	metrics.EvaluationDuration.WithLabelValues(string(p.Structure.Kind)).Observe(time.Since(start).Seconds())

	log.WithFields(map[string]interface{}{
		"status":       string(r.Status),
		"data_quality": string(r.DataQuality),
		"new_events":   r.NewEvents,
	}).Info("Evaluation complete")

	return r, nil
}

// resolveUnderlying resolves history, strike and the evaluation-date price of u.
// A missing price is substituted by the strike and flagged as fallback.
func (e *Evaluator) resolveUnderlying(
	ctx context.Context,
	u contracts.Underlying,
	tradeDate, date time.Time,
	trace *contracts.Trace,
) (report.UnderlyingInput, basket.Fixing) {
	ticker := u.FullTicker()
	ui := report.UnderlyingInput{Underlying: u, Strike: u.Strike, Quality: contracts.DataQualityLive}
	fixing := basket.Fixing{Underlying: u, Strike: u.Strike}

	res, err := e.prices.Resolve(ctx, ticker)
	if err != nil {
		ui.Err = err
		metrics.StageFaults.WithLabelValues(string(contracts.StagePrices)).Inc()
		trace.Warn(contracts.StagePrices, "price record unavailable", map[string]interface{}{
			"ticker": ticker,
			"error":  err.Error(),
		})
	} else {
		ui.ResolvedTicker = res.FullTicker
		fixing.History = res.History
		if res.Fallback() {
			trace.Info(contracts.StagePrices, "ticker resolved through exchange fallback", map[string]interface{}{
				"requested": res.Requested,
				"resolved":  res.FullTicker,
			})
		}
	}

	// Strike
	if ui.Strike <= 0 {
		if res == nil {
			ui.Quality = contracts.DataQualityUnavailable
			trace.Warn(contracts.StagePrices, "strike unresolved", map[string]interface{}{"ticker": ticker})
			return ui, fixing
		}
		point, err := prices.PriceOnOrAfter(res.History, tradeDate)
		if err != nil {
			ui.Err = err
			ui.Quality = contracts.DataQualityUnavailable
			trace.Warn(contracts.StagePrices, "strike unresolved", map[string]interface{}{
				"ticker": ticker,
				"error":  err.Error(),
			})
			return ui, fixing
		}
		ui.Strike = point.Value(e.prices.Adjusted())
		fixing.Strike = ui.Strike
		trace.Info(contracts.StagePrices, "strike fixed from trade date close", map[string]interface{}{
			"ticker": ticker,
			"date":   point.Date.Format(contracts.DateLayout),
			"strike": ui.Strike,
		})
	}

	// Evaluation-date price
	if res != nil {
		price, err := priceOn(res, date, e.prices.Adjusted())
		if err == nil {
			ui.Price = &price
			return ui, fixing
		}
		ui.Err = err
	}

	ui.Price = &contracts.Price{Ticker: ticker, Value: ui.Strike, Date: date}
	ui.Quality = contracts.DataQualityFallback
	trace.Warn(contracts.StagePrices, "price substituted by strike", map[string]interface{}{
		"ticker": ticker,
		"strike": ui.Strike,
	})
	return ui, fixing
}

// priceOn returns the current price when it is not dated after date,
// otherwise the last close on or before date
func priceOn(res *prices.Resolution, date time.Time, adjusted bool) (contracts.Price, error) {
	current, err := prices.CurrentPrice(res, adjusted)
	if err == nil && !current.Date.After(date) {
		return current, nil
	}
	point, err := prices.PriceOnOrBefore(res.History, date)
	if err != nil {
		if errors.Is(err, contracts.ErrDataUnavailable) {
			return contracts.Price{}, err
		}
		return contracts.Price{}, fmt.Errorf("%w: %v", contracts.ErrDataUnavailable, err)
	}
	return contracts.Price{Ticker: res.FullTicker, Value: point.Value(adjusted), Date: point.Date}, nil
}

// indicativeRedemption prices the product as if it redeemed at perf today
func indicativeRedemption(p contracts.Product, perf float64, memory contracts.MemoryState, date time.Time) (redemption.Result, error) {
	s := p.Structure
	switch s.Kind {
	case contracts.TemplateReverseConvertible:
		terms := *s.ReverseConvertible
		terms.CouponRate = schedule.MaturityCoupon(p)
		return redemption.ReverseConvertible(perf, terms)
	case contracts.TemplateParticipationNote:
		return redemption.Participation(perf, *s.Participation, date)
	case contracts.TemplatePhoenixMemory:
		return redemption.PhoenixMaturity(perf, *s.Phoenix, memory)
	}
	return redemption.Result{}, fmt.Errorf("%w: unknown template %q", contracts.ErrInvalidProduct, s.Kind)
}

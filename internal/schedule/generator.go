// Package schedule generates observation and payment dates for periodic products.
package schedule

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/notes/backend/internal/calendar"
	"github.com/wonny/notes/backend/internal/contracts"
)

// DefaultPaymentLag is the number of business days between observation and payment
const DefaultPaymentLag = 5

// Params are the inputs of one schedule
type Params struct {
	TradeDate            time.Time
	FinalObservationDate time.Time
	PeriodicityMonths    int
	NonCallPeriods       int

	AutocallLevel float64            // base autocall barrier, % of strike
	StepDown      *contracts.StepDown // nil disables step-down
	CouponBarrier float64
	CouponRate    float64 // per period

	PaymentLagDays int // <0 is invalid; 0 pays on the observation date
	Callable       bool // false leaves every AutocallBarrier nil
}

// ForProduct derives schedule parameters from a product. Templates without
// periodic observations return ok=false.
func ForProduct(p contracts.Product, paymentLag int) (Params, bool) {
	params := Params{
		TradeDate:            p.TradeDate,
		FinalObservationDate: p.FinalObservationDate,
		PaymentLagDays:       paymentLag,
	}

	switch p.Structure.Kind {
	case contracts.TemplatePhoenixMemory:
		t := p.Structure.Phoenix
		if t == nil {
			return params, false
		}
		params.PeriodicityMonths = t.PeriodicityMonths
		params.NonCallPeriods = t.NonCallPeriods
		params.AutocallLevel = t.AutocallLevel
		params.StepDown = t.StepDown
		params.CouponBarrier = t.CouponBarrier
		params.CouponRate = t.CouponRate
		params.Callable = true
		return params, true

	case contracts.TemplateReverseConvertible:
		t := p.Structure.ReverseConvertible
		if t == nil || t.CouponPeriodicityMonths <= 0 {
			return params, false
		}
		params.PeriodicityMonths = t.CouponPeriodicityMonths
		// unconditional coupons: the barrier never blocks payment, and the
		// total coupon is spread evenly over the periods
		params.CouponBarrier = 0
		if count := MonthsBetween(contracts.Day(p.TradeDate), contracts.Day(p.FinalObservationDate)) / t.CouponPeriodicityMonths; count > 0 {
			params.CouponRate = t.CouponRate / float64(count)
		}
		return params, true
	}
	return params, false
}

// MaturityCoupon is the part of a reverse convertible coupon paid with the
// final redemption. It is zero when the coupon is spread over periodic
// payments, and the whole coupon otherwise.
func MaturityCoupon(p contracts.Product) float64 {
	t := p.Structure.ReverseConvertible
	if t == nil {
		return 0
	}
	if params, ok := ForProduct(p, 0); ok && params.CouponRate != 0 {
		return 0
	}
	return t.CouponRate
}

// Generate produces the observation schedule. Periods that do not fit the
// tenor are truncated; the last generated period is flagged final.
func Generate(params Params, cal *calendar.Calendar) ([]contracts.ObservationScheduleEntry, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if cal == nil {
		cal = calendar.WeekendOnly()
	}

	trade := contracts.Day(params.TradeDate)
	final := contracts.Day(params.FinalObservationDate)

	count := MonthsBetween(trade, final) / params.PeriodicityMonths
	if count == 0 {
		return nil, fmt.Errorf("%w: tenor %s..%s shorter than one %d-month period", contracts.ErrInvalidSchedule,
			trade.Format(contracts.DateLayout), final.Format(contracts.DateLayout), params.PeriodicityMonths)
	}

	entries := make([]contracts.ObservationScheduleEntry, 0, count)
	for i := 1; i <= count; i++ {
		obs := cal.Adjust(AddMonths(trade, i*params.PeriodicityMonths))
		entries = append(entries, contracts.ObservationScheduleEntry{
			Index:           i,
			ObservationDate: obs,
			PaymentDate:     cal.AddBusinessDays(obs, params.PaymentLagDays),
			CouponBarrier:   params.CouponBarrier,
			AutocallBarrier: params.autocallBarrier(i),
			CouponRate:      params.CouponRate,
			IsFinal:         i == count,
		})
	}
	return entries, nil
}

func (p Params) validate() error {
	if p.TradeDate.IsZero() || p.FinalObservationDate.IsZero() {
		return fmt.Errorf("%w: trade and final observation dates are required", contracts.ErrInvalidSchedule)
	}
	if !contracts.Day(p.FinalObservationDate).After(contracts.Day(p.TradeDate)) {
		return fmt.Errorf("%w: final observation must be after trade date", contracts.ErrInvalidSchedule)
	}
	if p.PeriodicityMonths <= 0 {
		return fmt.Errorf("%w: periodicity must be positive, got %d", contracts.ErrInvalidSchedule, p.PeriodicityMonths)
	}
	if p.NonCallPeriods < 0 {
		return fmt.Errorf("%w: non-call periods must not be negative", contracts.ErrInvalidSchedule)
	}
	if p.PaymentLagDays < 0 {
		return fmt.Errorf("%w: payment lag must not be negative", contracts.ErrInvalidSchedule)
	}
	return nil
}

// autocallBarrier is nil inside the non-call period; afterwards the base level
// minus one step per period, floored to two decimals and never below the floor.
func (p Params) autocallBarrier(i int) *float64 {
	if !p.Callable || i <= p.NonCallPeriods {
		return nil
	}

	level := decimal.NewFromFloat(p.AutocallLevel)
	if p.StepDown != nil && p.StepDown.Size > 0 {
		steps := decimal.NewFromInt(int64(i - p.NonCallPeriods - 1))
		level = level.Sub(steps.Mul(decimal.NewFromFloat(p.StepDown.Size))).RoundFloor(2)
		if p.StepDown.Floor > 0 {
			floor := decimal.NewFromFloat(p.StepDown.Floor)
			if level.LessThan(floor) {
				level = floor
			}
		}
	}

	v, _ := level.Float64()
	return &v
}

// MonthsBetween counts whole calendar months from a to b. A partial month
// (b's day-of-month before a's, unless b is the month end) does not count.
func MonthsBetween(a, b time.Time) int {
	if b.Before(a) {
		return -MonthsBetween(b, a)
	}
	months := (b.Year()-a.Year())*12 + int(b.Month()-a.Month())
	if b.Day() < a.Day() && !isMonthEnd(b) {
		months--
	}
	return months
}

// AddMonths adds n months, clamping to the month end (Jan 31 + 1 = Feb 29 in 2024)
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

func isMonthEnd(t time.Time) bool {
	return t.AddDate(0, 0, 1).Day() == 1
}

// Package redemption holds one pure payoff calculator per product family.
//
// Inputs are basket performances in percent (0 = at strike) or rebased levels
// (100 = at strike). Barriers are levels. Every result carries a formula with
// the substituted numbers; notification text is built from it.
package redemption

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/format"
)

// Result is a redemption value with its explanation trail
type Result struct {
	Value      float64               `json:"value"` // % of notional
	Formula    string                `json:"formula"`
	Components []contracts.Component `json:"components"`
	Breached   bool                  `json:"breached"`
	Called     bool                  `json:"called"`
}

func component(label string, value float64, display, note string) contracts.Component {
	return contracts.Component{Label: label, Value: value, Display: display, Note: note}
}

func checkFinite(values ...float64) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite input %v", contracts.ErrComputationFault, v)
		}
	}
	return nil
}

// ReverseConvertible computes the redemption of a barrier reverse convertible.
// A performance exactly at the barrier offset is protected.
func ReverseConvertible(performance float64, terms contracts.ReverseConvertibleTerms) (Result, error) {
	if err := checkFinite(performance, terms.ProtectionBarrier, terms.CouponRate); err != nil {
		return Result{}, err
	}
	if terms.ProtectionBarrier <= 0 {
		return Result{}, fmt.Errorf("%w: protection barrier must be positive", contracts.ErrComputationFault)
	}

	offset := terms.ProtectionBarrier - 100
	coupon := terms.CouponRate

	components := []contracts.Component{
		component("Basket performance", performance, format.SignedPercent(performance), ""),
		component("Protection barrier", terms.ProtectionBarrier, format.Percent(terms.ProtectionBarrier),
			fmt.Sprintf("breached below %s", format.SignedPercent(offset))),
		component("Coupon", coupon, format.Percent(coupon), ""),
	}

	if performance >= offset {
		value := 100 + coupon
		return Result{
			Value: value,
			Formula: fmt.Sprintf("100 %s = %s (barrier not breached: %s >= %s)",
				format.Term(coupon), format.Number(value), format.SignedPercent(performance), format.SignedPercent(offset)),
			Components: components,
		}, nil
	}

	gearing := 100 / terms.ProtectionBarrier
	value := 100 + performance*gearing + coupon
	components = append(components,
		component("Gearing", gearing, format.Factor(gearing), fmt.Sprintf("100 / %s", format.Number(terms.ProtectionBarrier))),
		component("Geared loss", performance*gearing, format.SignedPercent(performance*gearing), ""),
	)

	return Result{
		Value: value,
		Formula: fmt.Sprintf("100 + %s × %s %s = %s (barrier %s breached)",
			format.Paren(performance), format.Factor(gearing), format.Term(coupon), format.Number(value),
			format.Percent(terms.ProtectionBarrier)),
		Components: components,
		Breached:   true,
	}, nil
}

// Participation computes the redemption of a participation note on evalDate.
// An issuer call active on or before evalDate fixes the value at the call price.
func Participation(performance float64, terms contracts.ParticipationTerms, evalDate time.Time) (Result, error) {
	if err := checkFinite(performance, terms.ParticipationRate); err != nil {
		return Result{}, err
	}

	if terms.CallActive(evalDate) {
		return Result{
			Value: terms.CallPrice,
			Formula: fmt.Sprintf("called on %s at %s", format.Date(*terms.CallDate), format.Number(terms.CallPrice)),
			Components: []contracts.Component{
				component("Call price", terms.CallPrice, format.Percent(terms.CallPrice), ""),
				component("Call date", 0, format.Date(*terms.CallDate), ""),
			},
			Called: true,
		}, nil
	}

	participated := performance * terms.ParticipationRate / 100
	value := 100 + participated
	formula := fmt.Sprintf("100 + %s × %s / 100 = %s",
		format.Paren(performance), format.Number(terms.ParticipationRate), format.Number(value))

	components := []contracts.Component{
		component("Basket performance", performance, format.SignedPercent(performance), ""),
		component("Participation rate", terms.ParticipationRate, format.Percent(terms.ParticipationRate), ""),
		component("Participated performance", participated, format.SignedPercent(participated), ""),
	}

	if terms.ProtectionFloor != nil {
		floor := *terms.ProtectionFloor
		components = append(components, component("Protection floor", floor, format.Percent(floor), ""))
		if value < floor {
			formula = fmt.Sprintf("max(%s, %s) = %s", formula, format.Number(floor), format.Number(floor))
			value = floor
		}
	}

	return Result{Value: value, Formula: formula, Components: components}, nil
}

// Outcome classifies one phoenix observation
type Outcome string

const (
	OutcomeAutocall        Outcome = "autocall"
	OutcomeCouponPaid      Outcome = "coupon_paid"
	OutcomeCouponMemorized Outcome = "coupon_memorized"
	OutcomeCouponForfeited Outcome = "coupon_forfeited"
)

// Observation is the result of evaluating one phoenix observation date
type Observation struct {
	Outcome Outcome
	Level   float64               // basket level observed
	Paid    float64               // coupon paid this period, memory included
	Value   float64               // redemption value, set on autocall only
	Memory  contracts.MemoryState // memory after the observation
	Formula string
}

// PhoenixObservation evaluates one observation of a phoenix memory product.
// Barrier comparisons are inclusive and use the rebased level. A nil
// autocallBarrier means the period is not callable. A missed coupon is
// memorized at every observation, the final one included, so it is repaid
// with the maturity redemption.
func PhoenixObservation(level float64, autocallBarrier *float64, terms contracts.PhoenixTerms, memory contracts.MemoryState) (Observation, error) {
	if err := checkFinite(level, terms.CouponRate, memory.Accumulated); err != nil {
		return Observation{}, err
	}

	coupon := terms.CouponRate
	obs := Observation{Level: level}

	switch {
	case autocallBarrier != nil && level >= *autocallBarrier:
		obs.Outcome = OutcomeAutocall
		obs.Paid = coupon + memory.Accumulated
		obs.Value = 100 + coupon + memory.Accumulated
		obs.Memory = contracts.MemoryState{}
		obs.Formula = fmt.Sprintf("level %s >= autocall %s: 100 %s %s = %s",
			format.Number(level), format.Number(*autocallBarrier), format.Term(coupon),
			memoryTerm(memory), format.Number(obs.Value))

	case level >= terms.CouponBarrier:
		obs.Outcome = OutcomeCouponPaid
		obs.Paid = coupon + memory.Accumulated
		obs.Memory = contracts.MemoryState{}
		obs.Formula = fmt.Sprintf("level %s >= coupon barrier %s: pay %s %s = %s",
			format.Number(level), format.Number(terms.CouponBarrier), format.Number(coupon),
			memoryTerm(memory), format.Number(obs.Paid))

	case terms.Memory:
		obs.Outcome = OutcomeCouponMemorized
		obs.Memory = memory.Memorize(coupon)
		obs.Formula = fmt.Sprintf("level %s < coupon barrier %s: memory %s %s = %s",
			format.Number(level), format.Number(terms.CouponBarrier), format.Number(memory.Accumulated),
			format.Term(coupon), format.Number(obs.Memory.Accumulated))

	default:
		obs.Outcome = OutcomeCouponForfeited
		obs.Memory = memory
		obs.Formula = fmt.Sprintf("level %s < coupon barrier %s: coupon %s forfeited",
			format.Number(level), format.Number(terms.CouponBarrier), format.Number(coupon))
	}

	return obs, nil
}

func memoryTerm(memory contracts.MemoryState) string {
	return format.Term(memory.Accumulated) + " memory"
}

// PhoenixMaturity computes the final redemption of a phoenix product that
// was not autocalled. Downside below protection is 1:1, without gearing.
func PhoenixMaturity(performance float64, terms contracts.PhoenixTerms, memory contracts.MemoryState) (Result, error) {
	if err := checkFinite(performance, terms.ProtectionBarrier, memory.Accumulated); err != nil {
		return Result{}, err
	}

	level := 100 + performance
	components := []contracts.Component{
		component("Basket level", level, format.Percent(level), ""),
		component("Protection barrier", terms.ProtectionBarrier, format.Percent(terms.ProtectionBarrier), ""),
		component("Coupon memory", memory.Accumulated, format.Percent(memory.Accumulated),
			fmt.Sprintf("%d missed coupons", memory.Count)),
	}

	if level >= terms.ProtectionBarrier {
		value := 100 + memory.Accumulated
		return Result{
			Value: value,
			Formula: fmt.Sprintf("100 %s = %s (level %s >= protection %s)",
				memoryTerm(memory), format.Number(value), format.Number(level), format.Number(terms.ProtectionBarrier)),
			Components: components,
		}, nil
	}

	value := 100 + performance + memory.Accumulated
	return Result{
		Value: value,
		Formula: fmt.Sprintf("100 %s %s = %s (level %s < protection %s)",
			format.Term(performance), memoryTerm(memory), format.Number(value),
			format.Number(level), format.Number(terms.ProtectionBarrier)),
		Components: components,
		Breached:   true,
	}, nil
}

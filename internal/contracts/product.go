package contracts

import (
	"fmt"
	"strings"
	"time"
)

// TemplateKind identifies the product family. Fixed at issuance.
type TemplateKind string

const (
	TemplateReverseConvertible TemplateKind = "reverse_convertible"
	TemplateParticipationNote  TemplateKind = "participation_note"
	TemplatePhoenixMemory      TemplateKind = "phoenix_memory"
)

// Valid reports whether k is a known template
func (k TemplateKind) Valid() bool {
	switch k {
	case TemplateReverseConvertible, TemplateParticipationNote, TemplatePhoenixMemory:
		return true
	}
	return false
}

// BarrierMonitoring controls when the protection barrier is observed
type BarrierMonitoring string

const (
	// MonitoringEuropean observes the barrier at final observation only
	MonitoringEuropean BarrierMonitoring = "european"
	// MonitoringContinuous observes every daily close and emits breach/recovery events
	MonitoringContinuous BarrierMonitoring = "continuous"
)

// Underlying is one reference asset of a basket
type Underlying struct {
	Ticker   string  `json:"ticker" yaml:"ticker"`
	Exchange string  `json:"exchange" yaml:"exchange"`
	Name     string  `json:"name,omitempty" yaml:"name"`
	Currency string  `json:"currency,omitempty" yaml:"currency"`
	Strike   float64 `json:"strike" yaml:"strike"` // 0 = resolve from the trade date close
}

// FullTicker returns the EOD ticker SYMBOL.EXCHANGE, the stable lookup key
func (u Underlying) FullTicker() string {
	ticker := strings.ToUpper(strings.TrimSpace(u.Ticker))
	exchange := strings.ToUpper(strings.TrimSpace(u.Exchange))
	if exchange == "" || strings.HasSuffix(ticker, "."+exchange) {
		return ticker
	}
	return ticker + "." + exchange
}

// BasketPolicyKind selects how underlying performances are reduced
type BasketPolicyKind string

const (
	BasketWorstOf BasketPolicyKind = "worst_of"
	BasketBestOf  BasketPolicyKind = "best_of"
	BasketAverage BasketPolicyKind = "average"
	BasketNthBest BasketPolicyKind = "nth_best"
)

// BasketPolicy is a reduction policy; N is used by nth_best only (1 = best)
type BasketPolicy struct {
	Kind BasketPolicyKind `json:"kind" yaml:"kind"`
	N    int              `json:"n,omitempty" yaml:"n"`
}

// String renders the policy for display, e.g. "worst-of" or "2nd-best"
func (p BasketPolicy) String() string {
	switch p.Kind {
	case BasketWorstOf:
		return "worst-of"
	case BasketBestOf:
		return "best-of"
	case BasketAverage:
		return "average"
	case BasketNthBest:
		return fmt.Sprintf("%s-best", ordinal(p.N))
	}
	return string(p.Kind)
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// StepDown lowers the autocall barrier by Size per period after the
// non-call period, never below Floor when Floor > 0
type StepDown struct {
	Size  float64 `json:"size" yaml:"size"`
	Floor float64 `json:"floor,omitempty" yaml:"floor"`
}

// ReverseConvertibleTerms are the terms of a barrier reverse convertible.
// CouponRate is the total coupon over the life of the product.
type ReverseConvertibleTerms struct {
	ProtectionBarrier       float64           `json:"protection_barrier"`
	CouponRate              float64           `json:"coupon_rate"`
	CouponPeriodicityMonths int               `json:"coupon_periodicity_months,omitempty"`
	Monitoring              BarrierMonitoring `json:"monitoring,omitempty"`
}

// ParticipationTerms are the terms of a participation note
type ParticipationTerms struct {
	ParticipationRate float64    `json:"participation_rate"`
	ProtectionFloor   *float64   `json:"protection_floor,omitempty"`
	CallDate          *time.Time `json:"call_date,omitempty"`
	CallPrice         float64    `json:"call_price,omitempty"`
}

// CallActive reports whether the issuer call applies on date
func (t ParticipationTerms) CallActive(date time.Time) bool {
	return t.CallDate != nil && !Day(*t.CallDate).After(Day(date))
}

// PhoenixTerms are the terms of a phoenix memory autocallable.
// CouponRate is paid per observation period.
type PhoenixTerms struct {
	ProtectionBarrier float64           `json:"protection_barrier"`
	CouponBarrier     float64           `json:"coupon_barrier"`
	AutocallLevel     float64           `json:"autocall_level"`
	CouponRate        float64           `json:"coupon_rate"`
	Memory            bool              `json:"memory"`
	PeriodicityMonths int               `json:"periodicity_months"`
	NonCallPeriods    int               `json:"non_call_periods"`
	StepDown          *StepDown         `json:"step_down,omitempty"`
	Monitoring        BarrierMonitoring `json:"monitoring,omitempty"`
}

// ProductStructure is a tagged union keyed by Kind. Exactly the variant
// matching Kind is set.
type ProductStructure struct {
	Kind               TemplateKind             `json:"kind"`
	ReverseConvertible *ReverseConvertibleTerms `json:"reverse_convertible,omitempty"`
	Participation      *ParticipationTerms      `json:"participation,omitempty"`
	Phoenix            *PhoenixTerms            `json:"phoenix,omitempty"`
}

// Validate checks the variant matches the kind and the terms are sane
func (s ProductStructure) Validate() error {
	set := 0
	if s.ReverseConvertible != nil {
		set++
	}
	if s.Participation != nil {
		set++
	}
	if s.Phoenix != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: structure must carry exactly one template variant, got %d", ErrInvalidProduct, set)
	}

	switch s.Kind {
	case TemplateReverseConvertible:
		t := s.ReverseConvertible
		if t == nil {
			return fmt.Errorf("%w: kind %s without reverse convertible terms", ErrInvalidProduct, s.Kind)
		}
		if t.ProtectionBarrier <= 0 {
			return fmt.Errorf("%w: protection barrier must be positive", ErrInvalidProduct)
		}
		if t.CouponPeriodicityMonths < 0 {
			return fmt.Errorf("%w: coupon periodicity must not be negative", ErrInvalidProduct)
		}
	case TemplateParticipationNote:
		t := s.Participation
		if t == nil {
			return fmt.Errorf("%w: kind %s without participation terms", ErrInvalidProduct, s.Kind)
		}
		if t.ParticipationRate < 0 {
			return fmt.Errorf("%w: participation rate must not be negative", ErrInvalidProduct)
		}
		if t.CallDate != nil && t.CallPrice <= 0 {
			return fmt.Errorf("%w: call date requires a positive call price", ErrInvalidProduct)
		}
	case TemplatePhoenixMemory:
		t := s.Phoenix
		if t == nil {
			return fmt.Errorf("%w: kind %s without phoenix terms", ErrInvalidProduct, s.Kind)
		}
		if t.ProtectionBarrier <= 0 || t.CouponBarrier <= 0 || t.AutocallLevel <= 0 {
			return fmt.Errorf("%w: phoenix barriers must be positive", ErrInvalidProduct)
		}
		if t.PeriodicityMonths <= 0 {
			return fmt.Errorf("%w: periodicity must be positive", ErrInvalidSchedule)
		}
		if t.NonCallPeriods < 0 {
			return fmt.Errorf("%w: non-call periods must not be negative", ErrInvalidSchedule)
		}
		if t.StepDown != nil && t.StepDown.Size < 0 {
			return fmt.Errorf("%w: step-down size must not be negative", ErrInvalidProduct)
		}
	default:
		return fmt.Errorf("%w: unknown template %q", ErrInvalidProduct, s.Kind)
	}
	return nil
}

// ProtectionBarrier returns the capital protection barrier, if the template has one
func (s ProductStructure) ProtectionBarrier() (float64, bool) {
	switch {
	case s.Kind == TemplateReverseConvertible && s.ReverseConvertible != nil:
		return s.ReverseConvertible.ProtectionBarrier, true
	case s.Kind == TemplatePhoenixMemory && s.Phoenix != nil:
		return s.Phoenix.ProtectionBarrier, true
	}
	return 0, false
}

// Monitoring returns the barrier monitoring style, european by default
func (s ProductStructure) Monitoring() BarrierMonitoring {
	var m BarrierMonitoring
	switch {
	case s.ReverseConvertible != nil:
		m = s.ReverseConvertible.Monitoring
	case s.Phoenix != nil:
		m = s.Phoenix.Monitoring
	}
	if m == "" {
		return MonitoringEuropean
	}
	return m
}

// Product is the read-only contractual record of one product instance
type Product struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	ISIN                 string           `json:"isin,omitempty"`
	Currency             string           `json:"currency"`
	Notional             float64          `json:"notional"`
	TradeDate            time.Time        `json:"trade_date"`
	FinalObservationDate time.Time        `json:"final_observation_date"`
	MaturityDate         time.Time        `json:"maturity_date"`
	Underlyings          []Underlying     `json:"underlyings"`
	Basket               BasketPolicy     `json:"basket"`
	Structure            ProductStructure `json:"structure"`
}

// Validate checks the record before it enters the engine
func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidProduct)
	}
	if len(p.Underlyings) == 0 {
		return fmt.Errorf("%w: at least one underlying is required", ErrInvalidProduct)
	}
	seen := make(map[string]bool, len(p.Underlyings))
	for _, u := range p.Underlyings {
		if strings.TrimSpace(u.Ticker) == "" {
			return fmt.Errorf("%w: underlying ticker is required", ErrInvalidProduct)
		}
		if u.Strike < 0 {
			return fmt.Errorf("%w: strike of %s must not be negative", ErrInvalidProduct, u.FullTicker())
		}
		if seen[u.FullTicker()] {
			return fmt.Errorf("%w: duplicate underlying %s", ErrInvalidProduct, u.FullTicker())
		}
		seen[u.FullTicker()] = true
	}

	if p.TradeDate.IsZero() || p.FinalObservationDate.IsZero() || p.MaturityDate.IsZero() {
		return fmt.Errorf("%w: trade, final observation and maturity dates are required", ErrInvalidSchedule)
	}
	if !Day(p.FinalObservationDate).After(Day(p.TradeDate)) {
		return fmt.Errorf("%w: final observation %s is not after trade date %s", ErrInvalidSchedule,
			p.FinalObservationDate.Format(DateLayout), p.TradeDate.Format(DateLayout))
	}
	if Day(p.MaturityDate).Before(Day(p.FinalObservationDate)) {
		return fmt.Errorf("%w: maturity %s is before final observation %s", ErrInvalidSchedule,
			p.MaturityDate.Format(DateLayout), p.FinalObservationDate.Format(DateLayout))
	}

	switch p.Basket.Kind {
	case BasketWorstOf, BasketBestOf, BasketAverage:
	case BasketNthBest:
		if p.Basket.N < 1 || p.Basket.N > len(p.Underlyings) {
			return fmt.Errorf("%w: nth-best rank %d outside 1..%d", ErrInvalidProduct, p.Basket.N, len(p.Underlyings))
		}
	default:
		return fmt.Errorf("%w: unknown basket policy %q", ErrInvalidProduct, p.Basket.Kind)
	}

	return p.Structure.Validate()
}

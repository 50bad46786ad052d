// Package products loads product records from YAML files and Postgres.
package products

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/notes/backend/internal/contracts"
)

// Document is the serialized form of a product. Dates are ISO strings so the
// same shape reads from YAML files, JSONB rows and API bodies.
// ⭐ SSOT: 상품 문서 ↔ contracts.Product 변환은 여기서만
type Document struct {
	ID                   string                 `yaml:"id" json:"id"`
	Name                 string                 `yaml:"name" json:"name"`
	ISIN                 string                 `yaml:"isin,omitempty" json:"isin,omitempty"`
	Currency             string                 `yaml:"currency" json:"currency"`
	Notional             float64                `yaml:"notional" json:"notional"`
	TradeDate            string                 `yaml:"trade_date" json:"trade_date"`
	FinalObservationDate string                 `yaml:"final_observation_date" json:"final_observation_date"`
	MaturityDate         string                 `yaml:"maturity_date" json:"maturity_date"`
	Underlyings          []contracts.Underlying `yaml:"underlyings" json:"underlyings"`
	Basket               contracts.BasketPolicy `yaml:"basket" json:"basket"`
	Structure            StructureDocument      `yaml:"structure" json:"structure"`
}

// StructureDocument carries exactly one template variant
type StructureDocument struct {
	Kind               contracts.TemplateKind      `yaml:"kind" json:"kind"`
	ReverseConvertible *ReverseConvertibleDocument `yaml:"reverse_convertible,omitempty" json:"reverse_convertible,omitempty"`
	Participation      *ParticipationDocument      `yaml:"participation,omitempty" json:"participation,omitempty"`
	Phoenix            *PhoenixDocument            `yaml:"phoenix,omitempty" json:"phoenix,omitempty"`
}

type ReverseConvertibleDocument struct {
	ProtectionBarrier       float64                     `yaml:"protection_barrier" json:"protection_barrier"`
	CouponRate              float64                     `yaml:"coupon_rate" json:"coupon_rate"`
	CouponPeriodicityMonths int                         `yaml:"coupon_periodicity_months,omitempty" json:"coupon_periodicity_months,omitempty"`
	Monitoring              contracts.BarrierMonitoring `yaml:"monitoring,omitempty" json:"monitoring,omitempty"`
}

type ParticipationDocument struct {
	ParticipationRate float64  `yaml:"participation_rate" json:"participation_rate"`
	ProtectionFloor   *float64 `yaml:"protection_floor,omitempty" json:"protection_floor,omitempty"`
	CallDate          string   `yaml:"call_date,omitempty" json:"call_date,omitempty"`
	CallPrice         float64  `yaml:"call_price,omitempty" json:"call_price,omitempty"`
}

type PhoenixDocument struct {
	ProtectionBarrier float64                     `yaml:"protection_barrier" json:"protection_barrier"`
	CouponBarrier     float64                     `yaml:"coupon_barrier" json:"coupon_barrier"`
	AutocallLevel     float64                     `yaml:"autocall_level" json:"autocall_level"`
	CouponRate        float64                     `yaml:"coupon_rate" json:"coupon_rate"`
	Memory            bool                        `yaml:"memory" json:"memory"`
	PeriodicityMonths int                         `yaml:"periodicity_months" json:"periodicity_months"`
	NonCallPeriods    int                         `yaml:"non_call_periods" json:"non_call_periods"`
	StepDown          *contracts.StepDown         `yaml:"step_down,omitempty" json:"step_down,omitempty"`
	Monitoring        contracts.BarrierMonitoring `yaml:"monitoring,omitempty" json:"monitoring,omitempty"`
}

// ToProduct converts and validates the document
func (d Document) ToProduct() (contracts.Product, error) {
	trade, err := parseDate("trade_date", d.TradeDate)
	if err != nil {
		return contracts.Product{}, err
	}
	final, err := parseDate("final_observation_date", d.FinalObservationDate)
	if err != nil {
		return contracts.Product{}, err
	}
	maturity, err := parseDate("maturity_date", d.MaturityDate)
	if err != nil {
		return contracts.Product{}, err
	}

	structure, err := d.Structure.toStructure()
	if err != nil {
		return contracts.Product{}, err
	}

	p := contracts.Product{
		ID:                   strings.TrimSpace(d.ID),
		Name:                 d.Name,
		ISIN:                 d.ISIN,
		Currency:             strings.ToUpper(d.Currency),
		Notional:             d.Notional,
		TradeDate:            trade,
		FinalObservationDate: final,
		MaturityDate:         maturity,
		Underlyings:          append([]contracts.Underlying(nil), d.Underlyings...),
		Basket:               d.Basket,
		Structure:            structure,
	}
	if p.Basket.Kind == "" {
		p.Basket.Kind = contracts.BasketWorstOf
	}

	if err := p.Validate(); err != nil {
		return contracts.Product{}, fmt.Errorf("product %q: %w", d.ID, err)
	}
	return p, nil
}

func (s StructureDocument) toStructure() (contracts.ProductStructure, error) {
	out := contracts.ProductStructure{Kind: s.Kind}

	if rc := s.ReverseConvertible; rc != nil {
		out.ReverseConvertible = &contracts.ReverseConvertibleTerms{
			ProtectionBarrier:       rc.ProtectionBarrier,
			CouponRate:              rc.CouponRate,
			CouponPeriodicityMonths: rc.CouponPeriodicityMonths,
			Monitoring:              rc.Monitoring,
		}
	}
	if pn := s.Participation; pn != nil {
		terms := &contracts.ParticipationTerms{
			ParticipationRate: pn.ParticipationRate,
			ProtectionFloor:   pn.ProtectionFloor,
			CallPrice:         pn.CallPrice,
		}
		if pn.CallDate != "" {
			callDate, err := parseDate("call_date", pn.CallDate)
			if err != nil {
				return out, err
			}
			terms.CallDate = &callDate
		}
		out.Participation = terms
	}
	if ph := s.Phoenix; ph != nil {
		out.Phoenix = &contracts.PhoenixTerms{
			ProtectionBarrier: ph.ProtectionBarrier,
			CouponBarrier:     ph.CouponBarrier,
			AutocallLevel:     ph.AutocallLevel,
			CouponRate:        ph.CouponRate,
			Memory:            ph.Memory,
			PeriodicityMonths: ph.PeriodicityMonths,
			NonCallPeriods:    ph.NonCallPeriods,
			StepDown:          ph.StepDown,
			Monitoring:        ph.Monitoring,
		}
	}
	return out, nil
}

// FromProduct converts a product back into its document form
func FromProduct(p contracts.Product) Document {
	d := Document{
		ID:                   p.ID,
		Name:                 p.Name,
		ISIN:                 p.ISIN,
		Currency:             p.Currency,
		Notional:             p.Notional,
		TradeDate:            formatDate(p.TradeDate),
		FinalObservationDate: formatDate(p.FinalObservationDate),
		MaturityDate:         formatDate(p.MaturityDate),
		Underlyings:          append([]contracts.Underlying(nil), p.Underlyings...),
		Basket:               p.Basket,
		Structure:            StructureDocument{Kind: p.Structure.Kind},
	}

	s := p.Structure
	if rc := s.ReverseConvertible; rc != nil {
		d.Structure.ReverseConvertible = &ReverseConvertibleDocument{
			ProtectionBarrier:       rc.ProtectionBarrier,
			CouponRate:              rc.CouponRate,
			CouponPeriodicityMonths: rc.CouponPeriodicityMonths,
			Monitoring:              rc.Monitoring,
		}
	}
	if pn := s.Participation; pn != nil {
		doc := &ParticipationDocument{
			ParticipationRate: pn.ParticipationRate,
			ProtectionFloor:   pn.ProtectionFloor,
			CallPrice:         pn.CallPrice,
		}
		if pn.CallDate != nil {
			doc.CallDate = formatDate(*pn.CallDate)
		}
		d.Structure.Participation = doc
	}
	if ph := s.Phoenix; ph != nil {
		d.Structure.Phoenix = &PhoenixDocument{
			ProtectionBarrier: ph.ProtectionBarrier,
			CouponBarrier:     ph.CouponBarrier,
			AutocallLevel:     ph.AutocallLevel,
			CouponRate:        ph.CouponRate,
			Memory:            ph.Memory,
			PeriodicityMonths: ph.PeriodicityMonths,
			NonCallPeriods:    ph.NonCallPeriods,
			StepDown:          ph.StepDown,
			Monitoring:        ph.Monitoring,
		}
	}
	return d
}

func parseDate(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", contracts.ErrInvalidSchedule, field)
	}
	t, err := contracts.ParseDate(strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q: %v", contracts.ErrInvalidSchedule, field, value, err)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(contracts.DateLayout)
}

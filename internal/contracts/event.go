package contracts

import (
	"fmt"
	"time"
)

// EventType classifies a contractual trigger
type EventType string

const (
	EventCouponPaid       EventType = "coupon_paid"
	EventCouponMemorized  EventType = "coupon_memorized"
	EventAutocall         EventType = "autocall"
	EventBarrierBreach    EventType = "barrier_breach"
	EventBarrierRecovered EventType = "barrier_recovered"
	EventFinalObservation EventType = "final_observation"
	EventProductMatured   EventType = "product_matured"
	// EventIssuerCall is raised when a participation note's call date is reached
	EventIssuerCall EventType = "issuer_call"
)

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	switch t {
	case EventCouponPaid, EventCouponMemorized, EventAutocall, EventBarrierBreach,
		EventBarrierRecovered, EventFinalObservation, EventProductMatured, EventIssuerCall:
		return true
	}
	return false
}

// Event is one detected contractual trigger
type Event struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	Type             EventType `json:"type"`
	Date             time.Time `json:"date"`
	Underlying       string    `json:"underlying,omitempty"` // set on barrier events
	BasketLevel      float64   `json:"basket_level"`         // rebased level at trigger (100 = strike)
	PayoffImpact     float64   `json:"payoff_impact"`        // % of notional paid, memorized or redeemed
	ObservationIndex int       `json:"observation_index,omitempty"`
	Message          string    `json:"message,omitempty"`
	DetectedAt       time.Time `json:"detected_at"`
}

// DedupKey identifies an event for duplicate suppression:
// (product, type, date), plus the underlying for per-underlying barrier events
func (e Event) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", e.ProductID, e.Type, Day(e.Date).Format(DateLayout), e.Underlying)
}

// MemoryState is the accumulated but unpaid coupon of a memory product
type MemoryState struct {
	Accumulated float64 `json:"accumulated"`
	Count       int     `json:"count"`
}

// Memorize carries one missed coupon forward
func (m MemoryState) Memorize(coupon float64) MemoryState {
	return MemoryState{Accumulated: m.Accumulated + coupon, Count: m.Count + 1}
}

// ProductState is the lifecycle state of a product in one evaluation pass
type ProductState string

const (
	StateAccumulating ProductState = "ACCUMULATING"
	StateAutocalled   ProductState = "AUTOCALLED"
	StateCalled       ProductState = "CALLED"
	StateMatured      ProductState = "MATURED"
)

// Terminal reports whether no further observation is evaluated
func (s ProductState) Terminal() bool {
	return s == StateAutocalled || s == StateCalled || s == StateMatured
}

// BarrierState is the per-underlying barrier sub-state
type BarrierState string

const (
	AboveBarrier BarrierState = "ABOVE_BARRIER"
	BelowBarrier BarrierState = "BELOW_BARRIER"
)

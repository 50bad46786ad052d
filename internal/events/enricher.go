package events

import (
	"context"
	"fmt"

	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/format"
)

// Enricher completes an event before it is recorded. An error or a panic
// skips that event only.
type Enricher interface {
	Enrich(ctx context.Context, product contracts.Product, event *contracts.Event) error
}

// EnricherFunc adapts a function to Enricher
type EnricherFunc func(ctx context.Context, product contracts.Product, event *contracts.Event) error

// Enrich implements Enricher
func (f EnricherFunc) Enrich(ctx context.Context, product contracts.Product, event *contracts.Event) error {
	return f(ctx, product, event)
}

// Messages writes the notification line of each event
type Messages struct{}

// Enrich implements Enricher
func (Messages) Enrich(_ context.Context, product contracts.Product, e *contracts.Event) error {
	e.Message = Message(product, *e)
	return nil
}

// Message renders the notification line for e
func Message(product contracts.Product, e contracts.Event) string {
	date := format.Date(e.Date)
	level := format.Percent(e.BasketLevel)

	switch e.Type {
	case contracts.EventCouponPaid:
		return fmt.Sprintf("%s: coupon of %s paid on observation %d (%s), basket at %s",
			product.Name, format.Percent(e.PayoffImpact), e.ObservationIndex, date, level)
	case contracts.EventCouponMemorized:
		return fmt.Sprintf("%s: coupon of %s memorized on observation %d (%s), basket at %s",
			product.Name, format.Percent(e.PayoffImpact), e.ObservationIndex, date, level)
	case contracts.EventAutocall:
		return fmt.Sprintf("%s: autocalled on %s at %s, basket at %s",
			product.Name, date, format.Percent(e.PayoffImpact), level)
	case contracts.EventIssuerCall:
		return fmt.Sprintf("%s: called by the issuer on %s at %s", product.Name, date, format.Percent(e.PayoffImpact))
	case contracts.EventBarrierBreach:
		return fmt.Sprintf("%s: %s closed at %s on %s, below the protection barrier",
			product.Name, e.Underlying, level, date)
	case contracts.EventBarrierRecovered:
		return fmt.Sprintf("%s: %s closed at %s on %s, back above the protection barrier",
			product.Name, e.Underlying, level, date)
	case contracts.EventFinalObservation:
		return fmt.Sprintf("%s: final observation on %s, basket at %s, redemption %s",
			product.Name, date, level, format.Percent(e.PayoffImpact))
	case contracts.EventProductMatured:
		return fmt.Sprintf("%s: matured on %s, redemption %s (%s)",
			product.Name, date, format.Percent(e.PayoffImpact),
			format.Amount(product.Currency, product.Notional*e.PayoffImpact/100))
	}
	return fmt.Sprintf("%s: %s on %s", product.Name, e.Type, date)
}

package prices

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/metrics"
	"github.com/wonny/notes/backend/pkg/config"
	"github.com/wonny/notes/backend/pkg/logger"
)

// DefaultFallbackExchanges is the suffix order tried after the exact ticker
var DefaultFallbackExchanges = []string{"US", "PA", "DE", "LSE", "CO"}

// Resolution is the outcome of resolving one ticker against the store
type Resolution struct {
	Requested  string
	FullTicker string // ticker that actually hit
	Record     *contracts.PriceRecord
	History    *contracts.PriceHistory
}

// Fallback reports whether an alternate exchange suffix was used
func (r *Resolution) Fallback() bool {
	return !strings.EqualFold(r.Requested, r.FullTicker)
}

// Provider is the single read-only accessor over the price cache.
// ⭐ SSOT: 거래소 fallback 순서는 여기서만 적용
type Provider struct {
	store     contracts.PriceStore
	fallbacks []string
	adjusted  bool
	breaker   *gobreaker.CircuitBreaker
	logger    *logger.Logger
}

// NewProvider creates a provider over store
func NewProvider(store contracts.PriceStore, cfg config.PriceConfig, log *logger.Logger) *Provider {
	fallbacks := cfg.FallbackExchanges
	if len(fallbacks) == 0 {
		fallbacks = DefaultFallbackExchanges
	}

	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	p := &Provider{
		store:     store,
		fallbacks: normalizeSuffixes(fallbacks),
		adjusted:  cfg.UseAdjusted,
		logger:    log.WithComponent("prices"),
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "price-store",
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		// A missing record is an answer, not a store fault
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, contracts.ErrDataUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Price store circuit breaker state changed")
		},
	})

	return p
}

func normalizeSuffixes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(s), "."))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Adjusted reports whether fixings use the adjusted close
func (p *Provider) Adjusted() bool {
	return p.adjusted
}

// Candidates lists the tickers tried for ticker, in order: the exact ticker,
// then the base symbol with each fallback suffix.
func (p *Provider) Candidates(ticker string) []string {
	exact := strings.ToUpper(strings.TrimSpace(ticker))
	if exact == "" {
		return nil
	}

	base := exact
	if i := strings.LastIndex(exact, "."); i > 0 {
		base = exact[:i]
	}

	seen := map[string]bool{exact: true}
	out := []string{exact}
	for _, suffix := range p.fallbacks {
		candidate := base + "." + suffix
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		out = append(out, candidate)
	}
	return out
}

// Resolve finds the first candidate with a record. The lookup list is bounded
// and nothing is retried; every failure surfaces as ErrDataUnavailable.
func (p *Provider) Resolve(ctx context.Context, ticker string) (*Resolution, error) {
	candidates := p.Candidates(ticker)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: empty ticker", contracts.ErrDataUnavailable)
	}

	for i, candidate := range candidates {
		record, err := p.lookup(ctx, candidate)
		if err != nil {
			if !errors.Is(err, contracts.ErrDataUnavailable) {
				metrics.PriceLookups.WithLabelValues("fault").Inc()
				p.logger.WithError(err).WithField("ticker", candidate).Warn("Price store lookup failed")
			}
			continue
		}

		if i == 0 {
			metrics.PriceLookups.WithLabelValues("hit").Inc()
		} else {
			metrics.PriceLookups.WithLabelValues("fallback").Inc()
			p.logger.WithFields(map[string]interface{}{
				"requested": candidates[0],
				"resolved":  candidate,
			}).Debug("Resolved ticker through exchange fallback")
		}

		return &Resolution{
			Requested:  candidates[0],
			FullTicker: candidate,
			Record:     record,
			History:    contracts.NewPriceHistory(candidate, record.History),
		}, nil
	}

	metrics.PriceLookups.WithLabelValues("miss").Inc()
	return nil, fmt.Errorf("%w: no price record for %s after %d candidates",
		contracts.ErrDataUnavailable, candidates[0], len(candidates))
}

// lookup reads one record through the circuit breaker
func (p *Provider) lookup(ctx context.Context, fullTicker string) (*contracts.PriceRecord, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		record, err := p.store.GetRecord(ctx, fullTicker)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, contracts.ErrDataUnavailable
		}
		return record, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: price store unavailable: %v", contracts.ErrDataUnavailable, err)
		}
		return nil, err
	}
	return result.(*contracts.PriceRecord), nil
}

// GetHistory returns the normalized daily history of ticker
func (p *Provider) GetHistory(ctx context.Context, ticker string) (*contracts.PriceHistory, error) {
	res, err := p.Resolve(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return res.History, nil
}

// GetCurrentPrice returns the record's current price, or the last close when
// the record carries none
func (p *Provider) GetCurrentPrice(ctx context.Context, ticker string) (contracts.Price, error) {
	res, err := p.Resolve(ctx, ticker)
	if err != nil {
		return contracts.Price{}, err
	}
	return CurrentPrice(res, p.adjusted)
}

// CurrentPrice extracts the latest quote from a resolution
func CurrentPrice(res *Resolution, adjusted bool) (contracts.Price, error) {
	if res == nil || res.Record == nil {
		return contracts.Price{}, contracts.ErrDataUnavailable
	}
	if res.Record.CurrentPrice > 0 {
		date := contracts.Day(res.Record.PriceDate)
		if date.IsZero() {
			if last, ok := res.History.Last(); ok {
				date = last.Date
			}
		}
		return contracts.Price{Ticker: res.FullTicker, Value: res.Record.CurrentPrice, Date: date}, nil
	}
	if last, ok := res.History.Last(); ok {
		return contracts.Price{Ticker: res.FullTicker, Value: last.Value(adjusted), Date: last.Date}, nil
	}
	return contracts.Price{}, fmt.Errorf("%w: %s has no current price", contracts.ErrDataUnavailable, res.FullTicker)
}

// PriceAt returns the fixing of ticker on date (first close on or after it)
func (p *Provider) PriceAt(ctx context.Context, ticker string, date time.Time) (contracts.Price, error) {
	history, err := p.GetHistory(ctx, ticker)
	if err != nil {
		return contracts.Price{}, err
	}
	point, err := PriceOnOrAfter(history, date)
	if err != nil {
		return contracts.Price{}, err
	}
	return contracts.Price{Ticker: history.Ticker, Value: point.Value(p.adjusted), Date: point.Date}, nil
}

// PriceOnOrAfter returns the first point dated on or after date. A series
// ending before date has no answer yet and returns ErrDataUnavailable.
func PriceOnOrAfter(history *contracts.PriceHistory, date time.Time) (contracts.PricePoint, error) {
	if history.Len() == 0 {
		return contracts.PricePoint{}, fmt.Errorf("%w: empty history", contracts.ErrDataUnavailable)
	}
	target := contracts.Day(date)
	pts := history.Points
	i := sort.Search(len(pts), func(i int) bool { return !pts[i].Date.Before(target) })
	if i == len(pts) {
		return contracts.PricePoint{}, fmt.Errorf("%w: %s history ends %s, before %s", contracts.ErrDataUnavailable,
			history.Ticker, pts[len(pts)-1].Date.Format(contracts.DateLayout), target.Format(contracts.DateLayout))
	}
	return pts[i], nil
}

// PriceOnOrBefore returns the last point dated on or before date
func PriceOnOrBefore(history *contracts.PriceHistory, date time.Time) (contracts.PricePoint, error) {
	if history.Len() == 0 {
		return contracts.PricePoint{}, fmt.Errorf("%w: empty history", contracts.ErrDataUnavailable)
	}
	target := contracts.Day(date)
	pts := history.Points
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Date.After(target) })
	if i == 0 {
		return contracts.PricePoint{}, fmt.Errorf("%w: %s history starts after %s", contracts.ErrDataUnavailable,
			history.Ticker, target.Format(contracts.DateLayout))
	}
	return pts[i-1], nil
}

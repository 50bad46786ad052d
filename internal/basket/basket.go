// Package basket reduces underlying performances to one basket reference value.
package basket

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wonny/notes/backend/internal/contracts"
)

var (
	// ErrEmptyBasket is returned when no performances are supplied
	ErrEmptyBasket = errors.New("empty basket")
	// ErrMissingData is returned when any underlying lacks a performance
	ErrMissingData = errors.New("underlying performance missing")
	// ErrInvalidPolicy is returned for an unknown policy or an nth rank out of range
	ErrInvalidPolicy = errors.New("invalid basket policy")
)

// Performance is one underlying's performance in percent (0 = at strike).
// Available=false marks an underlying whose price could not be resolved.
type Performance struct {
	Ticker    string
	Value     float64
	Available bool
}

// UnderlyingPerformance is (price - strike) / strike * 100
func UnderlyingPerformance(price, strike float64) (float64, error) {
	if strike <= 0 {
		return 0, fmt.Errorf("%w: strike must be positive, got %v", contracts.ErrComputationFault, strike)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: price must be positive, got %v", contracts.ErrDataUnavailable, price)
	}
	return (price - strike) / strike * 100, nil
}

// Rebased converts a performance to a level where 100 is the strike
func Rebased(performance float64) float64 {
	return 100 + performance
}

// FromLevel is the inverse of Rebased
func FromLevel(level float64) float64 {
	return level - 100
}

// Reduce applies policy to the performances. It never substitutes zero for a
// missing underlying: any unavailable entry fails the reduction.
func Reduce(perfs []Performance, policy contracts.BasketPolicy) (float64, error) {
	if len(perfs) == 0 {
		return 0, ErrEmptyBasket
	}
	values := make([]float64, 0, len(perfs))
	for _, p := range perfs {
		if !p.Available {
			return 0, fmt.Errorf("%w: %s", ErrMissingData, p.Ticker)
		}
		values = append(values, p.Value)
	}
	return ReduceValues(values, policy)
}

// ReduceValues applies policy to a complete set of performances
func ReduceValues(values []float64, policy contracts.BasketPolicy) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyBasket
	}

	switch policy.Kind {
	case contracts.BasketWorstOf:
		return nthBest(values, len(values)), nil
	case contracts.BasketBestOf:
		return nthBest(values, 1), nil
	case contracts.BasketAverage:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), nil
	case contracts.BasketNthBest:
		if policy.N < 1 || policy.N > len(values) {
			return 0, fmt.Errorf("%w: rank %d outside 1..%d", ErrInvalidPolicy, policy.N, len(values))
		}
		return nthBest(values, policy.N), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPolicy, policy.Kind)
}

// nthBest returns the n-th largest value, 1-indexed
func nthBest(values []float64, n int) float64 {
	sorted := append([]float64(nil), values...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	return sorted[n-1]
}

// Driver returns the ticker whose performance equals the basket value, the
// underlying that drives a worst-of or best-of basket. Empty for average.
func Driver(perfs []Performance, policy contracts.BasketPolicy, value float64) string {
	if policy.Kind == contracts.BasketAverage {
		return ""
	}
	for _, p := range perfs {
		if p.Available && p.Value == value {
			return p.Ticker
		}
	}
	return ""
}

package basket

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/notes/backend/internal/contracts"
)

var (
	worstOf = contracts.BasketPolicy{Kind: contracts.BasketWorstOf}
	bestOf  = contracts.BasketPolicy{Kind: contracts.BasketBestOf}
	average = contracts.BasketPolicy{Kind: contracts.BasketAverage}
)

func TestReduceValues(t *testing.T) {
	values := []float64{-12.5, 4, 30, -40}

	tests := []struct {
		name   string
		policy contracts.BasketPolicy
		want   float64
	}{
		{"worst-of", worstOf, -40},
		{"best-of", bestOf, 30},
		{"average", average, -4.625},
		{"1st best", contracts.BasketPolicy{Kind: contracts.BasketNthBest, N: 1}, 30},
		{"2nd best", contracts.BasketPolicy{Kind: contracts.BasketNthBest, N: 2}, 4},
		{"4th best", contracts.BasketPolicy{Kind: contracts.BasketNthBest, N: 4}, -40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReduceValues(values, tt.policy)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestReduceValues_DoesNotMutateInput(t *testing.T) {
	values := []float64{3, 1, 2}
	_, err := ReduceValues(values, contracts.BasketPolicy{Kind: contracts.BasketNthBest, N: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2}, values)
}

func TestReduce_Errors(t *testing.T) {
	_, err := Reduce(nil, worstOf)
	assert.True(t, errors.Is(err, ErrEmptyBasket))

	_, err = Reduce([]Performance{
		{Ticker: "AAPL.US", Value: 5, Available: true},
		{Ticker: "MC.PA", Available: false},
	}, worstOf)
	assert.True(t, errors.Is(err, ErrMissingData), "a missing underlying is never treated as zero")

	_, err = ReduceValues([]float64{1, 2}, contracts.BasketPolicy{Kind: contracts.BasketNthBest, N: 3})
	assert.True(t, errors.Is(err, ErrInvalidPolicy))

	_, err = ReduceValues([]float64{1}, contracts.BasketPolicy{Kind: "median"})
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
}

func TestReduce_OrderProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(8)
		values := make([]float64, n)
		for j := range values {
			values[j] = rng.Float64()*200 - 100
		}

		lo, _ := ReduceValues(values, worstOf)
		hi, _ := ReduceValues(values, bestOf)
		avg, _ := ReduceValues(values, average)

		assert.LessOrEqual(t, lo, avg+1e-9)
		assert.LessOrEqual(t, avg, hi+1e-9)
		assert.Contains(t, values, lo)
		assert.Contains(t, values, hi)

		for rank := 1; rank <= n; rank++ {
			v, err := ReduceValues(values, contracts.BasketPolicy{Kind: contracts.BasketNthBest, N: rank})
			require.NoError(t, err)
			above := 0
			for _, x := range values {
				if x > v {
					above++
				}
			}
			assert.Less(t, above, rank, "at most rank-1 values rank above the nth best")
		}
	}
}

func TestUnderlyingPerformance(t *testing.T) {
	perf, err := UnderlyingPerformance(126, 180)
	require.NoError(t, err)
	assert.InDelta(t, -30, perf, 1e-9)

	_, err = UnderlyingPerformance(100, 0)
	assert.True(t, errors.Is(err, contracts.ErrComputationFault))

	_, err = UnderlyingPerformance(0, 100)
	assert.True(t, errors.Is(err, contracts.ErrDataUnavailable))
}

func TestRebaseIdentityAtStrike(t *testing.T) {
	for _, strike := range []float64{0.0001, 1, 13.37, 180, 98765.4321} {
		perf, err := UnderlyingPerformance(strike, strike)
		require.NoError(t, err)
		assert.Equal(t, 100.0, Rebased(perf), "strike %v", strike)
		assert.Equal(t, 0.0, FromLevel(Rebased(perf)))
	}
}

func TestDriver(t *testing.T) {
	perfs := []Performance{
		{Ticker: "A", Value: -10, Available: true},
		{Ticker: "B", Value: 5, Available: true},
	}
	assert.Equal(t, "A", Driver(perfs, worstOf, -10))
	assert.Equal(t, "B", Driver(perfs, bestOf, 5))
	assert.Empty(t, Driver(perfs, average, -2.5))
}

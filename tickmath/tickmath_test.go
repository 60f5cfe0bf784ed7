package tickmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fromString(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

func TestSqrtRatioAtTick(t *testing.T) {
	t.Run("throws for too low", func(t *testing.T) {
		_, err := SqrtRatioAtTick(MinTick - 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTickOutOfBounds)
	})

	t.Run("throws for too high", func(t *testing.T) {
		_, err := SqrtRatioAtTick(MaxTick + 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTickOutOfBounds)
	})

	t.Run("min tick", func(t *testing.T) {
		sqrtP, err := SqrtRatioAtTick(MinTick)
		require.NoError(t, err)
		assert.Zero(t, MinSqrtRatio.Cmp(sqrtP))
	})

	t.Run("max tick", func(t *testing.T) {
		sqrtP, err := SqrtRatioAtTick(MaxTick)
		require.NoError(t, err)
		assert.Zero(t, MaxSqrtRatio.Cmp(sqrtP))
	})

	t.Run("tick zero is one in Q96", func(t *testing.T) {
		sqrtP, err := SqrtRatioAtTick(0)
		require.NoError(t, err)
		assert.Zero(t, fromString("79228162514264337593543950336").Cmp(sqrtP))
	})

	t.Run("one tick is one basis point", func(t *testing.T) {
		sqrtP, err := SqrtRatioAtTick(1)
		require.NoError(t, err)
		// The squared ratio must land within rounding error of 1.0001 in
		// Q192: 1.0001 * 2^192 scaled down to Q96 terms.
		squared := new(big.Int).Mul(sqrtP, sqrtP)
		squared.Rsh(squared, 96)
		want := fromString("79236085330515764027303304731") // 1.0001 * 2^96
		diff := new(big.Int).Sub(squared, want)
		diff.Abs(diff)
		assert.Negative(t, diff.Cmp(fromString("100000000000")))
	})

	t.Run("negation inverts the ratio", func(t *testing.T) {
		// ratio(t) * ratio(-t) must land within rounding error of 2^192.
		q192 := new(big.Int).Lsh(big.NewInt(1), 192)
		for _, tick := range []int64{1, 60, 600, 6000, 60000, 600000} {
			up, err := SqrtRatioAtTick(tick)
			require.NoError(t, err)
			down, err := SqrtRatioAtTick(-tick)
			require.NoError(t, err)

			product := new(big.Int).Mul(up, down)
			diff := new(big.Int).Sub(product, q192)
			diff.Abs(diff)
			// Relative error below 2^-64.
			bound := new(big.Int).Rsh(q192, 64)
			assert.Negative(t, diff.Cmp(bound), "tick %d", tick)
		}
	})

	t.Run("monotonic", func(t *testing.T) {
		prev, err := SqrtRatioAtTick(-100)
		require.NoError(t, err)
		for tick := int64(-99); tick <= 100; tick++ {
			cur, err := SqrtRatioAtTick(tick)
			require.NoError(t, err)
			assert.Positive(t, cur.Cmp(prev), "tick %d", tick)
			prev = cur
		}
	})
}

// Package deltamath implements checked signed fixed-point arithmetic for the
// balance deltas that flow through every liquidity mutation and swap.
// Amounts are int128-bounded: anything wider must fail loudly, never wrap.
package deltamath

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// maxInt128 / minInt128 bound every per-currency delta amount.
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	// maxUint128 bounds unsigned liquidity values.
	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	ErrDeltaOverflow      = errors.New("delta overflows int128")
	ErrLiquidityOverflow  = errors.New("liquidity overflow")
	ErrLiquidityUnderflow = errors.New("liquidity underflow")
)

// CheckInt128 returns ErrDeltaOverflow if x does not fit a signed 128-bit
// integer.
func CheckInt128(x *big.Int) error {
	if x.Cmp(maxInt128) > 0 || x.Cmp(minInt128) < 0 {
		return fmt.Errorf("%w: %s", ErrDeltaOverflow, x)
	}
	return nil
}

// AddLiquidityDelta writes x + y into dest, where x is an unsigned liquidity
// value and y a signed delta. It fails on underflow below zero or overflow
// past uint128.
func AddLiquidityDelta(dest, x, y *big.Int) error {
	dest.Add(x, y)
	if dest.Sign() < 0 {
		return ErrLiquidityUnderflow
	}
	if dest.Cmp(maxUint128) > 0 {
		return ErrLiquidityOverflow
	}
	return nil
}

// Delta is a signed net obligation per currency: negative means the holder
// owes the ledger, positive means the ledger owes the holder. Deltas are
// value types; arithmetic never mutates the operands.
type Delta struct {
	amount0 *big.Int
	amount1 *big.Int
}

// NewDelta builds a delta from the two per-currency amounts, copying both.
// Either amount may be nil, which reads as zero.
func NewDelta(amount0, amount1 *big.Int) Delta {
	return Delta{amount0: copyOrZero(amount0), amount1: copyOrZero(amount1)}
}

// ZeroDelta is the delta with no obligation on either side.
func ZeroDelta() Delta {
	return Delta{amount0: new(big.Int), amount1: new(big.Int)}
}

func copyOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// Amount0 returns a copy of the currency0 component.
func (d Delta) Amount0() *big.Int {
	return copyOrZero(d.amount0)
}

// Amount1 returns a copy of the currency1 component.
func (d Delta) Amount1() *big.Int {
	return copyOrZero(d.amount1)
}

func (d Delta) IsZero() bool {
	return (d.amount0 == nil || d.amount0.Sign() == 0) && (d.amount1 == nil || d.amount1.Sign() == 0)
}

// Add returns d + o with both components checked against int128 bounds.
func (d Delta) Add(o Delta) (Delta, error) {
	a0 := new(big.Int).Add(d.Amount0(), o.Amount0())
	a1 := new(big.Int).Add(d.Amount1(), o.Amount1())
	if err := CheckInt128(a0); err != nil {
		return Delta{}, err
	}
	if err := CheckInt128(a1); err != nil {
		return Delta{}, err
	}
	return Delta{amount0: a0, amount1: a1}, nil
}

// Sub returns d - o with both components checked against int128 bounds.
// Principal deltas are derived this way: principal = caller - feesAccrued.
func (d Delta) Sub(o Delta) (Delta, error) {
	a0 := new(big.Int).Sub(d.Amount0(), o.Amount0())
	a1 := new(big.Int).Sub(d.Amount1(), o.Amount1())
	if err := CheckInt128(a0); err != nil {
		return Delta{}, err
	}
	if err := CheckInt128(a1); err != nil {
		return Delta{}, err
	}
	return Delta{amount0: a0, amount1: a1}, nil
}

// Neg returns the component-wise negation of d.
func (d Delta) Neg() Delta {
	return Delta{
		amount0: new(big.Int).Neg(d.Amount0()),
		amount1: new(big.Int).Neg(d.Amount1()),
	}
}

func (d Delta) String() string {
	return fmt.Sprintf("(%s, %s)", d.Amount0(), d.Amount1())
}

// BeforeSwapDelta is the override a curve hook returns from its pre-swap
// callback, ordered (specified, unspecified) rather than (currency0,
// currency1). A fully-covering specified component instructs the ledger to
// skip its native pricing.
type BeforeSwapDelta struct {
	specified   *big.Int
	unspecified *big.Int
}

// NewBeforeSwapDelta copies both amounts; nil reads as zero.
func NewBeforeSwapDelta(specified, unspecified *big.Int) BeforeSwapDelta {
	return BeforeSwapDelta{specified: copyOrZero(specified), unspecified: copyOrZero(unspecified)}
}

func ZeroBeforeSwapDelta() BeforeSwapDelta {
	return BeforeSwapDelta{specified: new(big.Int), unspecified: new(big.Int)}
}

func (d BeforeSwapDelta) Specified() *big.Int {
	return copyOrZero(d.specified)
}

func (d BeforeSwapDelta) Unspecified() *big.Int {
	return copyOrZero(d.unspecified)
}

func (d BeforeSwapDelta) IsZero() bool {
	return (d.specified == nil || d.specified.Sign() == 0) && (d.unspecified == nil || d.unspecified.Sign() == 0)
}

// Package liquidityamounts converts between liquidity values and currency
// amounts over sqrt price ranges, and steps sqrt prices by swap amounts.
// All prices are Q64.96 fixed-point.
package liquidityamounts

import (
	"errors"
	"math/big"
)

var (
	// Q96 is the UQ64.96 fixed-point representation of 1.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// Resolution is the number of fractional bits in the Q96 format.
	Resolution = uint(96)

	ErrSqrtPriceZero   = errors.New("sqrt price must be greater than zero")
	ErrLiquidityZero   = errors.New("liquidity must be greater than zero")
	ErrPriceStepFailed = errors.New("price step out of range")

	one = big.NewInt(1)
)

// mulDiv returns (a * b) / c.
func mulDiv(a, b, c *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Div(p, c)
}

// mulDivRoundingUp returns ceil((a * b) / c).
func mulDivRoundingUp(a, b, c *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(p, c, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, one)
	}
	return q
}

// divRoundingUp returns ceil(a / b).
func divRoundingUp(a, b *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, one)
	}
	return q
}

func sorted(a, b *big.Int) (*big.Int, *big.Int) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}

// LiquidityForAmount0 computes the liquidity amount0 of currency0 provides
// over the range [sqrtRatioA, sqrtRatioB].
func LiquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0 *big.Int) (*big.Int, error) {
	lo, hi := sorted(sqrtRatioAX96, sqrtRatioBX96)
	if lo.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	intermediate := mulDiv(lo, hi, Q96)
	return mulDiv(amount0, intermediate, new(big.Int).Sub(hi, lo)), nil
}

// LiquidityForAmount1 computes the liquidity amount1 of currency1 provides
// over the range [sqrtRatioA, sqrtRatioB].
func LiquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1 *big.Int) (*big.Int, error) {
	lo, hi := sorted(sqrtRatioAX96, sqrtRatioBX96)
	if lo.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	return mulDiv(amount1, Q96, new(big.Int).Sub(hi, lo)), nil
}

// LiquidityForAmounts computes the maximum liquidity the two desired amounts
// can fund at the current price. The result never requires more than amount0
// of currency0 or amount1 of currency1.
func LiquidityForAmounts(sqrtPriceX96, sqrtRatioAX96, sqrtRatioBX96, amount0, amount1 *big.Int) (*big.Int, error) {
	lo, hi := sorted(sqrtRatioAX96, sqrtRatioBX96)

	switch {
	case sqrtPriceX96.Cmp(lo) <= 0:
		return LiquidityForAmount0(lo, hi, amount0)
	case sqrtPriceX96.Cmp(hi) < 0:
		l0, err := LiquidityForAmount0(sqrtPriceX96, hi, amount0)
		if err != nil {
			return nil, err
		}
		l1, err := LiquidityForAmount1(lo, sqrtPriceX96, amount1)
		if err != nil {
			return nil, err
		}
		if l0.Cmp(l1) < 0 {
			return l0, nil
		}
		return l1, nil
	default:
		return LiquidityForAmount1(lo, hi, amount1)
	}
}

// Amount0ForLiquidity computes the currency0 amount covered by liquidity over
// [sqrtRatioA, sqrtRatioB]. Round up when the holder must pay, down when the
// holder is paid.
func Amount0ForLiquidity(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	lo, hi := sorted(sqrtRatioAX96, sqrtRatioBX96)
	if lo.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}

	numerator1 := new(big.Int).Lsh(liquidity, Resolution)
	numerator2 := new(big.Int).Sub(hi, lo)

	if roundUp {
		return divRoundingUp(mulDivRoundingUp(numerator1, numerator2, hi), lo), nil
	}
	return new(big.Int).Div(mulDiv(numerator1, numerator2, hi), lo), nil
}

// Amount1ForLiquidity computes the currency1 amount covered by liquidity over
// [sqrtRatioA, sqrtRatioB].
func Amount1ForLiquidity(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) *big.Int {
	lo, hi := sorted(sqrtRatioAX96, sqrtRatioBX96)
	diff := new(big.Int).Sub(hi, lo)
	if roundUp {
		return mulDivRoundingUp(liquidity, diff, Q96)
	}
	return mulDiv(liquidity, diff, Q96)
}

// AmountsForLiquidity computes both currency amounts for liquidity over
// [sqrtRatioA, sqrtRatioB] at the current price.
func AmountsForLiquidity(sqrtPriceX96, sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) (amount0, amount1 *big.Int, err error) {
	lo, hi := sorted(sqrtRatioAX96, sqrtRatioBX96)

	switch {
	case sqrtPriceX96.Cmp(lo) <= 0:
		amount0, err = Amount0ForLiquidity(lo, hi, liquidity, roundUp)
		amount1 = new(big.Int)
	case sqrtPriceX96.Cmp(hi) < 0:
		amount0, err = Amount0ForLiquidity(sqrtPriceX96, hi, liquidity, roundUp)
		amount1 = Amount1ForLiquidity(lo, sqrtPriceX96, liquidity, roundUp)
	default:
		amount0 = new(big.Int)
		amount1 = Amount1ForLiquidity(lo, hi, liquidity, roundUp)
	}
	return amount0, amount1, err
}

// NextSqrtPriceFromInput returns the price after amountIn of the input
// currency is added to liquidity at sqrtPriceX96.
func NextSqrtPriceFromInput(sqrtPriceX96, liquidity, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPriceX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount0RoundingUp(sqrtPriceX96, liquidity, amountIn, true)
	}
	return nextSqrtPriceFromAmount1RoundingDown(sqrtPriceX96, liquidity, amountIn, true)
}

// NextSqrtPriceFromOutput returns the price after amountOut of the output
// currency is removed from liquidity at sqrtPriceX96.
func NextSqrtPriceFromOutput(sqrtPriceX96, liquidity, amountOut *big.Int, zeroForOne bool) (*big.Int, error) {
	if sqrtPriceX96.Sign() <= 0 {
		return nil, ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return nil, ErrLiquidityZero
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount1RoundingDown(sqrtPriceX96, liquidity, amountOut, false)
	}
	return nextSqrtPriceFromAmount0RoundingUp(sqrtPriceX96, liquidity, amountOut, false)
}

func nextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtPX96), nil
	}
	numerator1 := new(big.Int).Lsh(liquidity, Resolution)
	product := new(big.Int).Mul(amount, sqrtPX96)

	if add {
		denominator := new(big.Int).Add(numerator1, product)
		return mulDivRoundingUp(numerator1, sqrtPX96, denominator), nil
	}
	if numerator1.Cmp(product) <= 0 {
		return nil, ErrPriceStepFailed
	}
	denominator := new(big.Int).Sub(numerator1, product)
	return mulDivRoundingUp(numerator1, sqrtPX96, denominator), nil
}

func nextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if add {
		quotient := mulDiv(amount, Q96, liquidity)
		return new(big.Int).Add(sqrtPX96, quotient), nil
	}
	quotient := mulDivRoundingUp(amount, Q96, liquidity)
	if sqrtPX96.Cmp(quotient) <= 0 {
		return nil, ErrPriceStepFailed
	}
	return new(big.Int).Sub(sqrtPX96, quotient), nil
}

package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DeluxeRaph/uniswap-hooks/deltamath"
	"github.com/DeluxeRaph/uniswap-hooks/liquidityamounts"
	"github.com/DeluxeRaph/uniswap-hooks/tickmath"
	"github.com/DeluxeRaph/uniswap-hooks/types"
)

var (
	feeDenominator = big.NewInt(1_000_000)
	one            = big.NewInt(1)
)

// Swap executes a swap against the pool and settles both legs with the
// sender's external balances. A hook with the override permission may price
// part or all of the specified amount before the native step runs; whatever
// remains is priced against current-range liquidity. Any failure rewinds all
// state the call touched.
func (pm *PoolManager) Swap(sender common.Address, key types.PoolKey, p types.SwapParams) (deltamath.Delta, error) {
	zero := deltamath.ZeroDelta()
	pl, ok := pm.pools[key.ID()]
	if !ok {
		return zero, ErrPoolNotInitialized
	}
	if p.AmountSpecified == nil || p.AmountSpecified.Sign() == 0 {
		return zero, ErrSwapAmountZero
	}

	snap := pm.Snapshot()
	delta, err := pm.swap(pl, sender, key, p)
	if err != nil {
		pm.Restore(snap)
		return zero, err
	}
	return delta, nil
}

func (pm *PoolManager) swap(pl *pool, sender common.Address, key types.PoolKey, p types.SwapParams) (deltamath.Delta, error) {
	zero := deltamath.ZeroDelta()

	// Validate the trader's limit against the pre-swap price up front: an
	// override hook may consume the whole specified amount, and a malformed
	// limit must not ride along unchecked.
	limit, err := effectivePriceLimit(p, pl.sqrtPriceX96)
	if err != nil {
		return zero, err
	}

	hookDelta := deltamath.ZeroBeforeSwapDelta()
	if pl.hook != nil && pl.perms.BeforeSwap && sender != pl.hook.Address() {
		hookDelta, err = pl.hook.BeforeSwap(sender, key, p)
		if err != nil {
			return zero, err
		}
		if !pl.perms.BeforeSwapReturnsDelta && !hookDelta.IsZero() {
			return zero, ErrHookDeltaNotAllowed
		}
	}

	remaining := new(big.Int).Add(p.AmountSpecified, hookDelta.Specified())
	if remaining.Sign() != 0 && remaining.Sign() != p.AmountSpecified.Sign() {
		return zero, ErrHookDeltaExceedsSwap
	}

	// The trader's obligations mirror the hook's override delta.
	traderSpecified := new(big.Int).Neg(hookDelta.Specified())
	traderUnspecified := new(big.Int).Neg(hookDelta.Unspecified())

	if remaining.Sign() != 0 {
		if pl.liquidity.Sign() == 0 {
			return zero, ErrNoLiquidity
		}
		next, amountIn, amountOut, feeAmount, err := swapStep(pl.sqrtPriceX96, pl.liquidity, remaining, p.ZeroForOne, key.Fee, limit)
		if err != nil {
			return zero, err
		}
		pl.sqrtPriceX96 = next
		if feeAmount.Sign() > 0 {
			growthDelta := mulShift128Div(feeAmount, pl.liquidity)
			if p.ZeroForOne {
				pl.feeGrowth0X128.Add(pl.feeGrowth0X128, growthDelta)
			} else {
				pl.feeGrowth1X128.Add(pl.feeGrowth1X128, growthDelta)
			}
		}

		totalIn := new(big.Int).Add(amountIn, feeAmount)
		if p.ExactInput() {
			traderSpecified.Sub(traderSpecified, totalIn)
			traderUnspecified.Add(traderUnspecified, amountOut)
		} else {
			traderSpecified.Add(traderSpecified, amountOut)
			traderUnspecified.Sub(traderUnspecified, totalIn)
		}
	}

	var amount0, amount1 *big.Int
	if p.SpecifiedIsCurrency0() {
		amount0, amount1 = traderSpecified, traderUnspecified
	} else {
		amount0, amount1 = traderUnspecified, traderSpecified
	}
	if err := deltamath.CheckInt128(amount0); err != nil {
		return zero, err
	}
	if err := deltamath.CheckInt128(amount1); err != nil {
		return zero, err
	}
	delta := deltamath.NewDelta(amount0, amount1)

	if err := pm.settleWithSender(key.Currency0, sender, amount0); err != nil {
		return zero, err
	}
	if err := pm.settleWithSender(key.Currency1, sender, amount1); err != nil {
		return zero, err
	}
	pm.log.Debug("swap executed", "pool", key.ID().Hex(), "delta", delta)
	return delta, nil
}

func (pm *PoolManager) settleWithSender(c types.Currency, sender common.Address, amount *big.Int) error {
	switch amount.Sign() {
	case -1:
		return pm.PayIn(c, sender, new(big.Int).Neg(amount))
	case 1:
		return pm.PayOut(c, sender, amount)
	}
	return nil
}

func effectivePriceLimit(p types.SwapParams, current *big.Int) (*big.Int, error) {
	limit := p.SqrtPriceLimitX96
	if limit == nil {
		if p.ZeroForOne {
			return new(big.Int).Add(tickmath.MinSqrtRatio, one), nil
		}
		return new(big.Int).Sub(tickmath.MaxSqrtRatio, one), nil
	}
	if p.ZeroForOne {
		if limit.Cmp(current) >= 0 || limit.Cmp(tickmath.MinSqrtRatio) < 0 {
			return nil, ErrInvalidPriceLimit
		}
	} else {
		if limit.Cmp(current) <= 0 || limit.Cmp(tickmath.MaxSqrtRatio) > 0 {
			return nil, ErrInvalidPriceLimit
		}
	}
	return limit, nil
}

// swapStep prices as much of remaining as current-range liquidity allows
// before hitting the price limit. Remaining follows the specified-amount sign
// convention: negative is exact-input, positive exact-output. Fee is taken
// from the input side in ppm.
func swapStep(sqrtPrice, liquidity, remaining *big.Int, zeroForOne bool, feePPM uint32, limit *big.Int) (next, amountIn, amountOut, feeAmount *big.Int, err error) {
	fee := new(big.Int).SetUint64(uint64(feePPM))
	feeComplement := new(big.Int).Sub(feeDenominator, fee)
	exactIn := remaining.Sign() < 0

	if exactIn {
		target := new(big.Int).Neg(remaining)
		inLessFee := mulDiv(target, feeComplement, feeDenominator)
		next, err = liquidityamounts.NextSqrtPriceFromInput(sqrtPrice, liquidity, inLessFee, zeroForOne)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		capped := clampPrice(next, limit, zeroForOne)
		amountIn, amountOut, err = amountsBetween(sqrtPrice, next, liquidity, zeroForOne)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if capped {
			feeAmount = mulDivRoundingUp(amountIn, fee, feeComplement)
		} else {
			// Exact fill: the whole target is consumed, fee is the
			// remainder after the priced input.
			feeAmount = new(big.Int).Sub(target, amountIn)
			if feeAmount.Sign() < 0 {
				feeAmount.SetInt64(0)
			}
		}
		return next, amountIn, amountOut, feeAmount, nil
	}

	target := new(big.Int).Set(remaining)
	next, err = liquidityamounts.NextSqrtPriceFromOutput(sqrtPrice, liquidity, target, zeroForOne)
	if err != nil {
		// The requested output exceeds what the range holds; fill to
		// the limit instead.
		next = new(big.Int).Set(limit)
	} else {
		clampPrice(next, limit, zeroForOne)
	}
	amountIn, amountOut, err = amountsBetween(sqrtPrice, next, liquidity, zeroForOne)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if amountOut.Cmp(target) > 0 {
		amountOut.Set(target)
	}
	feeAmount = mulDivRoundingUp(amountIn, fee, feeComplement)
	return next, amountIn, amountOut, feeAmount, nil
}

// clampPrice clamps next at limit in the direction of the swap, reporting
// whether clamping occurred.
func clampPrice(next, limit *big.Int, zeroForOne bool) bool {
	if zeroForOne {
		if next.Cmp(limit) < 0 {
			next.Set(limit)
			return true
		}
	} else if next.Cmp(limit) > 0 {
		next.Set(limit)
		return true
	}
	return false
}

func amountsBetween(from, to, liquidity *big.Int, zeroForOne bool) (amountIn, amountOut *big.Int, err error) {
	if zeroForOne {
		amountIn, err = liquidityamounts.Amount0ForLiquidity(to, from, liquidity, true)
		if err != nil {
			return nil, nil, err
		}
		amountOut = liquidityamounts.Amount1ForLiquidity(to, from, liquidity, false)
		return amountIn, amountOut, nil
	}
	amountIn = liquidityamounts.Amount1ForLiquidity(from, to, liquidity, true)
	amountOut, err = liquidityamounts.Amount0ForLiquidity(from, to, liquidity, false)
	if err != nil {
		return nil, nil, err
	}
	return amountIn, amountOut, nil
}

func mulDiv(a, b, c *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	return p.Div(p, c)
}

func mulDivRoundingUp(a, b, c *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(p, c, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, one)
	}
	return q
}

package accounting

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DeluxeRaph/uniswap-hooks/deltamath"
	"github.com/DeluxeRaph/uniswap-hooks/liquidityamounts"
	"github.com/DeluxeRaph/uniswap-hooks/shares"
	"github.com/DeluxeRaph/uniswap-hooks/tickmath"
	"github.com/DeluxeRaph/uniswap-hooks/types"
)

var (
	ErrNoLiquidityForAmounts = errors.New("desired amounts fund no liquidity")
	ErrNonPositiveShares     = errors.New("share amount must be positive")
)

// Strategy supplies the pluggable math of the accounting core: how desired
// amounts become a ledger-level liquidity delta, and how shares are minted
// and burned. The core depends only on this interface. Both deltas are passed
// to the share functions so fee-bearing share accounting is possible.
type Strategy interface {
	// AddAmounts converts an add request into the liquidity delta to apply
	// and the number of shares to mint. The returned delta must never
	// require more than the desired amounts of either currency.
	AddAmounts(sqrtPriceX96 *big.Int, p AddLiquidityParams) (types.ModifyLiquidityParams, *big.Int, error)

	// RemoveAmounts converts a remove request into the (negative)
	// liquidity delta to apply and the number of shares to burn.
	RemoveAmounts(sqrtPriceX96 *big.Int, p RemoveLiquidityParams) (types.ModifyLiquidityParams, *big.Int, error)

	MintShares(recipient common.Address, callerDelta, feesAccrued deltamath.Delta, amount *big.Int) error
	BurnShares(owner common.Address, callerDelta, feesAccrued deltamath.Delta, amount *big.Int) error
}

// Snapshotter is implemented by strategies whose share bookkeeping must
// rewind together with the ledger when a call fails after minting.
type Snapshotter interface {
	Snapshot() any
	Restore(snap any)
}

// ProRataStrategy is the default strategy: liquidity is priced with the
// standard range math and shares track ledger liquidity one to one, so total
// supply always equals the pool's owned liquidity.
type ProRataStrategy struct {
	shares *shares.Ledger
}

func NewProRataStrategy() *ProRataStrategy {
	return &ProRataStrategy{shares: shares.New()}
}

// Shares exposes the backing share ledger.
func (s *ProRataStrategy) Shares() *shares.Ledger {
	return s.shares
}

func (s *ProRataStrategy) AddAmounts(sqrtPriceX96 *big.Int, p AddLiquidityParams) (types.ModifyLiquidityParams, *big.Int, error) {
	sqrtA, err := tickmath.SqrtRatioAtTick(p.TickLower)
	if err != nil {
		return types.ModifyLiquidityParams{}, nil, err
	}
	sqrtB, err := tickmath.SqrtRatioAtTick(p.TickUpper)
	if err != nil {
		return types.ModifyLiquidityParams{}, nil, err
	}
	liquidity, err := liquidityamounts.LiquidityForAmounts(sqrtPriceX96, sqrtA, sqrtB, p.Amount0Desired, p.Amount1Desired)
	if err != nil {
		return types.ModifyLiquidityParams{}, nil, err
	}
	if liquidity.Sign() == 0 {
		return types.ModifyLiquidityParams{}, nil, ErrNoLiquidityForAmounts
	}
	mp := types.ModifyLiquidityParams{
		TickLower:      p.TickLower,
		TickUpper:      p.TickUpper,
		LiquidityDelta: liquidity,
		Salt:           p.Salt,
	}
	return mp, new(big.Int).Set(liquidity), nil
}

func (s *ProRataStrategy) RemoveAmounts(sqrtPriceX96 *big.Int, p RemoveLiquidityParams) (types.ModifyLiquidityParams, *big.Int, error) {
	if p.Shares == nil || p.Shares.Sign() <= 0 {
		return types.ModifyLiquidityParams{}, nil, ErrNonPositiveShares
	}
	mp := types.ModifyLiquidityParams{
		TickLower:      p.TickLower,
		TickUpper:      p.TickUpper,
		LiquidityDelta: new(big.Int).Neg(p.Shares),
		Salt:           p.Salt,
	}
	return mp, new(big.Int).Set(p.Shares), nil
}

func (s *ProRataStrategy) MintShares(recipient common.Address, _, _ deltamath.Delta, amount *big.Int) error {
	return s.shares.Mint(recipient, amount)
}

func (s *ProRataStrategy) BurnShares(owner common.Address, _, _ deltamath.Delta, amount *big.Int) error {
	return s.shares.Burn(owner, amount)
}

func (s *ProRataStrategy) Snapshot() any {
	return s.shares.Snapshot()
}

func (s *ProRataStrategy) Restore(snap any) {
	s.shares.Restore(snap)
}

// Package curve implements a hook that replaces the pool's native pricing
// with its own. Every swap is intercepted before the native step and priced
// by a pluggable quoter against reserves the hook holds as claim tokens;
// the native step then sees nothing left to price. Liquidity flows through
// the accounting core, with settlement mirrored into claim tokens so the
// hook is the ledger-visible counterparty for all swap legs.
package curve

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DeluxeRaph/uniswap-hooks/accounting"
	"github.com/DeluxeRaph/uniswap-hooks/deltamath"
	"github.com/DeluxeRaph/uniswap-hooks/ledger"
	"github.com/DeluxeRaph/uniswap-hooks/settle"
	"github.com/DeluxeRaph/uniswap-hooks/types"
)

var (
	ErrNilQuoter        = errors.New("config: Quoter cannot be nil")
	ErrNonPositiveQuote = errors.New("quoter returned a non-positive amount")
)

// Config configures a curve hook. All accounting fields apply; Settler must
// be left unset, the hook installs its own claim-token settlement.
type Config struct {
	Address  common.Address
	Ledger   ledger.Ledger
	Strategy accounting.Strategy
	Logger   ledger.Logger
	Registry prometheus.Registerer
	Quoter   Quoter
}

// Curve is the custom-pricing hook. It extends the accounting core: liquidity
// management is inherited unchanged, while the swap path and the settlement
// mode are overridden.
type Curve struct {
	*accounting.Accounting

	ledger  ledger.Ledger
	quoter  Quoter
	metrics *metrics
}

// New constructs a curve hook from a configuration.
func New(cfg *Config) (*Curve, error) {
	if cfg.Quoter == nil {
		return nil, ErrNilQuoter
	}
	c := &Curve{
		ledger: cfg.Ledger,
		quoter: cfg.Quoter,
	}
	core, err := accounting.New(&accounting.Config{
		Address:  cfg.Address,
		Ledger:   cfg.Ledger,
		Strategy: cfg.Strategy,
		Logger:   cfg.Logger,
		Registry: cfg.Registry,
		Settler:  accounting.SettlerFunc(c.settleClaims),
	})
	if err != nil {
		return nil, err
	}
	c.Accounting = core
	c.metrics = newMetrics(cfg.Registry)
	return c, nil
}

// Permissions extends the accounting capability table with swap interception
// and the delta-override right it requires.
func (c *Curve) Permissions() types.Permissions {
	p := c.Accounting.Permissions()
	p.BeforeSwap = true
	p.BeforeSwapReturnsDelta = true
	return p
}

// BeforeSwap prices the entire specified amount with the quoter and settles
// both legs against the hook's claim-token reserves. The returned delta
// consumes the whole specified amount, so the native pricing step is a
// no-op for every swap against this pool.
func (c *Curve) BeforeSwap(sender common.Address, key types.PoolKey, p types.SwapParams) (deltamath.BeforeSwapDelta, error) {
	delta, err := c.beforeSwap(key, p)
	c.metrics.observe(err)
	return delta, err
}

func (c *Curve) beforeSwap(key types.PoolKey, p types.SwapParams) (deltamath.BeforeSwapDelta, error) {
	zero := deltamath.ZeroBeforeSwapDelta()
	specifiedAmount := new(big.Int).Abs(p.AmountSpecified)
	unspecifiedAmount, err := c.quoter.QuoteUnspecified(QuoteParams{
		ExactInput:      p.ExactInput(),
		ZeroForOne:      p.ZeroForOne,
		SpecifiedAmount: new(big.Int).Set(specifiedAmount),
	})
	if err != nil {
		return zero, err
	}
	if unspecifiedAmount == nil || unspecifiedAmount.Sign() <= 0 {
		return zero, ErrNonPositiveQuote
	}
	if err := deltamath.CheckInt128(specifiedAmount); err != nil {
		return zero, err
	}
	if err := deltamath.CheckInt128(unspecifiedAmount); err != nil {
		return zero, err
	}

	specified, unspecified := key.Currency1, key.Currency0
	if p.SpecifiedIsCurrency0() {
		specified, unspecified = key.Currency0, key.Currency1
	}

	if p.ExactInput() {
		// Input arrives as the specified currency: claim it, and pay the
		// output from claims.
		if err := settle.Take(c.ledger, specified, c.Address(), specifiedAmount, true); err != nil {
			return zero, err
		}
		if err := settle.Settle(c.ledger, unspecified, c.Address(), unspecifiedAmount, true); err != nil {
			return zero, err
		}
		return deltamath.NewBeforeSwapDelta(specifiedAmount, new(big.Int).Neg(unspecifiedAmount)), nil
	}

	// Exact output: the specified currency is owed to the trader, the
	// unspecified currency is the input the hook claims.
	if err := settle.Settle(c.ledger, specified, c.Address(), specifiedAmount, true); err != nil {
		return zero, err
	}
	if err := settle.Take(c.ledger, unspecified, c.Address(), unspecifiedAmount, true); err != nil {
		return zero, err
	}
	return deltamath.NewBeforeSwapDelta(new(big.Int).Neg(specifiedAmount), unspecifiedAmount), nil
}

// settleClaims reconciles liquidity deltas with the hook as counterparty:
// deposited assets land in manager reserves with a matching claim minted to
// the hook, and withdrawals burn hook claims before releasing reserves.
func (c *Curve) settleClaims(sender common.Address, key types.PoolKey, d deltamath.Delta) error {
	legs := []struct {
		currency types.Currency
		amount   *big.Int
	}{
		{key.Currency0, d.Amount0()},
		{key.Currency1, d.Amount1()},
	}
	for _, leg := range legs {
		switch leg.amount.Sign() {
		case -1:
			mag := new(big.Int).Neg(leg.amount)
			payer := sender
			if leg.currency.IsNative() {
				payer = c.Address()
			}
			if err := settle.Settle(c.ledger, leg.currency, payer, mag, false); err != nil {
				return err
			}
			if err := settle.Take(c.ledger, leg.currency, c.Address(), mag, true); err != nil {
				return err
			}
		case 1:
			if err := settle.Settle(c.ledger, leg.currency, c.Address(), leg.amount, true); err != nil {
				return err
			}
			if err := settle.Take(c.ledger, leg.currency, sender, leg.amount, false); err != nil {
				return err
			}
		}
	}
	return nil
}

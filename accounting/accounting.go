// Package accounting implements a hook that owns pooled liquidity on behalf
// of its depositors. The pool's ledger-native liquidity entrypoints are
// permanently disabled; liquidity moves only through the hook's own add and
// remove operations, which run the ledger's unlock/callback protocol, settle
// signed deltas for both currencies, and mint or burn liquidity shares.
package accounting

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DeluxeRaph/uniswap-hooks/deltamath"
	"github.com/DeluxeRaph/uniswap-hooks/ledger"
	"github.com/DeluxeRaph/uniswap-hooks/settle"
	"github.com/DeluxeRaph/uniswap-hooks/types"
)

var (
	ErrAlreadyInitialized        = errors.New("pool identity already bound")
	ErrPoolNotInitialized        = errors.New("pool not initialized")
	ErrExpiredPastDeadline       = errors.New("deadline has passed")
	ErrTooMuchSlippage           = errors.New("received amount below minimum")
	ErrLiquidityOnlyViaHook      = errors.New("liquidity can only be modified through the hook")
	ErrInvalidNativeValue        = errors.New("invalid native value")
	ErrNotPoolManager            = errors.New("callback sender is not the pool manager")
	ErrWrongPool                 = errors.New("pool key does not match this hook")
	ErrUnexpectedCallbackPayload = errors.New("unexpected callback payload")
)

// Settler reconciles a caller delta against the original caller inside the
// unlock window. The default settles in external-asset mode; curve hooks
// substitute a claim-token settler.
type Settler interface {
	SettleDelta(sender common.Address, key types.PoolKey, callerDelta deltamath.Delta) error
}

// SettlerFunc adapts a function to the Settler interface.
type SettlerFunc func(sender common.Address, key types.PoolKey, callerDelta deltamath.Delta) error

func (f SettlerFunc) SettleDelta(sender common.Address, key types.PoolKey, callerDelta deltamath.Delta) error {
	return f(sender, key, callerDelta)
}

// Config configures an accounting hook.
type Config struct {
	// Address is the hook's own account; required and immutable.
	Address common.Address
	// Ledger is the external pool manager; required.
	Ledger ledger.Ledger
	// Strategy supplies the pluggable amounts and share math; required.
	Strategy Strategy
	// Logger and Registry are required, matching the rest of the module.
	Logger   ledger.Logger
	Registry prometheus.Registerer
	// Now is the clock used for deadline checks; defaults to time.Now.
	Now func() time.Time
	// Settler overrides callback settlement; defaults to external-asset
	// mode against the original caller.
	Settler Settler
}

func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: Address cannot be zero")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger cannot be nil")
	}
	if c.Strategy == nil {
		return errors.New("config: Strategy cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	return nil
}

// Accounting is the liquidity-and-swap accounting core. One instance serves
// exactly one pool: the pool identity is bound once, at initialization, and
// never changes.
type Accounting struct {
	addr     common.Address
	ledger   ledger.Ledger
	strategy Strategy
	settler  Settler
	log      ledger.Logger
	metrics  *metrics
	now      func() time.Time

	poolKey types.PoolKey
	bound   bool
}

// New constructs an accounting hook from a configuration.
func New(cfg *Config) (*Accounting, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	a := &Accounting{
		addr:     cfg.Address,
		ledger:   cfg.Ledger,
		strategy: cfg.Strategy,
		log:      cfg.Logger,
		metrics:  newMetrics(cfg.Registry),
		now:      cfg.Now,
	}
	if a.now == nil {
		a.now = time.Now
	}
	a.settler = cfg.Settler
	if a.settler == nil {
		a.settler = SettlerFunc(a.settleExternal)
	}
	return a, nil
}

func (a *Accounting) Address() common.Address {
	return a.addr
}

// Permissions declares the callbacks this hook participates in. Everything
// else stays disabled.
func (a *Accounting) Permissions() types.Permissions {
	return types.Permissions{
		BeforeInitialize:      true,
		BeforeAddLiquidity:    true,
		BeforeRemoveLiquidity: true,
	}
}

// PoolKey returns the bound pool identity, if any.
func (a *Accounting) PoolKey() (types.PoolKey, bool) {
	return a.poolKey, a.bound
}

// BeforeInitialize binds the pool identity. Binding is one-shot: any second
// attempt fails and leaves the stored identity unchanged.
func (a *Accounting) BeforeInitialize(_ common.Address, key types.PoolKey, _ *big.Int) error {
	if a.bound {
		return ErrAlreadyInitialized
	}
	if key.Hook != a.addr {
		return ErrWrongPool
	}
	a.poolKey = key
	a.bound = true
	a.log.Info("pool identity bound", "pool", key.ID().Hex())
	return nil
}

// BeforeAddLiquidity rejects every caller. The ledger skips this callback
// when the hook itself is the caller, so ledger-native liquidity entrypoints
// are permanently disabled for everyone else.
func (a *Accounting) BeforeAddLiquidity(common.Address, types.PoolKey, types.ModifyLiquidityParams) error {
	return ErrLiquidityOnlyViaHook
}

// BeforeRemoveLiquidity rejects every caller, as BeforeAddLiquidity does.
func (a *Accounting) BeforeRemoveLiquidity(common.Address, types.PoolKey, types.ModifyLiquidityParams) error {
	return ErrLiquidityOnlyViaHook
}

// BeforeSwap is not part of this hook's capability table; swaps take the
// ledger's native pricing.
func (a *Accounting) BeforeSwap(common.Address, types.PoolKey, types.SwapParams) (deltamath.BeforeSwapDelta, error) {
	return deltamath.ZeroBeforeSwapDelta(), nil
}

// AddLiquidityParams is the public add-liquidity request. Value is the
// native amount attached to the call; it must be zero unless currency0 is
// native, in which case it must equal Amount0Desired.
type AddLiquidityParams struct {
	Sender         common.Address
	Recipient      common.Address
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Deadline       time.Time
	TickLower      int64
	TickUpper      int64
	Salt           common.Hash
	Value          *big.Int
}

// RemoveLiquidityParams is the public remove-liquidity request.
type RemoveLiquidityParams struct {
	Sender     common.Address
	Shares     *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Deadline   time.Time
	TickLower  int64
	TickUpper  int64
	Salt       common.Hash
}

// AddLiquidity adds liquidity on behalf of Sender, mints shares to
// Recipient, and returns the principal delta: the net liquidity-derived
// balance change excluding accrued fees. Any failure rewinds every mutation
// the call made.
func (a *Accounting) AddLiquidity(p AddLiquidityParams) (deltamath.Delta, error) {
	timer := prometheus.NewTimer(a.metrics.duration.WithLabelValues("add_liquidity"))
	defer timer.ObserveDuration()

	delta, err := a.guarded(func() (deltamath.Delta, error) { return a.addLiquidity(p) })
	a.metrics.observe("add_liquidity", err)
	return delta, err
}

// RemoveLiquidity burns Sender's shares, withdraws the corresponding
// liquidity, and returns the principal delta. Any failure rewinds every
// mutation the call made.
func (a *Accounting) RemoveLiquidity(p RemoveLiquidityParams) (deltamath.Delta, error) {
	timer := prometheus.NewTimer(a.metrics.duration.WithLabelValues("remove_liquidity"))
	defer timer.ObserveDuration()

	delta, err := a.guarded(func() (deltamath.Delta, error) { return a.removeLiquidity(p) })
	a.metrics.observe("remove_liquidity", err)
	return delta, err
}

// guarded runs op under the host's all-or-nothing call semantics: on error
// the ledger and any snapshotting strategy rewind to their pre-call state.
func (a *Accounting) guarded(op func() (deltamath.Delta, error)) (deltamath.Delta, error) {
	snap := a.ledger.Snapshot()
	var stratSnap any
	snapshotter, snapshots := a.strategy.(Snapshotter)
	if snapshots {
		stratSnap = snapshotter.Snapshot()
	}

	delta, err := op()
	if err != nil {
		a.ledger.Restore(snap)
		if snapshots {
			snapshotter.Restore(stratSnap)
		}
		return deltamath.ZeroDelta(), err
	}
	return delta, nil
}

func (a *Accounting) addLiquidity(p AddLiquidityParams) (deltamath.Delta, error) {
	zero := deltamath.ZeroDelta()
	if a.now().After(p.Deadline) {
		return zero, ErrExpiredPastDeadline
	}
	price, err := a.currentPrice()
	if err != nil {
		return zero, err
	}

	value := p.Value
	if value == nil {
		value = new(big.Int)
	}
	native := a.poolKey.Currency0.IsNative()
	if !native {
		if value.Sign() != 0 {
			return zero, ErrInvalidNativeValue
		}
	} else if p.Amount0Desired == nil || value.Cmp(p.Amount0Desired) != 0 {
		return zero, ErrInvalidNativeValue
	}

	// Escrow the attached native value with the hook; the callback pays
	// native obligations out of this escrow.
	if native && value.Sign() > 0 {
		if err := a.ledger.Transfer(types.Native, p.Sender, a.addr, value); err != nil {
			return zero, err
		}
	}

	mp, sharesAmount, err := a.strategy.AddAmounts(price, p)
	if err != nil {
		return zero, err
	}

	callerDelta, feesAccrued, err := a.modifyLiquidity(p.Sender, mp)
	if err != nil {
		return zero, err
	}
	principal, err := callerDelta.Sub(feesAccrued)
	if err != nil {
		return zero, err
	}
	received0 := new(big.Int).Neg(principal.Amount0())
	received1 := new(big.Int).Neg(principal.Amount1())

	// Minting precedes the slippage check so share bookkeeping reflects
	// the executed liquidity; a slippage failure unwinds both.
	if err := a.strategy.MintShares(p.Recipient, callerDelta, feesAccrued, sharesAmount); err != nil {
		return zero, err
	}
	if belowMin(received0, p.Amount0Min) || belowMin(received1, p.Amount1Min) {
		return zero, fmt.Errorf("%w: received (%s, %s), minimum (%s, %s)",
			ErrTooMuchSlippage, received0, received1, orZero(p.Amount0Min), orZero(p.Amount1Min))
	}

	if native {
		refund := new(big.Int).Sub(value, received0)
		if refund.Sign() > 0 {
			if err := a.ledger.Transfer(types.Native, a.addr, p.Sender, refund); err != nil {
				return zero, err
			}
		}
	}

	a.log.Debug("liquidity added", "sender", p.Sender.Hex(), "principal", principal, "shares", sharesAmount)
	return principal, nil
}

func (a *Accounting) removeLiquidity(p RemoveLiquidityParams) (deltamath.Delta, error) {
	zero := deltamath.ZeroDelta()
	if a.now().After(p.Deadline) {
		return zero, ErrExpiredPastDeadline
	}
	price, err := a.currentPrice()
	if err != nil {
		return zero, err
	}

	mp, sharesAmount, err := a.strategy.RemoveAmounts(price, p)
	if err != nil {
		return zero, err
	}

	callerDelta, feesAccrued, err := a.modifyLiquidity(p.Sender, mp)
	if err != nil {
		return zero, err
	}
	principal, err := callerDelta.Sub(feesAccrued)
	if err != nil {
		return zero, err
	}

	if err := a.strategy.BurnShares(p.Sender, callerDelta, feesAccrued, sharesAmount); err != nil {
		return zero, err
	}
	if belowMin(principal.Amount0(), p.Amount0Min) || belowMin(principal.Amount1(), p.Amount1Min) {
		return zero, fmt.Errorf("%w: received (%s, %s), minimum (%s, %s)",
			ErrTooMuchSlippage, principal.Amount0(), principal.Amount1(), orZero(p.Amount0Min), orZero(p.Amount1Min))
	}

	a.log.Debug("liquidity removed", "sender", p.Sender.Hex(), "principal", principal, "shares", sharesAmount)
	return principal, nil
}

func (a *Accounting) currentPrice() (*big.Int, error) {
	if !a.bound {
		return nil, ErrPoolNotInitialized
	}
	price := a.ledger.SqrtPriceX96(a.poolKey.ID())
	if price.Sign() == 0 {
		return nil, ErrPoolNotInitialized
	}
	return price, nil
}

type callbackData struct {
	sender common.Address
	params types.ModifyLiquidityParams
}

type callbackResult struct {
	callerDelta deltamath.Delta
	feesAccrued deltamath.Delta
}

// positionSalt namespaces the ledger-level salt by the original caller. The
// ledger keys positions by (hook, ticks, salt), so without this two providers
// reusing an explicit salt would share one position and each other's accrued
// fees.
func positionSalt(sender common.Address, explicit common.Hash) common.Hash {
	return crypto.Keccak256Hash(sender.Bytes(), explicit.Bytes())
}

// modifyLiquidity runs the ledger mutation round-trip: it wraps the request
// and the original caller into a callback payload, opens the unlock window,
// and returns the deltas the window produced.
func (a *Accounting) modifyLiquidity(sender common.Address, mp types.ModifyLiquidityParams) (deltamath.Delta, deltamath.Delta, error) {
	zero := deltamath.ZeroDelta()
	mp.Salt = positionSalt(sender, mp.Salt)
	res, err := a.ledger.Unlock(a, callbackData{sender: sender, params: mp})
	if err != nil {
		return zero, zero, err
	}
	cbr, ok := res.(callbackResult)
	if !ok {
		return zero, zero, ErrUnexpectedCallbackPayload
	}
	return cbr.callerDelta, cbr.feesAccrued, nil
}

// UnlockCallback is invoked by the ledger, and only the ledger, inside the
// unlock window. It applies the embedded liquidity request and settles the
// resulting caller delta against the original caller, one currency at a
// time.
func (a *Accounting) UnlockCallback(sender common.Address, data any) (any, error) {
	if sender != a.ledger.Address() {
		return nil, ErrNotPoolManager
	}
	cd, ok := data.(callbackData)
	if !ok {
		return nil, ErrUnexpectedCallbackPayload
	}

	callerDelta, feesAccrued, err := a.ledger.ModifyLiquidity(a.addr, a.poolKey, cd.params)
	if err != nil {
		return nil, err
	}
	if err := a.settler.SettleDelta(cd.sender, a.poolKey, callerDelta); err != nil {
		return nil, err
	}
	return callbackResult{callerDelta: callerDelta, feesAccrued: feesAccrued}, nil
}

// settleExternal reconciles the caller delta in external-asset mode:
// negative components are pulled from the caller, non-negative components
// pushed to the caller. Native obligations are paid from the hook's escrow.
func (a *Accounting) settleExternal(sender common.Address, key types.PoolKey, d deltamath.Delta) error {
	legs := []struct {
		currency types.Currency
		amount   *big.Int
	}{
		{key.Currency0, d.Amount0()},
		{key.Currency1, d.Amount1()},
	}
	for _, leg := range legs {
		if leg.amount.Sign() < 0 {
			payer := sender
			if leg.currency.IsNative() {
				payer = a.addr
			}
			if err := settle.Settle(a.ledger, leg.currency, payer, new(big.Int).Neg(leg.amount), false); err != nil {
				return err
			}
		} else if err := settle.Take(a.ledger, leg.currency, sender, leg.amount, false); err != nil {
			return err
		}
	}
	return nil
}

func belowMin(received, min *big.Int) bool {
	if min == nil {
		return false
	}
	return received.Cmp(min) < 0
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}

package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/DeluxeRaph/uniswap-hooks/deltamath"
	"github.com/DeluxeRaph/uniswap-hooks/liquidityamounts"
	"github.com/DeluxeRaph/uniswap-hooks/tickmath"
	"github.com/DeluxeRaph/uniswap-hooks/types"
)

var q128 = new(big.Int).Lsh(big.NewInt(1), 128)

// Config configures a PoolManager.
type Config struct {
	// Address is the manager's account identity; required.
	Address common.Address
	// Logger is optional; a no-op logger is used when nil.
	Logger Logger
}

func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: Address cannot be zero")
	}
	return nil
}

// PoolManager is an in-memory pool manager. It owns external balances, claim
// tokens, and pool state, and dispatches hook callbacks per each pool's
// declared permissions. It is not safe for concurrent use: the host
// serializes top-level calls, matching the single-threaded call semantics of
// the real ledger.
type PoolManager struct {
	addr common.Address
	log  Logger

	pools    map[types.PoolID]*pool
	balances map[types.Currency]map[common.Address]*big.Int
	claims   map[types.Currency]map[common.Address]*big.Int
	reserves map[types.Currency]*big.Int

	unlocking bool
}

type pool struct {
	key  types.PoolKey
	hook Hook
	// perms is captured at initialization; hooks cannot widen their
	// capability table afterwards.
	perms types.Permissions

	sqrtPriceX96 *big.Int
	liquidity    *big.Int

	feeGrowth0X128 *big.Int
	feeGrowth1X128 *big.Int

	positions map[common.Hash]*position
}

type position struct {
	liquidity          *big.Int
	feeGrowth0LastX128 *big.Int
	feeGrowth1LastX128 *big.Int
}

// NewPoolManager constructs a manager from a configuration.
func NewPoolManager(cfg *Config) (*PoolManager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = noopLogger{}
	}
	return &PoolManager{
		addr:     cfg.Address,
		log:      log,
		pools:    make(map[types.PoolID]*pool),
		balances: make(map[types.Currency]map[common.Address]*big.Int),
		claims:   make(map[types.Currency]map[common.Address]*big.Int),
		reserves: make(map[types.Currency]*big.Int),
	}, nil
}

func (pm *PoolManager) Address() common.Address {
	return pm.addr
}

// Initialize creates a pool for key at the given starting price. If the key
// names a hook, the hook instance must be supplied and its BeforeInitialize
// callback (when declared) runs before any state is created; a callback error
// leaves the manager unchanged.
func (pm *PoolManager) Initialize(sender common.Address, key types.PoolKey, sqrtPriceX96 *big.Int, hook Hook) (types.PoolID, error) {
	if err := key.Validate(); err != nil {
		return types.PoolID{}, err
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(tickmath.MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(tickmath.MaxSqrtRatio) > 0 {
		return types.PoolID{}, ErrInvalidSqrtPrice
	}
	id := key.ID()
	if _, ok := pm.pools[id]; ok {
		return types.PoolID{}, ErrPoolAlreadyInitialized
	}

	var perms types.Permissions
	if key.Hook != (common.Address{}) {
		if hook == nil || hook.Address() != key.Hook {
			return types.PoolID{}, ErrHookAddressMismatch
		}
		perms = hook.Permissions()
		if perms.BeforeInitialize {
			if err := hook.BeforeInitialize(sender, key, new(big.Int).Set(sqrtPriceX96)); err != nil {
				return types.PoolID{}, fmt.Errorf("beforeInitialize: %w", err)
			}
		}
	} else if hook != nil {
		return types.PoolID{}, ErrHookAddressMismatch
	}

	pm.pools[id] = &pool{
		key:            key,
		hook:           hook,
		perms:          perms,
		sqrtPriceX96:   new(big.Int).Set(sqrtPriceX96),
		liquidity:      new(big.Int),
		feeGrowth0X128: new(big.Int),
		feeGrowth1X128: new(big.Int),
		positions:      make(map[common.Hash]*position),
	}
	pm.log.Debug("pool initialized", "pool", id.Hex(), "sqrtPrice", sqrtPriceX96)
	return id, nil
}

// SqrtPriceX96 returns the current pool price, or zero for an uninitialized
// pool.
func (pm *PoolManager) SqrtPriceX96(id types.PoolID) *big.Int {
	if p, ok := pm.pools[id]; ok {
		return new(big.Int).Set(p.sqrtPriceX96)
	}
	return new(big.Int)
}

// Unlock opens the callback window and synchronously invokes the handler.
// The manager permits exactly one window at a time.
func (pm *PoolManager) Unlock(h UnlockHandler, data any) (any, error) {
	if h == nil {
		return nil, ErrNilUnlockHandler
	}
	if pm.unlocking {
		return nil, ErrAlreadyUnlocked
	}
	pm.unlocking = true
	defer func() { pm.unlocking = false }()
	return h.UnlockCallback(pm.addr, data)
}

// ModifyLiquidity changes the sender's position inside the current unlock
// window. It returns the caller delta (principal plus accrued fees) and the
// fee-only component separately; settlement is the callback's business, not
// this method's.
func (pm *PoolManager) ModifyLiquidity(sender common.Address, key types.PoolKey, p types.ModifyLiquidityParams) (deltamath.Delta, deltamath.Delta, error) {
	zero := deltamath.ZeroDelta()
	if !pm.unlocking {
		return zero, zero, ErrManagerLocked
	}
	pl, ok := pm.pools[key.ID()]
	if !ok {
		return zero, zero, ErrPoolNotInitialized
	}
	if err := p.Validate(tickmath.MinTick, tickmath.MaxTick); err != nil {
		return zero, zero, err
	}

	if pl.hook != nil && sender != pl.hook.Address() {
		if p.LiquidityDelta != nil && p.LiquidityDelta.Sign() < 0 {
			if pl.perms.BeforeRemoveLiquidity {
				if err := pl.hook.BeforeRemoveLiquidity(sender, key, p); err != nil {
					return zero, zero, err
				}
			}
		} else if pl.perms.BeforeAddLiquidity {
			if err := pl.hook.BeforeAddLiquidity(sender, key, p); err != nil {
				return zero, zero, err
			}
		}
	}

	sqrtA, err := tickmath.SqrtRatioAtTick(p.TickLower)
	if err != nil {
		return zero, zero, err
	}
	sqrtB, err := tickmath.SqrtRatioAtTick(p.TickUpper)
	if err != nil {
		return zero, zero, err
	}

	posKey := positionKey(sender, p.TickLower, p.TickUpper, p.Salt)
	pos, ok := pl.positions[posKey]
	if !ok {
		pos = &position{
			liquidity:          new(big.Int),
			feeGrowth0LastX128: new(big.Int).Set(pl.feeGrowth0X128),
			feeGrowth1LastX128: new(big.Int).Set(pl.feeGrowth1X128),
		}
		pl.positions[posKey] = pos
	}

	// Fees accrued since the position was last touched.
	owed0 := growthOwed(pos.liquidity, pl.feeGrowth0X128, pos.feeGrowth0LastX128)
	owed1 := growthOwed(pos.liquidity, pl.feeGrowth1X128, pos.feeGrowth1LastX128)
	pos.feeGrowth0LastX128.Set(pl.feeGrowth0X128)
	pos.feeGrowth1LastX128.Set(pl.feeGrowth1X128)

	delta := p.LiquidityDelta
	if delta == nil {
		delta = new(big.Int)
	}

	newPosLiquidity := new(big.Int)
	if err := deltamath.AddLiquidityDelta(newPosLiquidity, pos.liquidity, delta); err != nil {
		return zero, zero, err
	}
	newPoolLiquidity := new(big.Int)
	if err := deltamath.AddLiquidityDelta(newPoolLiquidity, pl.liquidity, delta); err != nil {
		return zero, zero, err
	}

	principal0, principal1 := new(big.Int), new(big.Int)
	switch delta.Sign() {
	case 1:
		// Caller funds the liquidity: round against the caller.
		a0, a1, err := liquidityamounts.AmountsForLiquidity(pl.sqrtPriceX96, sqrtA, sqrtB, delta, true)
		if err != nil {
			return zero, zero, err
		}
		principal0.Neg(a0)
		principal1.Neg(a1)
	case -1:
		abs := new(big.Int).Neg(delta)
		a0, a1, err := liquidityamounts.AmountsForLiquidity(pl.sqrtPriceX96, sqrtA, sqrtB, abs, false)
		if err != nil {
			return zero, zero, err
		}
		principal0.Set(a0)
		principal1.Set(a1)
	}

	pos.liquidity = newPosLiquidity
	pl.liquidity = newPoolLiquidity
	if pos.liquidity.Sign() == 0 {
		delete(pl.positions, posKey)
	}

	feesAccrued := deltamath.NewDelta(owed0, owed1)
	callerDelta, err := deltamath.NewDelta(principal0, principal1).Add(feesAccrued)
	if err != nil {
		return zero, zero, err
	}
	pm.log.Debug("liquidity modified",
		"pool", key.ID().Hex(), "delta", delta, "callerDelta", callerDelta, "fees", feesAccrued)
	return callerDelta, feesAccrued, nil
}

// Donate pays fees into the pool on behalf of sender, accruing them to open
// positions pro rata by liquidity.
func (pm *PoolManager) Donate(sender common.Address, key types.PoolKey, amount0, amount1 *big.Int) error {
	pl, ok := pm.pools[key.ID()]
	if !ok {
		return ErrPoolNotInitialized
	}
	if pl.liquidity.Sign() == 0 {
		return ErrNoLiquidity
	}
	if amount0 != nil && amount0.Sign() > 0 {
		if err := pm.PayIn(key.Currency0, sender, amount0); err != nil {
			return err
		}
		pl.feeGrowth0X128.Add(pl.feeGrowth0X128, mulShift128Div(amount0, pl.liquidity))
	}
	if amount1 != nil && amount1.Sign() > 0 {
		if err := pm.PayIn(key.Currency1, sender, amount1); err != nil {
			return err
		}
		pl.feeGrowth1X128.Add(pl.feeGrowth1X128, mulShift128Div(amount1, pl.liquidity))
	}
	return nil
}

func positionKey(owner common.Address, tickLower, tickUpper int64, salt common.Hash) common.Hash {
	buf := make([]byte, 0, common.AddressLength+16+common.HashLength)
	buf = append(buf, owner.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(tickLower))
	buf = binary.BigEndian.AppendUint64(buf, uint64(tickUpper))
	buf = append(buf, salt.Bytes()...)
	return crypto.Keccak256Hash(buf)
}

// growthOwed returns liquidity * (growth - last) / 2^128, floored.
func growthOwed(liquidity, growth, last *big.Int) *big.Int {
	if liquidity.Sign() == 0 {
		return new(big.Int)
	}
	owed := new(big.Int).Sub(growth, last)
	owed.Mul(owed, liquidity)
	return owed.Rsh(owed, 128)
}

// mulShift128Div returns (amount << 128) / liquidity.
func mulShift128Div(amount, liquidity *big.Int) *big.Int {
	g := new(big.Int).Mul(amount, q128)
	return g.Div(g, liquidity)
}

// --- Settlement primitives and the external balance bank ---

// Fund credits an external balance out of thin air. Test and simulation
// setup only.
func (pm *PoolManager) Fund(c types.Currency, account common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	bal := pm.bankAccount(c, account)
	bal.Add(bal, amount)
}

// Transfer moves an external balance between two accounts.
func (pm *PoolManager) Transfer(c types.Currency, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNonPositiveAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	src := pm.bankAccount(c, from)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, needs %s", ErrInsufficientBalance, from.Hex(), src, c, amount)
	}
	src.Sub(src, amount)
	dst := pm.bankAccount(c, to)
	dst.Add(dst, amount)
	return nil
}

// PayIn moves amount of c from payer's external balance into manager
// reserves.
func (pm *PoolManager) PayIn(c types.Currency, payer common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	src := pm.bankAccount(c, payer)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, needs %s", ErrInsufficientBalance, payer.Hex(), src, c, amount)
	}
	src.Sub(src, amount)
	res := pm.reserve(c)
	res.Add(res, amount)
	return nil
}

// PayOut moves amount of c from manager reserves to recipient's external
// balance.
func (pm *PoolManager) PayOut(c types.Currency, recipient common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	res := pm.reserve(c)
	if res.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s of %s, needs %s", ErrInsufficientReserves, res, c, amount)
	}
	res.Sub(res, amount)
	dst := pm.bankAccount(c, recipient)
	dst.Add(dst, amount)
	return nil
}

// MintClaims credits owner a claim-token balance for currency held by the
// manager.
func (pm *PoolManager) MintClaims(c types.Currency, owner common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	bal := pm.claimAccount(c, owner)
	bal.Add(bal, amount)
	return nil
}

// BurnClaims redeems owner's claim-token balance.
func (pm *PoolManager) BurnClaims(c types.Currency, owner common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	bal := pm.claimAccount(c, owner)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, needs %s", ErrInsufficientClaims, owner.Hex(), bal, c, amount)
	}
	bal.Sub(bal, amount)
	return nil
}

// TransferClaims moves a claim-token balance between two accounts.
func (pm *PoolManager) TransferClaims(c types.Currency, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNonPositiveAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	src := pm.claimAccount(c, from)
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, needs %s", ErrInsufficientClaims, from.Hex(), src, c, amount)
	}
	src.Sub(src, amount)
	dst := pm.claimAccount(c, to)
	dst.Add(dst, amount)
	return nil
}

// BalanceOf returns a copy of account's external balance of c.
func (pm *PoolManager) BalanceOf(c types.Currency, account common.Address) *big.Int {
	return new(big.Int).Set(pm.bankAccount(c, account))
}

// ClaimsOf returns a copy of account's claim-token balance of c.
func (pm *PoolManager) ClaimsOf(c types.Currency, account common.Address) *big.Int {
	return new(big.Int).Set(pm.claimAccount(c, account))
}

// Reserves returns a copy of the manager's reserves of c.
func (pm *PoolManager) Reserves(c types.Currency) *big.Int {
	return new(big.Int).Set(pm.reserve(c))
}

// Liquidity returns a copy of the pool's total position liquidity.
func (pm *PoolManager) Liquidity(id types.PoolID) *big.Int {
	if p, ok := pm.pools[id]; ok {
		return new(big.Int).Set(p.liquidity)
	}
	return new(big.Int)
}

func (pm *PoolManager) bankAccount(c types.Currency, account common.Address) *big.Int {
	byAccount, ok := pm.balances[c]
	if !ok {
		byAccount = make(map[common.Address]*big.Int)
		pm.balances[c] = byAccount
	}
	bal, ok := byAccount[account]
	if !ok {
		bal = new(big.Int)
		byAccount[account] = bal
	}
	return bal
}

func (pm *PoolManager) claimAccount(c types.Currency, account common.Address) *big.Int {
	byAccount, ok := pm.claims[c]
	if !ok {
		byAccount = make(map[common.Address]*big.Int)
		pm.claims[c] = byAccount
	}
	bal, ok := byAccount[account]
	if !ok {
		bal = new(big.Int)
		byAccount[account] = bal
	}
	return bal
}

func (pm *PoolManager) reserve(c types.Currency) *big.Int {
	res, ok := pm.reserves[c]
	if !ok {
		res = new(big.Int)
		pm.reserves[c] = res
	}
	return res
}

// --- Snapshots ---

type snapshot struct {
	pools    map[types.PoolID]*pool
	balances map[types.Currency]map[common.Address]*big.Int
	claims   map[types.Currency]map[common.Address]*big.Int
	reserves map[types.Currency]*big.Int
}

func (*snapshot) isSnapshot() {}

// Snapshot deep-copies the manager state. The copy owns all of its memory so
// later mutations cannot leak into it.
func (pm *PoolManager) Snapshot() Snapshot {
	return &snapshot{
		pools:    copyPools(pm.pools),
		balances: copyBank(pm.balances),
		claims:   copyBank(pm.claims),
		reserves: copyReserves(pm.reserves),
	}
}

// Restore rewinds the manager to a state captured by Snapshot. The snapshot
// is copied on the way in, so one snapshot can back out several attempts.
func (pm *PoolManager) Restore(s Snapshot) {
	snap, ok := s.(*snapshot)
	if !ok {
		return
	}
	pm.pools = copyPools(snap.pools)
	pm.balances = copyBank(snap.balances)
	pm.claims = copyBank(snap.claims)
	pm.reserves = copyReserves(snap.reserves)
}

func copyPools(src map[types.PoolID]*pool) map[types.PoolID]*pool {
	dst := make(map[types.PoolID]*pool, len(src))
	for id, p := range src {
		positions := make(map[common.Hash]*position, len(p.positions))
		for k, pos := range p.positions {
			positions[k] = &position{
				liquidity:          new(big.Int).Set(pos.liquidity),
				feeGrowth0LastX128: new(big.Int).Set(pos.feeGrowth0LastX128),
				feeGrowth1LastX128: new(big.Int).Set(pos.feeGrowth1LastX128),
			}
		}
		dst[id] = &pool{
			key:            p.key,
			hook:           p.hook,
			perms:          p.perms,
			sqrtPriceX96:   new(big.Int).Set(p.sqrtPriceX96),
			liquidity:      new(big.Int).Set(p.liquidity),
			feeGrowth0X128: new(big.Int).Set(p.feeGrowth0X128),
			feeGrowth1X128: new(big.Int).Set(p.feeGrowth1X128),
			positions:      positions,
		}
	}
	return dst
}

func copyBank(src map[types.Currency]map[common.Address]*big.Int) map[types.Currency]map[common.Address]*big.Int {
	dst := make(map[types.Currency]map[common.Address]*big.Int, len(src))
	for c, byAccount := range src {
		inner := make(map[common.Address]*big.Int, len(byAccount))
		for account, bal := range byAccount {
			inner[account] = new(big.Int).Set(bal)
		}
		dst[c] = inner
	}
	return dst
}

func copyReserves(src map[types.Currency]*big.Int) map[types.Currency]*big.Int {
	dst := make(map[types.Currency]*big.Int, len(src))
	for c, res := range src {
		dst[c] = new(big.Int).Set(res)
	}
	return dst
}

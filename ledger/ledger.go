// Package ledger defines the boundary to the pool manager: the external
// service that owns canonical balances, enforces the unlock discipline, and
// invokes hooks via callback. PoolManager is an in-memory reference
// implementation of that service for tests and simulation.
package ledger

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DeluxeRaph/uniswap-hooks/deltamath"
	"github.com/DeluxeRaph/uniswap-hooks/types"
)

var (
	ErrPoolAlreadyInitialized = errors.New("pool already initialized")
	ErrPoolNotInitialized     = errors.New("pool not initialized")
	ErrManagerLocked          = errors.New("manager is locked")
	ErrAlreadyUnlocked        = errors.New("manager already unlocked")
	ErrNilUnlockHandler       = errors.New("unlock handler cannot be nil")
	ErrHookAddressMismatch    = errors.New("hook address does not match pool key")
	ErrInvalidSqrtPrice       = errors.New("sqrt price out of bounds")
	ErrInvalidPriceLimit      = errors.New("price limit out of bounds")
	ErrSwapAmountZero         = errors.New("swap amount cannot be zero")
	ErrNoLiquidity            = errors.New("pool has no liquidity")
	ErrHookDeltaNotAllowed    = errors.New("hook returned a delta without the override permission")
	ErrHookDeltaExceedsSwap   = errors.New("hook delta exceeds the specified swap amount")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientClaims     = errors.New("insufficient claim-token balance")
	ErrInsufficientReserves   = errors.New("insufficient manager reserves")
	ErrNonPositiveAmount      = errors.New("amount must be positive")
)

// Logger is the structured, leveled logging contract components accept.
// log/slog's Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// UnlockHandler receives the synchronous callback the manager issues inside
// an unlock window. Sender carries the manager's own address so handlers can
// reject any other caller.
type UnlockHandler interface {
	UnlockCallback(sender common.Address, data any) (any, error)
}

// Hook is the set of lifecycle callbacks a pool's hook may participate in.
// The manager consults Permissions before dispatching and never invokes a
// callback the hook did not declare. Callbacks are skipped when the hook
// itself is the caller.
type Hook interface {
	Address() common.Address
	Permissions() types.Permissions
	BeforeInitialize(sender common.Address, key types.PoolKey, sqrtPriceX96 *big.Int) error
	BeforeAddLiquidity(sender common.Address, key types.PoolKey, p types.ModifyLiquidityParams) error
	BeforeRemoveLiquidity(sender common.Address, key types.PoolKey, p types.ModifyLiquidityParams) error
	BeforeSwap(sender common.Address, key types.PoolKey, p types.SwapParams) (deltamath.BeforeSwapDelta, error)
}

// Ledger is the manager surface hook cores call into. Implementations are
// opaque to the hooks: the hooks never reach past this interface.
type Ledger interface {
	// Address identifies the manager account; callbacks carry it as sender.
	Address() common.Address

	// SqrtPriceX96 returns the pool's current price, or zero if the pool
	// has not been initialized.
	SqrtPriceX96(id types.PoolID) *big.Int

	// Unlock opens the single reentrant-callback window and synchronously
	// invokes the handler. Nested unlocks fail with ErrAlreadyUnlocked.
	Unlock(h UnlockHandler, data any) (any, error)

	// ModifyLiquidity applies a liquidity change inside an unlock window
	// and returns the caller delta and the fee-only component.
	ModifyLiquidity(sender common.Address, key types.PoolKey, p types.ModifyLiquidityParams) (callerDelta, feesAccrued deltamath.Delta, err error)

	// Settlement primitives, parameterized by currency and asset-vs-claim
	// mode through the settle package.
	PayIn(c types.Currency, payer common.Address, amount *big.Int) error
	PayOut(c types.Currency, recipient common.Address, amount *big.Int) error
	MintClaims(c types.Currency, owner common.Address, amount *big.Int) error
	BurnClaims(c types.Currency, owner common.Address, amount *big.Int) error
	Transfer(c types.Currency, from, to common.Address, amount *big.Int) error

	// Snapshot and Restore expose the host's all-or-nothing call
	// semantics: a failed top-level call rewinds every mutation it made.
	Snapshot() Snapshot
	Restore(s Snapshot)
}

// Snapshot is an opaque capture of manager state.
type Snapshot interface{ isSnapshot() }

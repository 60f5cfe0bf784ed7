package types

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrCurrenciesOutOfOrder = errors.New("currency0 must sort before currency1")
	ErrInvalidTickRange     = errors.New("invalid tick range")
)

// Currency identifies one of a pool's two assets. The zero value is the
// chain-native asset; any other value is a fungible token contract address.
type Currency common.Address

// Native is the chain-native asset. It always sorts first in a pool key.
var Native = Currency{}

func (c Currency) IsNative() bool {
	return c == Native
}

func (c Currency) Address() common.Address {
	return common.Address(c)
}

func (c Currency) String() string {
	if c.IsNative() {
		return "native"
	}
	return common.Address(c).Hex()
}

// Less reports whether c sorts before other, the ordering pool keys require.
func (c Currency) Less(other Currency) bool {
	return common.Address(c).Cmp(common.Address(other)) < 0
}

// PoolID uniquely identifies an initialized pool. It is derived from the
// pool key and never changes for the life of the pool.
type PoolID common.Hash

func (id PoolID) Hex() string {
	return common.Hash(id).Hex()
}

// PoolKey is the immutable identity of a pool: its two currencies, fee tier,
// tick spacing, and the hook account attached to it. A key is bound to a hook
// exactly once, at initialization.
type PoolKey struct {
	Currency0   Currency
	Currency1   Currency
	Fee         uint32 // ppm, e.g. 3000 = 0.30%
	TickSpacing int64
	Hook        common.Address
}

// Validate checks the structural invariants of the key.
func (k PoolKey) Validate() error {
	if !k.Currency0.Less(k.Currency1) {
		return ErrCurrenciesOutOfOrder
	}
	return nil
}

// ID derives the pool identifier as the keccak hash of the packed key fields.
func (k PoolKey) ID() PoolID {
	buf := make([]byte, 0, 2*common.AddressLength+4+8+common.AddressLength)
	buf = append(buf, k.Currency0.Address().Bytes()...)
	buf = append(buf, k.Currency1.Address().Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, k.Fee)
	buf = binary.BigEndian.AppendUint64(buf, uint64(k.TickSpacing))
	buf = append(buf, k.Hook.Bytes()...)
	return PoolID(crypto.Keccak256Hash(buf))
}

// ModifyLiquidityParams is a transient request to change a position's
// liquidity. LiquidityDelta is signed: positive adds, negative removes.
// Salt separates positions that share an owner and tick range.
type ModifyLiquidityParams struct {
	TickLower      int64
	TickUpper      int64
	LiquidityDelta *big.Int
	Salt           common.Hash
}

func (p ModifyLiquidityParams) Validate(minTick, maxTick int64) error {
	if p.TickLower >= p.TickUpper || p.TickLower < minTick || p.TickUpper > maxTick {
		return ErrInvalidTickRange
	}
	return nil
}

// SwapParams is a transient swap request. AmountSpecified is signed:
// negative means exact-input (the caller fixes what goes in), positive means
// exact-output (the caller fixes what comes out). SqrtPriceLimitX96 may be
// nil, in which case the ledger clamps at its own bounds.
type SwapParams struct {
	ZeroForOne        bool
	AmountSpecified   *big.Int
	SqrtPriceLimitX96 *big.Int
}

// ExactInput reports whether the request fixes the input amount.
func (p SwapParams) ExactInput() bool {
	return p.AmountSpecified != nil && p.AmountSpecified.Sign() < 0
}

// SpecifiedIsCurrency0 reports whether the currency the caller fixed is
// currency0. For exact-input that is the input currency, for exact-output the
// output currency.
func (p SwapParams) SpecifiedIsCurrency0() bool {
	return p.ZeroForOne == p.ExactInput()
}

// Permissions is the capability table a hook declares at registration time.
// The ledger consults it before dispatching each lifecycle callback; callbacks
// not enabled here are never invoked.
type Permissions struct {
	BeforeInitialize       bool
	BeforeAddLiquidity     bool
	BeforeRemoveLiquidity  bool
	BeforeSwap             bool
	BeforeSwapReturnsDelta bool
}

package curve

import (
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeluxeRaph/uniswap-hooks/accounting"
	"github.com/DeluxeRaph/uniswap-hooks/ledger"
	"github.com/DeluxeRaph/uniswap-hooks/tickmath"
	"github.com/DeluxeRaph/uniswap-hooks/types"
)

var (
	managerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	hookAddr    = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	alice       = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	bob         = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	token0      = types.Currency(common.HexToAddress("0x0000000000000000000000000000000000000011"))
	token1      = types.Currency(common.HexToAddress("0x0000000000000000000000000000000000000022"))

	deadline = time.Now().Add(time.Hour)
)

type fixture struct {
	pm       *ledger.PoolManager
	hook     *Curve
	strategy *accounting.ProRataStrategy
	key      types.PoolKey
}

func newFixture(t *testing.T, quoter Quoter) *fixture {
	t.Helper()
	pm, err := ledger.NewPoolManager(&ledger.Config{Address: managerAddr})
	require.NoError(t, err)

	strategy := accounting.NewProRataStrategy()
	hook, err := New(&Config{
		Address:  hookAddr,
		Ledger:   pm,
		Strategy: strategy,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: prometheus.NewRegistry(),
		Quoter:   quoter,
	})
	require.NoError(t, err)

	key := types.PoolKey{
		Currency0:   token0,
		Currency1:   token1,
		Fee:         3000,
		TickSpacing: 60,
		Hook:        hookAddr,
	}
	price, err := tickmath.SqrtRatioAtTick(0)
	require.NoError(t, err)
	_, err = pm.Initialize(alice, key, price, hook)
	require.NoError(t, err)

	pm.Fund(token0, alice, big.NewInt(10_000_000))
	pm.Fund(token1, alice, big.NewInt(10_000_000))
	pm.Fund(token0, bob, big.NewInt(1_000_000))
	pm.Fund(token1, bob, big.NewInt(1_000_000))
	return &fixture{pm: pm, hook: hook, strategy: strategy, key: key}
}

// seedLiquidity deposits through the hook so the hook ends up holding claim
// tokens on both currencies.
func seedLiquidity(t *testing.T, f *fixture) {
	t.Helper()
	_, err := f.hook.AddLiquidity(accounting.AddLiquidityParams{
		Sender:         alice,
		Recipient:      alice,
		Amount0Desired: big.NewInt(1_000_000),
		Amount1Desired: big.NewInt(1_000_000),
		Deadline:       deadline,
		TickLower:      -600,
		TickUpper:      600,
	})
	require.NoError(t, err)
}

func TestNewCurve(t *testing.T) {
	t.Run("requires a quoter", func(t *testing.T) {
		_, err := New(&Config{})
		assert.ErrorIs(t, err, ErrNilQuoter)
	})
}

func TestCurvePermissions(t *testing.T) {
	f := newFixture(t, ConstantSumQuoter{})
	perms := f.hook.Permissions()
	assert.True(t, perms.BeforeInitialize)
	assert.True(t, perms.BeforeAddLiquidity)
	assert.True(t, perms.BeforeRemoveLiquidity)
	assert.True(t, perms.BeforeSwap)
	assert.True(t, perms.BeforeSwapReturnsDelta)
}

func TestLiquiditySettlesInClaims(t *testing.T) {
	f := newFixture(t, ConstantSumQuoter{})
	seedLiquidity(t, f)

	// Deposits land in manager reserves with matching claims minted to
	// the hook.
	claims0 := f.pm.ClaimsOf(token0, hookAddr)
	claims1 := f.pm.ClaimsOf(token1, hookAddr)
	assert.Positive(t, claims0.Sign())
	assert.Positive(t, claims1.Sign())
	assert.Zero(t, f.pm.Reserves(token0).Cmp(claims0))
	assert.Zero(t, f.pm.Reserves(token1).Cmp(claims1))
}

func TestConstantSumSwap(t *testing.T) {
	t.Run("exact input trades one for one", func(t *testing.T) {
		f := newFixture(t, ConstantSumQuoter{})
		seedLiquidity(t, f)
		claims0 := f.pm.ClaimsOf(token0, hookAddr)
		claims1 := f.pm.ClaimsOf(token1, hookAddr)

		delta, err := f.pm.Swap(bob, f.key, types.SwapParams{
			ZeroForOne:      true,
			AmountSpecified: big.NewInt(-1000),
		})
		require.NoError(t, err)

		assert.Equal(t, int64(-1000), delta.Amount0().Int64())
		assert.Equal(t, int64(1000), delta.Amount1().Int64())
		assert.Equal(t, int64(1_000_000-1000), f.pm.BalanceOf(token0, bob).Int64())
		assert.Equal(t, int64(1_000_000+1000), f.pm.BalanceOf(token1, bob).Int64())

		// The hook's claim book shifted composition by the traded amount.
		assert.Zero(t, f.pm.ClaimsOf(token0, hookAddr).Cmp(new(big.Int).Add(claims0, big.NewInt(1000))))
		assert.Zero(t, f.pm.ClaimsOf(token1, hookAddr).Cmp(new(big.Int).Sub(claims1, big.NewInt(1000))))
	})

	t.Run("exact output trades one for one", func(t *testing.T) {
		f := newFixture(t, ConstantSumQuoter{})
		seedLiquidity(t, f)

		delta, err := f.pm.Swap(bob, f.key, types.SwapParams{
			ZeroForOne:      false,
			AmountSpecified: big.NewInt(500),
		})
		require.NoError(t, err)

		assert.Equal(t, int64(500), delta.Amount0().Int64())
		assert.Equal(t, int64(-500), delta.Amount1().Int64())
	})

	t.Run("round trip is lossless", func(t *testing.T) {
		f := newFixture(t, ConstantSumQuoter{})
		seedLiquidity(t, f)

		_, err := f.pm.Swap(bob, f.key, types.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1000)})
		require.NoError(t, err)
		_, err = f.pm.Swap(bob, f.key, types.SwapParams{ZeroForOne: false, AmountSpecified: big.NewInt(-1000)})
		require.NoError(t, err)

		assert.Equal(t, int64(1_000_000), f.pm.BalanceOf(token0, bob).Int64())
		assert.Equal(t, int64(1_000_000), f.pm.BalanceOf(token1, bob).Int64())
	})

	t.Run("malformed price limit rejected before quoting", func(t *testing.T) {
		f := newFixture(t, ConstantSumQuoter{})
		seedLiquidity(t, f)

		// The hook consumes the whole specified amount, so the native step
		// never prices against the limit; the manager must still reject a
		// limit on the wrong side of the current price.
		limit, err := tickmath.SqrtRatioAtTick(0)
		require.NoError(t, err)
		_, err = f.pm.Swap(bob, f.key, types.SwapParams{
			ZeroForOne:        true,
			AmountSpecified:   big.NewInt(-1000),
			SqrtPriceLimitX96: limit,
		})
		assert.ErrorIs(t, err, ledger.ErrInvalidPriceLimit)
		assert.Equal(t, int64(1_000_000), f.pm.BalanceOf(token0, bob).Int64())
	})

	t.Run("output beyond hook reserves fails cleanly", func(t *testing.T) {
		f := newFixture(t, ConstantSumQuoter{})
		seedLiquidity(t, f)
		f.pm.Fund(token0, bob, big.NewInt(10_000_000))

		_, err := f.pm.Swap(bob, f.key, types.SwapParams{
			ZeroForOne:      true,
			AmountSpecified: big.NewInt(-5_000_000),
		})
		assert.ErrorIs(t, err, ledger.ErrInsufficientClaims)
		assert.Equal(t, int64(11_000_000), f.pm.BalanceOf(token0, bob).Int64())
	})
}

func TestQuoterFailures(t *testing.T) {
	t.Run("error propagates and rewinds", func(t *testing.T) {
		f := newFixture(t, QuoterFunc(func(QuoteParams) (*big.Int, error) {
			return nil, assert.AnError
		}))
		seedLiquidity(t, f)

		_, err := f.pm.Swap(bob, f.key, types.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1000)})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, int64(1_000_000), f.pm.BalanceOf(token0, bob).Int64())
	})

	t.Run("non-positive quote rejected", func(t *testing.T) {
		f := newFixture(t, QuoterFunc(func(QuoteParams) (*big.Int, error) {
			return new(big.Int), nil
		}))
		seedLiquidity(t, f)

		_, err := f.pm.Swap(bob, f.key, types.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1000)})
		assert.ErrorIs(t, err, ErrNonPositiveQuote)
	})

	t.Run("quote past int128 rejected", func(t *testing.T) {
		f := newFixture(t, QuoterFunc(func(QuoteParams) (*big.Int, error) {
			return new(big.Int).Lsh(big.NewInt(1), 140), nil
		}))
		seedLiquidity(t, f)

		_, err := f.pm.Swap(bob, f.key, types.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1000)})
		assert.Error(t, err)
	})
}

func TestQuoterSeesCanonicalParams(t *testing.T) {
	var got QuoteParams
	f := newFixture(t, QuoterFunc(func(p QuoteParams) (*big.Int, error) {
		got = p
		return new(big.Int).Set(p.SpecifiedAmount), nil
	}))
	seedLiquidity(t, f)

	_, err := f.pm.Swap(bob, f.key, types.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1234)})
	require.NoError(t, err)
	assert.True(t, got.ExactInput)
	assert.True(t, got.ZeroForOne)
	assert.Equal(t, int64(1234), got.SpecifiedAmount.Int64())

	_, err = f.pm.Swap(bob, f.key, types.SwapParams{ZeroForOne: false, AmountSpecified: big.NewInt(777)})
	require.NoError(t, err)
	assert.False(t, got.ExactInput)
	assert.False(t, got.ZeroForOne)
	assert.Equal(t, int64(777), got.SpecifiedAmount.Int64())
}

func TestRemoveAfterSwaps(t *testing.T) {
	f := newFixture(t, ConstantSumQuoter{})
	seedLiquidity(t, f)

	_, err := f.pm.Swap(bob, f.key, types.SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(-1000)})
	require.NoError(t, err)

	// A partial withdrawal fits inside the hook's remaining claim book
	// even after the swap shifted its composition.
	shares := f.strategy.Shares().BalanceOf(alice)
	half := new(big.Int).Rsh(shares, 1)
	principal, err := f.hook.RemoveLiquidity(accounting.RemoveLiquidityParams{
		Sender:    alice,
		Shares:    half,
		Deadline:  deadline,
		TickLower: -600,
		TickUpper: 600,
	})
	require.NoError(t, err)
	assert.Positive(t, principal.Amount0().Sign())
	assert.Positive(t, principal.Amount1().Sign())
}

// Command hooksim runs a self-contained simulation of the hook stack against
// the in-memory pool manager: a constant-sum curve hook with pro-rata share
// accounting, exercised by a deposit, two swaps, and a withdrawal.
package main

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DeluxeRaph/uniswap-hooks/accounting"
	"github.com/DeluxeRaph/uniswap-hooks/curve"
	"github.com/DeluxeRaph/uniswap-hooks/ledger"
	"github.com/DeluxeRaph/uniswap-hooks/tickmath"
	"github.com/DeluxeRaph/uniswap-hooks/types"
)

func main() {
	root := &cobra.Command{
		Use:          "hooksim",
		Short:        "Hook stack simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the constant-sum curve scenario",
		RunE:  runScenario,
	}

	runCmd.Flags().Uint32("fee", 3000, "pool fee in ppm")
	runCmd.Flags().Int64("tick-spacing", 60, "pool tick spacing")
	runCmd.Flags().Int64("tick-lower", -600, "position lower tick")
	runCmd.Flags().Int64("tick-upper", 600, "position upper tick")
	runCmd.Flags().String("deposit0", "1000000", "currency0 deposit amount")
	runCmd.Flags().String("deposit1", "1000000", "currency1 deposit amount")
	runCmd.Flags().String("swap-in", "10000", "exact-input swap amount")
	runCmd.Flags().String("swap-out", "5000", "exact-output swap amount")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScenario(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logAdapter{logger.Sugar()}

	deposit0, err := parseAmount(cfg.Deposit0)
	if err != nil {
		return fmt.Errorf("deposit0: %w", err)
	}
	deposit1, err := parseAmount(cfg.Deposit1)
	if err != nil {
		return fmt.Errorf("deposit1: %w", err)
	}
	swapIn, err := parseAmount(cfg.SwapIn)
	if err != nil {
		return fmt.Errorf("swap-in: %w", err)
	}
	swapOut, err := parseAmount(cfg.SwapOut)
	if err != nil {
		return fmt.Errorf("swap-out: %w", err)
	}

	var (
		managerAddr = common.HexToAddress("0x00000000000000000000000000000000000000a0")
		hookAddr    = common.HexToAddress("0x00000000000000000000000000000000000000b0")
		alice       = common.HexToAddress("0x00000000000000000000000000000000000000c1")
		bob         = common.HexToAddress("0x00000000000000000000000000000000000000c2")
		currency0   = types.Currency(common.HexToAddress("0x0000000000000000000000000000000000000011"))
		currency1   = types.Currency(common.HexToAddress("0x0000000000000000000000000000000000000022"))
	)

	manager, err := ledger.NewPoolManager(&ledger.Config{Address: managerAddr, Logger: log})
	if err != nil {
		return err
	}
	strategy := accounting.NewProRataStrategy()
	hook, err := curve.New(&curve.Config{
		Address:  hookAddr,
		Ledger:   manager,
		Strategy: strategy,
		Logger:   log,
		Registry: prometheus.NewRegistry(),
		Quoter:   curve.ConstantSumQuoter{},
	})
	if err != nil {
		return err
	}

	key := types.PoolKey{
		Currency0:   currency0,
		Currency1:   currency1,
		Fee:         cfg.FeePPM,
		TickSpacing: cfg.TickSpacing,
		Hook:        hookAddr,
	}
	startPrice, err := tickmath.SqrtRatioAtTick(0)
	if err != nil {
		return err
	}
	if _, err := manager.Initialize(alice, key, startPrice, hook); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	manager.Fund(currency0, alice, deposit0)
	manager.Fund(currency1, alice, deposit1)
	manager.Fund(currency0, bob, new(big.Int).Set(swapIn))
	manager.Fund(currency1, bob, new(big.Int).Set(swapOut))

	deadline := time.Now().Add(time.Minute)
	principal, err := hook.AddLiquidity(accounting.AddLiquidityParams{
		Sender:         alice,
		Recipient:      alice,
		Amount0Desired: deposit0,
		Amount1Desired: deposit1,
		Deadline:       deadline,
		TickLower:      cfg.TickLower,
		TickUpper:      cfg.TickUpper,
	})
	if err != nil {
		return fmt.Errorf("add liquidity: %w", err)
	}
	logger.Info("liquidity added", zap.String("principal", principal.String()))

	swapDelta, err := manager.Swap(bob, key, types.SwapParams{
		ZeroForOne:      true,
		AmountSpecified: new(big.Int).Neg(swapIn),
	})
	if err != nil {
		return fmt.Errorf("exact-input swap: %w", err)
	}
	logger.Info("exact-input swap", zap.String("delta", swapDelta.String()))

	swapDelta, err = manager.Swap(bob, key, types.SwapParams{
		ZeroForOne:      false,
		AmountSpecified: new(big.Int).Set(swapOut),
	})
	if err != nil {
		return fmt.Errorf("exact-output swap: %w", err)
	}
	logger.Info("exact-output swap", zap.String("delta", swapDelta.String()))

	// Withdraw half: the swaps shifted the hook's claim composition, so a
	// full exit would overdraw the depleted side.
	shares := strategy.Shares().BalanceOf(alice)
	shares.Rsh(shares, 1)
	principal, err = hook.RemoveLiquidity(accounting.RemoveLiquidityParams{
		Sender:    alice,
		Shares:    shares,
		Deadline:  deadline,
		TickLower: cfg.TickLower,
		TickUpper: cfg.TickUpper,
	})
	if err != nil {
		return fmt.Errorf("remove liquidity: %w", err)
	}
	logger.Info("liquidity removed", zap.String("principal", principal.String()))

	logger.Info("final balances",
		zap.String("alice0", manager.BalanceOf(currency0, alice).String()),
		zap.String("alice1", manager.BalanceOf(currency1, alice).String()),
		zap.String("bob0", manager.BalanceOf(currency0, bob).String()),
		zap.String("bob1", manager.BalanceOf(currency1, bob).String()),
		zap.String("reserves0", manager.Reserves(currency0).String()),
		zap.String("reserves1", manager.Reserves(currency1).String()),
	)
	return nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// logAdapter bridges the module's Logger contract onto a zap sugared logger.
type logAdapter struct {
	s *zap.SugaredLogger
}

func (l logAdapter) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l logAdapter) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l logAdapter) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l logAdapter) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

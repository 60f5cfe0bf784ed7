package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds simulation parameters loaded from flags, env, or config file.
type Config struct {
	FeePPM      uint32
	TickSpacing int64
	TickLower   int64
	TickUpper   int64
	Deposit0    string
	Deposit1    string
	SwapIn      string
	SwapOut     string
	LogLevel    string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HOOKSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("fee", uint32(3000))
	v.SetDefault("tick-spacing", int64(60))
	v.SetDefault("tick-lower", int64(-600))
	v.SetDefault("tick-upper", int64(600))
	v.SetDefault("deposit0", "1000000")
	v.SetDefault("deposit1", "1000000")
	v.SetDefault("swap-in", "10000")
	v.SetDefault("swap-out", "5000")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("hooksim")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return Config{
		FeePPM:      v.GetUint32("fee"),
		TickSpacing: v.GetInt64("tick-spacing"),
		TickLower:   v.GetInt64("tick-lower"),
		TickUpper:   v.GetInt64("tick-upper"),
		Deposit0:    v.GetString("deposit0"),
		Deposit1:    v.GetString("deposit1"),
		SwapIn:      v.GetString("swap-in"),
		SwapOut:     v.GetString("swap-out"),
		LogLevel:    v.GetString("log-level"),
	}, nil
}

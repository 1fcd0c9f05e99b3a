// Package config loads runtime tuning knobs via viper, with .env overrides
// supported through godotenv for cmd/loopctl (spec.md §9's "ambient
// configuration the distilled spec is silent on").
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// RunnerConfig is the tunable subset of loop.RunnerConfig plus the knobs
// that govern the default reactor and injection queue, sourced from
// environment variables / a config file instead of being hardcoded.
type RunnerConfig struct {
	// ClockOffsetBound bounds the random offset loop.NewSystemClock applies.
	ClockOffsetBound time.Duration
	// Seed seeds the batch-order PRNG; 0 picks a fresh random seed.
	Seed uint64
	// InstrumentsEnabled is loaded from LOOPRT_INSTRUMENTS_ENABLED;
	// cmd/loopctl installs no instruments whatever its value.
	InstrumentsEnabled bool
}

// Load reads configuration from environment variables prefixed LOOPRT_
// (and, if present, a .env file loaded via godotenv for local runs), falling
// back to documented defaults for anything unset.
func Load(envFile string) (RunnerConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return RunnerConfig{}, err
		}
	}

	v := viper.New()
	v.SetEnvPrefix("LOOPRT")
	v.AutomaticEnv()
	v.SetDefault("clock_offset_bound", 10000*time.Second)
	v.SetDefault("seed", uint64(0))
	v.SetDefault("instruments_enabled", true)

	return RunnerConfig{
		ClockOffsetBound:   v.GetDuration("clock_offset_bound"),
		Seed:               uint64(v.GetInt64("seed")),
		InstrumentsEnabled: v.GetBool("instruments_enabled"),
	}, nil
}

// Command celo-oracle runs the price oracle: it aggregates spot prices
// from the configured exchange venues and reports them to the on-chain
// SortedOracles contract.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/celo-org/celo-oracle/internal/app"
	"github.com/celo-org/celo-oracle/internal/config"
)

var (
	flagEnvFile  string
	flagLogLevel string
	flagPretty   bool
)

var rootCmd = &cobra.Command{
	Use:   "celo-oracle",
	Short: "Celo price oracle",
	Long: `celo-oracle continuously aggregates spot-market prices for a configured
currency pair from multiple exchange and FX venues and reports the result
to the on-chain SortedOracles contract.

All runtime configuration comes from environment variables; see the
deployment documentation for the full list. An optional env file can be
loaded with --env-file.`,
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&flagEnvFile, "env-file", "", "optional .env file to load before reading the environment")
	flags.StringVar(&flagLogLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	flags.BoolVar(&flagPretty, "pretty", false, "human-readable console logging instead of JSON")
	flags.AddFlagSet(pflag.CommandLine)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if flagEnvFile != "" {
		if err := godotenv.Load(flagEnvFile); err != nil {
			return fmt.Errorf("loading env file %s: %w", flagEnvFile, err)
		}
	}

	log, err := buildLogger()
	if err != nil {
		return err
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	oracle, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("assembling oracle: %w", err)
	}
	return oracle.Run(ctx)
}

func buildLogger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(flagLogLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", flagLogLevel, err)
	}
	var out = os.Stderr
	logger := zerolog.New(out)
	if flagPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}

package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mverdi/goILRouter/internal/config"
)

var (
	// Global flags
	configFile string
	verbose    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ilrouterd",
	Short: "goILRouter - Interledger routing daemon in Go",
	Long: `ilrouterd maintains per-neighbor routing tables over liquidity curves
and answers best-hop quotes for Interledger-style payments. Routes announced
by neighboring connectors are composed with the locally configured ledger
pairs, and the combined table is republished whenever it changes.`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output to console after startup")
}

// loadConfig reads and validates the configuration honoring the --conf flag.
func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configFile)
}

// newLogger builds the process logger from the log section and the global
// verbosity flags.
func newLogger(cfg *config.Config) *logrus.Entry {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	if quiet {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)

	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger.WithField("app", "ilrouterd")
}

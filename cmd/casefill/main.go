// Command casefill drives property valuation cases through the portal form,
// pausing for the operator when automation cannot fill a field.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yangwenmai/casefill/internal/config"
	"github.com/yangwenmai/casefill/internal/logging"
)

var (
	version = "dev"

	// Global flags
	configFile string
	demoFlag   bool
	logLevel   string

	cfg    config.Config
	logger *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "casefill",
		Short: "Resumable valuation form filling for portal cases",
		Long: `casefill downloads a case's document bundle, extracts the valuation
fields, fills the drafter form and stops for the operator when fields
remain blank. A suspended case is resumed in a new browser session.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configFile)
			if err != nil {
				return err
			}
			if demoFlag {
				cfg.Demo = true
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			logger, err = logging.New(cfg.LogLevel, cfg.LogFormat)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (default ./casefill.yaml)")
	rootCmd.PersistentFlags().BoolVar(&demoFlag, "demo", false, "Use the in-memory demo portal and stub extraction")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newPurgeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-console/internal/config"
)

// configModeAnnotation names the config.Validate mode a command runs in.
// Commands without it (config, help) accept any configuration.
const configModeAnnotation = "config-mode"

var (
	cfg      *config.Config
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "valuation-console",
	Short: "Interactive property valuation console",
	Long:  "Edits a property description, places it on a map and asks the valuation service for a predicted price, market tier and cluster.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return validateFor(cmd, cfg)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// validateFor checks c against the mode cmd declares, so a bad endpoint or
// tile template fails before any model or listener is built.
func validateFor(cmd *cobra.Command, c *config.Config) error {
	mode, ok := cmd.Annotations[configModeAnnotation]
	if !ok {
		return nil
	}
	if err := c.Validate(mode); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	zap.L().Debug("config validated", zap.String("command", cmd.Name()), zap.String("mode", mode))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

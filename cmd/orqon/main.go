package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"orqon-dispatch/internal/common/config"
	"orqon-dispatch/internal/common/logger"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "orqon",
	Short: "Dispatch and handoff orchestrator for advisor assistants",
	Long: `orqon routes free-text advisor requests to capability handlers
(records, scheduling, email, trade logs, quotes, compliance) and keeps
per-session context so follow-up questions reach the right client.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromFile(cfgFile)
	}
	return config.Load()
}

// newLogger builds the process logger from config. outputs override
// logging.output.
func newLogger(cfg *config.Config, outputs ...string) logger.Logger {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	if len(outputs) == 0 && cfg.Logging.Output != "" {
		outputs = []string{cfg.Logging.Output}
	}
	return logger.NewStructured(level, cfg.Logging.Format, outputs...)
}

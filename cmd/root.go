// Package cmd provides CLI commands.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/linanwx/ferry/config"
	"github.com/linanwx/ferry/logger"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	logLevelOverride  string
	configDirOverride string
)

// rootCmd is the root command.
var rootCmd = &cobra.Command{
	Use:   "ferry",
	Short: "ferry - move items between your characters",
	Long: `ferry runs next to each of your game characters and moves named items
between them: one character gives its wanted items to another through the
trade window, and a collector can ask a whole group to send theirs.

Commands are typed in game chat, on the terminal, or sent from Telegram:
  /give <target>          trade wanted items to target
  /collect group          ask every group member to send their items

Get started with: ferry init --name <character>`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level for this run (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configDirOverride, "config-dir", "", "Config directory (default ~/.ferry)")
	rootCmd.PersistentPreRunE = applyRuntimeOverrides
}

// applyRuntimeOverrides runs before every subcommand. Only an explicit
// --log-level initializes logging this early; serve initializes it from the
// config file otherwise.
func applyRuntimeOverrides(_ *cobra.Command, _ []string) error {
	config.SetConfigDir(configDirOverride)
	if logLevelOverride == "" {
		return nil
	}

	level, ok := normalizeLevel(logLevelOverride)
	if !ok {
		return fmt.Errorf("invalid --log-level: %q (use debug, info, warn, error)", logLevelOverride)
	}

	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	cfg.Logging.Level = level
	return initLogger(cfg)
}

func normalizeLevel(s string) (string, bool) {
	level := strings.ToLower(strings.TrimSpace(s))
	switch level {
	case "debug", "info", "warn", "error":
		return level, true
	}
	return "", false
}

func initLogger(cfg *config.Config) error {
	configDir, _ := config.ConfigDir()
	if err := logger.Init(cfg.LoggerConfig(), configDir); err != nil {
		return fmt.Errorf("logger init error: %w", err)
	}
	return nil
}

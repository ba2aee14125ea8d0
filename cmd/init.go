package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linanwx/ferry/config"
	"github.com/linanwx/ferry/cron"
	"github.com/linanwx/ferry/wantlist"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Non-interactive setup: generate config and an example want list",
	Long: `Generate config.yaml and an example want list without interactive prompts.
Existing files are never overwritten.

Examples:
  ferry init --name Collector
  ferry init --name Giver --bridge-url ws://127.0.0.1:7788/ferry --telegram-token BOT_TOKEN`,
	RunE: runInit,
}

var (
	initName          string
	initBridgeURL     string
	initTelegramToken string
	initAllowedIDs    []int64
	initPeers         []string
)

func init() {
	initCmd.Flags().StringVar(&initName, "name", "", "Character name this agent plays (required)")
	initCmd.Flags().StringVar(&initBridgeURL, "bridge-url", "", "Websocket URL of the game-client plugin")
	initCmd.Flags().StringVar(&initTelegramToken, "telegram-token", "", "Telegram bot token (optional)")
	initCmd.Flags().Int64SliceVar(&initAllowedIDs, "telegram-allow", nil, "Telegram user/chat IDs allowed to send commands")
	initCmd.Flags().StringSliceVar(&initPeers, "peers", nil, "Characters to ask for items when the game reports no peers")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	name := strings.TrimSpace(initName)
	if name == "" {
		return fmt.Errorf("--name is required")
	}

	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := config.Load(); err == nil {
		fmt.Println("Config already exists:", configPath)
	} else if !errors.Is(err, config.ErrNotFound) {
		return fmt.Errorf("existing config is unreadable: %w", err)
	} else {
		cfg := exampleConfig(name)
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Println("Created config:", configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	wantPath, err := cfg.WantListPath()
	if err != nil {
		return err
	}
	created, err := wantlist.WriteExample(wantPath)
	if err != nil {
		return fmt.Errorf("failed to write want list: %w", err)
	}
	if created {
		fmt.Println("Created want list:", wantPath)
	} else {
		fmt.Println("Want list already exists:", wantPath)
	}

	fmt.Println()
	fmt.Println("Edit the want list, then run: ferry serve")
	return nil
}

func exampleConfig(name string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Agent.Name = name
	if url := strings.TrimSpace(initBridgeURL); url != "" {
		cfg.Bridge.URL = url
	}
	if token := strings.TrimSpace(initTelegramToken); token != "" {
		cfg.Channels.Telegram.Token = token
		cfg.Channels.Telegram.AllowedIDs = append([]int64{}, initAllowedIDs...)
	}
	for _, peer := range initPeers {
		if peer = strings.TrimSpace(peer); peer != "" {
			cfg.Collect.Peers = append(cfg.Collect.Peers, peer)
		}
	}

	off := false
	cfg.Schedules = []cron.Job{{
		ID:      "nightly-collect",
		Kind:    cron.JobKindCron,
		Expr:    "0 3 * * *",
		Command: "/collect group",
		Enabled: &off,
	}}
	return cfg
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

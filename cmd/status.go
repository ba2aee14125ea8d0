package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linanwx/ferry/config"
	"github.com/linanwx/ferry/cron"
	"github.com/linanwx/ferry/wantlist"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ferry configuration status",
	Long:  `Display the current ferry configuration, want list and schedules.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(out, "Status: Not configured")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Run 'ferry init --name <character>' to initialize ferry.")
		return nil
	}

	fmt.Fprintln(out, "ferry Status")
	fmt.Fprintln(out, "============")
	fmt.Fprintln(out)

	configPath, _ := config.ConfigPath()
	fmt.Fprintln(out, "Config:", configPath)
	fmt.Fprintln(out, "Character:", orNone(cfg.Agent.Name))
	fmt.Fprintln(out, "Bridge:", cfg.Bridge.URL)
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Trade: batch %d, range %.0f, poll %s\n", cfg.Trade.BatchSize, cfg.Trade.Proximity, cfg.Trade.PollInterval)
	if cfg.Collect.MemberTimeout > 0 {
		fmt.Fprintln(out, "Collect: wait up to", cfg.Collect.MemberTimeout, "per member")
	} else {
		fmt.Fprintln(out, "Collect: wait for every member")
	}
	if len(cfg.Collect.Peers) > 0 {
		fmt.Fprintln(out, "Peers:", strings.Join(cfg.Collect.Peers, ", "))
	}
	fmt.Fprintln(out)

	wantPath, err := cfg.WantListPath()
	if err == nil {
		w, loadErr := wantlist.NewStore(wantPath).Load()
		switch {
		case !fileExists(wantPath):
			fmt.Fprintln(out, "Want list: missing", wantPath)
		case loadErr != nil:
			fmt.Fprintln(out, "Want list: unreadable:", loadErr)
		default:
			fmt.Fprintf(out, "Want list: %s (%d character(s))\n", wantPath, len(w.Characters()))
		}
	}

	if cfg.GetTelegramToken() != "" {
		fmt.Fprintln(out, "Telegram: configured")
	} else {
		fmt.Fprintln(out, "Telegram: off")
	}

	enabled := 0
	for _, job := range cfg.Schedules {
		if cron.Normalize(job).IsEnabled() {
			enabled++
		}
	}
	fmt.Fprintf(out, "Schedules: %d of %d enabled\n", enabled, len(cfg.Schedules))
	return nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(not set)"
	}
	return s
}

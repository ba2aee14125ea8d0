package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/linanwx/ferry/config"
	"github.com/linanwx/ferry/journal"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent trades and collection outcomes",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Number of entries to show (default 20)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	path, err := cfg.JournalPath()
	if err != nil {
		return err
	}
	if !fileExists(path) {
		fmt.Fprintln(cmd.OutOrStdout(), "No history yet:", path)
		return nil
	}

	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No history yet.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tFROM\tTO\tOUTCOME\tITEMS\tDETAIL")
	for _, e := range entries {
		from, to := e.Actor, e.Peer
		if e.Kind == journal.KindCollect {
			from, to = e.Peer, e.Actor
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.At.Local().Format("2006-01-02 15:04:05"),
			e.Kind, from, to, e.Outcome,
			strings.Join(e.Items, ", "), e.Detail,
		)
	}
	return tw.Flush()
}

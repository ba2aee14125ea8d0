package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linanwx/ferry/config"
	"github.com/linanwx/ferry/wantlist"
)

var wantCmd = &cobra.Command{
	Use:   "want",
	Short: "Inspect and edit the want list",
}

var wantListCmd = &cobra.Command{
	Use:   "list [character]",
	Short: "Show what a character wants, or every character with a list",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWantList,
}

var wantAddCmd = &cobra.Command{
	Use:   "add <character> <item name...>",
	Short: "Add an item to a character's want list",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runWantAdd,
}

var wantSortCmd = &cobra.Command{
	Use:   "sort",
	Short: "Rewrite the want list in sorted order",
	Args:  cobra.NoArgs,
	RunE:  runWantSort,
}

func init() {
	wantCmd.AddCommand(wantListCmd, wantAddCmd, wantSortCmd)
	rootCmd.AddCommand(wantCmd)
}

func openWantList() (*wantlist.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	path, err := cfg.WantListPath()
	if err != nil {
		return nil, err
	}
	return wantlist.NewStore(path), nil
}

func runWantList(cmd *cobra.Command, args []string) error {
	store, err := openWantList()
	if err != nil {
		return err
	}
	w, err := store.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		chars := w.Characters()
		if len(chars) == 0 {
			fmt.Fprintln(out, "Want list is empty:", store.Path())
			return nil
		}
		for _, name := range chars {
			_, items, _ := w.Section(name)
			fmt.Fprintf(out, "%s (%d)\n", name, len(items))
		}
		return nil
	}

	names, err := w.Wanted(args[0])
	if errors.Is(err, wantlist.ErrConfigMissing) {
		fmt.Fprintf(out, "No want list for %s. Known: %s\n", args[0], strings.Join(w.Characters(), ", "))
		return nil
	}
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func runWantAdd(cmd *cobra.Command, args []string) error {
	store, err := openWantList()
	if err != nil {
		return err
	}
	character := args[0]
	item := strings.TrimSpace(strings.Join(args[1:], " "))
	if item == "" {
		return fmt.Errorf("item name is empty")
	}
	if err := store.Add(character, item); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s's want list.\n", item, character)
	return nil
}

func runWantSort(cmd *cobra.Command, _ []string) error {
	store, err := openWantList()
	if err != nil {
		return err
	}
	if err := store.Sort(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Want list sorted.")
	return nil
}

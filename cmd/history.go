package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"arstate/internal/history"
	"arstate/internal/tui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List or remove past conversions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past conversions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(store *history.Store) error {
			items, err := store.List(context.Background(), cfg.History.User)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(os.Stdout, historyDimStyle.Render("No history yet."))
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(os.Stdout, "%s  %s  %s\n",
					historyDimStyle.Render(item.CreatedAt.Local().Format("2006-01-02 15:04")),
					historyNameStyle.Render(item.Name),
					historyDimStyle.Render(fmt.Sprintf("%s, %s, %s", item.App, item.Detail, tui.FormatBytes(item.Bytes))),
				)
				fmt.Fprintf(os.Stdout, "  %s\n", historyDimStyle.Render(item.Key))
			}
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all history entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(store *history.Store) error {
			if err := store.Clear(context.Background(), cfg.History.User); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "History cleared.")
			return nil
		})
	},
}

var historyRemoveCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Remove one history entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(func(store *history.Store) error {
			return store.RemoveOne(context.Background(), cfg.History.User, args[0])
		})
	},
}

func withHistory(fn func(store *history.Store) error) error {
	store, err := history.Open(cfg.History.Path, log)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

var (
	historyNameStyle = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorAccent)
	historyDimStyle  = lipgloss.NewStyle().Foreground(tui.ColorDim)
)

func init() {
	historyCmd.AddCommand(historyListCmd, historyClearCmd, historyRemoveCmd)
	rootCmd.AddCommand(historyCmd)
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/glint-sh/glint/internal/config"
	"github.com/glint-sh/glint/internal/history"
)

var (
	historyLimit     int
	historyPruneDays int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show launch history",
	Long: `Show what glint launched, most recent last.

The history ranks frequently used applications first in the resting
list. Use --prune-days to trim old entries instead of listing.

Examples:
  glint history              # Show the last 20 launches
  glint history --limit=50   # Show the last 50 launches
  glint history --prune-days=90  # Drop launches older than 90 days`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of launches to show")
	historyCmd.Flags().IntVar(&historyPruneDays, "prune-days", 0, "Delete launches older than this many days and exit")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.History.Path
	if dbPath == "" {
		dbPath = config.DefaultPaths().HistoryFile()
	}
	store, err := history.Open(dbPath, nil)
	if err != nil {
		fmt.Printf("No history available at: %s\n", dbPath)
		return nil
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if historyPruneDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -historyPruneDays).UnixMilli()
		pruned, err := store.PruneOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
		fmt.Printf("Pruned %d launch(es).\n", pruned)
		return nil
	}

	launches, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}
	if len(launches) == 0 {
		fmt.Println("No launches recorded yet.")
		return nil
	}

	// Oldest at the top, like scrollback.
	for i := len(launches) - 1; i >= 0; i-- {
		printLaunch(launches[i])
	}

	fmt.Println()
	fmt.Printf("%sShowing %d launch(es)%s\n", colorDim, len(launches), colorReset)
	return nil
}

func printLaunch(l history.Launch) {
	timestamp := time.UnixMilli(l.LaunchedAtUnixMs).Format("2006-01-02 15:04:05")
	fmt.Printf("%s%s%s  %-8s  %s", colorDim, timestamp, colorReset, string(l.Kind), l.Label)
	if l.Query != "" {
		fmt.Printf("  %s(%s)%s", colorDim, l.Query, colorReset)
	}
	fmt.Println()
}

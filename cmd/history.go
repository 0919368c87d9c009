package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"coldbench/internal/report"
	"coldbench/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past experiment runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.HistoryPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			rec, err := store.Get(args[0])
			if err != nil {
				return err
			}
			name := fmt.Sprintf("%s (%s, %s)", rec.Target, rec.Label, rec.Mode)
			fmt.Println(report.Summary(name, rec.Summary))
			fmt.Printf("started  %s\nlog      %s\ncollected %d/%d\n",
				rec.StartedAt.Format("2006-01-02 15:04:05"), rec.LogPath, rec.Collected, rec.Requested)
			return nil
		}

		records, err := store.List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}
		for _, rec := range records {
			fmt.Printf("%s  %s  %-6s %-10s n=%-5d median=%.1fms  %s\n",
				rec.ID[:8],
				rec.StartedAt.Format("2006-01-02 15:04"),
				rec.Label, rec.Target, rec.Collected, rec.Summary.MedianMs, rec.LogPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

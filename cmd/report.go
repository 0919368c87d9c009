package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"coldbench/internal/report"
	"coldbench/internal/sample"
	"coldbench/internal/stats"
)

var reportCmd = &cobra.Command{
	Use:   "report [log...]",
	Short: "Summarize sample logs",
	Long: `Loads sample logs and prints descriptive statistics. With multiple
logs a side-by-side comparison table is printed. With no arguments every
.txt log in the log directory is summarized.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		strategy, err := sample.ParseStrategy(cfg.Strategy)
		if err != nil {
			return err
		}
		store := sample.NewFileStore(cfg.LogDir, strategy)

		logs := args
		if len(logs) == 0 {
			matches, err := filepath.Glob(filepath.Join(cfg.LogDir, "*.txt"))
			if err != nil {
				return err
			}
			for _, m := range matches {
				logs = append(logs, filepath.Base(m))
			}
			sort.Strings(logs)
		}
		if len(logs) == 0 {
			return errors.Errorf("no sample logs in %s", cfg.LogDir)
		}

		var rows []report.Row
		for _, logName := range logs {
			samples, err := store.LoadAll(logName)
			if err != nil {
				return err
			}
			rows = append(rows, report.Row{
				Name:    strings.TrimSuffix(logName, ".txt"),
				Summary: stats.Summarize(samples),
			})
		}

		if len(rows) == 1 {
			fmt.Println(report.Summary(rows[0].Name, rows[0].Summary))
			return nil
		}
		fmt.Println(report.Comparison(rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

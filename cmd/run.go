package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coldbench/internal/report"
	"coldbench/internal/runner"
	"coldbench/internal/sample"
	"coldbench/internal/stats"
)

var (
	runTarget string
	runCount  int
	runLog    string
)

var runCmd = &cobra.Command{
	Use:       "run {cold|warm}",
	Short:     "Collect latency samples for a target",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"cold", "warm"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cold := args[0] == "cold"

		var targets []runner.Target
		if runTarget != "" {
			url, err := cfg.TargetURL(runTarget)
			if err != nil {
				return err
			}
			targets = append(targets, runner.Target{Name: runTarget, URL: url})
		} else {
			for name, url := range cfg.Targets {
				targets = append(targets, runner.Target{Name: name, URL: url})
			}
		}
		if len(targets) == 0 {
			return errors.New("no targets configured")
		}
		if runLog != "" && len(targets) > 1 {
			return errors.New("--log requires --target")
		}

		r, cleanup, err := buildRunner(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		for _, target := range targets {
			logName := runLog
			if logName == "" {
				logName = fmt.Sprintf("%s-%s.txt", target.Name, args[0])
			}

			var samples []sample.Sample
			if cold {
				samples, err = r.RunColdStart(ctx, target, runCount, logName)
			} else {
				samples, err = r.RunWarm(ctx, target, runCount, logName)
			}
			if err != nil {
				return errors.Wrapf(err, "target %s", target.Name)
			}
			fmt.Println(report.Summary(target.Name+" ("+args[0]+")", stats.Summarize(samples)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runTarget, "target", "t", "", "target name (default: all configured targets)")
	runCmd.Flags().IntVarP(&runCount, "count", "n", 100, "number of trials")
	runCmd.Flags().StringVar(&runLog, "log", "", "sample log name (default: <target>-<label>.txt)")
	runCmd.Flags().String("mode", "", "run mode (idempotent, cumulative)")
	runCmd.Flags().String("strategy", "", "store strategy (append, snapshot)")

	viper.BindPFlag("mode", runCmd.Flags().Lookup("mode"))
	viper.BindPFlag("strategy", runCmd.Flags().Lookup("strategy"))
}

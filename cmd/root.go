package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coldbench/internal/auth"
	"coldbench/internal/client"
	"coldbench/internal/config"
	"coldbench/internal/runner"
	"coldbench/internal/sample"
	"coldbench/internal/storage"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "coldbench",
	Short: "Cold-start latency benchmark for cloud-hosted HTTP functions",
	Long: `
coldbench measures cold-start and warm-request latency of deployed HTTP
functions. It issues authenticated requests strictly sequentially, forces
cold starts via a query marker, and persists raw latency samples to
plain-text logs for offline statistics and plotting.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.coldbench.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".coldbench")
		}
	}
	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("coldbench")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

// buildRunner wires the full harness from the effective config. The
// returned cleanup closes the history store.
func buildRunner(cfg config.Config) (*runner.Runner, func(), error) {
	strategy, err := sample.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, nil, err
	}
	mode, err := runner.ParseMode(cfg.Mode)
	if err != nil {
		return nil, nil, err
	}

	tokens := auth.NewCached(
		auth.NewCommandSource(cfg.TokenCommand[0], cfg.TokenCommand[1:]...),
		cfg.TokenTTL,
	)
	cl := client.New(tokens, client.Policy{
		MaxAttempts:      cfg.MaxAttempts,
		RateLimitBackoff: cfg.RateLimitBackoff,
		TransientDelay:   cfg.TransientDelay,
	}, cfg.RequestTimeout)

	store := sample.NewFileStore(cfg.LogDir, strategy)
	r := runner.New(cl, store, runner.Config{
		Mode:       mode,
		ColdDelay:  cfg.ColdDelay,
		FlushEvery: cfg.FlushEvery,
	})

	cleanup := func() {}
	if cfg.HistoryPath != "" {
		hist, err := storage.Open(cfg.HistoryPath)
		if err != nil {
			logrus.WithError(err).Warn("run history disabled")
		} else {
			r.History = hist
			cleanup = func() { hist.Close() }
		}
	}
	return r, cleanup, nil
}

package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"coldbench/internal/deploy"
)

var deployCmd = &cobra.Command{
	Use:   "deploy [service...]",
	Short: "Force a fresh deployment of the target services",
	Long: `Rotates a nonce environment variable on each service via the cloud
CLI, forcing a new revision so the next experiment starts from a clean
deployment. With no arguments, every configured target is redeployed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		services := args
		if len(services) == 0 {
			for name := range cfg.Targets {
				services = append(services, name)
			}
		}
		if len(services) == 0 {
			return errors.New("no services given and no targets configured")
		}

		d := deploy.New(cfg.Region)
		for _, svc := range services {
			nonce, err := d.Redeploy(cmd.Context(), svc)
			if err != nil {
				return errors.Wrapf(err, "redeploying %s", svc)
			}
			fmt.Printf("redeployed %s (nonce %s)\n", svc, nonce)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deployCmd)
}

package cmd

import (
	"github.com/spf13/cobra"

	"coldbench/internal/dummy"
)

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a local stand-in function endpoint",
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		token, _ := cmd.Flags().GetString("token")
		dummy.Start(dummy.ServerConfig{Port: port, Token: token})
		select {}
	},
}

func init() {
	dummyCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	dummyCmd.Flags().String("token", "", "bearer token to require (default: no auth)")

	rootCmd.AddCommand(dummyCmd)
}

/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/blue-carbon-registry/apiserver/config"
	"github.com/blue-carbon-registry/apiserver/internal/server"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the registry backend server",
	Long: `Starts the registry backend server. Usage:

	registry server
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()

		log, err := newLogger(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
			os.Exit(1)
		}
		defer log.Sync()

		srv, err := server.New(cmd.Context(), cfg, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
			os.Exit(1)
		}
		defer srv.Shutdown()

		log.Infow("server listening", "port", cfg.ServerPort)
		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

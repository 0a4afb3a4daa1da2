/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/blue-carbon-registry/apiserver/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "registry",
	Short: "Blue Carbon Registry backend",
	Long: `Backend API server for the Blue Carbon Registry: wallet and
email authentication, on-chain role management for NGOs and verifiers,
and the project/proof/retirement lifecycle.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger: human-readable in dev,
// JSON-structured otherwise.
func newLogger(cfg config.Config) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if cfg.Env == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

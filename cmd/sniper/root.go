package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-sniper/internal/config"
	"solana-sniper/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "sniper",
		Short:         "Same-slot launch sniper for Solana",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before SNIPER_* variables")

	cmd.AddCommand(
		newRunCmd(opts),
		newEndpointsCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load reads config and builds the process logger.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

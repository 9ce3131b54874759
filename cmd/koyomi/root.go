package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "koyomi",
	Short: "Koyomi productivity assistant",
	Long:  `Koyomi keeps a markdown vault, a calendar and a chat surface in step: task capture, free-slot search, bidirectional calendar sync and scheduled check-ins.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Server.LogLevel)
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.koyomi/config.yaml)")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("vault.path", "", "vault directory")
	rootCmd.PersistentFlags().String("store.path", "", "index database path")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one bidirectional calendar sync pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.engine.RunBidirectionalSync(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Pulled %d calendar changes, pushed %d task changes\n",
			result.Pulled, result.Pushed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

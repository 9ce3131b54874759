package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the relational index from the vault",
	Long:  `Wipes the derived projections and re-scans the vault tree. The vault is the source of truth; the index is disposable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.indexer.Rebuild(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Indexed %d tasks, %d projects, %d people, %d daily logs\n",
			report.Tasks, report.Projects, report.People, report.DailyLogs)
		for _, failure := range report.Failures {
			fmt.Printf("skipped %s: %v\n", failure.Path, failure.Err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koyomidev/koyomi/internal/calendar"
)

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "List free calendar slots",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		duration, _ := cmd.Flags().GetInt("duration")
		maxSlots, _ := cmd.Flags().GetInt("max")

		slots, err := a.finder.FindFreeSlots(cmd.Context(), calendar.SlotRequest{
			DurationMinutes: duration,
			MaxSlots:        maxSlots,
		})
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			fmt.Println("No free slots found")
			return nil
		}

		for _, slot := range slots {
			fmt.Printf("%s - %s\n",
				slot.Start.Format("Mon Jan 2 15:04"),
				slot.End.Format("15:04"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(slotsCmd)
	slotsCmd.Flags().Int("duration", 30, "slot duration in minutes")
	slotsCmd.Flags().Int("max", 0, "maximum slots to list (0 = configured default)")
}

package cli

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/retrolens/retro-engine/internal/utils"
)

var snapshotsLimit int

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored sprint snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		snaps, err := app.store.ListSnapshots(cmd.Context(), snapshotsLimit)
		if err != nil {
			return fmt.Errorf("list snapshots: %w", err)
		}
		if len(snaps) == 0 {
			fmt.Println("No snapshots stored. Run `retro-engine sync` first.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header([]string{"Sprint", "Name", "Window", "Happiness", "SP Done"})
		var data [][]string
		for _, s := range snaps {
			happiness := "-"
			if s.TeamHappiness != nil {
				happiness = fmt.Sprintf("%.1f", *s.TeamHappiness)
			}
			points := "-"
			if s.StoryPointsCompleted != nil {
				points = fmt.Sprintf("%d", *s.StoryPointsCompleted)
			}
			data = append(data, []string{
				s.SprintID,
				s.SprintName,
				utils.FormatWindow(s.StartDate, s.EndDate),
				happiness,
				points,
			})
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		return table.Render()
	},
}

func init() {
	snapshotsCmd.Flags().IntVar(&snapshotsLimit, "limit", 0, "Maximum snapshots to list (0 = all)")
}

package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	syncTeam    string
	syncSprints int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull sprint snapshots from the metrics provider into the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		n, err := app.service.SyncSnapshots(cmd.Context(), syncTeam, syncSprints)
		if err != nil {
			return fmt.Errorf("sync snapshots: %w", err)
		}

		success := color.New(color.FgGreen, color.Bold)
		success.Printf("Synced %d sprint snapshot(s)\n", n)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncTeam, "team", "", "Team identifier passed to the metrics provider")
	syncCmd.Flags().IntVar(&syncSprints, "sprints", 0, "Number of recent sprints to fetch (0 = configured default)")
}

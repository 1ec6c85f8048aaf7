package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var reportsLimit int

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List stored retrospective reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		summaries, err := app.store.ListReports(cmd.Context(), reportsLimit)
		if err != nil {
			return fmt.Errorf("list reports: %w", err)
		}
		if len(summaries) == 0 {
			fmt.Println("No reports stored. Run `retro-engine report` first.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header([]string{"Report", "Generated", "Period", "Sprints", "Confidence", "Headline"})
		var data [][]string
		for _, s := range summaries {
			data = append(data, []string{
				s.ReportID,
				s.GeneratedAt.Format("2006-01-02 15:04"),
				s.SprintPeriod,
				fmt.Sprintf("%d", s.SprintsAnalyzed),
				string(s.ConfidenceOverall),
				s.Headline,
			})
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		return table.Render()
	},
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Print a stored report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		rep, err := app.store.GetReport(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get report: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	},
}

var purgeOlderThan time.Duration

var reportsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete reports older than the given age",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		n, err := app.service.CleanupReports(cmd.Context(), purgeOlderThan)
		if err != nil {
			return fmt.Errorf("purge reports: %w", err)
		}
		fmt.Printf("Purged %d report(s)\n", n)
		return nil
	},
}

func init() {
	reportsCmd.Flags().IntVar(&reportsLimit, "limit", 20, "Maximum reports to list (0 = all)")
	reportsPurgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 90*24*time.Hour, "Age threshold, e.g. 720h")
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsPurgeCmd)
}

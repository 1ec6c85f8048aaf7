package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/retrolens/retro-engine/internal/charts"
	"github.com/retrolens/retro-engine/internal/models"
)

var (
	reportTeam    string
	reportSprints int
	reportJSON    bool
	reportCharts  bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a retrospective report from stored sprint snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		rep, err := app.service.GenerateReport(cmd.Context(), models.GenerateReportRequest{
			TeamID:      reportTeam,
			SprintCount: reportSprints,
		})
		if err != nil {
			return fmt.Errorf("generate report: %w", err)
		}

		if reportJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		return displayReport(rep)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportTeam, "team", "", "Team identifier")
	reportCmd.Flags().IntVar(&reportSprints, "sprints", 0, "Number of recent sprints to analyse (0 = configured default)")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Emit the raw report as JSON")
	reportCmd.Flags().BoolVar(&reportCharts, "charts", false, "Render ASCII charts for line series")
}

func displayReport(rep models.RetrospectiveReport) error {
	heading := color.New(color.FgCyan, color.Bold)
	section := color.New(color.Bold)

	heading.Println(rep.Headline)
	fmt.Printf("%s | %d sprints | confidence %s | %s\n\n",
		rep.SprintPeriod, rep.SprintsAnalyzed, rep.ConfidenceOverall, rep.ReportID)
	fmt.Println(rep.Summary)
	fmt.Println()

	if len(rep.Trends) > 0 {
		section.Println("Trends")
		table := tablewriter.NewWriter(os.Stdout)
		table.Header([]string{"Metric", "Previous", "Current", "Change", "Direction"})
		var data [][]string
		for _, t := range rep.Trends {
			change := fmt.Sprintf("%+.1f%%", t.ChangePercent)
			if t.IsSignificant {
				change += " *"
			}
			data = append(data, []string{
				t.MetricName,
				fmt.Sprintf("%.2f", t.PreviousValue),
				fmt.Sprintf("%.2f", t.CurrentValue),
				change,
				directionLabel(t.Direction),
			})
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Println()
	}

	if len(rep.Correlations) > 0 {
		section.Println("Correlations")
		table := tablewriter.NewWriter(os.Stdout)
		table.Header([]string{"Metric A", "Metric B", "Coefficient", "Interpretation"})
		var data [][]string
		for _, c := range rep.Correlations {
			data = append(data, []string{
				c.Metric1,
				c.Metric2,
				fmt.Sprintf("%+.2f", c.Coefficient),
				c.Interpretation,
			})
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Println()
	}

	if len(rep.Hypotheses) > 0 {
		section.Println("Hypotheses")
		for i, h := range rep.Hypotheses {
			fmt.Printf("%d. %s [%s]\n", i+1, h.Title, confidenceLabel(h.Confidence))
			fmt.Printf("   %s\n", h.Description)
			for _, ev := range h.Evidence {
				fmt.Printf("   - %s: %s (%s)\n", ev.MetricName, ev.Trend, ev.Value)
			}
		}
		fmt.Println()
	}

	if len(rep.SuggestedExperiments) > 0 {
		section.Println("Suggested experiments")
		for i, exp := range rep.SuggestedExperiments {
			fmt.Printf("%d. %s (%d sprint(s))\n", i+1, exp.Title, exp.DurationSprints)
			fmt.Printf("   %s\n", exp.Description)
			if len(exp.SuccessMetrics) > 0 {
				fmt.Printf("   Success metrics: %s\n", strings.Join(exp.SuccessMetrics, ", "))
			}
		}
		fmt.Println()
	}

	if reportCharts {
		for _, chart := range rep.Charts {
			if plot := charts.Sparkline(chart, 8); plot != "" {
				fmt.Println(plot)
				fmt.Println()
			}
		}
	}

	if len(rep.FacilitationGuide.RetroQuestions) > 0 {
		section.Println("Retro questions")
		for _, q := range rep.FacilitationGuide.RetroQuestions {
			fmt.Printf("- %s\n", q)
		}
	}
	return nil
}

func directionLabel(d models.TrendDirection) string {
	switch d {
	case models.TrendUp:
		return color.GreenString("up")
	case models.TrendDown:
		return color.RedString("down")
	default:
		return string(d)
	}
}

func confidenceLabel(c models.ConfidenceLevel) string {
	switch c {
	case models.ConfidenceHigh:
		return color.New(color.FgGreen, color.Bold).Sprint(c)
	case models.ConfidenceMedium:
		return color.YellowString(string(c))
	default:
		return string(c)
	}
}

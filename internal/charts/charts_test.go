package charts

import (
	"math"
	"strings"
	"testing"

	"github.com/retrolens/retro-engine/internal/models"
)

func f(v float64) *float64 { return &v }
func n(v int) *int         { return &v }

func sampleSnapshots() []models.SprintSnapshot {
	return []models.SprintSnapshot{
		{
			SprintName:           "Sprint 1",
			TeamHappiness:        f(8),
			CodingTime:           f(30),
			ReviewTime:           f(10),
			DefectRateProduction: f(0.05),
			BugsProd:             n(1),
			BugsTest:             n(4),
		},
		{
			SprintName:           "Sprint 2",
			TeamHappiness:        f(6),
			CodingTime:           f(32),
			ReviewTime:           f(20),
			DefectRateProduction: f(0.12),
			BugsProd:             n(3),
			BugsTest:             n(2),
			StoryPointDistribution: map[string]int{
				models.SizeSmall: 4, models.SizeMedium: 3, models.SizeLarge: 5,
			},
		},
	}
}

func TestBuildAll(t *testing.T) {
	builder := NewBuilder(nil)

	correlations := []models.CorrelationResult{
		{Metric1: "review_time", Metric2: "defect_rate_production", Coefficient: 0.9},
	}
	charts := builder.BuildAll(sampleSnapshots(), correlations)

	// happiness, time metrics, defect rates, distribution, bugs, heatmap
	if len(charts) != 6 {
		t.Fatalf("expected 6 charts, got %d", len(charts))
	}

	ids := make(map[string]bool)
	for _, c := range charts {
		ids[c.ChartID] = true
	}
	for _, want := range []string{"happiness_trend", "time_metrics", "defect_rates", "story_point_dist", "bugs_by_env", "correlation_heatmap"} {
		if !ids[want] {
			t.Fatalf("missing chart %s", want)
		}
	}
}

func TestBuildAllSkipsOptionalCharts(t *testing.T) {
	builder := NewBuilder(nil)

	snapshots := []models.SprintSnapshot{{SprintName: "Sprint 1"}, {SprintName: "Sprint 2"}}
	charts := builder.BuildAll(snapshots, nil)
	for _, c := range charts {
		if c.ChartID == "story_point_dist" || c.ChartID == "correlation_heatmap" {
			t.Fatalf("chart %s should be skipped without data", c.ChartID)
		}
	}
}

func TestHappinessTrendTargetLine(t *testing.T) {
	builder := NewBuilder(nil)

	chart := builder.HappinessTrend(sampleSnapshots())
	if len(chart.Series) != 2 {
		t.Fatalf("expected happiness + target series, got %d", len(chart.Series))
	}
	target := chart.Series[1]
	for _, v := range target.Values {
		if v != HappinessTarget {
			t.Fatalf("target series should hold %v, got %v", HappinessTarget, v)
		}
	}
	// 8 -> 6 is a 25% drop: annotated.
	if len(chart.Annotations) != 1 || !strings.Contains(chart.Annotations[0], "Decreasing trend") {
		t.Fatalf("expected decreasing annotation, got %v", chart.Annotations)
	}
}

func TestDefectRatesScaledToPercent(t *testing.T) {
	builder := NewBuilder(nil)

	chart := builder.DefectRates(sampleSnapshots())
	prod := chart.Series[0]
	if math.Abs(prod.Values[0]-5) > 1e-9 || math.Abs(prod.Values[1]-12) > 1e-9 {
		t.Fatalf("defect rates not scaled to percent: %v", prod.Values)
	}
	if len(chart.Annotations) != 1 || !strings.Contains(chart.Annotations[0], "Increasing trend") {
		t.Fatalf("expected increasing annotation, got %v", chart.Annotations)
	}
}

func TestBugsByEnvironmentStacked(t *testing.T) {
	builder := NewBuilder(nil)

	chart := builder.BugsByEnvironment(sampleSnapshots())
	if !chart.Stacked {
		t.Fatalf("bugs chart must be stacked")
	}
	if len(chart.Series) != 5 {
		t.Fatalf("expected 5 environment series, got %d", len(chart.Series))
	}
	if chart.Series[0].Name != "PROD" || chart.Series[0].Values[1] != 3 {
		t.Fatalf("unexpected PROD series: %+v", chart.Series[0])
	}
	// Absent counts become zero.
	if chart.Series[3].Values[0] != 0 {
		t.Fatalf("missing counts should be zero, got %v", chart.Series[3].Values)
	}
}

func TestCorrelationHeatmapMatrix(t *testing.T) {
	builder := NewBuilder(nil)

	correlations := []models.CorrelationResult{
		{Metric1: "review_time", Metric2: "defect_rate_production", Coefficient: 0.9},
		{Metric1: "team_happiness", Metric2: "review_time", Coefficient: -0.7},
	}
	chart := builder.CorrelationHeatmap(correlations)

	if len(chart.AxisLabels) != 3 {
		t.Fatalf("expected 3 metrics, got %v", chart.AxisLabels)
	}
	n := len(chart.AxisLabels)
	for i := 0; i < n; i++ {
		if chart.Matrix[i][i] != 1.0 {
			t.Fatalf("diagonal must be 1.0")
		}
		for j := 0; j < n; j++ {
			if chart.Matrix[i][j] != chart.Matrix[j][i] {
				t.Fatalf("matrix must be symmetric")
			}
		}
	}
}

func TestSparkline(t *testing.T) {
	builder := NewBuilder(nil)

	chart := builder.HappinessTrend(sampleSnapshots())
	out := Sparkline(chart, 4)
	if out == "" {
		t.Fatalf("expected ascii sparkline output")
	}
	if !strings.Contains(out, "Team Happiness Trend") {
		t.Fatalf("sparkline should carry the chart title caption")
	}

	if Sparkline(builder.CorrelationHeatmap(nil), 4) != "" {
		t.Fatalf("heatmaps cannot be sparklined")
	}
}

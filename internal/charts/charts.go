// Package charts builds renderer-agnostic chart payloads for the report. The
// web frontend renders them as interactive figures; the CLI renders line
// series as ASCII sparklines.
package charts

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/guptarohit/asciigraph"

	"github.com/retrolens/retro-engine/internal/models"
)

// HappinessTarget is the reference line on the happiness chart.
const HappinessTarget = 7.0

// Builder assembles chart payloads from sprint snapshots and analysis
// results.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder constructs a chart builder.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger}
}

// BuildAll produces the full chart set for a report. The distribution chart
// is skipped when the latest sprint carries no bucket data, and the heatmap
// when no correlations were found.
func (b *Builder) BuildAll(snapshots []models.SprintSnapshot, correlations []models.CorrelationResult) []models.ChartData {
	charts := []models.ChartData{
		b.HappinessTrend(snapshots),
		b.TimeMetrics(snapshots),
		b.DefectRates(snapshots),
	}

	if len(snapshots) > 0 && len(snapshots[len(snapshots)-1].StoryPointDistribution) > 0 {
		charts = append(charts, b.StoryPointDistribution(snapshots))
	}

	charts = append(charts, b.BugsByEnvironment(snapshots))

	if len(correlations) > 0 {
		charts = append(charts, b.CorrelationHeatmap(correlations))
	}

	b.logger.Info("built charts", slog.Int("count", len(charts)))
	return charts
}

// HappinessTrend is a line chart of team happiness against the 7.0 target.
func (b *Builder) HappinessTrend(snapshots []models.SprintSnapshot) models.ChartData {
	labels, values := series(snapshots, models.MetricTeamHappiness)
	return models.ChartData{
		ChartID:   "happiness_trend",
		ChartType: models.ChartLine,
		Title:     "Team Happiness Trend",
		Series: []models.ChartSeries{
			{Name: "Team Happiness", Labels: labels, Values: values},
			{Name: "Target", Labels: labels, Values: constantSeries(HappinessTarget, len(labels))},
		},
		Annotations: driftAnnotations(values),
	}
}

// TimeMetrics plots the coding, review, and testing hours side by side.
func (b *Builder) TimeMetrics(snapshots []models.SprintSnapshot) models.ChartData {
	chart := models.ChartData{
		ChartID:   "time_metrics",
		ChartType: models.ChartLine,
		Title:     "Workflow Time Metrics",
	}
	for _, m := range []struct {
		name   string
		metric string
	}{
		{"Coding Time", models.MetricCodingTime},
		{"Review Time", models.MetricReviewTime},
		{"Testing Time", models.MetricTestingTime},
	} {
		labels, values := series(snapshots, m.metric)
		if len(values) == 0 {
			continue
		}
		chart.Series = append(chart.Series, models.ChartSeries{Name: m.name, Labels: labels, Values: values})
	}
	return chart
}

// DefectRates plots production and overall defect rates as percentages.
func (b *Builder) DefectRates(snapshots []models.SprintSnapshot) models.ChartData {
	prodLabels, prodValues := series(snapshots, models.MetricDefectRateProduction)
	allLabels, allValues := series(snapshots, "defect_rate_all")
	scale(prodValues, 100)
	scale(allValues, 100)

	return models.ChartData{
		ChartID:   "defect_rates",
		ChartType: models.ChartLine,
		Title:     "Defect Rate Trends",
		Series: []models.ChartSeries{
			{Name: "Production Defect Rate", Labels: prodLabels, Values: prodValues},
			{Name: "All Defect Rate", Labels: allLabels, Values: allValues},
		},
		Annotations: driftAnnotations(prodValues),
	}
}

// StoryPointDistribution is a bar chart of the latest sprint's size buckets.
func (b *Builder) StoryPointDistribution(snapshots []models.SprintSnapshot) models.ChartData {
	latest := snapshots[len(snapshots)-1]

	var labels []string
	var values []float64
	for _, size := range []string{models.SizeSmall, models.SizeMedium, models.SizeLarge} {
		if count, ok := latest.StoryPointDistribution[size]; ok {
			labels = append(labels, size)
			values = append(values, float64(count))
		}
	}

	title := "Story Point Distribution"
	if latest.SprintName != "" {
		title = fmt.Sprintf("Story Point Distribution - %s", latest.SprintName)
	}

	return models.ChartData{
		ChartID:   "story_point_dist",
		ChartType: models.ChartBar,
		Title:     title,
		Series:    []models.ChartSeries{{Name: "Stories", Labels: labels, Values: values}},
	}
}

// BugsByEnvironment is a stacked bar chart of bug counts per environment.
func (b *Builder) BugsByEnvironment(snapshots []models.SprintSnapshot) models.ChartData {
	labels := sprintLabels(snapshots)

	envs := []struct {
		name string
		get  func(*models.SprintSnapshot) *int
	}{
		{"PROD", func(s *models.SprintSnapshot) *int { return s.BugsProd }},
		{"ACC", func(s *models.SprintSnapshot) *int { return s.BugsAcc }},
		{"TEST", func(s *models.SprintSnapshot) *int { return s.BugsTest }},
		{"DEV", func(s *models.SprintSnapshot) *int { return s.BugsDev }},
		{"OTHER", func(s *models.SprintSnapshot) *int { return s.BugsOther }},
	}

	chart := models.ChartData{
		ChartID:   "bugs_by_env",
		ChartType: models.ChartBar,
		Title:     "Bugs by Environment",
		Stacked:   true,
	}
	for _, env := range envs {
		values := make([]float64, len(snapshots))
		for i := range snapshots {
			if v := env.get(&snapshots[i]); v != nil {
				values[i] = float64(*v)
			}
		}
		chart.Series = append(chart.Series, models.ChartSeries{Name: env.name, Labels: labels, Values: values})
	}
	return chart
}

// CorrelationHeatmap builds a symmetric matrix over the metrics that appear
// in any strong correlation, with a unit diagonal.
func (b *Builder) CorrelationHeatmap(correlations []models.CorrelationResult) models.ChartData {
	seen := make(map[string]int)
	var metrics []string
	add := func(name string) {
		if _, ok := seen[name]; !ok {
			seen[name] = 0
			metrics = append(metrics, name)
		}
	}
	for _, c := range correlations {
		add(c.Metric1)
		add(c.Metric2)
	}
	sort.Strings(metrics)
	for i, m := range metrics {
		seen[m] = i
	}

	n := len(metrics)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1.0
	}
	for _, c := range correlations {
		i, j := seen[c.Metric1], seen[c.Metric2]
		matrix[i][j] = c.Coefficient
		matrix[j][i] = c.Coefficient
	}

	return models.ChartData{
		ChartID:    "correlation_heatmap",
		ChartType:  models.ChartHeatmap,
		Title:      "Metric Correlations",
		AxisLabels: metrics,
		Matrix:     matrix,
	}
}

// Sparkline renders the first series of a line chart as an ASCII graph for
// terminal output. Non-line charts and empty series yield an empty string.
func Sparkline(chart models.ChartData, height int) string {
	if chart.ChartType != models.ChartLine || len(chart.Series) == 0 {
		return ""
	}
	values := chart.Series[0].Values
	if len(values) < 2 {
		return ""
	}
	if height <= 0 {
		height = 6
	}
	return asciigraph.Plot(values,
		asciigraph.Height(height),
		asciigraph.Caption(chart.Title),
	)
}

// driftAnnotations flags a ±20% drift between the first and last
// observation.
func driftAnnotations(values []float64) []string {
	if len(values) < 2 {
		return nil
	}
	first, last := values[0], values[len(values)-1]
	switch {
	case last > first*1.2:
		return []string{fmt.Sprintf("Increasing trend: %.1f → %.1f", first, last)}
	case last < first*0.8:
		return []string{fmt.Sprintf("Decreasing trend: %.1f → %.1f", first, last)}
	}
	return nil
}

func series(snapshots []models.SprintSnapshot, metric string) (labels []string, values []float64) {
	for i := range snapshots {
		v, ok := models.MetricValue(&snapshots[i], metric)
		if !ok {
			continue
		}
		labels = append(labels, labelFor(&snapshots[i], i))
		values = append(values, v)
	}
	return labels, values
}

func sprintLabels(snapshots []models.SprintSnapshot) []string {
	labels := make([]string, len(snapshots))
	for i := range snapshots {
		labels[i] = labelFor(&snapshots[i], i)
	}
	return labels
}

func labelFor(s *models.SprintSnapshot, index int) string {
	if s.SprintName != "" {
		return s.SprintName
	}
	return fmt.Sprintf("Sprint %d", index+1)
}

func constantSeries(v float64, n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	return values
}

func scale(values []float64, factor float64) {
	for i := range values {
		values[i] *= factor
	}
}

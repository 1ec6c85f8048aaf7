package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/retrolens/retro-engine/internal/config"
	"github.com/retrolens/retro-engine/internal/models"
)

// Analyzer performs trend and correlation analysis over sprint snapshots.
// Snapshots must be ordered chronologically, oldest first.
type Analyzer struct {
	logger               *slog.Logger
	trendThreshold       float64
	correlationThreshold float64
}

// NewAnalyzer constructs an Analyzer with the configured thresholds.
func NewAnalyzer(logger *slog.Logger, cfg config.AnalysisConfig) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	trendThreshold := cfg.TrendThreshold
	if trendThreshold == 0 {
		trendThreshold = 0.20
	}
	correlationThreshold := cfg.CorrelationThreshold
	if correlationThreshold == 0 {
		correlationThreshold = 0.6
	}
	return &Analyzer{
		logger:               logger,
		trendThreshold:       trendThreshold,
		correlationThreshold: correlationThreshold,
	}
}

// AnalyzeTrends compares the two most recent observations of every requested
// metric. With metricNames nil all registered metrics are analyzed. Fewer
// than two snapshots yields an empty result.
func (a *Analyzer) AnalyzeTrends(snapshots []models.SprintSnapshot, metricNames []string) []models.TrendResult {
	if len(snapshots) < 2 {
		a.logger.Warn("need at least 2 sprints for trend analysis", slog.Int("sprints", len(snapshots)))
		return nil
	}

	if metricNames == nil {
		metricNames = models.MetricNames()
	}

	trends := make([]models.TrendResult, 0, len(metricNames))
	for _, name := range metricNames {
		if !models.KnownMetric(name) {
			continue
		}
		if trend, ok := a.calculateTrend(snapshots, name); ok {
			trends = append(trends, trend)
		}
	}

	a.logger.Info("analyzed trends", slog.Int("metrics", len(trends)))
	return trends
}

func (a *Analyzer) calculateTrend(snapshots []models.SprintSnapshot, name string) (models.TrendResult, bool) {
	values := metricSeries(snapshots, name)
	if len(values) < 2 {
		return models.TrendResult{}, false
	}

	current := values[len(values)-1]
	previous := values[len(values)-2]

	changePercent := 0.0
	if previous != 0 {
		changePercent = (current - previous) / previous * 100
	}

	direction := models.TrendStable
	switch {
	case math.Abs(changePercent) < 1.0:
		direction = models.TrendStable
	case changePercent > 0:
		direction = models.TrendUp
	default:
		direction = models.TrendDown
	}

	isSignificant := math.Abs(changePercent/100) >= a.trendThreshold

	// Crude trend test: correlate the series against its sprint index.
	significanceLevel := ""
	if len(values) >= 3 {
		index := make([]float64, len(values))
		for i := range index {
			index[i] = float64(i)
		}
		if _, p := pearson(index, values); !math.IsNaN(p) {
			switch {
			case p < 0.01:
				significanceLevel = "p < 0.01"
			case p < 0.05:
				significanceLevel = "p < 0.05"
			}
		}
	}

	return models.TrendResult{
		MetricName:        name,
		CurrentValue:      current,
		PreviousValue:     previous,
		ChangePercent:     round2(changePercent),
		Direction:         direction,
		IsSignificant:     isSignificant,
		SignificanceLevel: significanceLevel,
	}, true
}

// DetectAnomalies flags observations whose z-score against the whole series
// exceeds the threshold. Indices refer to the non-null series, not the full
// snapshot list.
func (a *Analyzer) DetectAnomalies(snapshots []models.SprintSnapshot, name string, zThreshold float64) []Anomaly {
	values := metricSeries(snapshots, name)
	if len(values) < 3 {
		return nil
	}

	m := mean(values)
	std := sampleStdDev(values)
	if std == 0 || math.IsNaN(std) {
		return nil
	}

	var anomalies []Anomaly
	for i, v := range values {
		z := (v - m) / std
		if math.Abs(z) >= zThreshold {
			anomalies = append(anomalies, Anomaly{Index: i, Value: v, ZScore: z})
		}
	}
	return anomalies
}

// Anomaly is an observation far from the series mean.
type Anomaly struct {
	Index  int
	Value  float64
	ZScore float64
}

// MovingAverage computes a trailing moving average of a metric with the given
// window, emitting a value from the first observation onward.
func (a *Analyzer) MovingAverage(snapshots []models.SprintSnapshot, name string, window int) []float64 {
	if window < 1 {
		window = 1
	}
	values := metricSeries(snapshots, name)
	out := make([]float64, len(values))
	for i := range values {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		out[i] = mean(values[lo : i+1])
	}
	return out
}

// DistributionSummary aggregates story point buckets across sprints.
type DistributionSummary struct {
	Pattern      string
	Percentages  map[string]float64
	TotalStories int
	LargePercent float64
}

// StoryPointDistribution aggregates the per-sprint size buckets and names the
// dominant pattern.
func (a *Analyzer) StoryPointDistribution(snapshots []models.SprintSnapshot) DistributionSummary {
	totals := make(map[string]int)
	found := false
	for _, s := range snapshots {
		if len(s.StoryPointDistribution) == 0 {
			continue
		}
		found = true
		for size, count := range s.StoryPointDistribution {
			totals[size] += count
		}
	}
	if !found {
		return DistributionSummary{Pattern: "No distribution data available"}
	}

	total := 0
	for _, c := range totals {
		total += c
	}
	percentages := make(map[string]float64, len(totals))
	for size, c := range totals {
		percentages[size] = float64(c) / float64(total) * 100
	}

	large := percentages[models.SizeLarge]
	small := percentages[models.SizeSmall]

	pattern := "balanced"
	switch {
	case large > 40:
		pattern = "large_story_concentration"
	case small > 60:
		pattern = "small_story_concentration"
	}

	return DistributionSummary{
		Pattern:      pattern,
		Percentages:  percentages,
		TotalStories: total,
		LargePercent: large,
	}
}

// metricSeries extracts the non-null values of a metric in snapshot order.
func metricSeries(snapshots []models.SprintSnapshot, name string) []float64 {
	values := make([]float64, 0, len(snapshots))
	for i := range snapshots {
		if v, ok := models.MetricValue(&snapshots[i], name); ok {
			values = append(values, v)
		}
	}
	return values
}

func formatCount(v float64) string {
	return fmt.Sprintf("%.0f", v)
}

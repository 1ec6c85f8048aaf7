package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/retrolens/retro-engine/internal/models"
)

// AnalyzeCorrelations computes pairwise Pearson correlations across the
// requested metrics and keeps the strong ones, sorted by absolute strength.
// Fewer than three snapshots yields an empty result.
func (a *Analyzer) AnalyzeCorrelations(snapshots []models.SprintSnapshot, metricNames []string) []models.CorrelationResult {
	if len(snapshots) < 3 {
		a.logger.Warn("need at least 3 sprints for correlation analysis", slog.Int("sprints", len(snapshots)))
		return nil
	}

	if metricNames == nil {
		metricNames = models.MetricNames()
	}

	var correlations []models.CorrelationResult
	for i, metric1 := range metricNames {
		if !models.KnownMetric(metric1) {
			continue
		}
		for _, metric2 := range metricNames[i+1:] {
			if !models.KnownMetric(metric2) {
				continue
			}
			if result, ok := a.calculateCorrelation(snapshots, metric1, metric2); ok && result.IsStrong {
				correlations = append(correlations, result)
			}
		}
	}

	sort.SliceStable(correlations, func(i, j int) bool {
		return math.Abs(correlations[i].Coefficient) > math.Abs(correlations[j].Coefficient)
	})

	a.logger.Info("found strong correlations", slog.Int("count", len(correlations)))
	return correlations
}

func (a *Analyzer) calculateCorrelation(snapshots []models.SprintSnapshot, metric1, metric2 string) (models.CorrelationResult, bool) {
	// Pairwise deletion: only sprints where both metrics are present.
	var xs, ys []float64
	for i := range snapshots {
		x, ok1 := models.MetricValue(&snapshots[i], metric1)
		y, ok2 := models.MetricValue(&snapshots[i], metric2)
		if ok1 && ok2 {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	if len(xs) < 3 {
		return models.CorrelationResult{}, false
	}

	std1 := sampleStdDev(xs)
	std2 := sampleStdDev(ys)
	if std1 == 0 || std2 == 0 {
		return models.CorrelationResult{}, false
	}

	r, p := pearson(xs, ys)
	if math.IsNaN(r) {
		return models.CorrelationResult{}, false
	}

	isStrong := math.Abs(r) >= a.correlationThreshold

	strength := "strong"
	switch {
	case math.Abs(r) < 0.3:
		strength = "weak"
	case math.Abs(r) < 0.6:
		strength = "moderate"
	}

	direction := "negative"
	if r > 0 {
		direction = "positive"
	}

	interpretation := fmt.Sprintf("%s%s %s correlation (r=%.2f)",
		strings.ToUpper(strength[:1]), strength[1:], direction, r)
	if p < 0.05 {
		interpretation += " (statistically significant)"
	}

	return models.CorrelationResult{
		Metric1:        metric1,
		Metric2:        metric2,
		Coefficient:    round3(r),
		IsStrong:       isStrong,
		Interpretation: interpretation,
	}, true
}

package engine

import (
	"math"
	"strings"
	"testing"

	"github.com/retrolens/retro-engine/internal/models"
)

func TestAnalyzeCorrelationsStrongPair(t *testing.T) {
	analyzer := NewAnalyzer(nil, analysisDefaults())

	snapshots := []models.SprintSnapshot{
		{ReviewTime: f(10), DefectRateProduction: f(0.1)},
		{ReviewTime: f(20), DefectRateProduction: f(0.2)},
		{ReviewTime: f(30), DefectRateProduction: f(0.3)},
		{ReviewTime: f(40), DefectRateProduction: f(0.4)},
	}

	results := analyzer.AnalyzeCorrelations(snapshots, []string{models.MetricReviewTime, models.MetricDefectRateProduction})
	if len(results) != 1 {
		t.Fatalf("expected 1 correlation, got %d", len(results))
	}
	corr := results[0]
	if corr.Coefficient != 1 {
		t.Fatalf("expected r=1, got %f", corr.Coefficient)
	}
	if !corr.IsStrong {
		t.Fatalf("expected strong correlation")
	}
	if !strings.Contains(corr.Interpretation, "Strong positive correlation") {
		t.Fatalf("unexpected interpretation: %q", corr.Interpretation)
	}
	if !strings.Contains(corr.Interpretation, "statistically significant") {
		t.Fatalf("perfect correlation should be flagged significant: %q", corr.Interpretation)
	}
}

func TestAnalyzeCorrelationsZeroVarianceGuard(t *testing.T) {
	analyzer := NewAnalyzer(nil, analysisDefaults())

	snapshots := []models.SprintSnapshot{
		{ReviewTime: f(10), TestingTime: f(5)},
		{ReviewTime: f(10), TestingTime: f(5)},
		{ReviewTime: f(10), TestingTime: f(5)},
	}

	results := analyzer.AnalyzeCorrelations(snapshots, []string{models.MetricReviewTime, models.MetricTestingTime})
	if len(results) != 0 {
		t.Fatalf("constant metrics must not correlate, got %d results", len(results))
	}
}

func TestAnalyzeCorrelationsWeakPairDropped(t *testing.T) {
	analyzer := NewAnalyzer(nil, analysisDefaults())

	snapshots := []models.SprintSnapshot{
		{ReviewTime: f(10), TeamHappiness: f(7)},
		{ReviewTime: f(20), TeamHappiness: f(5)},
		{ReviewTime: f(15), TeamHappiness: f(8)},
		{ReviewTime: f(25), TeamHappiness: f(6)},
		{ReviewTime: f(12), TeamHappiness: f(7.5)},
	}

	results := analyzer.AnalyzeCorrelations(snapshots, []string{models.MetricReviewTime, models.MetricTeamHappiness})
	for _, c := range results {
		if math.Abs(c.Coefficient) < 0.6 {
			t.Fatalf("weak correlation leaked through: %+v", c)
		}
	}
}

func TestAnalyzeCorrelationsNeedsThreeSnapshots(t *testing.T) {
	analyzer := NewAnalyzer(nil, analysisDefaults())

	snapshots := []models.SprintSnapshot{
		{ReviewTime: f(10), TestingTime: f(5)},
		{ReviewTime: f(20), TestingTime: f(10)},
	}
	if results := analyzer.AnalyzeCorrelations(snapshots, nil); len(results) != 0 {
		t.Fatalf("expected empty result for <3 sprints, got %d", len(results))
	}
}

func TestAnalyzeCorrelationsPairwiseDeletion(t *testing.T) {
	analyzer := NewAnalyzer(nil, analysisDefaults())

	// Only three sprints carry both metrics; the overlap must still be
	// enough to correlate.
	snapshots := []models.SprintSnapshot{
		{ReviewTime: f(10), TestingTime: f(1)},
		{ReviewTime: f(20)},
		{ReviewTime: f(30), TestingTime: f(3)},
		{TestingTime: f(9)},
		{ReviewTime: f(50), TestingTime: f(5)},
	}

	results := analyzer.AnalyzeCorrelations(snapshots, []string{models.MetricReviewTime, models.MetricTestingTime})
	if len(results) != 1 {
		t.Fatalf("expected 1 correlation from overlapping sprints, got %d", len(results))
	}
	if results[0].Coefficient != 1 {
		t.Fatalf("expected r=1 on the overlap, got %f", results[0].Coefficient)
	}
}

func TestAnalyzeCorrelationsSortedByStrength(t *testing.T) {
	analyzer := NewAnalyzer(nil, analysisDefaults())

	// review/testing correlate perfectly; happiness anti-correlates with
	// review imperfectly.
	snapshots := []models.SprintSnapshot{
		{ReviewTime: f(10), TestingTime: f(1), TeamHappiness: f(9)},
		{ReviewTime: f(20), TestingTime: f(2), TeamHappiness: f(8)},
		{ReviewTime: f(30), TestingTime: f(3), TeamHappiness: f(5)},
		{ReviewTime: f(40), TestingTime: f(4), TeamHappiness: f(5.5)},
	}

	results := analyzer.AnalyzeCorrelations(snapshots, []string{
		models.MetricReviewTime, models.MetricTestingTime, models.MetricTeamHappiness,
	})
	if len(results) < 2 {
		t.Fatalf("expected at least 2 strong correlations, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if math.Abs(results[i].Coefficient) > math.Abs(results[i-1].Coefficient) {
			t.Fatalf("results not sorted by |r| descending")
		}
	}
	if results[0].Metric1 != models.MetricReviewTime || results[0].Metric2 != models.MetricTestingTime {
		t.Fatalf("strongest pair should lead, got %s/%s", results[0].Metric1, results[0].Metric2)
	}
}

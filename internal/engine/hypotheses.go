package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/retrolens/retro-engine/internal/config"
	"github.com/retrolens/retro-engine/internal/models"
)

// HypothesisEngine turns trends and correlations into scored, evidenced
// hypotheses about likely root causes.
type HypothesisEngine struct {
	logger           *slog.Logger
	confidenceHigh   float64
	confidenceMedium float64
	detectors        []detector
}

type detector func(*HypothesisEngine, []models.TrendResult, []models.CorrelationResult, []models.SprintSnapshot) (models.Hypothesis, bool)

// NewHypothesisEngine constructs the engine with its fixed detector set.
func NewHypothesisEngine(logger *slog.Logger, cfg config.AnalysisConfig) *HypothesisEngine {
	if logger == nil {
		logger = slog.Default()
	}
	high := cfg.ConfidenceHigh
	if high == 0 {
		high = 0.8
	}
	medium := cfg.ConfidenceMedium
	if medium == 0 {
		medium = 0.5
	}
	return &HypothesisEngine{
		logger:           logger,
		confidenceHigh:   high,
		confidenceMedium: medium,
		detectors: []detector{
			(*HypothesisEngine).checkReviewBottleneck,
			(*HypothesisEngine).checkStorySizing,
			(*HypothesisEngine).checkQuality,
			(*HypothesisEngine).checkTeamMorale,
			(*HypothesisEngine).checkWorkflowEfficiency,
			(*HypothesisEngine).checkTestingGaps,
		},
	}
}

// Generate runs every detector, ranks the firing hypotheses by confidence
// score and returns at most maxHypotheses of them. Ties keep detector order.
func (e *HypothesisEngine) Generate(
	trends []models.TrendResult,
	correlations []models.CorrelationResult,
	snapshots []models.SprintSnapshot,
	maxHypotheses int,
) []models.Hypothesis {
	if maxHypotheses <= 0 {
		maxHypotheses = 3
	}

	var hypotheses []models.Hypothesis
	for _, detect := range e.detectors {
		if h, ok := detect(e, trends, correlations, snapshots); ok {
			hypotheses = append(hypotheses, h)
		}
	}

	sort.SliceStable(hypotheses, func(i, j int) bool {
		return hypotheses[i].ConfidenceScore > hypotheses[j].ConfidenceScore
	})

	if len(hypotheses) > maxHypotheses {
		hypotheses = hypotheses[:maxHypotheses]
	}

	e.logger.Info("generated hypotheses", slog.Int("count", len(hypotheses)))
	return hypotheses
}

func (e *HypothesisEngine) checkReviewBottleneck(trends []models.TrendResult, correlations []models.CorrelationResult, _ []models.SprintSnapshot) (models.Hypothesis, bool) {
	review, ok := findTrend(trends, models.MetricReviewTime)
	if !ok || review.Direction != models.TrendUp {
		return models.Hypothesis{}, false
	}
	if !review.IsSignificant && math.Abs(review.ChangePercent) < 15 {
		return models.Hypothesis{}, false
	}

	evidence := []models.Evidence{{
		MetricName: models.MetricReviewTime,
		Trend:      fmt.Sprintf("%s %.1f%%", review.Direction, math.Abs(review.ChangePercent)),
		Value:      fmt.Sprintf("%.1f → %.1f hours", review.PreviousValue, review.CurrentValue),
	}}

	score := 0.6

	if corr, ok := findCorrelation(correlations, models.MetricReviewTime, models.MetricDefectRateProduction); ok && corr.Coefficient > 0 {
		evidence = append(evidence, models.Evidence{
			MetricName: models.MetricDefectRateProduction,
			Trend:      "correlated with review time",
			Value:      fmt.Sprintf("r=%.2f", corr.Coefficient),
		})
		score += 0.15
	}

	if carried, ok := findTrend(trends, models.MetricItemsCarriedOver); ok && carried.Direction == models.TrendUp {
		evidence = append(evidence, models.Evidence{
			MetricName: models.MetricItemsCarriedOver,
			Trend:      fmt.Sprintf("up %.1f%%", math.Abs(carried.ChangePercent)),
			Value:      fmt.Sprintf("%s → %s items", formatCount(carried.PreviousValue), formatCount(carried.CurrentValue)),
		})
		score += 0.1
	}

	score = clamp(score, 0, 1.0)

	return models.Hypothesis{
		Category: models.CategoryReviewBottleneck,
		Title:    "Review Process Bottleneck",
		Description: fmt.Sprintf(
			"Review time has increased by %.1f%% over recent sprints. "+
				"This suggests the code review process may be becoming a bottleneck, potentially due to "+
				"insufficient reviewer capacity, large PRs, or lack of clear review standards. "+
				"Prolonged review times can lead to context switching and delayed feedback loops.",
			math.Abs(review.ChangePercent)),
		Confidence:      e.scoreToLevel(score),
		ConfidenceScore: round2(score),
		Evidence:        evidence,
		PotentialImpact: "Slower delivery cycles, increased WIP, developer frustration, and potential quality issues " +
			"from rushed reviews or outdated code context.",
		AffectedMetrics: []string{"review_time", "cycle_time", "developer_satisfaction"},
	}, true
}

func (e *HypothesisEngine) checkStorySizing(trends []models.TrendResult, _ []models.CorrelationResult, snapshots []models.SprintSnapshot) (models.Hypothesis, bool) {
	itemsOut, ok := findTrend(trends, models.MetricItemsOutOfSprintPercent)
	if !ok || itemsOut.Direction != models.TrendUp {
		return models.Hypothesis{}, false
	}
	if len(snapshots) == 0 {
		return models.Hypothesis{}, false
	}

	recent := snapshots[len(snapshots)-1]
	dist := recent.StoryPointDistribution
	if len(dist) == 0 {
		return models.Hypothesis{}, false
	}

	total := 0
	for _, c := range dist {
		total += c
	}
	largePercent := 0.0
	if total > 0 {
		largePercent = float64(dist[models.SizeLarge]) / float64(total) * 100
	}
	if largePercent < 30 {
		return models.Hypothesis{}, false
	}

	evidence := []models.Evidence{
		{
			MetricName: models.MetricItemsOutOfSprintPercent,
			Trend:      fmt.Sprintf("up %.1f%%", math.Abs(itemsOut.ChangePercent)),
			Value:      fmt.Sprintf("%.1f%% → %.1f%%", itemsOut.PreviousValue, itemsOut.CurrentValue),
		},
		{
			MetricName: "story_point_distribution",
			Trend:      fmt.Sprintf("%.0f%% large stories", largePercent),
			Value:      fmt.Sprintf("Large stories: %d/%d", dist[models.SizeLarge], total),
		},
	}

	score := 0.65
	if largePercent > 40 {
		score = 0.8
	}

	return models.Hypothesis{
		Category: models.CategoryStorySizing,
		Title:    "Story Sizing and Slicing Issues",
		Description: fmt.Sprintf(
			"Increasingly high percentage of items out of sprint (%.0f%%) "+
				"combined with high concentration of large stories (%.0f%%). "+
				"This pattern suggests stories are not being adequately broken down, making sprint "+
				"planning less predictable and increasing the risk of incomplete work.",
			itemsOut.CurrentValue, largePercent),
		Confidence:      e.scoreToLevel(score),
		ConfidenceScore: round2(score),
		Evidence:        evidence,
		PotentialImpact: "Reduced sprint predictability, more carryover work, difficulty in completing sprint goals, " +
			"and increased risk of large stories blocking progress.",
		AffectedMetrics: []string{"sprint_completion_rate", "velocity_consistency", "planning_accuracy"},
	}, true
}

func (e *HypothesisEngine) checkQuality(trends []models.TrendResult, _ []models.CorrelationResult, _ []models.SprintSnapshot) (models.Hypothesis, bool) {
	defect, ok := findTrend(trends, models.MetricDefectRateProduction)
	if !ok || defect.Direction != models.TrendUp {
		return models.Hypothesis{}, false
	}

	evidence := []models.Evidence{{
		MetricName: models.MetricDefectRateProduction,
		Trend:      fmt.Sprintf("up %.1f%%", math.Abs(defect.ChangePercent)),
		Value:      fmt.Sprintf("%.3f → %.3f", defect.PreviousValue, defect.CurrentValue),
	}}

	score := 0.7

	if testing, ok := findTrend(trends, models.MetricTestingTime); ok && testing.Direction == models.TrendDown {
		evidence = append(evidence, models.Evidence{
			MetricName: models.MetricTestingTime,
			Trend:      fmt.Sprintf("down %.1f%%", math.Abs(testing.ChangePercent)),
			Value:      fmt.Sprintf("%.1f → %.1f hours", testing.PreviousValue, testing.CurrentValue),
		})
		score += 0.15
	}

	score = clamp(score, 0, 1.0)

	return models.Hypothesis{
		Category: models.CategoryQuality,
		Title:    "Quality Assurance Process Degradation",
		Description: fmt.Sprintf(
			"Production defect rate has increased by %.1f%%. "+
				"This may indicate insufficient testing coverage, rushed QA due to time pressure, "+
				"gaps in test automation, or changes in complexity without corresponding test investment.",
			math.Abs(defect.ChangePercent)),
		Confidence:      e.scoreToLevel(score),
		ConfidenceScore: round2(score),
		Evidence:        evidence,
		PotentialImpact: "Increased production incidents, customer dissatisfaction, emergency fixes disrupting planned work, " +
			"and erosion of customer trust.",
		AffectedMetrics: []string{"customer_satisfaction", "production_stability", "unplanned_work"},
	}, true
}

func (e *HypothesisEngine) checkTeamMorale(trends []models.TrendResult, _ []models.CorrelationResult, _ []models.SprintSnapshot) (models.Hypothesis, bool) {
	happiness, ok := findTrend(trends, models.MetricTeamHappiness)
	if !ok || happiness.Direction != models.TrendDown {
		return models.Hypothesis{}, false
	}
	if math.Abs(happiness.ChangePercent) < 10 {
		return models.Hypothesis{}, false
	}

	evidence := []models.Evidence{{
		MetricName: models.MetricTeamHappiness,
		Trend:      fmt.Sprintf("down %.1f%%", math.Abs(happiness.ChangePercent)),
		Value:      fmt.Sprintf("%.1f → %.1f", happiness.PreviousValue, happiness.CurrentValue),
	}}

	score := 0.65

	if review, ok := findTrend(trends, models.MetricReviewTime); ok && review.Direction == models.TrendUp {
		evidence = append(evidence, models.Evidence{
			MetricName: models.MetricReviewTime,
			Trend:      "increasing workload indicator",
			Value:      fmt.Sprintf("up %.1f%%", math.Abs(review.ChangePercent)),
		})
		score += 0.1
	}

	if itemsOut, ok := findTrend(trends, models.MetricItemsOutOfSprintPercent); ok && itemsOut.Direction == models.TrendUp {
		evidence = append(evidence, models.Evidence{
			MetricName: models.MetricItemsOutOfSprintPercent,
			Trend:      "increased pressure/uncertainty",
			Value:      fmt.Sprintf("up %.1f%%", math.Abs(itemsOut.ChangePercent)),
		})
		score += 0.1
	}

	score = clamp(score, 0, 1.0)

	return models.Hypothesis{
		Category: models.CategoryMorale,
		Title:    "Team Morale and Engagement Concerns",
		Description: fmt.Sprintf(
			"Team happiness has declined by %.1f%%. "+
				"This may be correlated with increased workload, process bottlenecks, or external pressures. "+
				"Sustained low morale can lead to decreased productivity, quality issues, and attrition.",
			math.Abs(happiness.ChangePercent)),
		Confidence:      e.scoreToLevel(score),
		ConfidenceScore: round2(score),
		Evidence:        evidence,
		PotentialImpact: "Reduced productivity, increased turnover risk, lower code quality, decreased collaboration, " +
			"and potential team dysfunction.",
		AffectedMetrics: []string{"retention", "productivity", "quality", "collaboration_health"},
	}, true
}

func (e *HypothesisEngine) checkWorkflowEfficiency(trends []models.TrendResult, _ []models.CorrelationResult, _ []models.SprintSnapshot) (models.Hypothesis, bool) {
	phases := []struct {
		name   string
		metric string
	}{
		{"coding", models.MetricCodingTime},
		{"review", models.MetricReviewTime},
		{"testing", models.MetricTestingTime},
	}

	type increasing struct {
		name  string
		trend models.TrendResult
	}
	var rising []increasing
	for _, phase := range phases {
		if t, ok := findTrend(trends, phase.metric); ok && t.Direction == models.TrendUp && t.IsSignificant {
			rising = append(rising, increasing{phase.name, t})
		}
	}
	if len(rising) < 2 {
		return models.Hypothesis{}, false
	}

	evidence := make([]models.Evidence, 0, len(rising))
	names := make([]string, 0, len(rising))
	for _, p := range rising {
		names = append(names, p.name)
		evidence = append(evidence, models.Evidence{
			MetricName: p.name + "_time",
			Trend:      fmt.Sprintf("up %.1f%%", math.Abs(p.trend.ChangePercent)),
			Value:      fmt.Sprintf("%.1f → %.1f hours", p.trend.PreviousValue, p.trend.CurrentValue),
		})
	}

	score := clamp(0.6+float64(len(rising))*0.1, 0, 1.0)

	return models.Hypothesis{
		Category: models.CategoryWorkflow,
		Title:    "Workflow Efficiency Degradation",
		Description: fmt.Sprintf(
			"Multiple workflow phases show increasing time: %s. "+
				"This systematic increase across phases suggests broader workflow issues such as increased complexity, "+
				"inadequate tooling, process inefficiencies, or growing technical debt.",
			strings.Join(names, ", ")),
		Confidence:      e.scoreToLevel(score),
		ConfidenceScore: round2(score),
		Evidence:        evidence,
		PotentialImpact: "Longer cycle times, reduced throughput, missed deadlines, and decreased team capacity for new work.",
		AffectedMetrics: []string{"cycle_time", "throughput", "lead_time", "delivery_predictability"},
	}, true
}

func (e *HypothesisEngine) checkTestingGaps(_ []models.TrendResult, _ []models.CorrelationResult, snapshots []models.SprintSnapshot) (models.Hypothesis, bool) {
	if len(snapshots) == 0 {
		return models.Hypothesis{}, false
	}
	recent := snapshots[len(snapshots)-1]

	prodBugs := 0
	if recent.BugsProd != nil {
		prodBugs = *recent.BugsProd
	}
	totalBugs := recent.TotalBugs()
	if totalBugs == 0 {
		return models.Hypothesis{}, false
	}

	prodPercent := float64(prodBugs) / float64(totalBugs) * 100
	if prodPercent <= 40 || prodBugs < 3 {
		return models.Hypothesis{}, false
	}

	evidence := []models.Evidence{{
		MetricName: "bugs_prod",
		Trend:      fmt.Sprintf("%.0f%% of bugs found in production", prodPercent),
		Value:      fmt.Sprintf("%d/%d bugs", prodBugs, totalBugs),
	}}

	if recent.BugsMissedTesting != nil && *recent.BugsMissedTesting > 0 {
		evidence = append(evidence, models.Evidence{
			MetricName: "bugs_missed_testing",
			Trend:      "testing gaps identified",
			Value:      strconv.Itoa(*recent.BugsMissedTesting) + " bugs missed during testing",
		})
	}

	return models.Hypothesis{
		Category: models.CategoryTestingGap,
		Title:    "Testing Coverage Gaps",
		Description: fmt.Sprintf(
			"High proportion (%.0f%%) of bugs are being found in production rather than "+
				"during development or QA phases. This indicates potential gaps in test coverage, "+
				"inadequate test environments, or insufficient testing rigor.",
			prodPercent),
		Confidence:      models.ConfidenceMedium,
		ConfidenceScore: 0.7,
		Evidence:        evidence,
		PotentialImpact: "Customer-facing defects, production incidents, emergency fixes, and damaged reputation.",
		AffectedMetrics: []string{"production_quality", "customer_satisfaction", "test_effectiveness"},
	}, true
}

func (e *HypothesisEngine) scoreToLevel(score float64) models.ConfidenceLevel {
	switch {
	case score >= e.confidenceHigh:
		return models.ConfidenceHigh
	case score >= e.confidenceMedium:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func findTrend(trends []models.TrendResult, name string) (models.TrendResult, bool) {
	for _, t := range trends {
		if t.MetricName == name {
			return t, true
		}
	}
	return models.TrendResult{}, false
}

func findCorrelation(correlations []models.CorrelationResult, metric1, metric2 string) (models.CorrelationResult, bool) {
	for _, c := range correlations {
		if (c.Metric1 == metric1 && c.Metric2 == metric2) || (c.Metric1 == metric2 && c.Metric2 == metric1) {
			return c, true
		}
	}
	return models.CorrelationResult{}, false
}

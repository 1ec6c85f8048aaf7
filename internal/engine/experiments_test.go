package engine

import (
	"strings"
	"testing"

	"github.com/retrolens/retro-engine/internal/models"
)

func TestMapReviewBottleneckExperiment(t *testing.T) {
	mapper := NewExperimentMapper(nil)

	hypotheses := []models.Hypothesis{{
		Category: models.CategoryReviewBottleneck,
		Title:    "Review Process Bottleneck",
	}}

	experiments := mapper.Map(hypotheses, 3)
	if len(experiments) != 1 {
		t.Fatalf("expected 1 experiment, got %d", len(experiments))
	}
	exp := experiments[0]
	if !strings.Contains(exp.Title, "WIP") && !strings.Contains(exp.Title, "Review") {
		t.Fatalf("unexpected title: %q", exp.Title)
	}
	if !containsString(exp.SuccessMetrics, "review_time") {
		t.Fatalf("expected review_time among success metrics: %v", exp.SuccessMetrics)
	}
	if !strings.HasPrefix(exp.Rationale, "Addressing: Review Process Bottleneck. ") {
		t.Fatalf("unexpected rationale prefix: %q", exp.Rationale)
	}
	if exp.RelatedHypothesisIndex == nil || *exp.RelatedHypothesisIndex != 0 {
		t.Fatalf("expected related index 0")
	}
}

func TestMapFallsBackToTitleKeywords(t *testing.T) {
	mapper := NewExperimentMapper(nil)

	// No category: externally sourced hypothesis.
	hypotheses := []models.Hypothesis{{Title: "Quality Assurance Process Degradation"}}
	experiments := mapper.Map(hypotheses, 3)
	if len(experiments) != 1 {
		t.Fatalf("expected 1 experiment, got %d", len(experiments))
	}
	if experiments[0].Title != "Implement Pre-Review Testing Checklist" {
		t.Fatalf("keyword fallback picked wrong template: %q", experiments[0].Title)
	}
}

func TestMapTestingGapUsesQualityTemplate(t *testing.T) {
	mapper := NewExperimentMapper(nil)

	hypotheses := []models.Hypothesis{{
		Category: models.CategoryTestingGap,
		Title:    "Testing Coverage Gaps",
	}}
	experiments := mapper.Map(hypotheses, 3)
	if len(experiments) != 1 {
		t.Fatalf("expected 1 experiment, got %d", len(experiments))
	}
	if experiments[0].Title != "Implement Pre-Review Testing Checklist" {
		t.Fatalf("unexpected template: %q", experiments[0].Title)
	}
}

func TestMapGenericExperiment(t *testing.T) {
	mapper := NewExperimentMapper(nil)

	longDescription := strings.Repeat("root cause analysis needed. ", 10)
	hypotheses := []models.Hypothesis{{
		Title:           "Unusual Velocity Pattern",
		Description:     longDescription,
		AffectedMetrics: []string{"velocity", "throughput", "lead_time", "extra"},
	}}

	experiments := mapper.Map(hypotheses, 3)
	if len(experiments) != 1 {
		t.Fatalf("expected 1 experiment, got %d", len(experiments))
	}
	exp := experiments[0]
	if exp.Title != "Targeted Improvement: Unusual Velocity Pattern" {
		t.Fatalf("unexpected title: %q", exp.Title)
	}
	if len(exp.SuccessMetrics) != 3 {
		t.Fatalf("success metrics capped at 3, got %d", len(exp.SuccessMetrics))
	}
	// Rationale carries the prefix plus at most 150 description chars.
	wantMax := len("Addressing: Unusual Velocity Pattern. ") + 150 + len("...")
	if len(exp.Rationale) > wantMax {
		t.Fatalf("rationale too long: %d > %d", len(exp.Rationale), wantMax)
	}
	if !strings.Contains(exp.ExpectedOutcome, "velocity, throughput") {
		t.Fatalf("unexpected outcome: %q", exp.ExpectedOutcome)
	}
}

func TestMapDistinctRelatedIndices(t *testing.T) {
	mapper := NewExperimentMapper(nil)

	hypotheses := []models.Hypothesis{
		{Category: models.CategoryReviewBottleneck, Title: "Review Process Bottleneck"},
		{Category: models.CategoryMorale, Title: "Team Morale and Engagement Concerns"},
	}
	experiments := mapper.Map(hypotheses, 3)
	if len(experiments) != 2 {
		t.Fatalf("expected 2 experiments, got %d", len(experiments))
	}
	if *experiments[0].RelatedHypothesisIndex != 0 || *experiments[1].RelatedHypothesisIndex != 1 {
		t.Fatalf("related indices wrong: %d, %d",
			*experiments[0].RelatedHypothesisIndex, *experiments[1].RelatedHypothesisIndex)
	}
}

func TestMapTruncatesToMax(t *testing.T) {
	mapper := NewExperimentMapper(nil)

	hypotheses := []models.Hypothesis{
		{Category: models.CategoryReviewBottleneck, Title: "A"},
		{Category: models.CategoryMorale, Title: "B"},
		{Category: models.CategoryQuality, Title: "C"},
		{Category: models.CategoryWorkflow, Title: "D"},
	}
	if experiments := mapper.Map(hypotheses, 3); len(experiments) != 3 {
		t.Fatalf("expected 3 experiments, got %d", len(experiments))
	}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

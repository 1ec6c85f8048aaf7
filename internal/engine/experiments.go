package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/retrolens/retro-engine/internal/models"
)

// ExperimentMapper maps hypotheses to concrete, timeboxed experiments.
type ExperimentMapper struct {
	logger *slog.Logger
}

// NewExperimentMapper constructs the mapper.
func NewExperimentMapper(logger *slog.Logger) *ExperimentMapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExperimentMapper{logger: logger}
}

// Map produces at most maxExperiments suggestions, one per hypothesis in
// order. Dispatch uses the hypothesis category; hypotheses from external
// sources without a category fall back to title keyword matching, and
// anything unmatched gets the generic workshop template.
func (m *ExperimentMapper) Map(hypotheses []models.Hypothesis, maxExperiments int) []models.ExperimentSuggestion {
	if maxExperiments <= 0 {
		maxExperiments = 3
	}

	experiments := make([]models.ExperimentSuggestion, 0, len(hypotheses))
	for idx, h := range hypotheses {
		experiments = append(experiments, m.experimentFor(h, idx))
	}
	if len(experiments) > maxExperiments {
		experiments = experiments[:maxExperiments]
	}

	m.logger.Info("mapped experiments", slog.Int("count", len(experiments)))
	return experiments
}

func (m *ExperimentMapper) experimentFor(h models.Hypothesis, index int) models.ExperimentSuggestion {
	switch categoryOf(h) {
	case models.CategoryReviewBottleneck:
		return reviewBottleneckExperiment(h, index)
	case models.CategoryStorySizing:
		return storySizingExperiment(h, index)
	case models.CategoryQuality, models.CategoryTestingGap:
		return qualityExperiment(h, index)
	case models.CategoryMorale:
		return moraleExperiment(h, index)
	case models.CategoryWorkflow:
		return workflowExperiment(h, index)
	default:
		return genericExperiment(h, index)
	}
}

// categoryOf trusts the category stamped by the hypothesis engine and only
// parses the title as a compatibility fallback.
func categoryOf(h models.Hypothesis) models.HypothesisCategory {
	if h.Category != models.CategoryNone {
		return h.Category
	}
	title := strings.ToLower(h.Title)
	switch {
	case strings.Contains(title, "review") && strings.Contains(title, "bottleneck"):
		return models.CategoryReviewBottleneck
	case strings.Contains(title, "sizing") || strings.Contains(title, "slicing"):
		return models.CategoryStorySizing
	case strings.Contains(title, "quality") || strings.Contains(title, "defect") || strings.Contains(title, "testing"):
		return models.CategoryQuality
	case strings.Contains(title, "morale") || strings.Contains(title, "happiness") || strings.Contains(title, "engagement"):
		return models.CategoryMorale
	case strings.Contains(title, "workflow") || strings.Contains(title, "efficiency"):
		return models.CategoryWorkflow
	default:
		return models.CategoryNone
	}
}

func rationalePrefix(h models.Hypothesis) string {
	return fmt.Sprintf("Addressing: %s. ", h.Title)
}

func reviewBottleneckExperiment(h models.Hypothesis, index int) models.ExperimentSuggestion {
	return models.ExperimentSuggestion{
		Title: "Implement WIP Limit for Code Review",
		Description: "Set a work-in-progress (WIP) limit of 2-3 items in the 'Code Review' column. " +
			"Team members should prioritize reviewing existing PRs before starting new work.",
		Rationale: rationalePrefix(h) +
			"WIP limits force the team to complete reviews faster and prevent review queue buildup. " +
			"This creates a pull system that balances development and review capacity.",
		DurationSprints: 1,
		SuccessMetrics: []string{
			"review_time",
			"review_queue_size",
			"pr_lead_time",
			"developer_satisfaction",
		},
		ImplementationSteps: []string{
			"Set WIP limit on review column to 2-3 items",
			"Establish team agreement: review before starting new work",
			"Assign review buddies or rotation for accountability",
			"Track review metrics daily for first week",
			"Hold mid-sprint check-in to assess progress",
		},
		ExpectedOutcome:        "Reduce average review time by 20-30% and improve flow",
		RelatedHypothesisIndex: &index,
	}
}

func storySizingExperiment(h models.Hypothesis, index int) models.ExperimentSuggestion {
	return models.ExperimentSuggestion{
		Title: "Enforce Story Slicing for Large Items",
		Description: "For all stories estimated > 5 story points, require decomposition into " +
			"smaller chunks with clear acceptance criteria and deliverable increments.",
		Rationale: rationalePrefix(h) +
			"Large stories increase uncertainty and reduce sprint completion rates. " +
			"Breaking stories into smaller pieces improves flow and predictability.",
		DurationSprints: 1,
		SuccessMetrics: []string{
			"items_out_of_sprint_percent",
			"story_point_distribution",
			"sprint_completion_rate",
			"velocity_consistency",
		},
		ImplementationSteps: []string{
			"Review backlog and identify all stories > 5 points",
			"Hold story slicing workshop for top 5-10 stories",
			"Create slicing checklist (INVEST criteria)",
			"Enforce slicing rule during sprint planning",
			"Track % of stories that are 3 points or less",
		},
		ExpectedOutcome:        "Reduce items out of sprint by 10-15% and increase predictability",
		RelatedHypothesisIndex: &index,
	}
}

func qualityExperiment(h models.Hypothesis, index int) models.ExperimentSuggestion {
	return models.ExperimentSuggestion{
		Title: "Implement Pre-Review Testing Checklist",
		Description: "Introduce a mandatory testing checklist that developers complete before " +
			"requesting code review. Include unit tests, integration tests, and manual smoke testing.",
		Rationale: rationalePrefix(h) +
			"Many defects slip through when testing is rushed or incomplete. " +
			"A checklist ensures consistent quality before code review.",
		DurationSprints: 1,
		SuccessMetrics: []string{
			"defect_rate_production",
			"defect_rate_all",
			"bugs_found_in_testing_vs_production",
			"review_rework_rate",
		},
		ImplementationSteps: []string{
			"Create testing checklist (unit tests, integration, manual scenarios)",
			"Add checklist to PR template",
			"Establish 'Definition of Ready' for code review",
			"Track checklist compliance for 2 weeks",
			"Review defect trends mid-sprint and end-of-sprint",
		},
		ExpectedOutcome:        "Reduce production defect rate by 20-30%",
		RelatedHypothesisIndex: &index,
	}
}

func moraleExperiment(h models.Hypothesis, index int) models.ExperimentSuggestion {
	return models.ExperimentSuggestion{
		Title: "Establish Weekly Team Health Check-ins",
		Description: "Introduce brief 15-minute weekly team health check-ins to discuss workload, " +
			"blockers, and morale. Create safe space for raising concerns early.",
		Rationale: rationalePrefix(h) +
			"Declining morale often stems from unaddressed frustrations and lack of visibility. " +
			"Regular check-ins create psychological safety and early intervention opportunities.",
		DurationSprints: 2,
		SuccessMetrics: []string{
			"team_happiness",
			"team_satisfaction_survey",
			"issues_raised_and_resolved",
			"meeting_effectiveness_score",
		},
		ImplementationSteps: []string{
			"Schedule weekly 15-min health check-in (Fridays recommended)",
			"Create simple format: highs, lows, blockers, shout-outs",
			"Rotate facilitator each week",
			"Track issues raised and follow-up actions",
			"Survey team after 2 sprints on effectiveness",
		},
		ExpectedOutcome:        "Improve team happiness score by 10-15% and address issues proactively",
		RelatedHypothesisIndex: &index,
	}
}

func workflowExperiment(h models.Hypothesis, index int) models.ExperimentSuggestion {
	return models.ExperimentSuggestion{
		Title: "Implement Pairing for Complex Work",
		Description: "For stories estimated at 5+ points or involving critical systems, " +
			"require pair programming or mob programming sessions.",
		Rationale: rationalePrefix(h) +
			"Pairing reduces rework, improves code quality, and accelerates knowledge sharing, " +
			"which can offset longer individual work times.",
		DurationSprints: 1,
		SuccessMetrics: []string{
			"coding_time",
			"review_time",
			"rework_rate",
			"knowledge_sharing_score",
		},
		ImplementationSteps: []string{
			"Identify 3-5 complex stories for pairing",
			"Schedule pairing sessions (2-4 hours)",
			"Rotate pairs to spread knowledge",
			"Track time spent vs. solo development",
			"Gather feedback on pairing effectiveness",
		},
		ExpectedOutcome:        "Reduce overall cycle time by 15-20% through reduced rework",
		RelatedHypothesisIndex: &index,
	}
}

func genericExperiment(h models.Hypothesis, index int) models.ExperimentSuggestion {
	affected := h.AffectedMetrics
	if len(affected) > 3 {
		affected = affected[:3]
	}
	successMetrics := affected
	if len(successMetrics) == 0 {
		successMetrics = []string{"team_effectiveness"}
	}

	outcomeMetrics := affected
	if len(outcomeMetrics) > 2 {
		outcomeMetrics = outcomeMetrics[:2]
	}

	return models.ExperimentSuggestion{
		Title: "Targeted Improvement: " + h.Title,
		Description: fmt.Sprintf("Focus team attention on addressing %s. "+
			"Hold a dedicated improvement workshop to identify root causes and design interventions.",
			strings.ToLower(h.Title)),
		Rationale:       rationalePrefix(h) + truncate(h.Description, 150) + "...",
		DurationSprints: 1,
		SuccessMetrics:  successMetrics,
		ImplementationSteps: []string{
			"Schedule 60-minute improvement workshop",
			"Use 5 Whys or fishbone diagram to find root causes",
			"Brainstorm potential solutions",
			"Vote on top 2-3 actions to try",
			"Assign owners and track progress",
		},
		ExpectedOutcome:        "Measurable improvement in " + strings.Join(outcomeMetrics, ", "),
		RelatedHypothesisIndex: &index,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Package report assembles the complete retrospective insight report from
// the analysis components.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/retrolens/retro-engine/internal/charts"
	"github.com/retrolens/retro-engine/internal/engine"
	"github.com/retrolens/retro-engine/internal/models"
	"github.com/retrolens/retro-engine/internal/narrative"
)

// Assembler composes trends, correlations, hypotheses, experiments, charts
// and narrative into one immutable report.
type Assembler struct {
	logger      *slog.Logger
	analyzer    *engine.Analyzer
	hypotheses  *engine.HypothesisEngine
	experiments *engine.ExperimentMapper
	charts      *charts.Builder
	narrative   narrative.Generator
}

// NewAssembler wires the assembler. A nil narrative generator falls back to
// the deterministic one.
func NewAssembler(
	logger *slog.Logger,
	analyzer *engine.Analyzer,
	hypotheses *engine.HypothesisEngine,
	experiments *engine.ExperimentMapper,
	chartBuilder *charts.Builder,
	gen narrative.Generator,
) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	if gen == nil {
		gen = narrative.Fallback{}
	}
	return &Assembler{
		logger:      logger,
		analyzer:    analyzer,
		hypotheses:  hypotheses,
		experiments: experiments,
		charts:      chartBuilder,
		narrative:   gen,
	}
}

// Generate builds a full report over chronologically ordered snapshots.
// Sparse data degrades gracefully: short histories produce a report with
// empty analysis sections, never an error.
func (a *Assembler) Generate(ctx context.Context, snapshots []models.SprintSnapshot, focusMetrics []string) (models.RetrospectiveReport, error) {
	start := time.Now()
	a.logger.Info("generating retrospective report", slog.Int("sprints", len(snapshots)))

	trends := a.analyzer.AnalyzeTrends(snapshots, focusMetrics)
	correlations := a.analyzer.AnalyzeCorrelations(snapshots, focusMetrics)
	a.logger.Info("statistical analysis complete",
		slog.Int("trends", len(trends)), slog.Int("correlations", len(correlations)))

	hypotheses := a.hypotheses.Generate(trends, correlations, snapshots, 3)
	experiments := a.experiments.Map(hypotheses, 3)
	chartData := a.charts.BuildAll(snapshots, correlations)

	headline, err := a.narrative.Headline(ctx, trends, hypotheses)
	if err != nil {
		return models.RetrospectiveReport{}, fmt.Errorf("generate headline: %w", err)
	}
	questions, err := a.narrative.RetroQuestions(ctx, hypotheses)
	if err != nil {
		return models.RetrospectiveReport{}, fmt.Errorf("generate retro questions: %w", err)
	}

	now := time.Now().UTC()
	period := sprintPeriod(snapshots)

	report := models.RetrospectiveReport{
		ReportID:     fmt.Sprintf("RPT-%s-%s", now.Format("20060102"), uuid.NewString()[:8]),
		Headline:     headline,
		Summary:      fmt.Sprintf("Analysis of %d sprints (%s)", len(snapshots), period),
		SprintPeriod: period,
		GeneratedAt:  now,

		Trends:       trends,
		Correlations: correlations,
		Charts:       chartData,

		Hypotheses:           hypotheses,
		SuggestedExperiments: experiments,

		FacilitationGuide: facilitationGuide(hypotheses, questions),

		SprintsAnalyzed:   len(snapshots),
		ConfidenceOverall: overallConfidence(hypotheses),
	}

	a.logger.Info("report generation completed",
		slog.String("report_id", report.ReportID),
		slog.Duration("took", time.Since(start)))
	return report, nil
}

func facilitationGuide(hypotheses []models.Hypothesis, questions []string) models.FacilitationGuide {
	focus := make([]string, 0, 3)
	for i, h := range hypotheses {
		if i == 3 {
			break
		}
		focus = append(focus, h.Title)
	}
	return models.FacilitationGuide{
		RetroQuestions: questions,
		Agenda15Min: []string{
			"0-2 min: Review metrics dashboard and headline (silent read)",
			"2-7 min: Discuss top 2 hypotheses - do they resonate? What are we missing?",
			"7-12 min: Review experiment suggestions - which feels most impactful?",
			"12-15 min: Commit to one experiment and assign owners",
		},
		FocusAreas: focus,
	}
}

// overallConfidence buckets the mean hypothesis score. No hypotheses means
// there is nothing to be confident about.
func overallConfidence(hypotheses []models.Hypothesis) models.ConfidenceLevel {
	if len(hypotheses) == 0 {
		return models.ConfidenceLow
	}
	sum := 0.0
	for _, h := range hypotheses {
		sum += h.ConfidenceScore
	}
	avg := sum / float64(len(hypotheses))
	switch {
	case avg >= 0.75:
		return models.ConfidenceHigh
	case avg >= 0.55:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func sprintPeriod(snapshots []models.SprintSnapshot) string {
	switch len(snapshots) {
	case 0:
		return "No sprints"
	case 1:
		return snapshots[0].SprintName
	default:
		return fmt.Sprintf("%s - %s", snapshots[0].SprintName, snapshots[len(snapshots)-1].SprintName)
	}
}

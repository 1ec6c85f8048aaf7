package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrolens/retro-engine/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func f(v float64) *float64 { return &v }
func n(v int) *int         { return &v }

func snapshot(id, name string, start time.Time) *models.SprintSnapshot {
	return &models.SprintSnapshot{
		SprintID:         id,
		SprintName:       name,
		StartDate:        start,
		EndDate:          start.AddDate(0, 0, 14),
		TeamHappiness:    f(7.5),
		ReviewTime:       f(20),
		ItemsCarriedOver: n(2),
		StoryPointDistribution: map[string]int{
			models.SizeSmall: 5, models.SizeLarge: 2,
		},
	}
}

func sampleReport(id string, generatedAt time.Time) *models.RetrospectiveReport {
	idx := 0
	return &models.RetrospectiveReport{
		ReportID:     id,
		Headline:     "Review time is climbing",
		Summary:      "Analysis of 3 sprints (Sprint 10 - Sprint 12)",
		SprintPeriod: "Sprint 10 - Sprint 12",
		GeneratedAt:  generatedAt,
		Hypotheses: []models.Hypothesis{
			{
				Category:        models.CategoryReviewBottleneck,
				Title:           "Review Process Bottleneck",
				Description:     "Code review time increased 50%",
				Confidence:      models.ConfidenceMedium,
				ConfidenceScore: 0.6,
				Evidence: []models.Evidence{
					{MetricName: models.MetricReviewTime, Trend: "up", Value: "20.0 → 30.0 hours"},
				},
				PotentialImpact: "Slower delivery",
				AffectedMetrics: []string{models.MetricReviewTime},
			},
		},
		SuggestedExperiments: []models.ExperimentSuggestion{
			{
				Title:                  "Implement Review WIP Limits",
				Description:            "Limit concurrent reviews",
				Rationale:              "Addressing: Review Process Bottleneck. Reduce queue time",
				DurationSprints:        1,
				SuccessMetrics:         []string{"review_time"},
				ImplementationSteps:    []string{"Agree on a WIP limit"},
				ExpectedOutcome:        "Shorter review queues",
				RelatedHypothesisIndex: &idx,
			},
		},
		SprintsAnalyzed:   3,
		ConfidenceOverall: models.ConfidenceMedium,
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertSnapshot(ctx, snapshot("S-1", "Sprint 1", start)))

	got, err := s.GetSnapshot(ctx, "S-1")
	require.NoError(t, err)
	assert.Equal(t, "Sprint 1", got.SprintName)
	require.NotNil(t, got.TeamHappiness)
	assert.Equal(t, 7.5, *got.TeamHappiness)
	require.NotNil(t, got.ItemsCarriedOver)
	assert.Equal(t, 2, *got.ItemsCarriedOver)
	assert.Equal(t, 5, got.StoryPointDistribution[models.SizeSmall])
	assert.Nil(t, got.DefectRateProduction)
}

func TestUpsertSnapshotRefreshes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	first := snapshot("S-1", "Sprint 1", start)
	require.NoError(t, s.UpsertSnapshot(ctx, first))

	second := snapshot("S-1", "Sprint 1 (revised)", start)
	second.TeamHappiness = f(6.0)
	require.NoError(t, s.UpsertSnapshot(ctx, second))

	all, err := s.ListSnapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Sprint 1 (revised)", all[0].SprintName)
	assert.Equal(t, 6.0, *all[0].TeamHappiness)
}

func TestListSnapshotsOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		snap := snapshot("S-"+string(rune('0'+i)), "Sprint", base.AddDate(0, 0, 14*i))
		require.NoError(t, s.UpsertSnapshot(ctx, snap))
	}

	all, err := s.ListSnapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "S-3", all[0].SprintID)
	assert.Equal(t, "S-1", all[2].SprintID)

	limited, err := s.ListSnapshots(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "S-3", limited[0].SprintID)
}

func TestSnapshotNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetSnapshot(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteSnapshot(ctx, "missing"), ErrNotFound)
}

func TestSaveAndGetReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	report := sampleReport("RPT-20240304-abcd1234", time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC))
	require.NoError(t, s.SaveReport(ctx, report))

	got, err := s.GetReport(ctx, report.ReportID)
	require.NoError(t, err)
	assert.Equal(t, report.Headline, got.Headline)
	require.Len(t, got.Hypotheses, 1)
	assert.Equal(t, models.CategoryReviewBottleneck, got.Hypotheses[0].Category)
	require.Len(t, got.SuggestedExperiments, 1)
	require.NotNil(t, got.SuggestedExperiments[0].RelatedHypothesisIndex)
	assert.Equal(t, 0, *got.SuggestedExperiments[0].RelatedHypothesisIndex)

	summaries, err := s.ListReports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, report.ReportID, summaries[0].ReportID)
	assert.Equal(t, 3, summaries[0].SprintsAnalyzed)
	assert.Equal(t, models.ConfidenceMedium, summaries[0].ConfidenceOverall)
}

func TestDeleteReportCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	report := sampleReport("RPT-20240304-abcd1234", time.Now().UTC())
	require.NoError(t, s.SaveReport(ctx, report))
	require.NoError(t, s.DeleteReport(ctx, report.ReportID))

	_, err := s.GetReport(ctx, report.ReportID)
	assert.ErrorIs(t, err, ErrNotFound)

	var hypotheses, experiments int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM hypotheses`).Scan(&hypotheses))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM experiments`).Scan(&experiments))
	assert.Zero(t, hypotheses)
	assert.Zero(t, experiments)

	assert.ErrorIs(t, s.DeleteReport(ctx, report.ReportID), ErrNotFound)
}

func TestPurgeReports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := sampleReport("RPT-old", time.Now().UTC().AddDate(0, 0, -60))
	recent := sampleReport("RPT-recent", time.Now().UTC())
	require.NoError(t, s.SaveReport(ctx, old))
	require.NoError(t, s.SaveReport(ctx, recent))

	purged, err := s.PurgeReports(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	summaries, err := s.ListReports(ctx, 0)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "RPT-recent", summaries[0].ReportID)
}

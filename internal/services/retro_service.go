// Package services orchestrates snapshot syncing and report generation on
// top of the store, the upstream clients, and the report assembler.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/retrolens/retro-engine/internal/config"
	"github.com/retrolens/retro-engine/internal/metrics"
	"github.com/retrolens/retro-engine/internal/models"
	"github.com/retrolens/retro-engine/internal/store"
	"github.com/retrolens/retro-engine/internal/utils"
)

// ErrInsufficientData is returned when fewer than two snapshots are available
// for analysis. Callers translate it into a client error rather than a
// server fault.
var ErrInsufficientData = errors.New("at least 2 sprint snapshots are required for analysis")

// SnapshotStore is the persistence surface the service needs.
type SnapshotStore interface {
	UpsertSnapshot(ctx context.Context, snap *models.SprintSnapshot) error
	GetSnapshot(ctx context.Context, sprintID string) (*models.SprintSnapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]models.SprintSnapshot, error)
	DeleteSnapshot(ctx context.Context, sprintID string) error
	SaveReport(ctx context.Context, report *models.RetrospectiveReport) error
	GetReport(ctx context.Context, reportID string) (*models.RetrospectiveReport, error)
	ListReports(ctx context.Context, limit int) ([]store.ReportSummary, error)
	DeleteReport(ctx context.Context, reportID string) error
	PurgeReports(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SprintFetcher pulls sprint metrics from the upstream provider.
type SprintFetcher interface {
	FetchSprints(ctx context.Context, count int, teamID string) ([]models.SprintSnapshot, error)
}

// ReportBuilder turns snapshots into a retrospective report.
type ReportBuilder interface {
	Generate(ctx context.Context, snapshots []models.SprintSnapshot, focusMetrics []string) (models.RetrospectiveReport, error)
}

// RetroService is the orchestration facade used by the HTTP API, the task
// manager, and the CLI.
type RetroService struct {
	logger    *slog.Logger
	store     SnapshotStore
	fetcher   SprintFetcher
	assembler ReportBuilder
	cfg       config.AnalysisConfig
	latencies *utils.LatencyTracker
}

// NewRetroService constructs the service facade.
func NewRetroService(logger *slog.Logger, snapshots SnapshotStore, fetcher SprintFetcher, assembler ReportBuilder, cfg config.AnalysisConfig) *RetroService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetroService{
		logger:    logger,
		store:     snapshots,
		fetcher:   fetcher,
		assembler: assembler,
		cfg:       cfg,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// SyncSnapshots pulls the latest sprints from the metrics provider and
// upserts them into the store. Returns how many sprints were stored.
func (s *RetroService) SyncSnapshots(ctx context.Context, teamID string, count int) (int, error) {
	if count <= 0 {
		count = s.defaultSprintCount()
	}

	sprints, err := s.fetcher.FetchSprints(ctx, count, teamID)
	if err != nil {
		metrics.ObserveSync(metrics.OutcomeError)
		return 0, fmt.Errorf("failed to fetch sprints: %w", err)
	}

	for i := range sprints {
		if err := s.store.UpsertSnapshot(ctx, &sprints[i]); err != nil {
			metrics.ObserveSync(metrics.OutcomeError)
			return i, err
		}
	}

	metrics.ObserveSync(metrics.OutcomeSuccess)
	s.logger.Info("snapshots synced",
		slog.Int("count", len(sprints)), slog.String("team_id", teamID))
	return len(sprints), nil
}

// GenerateReport builds a report over the most recent SprintCount snapshots
// and persists it. Snapshots are analyzed oldest first.
func (s *RetroService) GenerateReport(ctx context.Context, req models.GenerateReportRequest) (models.RetrospectiveReport, error) {
	count := req.SprintCount
	if count <= 0 {
		count = s.defaultSprintCount()
	}

	snapshots, err := s.store.ListSnapshots(ctx, count)
	if err != nil {
		return models.RetrospectiveReport{}, err
	}
	if len(snapshots) < 2 {
		return models.RetrospectiveReport{}, ErrInsufficientData
	}

	// The store lists newest first; analysis wants chronological order.
	for i, j := 0, len(snapshots)-1; i < j; i, j = i+1, j-1 {
		snapshots[i], snapshots[j] = snapshots[j], snapshots[i]
	}

	start := time.Now()
	report, err := s.assembler.Generate(ctx, snapshots, nil)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveReport(duration, metrics.OutcomeError)
		s.logger.Error("report generation failed", slog.Any("error", err))
		return models.RetrospectiveReport{}, fmt.Errorf("report generation failed: %w", err)
	}

	if err := s.store.SaveReport(ctx, &report); err != nil {
		metrics.ObserveReport(duration, metrics.OutcomeError)
		return models.RetrospectiveReport{}, err
	}

	s.latencies.Observe(duration)
	metrics.ObserveReport(duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("report latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}

	return report, nil
}

// CleanupReports purges reports older than the retention window.
func (s *RetroService) CleanupReports(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.store.PurgeReports(ctx, olderThan)
}

// Store exposes the persistence surface for read-through handlers.
func (s *RetroService) Store() SnapshotStore { return s.store }

func (s *RetroService) defaultSprintCount() int {
	if s.cfg.DefaultSprintCount > 0 {
		return s.cfg.DefaultSprintCount
	}
	return 5
}

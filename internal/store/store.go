// Package store persists sprint snapshots and generated reports in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/retrolens/retro-engine/internal/models"
)

// ErrNotFound is returned when a snapshot or report does not exist.
var ErrNotFound = errors.New("store: not found")

// Store handles durable storage for snapshots, reports, and their children.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the SQLite database at path and bootstraps the
// schema. Pass ":memory:" for an in-memory database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = "retro.db"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database at %q: %w", path, err)
	}
	// Limit SQLite to a single open connection to avoid "database is locked" errors
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to SQLite database at %q: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("store opened", slog.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	tables := []struct {
		name  string
		query string
	}{
		{"snapshots", `
			CREATE TABLE IF NOT EXISTS snapshots (
				sprint_id TEXT PRIMARY KEY,
				sprint_name TEXT NOT NULL,
				start_date TEXT NOT NULL,
				end_date TEXT NOT NULL,
				metrics TEXT NOT NULL,
				fetched_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);
		`},
		{"reports", `
			CREATE TABLE IF NOT EXISTS reports (
				report_id TEXT PRIMARY KEY,
				generated_at TEXT NOT NULL,
				headline TEXT NOT NULL,
				summary TEXT,
				sprint_period TEXT,
				sprints_analyzed INTEGER NOT NULL,
				confidence TEXT NOT NULL,
				report TEXT NOT NULL
			);
		`},
		{"hypotheses", `
			CREATE TABLE IF NOT EXISTS hypotheses (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				report_id TEXT NOT NULL REFERENCES reports(report_id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				category TEXT,
				title TEXT NOT NULL,
				description TEXT NOT NULL,
				confidence TEXT NOT NULL,
				confidence_score REAL NOT NULL,
				potential_impact TEXT,
				affected_metrics TEXT NOT NULL,
				evidence TEXT NOT NULL
			);
		`},
		{"experiments", `
			CREATE TABLE IF NOT EXISTS experiments (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				report_id TEXT NOT NULL REFERENCES reports(report_id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				title TEXT NOT NULL,
				description TEXT NOT NULL,
				rationale TEXT,
				duration_sprints INTEGER NOT NULL,
				success_metrics TEXT NOT NULL,
				implementation_steps TEXT NOT NULL,
				expected_outcome TEXT,
				status TEXT NOT NULL DEFAULT 'suggested'
			);
		`},
	}

	for _, table := range tables {
		if _, err := db.Exec(table.query); err != nil {
			return fmt.Errorf("table %s: %w", table.name, err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertSnapshot inserts a snapshot or refreshes an existing one by sprint ID.
func (s *Store) UpsertSnapshot(ctx context.Context, snap *models.SprintSnapshot) error {
	metrics, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", snap.SprintID, err)
	}
	now := formatTime(time.Now().UTC())

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (sprint_id, sprint_name, start_date, end_date, metrics, fetched_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sprint_id) DO UPDATE SET
			sprint_name = excluded.sprint_name,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			metrics = excluded.metrics,
			updated_at = excluded.updated_at
	`, snap.SprintID, snap.SprintName, formatTime(snap.StartDate), formatTime(snap.EndDate),
		string(metrics), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot %s: %w", snap.SprintID, err)
	}
	return nil
}

// GetSnapshot returns the snapshot for sprintID, or ErrNotFound.
func (s *Store) GetSnapshot(ctx context.Context, sprintID string) (*models.SprintSnapshot, error) {
	var metrics string
	err := s.db.QueryRowContext(ctx,
		`SELECT metrics FROM snapshots WHERE sprint_id = ?`, sprintID).Scan(&metrics)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot %s: %w", sprintID, err)
	}
	var snap models.SprintSnapshot
	if err := json.Unmarshal([]byte(metrics), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", sprintID, err)
	}
	return &snap, nil
}

// ListSnapshots returns up to limit snapshots, most recent start_date first.
// A limit of zero or less returns all of them.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]models.SprintSnapshot, error) {
	query := `SELECT metrics FROM snapshots ORDER BY start_date DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []models.SprintSnapshot
	for rows.Next() {
		var metrics string
		if err := rows.Scan(&metrics); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		var snap models.SprintSnapshot
		if err := json.Unmarshal([]byte(metrics), &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		results = append(results, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return results, nil
}

// DeleteSnapshot removes the snapshot for sprintID. ErrNotFound if absent.
func (s *Store) DeleteSnapshot(ctx context.Context, sprintID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE sprint_id = ?`, sprintID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", sprintID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveReport stores a report and its hypotheses and experiments in one
// transaction. The children rows exist so they can be queried and tracked
// independently of the report blob.
func (s *Store) SaveReport(ctx context.Context, report *models.RetrospectiveReport) error {
	blob, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report %s: %w", report.ReportID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (report_id, generated_at, headline, summary, sprint_period, sprints_analyzed, confidence, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, report.ReportID, formatTime(report.GeneratedAt), report.Headline, report.Summary,
		report.SprintPeriod, report.SprintsAnalyzed, string(report.ConfidenceOverall), string(blob))
	if err != nil {
		return fmt.Errorf("failed to insert report %s: %w", report.ReportID, err)
	}

	for i, h := range report.Hypotheses {
		affected, err := json.Marshal(h.AffectedMetrics)
		if err != nil {
			return fmt.Errorf("failed to marshal affected metrics: %w", err)
		}
		evidence, err := json.Marshal(h.Evidence)
		if err != nil {
			return fmt.Errorf("failed to marshal evidence: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO hypotheses (report_id, position, category, title, description, confidence, confidence_score, potential_impact, affected_metrics, evidence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, report.ReportID, i, string(h.Category), h.Title, h.Description,
			string(h.Confidence), h.ConfidenceScore, h.PotentialImpact,
			string(affected), string(evidence))
		if err != nil {
			return fmt.Errorf("failed to insert hypothesis %d: %w", i, err)
		}
	}

	for i, e := range report.SuggestedExperiments {
		success, err := json.Marshal(e.SuccessMetrics)
		if err != nil {
			return fmt.Errorf("failed to marshal success metrics: %w", err)
		}
		steps, err := json.Marshal(e.ImplementationSteps)
		if err != nil {
			return fmt.Errorf("failed to marshal implementation steps: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO experiments (report_id, position, title, description, rationale, duration_sprints, success_metrics, implementation_steps, expected_outcome)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, report.ReportID, i, e.Title, e.Description, e.Rationale,
			e.DurationSprints, string(success), string(steps), e.ExpectedOutcome)
		if err != nil {
			return fmt.Errorf("failed to insert experiment %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report %s: %w", report.ReportID, err)
	}

	s.logger.Info("report saved",
		slog.String("report_id", report.ReportID),
		slog.Int("hypotheses", len(report.Hypotheses)),
		slog.Int("experiments", len(report.SuggestedExperiments)))
	return nil
}

// GetReport returns the full report blob for reportID, or ErrNotFound.
func (s *Store) GetReport(ctx context.Context, reportID string) (*models.RetrospectiveReport, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM reports WHERE report_id = ?`, reportID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report %s: %w", reportID, err)
	}
	var report models.RetrospectiveReport
	if err := json.Unmarshal([]byte(blob), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", reportID, err)
	}
	return &report, nil
}

// ReportSummary is a listing row for a stored report.
type ReportSummary struct {
	ReportID          string                 `json:"report_id"`
	GeneratedAt       time.Time              `json:"generated_at"`
	Headline          string                 `json:"headline"`
	SprintPeriod      string                 `json:"sprint_period"`
	SprintsAnalyzed   int                    `json:"sprints_analyzed"`
	ConfidenceOverall models.ConfidenceLevel `json:"confidence_overall"`
}

// ListReports returns up to limit report summaries, newest first.
func (s *Store) ListReports(ctx context.Context, limit int) ([]ReportSummary, error) {
	query := `SELECT report_id, generated_at, headline, sprint_period, sprints_analyzed, confidence
		FROM reports ORDER BY generated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []ReportSummary
	for rows.Next() {
		var row ReportSummary
		var generatedAt, confidence string
		if err := rows.Scan(&row.ReportID, &generatedAt, &row.Headline,
			&row.SprintPeriod, &row.SprintsAnalyzed, &confidence); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, generatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse generated_at: %w", err)
		}
		row.GeneratedAt = ts
		row.ConfidenceOverall = models.ConfidenceLevel(confidence)
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	return results, nil
}

// DeleteReport removes a report and, via cascade, its hypotheses and
// experiments. ErrNotFound if absent.
func (s *Store) DeleteReport(ctx context.Context, reportID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE report_id = ?`, reportID)
	if err != nil {
		return fmt.Errorf("failed to delete report %s: %w", reportID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeReports deletes reports generated before the cutoff and returns how
// many were removed.
func (s *Store) PurgeReports(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().UTC().Add(-olderThan))
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE generated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge reports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged reports: %w", err)
	}
	if n > 0 {
		s.logger.Info("purged reports", slog.Int64("count", n))
	}
	return n, nil
}

// formatTime stores timestamps as RFC3339Nano text so lexical order matches
// chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

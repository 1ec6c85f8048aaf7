// Package clients holds HTTP clients for the upstream metrics and dashboard
// services.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/retrolens/retro-engine/internal/config"
	"github.com/retrolens/retro-engine/internal/models"
)

// MetricsClient fetches sprint metrics from the external metrics API. When no
// base URL is configured it serves deterministic mock sprints so the rest of
// the pipeline stays usable in development.
type MetricsClient struct {
	baseURL      string
	apiKey       string
	mockFallback bool
	client       *http.Client
	logger       *slog.Logger
}

// NewMetricsClient builds a MetricsClient from configuration.
func NewMetricsClient(cfg config.MetricsClientConfig, logger *slog.Logger) *MetricsClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		logger.Warn("metrics API URL not configured, mock data will be served")
	}
	return &MetricsClient{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		mockFallback: cfg.MockFallback,
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// FetchSprints returns the latest count sprints, newest last. teamID is
// optional and forwarded as a query parameter when set.
func (c *MetricsClient) FetchSprints(ctx context.Context, count int, teamID string) ([]models.SprintSnapshot, error) {
	if c.baseURL == "" {
		c.logger.Warn("using mock sprint data", slog.Int("count", count))
		return MockSprints(count), nil
	}

	query := url.Values{"count": {strconv.Itoa(count)}}
	if teamID != "" {
		query.Set("team_id", teamID)
	}

	var sprints []models.SprintSnapshot
	err := c.getJSON(ctx, c.baseURL+"/sprints?"+query.Encode(), &sprints)
	if err != nil {
		if c.mockFallback {
			c.logger.Warn("metrics API unavailable, falling back to mock data",
				slog.String("error", err.Error()))
			return MockSprints(count), nil
		}
		return nil, err
	}

	c.logger.Info("fetched sprints from metrics API", slog.Int("count", len(sprints)))
	return sprints, nil
}

// FetchSprint returns detailed metrics for one sprint.
func (c *MetricsClient) FetchSprint(ctx context.Context, sprintID string) (*models.SprintSnapshot, error) {
	if c.baseURL == "" {
		c.logger.Warn("using mock sprint data", slog.String("sprint_id", sprintID))
		snap := mockSprint(sprintID)
		return &snap, nil
	}

	var snap models.SprintSnapshot
	if err := c.getJSON(ctx, c.baseURL+"/sprints/"+url.PathEscape(sprintID), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *MetricsClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build metrics request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach metrics API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("metrics API returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode metrics response: %w", err)
	}
	return nil
}

// MockSprints generates deterministic sprint data for development and tests.
// Values drift sprint over sprint so trends and hypotheses have something to
// latch onto.
func MockSprints(count int) []models.SprintSnapshot {
	sprints := make([]models.SprintSnapshot, 0, count)
	for i := 0; i < count; i++ {
		num := i + 1
		start := time.Date(2024, time.Month(num), 1, 0, 0, 0, 0, time.UTC)
		sprints = append(sprints, models.SprintSnapshot{
			SprintID:             fmt.Sprintf("SPRINT-2024-%02d", num),
			SprintName:           fmt.Sprintf("Sprint 24.%02d", num),
			StartDate:            start,
			EndDate:              start.AddDate(0, 0, 13).Add(24*time.Hour - time.Second),
			TeamHappiness:        fp(7.5 - float64(i)*0.2),
			StoryPointsCompleted: ip(40 + i*2),
			StoryPointsPlanned:   ip(45),
			StoryPointDistribution: map[string]int{
				models.SizeSmall:  5,
				models.SizeMedium: 8 + i,
				models.SizeLarge:  3,
			},
			ItemsCompleted:          ip(15 + i),
			ItemsCarriedOver:        ip(2 + i%3),
			ItemsOutOfSprintPercent: fp(10.0 + float64(i)*2),
			DefectRateProduction:    fp(0.05 + float64(i)*0.01),
			DefectRateAll:           fp(0.12 + float64(i)*0.02),
			BugsProd:                ip(2 + i),
			BugsAcc:                 ip(3 + i),
			BugsTest:                ip(4),
			BugsDev:                 ip(1),
			BugsOther:               ip(0),
			OpenBugsCount:           ip(5 + i*2),
			BugsMissedTesting:       ip(3),
			BugsMissedImpact:        ip(2),
			BugsRequirementGap:      ip(1),
			BugsConfiguration:       ip(1),
			BugsThirdParty:          ip(1),
			BugsDatabase:            ip(1),
			BugsSecurity:            ip(0),
			CodingTime:              fp(100.0 + float64(i)*5),
			ReviewTime:              fp(20.0 + float64(i)*3),
			TestingTime:             fp(18.0 + float64(i)*2),
		})
	}
	return sprints
}

func mockSprint(sprintID string) models.SprintSnapshot {
	return models.SprintSnapshot{
		SprintID:             sprintID,
		SprintName:           "Sprint " + sprintID,
		StartDate:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:              time.Date(2024, 1, 14, 23, 59, 59, 0, time.UTC),
		TeamHappiness:        fp(7.5),
		StoryPointsCompleted: ip(42),
		StoryPointsPlanned:   ip(45),
		CodingTime:           fp(120.5),
		ReviewTime:           fp(24.3),
		TestingTime:          fp(18.7),
	}
}

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }

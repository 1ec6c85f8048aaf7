package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/retrolens/retro-engine/internal/cache"
	"github.com/retrolens/retro-engine/internal/config"
)

// Chart names served by the dashboard API.
var DashboardCharts = []string{
	"testing-time",
	"review-time",
	"coding-time",
	"root-cause",
	"open-bugs-over-time",
	"bugs-per-environment",
	"sp-distribution",
	"items-out-of-sprint",
	"defect-rate-prod",
	"defect-rate-all",
	"happiness",
}

// Dashboard tokens are short lived; refresh a little early so a token never
// expires mid-request.
const (
	tokenLifetime     = 300 * time.Second
	tokenSafetyMargin = 10 * time.Second
)

// ErrDashboardDisabled is returned when no dashboard base URL is configured.
var ErrDashboardDisabled = errors.New("dashboard client not configured")

// DashboardClient fetches chart payloads from the delivery dashboard. Tokens
// are minted by the dashboard's token endpoint and cached in memory; chart
// payloads go through the shared cache Provider.
type DashboardClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
	cache        cache.Provider
	cacheTTL     time.Duration
	logger       *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewDashboardClient builds a DashboardClient. A nil cacheProvider disables
// payload caching.
func NewDashboardClient(cfg config.DashboardClientConfig, cacheProvider cache.Provider, logger *slog.Logger) *DashboardClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DashboardClient{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       &http.Client{Timeout: timeout},
		cache:        cacheProvider,
		cacheTTL:     ttl,
		logger:       logger,
	}
}

// Enabled reports whether a dashboard endpoint is configured.
func (c *DashboardClient) Enabled() bool { return c.baseURL != "" }

// FetchChartData returns the raw payload for one chart. A cached payload is
// served when present; otherwise the dashboard is queried with a valid token,
// retrying once after a 401.
func (c *DashboardClient) FetchChartData(ctx context.Context, chartName string) (json.RawMessage, error) {
	if !c.Enabled() {
		return nil, ErrDashboardDisabled
	}

	cacheKey := "dashboard:chart:" + chartName
	if cached, err := c.cache.Get(ctx, cacheKey); err == nil {
		return json.RawMessage(cached), nil
	}

	payload, err := c.fetchChart(ctx, chartName, true)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, cacheKey, payload, c.cacheTTL); err != nil {
		c.logger.Warn("failed to cache chart payload",
			slog.String("chart", chartName), slog.String("error", err.Error()))
	}
	return payload, nil
}

// ChartResult pairs a chart payload with the error that prevented fetching
// it, so one broken chart does not sink the rest.
type ChartResult struct {
	Data json.RawMessage `json:"data,omitempty"`
	Err  string          `json:"error,omitempty"`
}

// FetchCharts fetches several charts, collecting per-chart failures instead
// of aborting on the first one.
func (c *DashboardClient) FetchCharts(ctx context.Context, chartNames []string) map[string]ChartResult {
	results := make(map[string]ChartResult, len(chartNames))
	for _, name := range chartNames {
		data, err := c.FetchChartData(ctx, name)
		if err != nil {
			c.logger.Error("failed to fetch chart",
				slog.String("chart", name), slog.String("error", err.Error()))
			results[name] = ChartResult{Err: err.Error()}
			continue
		}
		results[name] = ChartResult{Data: data}
	}
	return results
}

// FetchAllCharts fetches every chart the dashboard serves.
func (c *DashboardClient) FetchAllCharts(ctx context.Context) map[string]ChartResult {
	return c.FetchCharts(ctx, DashboardCharts)
}

// InvalidateToken drops the current token so the next request mints a new one.
func (c *DashboardClient) InvalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.tokenExpiry = time.Time{}
}

func (c *DashboardClient) fetchChart(ctx context.Context, chartName string, retryOnAuth bool) (json.RawMessage, error) {
	token, err := c.validToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/data?name="+url.QueryEscape(chartName), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build chart request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach dashboard API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		if retryOnAuth {
			c.logger.Warn("dashboard token rejected, refreshing and retrying",
				slog.String("chart", chartName))
			c.InvalidateToken()
			return c.fetchChart(ctx, chartName, false)
		}
		return nil, errors.New("dashboard token expired")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dashboard API returned status %d", resp.StatusCode)
	}

	var payload json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode chart payload: %w", err)
	}
	return payload, nil
}

func (c *DashboardClient) validToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/token", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	if c.clientID != "" {
		req.SetBasicAuth(c.clientID, c.clientSecret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach token endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if body.Token == "" {
		return "", errors.New("no token in response")
	}

	c.token = body.Token
	c.tokenExpiry = time.Now().Add(tokenLifetime - tokenSafetyMargin)
	c.logger.Info("fetched dashboard token")
	return c.token, nil
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrolens/retro-engine/internal/config"
	"github.com/retrolens/retro-engine/internal/models"
	"github.com/retrolens/retro-engine/internal/services"
	"github.com/retrolens/retro-engine/internal/store"
	"github.com/retrolens/retro-engine/internal/tasks"
)

type stubFetcher struct {
	sprints []models.SprintSnapshot
}

func (s *stubFetcher) FetchSprints(context.Context, int, string) ([]models.SprintSnapshot, error) {
	return s.sprints, nil
}

type stubBuilder struct{}

func (stubBuilder) Generate(_ context.Context, snapshots []models.SprintSnapshot, _ []string) (models.RetrospectiveReport, error) {
	return models.RetrospectiveReport{
		ReportID:          fmt.Sprintf("RPT-test-%d", len(snapshots)),
		Headline:          "Stub headline",
		GeneratedAt:       time.Now().UTC(),
		SprintsAnalyzed:   len(snapshots),
		ConfidenceOverall: models.ConfidenceLow,
	}, nil
}

type testEnv struct {
	server *httptest.Server
	store  *store.Store
	tasks  *tasks.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	manager := tasks.NewManager(config.TasksConfig{}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})

	service := services.NewRetroService(logger, st, &stubFetcher{}, stubBuilder{}, config.AnalysisConfig{DefaultSprintCount: 5})
	handlers := NewHandlers(service, manager, nil, logger)

	router := mux.NewRouter()
	handlers.Register(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: st, tasks: manager}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func (e *testEnv) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func sprintBody(id string, day int) map[string]any {
	return map[string]any{
		"sprint_id":      id,
		"sprint_name":    "Sprint " + id,
		"start_date":     fmt.Sprintf("2024-03-%02dT00:00:00Z", day),
		"end_date":       fmt.Sprintf("2024-03-%02dT23:59:59Z", day+13),
		"team_happiness": 7.0,
		"review_time":    20.0,
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/snapshots", sprintBody("S-1", 1))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/snapshots/S-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeBody[models.SprintSnapshot](t, resp)
	assert.Equal(t, "Sprint S-1", snap.SprintName)

	resp = env.do(t, http.MethodGet, "/api/v1/snapshots")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[[]models.SprintSnapshot](t, resp)
	assert.Len(t, list, 1)

	resp = env.do(t, http.MethodDelete, "/api/v1/snapshots/S-1")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/snapshots/S-1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestSnapshotValidation(t *testing.T) {
	env := newTestEnv(t)

	body := sprintBody("", 1)
	resp := env.postJSON(t, "/api/v1/snapshots", body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errBody := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "sprint_id is required", errBody["error"])

	body = sprintBody("S-1", 1)
	body["team_happiness"] = 12.0
	resp = env.postJSON(t, "/api/v1/snapshots", body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err := http.Post(env.server.URL+"/api/v1/snapshots", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestGenerateReportInsufficientData(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/reports/generate", models.GenerateReportRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := decodeBody[map[string]string](t, resp)
	assert.Contains(t, errBody["error"], "at least 2 sprint snapshots")
}

func TestGenerateReportSync(t *testing.T) {
	env := newTestEnv(t)

	for i := 1; i <= 3; i++ {
		resp := env.postJSON(t, "/api/v1/snapshots", sprintBody(fmt.Sprintf("S-%d", i), i))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		_ = resp.Body.Close()
	}

	resp := env.postJSON(t, "/api/v1/reports/generate", models.GenerateReportRequest{SprintCount: 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decodeBody[models.RetrospectiveReport](t, resp)
	assert.Equal(t, 3, report.SprintsAnalyzed)
	assert.Equal(t, "Stub headline", report.Headline)

	// The report was persisted and is listed.
	resp = env.do(t, http.MethodGet, "/api/v1/reports")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summaries := decodeBody[[]store.ReportSummary](t, resp)
	require.Len(t, summaries, 1)
	assert.Equal(t, report.ReportID, summaries[0].ReportID)

	resp = env.do(t, http.MethodGet, "/api/v1/reports/"+report.ReportID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.do(t, http.MethodDelete, "/api/v1/reports/"+report.ReportID)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/reports/"+report.ReportID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestGenerateReportAsync(t *testing.T) {
	env := newTestEnv(t)

	for i := 1; i <= 2; i++ {
		resp := env.postJSON(t, "/api/v1/snapshots", sprintBody(fmt.Sprintf("S-%d", i), i))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		_ = resp.Body.Close()
	}

	resp := env.postJSON(t, "/api/v1/reports/generate", models.GenerateReportRequest{Async: true})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decodeBody[models.TaskAccepted](t, resp)
	require.NotEmpty(t, accepted.TaskID)

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp = env.do(t, http.MethodGet, "/api/v1/tasks/"+accepted.TaskID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		view := decodeBody[models.TaskView](t, resp)
		if view.State == models.TaskCompleted {
			assert.Equal(t, tasks.KindGenerateReport, view.Kind)
			break
		}
		require.NotEqual(t, models.TaskFailed, view.State, "task failed: %s", view.Error)
		require.True(t, time.Now().Before(deadline), "task did not complete in time")
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSyncTask(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/tasks/sync", models.SyncRequest{SprintCount: 2})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decodeBody[models.TaskAccepted](t, resp)
	assert.Equal(t, models.TaskPending, accepted.State)
}

func TestTaskNotFoundAndRevokeConflict(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/tasks/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	accepted, err := env.tasks.Submit(tasks.KindCleanupReports, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	deadline := time.Now().Add(2 * time.Second)
	for {
		view, err := env.tasks.Get(accepted.TaskID)
		require.NoError(t, err)
		if view.State == models.TaskCompleted {
			break
		}
		require.True(t, time.Now().Before(deadline))
		time.Sleep(5 * time.Millisecond)
	}

	resp = env.do(t, http.MethodDelete, "/api/v1/tasks/"+accepted.TaskID)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestDashboardChartsUnconfigured(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/charts/dashboard")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/v1/charts/dashboard/happiness")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/retrolens/retro-engine/internal/clients"
	"github.com/retrolens/retro-engine/internal/models"
	"github.com/retrolens/retro-engine/internal/services"
	"github.com/retrolens/retro-engine/internal/store"
	"github.com/retrolens/retro-engine/internal/tasks"
)

// Handlers holds the dependencies the HTTP endpoints need.
type Handlers struct {
	service   *services.RetroService
	tasks     *tasks.Manager
	dashboard *clients.DashboardClient
	logger    *slog.Logger
}

// NewHandlers wires the endpoint handlers. The dashboard client may be nil
// when no dashboard is configured.
func NewHandlers(service *services.RetroService, taskManager *tasks.Manager, dashboard *clients.DashboardClient, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{service: service, tasks: taskManager, dashboard: dashboard, logger: logger}
}

// Register mounts all routes on the router.
func (h *Handlers) Register(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/snapshots", h.handleUpsertSnapshot).Methods(http.MethodPost)
	v1.HandleFunc("/snapshots", h.handleListSnapshots).Methods(http.MethodGet)
	v1.HandleFunc("/snapshots/{sprintID}", h.handleGetSnapshot).Methods(http.MethodGet)
	v1.HandleFunc("/snapshots/{sprintID}", h.handleDeleteSnapshot).Methods(http.MethodDelete)

	v1.HandleFunc("/reports/generate", h.handleGenerateReport).Methods(http.MethodPost)
	v1.HandleFunc("/reports", h.handleListReports).Methods(http.MethodGet)
	v1.HandleFunc("/reports/{reportID}", h.handleGetReport).Methods(http.MethodGet)
	v1.HandleFunc("/reports/{reportID}", h.handleDeleteReport).Methods(http.MethodDelete)

	v1.HandleFunc("/tasks/reports", h.handleSubmitReportTask).Methods(http.MethodPost)
	v1.HandleFunc("/tasks/sync", h.handleSubmitSyncTask).Methods(http.MethodPost)
	v1.HandleFunc("/tasks", h.handleListTasks).Methods(http.MethodGet)
	v1.HandleFunc("/tasks/{taskID}", h.handleGetTask).Methods(http.MethodGet)
	v1.HandleFunc("/tasks/{taskID}", h.handleRevokeTask).Methods(http.MethodDelete)

	v1.HandleFunc("/charts/dashboard", h.handleDashboardCharts).Methods(http.MethodGet)
	v1.HandleFunc("/charts/dashboard/{chartName}", h.handleDashboardChart).Methods(http.MethodGet)

	v1.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
}

func (h *Handlers) handleUpsertSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap models.SprintSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := validateSnapshot(&snap); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	if err := h.service.Store().UpsertSnapshot(r.Context(), &snap); err != nil {
		h.serverError(w, "upsert snapshot", err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handlers) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	snapshots, err := h.service.Store().ListSnapshots(r.Context(), limit)
	if err != nil {
		h.serverError(w, "list snapshots", err)
		return
	}
	if snapshots == nil {
		snapshots = []models.SprintSnapshot{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (h *Handlers) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	sprintID := mux.Vars(r)["sprintID"]
	snap, err := h.service.Store().GetSnapshot(r.Context(), sprintID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	if err != nil {
		h.serverError(w, "get snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	sprintID := mux.Vars(r)["sprintID"]
	err := h.service.Store().DeleteSnapshot(r.Context(), sprintID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	if err != nil {
		h.serverError(w, "delete snapshot", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateReportRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	if req.Async {
		h.submitReportTask(w, req)
		return
	}

	report, err := h.service.GenerateReport(r.Context(), req)
	if errors.Is(err, services.ErrInsufficientData) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.serverError(w, "generate report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	reports, err := h.service.Store().ListReports(r.Context(), limit)
	if err != nil {
		h.serverError(w, "list reports", err)
		return
	}
	if reports == nil {
		reports = []store.ReportSummary{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handlers) handleGetReport(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["reportID"]
	report, err := h.service.Store().GetReport(r.Context(), reportID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		h.serverError(w, "get report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["reportID"]
	err := h.service.Store().DeleteReport(r.Context(), reportID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		h.serverError(w, "delete report", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleSubmitReportTask(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateReportRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	h.submitReportTask(w, req)
}

func (h *Handlers) submitReportTask(w http.ResponseWriter, req models.GenerateReportRequest) {
	accepted, err := h.tasks.Submit(tasks.KindGenerateReport, func(ctx context.Context) (any, error) {
		return h.service.GenerateReport(ctx, req)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, accepted)
}

func (h *Handlers) handleSubmitSyncTask(w http.ResponseWriter, r *http.Request) {
	var req models.SyncRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	accepted, err := h.tasks.Submit(tasks.KindSyncMetrics, func(ctx context.Context) (any, error) {
		synced, err := h.service.SyncSnapshots(ctx, req.TeamID, req.SprintCount)
		if err != nil {
			return nil, err
		}
		return map[string]int{"synced": synced}, nil
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, accepted)
}

func (h *Handlers) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tasks.List())
}

func (h *Handlers) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]
	view, err := h.tasks.Get(taskID)
	if errors.Is(err, tasks.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		h.serverError(w, "get task", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) handleRevokeTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]
	err := h.tasks.Revoke(taskID)
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, tasks.ErrTaskFinished):
		writeError(w, http.StatusConflict, "task already finished")
	case err != nil:
		h.serverError(w, "revoke task", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handlers) handleDashboardCharts(w http.ResponseWriter, r *http.Request) {
	if h.dashboard == nil || !h.dashboard.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "dashboard integration not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.dashboard.FetchAllCharts(r.Context()))
}

func (h *Handlers) handleDashboardChart(w http.ResponseWriter, r *http.Request) {
	if h.dashboard == nil || !h.dashboard.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "dashboard integration not configured")
		return
	}
	chartName := mux.Vars(r)["chartName"]
	payload, err := h.dashboard.FetchChartData(r.Context(), chartName)
	if err != nil {
		h.serverError(w, "fetch dashboard chart", err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func validateSnapshot(snap *models.SprintSnapshot) string {
	switch {
	case snap.SprintID == "":
		return "sprint_id is required"
	case snap.SprintName == "":
		return "sprint_name is required"
	case snap.StartDate.IsZero() || snap.EndDate.IsZero():
		return "start_date and end_date are required"
	case snap.EndDate.Before(snap.StartDate):
		return "end_date must not precede start_date"
	}
	if snap.TeamHappiness != nil && (*snap.TeamHappiness < 0 || *snap.TeamHappiness > 10) {
		return "team_happiness must be between 0 and 10"
	}
	return ""
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

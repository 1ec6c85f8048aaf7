package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrolens/retro-engine/internal/config"
	"github.com/retrolens/retro-engine/internal/models"
)

func TestFetchSprintsFromAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sprints", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		assert.Equal(t, "platform", r.URL.Query().Get("team_id"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		sprints := []models.SprintSnapshot{
			{SprintID: "S-1", SprintName: "Sprint 1", StartDate: time.Now(), EndDate: time.Now()},
			{SprintID: "S-2", SprintName: "Sprint 2", StartDate: time.Now(), EndDate: time.Now()},
		}
		require.NoError(t, json.NewEncoder(w).Encode(sprints))
	}))
	defer server.Close()

	client := NewMetricsClient(config.MetricsClientConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
	}, nil)

	sprints, err := client.FetchSprints(context.Background(), 3, "platform")
	require.NoError(t, err)
	require.Len(t, sprints, 2)
	assert.Equal(t, "S-1", sprints[0].SprintID)
}

func TestFetchSprintsMockWithoutBaseURL(t *testing.T) {
	client := NewMetricsClient(config.MetricsClientConfig{}, nil)

	sprints, err := client.FetchSprints(context.Background(), 5, "")
	require.NoError(t, err)
	require.Len(t, sprints, 5)
	assert.Equal(t, "SPRINT-2024-01", sprints[0].SprintID)
	require.NotNil(t, sprints[0].TeamHappiness)
	assert.Equal(t, 7.5, *sprints[0].TeamHappiness)
	// Review time climbs across mock sprints so trends have a direction.
	assert.Less(t, *sprints[0].ReviewTime, *sprints[4].ReviewTime)
}

func TestFetchSprintsErrorWithoutFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewMetricsClient(config.MetricsClientConfig{BaseURL: server.URL}, nil)

	_, err := client.FetchSprints(context.Background(), 3, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestFetchSprintsMockFallbackOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewMetricsClient(config.MetricsClientConfig{
		BaseURL:      server.URL,
		MockFallback: true,
	}, nil)

	sprints, err := client.FetchSprints(context.Background(), 4, "")
	require.NoError(t, err)
	assert.Len(t, sprints, 4)
}

func TestFetchSprint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sprints/S-9", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(models.SprintSnapshot{
			SprintID: "S-9", SprintName: "Sprint 9",
		}))
	}))
	defer server.Close()

	client := NewMetricsClient(config.MetricsClientConfig{BaseURL: server.URL}, nil)

	snap, err := client.FetchSprint(context.Background(), "S-9")
	require.NoError(t, err)
	assert.Equal(t, "Sprint 9", snap.SprintName)
}

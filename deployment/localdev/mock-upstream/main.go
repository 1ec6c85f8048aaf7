// Command mock-upstream serves fake metrics-provider and dashboard endpoints
// so retro-engine can be exercised locally without real integrations.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/retrolens/retro-engine/internal/clients"
)

func main() {
	var tokenSeq atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/sprints", func(w http.ResponseWriter, r *http.Request) {
		count, _ := strconv.Atoi(r.URL.Query().Get("count"))
		if count <= 0 {
			count = 5
		}
		writeJSON(w, clients.MockSprints(count))
	})

	mux.HandleFunc("/sprints/", func(w http.ResponseWriter, r *http.Request) {
		sprintID := strings.TrimPrefix(r.URL.Path, "/sprints/")
		if sprintID == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		for _, snap := range clients.MockSprints(10) {
			if snap.SprintID == sprintID {
				writeJSON(w, snap)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{
			"token": fmt.Sprintf("mock-token-%d", tokenSeq.Add(1)),
		})
	})

	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{
			"chart":  name,
			"labels": []string{"Sprint 24.01", "Sprint 24.02", "Sprint 24.03"},
			"values": []float64{20, 23, 26},
		})
	})

	logger := log.New(log.Writer(), "mock-upstream ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":9090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :9090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}

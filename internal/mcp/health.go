package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Sources   int    `json:"sources"`
	Qdrant    string `json:"qdrant"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker interface defines the health check dependency.
// The Qdrant storage layer implements this via its Health() method.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// SourceCounter reports how many sources are loaded.
type SourceCounter interface {
	Len() int
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// The local store is always available; the service is unhealthy only when a
// configured Qdrant mirror cannot be reached. mirror may be nil.
func NewHealthHandler(store SourceCounter, mirror HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "healthy",
			Sources:   store.Len(),
			Qdrant:    "disabled",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		code := http.StatusOK

		if mirror != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()

			if err := mirror.Health(ctx); err != nil {
				response.Status = "unhealthy"
				response.Qdrant = "disconnected"
				code = http.StatusServiceUnavailable
			} else {
				response.Qdrant = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(response)
	}
}

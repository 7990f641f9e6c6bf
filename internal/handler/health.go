package handler

import (
	"context"
	"net/http"
	"time"

	"receiptdetect/internal/logger"
)

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Workers int    `json:"workers"`
}

// HealthHandler reports liveness. check, when set, probes a remote dependency.
func HealthHandler(backend string, workers int, check func(ctx context.Context) error, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Backend: backend, Workers: workers}

		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				logger.Warning("Health check failed: %v", err)
				resp.Status = "unavailable"
				writeJSON(w, http.StatusServiceUnavailable, resp, logger)
				return
			}
		}
		writeJSON(w, http.StatusOK, resp, logger)
	}
}

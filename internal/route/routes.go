package route

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"receiptdetect/internal/config"
	"receiptdetect/internal/handler"
	"receiptdetect/internal/logger"
	"receiptdetect/internal/middleware"
	"receiptdetect/internal/service/websocket"
)

// Dependencies collects what the HTTP layer needs. Archive is nil when archiving is disabled.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	Predictor   handler.Predictor
	Archive     handler.Archive
	Hub         *websocket.HubService
	Workers     int
	HealthCheck func(ctx context.Context) error
}

// SetupRoutes registers the API endpoints and wraps the router with
// logging, CORS and API key middleware.
func SetupRoutes(deps Dependencies) http.Handler {
	cfg, log := deps.Config, deps.Logger
	router := mux.NewRouter()

	router.HandleFunc("/health", handler.HealthHandler(cfg.DetectorBackend, deps.Workers, deps.HealthCheck, log)).Methods(http.MethodGet)

	// Prediction endpoints
	router.HandleFunc("/predict", handler.PredictHandler(deps.Predictor, cfg.MaxUploadBytes, log)).Methods(http.MethodPost)
	router.HandleFunc("/predict/annotated", handler.AnnotatedHandler(deps.Predictor, cfg.MaxUploadBytes, log)).Methods(http.MethodPost)

	// Archive endpoints
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/predictions", handler.ListPredictionsHandler(deps.Archive, log)).Methods(http.MethodGet)
	api.HandleFunc("/predictions/stats", handler.PredictionStatsHandler(deps.Archive, log)).Methods(http.MethodGet)
	api.HandleFunc("/predictions/{id:[0-9]+}", handler.GetPredictionHandler(deps.Archive, log)).Methods(http.MethodGet)
	api.HandleFunc("/predictions/{id:[0-9]+}", handler.DeletePredictionHandler(deps.Archive, log)).Methods(http.MethodDelete)
	if deps.Hub != nil {
		api.HandleFunc("/live", handler.LiveHandler(deps.Hub, log)).Methods(http.MethodGet)
	}

	// Log endpoints
	router.HandleFunc("/logs/{level}", handler.ShowLogsHandler(log)).Methods(http.MethodGet)
	router.HandleFunc("/logs/{level}/clear", handler.ClearLogsHandler(log)).Methods(http.MethodPost)

	// Preflight requests are answered by the CORS middleware.
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	var h http.Handler = router
	h = middleware.APIKeyMiddleware(cfg.APIKey)(h)
	h = middleware.CORSMiddleware(h)
	h = middleware.LoggingMiddleware(log)(h)
	return h
}

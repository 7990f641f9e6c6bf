package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"receiptdetect/internal/config"
	"receiptdetect/internal/handler"
	"receiptdetect/internal/logger"
	"receiptdetect/internal/repository/sqlite"
	"receiptdetect/internal/route"
	"receiptdetect/internal/service"
	"receiptdetect/internal/service/ai"
	"receiptdetect/internal/service/ai/opencv"
	"receiptdetect/internal/service/ai/ortyolo"
	"receiptdetect/internal/service/boxmerge"
	"receiptdetect/internal/service/storage"
	"receiptdetect/internal/service/websocket"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	config      *config.Config
	logger      *logger.Logger
	pool        *ai.Pool
	db          *sqlite.DB
	archive     *storage.ArchiveService
	hub         *websocket.HubService
	predictions *service.PredictionService
	healthCheck func(ctx context.Context) error
	server      *http.Server
}

// NewApp loads configuration and builds every service. Call Close when Run returns.
func NewApp() (*App, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	log := logger.NewLogger(cfg)

	a := &App{config: cfg, logger: log}

	annotator, err := a.setupDetectors()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.hub = websocket.NewHubService(log)
	opts := []service.Option{service.WithAnnotator(annotator), service.WithPublisher(a.hub)}

	if cfg.ArchiveEnabled() {
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "open archive database")
		}
		a.db = db
		a.archive = storage.NewArchiveService(cfg, log, sqlite.NewPredictionRepository(db), sqlite.NewDetectionRepository(db))
		opts = append(opts, service.WithArchive(a.archive))
	} else {
		log.Warning("DB_PATH is empty, prediction archive disabled")
	}

	mergeOptions := boxmerge.Options{
		ContainmentThreshold: cfg.ContainmentThreshold,
		MaxIterations:        cfg.MaxMergeIterations,
	}
	a.predictions = service.NewPredictionService(a.pool, mergeOptions, log, opts...)

	return a, nil
}

// setupDetectors builds the detector pool for the configured backend.
func (a *App) setupDetectors() (ai.Annotator, error) {
	cfg := a.config
	model := ai.ModelConfig{
		ModelPath:     cfg.ModelPath,
		InputSize:     cfg.ImageSize,
		NumClasses:    cfg.NumClasses,
		ConfThreshold: cfg.ConfThreshold,
		IoUThreshold:  cfg.IoUThreshold,
		MaxDet:        cfg.MaxDetections,
	}

	var factory func(workerID int) (ai.Detector, error)
	switch cfg.DetectorBackend {
	case config.BackendOpenCV:
		factory = func(int) (ai.Detector, error) { return opencv.NewDetector(model, a.logger) }
	case config.BackendONNXRuntime:
		if err := ortyolo.InitEnvironment(cfg.ONNXRuntimeLib); err != nil {
			return nil, err
		}
		factory = func(int) (ai.Detector, error) { return ortyolo.NewDetector(model, a.logger) }
	case config.BackendRemote:
		remote := ai.NewRemoteDetector(cfg.InferenceURL, cfg.InferenceTimeout)
		a.healthCheck = remote.CheckHealth
		factory = func(int) (ai.Detector, error) { return remote, nil }
	}

	pool, err := ai.NewPool(cfg.DetectorWorkers, factory)
	if err != nil {
		return nil, errors.Wrapf(err, "start %s detectors", cfg.DetectorBackend)
	}
	a.pool = pool
	a.logger.Info("Started %d %s detector(s)", pool.Size(), cfg.DetectorBackend)

	return opencv.NewAnnotator(), nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hub.Run(ctx)

	archiveDone := make(chan struct{})
	if a.archive != nil {
		go func() {
			a.archive.Run(ctx)
			close(archiveDone)
		}()
	} else {
		close(archiveDone)
	}

	var archive handler.Archive
	if a.archive != nil {
		archive = a.archive
	}

	a.server = &http.Server{
		Addr: fmt.Sprintf(":%d", a.config.Port),
		Handler: route.SetupRoutes(route.Dependencies{
			Config:      a.config,
			Logger:      a.logger,
			Predictor:   a.predictions,
			Archive:     archive,
			Hub:         a.hub,
			Workers:     a.pool.Size(),
			HealthCheck: a.healthCheck,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("Receipt detection server listening on :%d (backend %s, model %s)",
		a.config.Port, a.config.DetectorBackend, a.config.ModelPath)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.ListenAndServe()
	}()

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		a.logger.Info("Shutting down server")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		err = a.server.Shutdown(shutdownCtx)
	}

	cancel()
	<-archiveDone
	return err
}

// Close releases detectors, the database and log files.
func (a *App) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.pool != nil {
		keep(a.pool.Close())
	}
	if a.config.DetectorBackend == config.BackendONNXRuntime {
		keep(ortyolo.DestroyEnvironment())
	}
	if a.db != nil {
		keep(a.db.Close())
	}
	keep(a.logger.Close())
	return firstErr
}

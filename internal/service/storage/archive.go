package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"receiptdetect/internal/config"
	"receiptdetect/internal/dto"
	"receiptdetect/internal/logger"
	"receiptdetect/internal/model"
	"receiptdetect/internal/repository"
)

const fileTimestampFormat = "20060102_150405"

// ArchiveService buffers predictions in memory and periodically flushes them
// to disk and the database.
type ArchiveService struct {
	archiveDir     string
	limit          int
	flushInterval  time.Duration
	pending        []dto.ArchivedPrediction
	flushNow       chan struct{}
	mu             sync.Mutex
	flushMu        sync.Mutex
	logger         *logger.Logger
	predictionRepo repository.PredictionRepository
	detectionRepo  repository.DetectionRepository
}

// NewArchiveService creates an ArchiveService writing images under cfg.ArchiveDirectory.
func NewArchiveService(cfg *config.Config, logger *logger.Logger, predictionRepo repository.PredictionRepository, detectionRepo repository.DetectionRepository) *ArchiveService {
	return &ArchiveService{
		archiveDir:     cfg.ArchiveDirectory,
		limit:          cfg.ArchiveBufferLimit,
		flushInterval:  time.Duration(cfg.ArchiveFlushInterval) * time.Second,
		pending:        make([]dto.ArchivedPrediction, 0, cfg.ArchiveBufferLimit),
		flushNow:       make(chan struct{}, 1),
		logger:         logger,
		predictionRepo: predictionRepo,
		detectionRepo:  detectionRepo,
	}
}

// Run flushes on every tick or when the buffer fills, and once more when ctx is done.
func (s *ArchiveService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
		case <-s.flushNow:
			s.Flush()
		}
	}
}

// Add queues a prediction for archiving.
func (s *ArchiveService) Add(item dto.ArchivedPrediction) {
	s.mu.Lock()
	s.pending = append(s.pending, item)
	full := len(s.pending) >= s.limit
	s.mu.Unlock()

	if full {
		select {
		case s.flushNow <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered predictions.
func (s *ArchiveService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush writes buffered images to disk and their results to the database.
// It returns the number of predictions saved.
func (s *ArchiveService) Flush() int {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = make([]dto.ArchivedPrediction, 0, s.limit)
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	if err := os.MkdirAll(s.archiveDir, 0755); err != nil {
		s.logger.Error("Error creating archive directory: %v", err)
		return 0
	}

	savedCount := 0
	for _, item := range batch {
		if err := s.save(item); err != nil {
			s.logger.Error("Error archiving %s: %v", item.Result.Filename, err)
			continue
		}
		savedCount++
	}

	s.logger.Info("Archived %d/%d predictions", savedCount, len(batch))
	return savedCount
}

func (s *ArchiveService) save(item dto.ArchivedPrediction) error {
	requestID := item.RequestID
	if len(requestID) > 8 {
		requestID = requestID[:8]
	}
	filename := fmt.Sprintf("%s_%s_%s", item.CreatedAt.Format(fileTimestampFormat), requestID, safeName(item.Result.Filename))
	fullpath := filepath.Join(s.archiveDir, filename)

	if err := os.WriteFile(fullpath, item.Data, 0644); err != nil {
		return errors.Wrap(err, "write image")
	}

	result := item.Result
	predictionID, err := s.predictionRepo.Insert(&model.Prediction{
		RequestID:     item.RequestID,
		Filename:      result.Filename,
		Timestamp:     item.CreatedAt,
		FilePath:      fullpath,
		FileSize:      int64(len(item.Data)),
		Width:         result.Width,
		Height:        result.Height,
		NumDetections: result.NumDetections,
		Iterations:    result.Merge.Iterations,
		Converged:     result.Merge.Converged,
	})
	if err != nil {
		os.Remove(fullpath)
		return errors.Wrap(err, "insert prediction")
	}

	if len(result.Detections) == 0 {
		return nil
	}

	detections := make([]model.Detection, 0, len(result.Detections))
	for _, det := range result.Detections {
		detections = append(detections, model.Detection{
			PredictionID: predictionID,
			Confidence:   det.Confidence,
			X1:           det.X1,
			Y1:           det.Y1,
			X2:           det.X2,
			Y2:           det.Y2,
			XCenter:      det.XCenter,
			YCenter:      det.YCenter,
			WNorm:        det.WNorm,
			HNorm:        det.HNorm,
		})
	}
	return errors.Wrap(s.detectionRepo.InsertBatch(detections), "insert detections")
}

// List returns one page of archived predictions matching filter.
func (s *ArchiveService) List(filter *dto.PredictionFilter, page int) (*dto.PredictionsPage, error) {
	if page < 1 {
		page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	filter.Offset = (page - 1) * filter.Limit

	total, err := s.predictionRepo.GetTotalCount(filter)
	if err != nil {
		return nil, err
	}
	predictions, err := s.predictionRepo.GetAll(filter)
	if err != nil {
		return nil, err
	}

	return &dto.PredictionsPage{
		Predictions: predictions,
		Length:      total,
		TotalPages:  (total + filter.Limit - 1) / filter.Limit,
		CurrentPage: page,
		Limit:       filter.Limit,
	}, nil
}

// Get returns an archived prediction with its detections.
func (s *ArchiveService) Get(id int64) (*model.Prediction, error) {
	prediction, err := s.predictionRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	detections, err := s.detectionRepo.GetByPredictionID(id)
	if err != nil {
		return nil, err
	}
	prediction.Detections = detections
	return prediction, nil
}

// Delete removes an archived prediction and its stored image.
func (s *ArchiveService) Delete(id int64) error {
	prediction, err := s.predictionRepo.GetByID(id)
	if err != nil {
		return err
	}

	if err := s.detectionRepo.DeleteByPredictionID(id); err != nil {
		return err
	}
	if err := s.predictionRepo.Delete(id); err != nil {
		return err
	}

	if err := os.Remove(prediction.FilePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warning("Error removing archived image %s: %v", prediction.FilePath, err)
	}
	return nil
}

// Stats returns archive statistics.
func (s *ArchiveService) Stats() (*model.PredictionStats, error) {
	return s.predictionRepo.GetStats()
}

func safeName(name string) string {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return "upload"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

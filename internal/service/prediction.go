// Package service orchestrates detection, merging, archiving and live updates
// for uploaded images.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"receiptdetect/internal/dto"
	"receiptdetect/internal/logger"
	"receiptdetect/internal/service/ai"
	"receiptdetect/internal/service/boxmerge"
)

// TimestampFormat is the layout of ImageResult.Timestamp.
const TimestampFormat = "20060102_150405"

var (
	// ErrNoImages is returned when a request carries no uploads.
	ErrNoImages = errors.New("no images provided")
	// ErrAnnotationUnsupported is returned when no annotator is configured.
	ErrAnnotationUnsupported = errors.New("annotation not supported by the configured backend")
)

// Upload is one image received by the API.
type Upload struct {
	Filename string
	Data     []byte
}

// FrameDetector produces raw detections for an encoded image.
type FrameDetector interface {
	Detect(ctx context.Context, image []byte) (*ai.Frame, error)
}

// Archiver receives results for persistence.
type Archiver interface {
	Add(item dto.ArchivedPrediction)
}

// Publisher receives results for live viewers.
type Publisher interface {
	Publish(event dto.LiveEvent)
}

// DetectionError reports which upload failed and why.
type DetectionError struct {
	Filename string
	Err      error
}

func (e *DetectionError) Error() string {
	return "detect " + e.Filename + ": " + e.Err.Error()
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// PredictionService runs detection and box merging for uploads.
type PredictionService struct {
	detector  FrameDetector
	annotator ai.Annotator
	archive   Archiver
	hub       Publisher
	options   boxmerge.Options
	logger    *logger.Logger
	now       func() time.Time
}

// Option configures optional collaborators of a PredictionService.
type Option func(*PredictionService)

// WithAnnotator enables Annotate.
func WithAnnotator(a ai.Annotator) Option {
	return func(s *PredictionService) { s.annotator = a }
}

// WithArchive forwards every result to the archive.
func WithArchive(a Archiver) Option {
	return func(s *PredictionService) { s.archive = a }
}

// WithPublisher forwards every result to live viewers.
func WithPublisher(p Publisher) Option {
	return func(s *PredictionService) { s.hub = p }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *PredictionService) { s.now = now }
}

func NewPredictionService(detector FrameDetector, options boxmerge.Options, logger *logger.Logger, opts ...Option) *PredictionService {
	s := &PredictionService{
		detector: detector,
		options:  options,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict processes every upload concurrently and returns results in upload order.
// Any failing image fails the whole request.
func (s *PredictionService) Predict(ctx context.Context, uploads []Upload) (*dto.PredictResponse, error) {
	if len(uploads) == 0 {
		return nil, ErrNoImages
	}

	requestID := uuid.NewString()
	createdAt := s.now()
	timestamp := createdAt.Format(TimestampFormat)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]dto.ImageResult, len(uploads))
	errs := make([]error, len(uploads))

	var wg sync.WaitGroup
	for i, upload := range uploads {
		wg.Add(1)
		go func(i int, upload Upload) {
			defer wg.Done()

			result, err := s.predictOne(ctx, upload, timestamp)
			if err != nil {
				errs[i] = &DetectionError{Filename: upload.Filename, Err: err}
				cancel()
				return
			}
			results[i] = *result
		}(i, upload)
	}
	wg.Wait()

	if err := firstError(errs); err != nil {
		s.logger.Error("Request %s failed: %v", requestID, err)
		return nil, err
	}

	for i, result := range results {
		if s.archive != nil {
			s.archive.Add(dto.ArchivedPrediction{
				RequestID: requestID,
				CreatedAt: createdAt,
				Result:    result,
				Data:      uploads[i].Data,
			})
		}
		if s.hub != nil {
			s.hub.Publish(dto.LiveEvent{
				RequestID:     requestID,
				Filename:      result.Filename,
				NumDetections: result.NumDetections,
				Timestamp:     result.Timestamp,
			})
		}
	}

	s.logger.Info("Request %s: processed %d image(s)", requestID, len(results))
	return &dto.PredictResponse{RequestID: requestID, Results: results}, nil
}

// Annotate runs one prediction and draws the merged boxes onto the image.
func (s *PredictionService) Annotate(ctx context.Context, upload Upload) ([]byte, *dto.ImageResult, error) {
	if s.annotator == nil {
		return nil, nil, ErrAnnotationUnsupported
	}

	result, err := s.predictOne(ctx, upload, s.now().Format(TimestampFormat))
	if err != nil {
		return nil, nil, &DetectionError{Filename: upload.Filename, Err: err}
	}

	img, err := s.annotator.Annotate(upload.Data, result.Detections)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "annotate %s", upload.Filename)
	}
	return img, result, nil
}

func (s *PredictionService) predictOne(ctx context.Context, upload Upload, timestamp string) (*dto.ImageResult, error) {
	frame, err := s.detector.Detect(ctx, upload.Data)
	if err != nil {
		return nil, err
	}

	merged := boxmerge.Merge(frame.Detections, frame.Width, frame.Height, s.options)
	if !merged.Converged {
		s.logger.Warning("Merge for %s stopped after %d iterations without converging (%d boxes)",
			upload.Filename, merged.Iterations, len(merged.Detections))
	}

	return &dto.ImageResult{
		Filename:      upload.Filename,
		Timestamp:     timestamp,
		Width:         frame.Width,
		Height:        frame.Height,
		NumDetections: len(merged.Detections),
		Merge:         dto.MergeStats{Iterations: merged.Iterations, Converged: merged.Converged},
		Detections:    merged.Detections,
	}, nil
}

// firstError prefers a real failure over the cancellations it caused in sibling uploads.
func firstError(errs []error) error {
	var canceled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) && canceled == nil {
			canceled = err
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return canceled
}

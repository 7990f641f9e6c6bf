package repository

import (
	"errors"

	"receiptdetect/internal/dto"
	"receiptdetect/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// PredictionRepository defines the interface for archived prediction operations.
type PredictionRepository interface {
	// Create operations
	Insert(p *model.Prediction) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Prediction, error)
	GetAll(filter *dto.PredictionFilter) ([]model.Prediction, error)
	GetTotalCount(filter *dto.PredictionFilter) (int, error)
	GetStats() (*model.PredictionStats, error)

	// Delete operations
	Delete(id int64) error
}

// DetectionRepository defines the interface for merged detection operations.
type DetectionRepository interface {
	InsertBatch(detections []model.Detection) error
	GetByPredictionID(predictionID int64) ([]model.Detection, error)
	DeleteByPredictionID(predictionID int64) error
}

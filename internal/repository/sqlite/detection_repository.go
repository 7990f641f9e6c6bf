package sqlite

import (
	"fmt"

	"receiptdetect/internal/model"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// InsertBatch adds multiple detections in a single transaction.
func (r *DetectionRepository) InsertBatch(detections []model.Detection) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO detections (prediction_id, confidence, x1, y1, x2, y2, x_center, y_center, w_norm, h_norm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, det := range detections {
		if _, err := stmt.Exec(det.PredictionID, det.Confidence, det.X1, det.Y1, det.X2, det.Y2,
			det.XCenter, det.YCenter, det.WNorm, det.HNorm); err != nil {
			return fmt.Errorf("failed to insert detection: %w", err)
		}
	}

	return tx.Commit()
}

// GetByPredictionID retrieves the detections of a prediction in insertion order.
func (r *DetectionRepository) GetByPredictionID(predictionID int64) ([]model.Detection, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, prediction_id, confidence, x1, y1, x2, y2, x_center, y_center, w_norm, h_norm
		FROM detections WHERE prediction_id = ? ORDER BY id
	`, predictionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	detections := make([]model.Detection, 0)
	for rows.Next() {
		var det model.Detection
		if err := rows.Scan(&det.ID, &det.PredictionID, &det.Confidence, &det.X1, &det.Y1, &det.X2, &det.Y2,
			&det.XCenter, &det.YCenter, &det.WNorm, &det.HNorm); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, det)
	}

	return detections, rows.Err()
}

// DeleteByPredictionID removes all detections for a specific prediction.
func (r *DetectionRepository) DeleteByPredictionID(predictionID int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM detections WHERE prediction_id = ?`, predictionID); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}
	return nil
}

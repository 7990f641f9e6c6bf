package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"receiptdetect/internal/dto"
	"receiptdetect/internal/model"
	"receiptdetect/internal/repository"
)

const predictionColumns = `id, request_id, filename, timestamp, filepath, filesize, width, height, num_detections, iterations, converged`

// PredictionRepository implements repository.PredictionRepository for SQLite.
type PredictionRepository struct {
	db *DB
}

// NewPredictionRepository creates a new SQLite prediction repository.
func NewPredictionRepository(db *DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Insert adds a new prediction record to the database.
func (r *PredictionRepository) Insert(p *model.Prediction) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO predictions (request_id, filename, timestamp, filepath, filesize, width, height, num_detections, iterations, converged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.RequestID, p.Filename, p.Timestamp.UTC(), p.FilePath, p.FileSize, p.Width, p.Height, p.NumDetections, p.Iterations, p.Converged)
	if err != nil {
		return 0, fmt.Errorf("failed to insert prediction: %w", err)
	}

	return result.LastInsertId()
}

// GetByID retrieves a prediction by its ID. Detections are not loaded.
func (r *PredictionRepository) GetByID(id int64) (*model.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+predictionColumns+` FROM predictions WHERE id = ?`, id)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return p, nil
}

// GetAll retrieves predictions based on filter criteria, newest first.
func (r *PredictionRepository) GetAll(filter *dto.PredictionFilter) ([]model.Prediction, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := filterClause(filter)
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE 1=1` + where + ` ORDER BY timestamp DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	predictions := make([]model.Prediction, 0)
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, *p)
	}

	return predictions, rows.Err()
}

// GetTotalCount returns the total count of predictions matching the filter.
func (r *PredictionRepository) GetTotalCount(filter *dto.PredictionFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := filterClause(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM predictions WHERE 1=1`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}

	return count, nil
}

// GetStats returns statistics about archived predictions.
func (r *PredictionRepository) GetStats() (*model.PredictionStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.PredictionStats{PerDay: make(map[string]int)}

	err := r.db.Conn().QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(num_detections), 0), COALESCE(SUM(filesize), 0),
			COALESCE(SUM(CASE WHEN converged = 0 THEN 1 ELSE 0 END), 0)
		FROM predictions
	`).Scan(&stats.TotalPredictions, &stats.TotalDetections, &stats.TotalSizeBytes, &stats.NotConverged)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate predictions: %w", err)
	}
	if stats.TotalPredictions > 0 {
		stats.AvgDetections = float64(stats.TotalDetections) / float64(stats.TotalPredictions)
	}

	rows, err := r.db.Conn().Query(`SELECT DATE(timestamp) AS day, COUNT(*) FROM predictions GROUP BY day`)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		stats.PerDay[day] = count
	}

	return stats, rows.Err()
}

// Delete removes a prediction. Its detections go with it through the foreign key cascade.
func (r *PredictionRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM predictions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete prediction: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(row rowScanner) (*model.Prediction, error) {
	var p model.Prediction
	err := row.Scan(&p.ID, &p.RequestID, &p.Filename, &p.Timestamp, &p.FilePath, &p.FileSize,
		&p.Width, &p.Height, &p.NumDetections, &p.Iterations, &p.Converged)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func filterClause(filter *dto.PredictionFilter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	clause := ""
	args := []interface{}{}

	if filter.Filename != "" {
		clause += " AND filename LIKE ?"
		args = append(args, "%"+filter.Filename+"%")
	}

	if !filter.DateAfter.IsZero() {
		clause += " AND DATE(timestamp) >= ?"
		args = append(args, filter.DateAfter.Format("2006-01-02"))
	}

	if !filter.DateBefore.IsZero() {
		clause += " AND DATE(timestamp) <= ?"
		args = append(args, filter.DateBefore.Format("2006-01-02"))
	}

	if filter.MinDetections > 0 {
		clause += " AND num_detections >= ?"
		args = append(args, filter.MinDetections)
	}

	return clause, args
}

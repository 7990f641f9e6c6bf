package sqlite

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptdetect/internal/dto"
	"receiptdetect/internal/model"
	"receiptdetect/internal/repository"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertPrediction(t *testing.T, repo *PredictionRepository, filename string, ts time.Time, numDetections int) int64 {
	t.Helper()
	id, err := repo.Insert(&model.Prediction{
		RequestID:     "req-1",
		Filename:      filename,
		Timestamp:     ts,
		FilePath:      "/archive/" + filename,
		FileSize:      1024,
		Width:         640,
		Height:        480,
		NumDetections: numDetections,
		Iterations:    2,
		Converged:     true,
	})
	require.NoError(t, err)
	return id
}

func TestDatabase_Connection(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", "test.db")

	db, err := New(dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestPredictionRepository_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	predictions := NewPredictionRepository(db)
	detections := NewDetectionRepository(db)

	ts := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
	id := insertPrediction(t, predictions, "receipt.jpg", ts, 2)

	require.NoError(t, detections.InsertBatch([]model.Detection{
		{PredictionID: id, Confidence: 0.9, X1: 10, Y1: 20, X2: 50, Y2: 120, XCenter: 0.3, YCenter: 0.35, WNorm: 0.4, HNorm: 0.5},
		{PredictionID: id, Confidence: 0.6, X1: 60, Y1: 20, X2: 90, Y2: 80},
	}))

	got, err := predictions.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "receipt.jpg", got.Filename)
	assert.Equal(t, 2, got.NumDetections)
	assert.True(t, got.Converged)
	assert.True(t, ts.Equal(got.Timestamp))

	dets, err := detections.GetByPredictionID(id)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, 0.9, dets[0].Confidence)
	assert.Equal(t, 0.35, dets[0].YCenter)
	assert.Equal(t, 90.0, dets[1].X2)
}

func TestPredictionRepository_NotFound(t *testing.T) {
	repo := NewPredictionRepository(newTestDB(t))

	_, err := repo.GetByID(42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(42), repository.ErrNotFound)
}

func TestPredictionRepository_Filter(t *testing.T) {
	repo := NewPredictionRepository(newTestDB(t))

	day1 := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 11, 12, 0, 0, 0, time.UTC)
	day3 := time.Date(2024, 1, 12, 12, 0, 0, 0, time.UTC)
	insertPrediction(t, repo, "shop_a.jpg", day1, 0)
	insertPrediction(t, repo, "shop_b.jpg", day2, 3)
	insertPrediction(t, repo, "cafe.png", day3, 5)

	tests := []struct {
		name   string
		filter *dto.PredictionFilter
		want   []string
	}{
		{"all newest first", &dto.PredictionFilter{}, []string{"cafe.png", "shop_b.jpg", "shop_a.jpg"}},
		{"filename substring", &dto.PredictionFilter{Filename: "shop"}, []string{"shop_b.jpg", "shop_a.jpg"}},
		{"date range", &dto.PredictionFilter{DateAfter: day2, DateBefore: day2}, []string{"shop_b.jpg"}},
		{"min detections", &dto.PredictionFilter{MinDetections: 3}, []string{"cafe.png", "shop_b.jpg"}},
		{"limit offset", &dto.PredictionFilter{Limit: 1, Offset: 1}, []string{"shop_b.jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.GetAll(tt.filter)
			require.NoError(t, err)

			names := make([]string, 0, len(got))
			for _, p := range got {
				names = append(names, p.Filename)
			}
			assert.Equal(t, tt.want, names)
		})
	}

	count, err := repo.GetTotalCount(&dto.PredictionFilter{Filename: "shop", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPredictionRepository_StatsAndDelete(t *testing.T) {
	db := newTestDB(t)
	predictions := NewPredictionRepository(db)
	detections := NewDetectionRepository(db)

	day := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	keep := insertPrediction(t, predictions, "a.jpg", day, 1)
	drop := insertPrediction(t, predictions, "b.jpg", day, 3)
	require.NoError(t, detections.InsertBatch([]model.Detection{{PredictionID: drop, Confidence: 0.5}}))

	stats, err := predictions.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalPredictions)
	assert.Equal(t, 4, stats.TotalDetections)
	assert.Equal(t, int64(2048), stats.TotalSizeBytes)
	assert.Equal(t, 2.0, stats.AvgDetections)
	assert.Equal(t, 2, stats.PerDay["2024-02-01"])

	require.NoError(t, predictions.Delete(drop))

	dets, err := detections.GetByPredictionID(drop)
	require.NoError(t, err)
	assert.Empty(t, dets)

	_, err = predictions.GetByID(keep)
	assert.NoError(t, err)
}

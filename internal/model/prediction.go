package model

import "time"

// Prediction represents an archived prediction for one image.
type Prediction struct {
	ID            int64       `json:"id"`
	RequestID     string      `json:"request_id"`
	Filename      string      `json:"filename"`
	Timestamp     time.Time   `json:"timestamp"`
	FilePath      string      `json:"filepath"`
	FileSize      int64       `json:"filesize"`
	Width         int         `json:"width"`
	Height        int         `json:"height"`
	NumDetections int         `json:"num_detections"`
	Iterations    int         `json:"iterations"`
	Converged     bool        `json:"converged"`
	Detections    []Detection `json:"detections,omitempty"`
}

// PredictionStats contains statistics about the archive.
type PredictionStats struct {
	TotalPredictions int            `json:"total_predictions"`
	TotalDetections  int            `json:"total_detections"`
	TotalSizeBytes   int64          `json:"total_size_bytes"`
	NotConverged     int            `json:"not_converged"`
	AvgDetections    float64        `json:"avg_detections"`
	PerDay           map[string]int `json:"per_day"`
}

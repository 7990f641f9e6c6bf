package dto

import "receiptdetect/internal/service/boxmerge"

// MergeStats reports how the merge engine finished for one image.
type MergeStats struct {
	Iterations int  `json:"iterations"`
	Converged  bool `json:"converged"`
}

// ImageResult is the merged detection output for one uploaded file.
type ImageResult struct {
	Filename      string               `json:"filename"`
	Timestamp     string               `json:"timestamp"`
	Width         int                  `json:"width"`
	Height        int                  `json:"height"`
	NumDetections int                  `json:"num_detections"`
	Merge         MergeStats           `json:"merge"`
	Detections    []boxmerge.Detection `json:"detections"`
}

// PredictResponse wraps the results of one request in upload order.
type PredictResponse struct {
	RequestID string        `json:"request_id"`
	Results   []ImageResult `json:"results"`
}

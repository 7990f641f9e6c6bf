package dto

// LiveEvent is broadcast to live viewers for every processed image.
type LiveEvent struct {
	RequestID     string `json:"request_id"`
	Filename      string `json:"filename"`
	NumDetections int    `json:"num_detections"`
	Timestamp     string `json:"timestamp"`
}

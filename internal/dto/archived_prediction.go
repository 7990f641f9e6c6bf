package dto

import "time"

// ArchivedPrediction holds an uploaded image and its result before flushing to the archive.
type ArchivedPrediction struct {
	RequestID string
	CreatedAt time.Time
	Result    ImageResult
	Data      []byte
}

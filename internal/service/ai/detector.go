package ai

import (
	"context"

	"github.com/pkg/errors"

	"receiptdetect/internal/service/boxmerge"
)

const (
	// BackendOpenCV runs the ONNX model through the OpenCV DNN module.
	BackendOpenCV = "opencv"
	// BackendONNXRuntime runs the ONNX model through ONNX Runtime.
	BackendONNXRuntime = "onnxruntime"
	// BackendRemote forwards images to an external inference service.
	BackendRemote = "remote"
)

// ErrDetectorClosed is returned when a detector or pool is used after Close.
var ErrDetectorClosed = errors.New("detector closed")

// ModelConfig describes a local YOLO ONNX model shared by the in-process backends.
type ModelConfig struct {
	ModelPath     string
	InputSize     int
	NumClasses    int
	ConfThreshold float64
	IoUThreshold  float64
	MaxDet        int
}

// DecodeParams returns decoding parameters for an image of the given size.
func (c ModelConfig) DecodeParams(width, height int) DecodeParams {
	return DecodeParams{
		InputSize:     c.InputSize,
		NumClasses:    c.NumClasses,
		Width:         width,
		Height:        height,
		ConfThreshold: c.ConfThreshold,
		IoUThreshold:  c.IoUThreshold,
		MaxDet:        c.MaxDet,
	}
}

// Frame is the raw detector output for one image.
type Frame struct {
	Width  int
	Height int
	// Detections hold pixel coordinates only, ordered by descending confidence.
	Detections []boxmerge.Detection
}

// Detector runs object detection on an encoded image.
// A Detector instance is not safe for concurrent use; share instances through a Pool.
type Detector interface {
	Detect(ctx context.Context, image []byte) (*Frame, error)
	Close() error
}

// Annotator draws detections onto an encoded image and returns a JPEG.
type Annotator interface {
	Annotate(image []byte, detections []boxmerge.Detection) ([]byte, error)
}

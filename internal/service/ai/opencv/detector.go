// Package opencv runs YOLO ONNX models through the OpenCV DNN module.
package opencv

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"receiptdetect/internal/logger"
	"receiptdetect/internal/service/ai"
)

// Detector wraps one OpenCV network. Use it from one goroutine at a time.
type Detector struct {
	net    gocv.Net
	config ai.ModelConfig
	logger *logger.Logger
	mu     sync.Mutex
	closed bool
}

// NewDetector loads the ONNX model and prepares it for CPU inference.
func NewDetector(config ai.ModelConfig, logger *logger.Logger) (*Detector, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, errors.Errorf("model file not found: %s", config.ModelPath)
	}

	net := gocv.ReadNetFromONNX(config.ModelPath)
	if net.Empty() {
		return nil, errors.New("failed to load network")
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, errors.New("failed to set preferable backend or target")
	}

	logger.Info("OpenCV detection network initialized from %s", config.ModelPath)
	return &Detector{net: net, config: config, logger: logger}, nil
}

// Detect decodes the image, runs the network and returns boxes in original pixel space.
func (d *Detector) Detect(ctx context.Context, imageBytes []byte) (*ai.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ai.ErrDetectorClosed
	}

	mat, err := gocv.IMDecode(imageBytes, gocv.IMReadColor)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, errors.New("decoded image is empty")
	}

	size := d.config.InputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read network output")
	}
	// Forward's buffer is released with output; decode before returning.
	raw := make([]float32, len(data))
	copy(raw, data)

	width, height := mat.Cols(), mat.Rows()
	return &ai.Frame{
		Width:      width,
		Height:     height,
		Detections: ai.DecodeYOLO(raw, d.config.DecodeParams(width, height)),
	}, nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}

// Package ortyolo runs YOLO ONNX models through ONNX Runtime.
package ortyolo

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"receiptdetect/internal/logger"
	"receiptdetect/internal/service/ai"
)

var (
	envOnce sync.Once
	envErr  error
)

// InitEnvironment loads the ONNX Runtime shared library once per process.
func InitEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath != "" {
			if _, err := os.Stat(libPath); os.IsNotExist(err) {
				envErr = errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
				return
			}
			ort.SetSharedLibraryPath(libPath)
		}
		envErr = errors.Wrap(ort.InitializeEnvironment(), "initialize onnxruntime environment")
	})
	return envErr
}

// DestroyEnvironment releases the runtime after every session has been closed.
func DestroyEnvironment() error {
	return ort.DestroyEnvironment()
}

// Detector owns one session with preallocated input and output tensors.
type Detector struct {
	config  ai.ModelConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	mu      sync.Mutex
	closed  bool
}

// NewDetector creates a session for the model. InitEnvironment must have succeeded first.
func NewDetector(config ai.ModelConfig, logger *logger.Logger) (*Detector, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, errors.Errorf("model file not found: %s", config.ModelPath)
	}

	size := int64(config.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}

	outputShape := ort.NewShape(1, int64(4+config.NumClasses), int64(ai.AnchorCount(config.InputSize)))
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	// Parallelism comes from the pool, one thread per session.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	session, err := ort.NewAdvancedSession(
		config.ModelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "create onnxruntime session")
	}

	logger.Info("ONNX Runtime session initialized from %s", config.ModelPath)
	return &Detector{config: config, session: session, input: input, output: output}, nil
}

// Detect decodes the image, fills the input tensor and decodes the raw head.
func (d *Detector) Detect(ctx context.Context, imageBytes []byte) (*ai.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ai.ErrDetectorClosed
	}

	if err := fillInput(img, d.config.InputSize, d.input.GetData()); err != nil {
		return nil, err
	}
	if err := d.session.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	return &ai.Frame{
		Width:      width,
		Height:     height,
		Detections: ai.DecodeYOLO(d.output.GetData(), d.config.DecodeParams(width, height)),
	}, nil
}

// Close destroys the session and its tensors.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	err := d.session.Destroy()
	d.input.Destroy()
	d.output.Destroy()
	return errors.Wrap(err, "destroy session")
}

// fillInput resizes img to size x size and writes planar RGB scaled to [0,1].
func fillInput(img image.Image, size int, dst []float32) error {
	channel := size * size
	if len(dst) < channel*3 {
		return errors.Errorf("input tensor holds %d floats, needs %d", len(dst), channel*3)
	}
	red := dst[0:channel]
	green := dst[channel : channel*2]
	blue := dst[channel*2 : channel*3]

	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	bounds := resized.Bounds()

	i := 0
	for y := bounds.Min.Y; y < bounds.Min.Y+size; y++ {
		for x := bounds.Min.X; x < bounds.Min.X+size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}

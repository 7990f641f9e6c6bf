package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"receiptdetect/internal/service/boxmerge"
)

// RemoteDetector delegates inference to an HTTP service that accepts a
// multipart "file" upload and answers with raw pixel-space detections.
type RemoteDetector struct {
	inferenceURL string
	client       *http.Client
}

type remoteResponse struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	Detections []struct {
		Confidence float64 `json:"confidence"`
		X1         float64 `json:"x1"`
		Y1         float64 `json:"y1"`
		X2         float64 `json:"x2"`
		Y2         float64 `json:"y2"`
	} `json:"detections"`
}

// NewRemoteDetector creates a detector that posts images to inferenceURL.
func NewRemoteDetector(inferenceURL string, timeout time.Duration) *RemoteDetector {
	return &RemoteDetector{
		inferenceURL: inferenceURL,
		client:       &http.Client{Timeout: timeout},
	}
}

// Detect uploads the image and decodes the service's answer.
func (d *RemoteDetector) Detect(ctx context.Context, image []byte) (*Frame, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, errors.Wrap(err, "create form file")
	}
	if _, err := io.Copy(part, bytes.NewReader(image)); err != nil {
		return nil, errors.Wrap(err, "copy image data")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.inferenceURL, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("inference failed with status: %d", resp.StatusCode)
	}

	var result remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}

	frame := &Frame{
		Width:      result.Width,
		Height:     result.Height,
		Detections: make([]boxmerge.Detection, 0, len(result.Detections)),
	}
	for _, det := range result.Detections {
		frame.Detections = append(frame.Detections, boxmerge.Detection{
			Confidence: det.Confidence,
			X1:         det.X1,
			Y1:         det.Y1,
			X2:         det.X2,
			Y2:         det.Y2,
		})
	}
	return frame, nil
}

// CheckHealth probes <inferenceURL>/health.
func (d *RemoteDetector) CheckHealth(ctx context.Context) error {
	url := strings.TrimSuffix(d.inferenceURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("ml service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no per-detector resources.
func (d *RemoteDetector) Close() error {
	return nil
}

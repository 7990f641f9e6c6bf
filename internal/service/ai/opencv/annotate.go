package opencv

import (
	"fmt"
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"receiptdetect/internal/service/boxmerge"
)

// Annotator draws merged boxes onto images.
type Annotator struct {
	Color     color.RGBA
	Thickness int
}

// NewAnnotator returns an annotator drawing 2px red boxes.
func NewAnnotator() *Annotator {
	return &Annotator{Color: color.RGBA{R: 255, G: 0, B: 0, A: 0}, Thickness: 2}
}

// Annotate draws detections with their confidences and returns a re-encoded JPEG buffer.
func (a *Annotator) Annotate(img []byte, detections []boxmerge.Detection) ([]byte, error) {
	mat, err := gocv.IMDecode(img, gocv.IMReadColor)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, errors.New("decoded image is empty")
	}

	for _, det := range detections {
		rect := image.Rect(int(det.X1), int(det.Y1), int(det.X2), int(det.Y2)).Canon()
		if err := gocv.Rectangle(&mat, rect, a.Color, a.Thickness); err != nil {
			return nil, errors.Wrap(err, "failed to draw rectangle")
		}

		label := fmt.Sprintf("%.2f", det.Confidence)
		pt := image.Pt(rect.Min.X, rect.Min.Y-5)
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, 0.5, a.Color, 1); err != nil {
			return nil, errors.Wrap(err, "failed to draw text")
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode image")
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

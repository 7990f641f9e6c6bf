package ai

import (
	"sort"

	"receiptdetect/internal/service/boxmerge"
)

// DecodeParams describes a YOLOv8-style output head and the image it was computed for.
type DecodeParams struct {
	// InputSize is the square model input edge in pixels.
	InputSize int
	// NumClasses is the number of class score rows after the four box rows.
	NumClasses int
	// Width and Height are the original image dimensions.
	Width  int
	Height int

	ConfThreshold float64
	IoUThreshold  float64
	MaxDet        int
}

type candidate struct {
	det   boxmerge.Detection
	class int
}

// AnchorCount returns the number of prediction columns of a YOLOv8 head for a
// square input of the given size (strides 8, 16 and 32).
func AnchorCount(inputSize int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		side := inputSize / stride
		n += side * side
	}
	return n
}

// DecodeYOLO converts a [4+classes, anchors] row-major head into pixel boxes
// of the original image. Boxes below ConfThreshold are dropped, overlapping
// boxes of the same class are suppressed greedily and at most MaxDet boxes are
// returned, highest confidence first.
func DecodeYOLO(output []float32, p DecodeParams) []boxmerge.Detection {
	rows := 4 + p.NumClasses
	if p.NumClasses <= 0 || p.InputSize <= 0 || len(output) < rows {
		return []boxmerge.Detection{}
	}
	anchors := len(output) / rows

	scaleX := float64(p.Width) / float64(p.InputSize)
	scaleY := float64(p.Height) / float64(p.InputSize)

	candidates := make([]candidate, 0, 64)
	for idx := 0; idx < anchors; idx++ {
		classID := 0
		best := float32(-1)
		for c := 0; c < p.NumClasses; c++ {
			if score := output[anchors*(c+4)+idx]; score > best {
				best = score
				classID = c
			}
		}
		if float64(best) < p.ConfThreshold {
			continue
		}

		cx := float64(output[idx])
		cy := float64(output[anchors+idx])
		w := float64(output[2*anchors+idx])
		h := float64(output[3*anchors+idx])

		candidates = append(candidates, candidate{
			class: classID,
			det: boxmerge.Detection{
				Confidence: float64(best),
				X1:         (cx - w/2) * scaleX,
				Y1:         (cy - h/2) * scaleY,
				X2:         (cx + w/2) * scaleX,
				Y2:         (cy + h/2) * scaleY,
			},
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].det.Confidence > candidates[j].det.Confidence
	})

	return suppress(candidates, p.IoUThreshold, p.MaxDet)
}

// suppress performs greedy per-class non-maximum suppression on candidates
// sorted by descending confidence.
func suppress(candidates []candidate, iouThreshold float64, maxDet int) []boxmerge.Detection {
	kept := make([]boxmerge.Detection, 0, len(candidates))
	used := make([]bool, len(candidates))

	for i := range candidates {
		if used[i] {
			continue
		}
		if maxDet > 0 && len(kept) >= maxDet {
			break
		}
		anchor := candidates[i]
		kept = append(kept, anchor.det)
		used[i] = true

		for j := i + 1; j < len(candidates); j++ {
			if used[j] || candidates[j].class != anchor.class {
				continue
			}
			if iou(anchor.det, candidates[j].det) > iouThreshold {
				used[j] = true
			}
		}
	}

	return kept
}

func iou(a, b boxmerge.Detection) float64 {
	inter := boxmerge.Intersection(a, b)
	union := boxmerge.Area(a) + boxmerge.Area(b) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

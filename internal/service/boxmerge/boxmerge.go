// Package boxmerge collapses duplicate detections of one image into single
// boxes. Two boxes are duplicates when their overlap covers at least a given
// fraction of the smaller box; duplicates are replaced by their bounding union.
// Passes repeat until nothing merges or the pass limit is reached.
package boxmerge

const (
	// DefaultContainmentThreshold is the minimum fraction of the smaller box that must overlap.
	DefaultContainmentThreshold = 0.9
	// DefaultMaxIterations caps the number of merge passes.
	DefaultMaxIterations = 10
)

// Detection is one detector box in pixel space plus its image-relative form.
// The normalized fields are derived from the pixel rectangle and are rewritten
// by Merge; they are never merged themselves.
type Detection struct {
	Confidence float64 `json:"confidence"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	XCenter    float64 `json:"x_center"`
	YCenter    float64 `json:"y_center"`
	WNorm      float64 `json:"w_norm"`
	HNorm      float64 `json:"h_norm"`
}

// Options tunes the merge.
type Options struct {
	ContainmentThreshold float64
	MaxIterations        int
}

// DefaultOptions returns the thresholds the service ships with.
func DefaultOptions() Options {
	return Options{
		ContainmentThreshold: DefaultContainmentThreshold,
		MaxIterations:        DefaultMaxIterations,
	}
}

// Result is the outcome of Merge.
type Result struct {
	Detections []Detection
	// Iterations is the number of passes that ran.
	Iterations int
	// Converged is false when the pass limit was hit while boxes were still merging.
	Converged bool
}

// Merge deduplicates detections of a single width x height image.
//
// The input slice is not modified. Processing order follows the input order,
// so for a fixed input the output is deterministic. Merge never fails: empty
// input, degenerate rectangles and zero-sized images all yield a result.
func Merge(detections []Detection, width, height int, opts Options) Result {
	if len(detections) == 0 {
		return Result{Detections: []Detection{}, Converged: true}
	}

	current := make([]Detection, len(detections))
	copy(current, detections)

	result := Result{}
	for result.Iterations < opts.MaxIterations {
		result.Iterations++

		next, merged := mergePass(current, opts.ContainmentThreshold)
		current = next
		if !merged {
			result.Converged = true
			break
		}
	}

	Normalize(current, width, height)
	result.Detections = current
	return result
}

// mergePass runs one ordered scan. Each unconsumed box becomes an accumulator
// that absorbs every later unconsumed box it contains (or is contained by);
// comparisons after an absorption use the grown accumulator.
func mergePass(set []Detection, threshold float64) ([]Detection, bool) {
	consumed := make([]bool, len(set))
	out := make([]Detection, 0, len(set))
	merged := false

	for i := range set {
		if consumed[i] {
			continue
		}
		acc := set[i]
		for j := i + 1; j < len(set); j++ {
			if consumed[j] {
				continue
			}
			if Containment(acc, set[j]) >= threshold {
				acc = Union(acc, set[j])
				consumed[j] = true
				merged = true
			}
		}
		consumed[i] = true
		out = append(out, acc)
	}

	return out, merged
}

// Normalize recomputes the image-relative fields of every detection in place
// from its pixel rectangle. A non-positive dimension leaves the fields along
// that axis at zero.
func Normalize(detections []Detection, width, height int) {
	for i := range detections {
		d := &detections[i]
		d.XCenter, d.WNorm = 0, 0
		d.YCenter, d.HNorm = 0, 0
		if width > 0 {
			w := float64(width)
			d.XCenter = (d.X1 + d.X2) / 2 / w
			d.WNorm = (d.X2 - d.X1) / w
		}
		if height > 0 {
			h := float64(height)
			d.YCenter = (d.Y1 + d.Y2) / 2 / h
			d.HNorm = (d.Y2 - d.Y1) / h
		}
	}
}

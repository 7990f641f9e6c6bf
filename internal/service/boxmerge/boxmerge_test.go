package boxmerge

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(conf, x1, y1, x2, y2 float64) Detection {
	return Detection{Confidence: conf, X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func pixels(ds []Detection) [][5]float64 {
	out := make([][5]float64, len(ds))
	for i, d := range ds {
		out[i] = [5]float64{d.Confidence, d.X1, d.Y1, d.X2, d.Y2}
	}
	return out
}

func TestMergeEmpty(t *testing.T) {
	res := Merge(nil, 640, 480, DefaultOptions())

	require.NotNil(t, res.Detections)
	assert.Empty(t, res.Detections)
	assert.True(t, res.Converged)
	assert.Equal(t, 0, res.Iterations)
}

func TestMergeFullContainment(t *testing.T) {
	tests := []struct {
		name  string
		input []Detection
	}{
		{
			name:  "outer first",
			input: []Detection{box(0.6, 0, 0, 100, 100), box(0.9, 20, 20, 40, 40)},
		},
		{
			name:  "inner first",
			input: []Detection{box(0.9, 20, 20, 40, 40), box(0.6, 0, 0, 100, 100)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Merge(tt.input, 200, 200, DefaultOptions())

			require.Len(t, res.Detections, 1)
			got := res.Detections[0]
			assert.Equal(t, 0.9, got.Confidence)
			assert.Equal(t, [4]float64{0, 0, 100, 100}, [4]float64{got.X1, got.Y1, got.X2, got.Y2})
			assert.True(t, res.Converged)
		})
	}
}

func TestMergeNoFalseMerge(t *testing.T) {
	disjoint := []Detection{
		box(0.99, 0, 0, 10, 10),
		box(0.98, 10, 0, 20, 10), // shares an edge only
		box(0.50, 50, 50, 60, 60),
	}

	for _, threshold := range []float64{1, 0.9, 0.5, 0.01} {
		res := Merge(disjoint, 100, 100, Options{ContainmentThreshold: threshold, MaxIterations: 10})
		assert.Len(t, res.Detections, 3, "threshold %v", threshold)
		assert.Equal(t, pixels(disjoint), pixels(res.Detections))
	}
}

func TestMergeBelowThresholdKeepsBoth(t *testing.T) {
	// Overlap covers half of the smaller box.
	input := []Detection{box(0.8, 0, 0, 10, 10), box(0.7, 5, 0, 15, 10)}

	res := Merge(input, 100, 100, DefaultOptions())
	assert.Len(t, res.Detections, 2)

	res = Merge(input, 100, 100, Options{ContainmentThreshold: 0.5, MaxIterations: 10})
	require.Len(t, res.Detections, 1)
	assert.Equal(t, [5]float64{0.8, 0, 0, 15, 10}, pixels(res.Detections)[0])
}

func TestMergeNormalization(t *testing.T) {
	res := Merge([]Detection{box(0.5, 10, 20, 50, 120)}, 100, 200, DefaultOptions())

	require.Len(t, res.Detections, 1)
	got := res.Detections[0]
	assert.InDelta(t, 0.30, got.XCenter, 1e-12)
	assert.InDelta(t, 0.35, got.YCenter, 1e-12)
	assert.InDelta(t, 0.40, got.WNorm, 1e-12)
	assert.InDelta(t, 0.50, got.HNorm, 1e-12)
}

func TestMergeRecomputesStaleNormalizedFields(t *testing.T) {
	a := box(0.9, 0, 0, 50, 50)
	a.XCenter, a.YCenter, a.WNorm, a.HNorm = 7, 7, 7, 7
	b := box(0.4, 10, 10, 20, 20)
	b.XCenter = math.NaN()

	res := Merge([]Detection{a, b}, 100, 100, DefaultOptions())

	require.Len(t, res.Detections, 1)
	got := res.Detections[0]
	assert.InDelta(t, 0.25, got.XCenter, 1e-12)
	assert.InDelta(t, 0.25, got.YCenter, 1e-12)
	assert.InDelta(t, 0.5, got.WNorm, 1e-12)
	assert.InDelta(t, 0.5, got.HNorm, 1e-12)
}

func TestMergeChainedWithinOnePass(t *testing.T) {
	a := box(0.7, 0, 0, 10, 10)
	b := box(0.6, 0, 0, 20, 10)
	c := box(0.9, 12, 0, 18, 10)

	require.Less(t, Containment(a, c), DefaultContainmentThreshold)
	require.GreaterOrEqual(t, Containment(a, b), DefaultContainmentThreshold)
	require.GreaterOrEqual(t, Containment(Union(a, b), c), DefaultContainmentThreshold)

	res := Merge([]Detection{a, b, c}, 100, 100, Options{ContainmentThreshold: DefaultContainmentThreshold, MaxIterations: 1})

	require.Len(t, res.Detections, 1)
	assert.Equal(t, [5]float64{0.9, 0, 0, 20, 10}, pixels(res.Detections)[0])
}

func TestMergeNeedsSecondPass(t *testing.T) {
	// y is skipped by x before x absorbs z, so only the next pass can join them.
	x := box(0.9, 0, 0, 10, 10)
	y := box(0.8, 12, 0, 18, 10)
	z := box(0.7, 0, 0, 20, 10)
	input := []Detection{x, y, z}

	capped := Merge(input, 100, 100, Options{ContainmentThreshold: 0.9, MaxIterations: 1})
	assert.Len(t, capped.Detections, 2)
	assert.Equal(t, 1, capped.Iterations)
	assert.False(t, capped.Converged)

	full := Merge(input, 100, 100, DefaultOptions())
	require.Len(t, full.Detections, 1)
	assert.Equal(t, [5]float64{0.9, 0, 0, 20, 10}, pixels(full.Detections)[0])
	assert.Equal(t, 3, full.Iterations)
	assert.True(t, full.Converged)
}

func TestMergeTerminatesUnderCap(t *testing.T) {
	// A staircase where each pass can join only one more neighbour.
	var input []Detection
	for i := 0; i < 50; i++ {
		input = append(input, box(0.5, float64(i)*2, 0, float64(i)*2+4, 4))
	}

	for _, limit := range []int{1, 2, 5, 10} {
		res := Merge(input, 1000, 1000, Options{ContainmentThreshold: 0.5, MaxIterations: limit})
		assert.LessOrEqual(t, res.Iterations, limit)
		assert.LessOrEqual(t, len(res.Detections), len(input))
	}
}

func TestMergeZeroIterations(t *testing.T) {
	input := []Detection{box(0.5, 0, 0, 10, 10), box(0.4, 0, 0, 10, 10)}

	res := Merge(input, 10, 10, Options{ContainmentThreshold: 0.9, MaxIterations: 0})

	assert.Len(t, res.Detections, 2)
	assert.False(t, res.Converged)
	assert.InDelta(t, 0.5, res.Detections[0].XCenter, 1e-12)
}

func TestMergeDegenerateGeometry(t *testing.T) {
	input := []Detection{
		box(0.9, 5, 5, 5, 5),     // point
		box(0.8, 5, 5, 5, 5),     // same point
		box(0.7, 30, 30, 10, 10), // inverted
		box(0.6, 0, 0, 40, 40),
	}

	res := Merge(input, 0, -5, DefaultOptions())

	assert.Len(t, res.Detections, 4)
	for _, d := range res.Detections {
		for _, v := range []float64{d.XCenter, d.YCenter, d.WNorm, d.HNorm} {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			assert.Zero(t, v)
		}
	}
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	input := []Detection{box(0.6, 0, 0, 100, 100), box(0.9, 20, 20, 40, 40)}
	before := pixels(input)

	Merge(input, 200, 200, DefaultOptions())

	assert.Equal(t, before, pixels(input))
	assert.Zero(t, input[0].XCenter)
}

func randomSet(r *rand.Rand, n int) []Detection {
	out := make([]Detection, n)
	for i := range out {
		x := r.Float64() * 500
		y := r.Float64() * 500
		w := r.Float64() * 120
		h := r.Float64() * 120
		out[i] = box(r.Float64(), x, y, x+w, y+h)
	}
	return out
}

func TestMergeProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	opts := Options{ContainmentThreshold: 0.6, MaxIterations: 100}

	for round := 0; round < 50; round++ {
		input := randomSet(r, 1+r.Intn(60))

		first := Merge(input, 640, 640, opts)
		require.True(t, first.Converged)
		assert.LessOrEqual(t, len(first.Detections), len(input), "monotonic shrink")

		second := Merge(first.Detections, 640, 640, opts)
		assert.Equal(t, first.Detections, second.Detections, "idempotence")
		assert.Equal(t, 1, second.Iterations)

		again := Merge(input, 640, 640, opts)
		assert.Equal(t, first.Detections, again.Detections, "determinism")
	}
}

func TestContainment(t *testing.T) {
	tests := []struct {
		name string
		a, b Detection
		want float64
	}{
		{"identical", box(1, 0, 0, 10, 10), box(1, 0, 0, 10, 10), 1},
		{"nested", box(1, 0, 0, 100, 100), box(1, 10, 10, 20, 20), 1},
		{"half", box(1, 0, 0, 10, 10), box(1, 5, 0, 15, 10), 0.5},
		{"disjoint", box(1, 0, 0, 10, 10), box(1, 20, 20, 30, 30), 0},
		{"zero area", box(1, 5, 5, 5, 5), box(1, 0, 0, 10, 10), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Containment(tt.a, tt.b), 1e-12)
			assert.InDelta(t, tt.want, Containment(tt.b, tt.a), 1e-12)
		})
	}
}

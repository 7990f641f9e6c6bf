package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type anchor struct {
	cx, cy, w, h float32
	scores       []float32
}

// head lays anchors out the way a YOLOv8 export does: one row per attribute.
func head(anchors []anchor, numClasses int) []float32 {
	n := len(anchors)
	out := make([]float32, (4+numClasses)*n)
	for i, a := range anchors {
		out[i] = a.cx
		out[n+i] = a.cy
		out[2*n+i] = a.w
		out[3*n+i] = a.h
		for c := 0; c < numClasses; c++ {
			out[(4+c)*n+i] = a.scores[c]
		}
	}
	return out
}

func defaultParams() DecodeParams {
	return DecodeParams{
		InputSize:     640,
		NumClasses:    1,
		Width:         1280,
		Height:        320,
		ConfThreshold: 0.3,
		IoUThreshold:  0.7,
		MaxDet:        300,
	}
}

func TestAnchorCount(t *testing.T) {
	assert.Equal(t, 8400, AnchorCount(640))
	assert.Equal(t, 2100, AnchorCount(320))
}

func TestDecodeYOLOScalesAndSuppresses(t *testing.T) {
	output := head([]anchor{
		{cx: 100, cy: 100, w: 20, h: 40, scores: []float32{0.9}},
		{cx: 101, cy: 100, w: 20, h: 40, scores: []float32{0.8}},
		{cx: 300, cy: 300, w: 10, h: 10, scores: []float32{0.1}},
	}, 1)

	dets := DecodeYOLO(output, defaultParams())

	require.Len(t, dets, 1)
	assert.InDelta(t, 0.9, dets[0].Confidence, 1e-6)
	assert.InDelta(t, 180, dets[0].X1, 1e-3)
	assert.InDelta(t, 40, dets[0].Y1, 1e-3)
	assert.InDelta(t, 220, dets[0].X2, 1e-3)
	assert.InDelta(t, 60, dets[0].Y2, 1e-3)
}

func TestDecodeYOLOClassAware(t *testing.T) {
	output := head([]anchor{
		{cx: 100, cy: 100, w: 20, h: 20, scores: []float32{0.9, 0.1}},
		{cx: 100, cy: 100, w: 20, h: 20, scores: []float32{0.1, 0.8}},
	}, 2)
	params := defaultParams()
	params.NumClasses = 2

	dets := DecodeYOLO(output, params)

	assert.Len(t, dets, 2)
}

func TestDecodeYOLOOrderAndMaxDet(t *testing.T) {
	output := head([]anchor{
		{cx: 50, cy: 50, w: 10, h: 10, scores: []float32{0.4}},
		{cx: 150, cy: 150, w: 10, h: 10, scores: []float32{0.95}},
		{cx: 250, cy: 250, w: 10, h: 10, scores: []float32{0.6}},
	}, 1)
	params := defaultParams()
	params.MaxDet = 2

	dets := DecodeYOLO(output, params)

	require.Len(t, dets, 2)
	assert.InDelta(t, 0.95, dets[0].Confidence, 1e-6)
	assert.InDelta(t, 0.6, dets[1].Confidence, 1e-6)
}

func TestDecodeYOLOInvalidHead(t *testing.T) {
	params := defaultParams()

	assert.Empty(t, DecodeYOLO(nil, params))
	assert.Empty(t, DecodeYOLO([]float32{1, 2, 3}, params))

	params.NumClasses = 0
	assert.Empty(t, DecodeYOLO(make([]float32, 50), params))
}

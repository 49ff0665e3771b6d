package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/ppe-cascade/pkg/types"
)

func det(class int, conf float32, xmin, ymin, xmax, ymax int) types.Detection {
	return types.Detection{ClassID: class, Confidence: conf, Box: types.Rect{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}}
}

func TestIoU(t *testing.T) {
	a := types.Rect{XMin: 0, YMin: 0, XMax: 10, YMax: 10}
	assert.Equal(t, float32(1), IoU(a, a))
	assert.Equal(t, float32(0), IoU(a, types.Rect{XMin: 10, YMin: 0, XMax: 20, YMax: 10}))
	// 50 / (100 + 100 - 50)
	assert.InDelta(t, 1.0/3.0, IoU(a, types.Rect{XMin: 5, YMin: 0, XMax: 15, YMax: 10}), 1e-6)
}

func TestFilterByConfidence(t *testing.T) {
	dets := []types.Detection{det(0, 0.1, 0, 0, 1, 1), det(0, 0.5, 0, 0, 1, 1), det(1, 0.25, 0, 0, 1, 1)}
	out := FilterByConfidence(dets, 0.25)
	require.Len(t, out, 2)
	assert.Equal(t, float32(0.5), out[0].Confidence)
	assert.Equal(t, float32(0.25), out[1].Confidence)
}

func TestNonMaxSuppression(t *testing.T) {
	dets := []types.Detection{
		det(0, 0.6, 0, 0, 100, 100),
		det(0, 0.9, 5, 5, 105, 105),     // overlaps the first, wins
		det(1, 0.7, 5, 5, 105, 105),     // other class, kept
		det(0, 0.8, 200, 200, 250, 250), // no overlap, kept
	}
	out := NonMaxSuppression(dets, 0.45)
	require.Len(t, out, 3)
	assert.Equal(t, float32(0.9), out[0].Confidence)
	assert.Equal(t, float32(0.8), out[1].Confidence)
	assert.Equal(t, 1, out[2].ClassID)

	// Input is not reordered.
	assert.Equal(t, float32(0.6), dets[0].Confidence)
}

func TestClampToImage(t *testing.T) {
	dets := []types.Detection{det(0, 1, -10, -10, 50, 50), det(0, 1, 120, 0, 150, 10)}
	out := ClampToImage(dets, 100, 100)
	require.Len(t, out, 1)
	assert.Equal(t, types.Rect{XMin: 0, YMin: 0, XMax: 50, YMax: 50}, out[0].Box)
}

func TestParamsApply(t *testing.T) {
	p := DefaultParams()
	dets := []types.Detection{det(0, 0.1, 0, 0, 10, 10), det(0, 0.5, 0, 0, 10, 10), det(0, 0.4, 0, 0, 10, 10)}
	out := p.Apply(dets)
	require.Len(t, out, 1)
	assert.Equal(t, float32(0.5), out[0].Confidence)
}

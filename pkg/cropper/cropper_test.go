package cropper

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/ppe-cascade/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 64, 255})
		}
	}
	return img
}

func noPPE() ([]types.Label, error) {
	return nil, nil
}

func TestNew(t *testing.T) {
	c := New()
	require.NotNil(t, c)
	assert.Equal(t, DefaultPersonClass, c.config.PersonClass)
	assert.Equal(t, Truncate, c.config.Rounding)
}

func TestParseRounding(t *testing.T) {
	r, err := ParseRounding("")
	require.NoError(t, err)
	assert.Equal(t, Truncate, r)

	r, err = ParseRounding("round")
	require.NoError(t, err)
	assert.Equal(t, Round, r)
	assert.Equal(t, "round", r.String())

	_, err = ParseRounding("ceil")
	assert.Error(t, err)
}

func TestPersonRectTruncatesAndClamps(t *testing.T) {
	c := New()

	rect := c.PersonRect(types.Label{XCenter: 0.5, YCenter: 0.5, Width: 0.4, Height: 0.8}, 800, 600)
	assert.Equal(t, 240, rect.XMin)
	assert.Equal(t, 560, rect.XMax)
	assert.InDelta(t, 60, rect.YMin, 1)
	assert.Equal(t, 540, rect.YMax)

	// Box hanging off the top-left corner.
	rect = c.PersonRect(types.Label{XCenter: 0.05, YCenter: 0.05, Width: 0.2, Height: 0.2}, 100, 100)
	assert.Equal(t, types.Rect{XMin: 0, YMin: 0, XMax: 15, YMax: 15}, rect)

	// Entirely outside the image.
	rect = c.PersonRect(types.Label{XCenter: 1.5, YCenter: 0.5, Width: 0.2, Height: 0.2}, 100, 100)
	assert.True(t, rect.Empty())
}

func TestPersonRectRounding(t *testing.T) {
	p := types.Label{XCenter: 0.5, YCenter: 0.5, Width: 0.337, Height: 0.337}

	trunc := New().PersonRect(p, 10, 10)
	round := NewWithConfig(CropConfig{Rounding: Round}).PersonRect(p, 10, 10)

	// 0.5-0.1685 = 0.3315 -> 3.315, 0.5+0.1685 = 0.6685 -> 6.685
	assert.Equal(t, types.Rect{XMin: 3, YMin: 3, XMax: 6, YMax: 6}, trunc)
	assert.Equal(t, types.Rect{XMin: 3, YMin: 3, XMax: 7, YMax: 7}, round)
}

func TestCropPersonsScenario(t *testing.T) {
	img := createTestImage(800, 600)
	persons := []types.Label{{ClassID: 0, XCenter: 0.5, YCenter: 0.5, Width: 0.4, Height: 0.8}}
	ppe := []types.Label{{ClassID: 2, XCenter: 0.5, YCenter: 0.2, Width: 0.1, Height: 0.1}}

	crops, err := New().CropPersons(img, persons, StaticPPE(ppe))
	require.NoError(t, err)
	require.Len(t, crops, 1)

	crop := crops[0]
	assert.Equal(t, 1, crop.Index)
	assert.Equal(t, "img_person_1", crop.Name("img"))
	assert.Equal(t, crop.Rect.Width(), crop.Image.Bounds().Dx())
	assert.Equal(t, crop.Rect.Height(), crop.Image.Bounds().Dy())

	require.Len(t, crop.Labels, 1)
	l := crop.Labels[0]
	assert.Equal(t, 2, l.ClassID)
	// PPE pixel box (360,90)-(440,150) inside person box (240,~60)-(560,540).
	assert.InDelta(t, 0.5, l.XCenter, 1e-9)
	assert.InDelta(t, 120.0/480.0-60.0/480.0, l.YCenter, 0.005)
	assert.InDelta(t, 0.25, l.Width, 1e-9)
	assert.InDelta(t, 0.125, l.Height, 0.005)
}

func TestCropPersonsPixels(t *testing.T) {
	img := createTestImage(300, 200)
	persons := []types.Label{{ClassID: 0, XCenter: 0.5, YCenter: 0.5, Width: 0.5, Height: 0.5}}

	crops, err := New().CropPersons(img, persons, noPPE)
	require.NoError(t, err)
	require.Len(t, crops, 1)

	// Top-left of crop is (75,50) in the source image.
	r, g, _, _ := crops[0].Image.At(0, 0).RGBA()
	assert.Equal(t, uint32(75), r>>8)
	assert.Equal(t, uint32(50), g>>8)
	assert.Empty(t, crops[0].Labels)
}

func TestZeroAreaPersonAdvancesCounter(t *testing.T) {
	img := createTestImage(100, 100)
	persons := []types.Label{
		{ClassID: 0, XCenter: 0.5, YCenter: 0.5, Width: 0, Height: 0.5},     // zero width
		{ClassID: 1, XCenter: 0.5, YCenter: 0.5, Width: 0.5, Height: 0.5},   // not a person
		{ClassID: 0, XCenter: 0.5, YCenter: 0.5, Width: 0.5, Height: 0.5},   // valid
		{ClassID: 0, XCenter: -0.5, YCenter: 0.5, Width: 0.2, Height: 0.2},  // outside
		{ClassID: 0, XCenter: 0.25, YCenter: 0.25, Width: 0.2, Height: 0.2}, // valid
	}

	crops, err := New().CropPersons(img, persons, noPPE)
	require.NoError(t, err)
	require.Len(t, crops, 2)
	assert.Equal(t, 2, crops[0].Index)
	assert.Equal(t, 4, crops[1].Index)
}

func TestNoPersonsProducesNothing(t *testing.T) {
	called := false
	src := func() ([]types.Label, error) {
		called = true
		return nil, errors.New("should not be read")
	}
	crops, err := New().CropPersons(createTestImage(50, 50), []types.Label{{ClassID: 3, XCenter: 0.5, YCenter: 0.5, Width: 0.5, Height: 0.5}}, src)
	require.NoError(t, err)
	assert.Empty(t, crops)
	assert.False(t, called, "PPE labels must not be read without a valid crop")
}

func TestPPESourceErrorPropagates(t *testing.T) {
	want := errors.New("boom")
	persons := []types.Label{{ClassID: 0, XCenter: 0.5, YCenter: 0.5, Width: 0.5, Height: 0.5}}
	_, err := New().CropPersons(createTestImage(50, 50), persons, func() ([]types.Label, error) { return nil, want })
	assert.ErrorIs(t, err, want)
}

func TestCustomPersonClass(t *testing.T) {
	persons := []types.Label{
		{ClassID: 0, XCenter: 0.5, YCenter: 0.5, Width: 0.5, Height: 0.5},
		{ClassID: 7, XCenter: 0.5, YCenter: 0.5, Width: 0.5, Height: 0.5},
	}
	crops, err := NewWithConfig(CropConfig{PersonClass: 7}).CropPersons(createTestImage(40, 40), persons, noPPE)
	require.NoError(t, err)
	require.Len(t, crops, 1)
	assert.Equal(t, 1, crops[0].Index)
}

func TestReprojectDropsOutsideBoxes(t *testing.T) {
	crop := types.Rect{XMin: 128, YMin: 128, XMax: 256, YMax: 256}
	ppe := []types.Label{
		{ClassID: 0, XCenter: 0.03125, YCenter: 0.03125, Width: 0.03125, Height: 0.03125}, // far away
		{ClassID: 1, XCenter: 0.09375, YCenter: 0.1875, Width: 0.0625, Height: 0.0625},    // touches left edge only
		{ClassID: 2, XCenter: 0.1875, YCenter: 0.1875, Width: 0.03125, Height: 0.03125},   // inside
		{ClassID: -1, XCenter: 0.1875, YCenter: 0.1875, Width: 0.03125, Height: 0.03125},  // negative class
	}
	out := Reproject(ppe, crop, 1024, 1024)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].ClassID)
	assert.Equal(t, 0.5, out[0].XCenter)
	assert.Equal(t, 0.25, out[0].Width)
}

func TestReprojectPartialOverlapIsClipped(t *testing.T) {
	crop := types.Rect{XMin: 0, YMin: 0, XMax: 100, YMax: 100}
	// Pixel box (80,40)-(120,60): half of it is inside the crop.
	ppe := []types.Label{{ClassID: 1, XCenter: 0.5, YCenter: 0.25, Width: 0.2, Height: 0.1}}
	out := Reproject(ppe, crop, 200, 200)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.9, out[0].XCenter, 1e-9)
	assert.InDelta(t, 0.2, out[0].Width, 1e-9)
	assert.InDelta(t, 0.5, out[0].YCenter, 1e-9)
	assert.InDelta(t, 0.2, out[0].Height, 1e-9)
}

func TestReprojectContainedRecoversAreaRatio(t *testing.T) {
	imgW, imgH := 640, 480
	crop := types.Rect{XMin: 160, YMin: 96, XMax: 480, YMax: 432}
	ppe := types.Label{ClassID: 3, XCenter: 0.4, YCenter: 0.45, Width: 0.1, Height: 0.2}

	out := Reproject([]types.Label{ppe}, crop, imgW, imgH)
	require.Len(t, out, 1)
	l := out[0]

	for _, v := range []float64{l.XCenter, l.YCenter, l.Width, l.Height} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}

	ppeArea := ppe.Width * float64(imgW) * ppe.Height * float64(imgH)
	cropArea := float64(crop.Width() * crop.Height())
	assert.InDelta(t, ppeArea/cropArea, l.Width*l.Height, 1e-9)

	// Translating back recovers the original center.
	cx := l.XCenter*float64(crop.Width()) + float64(crop.XMin)
	assert.InDelta(t, ppe.XCenter*float64(imgW), cx, 1e-6)
}

func TestReprojectSortsByCenterDistance(t *testing.T) {
	crop := types.Rect{XMin: 0, YMin: 0, XMax: 128, YMax: 128}
	ppe := []types.Label{
		{ClassID: 1, XCenter: 0.125, YCenter: 0.125, Width: 0.125, Height: 0.125}, // far
		{ClassID: 2, XCenter: 0.5, YCenter: 0.5, Width: 0.125, Height: 0.125},     // center
		{ClassID: 3, XCenter: 0.75, YCenter: 0.5, Width: 0.125, Height: 0.125},    // near
		{ClassID: 4, XCenter: 0.25, YCenter: 0.5, Width: 0.125, Height: 0.125},    // tie with class 3
	}
	out := Reproject(ppe, crop, 128, 128)
	require.Len(t, out, 4)

	var ids []int
	for _, l := range out {
		ids = append(ids, l.ClassID)
	}
	assert.Equal(t, []int{2, 3, 4, 1}, ids)

	prev := -1.0
	for _, l := range out {
		d := math.Hypot(l.XCenter-0.5, l.YCenter-0.5)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestReprojectDeterministic(t *testing.T) {
	crop := types.Rect{XMin: 13, YMin: 7, XMax: 211, YMax: 389}
	ppe := []types.Label{
		{ClassID: 1, XCenter: 0.31, YCenter: 0.22, Width: 0.13, Height: 0.07},
		{ClassID: 5, XCenter: 0.12, YCenter: 0.61, Width: 0.05, Height: 0.3},
		{ClassID: 0, XCenter: 0.4, YCenter: 0.4, Width: 0.4, Height: 0.4},
	}
	a := Reproject(ppe, crop, 417, 411)
	b := Reproject(ppe, crop, 417, 411)
	assert.Equal(t, a, b)
}

func TestReprojectDropsNaNBoxes(t *testing.T) {
	crop := types.Rect{XMin: 0, YMin: 0, XMax: 100, YMax: 100}
	ppe := []types.Label{
		{ClassID: 1, XCenter: math.NaN(), YCenter: 0.5, Width: 0.1, Height: 0.1},
		{ClassID: 2, XCenter: 0.5, YCenter: 0.5, Width: 0.1, Height: math.NaN()},
		{ClassID: 3, XCenter: 0.5, YCenter: 0.5, Width: 0.1, Height: 0.1},
	}
	out := Reproject(ppe, crop, 100, 100)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].ClassID)
}

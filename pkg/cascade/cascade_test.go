package cascade

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/ppe-cascade/pkg/types"
)

// fakeDetector returns fixed detections and records the sizes it was given
type fakeDetector struct {
	dets   []types.Detection
	err    error
	sizes  []image.Point
	closed bool
}

func (f *fakeDetector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	f.sizes = append(f.sizes, img.Bounds().Size())
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.Detection, len(f.dets))
	copy(out, f.dets)
	return out, nil
}

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

func rect(xmin, ymin, xmax, ymax int) types.Rect {
	return types.Rect{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}
}

func grayImage(w, h int) *image.NRGBA {
	return imaging.New(w, h, color.NRGBA{60, 60, 60, 255})
}

func TestRunTranslatesPPEBoxes(t *testing.T) {
	persons := &fakeDetector{dets: []types.Detection{
		{ClassID: 0, Confidence: 0.9, Box: rect(100, 50, 200, 250)},
		{ClassID: 2, Confidence: 0.9, Box: rect(0, 0, 10, 10)},       // not a person
		{ClassID: 0, Confidence: 0.8, Box: rect(350, 100, 500, 300)}, // clipped to the image
		{ClassID: 0, Confidence: 0.7, Box: rect(420, 0, 450, 10)},    // outside
	}}
	ppe := &fakeDetector{dets: []types.Detection{
		{ClassID: 1, Confidence: 0.6, Box: rect(10, 20, 40, 60)},
		{ClassID: 3, Confidence: 0.5, Box: rect(30, 180, 90, 260)},
	}}
	c := &Cascade{Persons: persons, PPE: ppe, PersonClass: 0}

	res, err := c.Run(context.Background(), grayImage(400, 300))
	require.NoError(t, err)

	require.Len(t, res.Persons, 2)
	assert.Equal(t, rect(350, 100, 400, 300), res.Persons[1].Box)

	// PPE detector saw the two crops.
	assert.Equal(t, []image.Point{{X: 100, Y: 200}, {X: 50, Y: 200}}, ppe.sizes)

	require.Len(t, res.PPE, 4)
	assert.Equal(t, rect(110, 70, 140, 110), res.PPE[0].Box)
	assert.Equal(t, rect(130, 230, 190, 300), res.PPE[1].Box) // clamped at the bottom
	assert.Equal(t, rect(360, 120, 390, 160), res.PPE[2].Box)
	assert.Equal(t, rect(380, 280, 400, 300), res.PPE[3].Box)
	assert.Equal(t, 1, res.PPE[0].ClassID)
	assert.Equal(t, 3, res.PPE[1].ClassID)
}

func TestRunAnyClass(t *testing.T) {
	persons := &fakeDetector{dets: []types.Detection{{ClassID: 5, Confidence: 1, Box: rect(0, 0, 10, 10)}}}
	ppe := &fakeDetector{}
	c := &Cascade{Persons: persons, PPE: ppe, PersonClass: AnyClass}

	res, err := c.Run(context.Background(), grayImage(20, 20))
	require.NoError(t, err)
	assert.Len(t, res.Persons, 1)
	assert.Empty(t, res.PPE)
	assert.Len(t, ppe.sizes, 1)
}

func TestRunErrors(t *testing.T) {
	boom := errors.New("boom")
	c := &Cascade{Persons: &fakeDetector{err: boom}, PPE: &fakeDetector{}}
	_, err := c.Run(context.Background(), grayImage(10, 10))
	assert.ErrorIs(t, err, boom)

	c = &Cascade{
		Persons: &fakeDetector{dets: []types.Detection{{Box: rect(0, 0, 5, 5)}}},
		PPE:     &fakeDetector{err: boom},
	}
	_, err = c.Run(context.Background(), grayImage(10, 10))
	assert.ErrorIs(t, err, boom)
}

func TestRunDir(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "annotated")
	require.NoError(t, imaging.Save(grayImage(100, 80), filepath.Join(in, "a.jpg")))
	require.NoError(t, imaging.Save(grayImage(100, 80), filepath.Join(in, "b.png")))
	require.NoError(t, os.WriteFile(filepath.Join(in, "broken.jpg"), []byte("nope"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("skip me"), 0o644))

	persons := &fakeDetector{dets: []types.Detection{{Box: rect(10, 10, 60, 70)}}}
	ppe := &fakeDetector{dets: []types.Detection{{ClassID: 0, Confidence: 0.9, Box: rect(5, 5, 30, 25)}}}
	logger, hook := test.NewNullLogger()
	c := &Cascade{Persons: persons, PPE: ppe, Logger: logger}

	stats, err := c.RunDir(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, Stats{Images: 2, Skipped: 1, Persons: 2, PPE: 2}, stats)

	for _, name := range []string{"a.jpg", "b.png"} {
		img, err := imaging.Open(filepath.Join(out, name))
		require.NoError(t, err, name)
		assert.Equal(t, image.Pt(100, 80), img.Bounds().Size())
	}
	_, err = os.Stat(filepath.Join(out, "broken.jpg"))
	assert.True(t, os.IsNotExist(err))

	// Left edge of the PPE box (15..40 x 15..35 in the image) is drawn green.
	annotated, err := imaging.Open(filepath.Join(out, "b.png"))
	require.NoError(t, err)
	r, g, _, _ := annotated.At(15, 25).RGBA()
	assert.Greater(t, g>>8, uint32(200))
	assert.Less(t, r>>8, uint32(60))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Failed to load image" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestRunDirOutputFormat(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	require.NoError(t, imaging.Save(grayImage(64, 48), filepath.Join(in, "a.jpg")))
	require.NoError(t, imaging.Save(grayImage(64, 48), filepath.Join(in, "b.png")))

	persons := &fakeDetector{dets: []types.Detection{{Box: rect(0, 0, 32, 32)}}}
	logger, _ := test.NewNullLogger()
	c := &Cascade{Persons: persons, PPE: &fakeDetector{}, OutputFormat: "webp", Logger: logger}

	stats, err := c.RunDir(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Images)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"a.webp", "b.webp"}, names)

	img, err := imaging.Open(filepath.Join(out, "a.webp"))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(64, 48), img.Bounds().Size())
}

func TestClose(t *testing.T) {
	p, q := &fakeDetector{}, &fakeDetector{}
	c := &Cascade{Persons: p, PPE: q}
	require.NoError(t, c.Close())
	assert.True(t, p.closed)
	assert.True(t, q.closed)
}

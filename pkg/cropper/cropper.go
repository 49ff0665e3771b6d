package cropper

import (
	"cmp"
	"fmt"
	"image"
	"math"
	"slices"

	"github.com/disintegration/imaging"

	"github.com/menta2k/ppe-cascade/pkg/types"
)

// DefaultPersonClass is the class id of person boxes in person label sets
const DefaultPersonClass = 0

// Rounding selects how normalized person boxes become integer pixels
type Rounding int

const (
	// Truncate drops the fractional part (toward zero). This is the default and
	// keeps crops pixel-identical with existing datasets.
	Truncate Rounding = iota
	// Round rounds half away from zero.
	Round
)

// ParseRounding maps a config string to a Rounding policy
func ParseRounding(s string) (Rounding, error) {
	switch s {
	case "", "truncate":
		return Truncate, nil
	case "round":
		return Round, nil
	}
	return Truncate, fmt.Errorf("unknown rounding policy %q (use truncate or round)", s)
}

func (r Rounding) String() string {
	if r == Round {
		return "round"
	}
	return "truncate"
}

func (r Rounding) apply(v float64) int {
	if r == Round {
		return int(math.Round(v))
	}
	return int(v)
}

// CropConfig holds configuration for person cropping
type CropConfig struct {
	PersonClass int
	Rounding    Rounding
}

// PersonCropper isolates person boxes and re-projects PPE labels into each crop
type PersonCropper struct {
	config CropConfig
}

// New creates a PersonCropper with the default configuration
func New() *PersonCropper {
	return &PersonCropper{
		config: CropConfig{
			PersonClass: DefaultPersonClass,
			Rounding:    Truncate,
		},
	}
}

// NewWithConfig creates a PersonCropper with custom configuration
func NewWithConfig(config CropConfig) *PersonCropper {
	return &PersonCropper{config: config}
}

// Crop is one valid person crop
type Crop struct {
	// Index is the 1-based position of the person box among person boxes of the
	// label set, counting boxes that produced no crop.
	Index  int
	Rect   types.Rect
	Image  image.Image
	Labels []types.Label
}

// Name returns the output name of the crop, without extension
func (c Crop) Name(stem string) string {
	return fmt.Sprintf("%s_person_%d", stem, c.Index)
}

// PPESource supplies the PPE label set for an image. It is called at most
// once, and only when the first valid crop is found.
type PPESource func() ([]types.Label, error)

// StaticPPE wraps an already loaded PPE label set
func StaticPPE(set []types.Label) PPESource {
	return func() ([]types.Label, error) { return set, nil }
}

// CropPersons crops every person box of persons out of img and re-projects
// the PPE labels into each crop. Crops are returned in label-set order.
func (c *PersonCropper) CropPersons(img image.Image, persons []types.Label, ppe PPESource) ([]Crop, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var (
		crops    []Crop
		ppeSet   []types.Label
		ppeReady bool
		count    int
	)
	for _, p := range persons {
		if p.ClassID != c.config.PersonClass {
			continue
		}
		count++

		rect := c.PersonRect(p, w, h)
		if rect.Empty() {
			continue
		}

		if !ppeReady {
			set, err := ppe()
			if err != nil {
				return nil, err
			}
			ppeSet, ppeReady = set, true
		}

		crops = append(crops, Crop{
			Index:  count,
			Rect:   rect,
			Image:  cropImage(img, rect),
			Labels: Reproject(ppeSet, rect, w, h),
		})
	}
	return crops, nil
}

// PersonRect converts a normalized person box to a pixel rectangle clamped to
// a w x h image.
func (c *PersonCropper) PersonRect(p types.Label, w, h int) types.Rect {
	xmin, ymin, xmax, ymax := p.Bounds(w, h)
	r := c.config.Rounding
	return types.Rect{
		XMin: r.apply(xmin),
		YMin: r.apply(ymin),
		XMax: r.apply(xmax),
		YMax: r.apply(ymax),
	}.Clamp(w, h)
}

type ranked struct {
	label    types.Label
	distance float64
}

// Reproject expresses every PPE label overlapping crop in the crop's own
// normalized coordinates. imgW and imgH are the dimensions the PPE labels are
// normalized against. The result is ordered by distance from the crop center,
// nearest first; equal distances keep their input order. Labels with a negative
// class or no overlap with the crop are dropped.
func Reproject(ppe []types.Label, crop types.Rect, imgW, imgH int) []types.Label {
	cw, ch := float64(crop.Width()), float64(crop.Height())
	if cw <= 0 || ch <= 0 {
		return nil
	}
	ox, oy := float64(crop.XMin), float64(crop.YMin)

	var kept []ranked
	for _, l := range ppe {
		if l.ClassID < 0 {
			continue
		}
		xmin, ymin, xmax, ymax := l.Bounds(imgW, imgH)

		nxmin := math.Max(xmin-ox, 0)
		nymin := math.Max(ymin-oy, 0)
		nxmax := math.Min(xmax-ox, cw)
		nymax := math.Min(ymax-oy, ch)

		nw := (nxmax - nxmin) / cw
		nh := (nymax - nymin) / ch
		if !(nw > 0 && nh > 0) {
			continue
		}
		out := types.Label{
			ClassID: l.ClassID,
			XCenter: (nxmin + nxmax) / 2 / cw,
			YCenter: (nymin + nymax) / 2 / ch,
			Width:   nw,
			Height:  nh,
		}
		kept = append(kept, ranked{label: out, distance: centerDistance(out)})
	}

	slices.SortStableFunc(kept, func(a, b ranked) int {
		return cmp.Compare(a.distance, b.distance)
	})

	out := make([]types.Label, len(kept))
	for i, k := range kept {
		out[i] = k.label
	}
	return out
}

// centerDistance is the Euclidean distance from a label's center to (0.5, 0.5)
func centerDistance(l types.Label) float64 {
	dx := l.XCenter - 0.5
	dy := l.YCenter - 0.5
	return math.Sqrt(dx*dx + dy*dy)
}

func cropImage(img image.Image, rect types.Rect) image.Image {
	origin := img.Bounds().Min
	r := image.Rect(rect.XMin, rect.YMin, rect.XMax, rect.YMax).Add(origin)
	return imaging.Crop(img, r)
}

package detection

import (
	"cmp"
	"slices"

	"github.com/chewxy/math32"

	"github.com/menta2k/ppe-cascade/pkg/types"
)

// Params holds the thresholds applied to raw detections
type Params struct {
	ConfThreshold float32
	IoUThreshold  float32
}

// DefaultParams returns the thresholds used by the YOLO exporters
func DefaultParams() Params {
	return Params{ConfThreshold: 0.25, IoUThreshold: 0.45}
}

// FilterByConfidence keeps detections whose confidence is at least threshold
func FilterByConfidence(dets []types.Detection, threshold float32) []types.Detection {
	out := make([]types.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// IoU returns the intersection over union of two boxes
func IoU(a, b types.Rect) float32 {
	ix := math32.Max(0, float32(min(a.XMax, b.XMax)-max(a.XMin, b.XMin)))
	iy := math32.Max(0, float32(min(a.YMax, b.YMax)-max(a.YMin, b.YMin)))
	inter := ix * iy
	if inter == 0 {
		return 0
	}
	union := float32(a.Area()+b.Area()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NonMaxSuppression drops every detection that overlaps a more confident
// detection of the same class by more than iouThreshold. The result is
// ordered by confidence, highest first.
func NonMaxSuppression(dets []types.Detection, iouThreshold float32) []types.Detection {
	sorted := slices.Clone(dets)
	slices.SortStableFunc(sorted, func(a, b types.Detection) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})

	kept := make([]types.Detection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.ClassID == d.ClassID && IoU(k.Box, d.Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

// ClampToImage clamps every box to a w x h image and drops boxes left empty
func ClampToImage(dets []types.Detection, w, h int) []types.Detection {
	out := make([]types.Detection, 0, len(dets))
	for _, d := range dets {
		d.Box = d.Box.Clamp(w, h)
		if d.Box.Empty() {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Apply runs confidence filtering and NMS with p
func (p Params) Apply(dets []types.Detection) []types.Detection {
	return NonMaxSuppression(FilterByConfidence(dets, p.ConfThreshold), p.IoUThreshold)
}

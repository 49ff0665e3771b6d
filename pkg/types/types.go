package types

// Label is one line of a YOLO label file: a class and a box normalized to the
// full image, expressed as center and size in the [0,1] range.
type Label struct {
	ClassID int     `json:"class_id"`
	XCenter float64 `json:"x_center"`
	YCenter float64 `json:"y_center"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Bounds returns the label's corner coordinates scaled to an image of w x h pixels.
// No rounding or clamping is applied.
func (l Label) Bounds(w, h int) (xmin, ymin, xmax, ymax float64) {
	fw, fh := float64(w), float64(h)
	xmin = (l.XCenter - l.Width/2) * fw
	xmax = (l.XCenter + l.Width/2) * fw
	ymin = (l.YCenter - l.Height/2) * fh
	ymax = (l.YCenter + l.Height/2) * fh
	return
}

// Rect is an axis-aligned pixel rectangle. Max is exclusive, like image.Rectangle.
type Rect struct {
	XMin int `json:"xmin"`
	YMin int `json:"ymin"`
	XMax int `json:"xmax"`
	YMax int `json:"ymax"`
}

func (r Rect) Width() int {
	return r.XMax - r.XMin
}

func (r Rect) Height() int {
	return r.YMax - r.YMin
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width() <= 0 || r.Height() <= 0
}

// Clamp limits every coordinate to [0,w] x [0,h].
func (r Rect) Clamp(w, h int) Rect {
	return Rect{
		XMin: clampInt(r.XMin, 0, w),
		YMin: clampInt(r.YMin, 0, h),
		XMax: clampInt(r.XMax, 0, w),
		YMax: clampInt(r.YMax, 0, h),
	}
}

// Offset translates the rectangle by (dx, dy).
func (r Rect) Offset(dx, dy int) Rect {
	return Rect{XMin: r.XMin + dx, YMin: r.YMin + dy, XMax: r.XMax + dx, YMax: r.YMax + dy}
}

func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width() * r.Height()
}

// Detection is an object found by a detector, in pixel coordinates of the
// image that was handed to it.
type Detection struct {
	ClassID    int     `json:"class_id"`
	Confidence float32 `json:"confidence"`
	Box        Rect    `json:"box"`
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

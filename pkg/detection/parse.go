package detection

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/menta2k/ppe-cascade/pkg/types"
)

// ErrNoJSON is returned when a model reply holds no parsable JSON object
var ErrNoJSON = errors.New("no valid JSON found in model response")

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// Box is a normalized top-left box as returned by vision models
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Object is one detection in a model reply
type Object struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// ModelResponse is the JSON document vision models are asked to return
type ModelResponse struct {
	Objects []Object `json:"objects"`
}

// ParseModelResponse extracts detections from a raw model reply for an image
// of w x h pixels. Labels are matched against classes ignoring case, and
// treating spaces and underscores as hyphens; unknown labels are dropped.
// Boxes with any side above 1 are taken as pixel boxes.
func ParseModelResponse(raw string, classes []string, w, h int) ([]types.Detection, error) {
	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, ErrNoJSON
	}

	var resp ModelResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, errors.Join(ErrNoJSON, err)
	}

	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[normalizeLabel(c)] = i
	}

	dets := make([]types.Detection, 0, len(resp.Objects))
	for _, o := range resp.Objects {
		id, ok := index[normalizeLabel(o.Label)]
		if !ok {
			continue
		}
		box := toRect(o.Box, w, h).Clamp(w, h)
		if box.Empty() {
			continue
		}
		dets = append(dets, types.Detection{
			ClassID:    id,
			Confidence: float32(clamp(o.Confidence, 0, 1)),
			Box:        box,
		})
	}
	return dets, nil
}

func toRect(b Box, w, h int) types.Rect {
	fw, fh := float64(w), float64(h)
	if b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1 {
		fw, fh = 1, 1
	}
	return types.Rect{
		XMin: int(math.Floor(b.X * fw)),
		YMin: int(math.Floor(b.Y * fh)),
		XMax: int(math.Ceil((b.X + b.W) * fw)),
		YMax: int(math.Ceil((b.Y + b.H) * fh)),
	}
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "-", "_", "-").Replace(s)
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

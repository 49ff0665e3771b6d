package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/ppe-cascade/pkg/client"
	"github.com/menta2k/ppe-cascade/pkg/processing"
	"github.com/menta2k/ppe-cascade/pkg/types"
)

// DefaultMaxDim bounds the longer side of images sent to vision models
const DefaultMaxDim = 1024

const promptTemplate = `You are an object detector for workplace safety images.

Find every visible instance of these classes: %s.

Return JSON only:
{
  "objects": [
    {"label": "string", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ]
}

HARD RULES
- "label" must be one of the listed classes, spelled exactly as given.
- "box" is the top-left corner and size, normalized to [0,1] (NOT pixels).
- Boxes must be tight around the object.
- If nothing is found, return {"objects": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Prompt builds the detection prompt for the given class vocabulary
func Prompt(classes []string) string {
	quoted := make([]string, len(classes))
	for i, c := range classes {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf(promptTemplate, strings.Join(quoted, ", "))
}

// VisionDetector turns a vision language model into an ObjectDetector
type VisionDetector struct {
	client    client.VisionClient
	model     string
	classes   []string
	params    Params
	processor *processing.Processor
	maxDim    int
	log       logrus.FieldLogger
}

// NewVisionDetector creates a detector that asks model, through c, for boxes of
// the given classes. Class ids of the returned detections index classes.
func NewVisionDetector(c client.VisionClient, model string, classes []string, params Params, log logrus.FieldLogger) *VisionDetector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &VisionDetector{
		client:    c,
		model:     model,
		classes:   classes,
		params:    params,
		processor: processing.NewProcessor(),
		maxDim:    DefaultMaxDim,
		log:       log,
	}
}

// Detect implements client.ObjectDetector. A reply that holds no usable JSON
// is logged and yields no detections.
func (d *VisionDetector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, "jpg", d.maxDim, 90)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	raw, err := d.client.Query(ctx, d.model, Prompt(d.classes), imgB64)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	dets, err := ParseModelResponse(raw, d.classes, b.Dx(), b.Dy())
	if errors.Is(err, ErrNoJSON) {
		d.log.WithFields(logrus.Fields{
			"model": d.model,
			"reply": truncate(raw, 200),
		}).Warn("Model returned no usable JSON")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.params.Apply(dets), nil
}

// Close implements client.ObjectDetector
func (d *VisionDetector) Close() error {
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

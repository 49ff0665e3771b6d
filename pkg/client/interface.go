package client

import (
	"context"
	"image"

	"github.com/menta2k/ppe-cascade/pkg/types"
)

// ObjectDetector finds objects in an image. Boxes are in the pixel space of
// the image passed in.
type ObjectDetector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Detection, error)
	Close() error
}

// VisionClient sends a prompt and a base64 encoded image to a vision
// language model and returns the raw text of its reply
type VisionClient interface {
	Query(ctx context.Context, model, prompt, imgB64 string) (string, error)
}

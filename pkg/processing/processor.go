package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/ppe-cascade/pkg/types"
)

// DefaultJPEGQuality matches the quality the existing crop datasets were written with
const DefaultJPEGQuality = 95

// Processor handles image loading, cropping, saving and annotation
type Processor struct {
	Quality  int  // JPEG/WebP quality (1-100)
	Lossless bool // WebP lossless mode
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{Quality: DefaultJPEGQuality}
}

// LoadImage loads an image from a file path with WebP support.
// EXIF orientation is applied so label coordinates refer to the upright image.
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	img, openErr := imaging.Open(path, imaging.AutoOrientation(true))
	if openErr == nil {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Fallback: explicit WebP decode
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("image: cannot decode %s: %w", path, openErr)
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// CropImageToRect crops an image to a pixel rectangle relative to its top-left corner
func (p *Processor) CropImageToRect(img image.Image, rect types.Rect) (image.Image, error) {
	bounds := img.Bounds()
	r := image.Rect(rect.XMin, rect.YMin, rect.XMax, rect.YMax).Add(bounds.Min).Intersect(bounds)
	if r.Empty() {
		return nil, fmt.Errorf("empty crop rectangle")
	}
	return imaging.Crop(img, r), nil
}

// SaveImage saves an image to a file; the format is taken from format, or from
// the path extension when format is empty.
func (p *Processor) SaveImage(img image.Image, path, format string) error {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	quality := p.Quality
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		opts := &webp.Options{Lossless: p.Lossless, Quality: float32(quality)}
		if err := webp.Encode(f, img, opts); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case "png":
		return imaging.Save(img, path)
	case "jpg", "jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// Annotate returns a copy of img with a green box and a class label drawn for
// each detection. names maps class ids to display names; ids outside names
// are drawn as numbers.
func (p *Processor) Annotate(img image.Image, detections []types.Detection, names []string) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetRGB(0, 1, 0)
	dc.SetLineWidth(2)

	for _, d := range detections {
		b := d.Box
		if b.Empty() {
			continue
		}
		dc.DrawRectangle(float64(b.XMin), float64(b.YMin), float64(b.Width()), float64(b.Height()))
		dc.Stroke()
		dc.DrawString(classLabel(d.ClassID, names), float64(b.XMin), float64(b.YMin-10))
	}
	return dc.Image()
}

func classLabel(id int, names []string) string {
	if id >= 0 && id < len(names) {
		return names[id]
	}
	return strconv.Itoa(id)
}

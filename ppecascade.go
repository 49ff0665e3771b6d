// Package ppecascade prepares person/PPE detection datasets and runs cascaded
// person then PPE inference.
//
// A PPE detector trained on whole images sees workers as a few dozen pixels.
// Training it on person crops instead needs labels expressed in each crop's
// own coordinates. This package crops every labelled person out of an image
// and re-projects the image's PPE labels into the crop.
//
// Basic usage:
//
//	package main
//
//	import (
//		"log"
//
//		ppecascade "github.com/menta2k/ppe-cascade"
//	)
//
//	func main() {
//		p := ppecascade.New()
//
//		crops, err := p.CropLabelFiles("persons/site.txt", "ppe/site.txt", "images/site.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		if err := p.WriteCrops(crops, "site", "crops/images", "crops/labels"); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these components:
//
//  1. Labels (pkg/labels): YOLO label parsing, formatting and person/PPE splitting
//  2. Cropper (pkg/cropper): person crops and PPE label re-projection
//  3. Dataset (pkg/dataset): directory jobs for cropping, splitting and VOC conversion
//  4. Cascade (pkg/cascade): two-stage inference over ONNX or vision-LLM detectors
//
// Command line tools live under cmd/: crop-ppe-labels, separate-labels,
// voc2yolo and ppe-infer.
package ppecascade

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/menta2k/ppe-cascade/pkg/cropper"
	"github.com/menta2k/ppe-cascade/pkg/labels"
	"github.com/menta2k/ppe-cascade/pkg/processing"
	"github.com/menta2k/ppe-cascade/pkg/types"
)

// Version of the ppe-cascade library
const Version = "1.0.0"

// Pipeline provides a high-level interface for single-image crop preparation
type Pipeline struct {
	cropper   *cropper.PersonCropper
	processor *processing.Processor
}

// New creates a new Pipeline with default configuration
func New() *Pipeline {
	return &Pipeline{
		cropper:   cropper.New(),
		processor: processing.NewProcessor(),
	}
}

// NewWithConfig creates a new Pipeline with custom configuration
func NewWithConfig(cropConfig cropper.CropConfig, processor *processing.Processor) *Pipeline {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	return &Pipeline{
		cropper:   cropper.NewWithConfig(cropConfig),
		processor: processor,
	}
}

// LoadImage loads an image from file
func (p *Pipeline) LoadImage(path string) (image.Image, error) {
	return p.processor.LoadImage(path)
}

// SaveImage saves an image to file, choosing the format from the extension
func (p *Pipeline) SaveImage(img image.Image, path string) error {
	return p.processor.SaveImage(img, path, "")
}

// CropImage crops the persons of an already loaded image
func (p *Pipeline) CropImage(img image.Image, persons, ppe []types.Label) ([]cropper.Crop, error) {
	return p.cropper.CropPersons(img, persons, cropper.StaticPPE(ppe))
}

// CropLabelFiles loads one image with its person and PPE label files and
// crops its persons. The PPE file is read only if a valid crop exists.
func (p *Pipeline) CropLabelFiles(personPath, ppePath, imagePath string) ([]cropper.Crop, error) {
	persons, err := labels.ReadFile(personPath)
	if err != nil {
		return nil, err
	}
	img, err := p.LoadImage(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	return p.cropper.CropPersons(img, persons, func() ([]types.Label, error) {
		return labels.ReadFile(ppePath)
	})
}

// WriteCrops writes each crop as {stem}_person_{n}.jpg under imagesDir and,
// when it has labels, {stem}_person_{n}.txt under labelsDir
func (p *Pipeline) WriteCrops(crops []cropper.Crop, stem, imagesDir, labelsDir string) error {
	for _, dir := range []string{imagesDir, labelsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	for _, c := range crops {
		name := c.Name(stem)
		if err := p.processor.SaveImage(c.Image, filepath.Join(imagesDir, name+".jpg"), "jpg"); err != nil {
			return fmt.Errorf("failed to save crop %s: %w", name, err)
		}
		if len(c.Labels) == 0 {
			continue
		}
		if err := labels.WriteFile(filepath.Join(labelsDir, name+".txt"), c.Labels); err != nil {
			return err
		}
	}
	return nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

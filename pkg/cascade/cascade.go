// Package cascade runs two-stage person and PPE detection: persons are found
// on the full image, then PPE is searched for inside each person crop.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/ppe-cascade/internal/utils"
	"github.com/menta2k/ppe-cascade/pkg/client"
	"github.com/menta2k/ppe-cascade/pkg/detection"
	"github.com/menta2k/ppe-cascade/pkg/processing"
	"github.com/menta2k/ppe-cascade/pkg/types"
)

// AnyClass disables person class filtering
const AnyClass = -1

// Cascade chains a person detector and a PPE detector
type Cascade struct {
	Persons client.ObjectDetector
	PPE     client.ObjectDetector
	// PersonClass selects person detections by class id; AnyClass keeps all
	PersonClass int
	// Classes names PPE class ids on annotated images; ids are drawn when nil
	Classes []string
	// OutputFormat is the extension of annotated images written by RunDir;
	// empty keeps the input file name
	OutputFormat string
	Processor    *processing.Processor
	Logger    logrus.FieldLogger
}

// Result holds the detections of one image, in its pixel space
type Result struct {
	Persons []types.Detection
	PPE     []types.Detection
}

// Stats summarizes a RunDir call
type Stats struct {
	Images  int
	Skipped int
	Persons int
	PPE     int
}

func (c *Cascade) processor() *processing.Processor {
	if c.Processor == nil {
		return processing.NewProcessor()
	}
	return c.Processor
}

func (c *Cascade) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

// Run detects persons in img and PPE inside every person box. Person boxes
// are clamped to the image and skipped when empty. PPE boxes are translated
// from crop to image coordinates and clamped to the image.
func (c *Cascade) Run(ctx context.Context, img image.Image) (Result, error) {
	var res Result
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	persons, err := c.Persons.Detect(ctx, img)
	if err != nil {
		return res, fmt.Errorf("person detection: %w", err)
	}

	proc := c.processor()
	for _, p := range persons {
		if c.PersonClass != AnyClass && p.ClassID != c.PersonClass {
			continue
		}
		p.Box = p.Box.Clamp(w, h)
		if p.Box.Empty() {
			continue
		}
		res.Persons = append(res.Persons, p)

		crop, err := proc.CropImageToRect(img, p.Box)
		if err != nil {
			return res, err
		}
		ppe, err := c.PPE.Detect(ctx, crop)
		if err != nil {
			return res, fmt.Errorf("ppe detection: %w", err)
		}
		for i := range ppe {
			ppe[i].Box = ppe[i].Box.Offset(p.Box.XMin, p.Box.YMin)
		}
		res.PPE = append(res.PPE, detection.ClampToImage(ppe, w, h)...)
	}
	return res, nil
}

// RunDir runs the cascade on every .jpg and .png file of inputDir and writes
// each image with its PPE boxes drawn to outputDir under the same stem.
// Images that fail to load are logged and skipped.
func (c *Cascade) RunDir(ctx context.Context, inputDir, outputDir string) (Stats, error) {
	var stats Stats
	log := c.logger()
	proc := c.processor()

	if err := utils.EnsureDir(outputDir); err != nil {
		return stats, fmt.Errorf("failed to create output directory: %w", err)
	}
	files, err := utils.ListFiles(inputDir, "jpg", "png")
	if err != nil {
		return stats, fmt.Errorf("failed to list images: %w", err)
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		entry := log.WithField("path", path)

		img, err := proc.LoadImage(path)
		if err != nil {
			entry.WithError(err).Warn("Failed to load image")
			stats.Skipped++
			continue
		}

		res, err := c.Run(ctx, img)
		if err != nil {
			return stats, fmt.Errorf("%s: %w", path, err)
		}

		out := utils.OutputFilename(path, outputDir, c.OutputFormat)
		if err := proc.SaveImage(proc.Annotate(img, res.PPE, c.Classes), out, ""); err != nil {
			return stats, fmt.Errorf("failed to write %s: %w", out, err)
		}

		stats.Images++
		stats.Persons += len(res.Persons)
		stats.PPE += len(res.PPE)
		entry.WithFields(logrus.Fields{
			"persons": len(res.Persons),
			"ppe":     len(res.PPE),
			"output":  out,
		}).Info("Saved inference result")
	}
	return stats, nil
}

// Close closes both detectors
func (c *Cascade) Close() error {
	return errors.Join(c.Persons.Close(), c.PPE.Close())
}

// Package dataset runs the directory-level label and crop jobs over a
// dataset: person cropping with PPE re-projection, person/PPE label
// separation and Pascal VOC conversion.
//
// Failures are either fatal, aborting the job, or soft. The only soft
// failure is an image that cannot be decoded; its identifier is skipped,
// counted and logged, and the job continues.
package dataset

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/ppe-cascade/pkg/cropper"
	"github.com/menta2k/ppe-cascade/pkg/processing"
)

// ImageError reports an image that could not be loaded. It is a soft error:
// the identifier is skipped and the batch continues.
type ImageError struct {
	Path string
	Err  error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("cannot load image %s: %v", e.Path, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// Options tunes a crop job
type Options struct {
	// Workers is the number of identifiers processed concurrently; values
	// below 1 mean 1.
	Workers int
	// PersonClass is the class id of person boxes in the person label files
	PersonClass int
	// Rounding converts normalized person boxes to pixels
	Rounding cropper.Rounding
	// ImageExtension is the extension of source images, without the dot
	ImageExtension string
	// Processor loads and saves images; nil uses processing.NewProcessor()
	Processor *processing.Processor
	// Logger receives progress and soft-skip messages; nil uses the logrus
	// standard logger
	Logger logrus.FieldLogger
	// OnIdentifier, when set, is called once per visited person label file,
	// possibly from several goroutines.
	OnIdentifier func()
}

// DefaultOptions returns sequential options: person class 0, truncation, .jpg images
func DefaultOptions() Options {
	return Options{
		Workers:        1,
		PersonClass:    cropper.DefaultPersonClass,
		Rounding:       cropper.Truncate,
		ImageExtension: "jpg",
	}
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.ImageExtension == "" {
		o.ImageExtension = "jpg"
	}
	if o.Processor == nil {
		o.Processor = processing.NewProcessor()
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// CropStats summarizes a crop job
type CropStats struct {
	Identifiers   int // person label files visited
	SkippedImages int // identifiers skipped because the image failed to load
	Crops         int // crop images written
	LabelFiles    int // crop label files written
}

func (s *CropStats) add(o CropStats) {
	s.Identifiers += o.Identifiers
	s.SkippedImages += o.SkippedImages
	s.Crops += o.Crops
	s.LabelFiles += o.LabelFiles
}

func loggerOrStandard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}

package dataset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/ppe-cascade/internal/utils"
	"github.com/menta2k/ppe-cascade/pkg/cropper"
	"github.com/menta2k/ppe-cascade/pkg/labels"
	"github.com/menta2k/ppe-cascade/pkg/types"
)

// CropJob names the directories of a crop run
type CropJob struct {
	PersonLabelsDir  string
	PPELabelsDir     string
	ImagesDir        string
	CroppedImagesDir string
	CroppedLabelsDir string
}

// RunCrop crops every person of every labelled image in job and writes the
// crops with their re-projected PPE labels. For each {stem}.txt in
// PersonLabelsDir it reads ImagesDir/{stem}.{ext} and PPELabelsDir/{stem}.txt
// and writes {stem}_person_{n}.jpg and, when any PPE box survives,
// {stem}_person_{n}.txt.
//
// The first fatal error stops the run and is returned with the stats gathered
// so far. Output is the same for any worker count.
func RunCrop(ctx context.Context, job CropJob, opts Options) (CropStats, error) {
	opts = opts.withDefaults()
	log := opts.Logger

	if err := utils.EnsureDirs(job.CroppedImagesDir, job.CroppedLabelsDir); err != nil {
		return CropStats{}, err
	}

	files, err := utils.ListFiles(job.PersonLabelsDir, "txt")
	if err != nil {
		return CropStats{}, fmt.Errorf("failed to list person labels: %w", err)
	}
	log.WithFields(logrus.Fields{
		"files":   len(files),
		"workers": opts.Workers,
	}).Info("Cropping persons")

	pc := cropper.NewWithConfig(cropper.CropConfig{
		PersonClass: opts.PersonClass,
		Rounding:    opts.Rounding,
	})

	var (
		mu    sync.Mutex
		stats CropStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := cropIdentifier(job, opts, pc, path)
			if opts.OnIdentifier != nil {
				opts.OnIdentifier()
			}
			mu.Lock()
			stats.add(s)
			mu.Unlock()
			return err
		})
	}
	err = g.Wait()

	log.WithFields(logrus.Fields{
		"identifiers": stats.Identifiers,
		"skipped":     stats.SkippedImages,
		"crops":       stats.Crops,
		"label_files": stats.LabelFiles,
	}).Info("Crop run finished")
	return stats, err
}

// cropIdentifier processes one person label file. Image load failures are
// reported through the returned stats, not as an error.
func cropIdentifier(job CropJob, opts Options, pc *cropper.PersonCropper, personPath string) (CropStats, error) {
	stats := CropStats{Identifiers: 1}
	stem := utils.Stem(personPath)
	log := opts.Logger.WithField("identifier", stem)

	persons, err := labels.ReadFile(personPath)
	if err != nil {
		return stats, err
	}

	imagePath := filepath.Join(job.ImagesDir, stem+"."+opts.ImageExtension)
	img, err := loadImage(opts, imagePath)
	if err != nil {
		var ie *ImageError
		if errors.As(err, &ie) {
			log.WithError(ie.Err).WithField("path", ie.Path).Warn("Skipping image")
			stats.SkippedImages++
			return stats, nil
		}
		return stats, err
	}

	ppePath := filepath.Join(job.PPELabelsDir, filepath.Base(personPath))
	crops, err := pc.CropPersons(img, persons, func() ([]types.Label, error) {
		return labels.ReadFile(ppePath)
	})
	if err != nil {
		return stats, err
	}

	for _, c := range crops {
		name := c.Name(stem)
		if err := opts.Processor.SaveImage(c.Image, filepath.Join(job.CroppedImagesDir, name+".jpg"), "jpg"); err != nil {
			return stats, fmt.Errorf("failed to write crop %s: %w", name, err)
		}
		stats.Crops++

		if len(c.Labels) > 0 {
			if err := labels.WriteFile(filepath.Join(job.CroppedLabelsDir, name+".txt"), c.Labels); err != nil {
				return stats, err
			}
			stats.LabelFiles++
		}
		log.WithFields(logrus.Fields{
			"crop":   name,
			"labels": len(c.Labels),
		}).Debug("Wrote crop")
	}
	return stats, nil
}

func loadImage(opts Options, path string) (image.Image, error) {
	img, err := opts.Processor.LoadImage(path)
	if err != nil {
		return nil, &ImageError{Path: path, Err: err}
	}
	return img, nil
}

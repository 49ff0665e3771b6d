package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/akamensky/argparse"
	"github.com/cheggaaa/pb/v3"

	"github.com/menta2k/ppe-cascade/internal/config"
	"github.com/menta2k/ppe-cascade/internal/utils"
	"github.com/menta2k/ppe-cascade/pkg/cropper"
	"github.com/menta2k/ppe-cascade/pkg/dataset"
	"github.com/menta2k/ppe-cascade/pkg/processing"
)

func main() {
	parser := argparse.NewParser("crop-ppe-labels", "Crop persons from images and adjust PPE labels")
	personLabelsDir := parser.String("", "person_labels_dir", &argparse.Options{Help: "Directory containing person detection labels", Required: true})
	ppeLabelsDir := parser.String("", "ppe_labels_dir", &argparse.Options{Help: "Directory containing PPE detection labels", Required: true})
	imagesDir := parser.String("", "ppe_images_dir", &argparse.Options{Help: "Directory containing the images", Required: true})
	croppedImagesDir := parser.String("", "cropped_images_dir", &argparse.Options{Help: "Directory to save cropped images", Required: true})
	croppedLabelsDir := parser.String("", "cropped_labels_dir", &argparse.Options{Help: "Directory to save adjusted labels", Required: true})
	configPath := parser.String("", "config", &argparse.Options{Help: "Configuration file (default: " + config.GetConfigPath() + ")"})
	workers := parser.Int("", "workers", &argparse.Options{Help: "Images processed in parallel (overrides config)"})
	progress := parser.Flag("", "progress", &argparse.Options{Help: "Show a progress bar"})
	verbose := parser.Flag("v", "verbose", &argparse.Options{Help: "Log every crop"})

	logger := utils.NewLogger(false)
	if err := parser.Parse(os.Args); err != nil {
		logger.Error(parser.Usage(err))
		os.Exit(1)
	}
	logger = utils.NewLogger(*verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if *workers > 0 {
		cfg.Dataset.Workers = *workers
	}
	rounding, err := cropper.ParseRounding(cfg.Dataset.Rounding)
	if err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	job := dataset.CropJob{
		PersonLabelsDir:  *personLabelsDir,
		PPELabelsDir:     *ppeLabelsDir,
		ImagesDir:        *imagesDir,
		CroppedImagesDir: *croppedImagesDir,
		CroppedLabelsDir: *croppedLabelsDir,
	}
	opts := dataset.Options{
		Workers:        cfg.Dataset.Workers,
		PersonClass:    cfg.Dataset.PersonClass,
		Rounding:       rounding,
		ImageExtension: cfg.Dataset.ImageExtension,
		Processor:      &processing.Processor{Quality: cfg.Output.Quality, Lossless: cfg.Output.Lossless},
		Logger:         logger,
	}

	if *progress {
		files, err := utils.ListFiles(job.PersonLabelsDir, "txt")
		if err != nil {
			logger.Fatalf("Failed to list person labels: %v", err)
		}
		bar := pb.StartNew(len(files))
		opts.OnIdentifier = func() { bar.Increment() }
		defer bar.Finish()
	}

	stats, err := dataset.RunCrop(ctx, job, opts)
	if err != nil {
		logger.Fatalf("Crop failed: %v", err)
	}
	logger.Infof("Wrote %d crops and %d label files from %d images (%d skipped)",
		stats.Crops, stats.LabelFiles, stats.Identifiers-stats.SkippedImages, stats.SkippedImages)
}

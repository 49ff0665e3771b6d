package main

import (
	"context"
	"os"

	"github.com/akamensky/argparse"

	"github.com/menta2k/ppe-cascade/internal/config"
	"github.com/menta2k/ppe-cascade/internal/utils"
	"github.com/menta2k/ppe-cascade/pkg/dataset"
)

func main() {
	parser := argparse.NewParser("voc2yolo", "Convert Pascal VOC annotations to YOLO format")
	vocDir := parser.String("", "voc_dir", &argparse.Options{Help: "Path to the VOC dataset directory (with images/ and labels/)", Required: true})
	yoloDir := parser.String("", "yolo_dir", &argparse.Options{Help: "Path to save the YOLO formatted annotations", Required: true})
	classFile := parser.String("", "classes", &argparse.Options{Help: "Class names file, one per line (default: configured classes)"})
	configPath := parser.String("", "config", &argparse.Options{Help: "Configuration file"})
	verbose := parser.Flag("v", "verbose", &argparse.Options{Help: "Log every file"})

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
	classes := cfg.Classes
	if *classFile != "" {
		if classes, err = config.LoadClassFile(*classFile); err != nil {
			logger.Fatalf("Failed to load classes: %v", err)
		}
	}

	if _, err := dataset.RunVOC(context.Background(), *vocDir, *yoloDir, classes, logger); err != nil {
		logger.Fatalf("Conversion failed: %v", err)
	}
}

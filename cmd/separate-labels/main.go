package main

import (
	"context"
	"os"

	"github.com/akamensky/argparse"

	"github.com/menta2k/ppe-cascade/internal/utils"
	"github.com/menta2k/ppe-cascade/pkg/dataset"
)

func main() {
	parser := argparse.NewParser("separate-labels", "Separate person labels from other labels and save them into different directories with adjusted class IDs for PPE")
	inputDir := parser.String("", "input_dir", &argparse.Options{Help: "Directory containing the original labels", Required: true})
	personDir := parser.String("", "person_output_dir", &argparse.Options{Help: "Directory to save person labels", Required: true})
	ppeDir := parser.String("", "ppe_output_dir", &argparse.Options{Help: "Directory to save PPE labels", Required: true})
	personClass := parser.Int("", "person_class", &argparse.Options{Help: "Class ID for the person", Default: 0})
	verbose := parser.Flag("v", "verbose", &argparse.Options{Help: "Log every file"})

	logger := utils.NewLogger(false)
	if err := parser.Parse(os.Args); err != nil {
		logger.Error(parser.Usage(err))
		os.Exit(1)
	}
	logger = utils.NewLogger(*verbose)

	if _, err := dataset.RunSeparate(context.Background(), *inputDir, *personDir, *ppeDir, *personClass, logger); err != nil {
		logger.Fatalf("Separation failed: %v", err)
	}
}

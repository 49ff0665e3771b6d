package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/akamensky/argparse"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/ppe-cascade/internal/config"
	"github.com/menta2k/ppe-cascade/internal/utils"
	"github.com/menta2k/ppe-cascade/pkg/cascade"
	"github.com/menta2k/ppe-cascade/pkg/client"
	"github.com/menta2k/ppe-cascade/pkg/detection"
	"github.com/menta2k/ppe-cascade/pkg/llamacpp"
	"github.com/menta2k/ppe-cascade/pkg/ollama"
	"github.com/menta2k/ppe-cascade/pkg/onnx"
	"github.com/menta2k/ppe-cascade/pkg/processing"
)

func main() {
	parser := argparse.NewParser("ppe-infer", "Run inference using person and PPE detection models")
	inputDir := parser.String("", "input_dir", &argparse.Options{Help: "Directory containing images for inference", Required: true})
	outputDir := parser.String("", "output_dir", &argparse.Options{Help: "Directory to save inference images", Required: true})
	personModel := parser.String("", "person_det_model", &argparse.Options{Help: "Person detection model (ONNX file, or model name for ollama/llamacpp)", Required: true})
	ppeModel := parser.String("", "ppe_detection_model", &argparse.Options{Help: "PPE detection model (ONNX file, or model name for ollama/llamacpp)", Required: true})
	backend := parser.Selector("", "backend", []string{"onnx", "ollama", "llamacpp"}, &argparse.Options{Help: "Detector backend (default: configured backend)"})
	serverURL := parser.String("", "url", &argparse.Options{Help: "Server URL for ollama/llamacpp"})
	configPath := parser.String("", "config", &argparse.Options{Help: "Configuration file"})
	conf := parser.Float("", "conf", &argparse.Options{Help: "Confidence threshold (overrides config)", Default: -1.0})
	iou := parser.Float("", "iou", &argparse.Options{Help: "NMS IoU threshold (overrides config)", Default: -1.0})
	verbose := parser.Flag("v", "verbose", &argparse.Options{Help: "Debug logging"})

	logger := utils.NewLogger(false)
	if err := parser.Parse(os.Args); err != nil {
		logger.Error(parser.Usage(err))
		os.Exit(1)
	}
	logger = utils.NewLogger(*verbose)

	opts := options{
		inputDir:    *inputDir,
		outputDir:   *outputDir,
		configPath:  *configPath,
		backend:     *backend,
		url:         *serverURL,
		personModel: *personModel,
		ppeModel:    *ppeModel,
		conf:        *conf,
		iou:         *iou,
	}
	if err := run(opts, logger); err != nil {
		logger.Fatal(err)
	}
}

type options struct {
	inputDir, outputDir string
	configPath          string
	backend, url        string
	personModel         string
	ppeModel            string
	conf, iou           float64
}

func run(opts options, logger *logrus.Logger) error {
	if !utils.DirExists(opts.inputDir) {
		return fmt.Errorf("input directory %s does not exist", opts.inputDir)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	dc := cfg.Detector
	if opts.backend != "" {
		dc.Backend = opts.backend
	}
	if opts.url != "" {
		dc.URL = opts.url
	}
	if opts.conf >= 0 {
		dc.ConfThreshold = opts.conf
	}
	if opts.iou >= 0 {
		dc.IoUThreshold = opts.iou
	}
	dc.PersonModel, dc.PPEModel = opts.personModel, opts.ppeModel

	if dc.Backend == "onnx" {
		if err := onnx.InitEnvironment(dc.SharedLibPath); err != nil {
			return err
		}
		defer onnx.DestroyEnvironment()
	}

	persons, err := newDetector(dc, dc.PersonModel, []string{"person"}, logger)
	if err != nil {
		return fmt.Errorf("failed to load person model: %w", err)
	}
	ppeClasses := cfg.PPEClasses()
	ppe, err := newDetector(dc, dc.PPEModel, ppeClasses, logger)
	if err != nil {
		persons.Close()
		return fmt.Errorf("failed to load PPE model: %w", err)
	}
	if d, ok := ppe.(*onnx.Detector); ok {
		if err := d.CheckVocabulary(ppeClasses); err != nil {
			persons.Close()
			ppe.Close()
			return fmt.Errorf("PPE model %s: %w", dc.PPEModel, err)
		}
	}

	c := &cascade.Cascade{
		Persons:      persons,
		PPE:          ppe,
		PersonClass:  0,
		Classes:      ppeClasses,
		OutputFormat: cfg.Output.Format,
		Processor:    &processing.Processor{Quality: cfg.Output.Quality, Lossless: cfg.Output.Lossless},
		Logger:       logger,
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	stats, err := c.RunDir(ctx, opts.inputDir, opts.outputDir)
	if err != nil {
		return fmt.Errorf("inference failed: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"images":  stats.Images,
		"skipped": stats.Skipped,
		"persons": stats.Persons,
		"ppe":     stats.PPE,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("Inference finished")
	return nil
}

// newDetector creates a detector for model on the configured backend. classes
// is the vocabulary vision-LLM backends are asked for.
func newDetector(dc config.DetectorConfig, model string, classes []string, logger logrus.FieldLogger) (client.ObjectDetector, error) {
	params := detection.Params{
		ConfThreshold: float32(dc.ConfThreshold),
		IoUThreshold:  float32(dc.IoUThreshold),
	}
	switch dc.Backend {
	case "onnx":
		return onnx.New(onnx.Config{ModelPath: model, InputSize: dc.InputSize, Params: params})
	case "ollama":
		return ollama.NewDetector(dc.URL, model, classes, params, dc.Timeout(), logger)
	case "llamacpp":
		return llamacpp.NewDetector(dc.URL, model, classes, params, dc.Timeout(), logger)
	}
	return nil, fmt.Errorf("unknown backend: %s (use onnx, ollama or llamacpp)", dc.Backend)
}

// Package onnx runs YOLOv8-style detection models through onnxruntime.
package onnx

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/menta2k/ppe-cascade/pkg/detection"
	"github.com/menta2k/ppe-cascade/pkg/types"
)

// DefaultInputSize is the square input side of exported YOLO models
const DefaultInputSize = 640

var envMu sync.Mutex

// InitEnvironment loads the onnxruntime shared library once per process.
// An empty libPath uses the library's default lookup.
func InitEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}
	return nil
}

// DestroyEnvironment releases the onnxruntime environment
func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// Config describes a detection model
type Config struct {
	ModelPath string
	InputSize int
	Params    detection.Params
}

// Detector is a YOLO detector backed by one onnxruntime session. Detect
// calls are serialized.
type Detector struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	input      *ort.Tensor[float32]
	output     *ort.Tensor[float32]
	inputSize  int
	numClasses int
	numBoxes   int
	params     detection.Params
}

// New creates a detector for the model at cfg.ModelPath. InitEnvironment must
// have been called. The output must have shape [1, 4+classes, boxes].
func New(cfg Config) (*Detector, error) {
	size := cfg.InputSize
	if size <= 0 {
		size = DefaultInputSize
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model %s: %w", cfg.ModelPath, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("model %s: expected 1 input and 1 output, got %d and %d", cfg.ModelPath, len(inputs), len(outputs))
	}
	dims := outputs[0].Dimensions
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("model %s: unsupported output shape %v", cfg.ModelPath, dims)
	}
	numClasses := int(dims[1]) - 4
	numBoxes := int(dims[2])
	if numBoxes <= 0 {
		numBoxes = anchorCount(size)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()
	options.SetIntraOpNumThreads(runtime.NumCPU())

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+numClasses), int64(numBoxes)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &Detector{
		session:    session,
		input:      inputTensor,
		output:     outputTensor,
		inputSize:  size,
		numClasses: numClasses,
		numBoxes:   numBoxes,
		params:     cfg.Params,
	}, nil
}

// NumClasses returns the number of classes the model predicts
func (d *Detector) NumClasses() int {
	return d.numClasses
}

// CheckVocabulary reports an error when classes does not name every class
// the model predicts.
func (d *Detector) CheckVocabulary(classes []string) error {
	if n := d.NumClasses(); n != len(classes) {
		return fmt.Errorf("model predicts %d classes, vocabulary has %d", n, len(classes))
	}
	return nil
}

// Detect implements client.ObjectDetector
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	resized := imaging.Resize(img, d.inputSize, d.inputSize, imaging.Linear)
	fillCHW(resized, d.input.GetData(), d.inputSize)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	dets := decodeOutput(d.output.GetData(), d.numClasses, d.numBoxes, d.inputSize, b.Dx(), b.Dy(), d.params.ConfThreshold)
	return detection.NonMaxSuppression(dets, d.params.IoUThreshold), nil
}

// Close implements client.ObjectDetector
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	if d.input != nil {
		d.input.Destroy()
		d.input = nil
	}
	if d.output != nil {
		d.output.Destroy()
		d.output = nil
	}
	return nil
}

// anchorCount is the number of predictions of a stride 8/16/32 head
func anchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		s := size / stride
		n += s * s
	}
	return n
}

// fillCHW writes pic, which must be size x size, into buf as planar RGB
// scaled to [0,1]
func fillCHW(pic *image.NRGBA, buf []float32, size int) {
	channelSize := size * size
	for y := 0; y < size; y++ {
		row := pic.Pix[y*pic.Stride:]
		offset := y * size
		for x := 0; x < size; x++ {
			i := offset + x
			p := row[x*4:]
			buf[i] = float32(p[0]) / 255.0
			buf[channelSize+i] = float32(p[1]) / 255.0
			buf[channelSize*2+i] = float32(p[2]) / 255.0
		}
	}
}

// decodeOutput turns a [4+numClasses, numBoxes] prediction tensor into
// detections in the pixel space of an imgW x imgH image. Rows 0-3 hold the
// box center and size in input pixels, the rest hold class scores.
func decodeOutput(out []float32, numClasses, numBoxes, inputSize, imgW, imgH int, threshold float32) []types.Detection {
	if len(out) < (4+numClasses)*numBoxes {
		return nil
	}
	scaleX := float32(imgW) / float32(inputSize)
	scaleY := float32(imgH) / float32(inputSize)

	var dets []types.Detection
	for i := 0; i < numBoxes; i++ {
		best, bestScore := -1, threshold
		for c := 0; c < numClasses; c++ {
			if s := out[(4+c)*numBoxes+i]; s >= bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 {
			continue
		}

		cx, cy := out[i], out[numBoxes+i]
		w, h := out[2*numBoxes+i], out[3*numBoxes+i]
		box := types.Rect{
			XMin: int((cx - w/2) * scaleX),
			YMin: int((cy - h/2) * scaleY),
			XMax: int((cx + w/2) * scaleX),
			YMax: int((cy + h/2) * scaleY),
		}.Clamp(imgW, imgH)
		if box.Empty() {
			continue
		}
		dets = append(dets, types.Detection{ClassID: best, Confidence: bestScore, Box: box})
	}
	return dets
}

// Package voc reads Pascal VOC XML annotations and converts them to
// normalized YOLO labels.
package voc

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/menta2k/ppe-cascade/pkg/types"
)

// ErrInvalidSize is returned when an annotation has no usable image size
var ErrInvalidSize = errors.New("voc: image size must be positive")

// Size is the <size> element of an annotation
type Size struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

// BndBox is an object's pixel bounding box
type BndBox struct {
	XMin float64 `xml:"xmin"`
	YMin float64 `xml:"ymin"`
	XMax float64 `xml:"xmax"`
	YMax float64 `xml:"ymax"`
}

// Object is one annotated object
type Object struct {
	Name      string `xml:"name"`
	Difficult int    `xml:"difficult"`
	BndBox    BndBox `xml:"bndbox"`
}

// Annotation is a parsed VOC annotation file
type Annotation struct {
	XMLName  xml.Name `xml:"annotation"`
	Filename string   `xml:"filename"`
	Size     Size     `xml:"size"`
	Objects  []Object `xml:"object"`
}

// Parse decodes an annotation from r
func Parse(r io.Reader) (*Annotation, error) {
	var ann Annotation
	if err := xml.NewDecoder(r).Decode(&ann); err != nil {
		return nil, fmt.Errorf("voc: decode annotation: %w", err)
	}
	for i := range ann.Objects {
		ann.Objects[i].Name = strings.TrimSpace(ann.Objects[i].Name)
	}
	return &ann, nil
}

// ParseFile decodes the annotation stored at path
func ParseFile(path string) (*Annotation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ann, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ann, nil
}

// Convert maps the objects of ann to labels. The class id of an object is the
// index of its name in classes; objects whose name is not in classes are
// skipped. Object order is preserved.
func Convert(ann *Annotation, classes []string) ([]types.Label, error) {
	if ann.Size.Width <= 0 || ann.Size.Height <= 0 {
		return nil, fmt.Errorf("%w (got %dx%d)", ErrInvalidSize, ann.Size.Width, ann.Size.Height)
	}
	dw := 1.0 / float64(ann.Size.Width)
	dh := 1.0 / float64(ann.Size.Height)

	var out []types.Label
	for _, obj := range ann.Objects {
		id := slices.Index(classes, obj.Name)
		if id < 0 {
			continue
		}
		b := obj.BndBox
		out = append(out, types.Label{
			ClassID: id,
			XCenter: (b.XMin + b.XMax) / 2.0 * dw,
			YCenter: (b.YMin + b.YMax) / 2.0 * dh,
			Width:   (b.XMax - b.XMin) * dw,
			Height:  (b.YMax - b.YMin) * dh,
		})
	}
	return out, nil
}

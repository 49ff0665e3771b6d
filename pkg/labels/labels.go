// Package labels reads and writes YOLO label files.
//
// A label file holds one object per line:
//
//	{class_id} {x_center} {y_center} {width} {height}
//
// with the coordinates normalized to the image size. Parsing is strict: any
// line that is not exactly five fields with an integer class and finite
// coordinates is an error.
package labels

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/menta2k/ppe-cascade/pkg/types"
)

// ParseError describes a label line that could not be parsed.
type ParseError struct {
	Path string // empty when parsing from a reader
	Line int    // 1-based
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%d: malformed label line %q: %v", e.Path, e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("line %d: malformed label line %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseClassID parses only the class field of a label line.
func ParseClassID(line string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty line")
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("invalid class id %q", fields[0])
	}
	return id, nil
}

// ParseLine parses a single label line.
func ParseLine(line string) (types.Label, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return types.Label{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return types.Label{}, fmt.Errorf("invalid class id %q", fields[0])
	}
	var v [4]float64
	for i, f := range fields[1:] {
		v[i], err = strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			return types.Label{}, fmt.Errorf("invalid coordinate %q", f)
		}
	}
	return types.Label{ClassID: id, XCenter: v[0], YCenter: v[1], Width: v[2], Height: v[3]}, nil
}

// Parse reads every label from r. Blank lines are skipped.
func Parse(r io.Reader) ([]types.Label, error) {
	var out []types.Label
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		l, err := ParseLine(text)
		if err != nil {
			return nil, &ParseError{Line: n, Text: text, Err: err}
		}
		out = append(out, l)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Format renders a label as a single line without the trailing newline.
func Format(l types.Label) string {
	return strconv.Itoa(l.ClassID) + " " +
		FormatFloat(l.XCenter) + " " +
		FormatFloat(l.YCenter) + " " +
		FormatFloat(l.Width) + " " +
		FormatFloat(l.Height)
}

// FormatFloat renders f with the shortest representation that round-trips.
// Integral values keep a ".0" suffix and very small or very large magnitudes
// use exponent notation, so 1 is "1.0", 0.375 is "0.375" and 0.00001 is "1e-05".
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Write writes one newline-terminated line per label.
func Write(w io.Writer, set []types.Label) error {
	bw := bufio.NewWriter(w)
	for _, l := range set {
		if _, err := bw.WriteString(Format(l) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

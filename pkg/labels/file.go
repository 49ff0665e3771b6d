package labels

import (
	"errors"
	"fmt"
	"os"

	"github.com/menta2k/ppe-cascade/pkg/types"
)

// ReadFile parses the label file at path.
func ReadFile(path string) ([]types.Label, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open label file: %w", err)
	}
	defer f.Close()

	set, err := Parse(f)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
			return nil, pe
		}
		return nil, fmt.Errorf("failed to read label file %s: %w", path, err)
	}
	return set, nil
}

// WriteFile replaces the file at path with the given labels.
func WriteFile(path string, set []types.Label) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create label file: %w", err)
	}
	if err := Write(f, set); err != nil {
		f.Close()
		return fmt.Errorf("failed to write label file %s: %w", path, err)
	}
	return f.Close()
}

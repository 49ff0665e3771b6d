package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/ppe-cascade/internal/utils"
	"github.com/menta2k/ppe-cascade/pkg/labels"
)

// SeparateStats summarizes a separation run
type SeparateStats struct {
	Files       int
	PersonFiles int
	PPEFiles    int
}

// RunSeparate splits every *.txt label file in inputDir into a person file
// under personDir and a PPE file under ppeDir, both with the input's name.
// PPE class ids are shifted down by one. An output file is written only when
// it has at least one line.
func RunSeparate(ctx context.Context, inputDir, personDir, ppeDir string, personClass int, log logrus.FieldLogger) (SeparateStats, error) {
	log = loggerOrStandard(log)
	var stats SeparateStats

	if err := utils.EnsureDirs(personDir, ppeDir); err != nil {
		return stats, err
	}
	files, err := utils.ListFiles(inputDir, "txt")
	if err != nil {
		return stats, fmt.Errorf("failed to list labels: %w", err)
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		person, ppe, err := splitFile(path, personClass)
		if err != nil {
			return stats, err
		}
		stats.Files++

		name := filepath.Base(path)
		if len(person) > 0 {
			if err := writeLines(filepath.Join(personDir, name), person); err != nil {
				return stats, err
			}
			stats.PersonFiles++
		}
		if len(ppe) > 0 {
			if err := writeLines(filepath.Join(ppeDir, name), ppe); err != nil {
				return stats, err
			}
			stats.PPEFiles++
		}
		log.WithFields(logrus.Fields{
			"identifier": utils.Stem(name),
			"person":     len(person),
			"ppe":        len(ppe),
		}).Debug("Separated labels")
	}

	log.WithFields(logrus.Fields{
		"files":        stats.Files,
		"person_files": stats.PersonFiles,
		"ppe_files":    stats.PPEFiles,
	}).Info("Separation finished")
	return stats, nil
}

func splitFile(path string, personClass int) (person, ppe []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open label file: %w", err)
	}
	defer f.Close()

	person, ppe, err = labels.Split(f, personClass)
	var pe *labels.ParseError
	if errors.As(err, &pe) {
		pe.Path = path
	}
	return person, ppe, err
}

func writeLines(path string, lines []string) error {
	if err := os.WriteFile(path, []byte(strings.Join(lines, "")), 0644); err != nil {
		return fmt.Errorf("failed to write label file: %w", err)
	}
	return nil
}

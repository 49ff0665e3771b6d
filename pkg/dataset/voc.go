package dataset

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/ppe-cascade/internal/utils"
	"github.com/menta2k/ppe-cascade/pkg/labels"
	"github.com/menta2k/ppe-cascade/pkg/voc"
)

// RunVOC converts vocDir/labels/{stem}.xml to yoloDir/{stem}.txt for every
// file in vocDir/images. A label file is written for every image, empty when
// no object has a name in classes. It returns the number of files written.
func RunVOC(ctx context.Context, vocDir, yoloDir string, classes []string, log logrus.FieldLogger) (int, error) {
	log = loggerOrStandard(log)

	if len(classes) == 0 {
		return 0, fmt.Errorf("empty class vocabulary")
	}
	if err := utils.EnsureDir(yoloDir); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	images, err := utils.ListFiles(filepath.Join(vocDir, "images"))
	if err != nil {
		return 0, fmt.Errorf("failed to list images: %w", err)
	}

	written := 0
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		stem := utils.Stem(img)
		ann, err := voc.ParseFile(filepath.Join(vocDir, "labels", stem+".xml"))
		if err != nil {
			return written, err
		}
		set, err := voc.Convert(ann, classes)
		if err != nil {
			return written, fmt.Errorf("%s: %w", stem, err)
		}
		if err := labels.WriteFile(filepath.Join(yoloDir, stem+".txt"), set); err != nil {
			return written, err
		}
		written++
		log.WithFields(logrus.Fields{
			"identifier": stem,
			"objects":    len(ann.Objects),
			"labels":     len(set),
		}).Debug("Converted annotation")
	}

	log.WithField("files", written).Info("VOC conversion finished")
	return written, nil
}

package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns the logger used by the command line tools: text output
// on stderr with full timestamps, at debug level when verbose is set
func NewLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

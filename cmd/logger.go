package cmd

import (
	"github.com/sirupsen/logrus"
)

// commandLogger returns the shared logger, switched to debug when verbose.
// Without verbose the LOG_LEVEL setting is kept.
func commandLogger(verbose bool) *logrus.Logger {
	if verbose {
		Logger.SetLevel(logrus.DebugLevel)
	}
	return Logger
}

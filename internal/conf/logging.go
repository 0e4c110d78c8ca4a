package conf

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the standard logrus logger. Output goes to out,
// stderr when nil.
func SetupLogging(cfg LogConfig, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	logrus.SetOutput(out)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

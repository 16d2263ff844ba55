package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// NewLogger constructs a logrus logger configured with JSON output and the provided log level.
func NewLogger(level string) (*logrus.Logger, error) {
	return NewLoggerTo(os.Stderr, level)
}

// NewLoggerTo is NewLogger with an explicit sink. The terminal client points it at a
// file or io.Discard so log lines do not tear through the interactive form.
func NewLoggerTo(out io.Writer, level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logger.SetReportCaller(false)
	logger.SetLevel(logrus.InfoLevel)

	if strings.TrimSpace(level) == "" {
		return logger, nil
	}

	parsedLevel, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, eris.Wrapf(err, "invalid log level: %s", level)
	}

	logger.SetLevel(parsedLevel)
	return logger, nil
}

// Discard returns a logger that drops every entry.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

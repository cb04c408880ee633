// ABOUTME: logrus setup shared by the CLI commands
// ABOUTME: Picks level and formatter, and routes output away from the terminal UI
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options controls where and how log entries are written
type Options struct {
	Level  string
	Format string
	File   string
	// Quiet keeps logs off stdout, for when a full screen UI owns the terminal
	Quiet bool
}

// New builds a logger. The returned closer releases the log file, if any.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level := logrus.InfoLevel
	if opts.Level != "" {
		var err error
		if level, err = logrus.ParseLevel(opts.Level); err != nil {
			return nil, nil, fmt.Errorf("invalid log level: %w", err)
		}
	}
	logger.SetLevel(level)

	switch opts.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	var closer io.Closer = nopCloser{}
	var outputs []io.Writer
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening log file: %w", err)
		}
		outputs = append(outputs, f)
		closer = f
	}
	if !opts.Quiet {
		outputs = append(outputs, os.Stderr)
	}

	switch len(outputs) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(outputs[0])
	default:
		logger.SetOutput(io.MultiWriter(outputs...))
	}
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

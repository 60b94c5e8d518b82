// Package logging builds the zerolog logger for one versionize run.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configure a run logger.
type Options struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// Format is "console" or "json".
	Format string
	// File, when set, receives a JSON copy of every entry. It is appended to.
	File string
	// Out defaults to stderr.
	Out io.Writer
}

// RunLogger manages logging for a single invocation. Every entry carries the
// run id so lines from one release can be told apart in a shared log file.
type RunLogger struct {
	runID     string
	logger    zerolog.Logger
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
	closed    bool
}

// New starts logging for a new run.
func New(opts Options) (*RunLogger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var console io.Writer
	switch opts.Format {
	case "", "console":
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	case "json":
		console = out
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	r := &RunLogger{
		runID:     uuid.NewString(),
		startTime: time.Now(),
	}

	writer := console
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		r.logFile = f
		writer = zerolog.MultiLevelWriter(console, f)
	}

	r.logger = zerolog.New(writer).Level(level).With().Timestamp().Str("run", r.runID).Logger()
	r.logger.Debug().Time("started", r.startTime).Msg("run started")
	return r, nil
}

// Logger returns the structured logger for the run.
func (r *RunLogger) Logger() zerolog.Logger {
	return r.logger
}

// Close logs the run duration and closes the log file, if any.
func (r *RunLogger) Close() error {
	if r == nil {
		return nil
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	r.logger.Debug().Dur("elapsed", time.Since(r.startTime).Round(time.Millisecond)).Msg("run finished")
	if r.logFile == nil {
		return nil
	}
	err := r.logFile.Close()
	r.logFile = nil
	return err
}

package access_logging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Sink receives every emitted entry
type Sink interface {
	Write(ctx context.Context, entry AccessLogEntry) error
}

// Emitter writes each entry as one JSON line to stdout and the access log file, and to any
// extra sinks. A failing destination is logged and does not stop the others.
type Emitter struct {
	mu     sync.Mutex
	stdout io.Writer
	file   *os.File
	sinks  []Sink
	log    *zap.Logger
}

// NewEmitter opens path for appending. stdout may be nil to disable console output.
func NewEmitter(stdout io.Writer, path string, log *zap.Logger, sinks ...Sink) (*Emitter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Emitter{stdout: stdout, sinks: sinks, log: log}

	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open access log: %w", err)
		}
		e.file = f
	}
	return e, nil
}

// Emit returns the joined errors of every failed destination
func (e *Emitter) Emit(ctx context.Context, entry AccessLogEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		e.log.Error("Failed to encode access log entry", zap.String("username", entry.Username), zap.Error(err))
		return err
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if e.stdout != nil {
		if _, err := e.stdout.Write(line); err != nil {
			e.log.Error("Failed to write access log to stdout", zap.String("username", entry.Username), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if e.file != nil {
		if _, err := e.file.Write(line); err != nil {
			e.log.Error("Failed to write access log file", zap.String("username", entry.Username), zap.Error(err))
			errs = append(errs, err)
		}
	}
	for _, sink := range e.sinks {
		if err := sink.Write(ctx, entry); err != nil {
			e.log.Error("Failed to write access log sink", zap.String("username", entry.Username), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Emitter) Close() error {
	if e.file == nil {
		return nil
	}
	return e.file.Close()
}

package log_shipping

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_logging"
)

const maxLineSize = 16 * 1024 * 1024

// Shipper forwards access log lines to an Indexer. A line is recorded in the marker file
// only after the indexer accepted it, so delivery is at-least-once.
type Shipper struct {
	logPath    string
	markerPath string
	indexer    Indexer
	log        *zap.Logger
	debounce   time.Duration
}

func NewShipper(logPath string, indexer Indexer, log *zap.Logger) *Shipper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Shipper{
		logPath:    logPath,
		markerPath: MarkerPath(logPath),
		indexer:    indexer,
		log:        log,
		debounce:   500 * time.Millisecond,
	}
}

type ShipStats struct {
	Shipped   int
	Malformed int
	Failed    int
}

// ProcessOnce ships every line not yet in the marker file
func (s *Shipper) ProcessOnce(ctx context.Context) (ShipStats, error) {
	var stats ShipStats

	f, err := os.Open(s.logPath)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("Log file does not exist yet", zap.String("path", s.logPath))
		return stats, nil
	}
	if err != nil {
		return stats, err
	}
	defer f.Close()

	processed, err := readMarker(s.markerPath, s.log)
	if err != nil {
		return stats, err
	}

	marker := &markerWriter{path: s.markerPath}
	defer marker.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, done := processed[lineNum]; done {
			continue
		}

		var entry access_logging.AccessLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			s.log.Error("Failed to parse log line", zap.Int("line", lineNum), zap.Error(err))
			stats.Malformed++
			continue
		}
		doc, err := Transform(entry)
		if err != nil {
			s.log.Error("Failed to transform log line", zap.Int("line", lineNum), zap.Error(err))
			stats.Malformed++
			continue
		}

		if err := s.indexer.Index(ctx, doc); err != nil {
			s.log.Error("Failed to index log line", zap.Int("line", lineNum), zap.String("username", entry.Username), zap.Error(err))
			stats.Failed++
			continue
		}

		if err := marker.mark(lineNum); err != nil {
			s.log.Error("Failed to mark line as processed", zap.Int("line", lineNum), zap.Error(err))
		}
		stats.Shipped++
	}
	if err := scanner.Err(); err != nil {
		return stats, err
	}

	if stats.Shipped == 0 && stats.Malformed == 0 && stats.Failed == 0 {
		s.log.Debug("No new log entries to process")
	} else {
		s.log.Info("Processed log entries",
			zap.Int("shipped", stats.Shipped), zap.Int("malformed", stats.Malformed), zap.Int("failed", stats.Failed))
	}
	return stats, nil
}

// Run processes on start, on every tick, and shortly after the log file is written,
// until ctx is done
func (s *Shipper) Run(ctx context.Context, interval time.Duration) error {
	s.log.Info("Starting continuous log processing", zap.Duration("interval", interval))

	var (
		events      <-chan fsnotify.Event
		watchErrors <-chan error
	)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn("File watching unavailable, using interval only", zap.Error(err))
	} else {
		defer watcher.Close()
		// the directory is watched so creation and rotation of the file are seen too
		if err := watcher.Add(filepath.Dir(s.logPath)); err != nil {
			s.log.Warn("Failed to watch log directory, using interval only", zap.Error(err))
		} else {
			events = watcher.Events
			watchErrors = watcher.Errors
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	debounce := time.NewTimer(s.debounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stopping log processing")
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		case <-debounce.C:
			s.runOnce(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == filepath.Clean(s.logPath) && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				debounce.Reset(s.debounce)
			}
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			s.log.Warn("File watcher error", zap.Error(err))
		}
	}
}

func (s *Shipper) runOnce(ctx context.Context) {
	if _, err := s.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("Error in log processing cycle", zap.Error(err))
	}
}

package log_shipping

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// MarkerPath is the log path with its extension replaced by .processed
func MarkerPath(logPath string) string {
	return strings.TrimSuffix(logPath, filepath.Ext(logPath)) + ".processed"
}

// readMarker returns the processed line numbers. Unparseable lines are skipped.
func readMarker(path string, log *zap.Logger) (map[int]struct{}, error) {
	processed := make(map[int]struct{})

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return processed, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		n, err := strconv.Atoi(text)
		if err != nil || n <= 0 {
			log.Warn("Skipping malformed marker line", zap.String("line", text))
			continue
		}
		processed[n] = struct{}{}
	}
	return processed, scanner.Err()
}

type markerWriter struct {
	path string
	f    *os.File
}

func (m *markerWriter) mark(lineNum int) error {
	if m.f == nil {
		f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		m.f = f
	}
	_, err := fmt.Fprintf(m.f, "%d\n", lineNum)
	return err
}

func (m *markerWriter) Close() error {
	if m.f == nil {
		return nil
	}
	return m.f.Close()
}

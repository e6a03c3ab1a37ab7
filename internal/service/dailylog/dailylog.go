// Package dailylog appends one CSV row per cycle to a file per calendar day.
package dailylog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	timestampColumn = "Timestamp"
	missing         = "-"
)

// Writer owns the log directory. The header of a day file is fixed when the
// file is created; keys first seen later that day are not added to it.
type Writer struct {
	dir string

	day     string
	header  []string
	dropped map[string]bool
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Path returns the file used for the local calendar day of t.
func (w *Writer) Path(t time.Time) string {
	return filepath.Join(w.dir, t.Format("2006-01-02")+".csv")
}

// Append writes one row for statuses at time now. An empty map writes nothing.
func (w *Writer) Append(now time.Time, statuses map[string]string) error {
	if len(statuses) == 0 {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	path := w.Path(now)
	if w.day != path {
		w.day = path
		w.header = nil
		w.dropped = make(map[string]bool)
	}

	// The file may have been removed or rotated since the last row.
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist) || (err == nil && info.Size() == 0):
		if w.header != nil {
			slog.Warn("daily log file missing, starting a new header", "file", path)
		}
		w.header = nil
		w.dropped = make(map[string]bool)
	case err != nil:
		return fmt.Errorf("stat %s: %w", path, err)
	case w.header == nil:
		header, err := readHeader(path)
		if err != nil {
			return err
		}
		w.header = header
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if w.header == nil {
		header := newHeader(statuses)
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		w.header = header
	}

	row := make([]string, 0, len(w.header))
	row = append(row, now.Format("15:04:05"))
	inHeader := make(map[string]bool, len(w.header))
	for _, key := range w.header[1:] {
		inHeader[key] = true
		if v, ok := statuses[key]; ok {
			row = append(row, v)
		} else {
			row = append(row, missing)
		}
	}
	w.warnDropped(statuses, inHeader)

	if err := cw.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

func (w *Writer) warnDropped(statuses map[string]string, inHeader map[string]bool) {
	for key := range statuses {
		if inHeader[key] || w.dropped[key] {
			continue
		}
		w.dropped[key] = true
		slog.Warn("ticket key not in today's log header, omitted from CSV",
			"key", key, "file", w.day)
	}
}

func newHeader(statuses map[string]string) []string {
	keys := make([]string, 0, len(statuses))
	for k := range statuses {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return append([]string{timestampColumn}, keys...)
}

// readHeader returns the first record of an existing day file, or nil when
// the file does not exist yet or is empty.
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	if len(header) == 0 || header[0] != timestampColumn {
		return nil, fmt.Errorf("unexpected header in %s", path)
	}
	return header, nil
}

package cache

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// maxLogLine bounds a single record line when scanning a trade log.
const maxLogLine = 1 << 20

// TradeLog is an append-only line-delimited record log for one key. Each
// successfully fetched page is appended immediately, so a crash mid-fetch
// leaves a valid partial log. A sidecar marker file, written only after a
// fully successful fetch, distinguishes a complete log from the leftovers
// of a crashed run: a log without its marker is discarded and re-fetched.
type TradeLog struct {
	path       string
	markerPath string
}

// Marker records the outcome of the fetch that produced a complete log.
type Marker struct {
	Truncated bool `json:"truncated"`
	Records   int  `json:"records"`
}

// TradeLog returns the append log for the given key.
func (c *Cache) TradeLog(key string) *TradeLog {
	base := filepath.Join(c.dir, key)
	return &TradeLog{
		path:       base + ".jsonl",
		markerPath: base + ".done",
	}
}

// Complete reports whether the log was committed by a fully successful
// fetch, and if so returns its marker.
func (l *TradeLog) Complete() (Marker, bool) {
	data, err := os.ReadFile(l.markerPath)
	if err != nil {
		return Marker{}, false
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, false
	}
	return m, true
}

// Reset discards any partial log from a prior crashed run.
func (l *TradeLog) Reset() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: reset log %s: %w", l.path, err)
	}
	if err := os.Remove(l.markerPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: reset marker %s: %w", l.markerPath, err)
	}
	return nil
}

// Append writes one record per line to the end of the log. The returned
// error is advisory; the fetch that produced the records proceeds
// regardless.
func (l *TradeLog) Append(records []json.RawMessage) error {
	if len(records) == 0 {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("cache: open log %s: %w", l.path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fmt.Errorf("cache: append log %s: %w", l.path, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("cache: append log %s: %w", l.path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("cache: flush log %s: %w", l.path, err)
	}
	return nil
}

// Commit marks the log complete by writing its sidecar marker.
func (l *TradeLog) Commit(m Marker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("cache: marshal marker: %w", err)
	}
	if err := os.WriteFile(l.markerPath, data, filePerm); err != nil {
		return fmt.Errorf("cache: write marker %s: %w", l.markerPath, err)
	}
	return nil
}

// ReadAll returns every record in the log. Blank and unparsable lines are
// skipped, never fatal.
func (l *TradeLog) ReadAll() ([]json.RawMessage, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: open log %s: %w", l.path, err)
	}
	defer f.Close()

	var out []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLogLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			continue
		}
		rec := make(json.RawMessage, len(line))
		copy(rec, line)
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cache: scan log %s: %w", l.path, err)
	}
	return out, nil
}

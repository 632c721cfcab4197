// Package tradelog appends one CSV row per terminal resubmit outcome.
//
// Unlike the teacher's position store (whole-file atomic replace via
// write-tmp-then-rename), this is an append-only log: every terminal
// outcome is one more fact that must survive a crash, so each row is
// written and fsynced immediately rather than batched into a snapshot.
package tradelog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var header = []string{
	"timestamp", "token_id", "whale_address", "attempt", "outcome",
	"price", "size", "cumulative_filled", "original_size", "fill_pct",
}

// Row is one terminal resubmit outcome, matching spec.md §9's CSV row
// schema (timestamp, token_id, whale address, attempt, outcome, price,
// size, cumulative_filled, original_size, fill_pct).
type Row struct {
	Timestamp        time.Time
	TokenID          string
	Whale            string
	Attempt          int
	Outcome          string
	Price            float64
	Size             float64
	CumulativeFilled float64
	OriginalSize     float64
}

// FillPct returns the percentage (80 for 80%) of OriginalSize that was
// ultimately filled.
func (r Row) FillPct() float64 {
	if r.OriginalSize <= 0 {
		return 0
	}
	return r.CumulativeFilled / r.OriginalSize * 100
}

// Log is an append-only CSV writer. One Log is safe for concurrent use by
// many resubmit chains; writes are serialized by mu, not by a per-caller
// scratch buffer — the buffer itself (scratch) is reused across writes
// because Append always holds the lock for its full duration.
type Log struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	scratch [10]string
}

// Open creates or appends to the CSV log at path, writing the header only if
// the file is new.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create trade log dir: %w", err)
	}

	_, statErr := os.Stat(path)
	needsHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write trade log header: %w", err)
		}
		w.Flush()
	}

	return &Log{path: path, file: f, writer: w}, nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	return l.file.Close()
}

// Append writes one row and flushes + fsyncs immediately, so a terminal
// outcome is durable before the resubmit chain that produced it is
// discarded.
func (l *Log) Append(row Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.scratch[0] = row.Timestamp.UTC().Format(time.RFC3339)
	l.scratch[1] = row.TokenID
	l.scratch[2] = row.Whale
	l.scratch[3] = strconv.Itoa(row.Attempt)
	l.scratch[4] = row.Outcome
	l.scratch[5] = strconv.FormatFloat(row.Price, 'f', 6, 64)
	l.scratch[6] = strconv.FormatFloat(row.Size, 'f', 6, 64)
	l.scratch[7] = strconv.FormatFloat(row.CumulativeFilled, 'f', 6, 64)
	l.scratch[8] = strconv.FormatFloat(row.OriginalSize, 'f', 6, 64)
	l.scratch[9] = strconv.FormatFloat(row.FillPct(), 'f', 2, 64)

	if err := l.writer.Write(l.scratch[:]); err != nil {
		return fmt.Errorf("write trade log row: %w", err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("flush trade log: %w", err)
	}
	return l.file.Sync()
}

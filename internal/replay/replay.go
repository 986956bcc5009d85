// Package replay reads recorded physical snapshots, one JSON object per
// line, and plays them into a referee.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"humanoid-referee/internal/referee"
)

// maxLineSize bounds one recorded snapshot line.
const maxLineSize = 1 << 20

// Reader decodes snapshots from a JSONL stream. Blank lines are skipped.
type Reader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

// NewReader reads snapshots from r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Reader{scanner: scanner}
}

// Open reads snapshots from a file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// Next returns the next snapshot, or io.EOF at the end of the recording.
func (r *Reader) Next() (referee.PhysicalSnapshot, error) {
	for r.scanner.Scan() {
		r.line++
		raw := r.scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var snap referee.PhysicalSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return referee.PhysicalSnapshot{}, fmt.Errorf("recording line %d: %w", r.line, err)
		}
		return snap, nil
	}
	if err := r.scanner.Err(); err != nil {
		return referee.PhysicalSnapshot{}, fmt.Errorf("recording line %d: %w", r.line+1, err)
	}
	return referee.PhysicalSnapshot{}, io.EOF
}

// Line returns the number of lines consumed.
func (r *Reader) Line() int {
	return r.line
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// StepFunc consumes one snapshot. Returning done stops playback early.
type StepFunc func(referee.PhysicalSnapshot) (done bool, err error)

// Play feeds every snapshot to step, one per pace interval (as fast as
// possible when pace is zero), until the recording ends, step reports
// done, or ctx is cancelled. It returns the number of snapshots played.
func Play(ctx context.Context, r *Reader, pace time.Duration, step StepFunc) (int, error) {
	var ticker *time.Ticker
	if pace > 0 {
		ticker = time.NewTicker(pace)
		defer ticker.Stop()
	}

	played := 0
	for {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return played, nil
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return played, nil
		}

		snap, err := r.Next()
		if errors.Is(err, io.EOF) {
			return played, nil
		}
		if err != nil {
			return played, err
		}

		done, err := step(snap)
		played++
		if err != nil || done {
			return played, err
		}
	}
}

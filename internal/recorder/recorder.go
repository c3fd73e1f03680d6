// Package recorder writes the raw point log and the per-frame detection
// summary log as append-only CSV files.
package recorder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/banshee-data/objdetect/internal/simulator"
)

// TimestampLayout is the local wall-clock format of the timestamp column.
const TimestampLayout = "2006-01-02 15:04:05.000000"

var (
	// RawHeader is the first row of the raw point log.
	RawHeader = []string{"timestamp", "x", "y", "z", "object_tag"}
	// SummaryHeader is the first row of the detection summary log.
	SummaryHeader = []string{"timestamp", "detections_summary"}
)

// ErrClosed is returned by appends after Close.
var ErrClosed = errors.New("recorder is closed")

// Paths locates the two log files.
type Paths struct {
	Raw     string
	Summary string
}

// Options controls durability.
type Options struct {
	// Sync fsyncs the file after every append in addition to flushing the
	// CSV buffer. Without it a process crash still loses at most the frame in
	// flight, but an OS crash may lose more.
	Sync bool
}

// Recorder owns both sinks for the life of the process.
type Recorder struct {
	Raw     *RawSink
	Summary *SummarySink
}

// Open truncates both files, writes their headers and returns the sinks.
// Missing parent directories are created.
func Open(paths Paths, opts Options) (*Recorder, error) {
	raw, err := openSink(paths.Raw, RawHeader, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw log: %w", err)
	}
	summary, err := openSink(paths.Summary, SummaryHeader, opts)
	if err != nil {
		raw.close()
		return nil, fmt.Errorf("failed to open summary log: %w", err)
	}
	return &Recorder{
		Raw:     &RawSink{s: raw},
		Summary: &SummarySink{s: summary},
	}, nil
}

// Close flushes and closes both sinks. It is safe to call more than once.
func (r *Recorder) Close() error {
	return multierr.Combine(r.Raw.s.close(), r.Summary.s.close())
}

// RawSink appends one row per detection.
type RawSink struct {
	s *sink
}

// AppendFrame writes one row per point, all stamped with ts, and commits them
// before returning. An empty frame writes nothing.
func (r *RawSink) AppendFrame(ts time.Time, points []simulator.SemanticPoint) error {
	if len(points) == 0 {
		return r.s.checkOpen()
	}
	stamp := ts.Format(TimestampLayout)
	rows := make([][]string, len(points))
	for i, p := range points {
		rows[i] = []string{
			stamp,
			formatFloat(p.X),
			formatFloat(p.Y),
			formatFloat(p.Z),
			strconv.FormatUint(uint64(p.Tag), 10),
		}
	}
	return r.s.write(rows)
}

// Rows returns the number of data rows written so far.
func (r *RawSink) Rows() uint64 { return r.s.rowCount() }

// Path returns the file location.
func (r *RawSink) Path() string { return r.s.path }

// SummarySink appends exactly one row per frame.
type SummarySink struct {
	s *sink
}

// Append writes the formatted summary for one frame. An empty summary is
// still written as a row.
func (s *SummarySink) Append(ts time.Time, summary string) error {
	return s.s.write([][]string{{ts.Format(TimestampLayout), summary}})
}

// Rows returns the number of data rows written so far.
func (s *SummarySink) Rows() uint64 { return s.s.rowCount() }

// Path returns the file location.
func (s *SummarySink) Path() string { return s.s.path }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// sink is a single CSV file guarded by its own mutex so that concurrent
// callers never interleave partial rows.
type sink struct {
	path string
	sync bool

	mu     sync.Mutex
	f      *os.File
	w      *csv.Writer
	rows   uint64
	closed bool
}

func openSink(path string, header []string, opts Options) (*sink, error) {
	if path == "" {
		return nil, errors.New("empty path")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	s := &sink{path: path, sync: opts.Sync, f: f, w: csv.NewWriter(f)}
	if err := s.commit([][]string{header}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return s, nil
}

func (s *sink) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *sink) write(rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.commit(rows); err != nil {
		return fmt.Errorf("failed to append to %s: %w", s.path, err)
	}
	s.rows += uint64(len(rows))
	return nil
}

// commit writes rows and pushes them to the OS (and disk when sync is set).
// Callers hold s.mu, except openSink which owns s exclusively.
func (s *sink) commit(rows [][]string) error {
	for _, row := range rows {
		if err := s.w.Write(row); err != nil {
			return err
		}
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	if s.sync {
		return s.f.Sync()
	}
	return nil
}

func (s *sink) rowCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

func (s *sink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.w.Flush()
	return multierr.Combine(s.w.Error(), s.f.Close())
}

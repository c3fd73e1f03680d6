// Package testutil provides shared test helpers for reading back the CSV logs
// and silencing the diagnostic logger.
package testutil

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/banshee-data/objdetect/internal/monitoring"
)

// ReadCSV reads every record of the CSV file at path, header included.
func ReadCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("failed to parse %s: %v", path, err)
	}
	return records
}

// LogCapture collects diagnostic lines written through the monitoring package.
type LogCapture struct {
	mu    sync.Mutex
	lines []string
}

// Lines returns a copy of the captured lines.
func (c *LogCapture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Contains reports whether any captured line contains substr.
func (c *LogCapture) Contains(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range c.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// CaptureLogs redirects monitoring output into a LogCapture for the duration
// of the test.
func CaptureLogs(t *testing.T) *LogCapture {
	t.Helper()
	c := &LogCapture{}
	restore := monitoring.SetLogger(func(format string, v ...interface{}) {
		c.mu.Lock()
		c.lines = append(c.lines, fmt.Sprintf(format, v...))
		c.mu.Unlock()
	})
	t.Cleanup(restore)
	return c
}

package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	var lines []string
	restore := SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	defer restore()

	Logf("spawned %d vehicles", 3)
	Warnf("destroy actor %d: %s", 42, "not found")

	assert.Equal(t, []string{
		"spawned 3 vehicles",
		"Warning: destroy actor 42: not found",
	}, lines)
}

func TestSetLoggerNilIsNoop(t *testing.T) {
	restore := SetLogger(nil)
	defer restore()

	assert.NotPanics(t, func() {
		Logf("dropped")
		Warnf("dropped")
	})
}

func TestSetLoggerRestore(t *testing.T) {
	outer := 0
	restoreOuter := SetLogger(func(string, ...interface{}) { outer++ })
	defer restoreOuter()

	inner := 0
	restoreInner := SetLogger(func(string, ...interface{}) { inner++ })
	Logf("to inner")
	restoreInner()
	Logf("to outer")

	assert.Equal(t, 1, inner)
	assert.Equal(t, 1, outer)
}

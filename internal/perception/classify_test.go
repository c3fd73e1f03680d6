package perception

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/objdetect/internal/simulator"
	"github.com/banshee-data/objdetect/internal/taxonomy"
)

func TestClassifyFrame(t *testing.T) {
	reg := taxonomy.Default()
	points := []simulator.SemanticPoint{
		{X: 3, Y: 4, Z: 0, Tag: 7},
		{X: 0, Y: 0, Z: -2, Tag: 10},
		{X: 1, Y: 2, Z: 2, Tag: 42},
	}

	dets := ClassifyFrame(reg, points)
	require.Len(t, dets, 3)

	assert.Equal(t, "Roads", dets[0].Class)
	assert.InDelta(t, 5.0, dets[0].Distance, 1e-12)
	assert.Equal(t, "Vehicles", dets[1].Class)
	assert.InDelta(t, 2.0, dets[1].Distance, 1e-12)
	assert.Equal(t, "Unknown(42)", dets[2].Class)
	assert.InDelta(t, 3.0, dets[2].Distance, 1e-12)
	assert.Equal(t, points[2], dets[2].Point)
}

func TestClassifyEmptyFrame(t *testing.T) {
	dets := ClassifyFrame(taxonomy.Default(), nil)
	assert.Empty(t, dets)
}

func TestRangeIsNotClamped(t *testing.T) {
	far := simulator.SemanticPoint{X: 1e6}
	assert.Equal(t, 1e6, Range(far))

	nan := simulator.SemanticPoint{X: math.NaN()}
	assert.True(t, math.IsNaN(Range(nan)))
}

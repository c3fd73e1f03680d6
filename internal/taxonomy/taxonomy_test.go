package taxonomy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	assert.Equal(t, 23, r.Len())
	assert.Equal(t, "Roads", r.Classify(7))
	assert.Equal(t, "Vehicles", r.Classify(10))
	assert.Equal(t, "None", r.Classify(0))
	assert.Equal(t, "Terrain", r.Classify(22))
	assert.Equal(t, "TrafficSigns", r.Classify(12))
	_, ok := r.TagOf("TrafficsSigns")
	assert.False(t, ok, "the misspelled legacy name is not registered")

	names := r.Names()
	require.Len(t, names, 23)
	assert.Equal(t, "None", names[0])
	assert.Equal(t, "Terrain", names[22])
}

func TestClassifyUnknownTag(t *testing.T) {
	r := Default()

	tests := []struct {
		tag  Tag
		want string
	}{
		{23, "Unknown(23)"},
		{255, "Unknown(255)"},
		{4294967295, "Unknown(4294967295)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Classify(tt.tag))
			// deterministic across calls
			assert.Equal(t, r.Classify(tt.tag), r.Classify(tt.tag))
		})
	}
}

func TestTagOf(t *testing.T) {
	r := Default()

	tag, ok := r.TagOf("Pedestrians")
	assert.True(t, ok)
	assert.Equal(t, Tag(4), tag)

	_, ok = r.TagOf("Unknown(4)")
	assert.False(t, ok)
}

func TestNewRejectsBadMappings(t *testing.T) {
	tests := []struct {
		name    string
		classes map[string]Tag
	}{
		{"empty", map[string]Tag{}},
		{"empty name", map[string]Tag{"": 1}},
		{"duplicate tag", map[string]Tag{"Roads": 7, "Streets": 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.classes)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTaxonomy))
		})
	}
}

func TestNewCustomRegistry(t *testing.T) {
	r, err := New(map[string]Tag{"Car": 1, "Truck": 2})
	require.NoError(t, err)

	assert.Equal(t, "Car", r.Classify(1))
	assert.Equal(t, "Unknown(10)", r.Classify(10))
	assert.Equal(t, []string{"Car", "Truck"}, r.Names())
}

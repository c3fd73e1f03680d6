// Package taxonomy maps simulator semantic tags to class names.
package taxonomy

import (
	"errors"
	"fmt"
	"sort"
)

// Tag is the integer semantic code the simulator attaches to every LiDAR return.
type Tag uint32

// ErrInvalidTaxonomy is returned by New when a mapping cannot be inverted.
var ErrInvalidTaxonomy = errors.New("invalid taxonomy")

// defaultClasses is the simulator's stock semantic segmentation palette.
var defaultClasses = map[string]Tag{
	"None":        0,
	"Buildings":   1,
	"Fences":      2,
	"Other":       3,
	"Pedestrians": 4,
	"Poles":       5,
	"RoadLines":   6,
	"Roads":       7,
	"Sidewalks":   8,
	"Vegetation":  9,
	"Vehicles":    10,
	"Wall":        11,
	// Object logs from earlier clients spelled this "TrafficsSigns"; consumers
	// reading both generations of summary logs should accept either.
	"TrafficSigns": 12,
	"Sky":          13,
	"Ground":       14,
	"Bridge":       15,
	"RailTrack":    16,
	"GuardRail":    17,
	"TrafficLight": 18,
	"Static":       19,
	"Dynamic":      20,
	"Water":        21,
	"Terrain":      22,
}

// Registry is a read-only bidirectional tag/name mapping. It is safe for
// concurrent use because nothing mutates it after construction.
type Registry struct {
	names map[Tag]string
	tags  map[string]Tag
}

// Default returns the stock 23-class registry.
func Default() *Registry {
	r, err := New(defaultClasses)
	if err != nil {
		panic(err)
	}
	return r
}

// New builds a registry from class name to tag. Every name must be non-empty
// and every tag unique.
func New(classes map[string]Tag) (*Registry, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: no classes", ErrInvalidTaxonomy)
	}
	r := &Registry{
		names: make(map[Tag]string, len(classes)),
		tags:  make(map[string]Tag, len(classes)),
	}
	for name, tag := range classes {
		if name == "" {
			return nil, fmt.Errorf("%w: empty class name for tag %d", ErrInvalidTaxonomy, tag)
		}
		if prev, dup := r.names[tag]; dup {
			return nil, fmt.Errorf("%w: tag %d used by both %q and %q", ErrInvalidTaxonomy, tag, prev, name)
		}
		r.names[tag] = name
		r.tags[name] = tag
	}
	return r, nil
}

// Classify returns the class name for tag. Tags outside the registry resolve
// to "Unknown(<tag>)" so no return is ever dropped.
func (r *Registry) Classify(tag Tag) string {
	if name, ok := r.names[tag]; ok {
		return name
	}
	return UnknownName(tag)
}

// UnknownName is the synthesized class name for an unregistered tag.
func UnknownName(tag Tag) string {
	return fmt.Sprintf("Unknown(%d)", tag)
}

// TagOf returns the tag registered for name.
func (r *Registry) TagOf(name string) (Tag, bool) {
	tag, ok := r.tags[name]
	return tag, ok
}

// Len returns the number of registered classes.
func (r *Registry) Len() int {
	return len(r.names)
}

// Names returns the registered class names ordered by tag.
func (r *Registry) Names() []string {
	tags := make([]Tag, 0, len(r.names))
	for tag := range r.names {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	names := make([]string, len(tags))
	for i, tag := range tags {
		names[i] = r.names[tag]
	}
	return names
}

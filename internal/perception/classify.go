package perception

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/objdetect/internal/simulator"
	"github.com/banshee-data/objdetect/internal/taxonomy"
)

// Detection is one classified return.
type Detection struct {
	Point    simulator.SemanticPoint
	Class    string
	Distance float64 // metres from the sensor origin
}

// ClassifyFrame resolves the class of every point and its radial distance from
// the sensor. The output is index-aligned with points; an empty input yields an
// empty result.
func ClassifyFrame(reg *taxonomy.Registry, points []simulator.SemanticPoint) []Detection {
	dets := make([]Detection, len(points))
	for i, p := range points {
		dets[i] = Detection{
			Point:    p,
			Class:    reg.Classify(p.Tag),
			Distance: Range(p),
		}
	}
	return dets
}

// Range returns the Euclidean distance of p from the sensor origin.
func Range(p simulator.SemanticPoint) float64 {
	return r3.Norm(r3.Vec{X: p.X, Y: p.Y, Z: p.Z})
}

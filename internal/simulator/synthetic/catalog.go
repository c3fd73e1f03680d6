package synthetic

import (
	"path"
	"strings"

	"github.com/banshee-data/objdetect/internal/simulator"
)

// SemanticLidarID is the blueprint id of the semantic ray-cast LiDAR.
const SemanticLidarID = "sensor.lidar.ray_cast_semantic"

var vehicleColors = []string{"255,255,255", "0,0,0", "200,20,20", "17,37,103", "120,120,120"}

func vehicle(id string, extra map[string]simulator.Attribute) simulator.Blueprint {
	attrs := map[string]simulator.Attribute{
		"role_name": {Value: ""},
		"color":     {Value: vehicleColors[0], Recommended: vehicleColors},
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return simulator.Blueprint{ID: id, Attributes: attrs}
}

// DefaultCatalog returns a small vehicle and sensor catalog.
func DefaultCatalog() []simulator.Blueprint {
	riders := simulator.Attribute{Value: "0", Recommended: []string{"0", "1", "2"}}
	return []simulator.Blueprint{
		vehicle("vehicle.tesla.model3", nil),
		vehicle("vehicle.audi.a2", nil),
		vehicle("vehicle.lincoln.mkz_2020", nil),
		vehicle("vehicle.mini.cooper_s", nil),
		vehicle("vehicle.nissan.patrol", nil),
		vehicle("vehicle.carlamotors.carlacola", nil),
		vehicle("vehicle.harley-davidson.low_rider", map[string]simulator.Attribute{"driver_id": riders}),
		{
			ID: SemanticLidarID,
			Attributes: map[string]simulator.Attribute{
				"role_name":          {Value: ""},
				"channels":           {Value: "32"},
				"points_per_second":  {Value: "56000"},
				"rotation_frequency": {Value: "10"},
				"range":              {Value: "10"},
				"upper_fov":          {Value: "10"},
				"lower_fov":          {Value: "-30"},
			},
		},
	}
}

// matchBlueprint reports whether id matches the wildcard filter, either as a
// whole or against one of its dot-separated parts ("model3" selects
// "vehicle.tesla.model3").
func matchBlueprint(filter, id string) bool {
	if ok, _ := path.Match(filter, id); ok {
		return true
	}
	for _, part := range strings.Split(id, ".") {
		if ok, _ := path.Match(filter, part); ok {
			return true
		}
	}
	return false
}

func isSensor(id string) bool {
	return strings.HasPrefix(id, "sensor.")
}

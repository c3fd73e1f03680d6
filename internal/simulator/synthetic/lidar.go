package synthetic

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/objdetect/internal/simulator"
	"github.com/banshee-data/objdetect/internal/taxonomy"
)

// Stock palette tags used by the synthetic scene.
const (
	tagBuildings    taxonomy.Tag = 1
	tagPoles        taxonomy.Tag = 5
	tagRoadLines    taxonomy.Tag = 6
	tagRoads        taxonomy.Tag = 7
	tagSidewalks    taxonomy.Tag = 8
	tagVegetation   taxonomy.Tag = 9
	tagVehicles     taxonomy.Tag = 10
	tagTrafficSigns taxonomy.Tag = 12
	tagTerrain      taxonomy.Tag = 22

	// firstUnknownTag is the first code outside the stock palette.
	firstUnknownTag taxonomy.Tag = 23
)

const (
	laneSpacing   = 15.0
	roadHalfWidth = 3.5
	vehicleRadius = 1.2
	vehicleHeight = 1.5
	listenBuffer  = 4
)

// prop is a vertical cylinder of street furniture.
type prop struct {
	x, y   float64
	radius float64
	height float64
	tag    taxonomy.Tag
}

// streetFurniture places poles, trees, signs and buildings along the
// verges between the lanes of the spawn grid.
func streetFurniture(spawnPoints int) []prop {
	lanes := (spawnPoints + 9) / 10
	var props []prop
	for lane := 0; lane < lanes; lane++ {
		y := float64(lane)*laneSpacing + laneSpacing/2
		for i := 0; i < 20; i++ {
			x := float64(i)*10 + 5
			switch i % 4 {
			case 0:
				props = append(props, prop{x: x, y: y, radius: 0.15, height: 6, tag: tagPoles})
			case 1:
				props = append(props, prop{x: x, y: y, radius: 1.0, height: 4, tag: tagVegetation})
			case 2:
				props = append(props, prop{x: x, y: y, radius: 0.3, height: 2.5, tag: tagTrafficSigns})
			case 3:
				props = append(props, prop{x: x, y: y + 1, radius: 2.5, height: 12, tag: tagBuildings})
			}
		}
	}
	return props
}

// listener delivers frames to a callback on its own goroutine.
type listener struct {
	frames chan simulator.SensorFrame
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func newListener(cb simulator.FrameCallback) *listener {
	l := &listener{
		frames: make(chan simulator.SensorFrame, listenBuffer),
		done:   make(chan struct{}),
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.done:
				return
			case f := <-l.frames:
				cb(f)
			}
		}
	}()
	return l
}

func (l *listener) deliver(f simulator.SensorFrame) {
	select {
	case l.frames <- f:
	case <-l.done:
	}
}

// stop unregisters the callback and waits for an in-flight call to return.
// It must not be called from inside the callback.
func (l *listener) stop() {
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
}

// Listen implements simulator.Simulator. Frames are produced on every tick
// while the sensor is alive; the callback runs on a dedicated goroutine.
func (w *World) Listen(ctx context.Context, sensor simulator.ActorID, cb simulator.FrameCallback) (func(), error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	a, ok := w.actors[sensor]
	if !ok {
		w.mu.Unlock()
		return nil, fmt.Errorf("actor %d: %w", sensor, simulator.ErrActorNotFound)
	}
	if !isSensor(a.bp.ID) {
		w.mu.Unlock()
		return nil, fmt.Errorf("actor %d (%s): %w", sensor, a.bp.ID, simulator.ErrNotSensor)
	}
	if _, exists := w.listeners[sensor]; exists {
		w.mu.Unlock()
		return nil, fmt.Errorf("actor %d is already listening", sensor)
	}
	l := newListener(cb)
	w.listeners[sensor] = l
	w.mu.Unlock()

	unregister := func() {
		w.mu.Lock()
		if w.listeners[sensor] == l {
			delete(w.listeners, sensor)
		}
		w.mu.Unlock()
		l.stop()
	}
	go func() {
		select {
		case <-ctx.Done():
			unregister()
		case <-l.done:
		}
	}()
	return unregister, nil
}

// Close stops every listener and rejects further calls.
func (w *World) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	listeners := w.listeners
	w.listeners = make(map[simulator.ActorID]*listener)
	close(w.tickCh)
	w.mu.Unlock()

	for _, l := range listeners {
		l.stop()
	}
	return nil
}

// scanLocked casts one sweep worth of rays from the sensor and returns the
// hits in the sensor's frame.
func (w *World) scanLocked(sensor *actor) []simulator.SemanticPoint {
	origin, ok := w.worldTransformLocked(sensor.id)
	if !ok {
		return nil
	}
	pps := attrFloat(sensor.bp, "points_per_second", 56000)
	freq := attrFloat(sensor.bp, "rotation_frequency", 10)
	maxRange := attrFloat(sensor.bp, "range", 10)
	upper := sensor.bp.Get("upper_fov")
	lower := sensor.bp.Get("lower_fov")
	upperFOV, lowerFOV := 10.0, -30.0
	if v, ok := parseFloat(upper); ok {
		upperFOV = v
	}
	if v, ok := parseFloat(lower); ok {
		lowerFOV = v
	}

	n := int(pps / freq)
	yaw := origin.Rotation.Yaw * math.Pi / 180
	cosYaw, sinYaw := math.Cos(yaw), math.Sin(yaw)
	o := origin.Location

	var points []simulator.SemanticPoint
	for i := 0; i < n; i++ {
		az := w.rng.Float64() * 2 * math.Pi
		el := (lowerFOV + w.rng.Float64()*(upperFOV-lowerFOV)) * math.Pi / 180
		d := simulator.Location{
			X: math.Cos(el) * math.Cos(az),
			Y: math.Cos(el) * math.Sin(az),
			Z: math.Sin(el),
		}
		t, tag, hit := w.castLocked(o, d, maxRange, sensor.parent)
		if !hit {
			continue
		}
		if w.cfg.UnknownTagRate > 0 && w.rng.Float64() < w.cfg.UnknownTagRate {
			tag = firstUnknownTag + taxonomy.Tag(w.rng.Intn(3))
		}
		// World delta rotated into the sensor frame.
		dx, dy := d.X*t, d.Y*t
		points = append(points, simulator.SemanticPoint{
			X:   dx*cosYaw + dy*sinYaw,
			Y:   -dx*sinYaw + dy*cosYaw,
			Z:   d.Z * t,
			Tag: tag,
		})
	}
	return points
}

// castLocked returns the distance to the nearest surface along the unit ray
// o+t*d within maxRange, ignoring the vehicle the sensor is mounted on.
func (w *World) castLocked(o, d simulator.Location, maxRange float64, mount simulator.ActorID) (float64, taxonomy.Tag, bool) {
	best := math.Inf(1)
	var tag taxonomy.Tag

	if d.Z < 0 {
		t := -o.Z / d.Z
		if t >= 0 && t < best {
			best = t
			tag = groundTag(o.X+d.X*t, o.Y+d.Y*t)
		}
	}
	for _, p := range w.props {
		if t, ok := hitCylinder(o, d, p.x, p.y, p.radius, p.height); ok && t < best {
			best, tag = t, p.tag
		}
	}
	for id, a := range w.actors {
		if id == mount || a.parent != 0 || isSensor(a.bp.ID) {
			continue
		}
		loc := a.transform.Location
		if t, ok := hitCylinder(o, d, loc.X, loc.Y, vehicleRadius, loc.Z+vehicleHeight); ok && t < best {
			best, tag = t, tagVehicles
		}
	}
	if best > maxRange {
		return 0, 0, false
	}
	return best, tag, true
}

// groundTag classifies a ground hit by its distance from the nearest lane
// centre line.
func groundTag(x, y float64) taxonomy.Tag {
	off := math.Abs(math.Mod(y, laneSpacing))
	if off > laneSpacing/2 {
		off = laneSpacing - off
	}
	switch {
	case off < 0.1:
		return tagRoadLines
	case off < roadHalfWidth:
		return tagRoads
	case off < roadHalfWidth+2:
		return tagSidewalks
	default:
		return tagTerrain
	}
}

// hitCylinder intersects the ray with a vertical cylinder standing on the
// ground at (cx, cy).
func hitCylinder(o, d simulator.Location, cx, cy, radius, height float64) (float64, bool) {
	ox, oy := o.X-cx, o.Y-cy
	a := d.X*d.X + d.Y*d.Y
	if a == 0 {
		return 0, false
	}
	b := 2 * (ox*d.X + oy*d.Y)
	c := ox*ox + oy*oy - radius*radius
	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	t := (-b - sq) / (2 * a)
	if t < 0 {
		t = (-b + sq) / (2 * a)
	}
	if t < 0 {
		return 0, false
	}
	z := o.Z + d.Z*t
	if z < 0 || z > height {
		return 0, false
	}
	return t, true
}

// Package synthetic is an in-process world that implements
// simulator.Simulator. It spawns and moves actors, ticks in synchronous or
// asynchronous mode, and produces semantic LiDAR frames for listening
// sensors, which makes the whole ingestion path runnable without an external
// simulator.
package synthetic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/objdetect/internal/monitoring"
	"github.com/banshee-data/objdetect/internal/simulator"
	"github.com/banshee-data/objdetect/internal/timeutil"
)

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("synthetic world is closed")

// Config configures a World. Zero values select the defaults.
type Config struct {
	SpawnPoints        int           // number of spawn points on the grid (default 100)
	Synchronous        bool          // the client drives ticks with Tick
	FixedDelta         time.Duration // simulated time per tick (default 50ms)
	Catalog            []simulator.Blueprint
	Seed               int64
	TrafficManagerPort int     // default 8000
	UnknownTagRate     float64 // fraction of returns with a tag outside the stock palette
	VehicleSpeed       float64 // autopilot speed in m/s (default 8)
	Clock              timeutil.Clock
}

type actor struct {
	id        simulator.ActorID
	bp        simulator.Blueprint
	transform simulator.Transform // world placement, or offset from parent when attached
	parent    simulator.ActorID
	autopilot bool
}

// World is a synthetic simulator.
type World struct {
	cfg     Config
	episode uuid.UUID

	mu          sync.Mutex
	rng         *rand.Rand
	closed      bool
	nextID      simulator.ActorID
	actors      map[simulator.ActorID]*actor
	spawnPoints []simulator.Transform
	props       []prop
	frame       uint64
	simTime     time.Duration
	tickCh      chan struct{} // closed and replaced on every tick
	listeners   map[simulator.ActorID]*listener
	spectator   simulator.Transform
	speedDiff   float64
}

// New creates a World.
func New(cfg Config) *World {
	if cfg.SpawnPoints <= 0 {
		cfg.SpawnPoints = 100
	}
	if cfg.FixedDelta <= 0 {
		cfg.FixedDelta = 50 * time.Millisecond
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.TrafficManagerPort == 0 {
		cfg.TrafficManagerPort = 8000
	}
	if cfg.VehicleSpeed == 0 {
		cfg.VehicleSpeed = 8
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	w := &World{
		cfg:         cfg,
		episode:     uuid.New(),
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		nextID:      1,
		actors:      make(map[simulator.ActorID]*actor),
		spawnPoints: gridSpawnPoints(cfg.SpawnPoints),
		props:       streetFurniture(cfg.SpawnPoints),
		tickCh:      make(chan struct{}),
		listeners:   make(map[simulator.ActorID]*listener),
	}
	monitoring.Logf("Synthetic world episode %s: %d spawn points, synchronous=%v", w.episode, cfg.SpawnPoints, cfg.Synchronous)
	return w
}

// gridSpawnPoints lays spawn points on lanes 15 m apart, 20 m between slots,
// alternating direction per lane.
func gridSpawnPoints(n int) []simulator.Transform {
	points := make([]simulator.Transform, n)
	for i := range points {
		lane := i / 10
		yaw := 0.0
		if lane%2 == 1 {
			yaw = 180
		}
		points[i] = simulator.Transform{
			Location: simulator.Location{X: float64(i%10) * 20, Y: float64(lane) * 15, Z: 0.5},
			Rotation: simulator.Rotation{Yaw: yaw},
		}
	}
	return points
}

// Episode identifies this world instance.
func (w *World) Episode() string { return w.episode.String() }

// Frame returns the current frame number.
func (w *World) Frame() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frame
}

// ActorCount returns the number of live actors.
func (w *World) ActorCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.actors)
}

// Alive reports whether id is a live actor.
func (w *World) Alive(id simulator.ActorID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.actors[id]
	return ok
}

// Attribute returns the value of a blueprint attribute of a live actor.
func (w *World) Attribute(id simulator.ActorID, name string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.actors[id]
	if !ok || !a.bp.HasAttribute(name) {
		return "", false
	}
	return a.bp.Get(name), true
}

// Autopilot reports whether a live actor is driven by the traffic manager.
func (w *World) Autopilot(id simulator.ActorID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.actors[id]
	return ok && a.autopilot
}

// Spectator returns the last spectator transform.
func (w *World) Spectator() simulator.Transform {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.spectator
}

// Blueprints implements simulator.Simulator.
func (w *World) Blueprints(_ context.Context, filter string) ([]simulator.Blueprint, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	var out []simulator.Blueprint
	for _, bp := range w.cfg.Catalog {
		if matchBlueprint(filter, bp.ID) {
			out = append(out, bp.Clone())
		}
	}
	return out, nil
}

// SpawnPoints implements simulator.Simulator.
func (w *World) SpawnPoints(context.Context) ([]simulator.Transform, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	return append([]simulator.Transform(nil), w.spawnPoints...), nil
}

// SpawnActor implements simulator.Simulator.
func (w *World) SpawnActor(_ context.Context, bp simulator.Blueprint, at simulator.Transform, parent simulator.ActorID) (simulator.ActorID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}
	return w.spawnLocked(bp, at, parent)
}

func (w *World) spawnLocked(bp simulator.Blueprint, at simulator.Transform, parent simulator.ActorID) (simulator.ActorID, error) {
	if !w.inCatalog(bp.ID) {
		return 0, fmt.Errorf("%w: %q", simulator.ErrBlueprintNotFound, bp.ID)
	}
	if parent != 0 {
		if _, ok := w.actors[parent]; !ok {
			return 0, fmt.Errorf("parent %d: %w", parent, simulator.ErrActorNotFound)
		}
	} else if w.occupiedLocked(at.Location) {
		return 0, simulator.ErrSpawnCollision
	}

	id := w.nextID
	w.nextID++
	w.actors[id] = &actor{id: id, bp: bp.Clone(), transform: at, parent: parent}
	return id, nil
}

func (w *World) inCatalog(id string) bool {
	for _, bp := range w.cfg.Catalog {
		if bp.ID == id {
			return true
		}
	}
	return false
}

// occupiedLocked reports whether a free-standing actor is within 2 m of loc.
func (w *World) occupiedLocked(loc simulator.Location) bool {
	for _, a := range w.actors {
		if a.parent != 0 {
			continue
		}
		dx, dy := a.transform.Location.X-loc.X, a.transform.Location.Y-loc.Y
		if dx*dx+dy*dy < 4 {
			return true
		}
	}
	return false
}

// SetAutopilot implements simulator.Simulator.
func (w *World) SetAutopilot(_ context.Context, id simulator.ActorID, enabled bool, tmPort int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.setAutopilotLocked(id, enabled, tmPort)
}

func (w *World) setAutopilotLocked(id simulator.ActorID, enabled bool, tmPort int) error {
	a, ok := w.actors[id]
	if !ok {
		return fmt.Errorf("actor %d: %w", id, simulator.ErrActorNotFound)
	}
	if tmPort != w.cfg.TrafficManagerPort {
		return fmt.Errorf("no traffic manager on port %d", tmPort)
	}
	if isSensor(a.bp.ID) {
		return fmt.Errorf("actor %d is not a vehicle", id)
	}
	a.autopilot = enabled
	return nil
}

// DestroyActor implements simulator.Simulator.
func (w *World) DestroyActor(_ context.Context, id simulator.ActorID) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	l, err := w.destroyLocked(id)
	w.mu.Unlock()
	if l != nil {
		l.stop()
	}
	return err
}

// destroyLocked removes the actor and detaches its listener, which the caller
// must stop after releasing w.mu.
func (w *World) destroyLocked(id simulator.ActorID) (*listener, error) {
	if _, ok := w.actors[id]; !ok {
		return nil, fmt.Errorf("actor %d: %w", id, simulator.ErrActorNotFound)
	}
	delete(w.actors, id)
	l := w.listeners[id]
	delete(w.listeners, id)
	return l, nil
}

// ApplyBatchSync implements simulator.Simulator.
func (w *World) ApplyBatchSync(_ context.Context, cmds []simulator.Command, tick bool) ([]simulator.CommandResponse, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	responses, stopped := w.applyLocked(cmds)
	w.mu.Unlock()

	for _, l := range stopped {
		l.stop()
	}
	if tick && w.cfg.Synchronous {
		w.advance()
	}
	return responses, nil
}

// ApplyBatch implements simulator.Simulator.
func (w *World) ApplyBatch(ctx context.Context, cmds []simulator.Command) error {
	_, err := w.ApplyBatchSync(ctx, cmds, false)
	return err
}

func (w *World) applyLocked(cmds []simulator.Command) ([]simulator.CommandResponse, []*listener) {
	responses := make([]simulator.CommandResponse, len(cmds))
	var stopped []*listener
	for i, cmd := range cmds {
		switch cmd.Kind {
		case simulator.CommandSpawn:
			id, err := w.spawnLocked(cmd.Blueprint, cmd.Transform, cmd.Parent)
			if err != nil {
				responses[i].Error = err.Error()
				continue
			}
			responses[i].ActorID = id
			if cmd.Then != nil {
				if err := w.setAutopilotLocked(id, cmd.Then.Enabled, cmd.Then.TrafficManagerPort); err != nil {
					// A failed follow-up rolls the spawn back.
					delete(w.actors, id)
					responses[i] = simulator.CommandResponse{Error: err.Error()}
				}
			}
		case simulator.CommandDestroy:
			l, err := w.destroyLocked(cmd.Target)
			if err != nil {
				responses[i].Error = err.Error()
			}
			if l != nil {
				stopped = append(stopped, l)
			}
		default:
			responses[i].Error = fmt.Sprintf("unsupported command %v", cmd.Kind)
		}
	}
	return responses, stopped
}

// ActorTransform implements simulator.Simulator.
func (w *World) ActorTransform(_ context.Context, id simulator.ActorID) (simulator.Transform, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return simulator.Transform{}, ErrClosed
	}
	t, ok := w.worldTransformLocked(id)
	if !ok {
		return simulator.Transform{}, fmt.Errorf("actor %d: %w", id, simulator.ErrActorNotFound)
	}
	return t, nil
}

func (w *World) worldTransformLocked(id simulator.ActorID) (simulator.Transform, bool) {
	a, ok := w.actors[id]
	if !ok {
		return simulator.Transform{}, false
	}
	if a.parent == 0 {
		return a.transform, true
	}
	p, ok := w.worldTransformLocked(a.parent)
	if !ok {
		return simulator.Transform{}, false
	}
	t := p
	t.Location.X += a.transform.Location.X
	t.Location.Y += a.transform.Location.Y
	t.Location.Z += a.transform.Location.Z
	return t, true
}

// SetSpectatorTransform implements simulator.Simulator.
func (w *World) SetSpectatorTransform(_ context.Context, t simulator.Transform) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.spectator = t
	return nil
}

// Settings implements simulator.Simulator.
func (w *World) Settings(context.Context) (simulator.Settings, error) {
	return simulator.Settings{
		SynchronousMode:   w.cfg.Synchronous,
		FixedDeltaSeconds: w.cfg.FixedDelta.Seconds(),
	}, nil
}

// TrafficManagerPort implements simulator.Simulator.
func (w *World) TrafficManagerPort(context.Context) (int, error) {
	return w.cfg.TrafficManagerPort, nil
}

// SetGlobalSpeedDifference implements simulator.Simulator.
func (w *World) SetGlobalSpeedDifference(_ context.Context, percent float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.speedDiff = percent
	return nil
}

// Tick implements simulator.Simulator. It is only valid in synchronous mode.
func (w *World) Tick(ctx context.Context) (uint64, error) {
	if !w.cfg.Synchronous {
		return 0, errors.New("tick requires synchronous mode")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	frame := w.advance()
	if frame == 0 {
		return 0, ErrClosed
	}
	return frame, nil
}

// WaitForTick implements simulator.Simulator.
func (w *World) WaitForTick(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return 0, ErrClosed
	}
	ch := w.tickCh
	w.mu.Unlock()

	select {
	case <-ch:
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.closed {
			return 0, ErrClosed
		}
		return w.frame, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Run drives an asynchronous world at FixedDelta until ctx is done or the
// world is closed. It returns immediately in synchronous mode.
func (w *World) Run(ctx context.Context) error {
	if w.cfg.Synchronous {
		return nil
	}
	ticker := w.cfg.Clock.NewTicker(w.cfg.FixedDelta)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			w.mu.Lock()
			closed := w.closed
			w.mu.Unlock()
			if closed {
				return ErrClosed
			}
			w.advance()
		}
	}
}

// advance moves the world forward one step, wakes tick waiters and hands a
// frame to every listening sensor.
func (w *World) advance() uint64 {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return 0
	}
	w.frame++
	w.simTime += w.cfg.FixedDelta
	w.moveLocked(w.cfg.FixedDelta.Seconds())

	type delivery struct {
		l     *listener
		frame simulator.SensorFrame
	}
	var out []delivery
	for id, l := range w.listeners {
		sensor := w.actors[id]
		if sensor == nil {
			continue
		}
		out = append(out, delivery{l: l, frame: simulator.SensorFrame{
			Frame:     w.frame,
			Timestamp: w.simTime,
			Points:    w.scanLocked(sensor),
		}})
	}
	close(w.tickCh)
	w.tickCh = make(chan struct{})
	frame := w.frame
	w.mu.Unlock()

	for _, d := range out {
		d.l.deliver(d.frame)
	}
	return frame
}

// moveLocked drives autopilot vehicles along their heading, wrapping at the
// edges of the map.
func (w *World) moveLocked(dt float64) {
	speed := w.cfg.VehicleSpeed * (1 - w.speedDiff/100)
	const size = 200.0
	for _, a := range w.actors {
		if !a.autopilot || a.parent != 0 {
			continue
		}
		f := a.transform.Forward()
		a.transform.Location.X = math.Mod(a.transform.Location.X+f.X*speed*dt+size, size)
		a.transform.Location.Y = math.Mod(a.transform.Location.Y+f.Y*speed*dt+size, size)
	}
}

func attrFloat(bp simulator.Blueprint, name string, def float64) float64 {
	v, ok := parseFloat(bp.Get(name))
	if !ok || v <= 0 {
		return def
	}
	return v
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

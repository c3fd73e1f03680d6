package simulator

import (
	"context"
	"errors"
)

var (
	// ErrActorNotFound is returned when an actor id is not alive in the world.
	ErrActorNotFound = errors.New("actor not found")
	// ErrSpawnCollision is returned when the spawn location is occupied.
	ErrSpawnCollision = errors.New("spawn failed because of collision at spawn position")
	// ErrBlueprintNotFound is returned for an unknown blueprint id.
	ErrBlueprintNotFound = errors.New("blueprint not found")
	// ErrNotSensor is returned when Listen targets a non-sensor actor.
	ErrNotSensor = errors.New("actor is not a sensor")
)

// FrameCallback receives sensor frames. The simulator invokes it on its own
// goroutine, possibly while the caller's main loop is mid-tick.
type FrameCallback func(SensorFrame)

// Simulator is the world API the ingestion core and the fleet code depend on.
type Simulator interface {
	// Blueprints returns the catalog entries whose id matches the wildcard filter.
	Blueprints(ctx context.Context, filter string) ([]Blueprint, error)
	// SpawnPoints returns the map's recommended spawn transforms.
	SpawnPoints(ctx context.Context) ([]Transform, error)
	// SpawnActor creates a single actor, optionally attached to parent.
	SpawnActor(ctx context.Context, bp Blueprint, at Transform, parent ActorID) (ActorID, error)
	// SetAutopilot hands the vehicle to the traffic manager on tmPort.
	SetAutopilot(ctx context.Context, id ActorID, enabled bool, tmPort int) error
	// DestroyActor removes a single actor.
	DestroyActor(ctx context.Context, id ActorID) error
	// ApplyBatchSync executes cmds as one submission and returns one response
	// per command, in order. When tick is set a world tick follows the batch.
	ApplyBatchSync(ctx context.Context, cmds []Command, tick bool) ([]CommandResponse, error)
	// ApplyBatch executes cmds without reporting per-command results.
	ApplyBatch(ctx context.Context, cmds []Command) error
	// ActorTransform returns the current placement of an actor.
	ActorTransform(ctx context.Context, id ActorID) (Transform, error)
	// SetSpectatorTransform moves the viewer camera.
	SetSpectatorTransform(ctx context.Context, t Transform) error
	// Settings returns the world settings.
	Settings(ctx context.Context) (Settings, error)
	// TrafficManagerPort returns the port autopilot commands must reference.
	TrafficManagerPort(ctx context.Context) (int, error)
	// SetGlobalSpeedDifference sets the traffic manager's speed offset in percent.
	SetGlobalSpeedDifference(ctx context.Context, percent float64) error
	// Tick advances a synchronous world by one step and returns the frame number.
	Tick(ctx context.Context) (uint64, error)
	// WaitForTick blocks until an asynchronous world produces its next frame.
	WaitForTick(ctx context.Context) (uint64, error)
	// Listen registers cb for the sensor's frames. The returned stop function
	// unregisters it and is safe to call more than once.
	Listen(ctx context.Context, sensor ActorID, cb FrameCallback) (stop func(), err error)
	// Close releases the connection.
	Close() error
}

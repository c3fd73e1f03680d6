package simulator

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/objdetect/internal/taxonomy"
)

// ActorID identifies an actor inside the simulator. Zero is never a valid actor.
type ActorID uint32

// Location is a position in metres in the simulator's world frame.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotation is an orientation in degrees.
type Rotation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Transform is a placement in the world.
type Transform struct {
	Location Location `json:"location"`
	Rotation Rotation `json:"rotation"`
}

// Forward returns the unit vector the transform is facing.
func (t Transform) Forward() Location {
	pitch := t.Rotation.Pitch * math.Pi / 180
	yaw := t.Rotation.Yaw * math.Pi / 180
	return Location{
		X: math.Cos(pitch) * math.Cos(yaw),
		Y: math.Cos(pitch) * math.Sin(yaw),
		Z: math.Sin(pitch),
	}
}

// Attribute is a settable blueprint attribute and the values the simulator
// recommends for it.
type Attribute struct {
	Value       string   `json:"value"`
	Recommended []string `json:"recommended,omitempty"`
}

// Blueprint describes an actor that can be spawned.
type Blueprint struct {
	ID         string               `json:"id"`
	Attributes map[string]Attribute `json:"attributes,omitempty"`
}

// HasAttribute reports whether the blueprint exposes attribute name.
func (b Blueprint) HasAttribute(name string) bool {
	_, ok := b.Attributes[name]
	return ok
}

// Set assigns value to attribute name, creating it if needed.
func (b *Blueprint) Set(name, value string) {
	if b.Attributes == nil {
		b.Attributes = make(map[string]Attribute)
	}
	attr := b.Attributes[name]
	attr.Value = value
	b.Attributes[name] = attr
}

// Get returns the current value of attribute name.
func (b Blueprint) Get(name string) string {
	return b.Attributes[name].Value
}

// Clone returns a deep copy so per-request attribute changes do not leak back
// into the catalog.
func (b Blueprint) Clone() Blueprint {
	c := Blueprint{ID: b.ID}
	if b.Attributes != nil {
		c.Attributes = make(map[string]Attribute, len(b.Attributes))
		for k, v := range b.Attributes {
			v.Recommended = append([]string(nil), v.Recommended...)
			c.Attributes[k] = v
		}
	}
	return c
}

// CommandKind selects the operation a batch Command performs.
type CommandKind int

const (
	// CommandSpawn creates an actor from Blueprint at Transform.
	CommandSpawn CommandKind = iota
	// CommandDestroy destroys Target.
	CommandDestroy
)

func (k CommandKind) String() string {
	switch k {
	case CommandSpawn:
		return "spawn"
	case CommandDestroy:
		return "destroy"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Autopilot is a follow-up bound to the actor created by a spawn command.
type Autopilot struct {
	Enabled            bool `json:"enabled"`
	TrafficManagerPort int  `json:"traffic_manager_port"`
}

// Command is one entry of a batch submitted with ApplyBatch or ApplyBatchSync.
type Command struct {
	Kind      CommandKind `json:"kind"`
	Blueprint Blueprint   `json:"blueprint,omitempty"`
	Transform Transform   `json:"transform,omitempty"`
	Parent    ActorID     `json:"parent,omitempty"`
	Target    ActorID     `json:"target,omitempty"`

	// Then is applied to the freshly spawned actor when the spawn succeeds.
	Then *Autopilot `json:"then,omitempty"`
}

// SpawnCommand builds a spawn command.
func SpawnCommand(bp Blueprint, at Transform) Command {
	return Command{Kind: CommandSpawn, Blueprint: bp, Transform: at}
}

// DestroyCommand builds a destroy command.
func DestroyCommand(id ActorID) Command {
	return Command{Kind: CommandDestroy, Target: id}
}

// CommandResponse is the per-command result of ApplyBatchSync. A non-empty
// Error marks the command as failed; ActorID is set for successful spawns.
type CommandResponse struct {
	ActorID ActorID `json:"actor_id,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Failed reports whether the command was rejected.
func (r CommandResponse) Failed() bool {
	return r.Error != ""
}

// Settings is the subset of world settings the core reads.
type Settings struct {
	SynchronousMode   bool    `json:"synchronous_mode"`
	FixedDeltaSeconds float64 `json:"fixed_delta_seconds"`
}

// SemanticPoint is one semantic LiDAR return in the sensor frame.
type SemanticPoint struct {
	X   float64      `json:"x"`
	Y   float64      `json:"y"`
	Z   float64      `json:"z"`
	Tag taxonomy.Tag `json:"tag"`
}

// SensorFrame is one sample delivered by a listening sensor.
type SensorFrame struct {
	Frame     uint64          `json:"frame"`
	Timestamp time.Duration   `json:"timestamp"` // simulation time since episode start
	Points    []SemanticPoint `json:"points"`
}

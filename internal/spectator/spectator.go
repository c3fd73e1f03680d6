// Package spectator keeps the simulator's viewer camera behind the hero.
package spectator

import (
	"context"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/objdetect/internal/simulator"
)

// Default chase camera placement.
const (
	DefaultDistance = 10.0
	DefaultHeight   = 5.0
	DefaultPitch    = -15.0
)

// Follower positions the spectator relative to a target actor.
type Follower struct {
	Distance float64 // metres behind the target along its forward vector
	Height   float64 // metres above the target
	Pitch    float64 // camera pitch in degrees
}

// NewFollower returns a Follower with the default chase placement.
func NewFollower() Follower {
	return Follower{Distance: DefaultDistance, Height: DefaultHeight, Pitch: DefaultPitch}
}

// Place returns the camera transform for a target at t.
func (f Follower) Place(t simulator.Transform) simulator.Transform {
	fwd := t.Forward()
	loc := r3.Sub(
		r3.Vec{X: t.Location.X, Y: t.Location.Y, Z: t.Location.Z},
		r3.Scale(f.Distance, r3.Vec{X: fwd.X, Y: fwd.Y, Z: fwd.Z}),
	)
	loc = r3.Add(loc, r3.Vec{Z: f.Height})
	return simulator.Transform{
		Location: simulator.Location{X: loc.X, Y: loc.Y, Z: loc.Z},
		Rotation: simulator.Rotation{Pitch: f.Pitch, Yaw: t.Rotation.Yaw},
	}
}

// Follow reads the target's transform and moves the spectator behind it.
func (f Follower) Follow(ctx context.Context, sim simulator.Simulator, target simulator.ActorID) error {
	t, err := sim.ActorTransform(ctx, target)
	if err != nil {
		return err
	}
	return sim.SetSpectatorTransform(ctx, f.Place(t))
}

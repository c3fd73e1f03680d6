// Package lifecycle tracks every actor created during a run and tears all of
// them down exactly once, whichever way the run ends.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/banshee-data/objdetect/internal/monitoring"
	"github.com/banshee-data/objdetect/internal/simulator"
)

// ErrShuttingDown is returned when an actor is registered after Shutdown
// started. The actor has already been handed to the simulator for destruction.
var ErrShuttingDown = errors.New("lifecycle guardian is shutting down")

// State is the guardian's lifecycle state.
type State int

const (
	// Active accepts registrations.
	Active State = iota
	// ShuttingDown is terminal.
	ShuttingDown
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "shutting-down"
}

// Role describes why an actor exists.
type Role string

const (
	RoleHero   Role = "hero"
	RoleSensor Role = "sensor"
	RoleFleet  Role = "fleet"
)

// Destroyer is the part of the simulator the guardian needs.
type Destroyer interface {
	ApplyBatch(ctx context.Context, cmds []simulator.Command) error
	DestroyActor(ctx context.Context, id simulator.ActorID) error
}

type tracked struct {
	id   simulator.ActorID
	role Role
}

// Report summarises one teardown.
type Report struct {
	FleetDestroyed int   // fleet actors submitted in the destroy batch
	Destroyed      int   // individually destroyed actors
	Failed         int   // individual destroys that failed
	Err            error // combined suppressed errors, for logging only
}

// Guardian is the per-run actor registry.
type Guardian struct {
	sim Destroyer

	mu     sync.Mutex
	state  State
	fleet  []simulator.ActorID
	others []tracked
	report Report
	done   chan struct{} // closed once the first Shutdown has finished
}

// NewGuardian creates an Active guardian.
func NewGuardian(sim Destroyer) *Guardian {
	return &Guardian{sim: sim, done: make(chan struct{})}
}

// State returns the current state.
func (g *Guardian) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Track registers a single actor such as the hero vehicle or its sensor.
// Fleet vehicles should go through TrackFleet so they are torn down in one batch.
func (g *Guardian) Track(ctx context.Context, id simulator.ActorID, role Role) error {
	g.mu.Lock()
	if g.state == Active {
		if role == RoleFleet {
			g.fleet = append(g.fleet, id)
		} else {
			g.others = append(g.others, tracked{id: id, role: role})
		}
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	if err := g.sim.DestroyActor(ctx, id); err != nil {
		monitoring.Warnf("failed to destroy late %s actor %d: %v", role, id, err)
	}
	return fmt.Errorf("%w: %s actor %d", ErrShuttingDown, role, id)
}

// TrackFleet registers fleet vehicles.
func (g *Guardian) TrackFleet(ids ...simulator.ActorID) error {
	g.mu.Lock()
	if g.state == Active {
		g.fleet = append(g.fleet, ids...)
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	if err := g.sim.ApplyBatch(context.Background(), destroyCommands(ids)); err != nil {
		monitoring.Warnf("failed to destroy %d late fleet actors: %v", len(ids), err)
	}
	return fmt.Errorf("%w: %d fleet actors", ErrShuttingDown, len(ids))
}

// Tracked returns how many actors are currently registered.
func (g *Guardian) Tracked() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.fleet) + len(g.others)
}

// Shutdown moves the guardian to ShuttingDown and destroys every tracked
// actor: the fleet as one best-effort batch, then each remaining actor
// individually, most recently registered first. Failures are logged and
// suppressed so one stuck actor cannot block the rest. Only the first call
// does any work; later calls wait for it to finish (or for ctx) and return
// its report.
func (g *Guardian) Shutdown(ctx context.Context) Report {
	g.mu.Lock()
	if g.state == ShuttingDown {
		g.mu.Unlock()
		select {
		case <-g.done:
		case <-ctx.Done():
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.report
	}
	g.state = ShuttingDown
	fleet, others := g.fleet, g.others
	g.fleet, g.others = nil, nil
	g.mu.Unlock()

	var report Report
	if len(fleet) > 0 {
		monitoring.Logf("Destroying %d fleet vehicles", len(fleet))
		err := safely(func() error { return g.sim.ApplyBatch(ctx, destroyCommands(fleet)) })
		if err != nil {
			report.Err = multierr.Append(report.Err, fmt.Errorf("fleet destroy batch: %w", err))
		}
		report.FleetDestroyed = len(fleet)
	}

	for i := len(others) - 1; i >= 0; i-- {
		a := others[i]
		err := safely(func() error { return g.sim.DestroyActor(ctx, a.id) })
		if err != nil {
			report.Failed++
			report.Err = multierr.Append(report.Err, fmt.Errorf("destroy %s actor %d: %w", a.role, a.id, err))
			continue
		}
		report.Destroyed++
	}

	if report.Err != nil {
		for _, err := range multierr.Errors(report.Err) {
			monitoring.Warnf("teardown: %v", err)
		}
	}
	monitoring.Logf("Teardown complete: %d fleet, %d destroyed, %d failed", report.FleetDestroyed, report.Destroyed, report.Failed)

	g.mu.Lock()
	g.report = report
	g.mu.Unlock()
	close(g.done)
	return report
}

// safely runs f, converting a panic in the simulator client into an error.
func safely(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f()
}

func destroyCommands(ids []simulator.ActorID) []simulator.Command {
	cmds := make([]simulator.Command, len(ids))
	for i, id := range ids {
		cmds[i] = simulator.DestroyCommand(id)
	}
	return cmds
}

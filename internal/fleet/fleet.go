// Package fleet spawns a batch of autopilot vehicles in a single simulator
// submission and reports one outcome per request.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/objdetect/internal/monitoring"
	"github.com/banshee-data/objdetect/internal/simulator"
)

const (
	// DefaultFilter selects every vehicle blueprint.
	DefaultFilter = "vehicle.*"
	// RoleAutopilot is the role_name given to fleet vehicles.
	RoleAutopilot = "autopilot"
)

var (
	// ErrNoBlueprints is returned when the catalog filter matches nothing.
	ErrNoBlueprints = errors.New("no vehicle blueprints found")
	// ErrNoSpawnPoints is returned when the map has no spawn points.
	ErrNoSpawnPoints = errors.New("no spawn points in the map")
	// errNoResponse marks a request the simulator did not answer.
	errNoResponse = errors.New("no response from simulator")
)

// randomized lists the blueprint attributes that get a random recommended
// value per vehicle.
var randomized = []string{"color", "driver_id"}

// Request is a single vehicle to create.
type Request struct {
	Blueprint          simulator.Blueprint
	Transform          simulator.Transform
	Role               string
	TrafficManagerPort int
}

// Outcome is the result of one Request. Exactly one of ActorID or Err is set.
type Outcome struct {
	Request Request
	ActorID simulator.ActorID
	Err     error
}

// OK reports whether the actor was created.
func (o Outcome) OK() bool { return o.Err == nil }

// Tracker records actors that must be destroyed at shutdown.
type Tracker interface {
	TrackFleet(ids ...simulator.ActorID) error
}

// Config configures a Provisioner.
type Config struct {
	Filter  string     // blueprint wildcard, DefaultFilter when empty
	Rand    *rand.Rand // nil seeds from the wall clock
	Tracker Tracker    // optional
}

// Provisioner builds and submits spawn batches.
type Provisioner struct {
	sim     simulator.Simulator
	filter  string
	tracker Tracker

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(sim simulator.Simulator, cfg Config) *Provisioner {
	filter := cfg.Filter
	if filter == "" {
		filter = DefaultFilter
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Provisioner{
		sim:     sim,
		filter:  filter,
		tracker: cfg.Tracker,
		rng:     rng,
	}
}

// Batch is the result of SpawnBatch.
type Batch struct {
	Outcomes []Outcome
}

// Successes returns the created actor ids in request order.
func (b *Batch) Successes() []simulator.ActorID {
	var ids []simulator.ActorID
	for _, o := range b.Outcomes {
		if o.OK() {
			ids = append(ids, o.ActorID)
		}
	}
	return ids
}

// Failures returns the rejected requests in request order.
func (b *Batch) Failures() []Outcome {
	var failed []Outcome
	for _, o := range b.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// SpawnBatch builds up to n requests and submits them as one batch.
func (p *Provisioner) SpawnBatch(ctx context.Context, n int) (*Batch, error) {
	reqs, err := p.BuildRequests(ctx, n)
	if err != nil {
		return nil, err
	}
	outcomes, err := p.Submit(ctx, reqs)
	if err != nil {
		return nil, err
	}
	return &Batch{Outcomes: outcomes}, nil
}

// BuildRequests picks a random blueprint and a distinct shuffled spawn point
// for each vehicle. When n exceeds the available spawn points the batch is
// capped at their count.
func (p *Provisioner) BuildRequests(ctx context.Context, n int) ([]Request, error) {
	if n <= 0 {
		return nil, nil
	}

	catalog, err := p.sim.Blueprints(ctx, p.filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list blueprints: %w", err)
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("%w for filter %q", ErrNoBlueprints, p.filter)
	}

	points, err := p.sim.SpawnPoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list spawn points: %w", err)
	}
	if len(points) == 0 {
		return nil, ErrNoSpawnPoints
	}

	tmPort, err := p.sim.TrafficManagerPort(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get traffic manager port: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	points = append([]simulator.Transform(nil), points...)
	p.rng.Shuffle(len(points), func(i, j int) { points[i], points[j] = points[j], points[i] })
	if n > len(points) {
		n = len(points)
	}

	reqs := make([]Request, n)
	for i := range reqs {
		bp := catalog[p.rng.Intn(len(catalog))].Clone()
		for _, name := range randomized {
			if attr, ok := bp.Attributes[name]; ok && len(attr.Recommended) > 0 {
				bp.Set(name, attr.Recommended[p.rng.Intn(len(attr.Recommended))])
			}
		}
		bp.Set("role_name", RoleAutopilot)
		reqs[i] = Request{
			Blueprint:          bp,
			Transform:          points[i],
			Role:               RoleAutopilot,
			TrafficManagerPort: tmPort,
		}
	}
	return reqs, nil
}

// Submit sends reqs as one synchronous batch, each spawn followed by an
// autopilot hand-off bound to the new actor. The returned outcomes are
// index-paired with reqs and always have the same length; per-request
// failures are logged and never retried. Only a failure of the submission
// itself returns an error.
func (p *Provisioner) Submit(ctx context.Context, reqs []Request) ([]Outcome, error) {
	if len(reqs) == 0 {
		return []Outcome{}, nil
	}

	cmds := make([]simulator.Command, len(reqs))
	for i, r := range reqs {
		cmd := simulator.SpawnCommand(r.Blueprint, r.Transform)
		cmd.Then = &simulator.Autopilot{Enabled: true, TrafficManagerPort: r.TrafficManagerPort}
		cmds[i] = cmd
	}

	responses, err := p.sim.ApplyBatchSync(ctx, cmds, true)
	if err != nil {
		return nil, fmt.Errorf("failed to submit spawn batch: %w", err)
	}
	if len(responses) != len(reqs) {
		monitoring.Warnf("spawn batch returned %d responses for %d requests", len(responses), len(reqs))
	}

	outcomes := make([]Outcome, len(reqs))
	var created []simulator.ActorID
	for i, r := range reqs {
		outcomes[i].Request = r
		switch {
		case i >= len(responses):
			outcomes[i].Err = errNoResponse
		case responses[i].Failed():
			outcomes[i].Err = errors.New(responses[i].Error)
		case responses[i].ActorID == 0:
			outcomes[i].Err = errNoResponse
		default:
			outcomes[i].ActorID = responses[i].ActorID
			created = append(created, responses[i].ActorID)
		}
		if outcomes[i].Err != nil {
			monitoring.Warnf("spawn vehicle error (%s): %v", r.Blueprint.ID, outcomes[i].Err)
		}
	}

	if p.tracker != nil && len(created) > 0 {
		if err := p.tracker.TrackFleet(created...); err != nil {
			monitoring.Warnf("fleet of %d vehicles spawned after shutdown began: %v", len(created), err)
		}
	}
	return outcomes, nil
}

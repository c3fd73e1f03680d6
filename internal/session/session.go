// Package session runs one ingestion session against a simulator: it spawns
// the hero, its LiDAR and a fleet of autopilot vehicles, streams the LiDAR
// frames into the CSV logs, and tears every actor down when the session ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/banshee-data/objdetect/internal/config"
	"github.com/banshee-data/objdetect/internal/fleet"
	"github.com/banshee-data/objdetect/internal/lifecycle"
	"github.com/banshee-data/objdetect/internal/monitoring"
	"github.com/banshee-data/objdetect/internal/perception"
	"github.com/banshee-data/objdetect/internal/recorder"
	"github.com/banshee-data/objdetect/internal/simulator"
	"github.com/banshee-data/objdetect/internal/spectator"
	"github.com/banshee-data/objdetect/internal/timeutil"
)

// SemanticLidar is the blueprint of the semantic ray-cast LiDAR.
const SemanticLidar = "sensor.lidar.ray_cast_semantic"

// ErrNoLidar is returned when the simulator has no semantic LiDAR blueprint.
var ErrNoLidar = errors.New("no semantic lidar blueprint")

// Options tunes a session beyond the static configuration.
type Options struct {
	Clock    timeutil.Clock // defaults to the wall clock
	Rand     *rand.Rand     // hero fallback and fleet shuffling
	MaxTicks uint64         // stop after this many ticks; zero runs until ctx is done
}

// Result describes a finished session.
type Result struct {
	RunID           string
	Hero            simulator.ActorID
	Sensor          simulator.ActorID
	FleetRequested  int
	FleetSpawned    int
	Synchronous     bool
	Ticks           uint64
	FramesSubmitted uint64
	RawRows         uint64
	SummaryRows     uint64
	Teardown        lifecycle.Report
}

type session struct {
	cfg   *config.Config
	sim   simulator.Simulator
	opts  Options
	res   *Result
	guard *lifecycle.Guardian
	rec   *recorder.Recorder

	ingestor   *perception.Ingestor
	stopListen func()
}

// Run executes one session. Setup failures return an error before the main
// loop; cancellation of ctx ends the session normally. Every actor created
// along the way is destroyed before Run returns, whatever the exit path.
func Run(ctx context.Context, cfg *config.Config, sim simulator.Simulator, opts Options) (res *Result, err error) {
	if cfg == nil {
		cfg = config.Empty()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(opts.Clock.Now().UnixNano()))
	}

	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:   cfg,
		sim:   sim,
		opts:  opts,
		res:   &Result{RunID: uuid.NewString(), FleetRequested: cfg.GetVehicles()},
		guard: lifecycle.NewGuardian(sim),
	}
	monitoring.Logf("Session %s starting", s.res.RunID)

	s.rec, err = recorder.Open(
		recorder.Paths{Raw: cfg.GetRawLog(), Summary: cfg.GetSummaryLog()},
		recorder.Options{Sync: cfg.GetFsync()},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open logs: %w", err)
	}

	pipeline := perception.NewPipeline(perception.PipelineConfig{
		Registry:      reg,
		TopK:          cfg.GetTopK(),
		Raw:           s.rec.Raw,
		Summary:       s.rec.Summary,
		Stats:         perception.NewStats(opts.Clock.Now()),
		LogDetections: cfg.GetLogDetections(),
	})
	s.ingestor = perception.NewIngestor(pipeline, opts.Clock, cfg.GetQueueSize())

	defer s.teardown(ctx)
	err = s.guarded(func() error {
		// Actors created on the simulator side must always reach the guardian,
		// so setup ignores cancellation and the loop observes it instead.
		if err := s.setup(context.WithoutCancel(ctx)); err != nil {
			if ctx.Err() != nil {
				monitoring.Warnf("setup interrupted: %v", err)
				monitoring.Logf("Interrupted. Cleaning up...")
				return nil
			}
			return err
		}
		return s.loop(ctx, pipeline.Stats())
	})
	return s.res, err
}

// guarded runs f, turning a panic into an error so teardown still happens.
func (s *session) guarded(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session %s panicked: %v", s.res.RunID, r)
		}
	}()
	return f()
}

func (s *session) setup(ctx context.Context) error {
	if err := s.sim.SetGlobalSpeedDifference(ctx, 0); err != nil {
		monitoring.Warnf("failed to set traffic manager speed difference: %v", err)
	}

	points, err := s.sim.SpawnPoints(ctx)
	if err != nil {
		return fmt.Errorf("failed to list spawn points: %w", err)
	}
	if len(points) == 0 {
		return fleet.ErrNoSpawnPoints
	}
	heroBP, err := s.heroBlueprint(ctx)
	if err != nil {
		return err
	}
	s.res.Hero, err = s.sim.SpawnActor(ctx, heroBP, points[0], 0)
	if err != nil {
		return fmt.Errorf("failed to spawn hero vehicle: %w", err)
	}
	if err := s.guard.Track(ctx, s.res.Hero, lifecycle.RoleHero); err != nil {
		return err
	}
	monitoring.Logf("Spawned hero vehicle id=%d (%s)", s.res.Hero, heroBP.ID)

	tmPort, err := s.sim.TrafficManagerPort(ctx)
	if err != nil {
		return fmt.Errorf("failed to get traffic manager port: %w", err)
	}
	if err := s.sim.SetAutopilot(ctx, s.res.Hero, true, tmPort); err != nil {
		monitoring.Warnf("failed to enable hero autopilot: %v", err)
	}

	monitoring.Logf("Spawning %d other vehicles...", s.cfg.GetVehicles())
	prov := fleet.NewProvisioner(s.sim, fleet.Config{
		Filter:  s.cfg.GetVehicleFilter(),
		Rand:    s.opts.Rand,
		Tracker: s.guard,
	})
	batch, err := prov.SpawnBatch(ctx, s.cfg.GetVehicles())
	if err != nil {
		return err
	}
	s.res.FleetSpawned = len(batch.Successes())
	monitoring.Logf("Spawned vehicles count: %d", s.res.FleetSpawned)

	if err := s.attachLidar(ctx); err != nil {
		return err
	}

	follower := spectator.NewFollower()
	if err := follower.Follow(ctx, s.sim, s.res.Hero); err != nil {
		monitoring.Warnf("failed to position spectator: %v", err)
	}

	s.stopListen, err = s.sim.Listen(ctx, s.res.Sensor, s.ingestor.Callback())
	if err != nil {
		return fmt.Errorf("failed to listen to lidar %d: %w", s.res.Sensor, err)
	}
	return nil
}

// heroBlueprint picks the first blueprint matching the hero filter, falling
// back to a random fleet vehicle.
func (s *session) heroBlueprint(ctx context.Context) (simulator.Blueprint, error) {
	bps, err := s.sim.Blueprints(ctx, s.cfg.GetHeroFilter())
	if err != nil {
		return simulator.Blueprint{}, fmt.Errorf("failed to list hero blueprints: %w", err)
	}
	if len(bps) > 0 {
		bp := bps[0]
		bp.Set("role_name", "hero")
		return bp, nil
	}

	bps, err = s.sim.Blueprints(ctx, s.cfg.GetVehicleFilter())
	if err != nil {
		return simulator.Blueprint{}, fmt.Errorf("failed to list vehicle blueprints: %w", err)
	}
	if len(bps) == 0 {
		return simulator.Blueprint{}, fmt.Errorf("%w for hero", fleet.ErrNoBlueprints)
	}
	monitoring.Logf("Hero model %q not found; using random vehicle for hero.", s.cfg.GetHeroFilter())
	bp := bps[s.opts.Rand.Intn(len(bps))]
	bp.Set("role_name", "hero")
	return bp, nil
}

func (s *session) attachLidar(ctx context.Context) error {
	bps, err := s.sim.Blueprints(ctx, SemanticLidar)
	if err != nil {
		return fmt.Errorf("failed to list lidar blueprints: %w", err)
	}
	if len(bps) == 0 {
		return ErrNoLidar
	}
	bp := bps[0]
	bp.Set("channels", strconv.Itoa(s.cfg.GetLidarChannels()))
	bp.Set("points_per_second", strconv.Itoa(s.cfg.GetLidarPointsPerSecond()))
	bp.Set("rotation_frequency", strconv.FormatFloat(s.cfg.GetLidarRotationFrequency(), 'f', -1, 64))
	bp.Set("range", strconv.FormatFloat(s.cfg.GetLidarRange(), 'f', -1, 64))

	mount := simulator.Transform{Location: simulator.Location{Z: s.cfg.GetLidarMountHeight()}}
	s.res.Sensor, err = s.sim.SpawnActor(ctx, bp, mount, s.res.Hero)
	if err != nil {
		return fmt.Errorf("failed to attach lidar: %w", err)
	}
	if err := s.guard.Track(ctx, s.res.Sensor, lifecycle.RoleSensor); err != nil {
		return err
	}
	monitoring.Logf("LiDAR %d attached to hero vehicle.", s.res.Sensor)
	return nil
}

// loop advances the world until ctx is done or MaxTicks is reached. A tick
// already in progress always completes.
func (s *session) loop(ctx context.Context, stats *perception.Stats) error {
	settings, err := s.sim.Settings(ctx)
	if err != nil {
		if ctx.Err() != nil {
			monitoring.Logf("Interrupted. Cleaning up...")
			return nil
		}
		return fmt.Errorf("failed to read world settings: %w", err)
	}
	s.res.Synchronous = settings.SynchronousMode

	limit := rate.Inf
	if pause := s.cfg.GetTickPause(); pause > 0 {
		limit = rate.Every(pause)
	}
	limiter := rate.NewLimiter(limit, 1)

	var statsC <-chan time.Time
	if interval := s.cfg.GetStatsInterval(); interval > 0 {
		ticker := s.opts.Clock.NewTicker(interval)
		defer ticker.Stop()
		statsC = ticker.C()
	}

	follower := spectator.NewFollower()
	monitoring.Logf("Simulation running (synchronous=%v). Press Ctrl+C to stop.", s.res.Synchronous)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("Interrupted. Cleaning up...")
			return nil
		default:
		}

		if s.res.Synchronous {
			_, err = s.sim.Tick(ctx)
		} else {
			_, err = s.sim.WaitForTick(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			return fmt.Errorf("tick %d: %w", s.res.Ticks+1, err)
		}
		s.res.Ticks++

		if err := follower.Follow(ctx, s.sim, s.res.Hero); err != nil {
			monitoring.Warnf("failed to follow hero: %v", err)
		}

		select {
		case <-statsC:
			stats.LogStats(s.opts.Clock.Now())
		default:
		}

		if s.opts.MaxTicks > 0 && s.res.Ticks >= s.opts.MaxTicks {
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			continue
		}
	}
}

// teardown stops the sensor stream, destroys every tracked actor, drains the
// ingest queue and closes the logs. It uses a fresh context so an interrupt
// cannot cut it short.
func (s *session) teardown(ctx context.Context) {
	if s.stopListen != nil {
		s.stopListen()
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.GetShutdownTimeout())
	defer cancel()
	monitoring.Logf("Destroying actors...")
	s.res.Teardown = s.guard.Shutdown(shutdownCtx)

	s.ingestor.Close()
	s.res.FramesSubmitted = s.ingestor.Submitted()
	s.res.RawRows = s.rec.Raw.Rows()
	s.res.SummaryRows = s.rec.Summary.Rows()
	if err := s.rec.Close(); err != nil {
		monitoring.Warnf("failed to close logs: %v", err)
	}
	monitoring.Logf("Session %s done: %d ticks, %d frames, %d points logged", s.res.RunID, s.res.Ticks, s.res.FramesSubmitted, s.res.RawRows)
}

package session

import (
	"context"
	"sync"

	"github.com/banshee-data/objdetect/internal/simulator"
)

// spySim records what the session asks of the simulator and injects faults.
type spySim struct {
	simulator.Simulator

	mu            sync.Mutex
	hero          *simulator.Blueprint
	lidar         *simulator.Blueprint
	lidarMount    simulator.Transform
	heroAutopilot bool
	speedDiff     *float64
	ticks         int

	noSpawnPoints bool
	tickErr       error
	panicOnTick   int
	cancelAfter   int
	cancel        context.CancelFunc

	// cancelOnBatch cancels the run while the fleet batch is in flight and
	// fails the call the way a remote simulator would if it saw the cancel.
	cancelOnBatch bool
	batchCtxErr   error
	lidarErr      error
}

func (s *spySim) ApplyBatchSync(ctx context.Context, cmds []simulator.Command, tick bool) ([]simulator.CommandResponse, error) {
	if s.cancelOnBatch {
		s.cancel()
	}
	s.mu.Lock()
	s.batchCtxErr = ctx.Err()
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Simulator.ApplyBatchSync(ctx, cmds, tick)
}

func (s *spySim) Blueprints(ctx context.Context, filter string) ([]simulator.Blueprint, error) {
	if filter == SemanticLidar && s.lidarErr != nil {
		return nil, s.lidarErr
	}
	return s.Simulator.Blueprints(ctx, filter)
}

func (s *spySim) SpawnPoints(ctx context.Context) ([]simulator.Transform, error) {
	if s.noSpawnPoints {
		return nil, nil
	}
	return s.Simulator.SpawnPoints(ctx)
}

func (s *spySim) SpawnActor(ctx context.Context, bp simulator.Blueprint, at simulator.Transform, parent simulator.ActorID) (simulator.ActorID, error) {
	id, err := s.Simulator.SpawnActor(ctx, bp, at, parent)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		c := bp.Clone()
		if parent == 0 && s.hero == nil {
			s.hero = &c
		} else if parent != 0 {
			s.lidar = &c
			s.lidarMount = at
		}
	}
	return id, err
}

func (s *spySim) SetAutopilot(ctx context.Context, id simulator.ActorID, enabled bool, tmPort int) error {
	s.mu.Lock()
	s.heroAutopilot = enabled
	s.mu.Unlock()
	return s.Simulator.SetAutopilot(ctx, id, enabled, tmPort)
}

func (s *spySim) SetGlobalSpeedDifference(ctx context.Context, percent float64) error {
	s.mu.Lock()
	s.speedDiff = &percent
	s.mu.Unlock()
	return s.Simulator.SetGlobalSpeedDifference(ctx, percent)
}

func (s *spySim) Tick(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	s.ticks++
	n := s.ticks
	s.mu.Unlock()

	if s.tickErr != nil {
		return 0, s.tickErr
	}
	if s.panicOnTick > 0 && n == s.panicOnTick {
		panic("tick exploded")
	}
	frame, err := s.Simulator.Tick(ctx)
	if s.cancelAfter > 0 && n == s.cancelAfter {
		s.cancel()
	}
	return frame, err
}

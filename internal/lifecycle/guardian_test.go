package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/objdetect/internal/simulator"
	"github.com/banshee-data/objdetect/internal/testutil"
)

type fakeDestroyer struct {
	mu         sync.Mutex
	batches    [][]simulator.ActorID
	destroyed  []simulator.ActorID
	batchErr   error
	failFor    map[simulator.ActorID]error
	panicFor   simulator.ActorID
	destroyCnt int
}

func (f *fakeDestroyer) ApplyBatch(_ context.Context, cmds []simulator.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []simulator.ActorID
	for _, c := range cmds {
		if c.Kind != simulator.CommandDestroy {
			return fmt.Errorf("unexpected command %v", c.Kind)
		}
		ids = append(ids, c.Target)
	}
	f.batches = append(f.batches, ids)
	return f.batchErr
}

func (f *fakeDestroyer) DestroyActor(_ context.Context, id simulator.ActorID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyCnt++
	if id == f.panicFor && id != 0 {
		panic("rpc client exploded")
	}
	if err := f.failFor[id]; err != nil {
		return err
	}
	f.destroyed = append(f.destroyed, id)
	return nil
}

func TestShutdownOrder(t *testing.T) {
	testutil.CaptureLogs(t)
	ctx := context.Background()
	sim := &fakeDestroyer{}
	g := NewGuardian(sim)

	require.NoError(t, g.Track(ctx, 1, RoleHero))
	require.NoError(t, g.TrackFleet(10, 11, 12))
	require.NoError(t, g.Track(ctx, 2, RoleSensor))
	require.NoError(t, g.Track(ctx, 13, RoleFleet))
	assert.Equal(t, 6, g.Tracked())

	report := g.Shutdown(ctx)

	assert.Equal(t, [][]simulator.ActorID{{10, 11, 12, 13}}, sim.batches)
	assert.Equal(t, []simulator.ActorID{2, 1}, sim.destroyed, "sensor goes before its hero")
	assert.Equal(t, Report{FleetDestroyed: 4, Destroyed: 2}, report)
	assert.Equal(t, ShuttingDown, g.State())
	assert.Zero(t, g.Tracked())
}

func TestShutdownIsIdempotent(t *testing.T) {
	testutil.CaptureLogs(t)
	ctx := context.Background()
	sim := &fakeDestroyer{}
	g := NewGuardian(sim)
	require.NoError(t, g.Track(ctx, 1, RoleHero))
	require.NoError(t, g.TrackFleet(5))

	first := g.Shutdown(ctx)
	second := g.Shutdown(ctx)

	assert.Equal(t, first, second)
	assert.Len(t, sim.batches, 1)
	assert.Equal(t, 1, sim.destroyCnt)
}

// gatedDestroyer blocks individual destroys until release is closed.
type gatedDestroyer struct {
	fakeDestroyer
	entered chan struct{}
	release chan struct{}
}

func (g *gatedDestroyer) DestroyActor(ctx context.Context, id simulator.ActorID) error {
	close(g.entered)
	<-g.release
	return g.fakeDestroyer.DestroyActor(ctx, id)
}

func TestConcurrentShutdownWaitsForFirst(t *testing.T) {
	testutil.CaptureLogs(t)
	ctx := context.Background()
	sim := &gatedDestroyer{entered: make(chan struct{}), release: make(chan struct{})}
	g := NewGuardian(sim)
	require.NoError(t, g.Track(ctx, 1, RoleHero))

	first := make(chan Report, 1)
	go func() { first <- g.Shutdown(ctx) }()
	<-sim.entered

	second := make(chan Report, 1)
	go func() { second <- g.Shutdown(ctx) }()

	select {
	case r := <-second:
		t.Fatalf("second Shutdown returned %+v before teardown finished", r)
	case <-time.After(50 * time.Millisecond):
	}

	close(sim.release)
	want := Report{Destroyed: 1}
	assert.Equal(t, want, <-first)
	assert.Equal(t, want, <-second)
}

func TestConcurrentShutdownHonoursContext(t *testing.T) {
	testutil.CaptureLogs(t)
	sim := &gatedDestroyer{entered: make(chan struct{}), release: make(chan struct{})}
	defer close(sim.release)
	g := NewGuardian(sim)
	require.NoError(t, g.Track(context.Background(), 1, RoleHero))

	go g.Shutdown(context.Background())
	<-sim.entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, Report{}, g.Shutdown(ctx), "gives up waiting once ctx is done")
}

func TestShutdownEmptyRegistry(t *testing.T) {
	testutil.CaptureLogs(t)
	sim := &fakeDestroyer{}
	g := NewGuardian(sim)

	report := g.Shutdown(context.Background())
	assert.Equal(t, Report{}, report)
	assert.Empty(t, sim.batches)
	assert.Zero(t, sim.destroyCnt)

	g.Shutdown(context.Background())
	assert.Zero(t, sim.destroyCnt)
}

func TestShutdownIsolatesFailures(t *testing.T) {
	logs := testutil.CaptureLogs(t)
	ctx := context.Background()
	sim := &fakeDestroyer{
		batchErr: errors.New("batch rejected"),
		failFor:  map[simulator.ActorID]error{2: simulator.ErrActorNotFound},
		panicFor: 3,
	}
	g := NewGuardian(sim)
	require.NoError(t, g.TrackFleet(20, 21))
	require.NoError(t, g.Track(ctx, 1, RoleHero))
	require.NoError(t, g.Track(ctx, 2, RoleSensor))
	require.NoError(t, g.Track(ctx, 3, RoleSensor))
	require.NoError(t, g.Track(ctx, 4, RoleSensor))

	var report Report
	require.NotPanics(t, func() { report = g.Shutdown(ctx) })

	assert.Equal(t, []simulator.ActorID{4, 1}, sim.destroyed)
	assert.Equal(t, 2, report.Destroyed)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 2, report.FleetDestroyed)
	require.Error(t, report.Err)
	assert.True(t, errors.Is(report.Err, simulator.ErrActorNotFound))

	var warnings int
	for _, line := range logs.Lines() {
		if len(line) > 8 && line[:8] == "Warning:" {
			warnings++
		}
	}
	assert.Equal(t, 3, warnings)
}

func TestTrackAfterShutdownDestroysLateActor(t *testing.T) {
	testutil.CaptureLogs(t)
	ctx := context.Background()
	sim := &fakeDestroyer{}
	g := NewGuardian(sim)
	g.Shutdown(ctx)

	err := g.Track(ctx, 7, RoleSensor)
	assert.True(t, errors.Is(err, ErrShuttingDown))
	assert.Equal(t, []simulator.ActorID{7}, sim.destroyed)

	err = g.TrackFleet(8, 9)
	assert.True(t, errors.Is(err, ErrShuttingDown))
	assert.Equal(t, [][]simulator.ActorID{{8, 9}}, sim.batches)
	assert.Zero(t, g.Tracked())
}

func TestConcurrentTrackAndShutdownLeaksNothing(t *testing.T) {
	testutil.CaptureLogs(t)
	ctx := context.Background()
	sim := &fakeDestroyer{}
	g := NewGuardian(sim)

	const n = 200
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id simulator.ActorID) {
			defer wg.Done()
			if id%2 == 0 {
				_ = g.TrackFleet(id)
			} else {
				_ = g.Track(ctx, id, RoleSensor)
			}
		}(simulator.ActorID(i))
		if i == n/2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				g.Shutdown(ctx)
			}()
		}
	}
	wg.Wait()
	g.Shutdown(ctx)

	seen := map[simulator.ActorID]bool{}
	for _, b := range sim.batches {
		for _, id := range b {
			seen[id] = true
		}
	}
	for _, id := range sim.destroyed {
		seen[id] = true
	}
	assert.Len(t, seen, n, "every registered actor must be destroyed exactly once")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "shutting-down", ShuttingDown.String())
}

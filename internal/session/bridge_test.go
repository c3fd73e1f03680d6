package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/objdetect/internal/simulator"
	"github.com/banshee-data/objdetect/internal/simulator/simrpc"
	"github.com/banshee-data/objdetect/internal/simulator/synthetic"
	"github.com/banshee-data/objdetect/internal/testutil"
)

// slowWorld delays batch submissions so a run deadline expires while the
// remote side is still creating actors.
type slowWorld struct {
	*synthetic.World
	delay time.Duration
}

func (w *slowWorld) ApplyBatchSync(ctx context.Context, cmds []simulator.Command, tick bool) ([]simulator.CommandResponse, error) {
	time.Sleep(w.delay)
	return w.World.ApplyBatchSync(ctx, cmds, tick)
}

func TestRunDeadlineDuringRemoteSpawnDoesNotLeak(t *testing.T) {
	testutil.CaptureLogs(t)
	world := syncWorld(t, synthetic.Config{})

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	simrpc.NewServer(&slowWorld{World: world, delay: 300 * time.Millisecond}).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := simrpc.Dial(context.Background(), "passthrough:///bufnet", time.Second,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := Run(ctx, testConfig(t), client, Options{})
	require.NoError(t, err, "an expired run context is a normal exit")
	assert.Positive(t, res.FleetSpawned)
	assert.Equal(t, res.FleetSpawned, res.Teardown.FleetDestroyed)
	assert.Zero(t, res.Ticks)
	assert.Zero(t, world.ActorCount(), "every remotely created actor is destroyed")
}

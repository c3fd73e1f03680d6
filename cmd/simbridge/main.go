// Command simbridge serves an in-process synthetic world over the simrpc
// gRPC bridge so objdetect can be exercised without an external simulator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/banshee-data/objdetect/internal/simulator/simrpc"
	"github.com/banshee-data/objdetect/internal/simulator/synthetic"
	"github.com/banshee-data/objdetect/internal/version"
)

var (
	listen      = flag.String("listen", "127.0.0.1:2000", "gRPC listen address")
	syncMode    = flag.Bool("sync", false, "Run the world in synchronous mode (clients drive ticks)")
	spawnPoints = flag.Int("spawn-points", 100, "Number of spawn points in the synthetic map")
	delta       = flag.Duration("delta", 50*time.Millisecond, "Simulated time per tick")
	unknownRate = flag.Float64("unknown-tag-rate", 0.001, "Fraction of LiDAR returns tagged outside the stock palette")
	seed        = flag.Int64("seed", 0, "Random seed (0 uses the wall clock)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("simbridge"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, *listen); err != nil {
		log.Fatalf("simbridge: %v", err)
	}
}

func serve(ctx context.Context, addr string) error {
	world := synthetic.New(synthetic.Config{
		SpawnPoints:    *spawnPoints,
		Synchronous:    *syncMode,
		FixedDelta:     *delta,
		UnknownTagRate: *unknownRate,
		Seed:           *seed,
	})
	defer world.Close()

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	const maxMsgSize = 16 * 1024 * 1024 // full-resolution frames exceed the 4MB default
	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	)
	simrpc.NewServer(world).Register(srv)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("simbridge: serving episode %s on %s", world.Episode(), lis.Addr())
		return srv.Serve(lis)
	})
	g.Go(func() error {
		err := world.Run(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, synthetic.ErrClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Printf("simbridge: shutting down")
		world.Close()
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			// Open Listen streams only end when their clients go away.
			srv.Stop()
		}
		return nil
	})
	return g.Wait()
}

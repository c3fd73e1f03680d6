package simrpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/objdetect/internal/monitoring"
	"github.com/banshee-data/objdetect/internal/simulator"
)

// DefaultConnectTimeout bounds Dial when the caller passes zero.
const DefaultConnectTimeout = 10 * time.Second

// Client is a simulator.Simulator backed by a remote Server.
type Client struct {
	conn *grpc.ClientConn

	mu      sync.Mutex
	streams map[*clientStream]struct{}
}

var _ simulator.Simulator = (*Client)(nil)

// Dial connects to the server at target and waits up to timeout for it to
// answer. Extra options are appended to the insecure transport default.
func Dial(ctx context.Context, target string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(callCodec),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", target, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.Invoke(pingCtx, method("Ping"), &empty{}, &empty{}, grpc.WaitForReady(true)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to simulator at %s: %w", target, fromStatus(err))
	}
	monitoring.Logf("Connected to simulator at %s", target)
	return &Client{conn: conn, streams: make(map[*clientStream]struct{})}, nil
}

func method(name string) string {
	return "/" + ServiceName + "/" + name
}

func (c *Client) invoke(ctx context.Context, name string, req, resp any) error {
	return fromStatus(c.conn.Invoke(ctx, method(name), req, resp))
}

// Blueprints implements simulator.Simulator.
func (c *Client) Blueprints(ctx context.Context, filter string) ([]simulator.Blueprint, error) {
	var resp blueprintsResponse
	if err := c.invoke(ctx, "Blueprints", &blueprintsRequest{Filter: filter}, &resp); err != nil {
		return nil, err
	}
	return resp.Blueprints, nil
}

// SpawnPoints implements simulator.Simulator.
func (c *Client) SpawnPoints(ctx context.Context) ([]simulator.Transform, error) {
	var resp spawnPointsResponse
	if err := c.invoke(ctx, "SpawnPoints", &empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.Transforms, nil
}

// SpawnActor implements simulator.Simulator.
func (c *Client) SpawnActor(ctx context.Context, bp simulator.Blueprint, at simulator.Transform, parent simulator.ActorID) (simulator.ActorID, error) {
	var resp actorResponse
	req := &spawnActorRequest{Blueprint: bp, Transform: at, Parent: parent}
	if err := c.invoke(ctx, "SpawnActor", req, &resp); err != nil {
		return 0, err
	}
	return resp.ActorID, nil
}

// SetAutopilot implements simulator.Simulator.
func (c *Client) SetAutopilot(ctx context.Context, id simulator.ActorID, enabled bool, tmPort int) error {
	req := &autopilotRequest{ActorID: id, Enabled: enabled, TrafficManagerPort: tmPort}
	return c.invoke(ctx, "SetAutopilot", req, &empty{})
}

// DestroyActor implements simulator.Simulator.
func (c *Client) DestroyActor(ctx context.Context, id simulator.ActorID) error {
	return c.invoke(ctx, "DestroyActor", &actorRequest{ActorID: id}, &empty{})
}

// ApplyBatchSync implements simulator.Simulator.
func (c *Client) ApplyBatchSync(ctx context.Context, cmds []simulator.Command, tick bool) ([]simulator.CommandResponse, error) {
	var resp batchResponse
	if err := c.invoke(ctx, "ApplyBatch", &batchRequest{Commands: cmds, Tick: tick, Sync: true}, &resp); err != nil {
		return nil, err
	}
	return resp.Responses, nil
}

// ApplyBatch implements simulator.Simulator.
func (c *Client) ApplyBatch(ctx context.Context, cmds []simulator.Command) error {
	return c.invoke(ctx, "ApplyBatch", &batchRequest{Commands: cmds}, &batchResponse{})
}

// ActorTransform implements simulator.Simulator.
func (c *Client) ActorTransform(ctx context.Context, id simulator.ActorID) (simulator.Transform, error) {
	var resp transformMessage
	if err := c.invoke(ctx, "ActorTransform", &actorRequest{ActorID: id}, &resp); err != nil {
		return simulator.Transform{}, err
	}
	return resp.Transform, nil
}

// SetSpectatorTransform implements simulator.Simulator.
func (c *Client) SetSpectatorTransform(ctx context.Context, t simulator.Transform) error {
	return c.invoke(ctx, "SetSpectatorTransform", &transformMessage{Transform: t}, &empty{})
}

// Settings implements simulator.Simulator.
func (c *Client) Settings(ctx context.Context) (simulator.Settings, error) {
	var resp simulator.Settings
	err := c.invoke(ctx, "Settings", &empty{}, &resp)
	return resp, err
}

// TrafficManagerPort implements simulator.Simulator.
func (c *Client) TrafficManagerPort(ctx context.Context) (int, error) {
	var resp portResponse
	if err := c.invoke(ctx, "TrafficManagerPort", &empty{}, &resp); err != nil {
		return 0, err
	}
	return resp.Port, nil
}

// SetGlobalSpeedDifference implements simulator.Simulator.
func (c *Client) SetGlobalSpeedDifference(ctx context.Context, percent float64) error {
	return c.invoke(ctx, "SetGlobalSpeedDifference", &speedRequest{Percent: percent}, &empty{})
}

// Tick implements simulator.Simulator.
func (c *Client) Tick(ctx context.Context) (uint64, error) {
	var resp tickResponse
	if err := c.invoke(ctx, "Tick", &empty{}, &resp); err != nil {
		return 0, err
	}
	return resp.Frame, nil
}

// WaitForTick implements simulator.Simulator.
func (c *Client) WaitForTick(ctx context.Context) (uint64, error) {
	var resp tickResponse
	if err := c.invoke(ctx, "WaitForTick", &empty{}, &resp); err != nil {
		return 0, err
	}
	return resp.Frame, nil
}

type clientStream struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *clientStream) stop() {
	s.once.Do(s.cancel)
	<-s.done
}

// Listen implements simulator.Simulator. It returns once the server has
// registered the callback; frames are then delivered on a dedicated
// goroutine until stop is called, ctx is done or the stream breaks.
func (c *Client) Listen(ctx context.Context, sensor simulator.ActorID, cb simulator.FrameCallback) (func(), error) {
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := c.conn.NewStream(streamCtx, &serviceDesc.Streams[0], method("Listen"))
	if err != nil {
		cancel()
		return nil, fromStatus(err)
	}
	if err := stream.SendMsg(&actorRequest{ActorID: sensor}); err != nil {
		cancel()
		return nil, fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, fromStatus(err)
	}
	var ack wireFrame
	if err := stream.RecvMsg(&ack); err != nil {
		cancel()
		return nil, fromStatus(err)
	}

	s := &clientStream{cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.streams[s] = struct{}{}
	c.mu.Unlock()

	go func() {
		defer close(s.done)
		defer func() {
			c.mu.Lock()
			delete(c.streams, s)
			c.mu.Unlock()
		}()
		for {
			var f wireFrame
			if err := stream.RecvMsg(&f); err != nil {
				if streamCtx.Err() == nil {
					monitoring.Warnf("sensor %d stream ended: %v", sensor, fromStatus(err))
				}
				return
			}
			cb(fromWire(&f))
		}
	}()
	return s.stop, nil
}

// Close stops every open stream and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	streams := make([]*clientStream, 0, len(c.streams))
	for s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()

	for _, s := range streams {
		s.stop()
	}
	return c.conn.Close()
}

package simrpc

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/banshee-data/objdetect/internal/monitoring"
	"github.com/banshee-data/objdetect/internal/simulator"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "objdetect.simrpc.Simulator"

// streamBuffer is the number of frames held per Listen stream while the
// client catches up.
const streamBuffer = 4

// simulatorServer is the handler type checked by grpc.RegisterService.
type simulatorServer interface {
	backend() simulator.Simulator
}

// Server exposes a simulator.Simulator over gRPC.
type Server struct {
	sim simulator.Simulator
}

// NewServer wraps sim.
func NewServer(sim simulator.Simulator) *Server {
	return &Server{sim: sim}
}

func (s *Server) backend() simulator.Simulator { return s.sim }

// Register adds the service to a gRPC server.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	reg.RegisterService(&serviceDesc, s)
}

// unary builds a method descriptor that decodes Req, calls fn and maps the
// returned error onto a gRPC status.
func unary[Req, Resp any](name string, fn func(simulator.Simulator, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			sim := srv.(simulatorServer).backend()
			call := func(ctx context.Context, req any) (any, error) {
				resp, err := fn(sim, ctx, req.(*Req))
				if err != nil {
					return nil, toStatus(err)
				}
				return resp, nil
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, call)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*simulatorServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", func(_ simulator.Simulator, _ context.Context, _ *empty) (*empty, error) {
			return &empty{}, nil
		}),
		unary("Blueprints", func(sim simulator.Simulator, ctx context.Context, req *blueprintsRequest) (*blueprintsResponse, error) {
			bps, err := sim.Blueprints(ctx, req.Filter)
			return &blueprintsResponse{Blueprints: bps}, err
		}),
		unary("SpawnPoints", func(sim simulator.Simulator, ctx context.Context, _ *empty) (*spawnPointsResponse, error) {
			points, err := sim.SpawnPoints(ctx)
			return &spawnPointsResponse{Transforms: points}, err
		}),
		unary("SpawnActor", func(sim simulator.Simulator, ctx context.Context, req *spawnActorRequest) (*actorResponse, error) {
			id, err := sim.SpawnActor(ctx, req.Blueprint, req.Transform, req.Parent)
			return &actorResponse{ActorID: id}, err
		}),
		unary("SetAutopilot", func(sim simulator.Simulator, ctx context.Context, req *autopilotRequest) (*empty, error) {
			return &empty{}, sim.SetAutopilot(ctx, req.ActorID, req.Enabled, req.TrafficManagerPort)
		}),
		unary("DestroyActor", func(sim simulator.Simulator, ctx context.Context, req *actorRequest) (*empty, error) {
			return &empty{}, sim.DestroyActor(ctx, req.ActorID)
		}),
		unary("ApplyBatch", func(sim simulator.Simulator, ctx context.Context, req *batchRequest) (*batchResponse, error) {
			if !req.Sync {
				return &batchResponse{}, sim.ApplyBatch(ctx, req.Commands)
			}
			responses, err := sim.ApplyBatchSync(ctx, req.Commands, req.Tick)
			return &batchResponse{Responses: responses}, err
		}),
		unary("ActorTransform", func(sim simulator.Simulator, ctx context.Context, req *actorRequest) (*transformMessage, error) {
			t, err := sim.ActorTransform(ctx, req.ActorID)
			return &transformMessage{Transform: t}, err
		}),
		unary("SetSpectatorTransform", func(sim simulator.Simulator, ctx context.Context, req *transformMessage) (*empty, error) {
			return &empty{}, sim.SetSpectatorTransform(ctx, req.Transform)
		}),
		unary("Settings", func(sim simulator.Simulator, ctx context.Context, _ *empty) (*simulator.Settings, error) {
			settings, err := sim.Settings(ctx)
			return &settings, err
		}),
		unary("TrafficManagerPort", func(sim simulator.Simulator, ctx context.Context, _ *empty) (*portResponse, error) {
			port, err := sim.TrafficManagerPort(ctx)
			return &portResponse{Port: port}, err
		}),
		unary("SetGlobalSpeedDifference", func(sim simulator.Simulator, ctx context.Context, req *speedRequest) (*empty, error) {
			return &empty{}, sim.SetGlobalSpeedDifference(ctx, req.Percent)
		}),
		unary("Tick", func(sim simulator.Simulator, ctx context.Context, _ *empty) (*tickResponse, error) {
			frame, err := sim.Tick(ctx)
			return &tickResponse{Frame: frame}, err
		}),
		unary("WaitForTick", func(sim simulator.Simulator, ctx context.Context, _ *empty) (*tickResponse, error) {
			frame, err := sim.WaitForTick(ctx)
			return &tickResponse{Frame: frame}, err
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Listen",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				req := new(actorRequest)
				if err := stream.RecvMsg(req); err != nil {
					return err
				}
				return toStatus(listen(srv.(simulatorServer).backend(), req.ActorID, stream))
			},
		},
	},
	Metadata: "simrpc",
}

// listen relays sensor frames to the stream until the client goes away or
// the sensor stops producing.
func listen(sim simulator.Simulator, sensor simulator.ActorID, stream grpc.ServerStream) error {
	ctx := stream.Context()
	frames := make(chan simulator.SensorFrame, streamBuffer)
	stop, err := sim.Listen(ctx, sensor, func(f simulator.SensorFrame) {
		select {
		case frames <- f:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer stop()

	if err := stream.SendMsg(&wireFrame{Ack: true}); err != nil {
		return err
	}
	monitoring.Logf("simrpc: streaming sensor %d", sensor)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("simrpc: sensor %d stream closed: %v", sensor, ctx.Err())
			return nil
		case f := <-frames:
			if err := stream.SendMsg(toWire(f, time.Now())); err != nil {
				return err
			}
		}
	}
}

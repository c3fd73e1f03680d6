package simrpc

import (
	"time"

	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/banshee-data/objdetect/internal/simulator"
)

type empty struct{}

type blueprintsRequest struct {
	Filter string `json:"filter"`
}

type blueprintsResponse struct {
	Blueprints []simulator.Blueprint `json:"blueprints"`
}

type spawnPointsResponse struct {
	Transforms []simulator.Transform `json:"transforms"`
}

type spawnActorRequest struct {
	Blueprint simulator.Blueprint `json:"blueprint"`
	Transform simulator.Transform `json:"transform"`
	Parent    simulator.ActorID   `json:"parent,omitempty"`
}

type actorRequest struct {
	ActorID simulator.ActorID `json:"actor_id"`
}

type actorResponse struct {
	ActorID simulator.ActorID `json:"actor_id"`
}

type autopilotRequest struct {
	ActorID            simulator.ActorID `json:"actor_id"`
	Enabled            bool              `json:"enabled"`
	TrafficManagerPort int               `json:"traffic_manager_port"`
}

type batchRequest struct {
	Commands []simulator.Command `json:"commands"`
	Tick     bool                `json:"tick,omitempty"`
	Sync     bool                `json:"sync,omitempty"`
}

type batchResponse struct {
	Responses []simulator.CommandResponse `json:"responses,omitempty"`
}

type transformMessage struct {
	Transform simulator.Transform `json:"transform"`
}

type portResponse struct {
	Port int `json:"port"`
}

type speedRequest struct {
	Percent float64 `json:"percent"`
}

type tickResponse struct {
	Frame uint64 `json:"frame"`
}

// wireFrame is one message of the Listen stream. The first message on a
// stream is an acknowledgement with Ack set and no points.
type wireFrame struct {
	Ack     bool                      `json:"ack,omitempty"`
	Frame   uint64                    `json:"frame,omitempty"`
	SimTime *durationpb.Duration      `json:"sim_time,omitempty"`
	Sent    *timestamppb.Timestamp    `json:"sent,omitempty"`
	Points  []simulator.SemanticPoint `json:"points,omitempty"`
}

func toWire(f simulator.SensorFrame, sent time.Time) *wireFrame {
	return &wireFrame{
		Frame:   f.Frame,
		SimTime: durationpb.New(f.Timestamp),
		Sent:    timestamppb.New(sent),
		Points:  f.Points,
	}
}

func fromWire(w *wireFrame) simulator.SensorFrame {
	f := simulator.SensorFrame{Frame: w.Frame, Points: w.Points}
	if w.SimTime != nil {
		f.Timestamp = w.SimTime.AsDuration()
	}
	return f
}

// Package simrpc bridges simulator.Simulator over gRPC. The server exposes
// any Simulator; the client implements Simulator against a remote server.
// Messages are plain Go structs carried by a JSON codec, so the bridge needs
// no generated stubs.
package simrpc

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// callCodec selects the JSON codec for every call made by the client.
var callCodec = grpc.CallContentSubtype(codecName)

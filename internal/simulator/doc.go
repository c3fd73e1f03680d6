// Package simulator defines the contract this module consumes from a 3D world
// simulator: blueprint catalog, spawn points, actor creation and destruction,
// command batches, world ticks and semantic LiDAR sensor streams.
//
// Implementations live in sub-packages: synthetic provides an in-process world
// and simrpc carries the same contract over gRPC.
package simulator

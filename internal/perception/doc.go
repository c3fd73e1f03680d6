// Package perception turns semantic LiDAR frames into per-class
// nearest-distance summaries and hands both the raw points and the summaries
// to the log sinks.
//
// Frames arrive through Ingestor, which stamps each one on arrival and feeds a
// single worker so that a frame is always fully written before the next one
// starts. Each frame is processed independently; nothing is carried across
// frames.
package perception

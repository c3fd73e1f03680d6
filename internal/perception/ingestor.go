package perception

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/objdetect/internal/monitoring"
	"github.com/banshee-data/objdetect/internal/simulator"
	"github.com/banshee-data/objdetect/internal/timeutil"
)

// DefaultQueueSize bounds the frames waiting for the worker.
const DefaultQueueSize = 8

// ErrIngestorClosed is returned by Submit after Close.
var ErrIngestorClosed = errors.New("ingestor is closed")

// FrameProcessor consumes stamped frames.
type FrameProcessor interface {
	ProcessFrame(f Frame) ([]ClassSummaryEntry, error)
}

// Ingestor decouples the simulator's callback goroutine from frame
// processing. Frames are queued in arrival order and processed one at a time
// by a single worker; once a frame is dequeued it runs to completion.
type Ingestor struct {
	proc  FrameProcessor
	clock timeutil.Clock
	seq   atomic.Uint64

	mu     sync.RWMutex // guards closed against sends on frames
	closed bool
	frames chan Frame
	done   chan struct{}
}

// NewIngestor starts the worker. queueSize <= 0 selects DefaultQueueSize.
func NewIngestor(proc FrameProcessor, clock timeutil.Clock, queueSize int) *Ingestor {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	in := &Ingestor{
		proc:   proc,
		clock:  clock,
		frames: make(chan Frame, queueSize),
		done:   make(chan struct{}),
	}
	go in.worker()
	return in
}

func (in *Ingestor) worker() {
	defer close(in.done)
	for f := range in.frames {
		if _, err := in.proc.ProcessFrame(f); err != nil {
			monitoring.Warnf("failed to persist frame %d (sim frame %d): %v", f.Seq, f.SimFrame, err)
		}
	}
}

// Submit stamps sf with the current wall-clock time and queues it. It blocks
// while the queue is full rather than dropping the frame. Submit takes
// ownership of sf.Points.
func (in *Ingestor) Submit(sf simulator.SensorFrame) error {
	in.mu.RLock()
	defer in.mu.RUnlock()

	if in.closed {
		return ErrIngestorClosed
	}
	in.frames <- Frame{
		Seq:      in.seq.Add(1),
		SimFrame: sf.Frame,
		Arrival:  in.clock.Now(),
		Points:   sf.Points,
	}
	return nil
}

// Callback adapts Submit to the simulator's listen callback.
func (in *Ingestor) Callback() simulator.FrameCallback {
	return func(sf simulator.SensorFrame) {
		if err := in.Submit(sf); err != nil {
			monitoring.Logf("dropping sensor frame %d: %v", sf.Frame, err)
		}
	}
}

// Submitted returns the number of frames accepted so far.
func (in *Ingestor) Submitted() uint64 { return in.seq.Load() }

// Close stops accepting frames, processes everything already queued and waits
// for the worker to exit. It is safe to call more than once.
func (in *Ingestor) Close() {
	in.mu.Lock()
	if !in.closed {
		in.closed = true
		close(in.frames)
	}
	in.mu.Unlock()
	<-in.done
}

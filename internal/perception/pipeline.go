package perception

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/banshee-data/objdetect/internal/monitoring"
	"github.com/banshee-data/objdetect/internal/simulator"
	"github.com/banshee-data/objdetect/internal/taxonomy"
)

// Frame is one sensor sample stamped with its arrival time.
type Frame struct {
	Seq      uint64    // ingestion order, starting at 1
	SimFrame uint64    // simulator frame number
	Arrival  time.Time // wall clock at callback time
	Points   []simulator.SemanticPoint
}

// RawWriter persists every point of a frame.
type RawWriter interface {
	AppendFrame(ts time.Time, points []simulator.SemanticPoint) error
}

// SummaryWriter persists one formatted summary per frame.
type SummaryWriter interface {
	Append(ts time.Time, summary string) error
}

// PipelineConfig wires a Pipeline.
type PipelineConfig struct {
	Registry *taxonomy.Registry
	TopK     int // zero selects DefaultTopK
	Raw      RawWriter
	Summary  SummaryWriter
	Stats    *Stats

	// LogDetections echoes every non-empty summary to the diagnostic log.
	LogDetections bool
}

// Pipeline classifies, summarizes and persists frames.
type Pipeline struct {
	registry      *taxonomy.Registry
	topK          int
	raw           RawWriter
	summary       SummaryWriter
	stats         *Stats
	logDetections bool
}

// NewPipeline creates a Pipeline. A nil registry selects taxonomy.Default().
func NewPipeline(cfg PipelineConfig) *Pipeline {
	reg := cfg.Registry
	if reg == nil {
		reg = taxonomy.Default()
	}
	topK := cfg.TopK
	if topK == 0 {
		topK = DefaultTopK
	}
	stats := cfg.Stats
	if stats == nil {
		stats = NewStats(time.Now())
	}
	return &Pipeline{
		registry:      reg,
		topK:          topK,
		raw:           cfg.Raw,
		summary:       cfg.Summary,
		stats:         stats,
		logDetections: cfg.LogDetections,
	}
}

// Stats returns the counters the pipeline updates.
func (p *Pipeline) Stats() *Stats { return p.stats }

// ProcessFrame writes every point of f to the raw sink and exactly one
// summary row to the summary sink. A failing raw write does not suppress the
// summary row; both errors are reported.
func (p *Pipeline) ProcessFrame(f Frame) ([]ClassSummaryEntry, error) {
	dets := ClassifyFrame(p.registry, f.Points)
	nearest := Summarize(dets, p.topK)
	line := FormatSummary(nearest)

	var err error
	if rawErr := p.raw.AppendFrame(f.Arrival, f.Points); rawErr != nil {
		err = multierr.Append(err, fmt.Errorf("frame %d raw points: %w", f.Seq, rawErr))
	}
	if sumErr := p.summary.Append(f.Arrival, line); sumErr != nil {
		err = multierr.Append(err, fmt.Errorf("frame %d summary: %w", f.Seq, sumErr))
	}

	p.stats.AddFrame(len(f.Points), len(nearest), err != nil)
	if p.logDetections && line != "" {
		monitoring.Logf("Detected (name : distance m) -> %s", line)
	}
	return nearest, err
}

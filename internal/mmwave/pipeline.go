package mmwave

import (
	"context"
	"sync"
	"time"

	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/monitoring"
)

const (
	// DefaultClassifyInterval is the consumer cadence: how often the queue
	// is drained and the batch classified.
	DefaultClassifyInterval = 200 * time.Millisecond
	// DefaultDrainMax bounds one drained batch.
	DefaultDrainMax = 5000
)

// HumanSink receives run lifecycle events and per-pass observations.
// Sinks must tolerate being called from the consumer goroutine.
type HumanSink interface {
	RecordRunStart(runID, portPath string, startedAt time.Time) error
	RecordRunStop(runID string, stoppedAt time.Time) error
	RecordBatch(runID string, observedAt time.Time, counts BatchCounts) error
	RecordHumanSummaries(runID string, observedAt time.Time, humans []HumanSummary) error
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	// Collector supplies drained detections. Required.
	Collector *Collector
	// Params are the initial classifier parameters.
	Params Params
	// Interval is the classification cadence; DefaultClassifyInterval when 0.
	Interval time.Duration
	// DrainMax bounds one drained batch; DefaultDrainMax when 0.
	DrainMax int
	// DisplayCap bounds the rolling display buffer; DefaultDisplayCap when 0.
	DisplayCap int
	// Sink, when non-nil, receives run events and human observations.
	Sink HumanSink
}

// Pipeline ties the collector to the classifier: a consumer goroutine drains
// the ingest queue on a fixed cadence, classifies each batch, and publishes
// the results to the display buffer and the sink. All methods are safe for
// concurrent use.
type Pipeline struct {
	cfg       PipelineConfig
	collector *Collector
	display   *DisplayBuffer

	// mu guards the consumer lifecycle; stateMu guards params and results.
	// They are separate so Stop can wait for the consumer while the consumer
	// finishes a pass that reads params.
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	stateMu      sync.Mutex
	params       Params
	latestHumans []HumanSummary
	passes       uint64
}

// NewPipeline creates a Pipeline around an existing Collector.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultClassifyInterval
	}
	if cfg.DrainMax <= 0 {
		cfg.DrainMax = DefaultDrainMax
	}
	return &Pipeline{
		cfg:       cfg,
		collector: cfg.Collector,
		display:   NewDisplayBuffer(cfg.DisplayCap),
		params:    cfg.Params,
	}
}

// Start opens the sensor port and launches the consumer goroutine. Calling
// Start while running is a no-op.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return nil
	}
	if err := p.collector.Start(); err != nil {
		return err
	}
	if p.cfg.Sink != nil {
		if err := p.cfg.Sink.RecordRunStart(p.collector.RunID(), p.cfg.Collector.cfg.PortPath, time.Now()); err != nil {
			monitoring.Logf("pipeline: failed to record run start: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.consumeLoop(ctx, p.done)
	return nil
}

// Stop halts the consumer and the collector. Safe to call when not running.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return
	}
	runID := p.collector.RunID()
	p.cancel()
	<-p.done
	p.cancel = nil
	p.collector.Stop()

	if p.cfg.Sink != nil {
		if err := p.cfg.Sink.RecordRunStop(runID, time.Now()); err != nil {
			monitoring.Logf("pipeline: failed to record run stop: %v", err)
		}
	}
}

// Running reports whether the collector's reader goroutine is alive.
func (p *Pipeline) Running() bool {
	return p.collector.Running()
}

// RunID returns the current (or last) run identifier.
func (p *Pipeline) RunID() string {
	return p.collector.RunID()
}

// Params returns the current classifier parameters.
func (p *Pipeline) Params() Params {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.params
}

// SetParams swaps the classifier parameters. The new values take effect on
// the next classification pass; an in-flight pass finishes with the old ones.
func (p *Pipeline) SetParams(params Params) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.params = params
}

// Points returns the newest n classified points, oldest-first. A non-positive
// n returns the whole display buffer.
func (p *Pipeline) Points(n int) []ClassifiedPoint {
	if n <= 0 {
		return p.display.Snapshot()
	}
	return p.display.Tail(n)
}

// Humans returns the human summaries from the most recent classification pass.
func (p *Pipeline) Humans() []HumanSummary {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	out := make([]HumanSummary, len(p.latestHumans))
	copy(out, p.latestHumans)
	return out
}

// PipelineStats extends the collector counters with consumer-side state.
type PipelineStats struct {
	CollectorStats
	ClassifyPasses uint64 `json:"classify_passes"`
	DisplayPoints  int    `json:"display_points"`
	LatestHumans   int    `json:"latest_humans"`
}

// Stats returns a snapshot of pipeline counters.
func (p *Pipeline) Stats() PipelineStats {
	p.stateMu.Lock()
	passes := p.passes
	humans := len(p.latestHumans)
	p.stateMu.Unlock()

	return PipelineStats{
		CollectorStats: p.collector.Stats(),
		ClassifyPasses: passes,
		DisplayPoints:  p.display.Len(),
		LatestHumans:   humans,
	}
}

func (p *Pipeline) consumeLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drain whatever is left so Stop never strands detections.
			p.classifyOnce()
			return
		case <-ticker.C:
			p.classifyOnce()
		}
	}
}

func (p *Pipeline) classifyOnce() {
	batch := p.collector.Drain(p.cfg.DrainMax)
	if len(batch) == 0 {
		return
	}

	points, humans := Process(batch, p.Params())
	p.display.Add(points)

	p.stateMu.Lock()
	p.latestHumans = humans
	p.passes++
	p.stateMu.Unlock()

	if p.cfg.Sink != nil {
		runID := p.collector.RunID()
		now := time.Now()
		if err := p.cfg.Sink.RecordBatch(runID, now, CountLabels(points)); err != nil {
			monitoring.Logf("pipeline: failed to record batch counts: %v", err)
		}
		if len(humans) > 0 {
			if err := p.cfg.Sink.RecordHumanSummaries(runID, now, humans); err != nil {
				monitoring.Logf("pipeline: failed to record human summaries: %v", err)
			}
		}
	}
}

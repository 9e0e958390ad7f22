package mmwave

import (
	"sync"
	"testing"
	"time"

	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/serialio"
)

type recordingSink struct {
	mu     sync.Mutex
	starts []string
	stops  []string
	counts []BatchCounts
	humans [][]HumanSummary
}

func (s *recordingSink) RecordRunStart(runID, portPath string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, runID)
	return nil
}

func (s *recordingSink) RecordRunStop(runID string, stoppedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops = append(s.stops, runID)
	return nil
}

func (s *recordingSink) RecordBatch(runID string, observedAt time.Time, counts BatchCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = append(s.counts, counts)
	return nil
}

func (s *recordingSink) RecordHumanSummaries(runID string, observedAt time.Time, humans []HumanSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.humans = append(s.humans, humans)
	return nil
}

func (s *recordingSink) snapshot() (starts, stops []string, humans [][]HumanSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.starts...), append([]string{}, s.stops...), s.humans
}

func (s *recordingSink) batchCounts() []BatchCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]BatchCounts{}, s.counts...)
}

func newTestPipeline(port *serialio.TestableSerialPort, sink HumanSink) *Pipeline {
	collector := NewCollector(CollectorConfig{
		PortPath: "/dev/ttyTEST0",
		Factory:  serialio.NewMockSerialPortFactory(port),
	})
	return NewPipeline(PipelineConfig{
		Collector: collector,
		Params:    DefaultParams(),
		Interval:  5 * time.Millisecond,
		Sink:      sink,
	})
}

func TestPipeline_ClassifiesIntoDisplay(t *testing.T) {
	port := serialio.NewTestableSerialPort()
	port.AddReadData(testFrame(t))

	p := newTestPipeline(port, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool { return len(p.Points(0)) > 0 },
		"classified points never reached the display buffer")

	pts := p.Points(0)
	if pts[0].X != 1 || pts[0].Label != LabelClutter {
		t.Errorf("unexpected classified point: %+v", pts[0])
	}
	if p.Stats().ClassifyPasses == 0 {
		t.Error("ClassifyPasses not counted")
	}
}

func TestPipeline_SinkReceivesRunLifecycle(t *testing.T) {
	port := serialio.NewTestableSerialPort()
	sink := &recordingSink{}

	p := newTestPipeline(port, sink)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	runID := p.RunID()
	p.Stop()

	starts, stops, _ := sink.snapshot()
	if len(starts) != 1 || starts[0] != runID {
		t.Errorf("starts = %v, want [%s]", starts, runID)
	}
	if len(stops) != 1 || stops[0] != runID {
		t.Errorf("stops = %v, want [%s]", stops, runID)
	}
}

func TestPipeline_SinkReceivesHumans(t *testing.T) {
	// A 12-point vertical column in one frame passes the human gate.
	quads := make([][4]float32, 12)
	for i := range quads {
		quads[i] = [4]float32{1, 2, 0.2 + float32(i)*0.136, 0}
	}
	frame := buildFrame(t, uint32(len(quads)), tlvRecord{
		typ:     TLVDetectedPoints,
		payload: pointPayload(t, quads...),
	})

	port := serialio.NewTestableSerialPort()
	port.AddReadData(frame)
	sink := &recordingSink{}

	p := newTestPipeline(port, sink)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	waitFor(t, func() bool { return len(p.Humans()) > 0 },
		"no human summary produced")

	humans := p.Humans()
	if humans[0].Points != 12 {
		t.Errorf("human summary Points = %d, want 12", humans[0].Points)
	}

	waitFor(t, func() bool {
		_, _, recorded := sink.snapshot()
		return len(recorded) > 0
	}, "sink never received human summaries")

	counts := sink.batchCounts()
	if len(counts) == 0 {
		t.Fatal("sink never received batch counts")
	}
	if counts[0].Total != 12 || counts[0].Human != 12 {
		t.Errorf("batch counts = %+v, want 12 total, all human", counts[0])
	}
}

func TestPipeline_StopDrainsRemaining(t *testing.T) {
	port := serialio.NewTestableSerialPort()
	p := newTestPipeline(port, nil)
	// Long cadence so the ticker never fires during the test.
	p.cfg.Interval = time.Hour

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	port.AddReadData(testFrame(t))
	waitFor(t, func() bool { return p.Stats().FramesDecoded > 0 },
		"frame never decoded")

	p.Stop()
	if got := len(p.Points(0)); got != 1 {
		t.Errorf("Stop left %d points in the display, want 1", got)
	}
}

func TestPipeline_StartIsIdempotent(t *testing.T) {
	port := serialio.NewTestableSerialPort()
	sink := &recordingSink{}
	p := newTestPipeline(port, sink)

	if err := p.Start(); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	p.Stop()

	starts, _, _ := sink.snapshot()
	if len(starts) != 1 {
		t.Errorf("run started %d times, want 1", len(starts))
	}
}

func TestPipeline_SetParamsTakesEffect(t *testing.T) {
	p := newTestPipeline(serialio.NewTestableSerialPort(), nil)

	params := p.Params()
	params.Eps = 0.9
	p.SetParams(params)

	if got := p.Params().Eps; got != 0.9 {
		t.Errorf("Eps = %v after SetParams, want 0.9", got)
	}
}

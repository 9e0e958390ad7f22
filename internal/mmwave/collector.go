package mmwave

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/monitoring"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/serialio"
)

const (
	// defaultReadTimeout bounds a single port read so the reader loop can
	// observe cancellation promptly.
	defaultReadTimeout = 100 * time.Millisecond
	// defaultStopTimeout bounds how long Stop waits for the reader
	// goroutine to exit before releasing the port.
	defaultStopTimeout = time.Second
	// idleBackoff is slept after a zero-byte read to avoid busy-spinning
	// on a quiet port.
	idleBackoff = time.Millisecond

	readChunkSize = 4096
)

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	// PortPath is the device path of the sensor data port.
	PortPath string
	// Mode is the serial mode for the data port; DefaultDataPortMode when nil.
	Mode *serialio.SerialPortMode
	// Factory opens the port; RealSerialPortFactory when nil.
	Factory serialio.SerialPortFactory
	// QueueCapacity bounds the ingest queue; DefaultQueueCapacity when 0.
	QueueCapacity int
	// StopTimeout bounds how long Stop waits for the reader to exit.
	StopTimeout time.Duration
}

// Collector owns the sensor data port and the background reader goroutine
// that pumps bytes through frame sync and TLV decoding into the ingest
// queue. Consumers interact only with Drain and Running; the serial resource
// is never touched outside the collector.
type Collector struct {
	cfg   CollectorConfig
	queue *DetectionQueue

	mu     sync.Mutex
	port   serialio.SerialPorter
	cancel context.CancelFunc
	done   chan struct{}
	runID  string

	running        atomic.Bool
	framesDecoded  atomic.Uint64
	detectionsSeen atomic.Uint64
}

// NewCollector creates a Collector. The port is not opened until Start.
func NewCollector(cfg CollectorConfig) *Collector {
	if cfg.Mode == nil {
		cfg.Mode = serialio.DefaultDataPortMode()
	}
	if cfg.Factory == nil {
		cfg.Factory = serialio.RealSerialPortFactory{}
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	return &Collector{
		cfg:   cfg,
		queue: NewDetectionQueue(cfg.QueueCapacity),
	}
}

// Start opens the data port and launches the reader goroutine. Start is
// idempotent: calling it while already running is a no-op and never opens a
// second port or spawns a second reader.
func (c *Collector) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		monitoring.Logf("collector: already running on %s", c.cfg.PortPath)
		return nil
	}

	port, err := c.cfg.Factory.Open(c.cfg.PortPath, c.cfg.Mode)
	if err != nil {
		return fmt.Errorf("failed to open data port %s: %w", c.cfg.PortPath, err)
	}
	if tp, ok := port.(serialio.TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(defaultReadTimeout); err != nil {
			port.Close()
			return fmt.Errorf("failed to set read timeout on %s: %w", c.cfg.PortPath, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.port = port
	c.cancel = cancel
	c.done = make(chan struct{})
	c.runID = uuid.NewString()
	c.running.Store(true)

	monitoring.Logf("collector: opened %s @ %d baud (run %s)", c.cfg.PortPath, c.cfg.Mode.BaudRate, c.runID)
	go c.readLoop(ctx, port, c.done)
	return nil
}

// Stop signals the reader goroutine, waits up to the configured timeout for
// it to exit, then closes the port. The ordering guarantees the port is not
// closed while a read is in flight: the reader's short read timeout lets it
// observe cancellation well inside the stop timeout.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return
	}
	c.cancel()

	select {
	case <-c.done:
	case <-time.After(c.cfg.StopTimeout):
		monitoring.Logf("collector: reader did not exit within %v", c.cfg.StopTimeout)
	}

	// The reader closes the port itself when it dies on a read error, so
	// the port may already be gone here.
	if c.port != nil {
		if err := c.port.Close(); err != nil {
			monitoring.Logf("collector: error closing %s: %v", c.cfg.PortPath, err)
		}
		c.port = nil
	}
	c.cancel = nil
	c.running.Store(false)
	monitoring.Logf("collector: stopped (run %s)", c.runID)
}

// closePort releases the port after an unrecoverable read error, so a dead
// run never holds the device open. A concurrent or later Stop sees a nil
// port and skips its own close.
func (c *Collector) closePort(port serialio.SerialPorter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port != port {
		return
	}
	if err := port.Close(); err != nil {
		monitoring.Logf("collector: error closing %s: %v", c.cfg.PortPath, err)
	}
	c.port = nil
}

// Running reports whether the reader goroutine is alive. It flips to false
// on Stop and on an unrecoverable port error; consumers detect producer
// death only through this.
func (c *Collector) Running() bool {
	return c.running.Load()
}

// RunID returns the identifier minted for the current (or last) Start.
func (c *Collector) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Drain removes up to max Detections from the ingest queue in enqueue order.
// Safe to call concurrently with the reader.
func (c *Collector) Drain(max int) []Detection {
	return c.queue.Drain(max)
}

// readLoop runs on the collector's dedicated goroutine. It has exclusive
// ownership of the raw byte buffer and the port until it returns.
func (c *Collector) readLoop(ctx context.Context, port serialio.SerialPorter, done chan struct{}) {
	defer close(done)
	defer c.running.Store(false)

	framer := NewFrameSync()
	buf := make([]byte, readChunkSize)

	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Connection-level failure: fatal to this run, no retry.
			// Release the port here rather than waiting for Stop, so a
			// dead run cannot hold the device open.
			monitoring.Logf("collector: read error on %s: %v", c.cfg.PortPath, err)
			c.closePort(port)
			return
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleBackoff):
			}
			continue
		}

		framer.Consume(buf[:n])
		for {
			frame, ok := framer.NextFrame()
			if !ok {
				break
			}
			detections, err := DecodeFrame(frame)
			if err != nil {
				monitoring.Logf("collector: undecodable frame (%d bytes): %v", len(frame), err)
				continue
			}
			c.framesDecoded.Add(1)
			if len(detections) > 0 {
				c.detectionsSeen.Add(uint64(len(detections)))
				c.queue.PushAll(detections)
			}
		}
	}
}

// CollectorStats is a snapshot of collector counters for the monitoring
// surface.
type CollectorStats struct {
	Running        bool   `json:"running"`
	RunID          string `json:"run_id"`
	FramesDecoded  uint64 `json:"frames_decoded"`
	DetectionsSeen uint64 `json:"detections_seen"`
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	QueueEvicted   uint64 `json:"queue_evicted"`
}

// Stats returns current counters.
func (c *Collector) Stats() CollectorStats {
	return CollectorStats{
		Running:        c.Running(),
		RunID:          c.RunID(),
		FramesDecoded:  c.framesDecoded.Load(),
		DetectionsSeen: c.detectionsSeen.Load(),
		QueueDepth:     c.queue.Len(),
		QueueCapacity:  c.queue.Cap(),
		QueueEvicted:   c.queue.Evicted(),
	}
}

package serialio

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/monitoring"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/timeutil"
)

// DefaultCommandDelay is how long to wait after each configuration command
// before reading the sensor's acknowledgement. The demo firmware processes
// commands serially and drops input that arrives too quickly.
const DefaultCommandDelay = 100 * time.Millisecond

// ackReadTimeout bounds each acknowledgement read. A hardware port blocks
// until at least one byte arrives by default, so without a timeout the ack
// drain would hang forever on a silent sensor.
const ackReadTimeout = 100 * time.Millisecond

// ConfigSender uploads a sensor configuration file over the control port.
// The exchange is line-oriented: each command is written with a trailing
// newline and the sensor replies with an ASCII acknowledgement.
type ConfigSender struct {
	Factory SerialPortFactory
	// Delay between commands; DefaultCommandDelay when zero.
	Delay time.Duration
	// Clock paces the upload; timeutil.RealClock when nil.
	Clock timeutil.Clock
}

// SendConfigFile reads the .cfg file at cfgPath and sends each command to the
// sensor control port at portPath. Blank lines and '%' comment lines are
// skipped. The port is opened for the duration of the upload and closed
// before returning.
func (s *ConfigSender) SendConfigFile(cfgPath, portPath string, mode *SerialPortMode) error {
	f, err := os.Open(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	factory := s.Factory
	if factory == nil {
		factory = RealSerialPortFactory{}
	}
	if mode == nil {
		mode = DefaultControlPortMode()
	}

	port, err := factory.Open(portPath, mode)
	if err != nil {
		return fmt.Errorf("failed to open control port %s: %w", portPath, err)
	}
	defer port.Close()

	if tp, ok := port.(TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(ackReadTimeout); err != nil {
			return fmt.Errorf("failed to set read timeout on %s: %w", portPath, err)
		}
	}

	delay := s.Delay
	if delay == 0 {
		delay = DefaultCommandDelay
	}
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	scan := bufio.NewScanner(f)
	sent := 0
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}

		if _, err := port.Write([]byte(line + "\n")); err != nil {
			return fmt.Errorf("failed to send command %q: %w", line, err)
		}
		clock.Sleep(delay)

		resp := readAvailable(port)
		monitoring.Logf("sent %q -> ack %q", line, resp)
		sent++
	}
	if err := scan.Err(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	monitoring.Logf("sensor configuration complete: %d commands from %s", sent, cfgPath)
	return nil
}

// readAvailable drains whatever acknowledgement bytes the sensor has queued.
// Acks are informational only; a short or empty read is not an error.
func readAvailable(port SerialPorter) string {
	buf := make([]byte, 256)
	var resp []byte
	for {
		n, err := port.Read(buf)
		if n > 0 {
			resp = append(resp, buf[:n]...)
		}
		if err != nil || n == 0 {
			break
		}
	}
	return strings.TrimSpace(string(resp))
}

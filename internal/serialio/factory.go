package serialio

import (
	"fmt"
	"os"

	"go.bug.st/serial"
)

// MockPortPrefix marks a port path whose remainder names a capture file to
// replay instead of opening hardware, e.g. "mock:testdata/capture.bin".
const MockPortPrefix = "mock:"

// RealSerialPortFactory opens physical serial ports via go.bug.st/serial.
type RealSerialPortFactory struct{}

// Open opens the serial port at path with the given mode. The returned port
// implements TimeoutSerialPorter.
func (RealSerialPortFactory) Open(path string, mode *SerialPortMode) (SerialPorter, error) {
	m, err := translateMode(mode)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, m)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	return port, nil
}

// NewReplayFactory returns a factory whose port replays the contents of the
// capture file at path. It backs the MockPortPrefix development mode.
func NewReplayFactory(path string) (SerialPortFactory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture file %s: %w", path, err)
	}
	port := NewTestableSerialPort()
	port.AddReadData(data)
	return NewMockSerialPortFactory(port), nil
}

// translateMode converts a SerialPortMode into the go.bug.st/serial form.
func translateMode(mode *SerialPortMode) (*serial.Mode, error) {
	if mode == nil {
		return nil, fmt.Errorf("serial port mode is required")
	}

	m := &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
	}

	switch mode.Parity {
	case NoParity:
		m.Parity = serial.NoParity
	case OddParity:
		m.Parity = serial.OddParity
	case EvenParity:
		m.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unsupported parity: %d", mode.Parity)
	}

	switch mode.StopBits {
	case OneStopBit:
		m.StopBits = serial.OneStopBit
	case TwoStopBits:
		m.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits: %d", mode.StopBits)
	}

	return m, nil
}

var _ SerialPortFactory = RealSerialPortFactory{}

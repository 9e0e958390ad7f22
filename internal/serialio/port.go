// Package serialio abstracts the serial ports of an mmWave radar sensor: the
// high-rate data port carrying the binary detection stream and the low-rate
// control port used for the one-shot configuration upload. The abstractions
// enable unit testing without real sensor hardware.
package serialio

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialPortMode defines serial port configuration parameters.
type SerialPortMode struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

// Parity defines serial port parity options.
type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

// StopBits defines serial port stop bit options.
type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

const (
	// DefaultDataBaudRate is the rate of the sensor's binary data port.
	DefaultDataBaudRate = 921600
	// DefaultControlBaudRate is the rate of the sensor's command/ack port.
	DefaultControlBaudRate = 115200
)

// DefaultDataPortMode returns the mode for the sensor's binary data port.
// TI mmWave demo firmware streams detections at 921600 baud.
func DefaultDataPortMode() *SerialPortMode {
	return &SerialPortMode{
		BaudRate: DefaultDataBaudRate,
		DataBits: 8,
		Parity:   NoParity,
		StopBits: OneStopBit,
	}
}

// DefaultControlPortMode returns the mode for the sensor's command/ack
// control port.
func DefaultControlPortMode() *SerialPortMode {
	return &SerialPortMode{
		BaudRate: DefaultControlBaudRate,
		DataBits: 8,
		Parity:   NoParity,
		StopBits: OneStopBit,
	}
}

// SerialPortFactory defines an interface for creating serial ports. This
// abstraction enables dependency injection of serial port creation.
type SerialPortFactory interface {
	// Open opens a serial port at the specified path with the given mode.
	Open(path string, mode *SerialPortMode) (SerialPorter, error)
}

// TimeoutSerialPorter extends SerialPorter with read timeout control. Ports
// that implement it let the reader loop poll without blocking indefinitely.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

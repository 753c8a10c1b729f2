package transport

import (
	"fmt"
	"io"

	serial "github.com/jacobsa/go-serial/serial"
)

// Porter is the minimal interface the link needs from a serial port.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// Open opens the rate table's serial console and wraps it in a Link.
// The table speaks 8N1; InterCharacterTimeout keeps reads bounded so
// the exchange loop can enforce its own deadline.
func Open(portName string, baudRate int) (*Link, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baudRate),
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}

	return NewLink(port), nil
}

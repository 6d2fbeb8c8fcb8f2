package xbee

import (
	"sync"

	"go.bug.st/serial"
)

// SerialTransport is the concrete Transport backed by a real serial port.
// Only the baud rate is configurable (DeviceConfig.Baud, default 9600);
// data bits, parity and stop bits are always 8-N-1, and no flow control
// is configured.
type SerialTransport struct {
	mu       sync.Mutex
	portName string
	mode     *serial.Mode
	port     serial.Port
	open     bool
}

// NewSerialTransport builds a SerialTransport from a device config. It
// does not open the port; call Open.
func NewSerialTransport(cfg DeviceConfig) *SerialTransport {
	baud := cfg.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	return &SerialTransport{
		portName: cfg.Port,
		mode: &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
	}
}

func (t *SerialTransport) Open() error {
	port, err := serial.Open(t.portName, t.mode)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.port = port
	t.open = true
	t.mu.Unlock()
	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return nil
	}
	t.open = false
	return t.port.Close()
}

func (t *SerialTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *SerialTransport) Read(buf []byte) (int, error) {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return 0, newErr(ErrInterfaceNotOpen, "read", "serial port not open")
	}
	return port.Read(buf)
}

func (t *SerialTransport) Write(data []byte) error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()
	if port == nil {
		return newErr(ErrInterfaceNotOpen, "write", "serial port not open")
	}
	_, err := port.Write(data)
	return err
}

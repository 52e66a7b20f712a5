package edmi

import (
	"errors"
	"time"

	"github.com/goburrow/serial"
)

// Transport is the byte-stream duplex channel the session owns. Read blocks
// until at least one byte arrives or the configured read timeout elapses, in
// which case it returns ErrTimeout. The driver never parses port naming
// conventions; the address is passed through to the platform as-is.
type Transport interface {
	Write(p []byte) error
	Read(p []byte) (int, error)
	Flush() error
	Close() error
}

// SerialConfig carries the serial port parameters. Zero values fall back to
// the usual EDMI optical-head defaults.
type SerialConfig struct {
	Address     string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	ReadTimeout time.Duration
}

type serialTransport struct {
	port serial.Port
}

// OpenSerial opens the serial port and wraps it as a Transport.
func OpenSerial(cfg SerialConfig) (Transport, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}
	if cfg.StopBits == 0 {
		cfg.StopBits = 1
	}
	if cfg.Parity == "" {
		cfg.Parity = "N"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 3 * time.Second
	}
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.ReadTimeout,
	})
	if err != nil {
		return nil, &TransportError{Op: "open", Err: err}
	}
	return &serialTransport{port: port}, nil
}

func (t *serialTransport) Write(p []byte) error {
	n, err := t.port.Write(p)
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if n != len(p) {
		return &TransportError{Op: "write", Err: errors.New("short write")}
	}
	return nil
}

func (t *serialTransport) Read(p []byte) (int, error) {
	n, err := t.port.Read(p)
	if err != nil {
		if errors.Is(err, serial.ErrTimeout) {
			return n, ErrTimeout
		}
		return n, &TransportError{Op: "read", Err: err}
	}
	return n, nil
}

// Flush is a no-op for serial ports: goburrow exposes no input purge, and
// the frame scanner discards any stale bytes ahead of the next STX anyway.
func (t *serialTransport) Flush() error {
	return nil
}

func (t *serialTransport) Close() error {
	if err := t.port.Close(); err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}

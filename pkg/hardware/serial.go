package hardware

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = 100 * time.Millisecond

	availablePeek = 5 * time.Millisecond
)

// port is the part of serial.Port the radio needs
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// SerialPort is the module UART. Reads return (0, nil) once the read
// timeout passes without data.
type SerialPort struct {
	name        string
	readTimeout time.Duration

	mu      sync.Mutex
	port    port
	pending []byte
}

// OpenSerial opens name at baud, 8N1
func OpenSerial(name string, baud int, readTimeout time.Duration) (*SerialPort, error) {
	if name == "" {
		return nil, errors.New("serial port is empty")
	}
	if baud <= 0 {
		return nil, fmt.Errorf("invalid serial baud rate: %d", baud)
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", name, err)
	}
	return newSerialPort(name, p, readTimeout)
}

func newSerialPort(name string, p port, readTimeout time.Duration) (*SerialPort, error) {
	if err := p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set serial read timeout: %w", err)
	}
	return &SerialPort{name: name, readTimeout: readTimeout, port: p}, nil
}

// Name returns the device path
func (s *SerialPort) Name() string {
	return s.name
}

func (s *SerialPort) current() (port, error) {
	if s.port == nil {
		return nil, errors.New("serial port is closed")
	}
	return s.port, nil
}

func (s *SerialPort) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pt, err := s.current()
	if err != nil {
		return 0, err
	}
	written := 0
	for written < len(p) {
		n, err := pt.Write(p[written:])
		if err != nil {
			return written, err
		}
		if n == 0 {
			break
		}
		written += n
	}
	return written, nil
}

// Read serves bytes picked up by Available before touching the port
func (s *SerialPort) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		return n, nil
	}
	pt, err := s.current()
	if err != nil {
		return 0, err
	}
	return pt.Read(p)
}

// Available reports whether bytes are waiting. go.bug.st/serial has no
// input-queue query, so this peeks with a short timeout and keeps what it got.
func (s *SerialPort) Available() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 {
		return len(s.pending), nil
	}
	pt, err := s.current()
	if err != nil {
		return 0, err
	}

	if err := pt.SetReadTimeout(availablePeek); err != nil {
		return 0, fmt.Errorf("set serial read timeout: %w", err)
	}
	buf := make([]byte, 256)
	n, readErr := pt.Read(buf)
	if err := pt.SetReadTimeout(s.readTimeout); err != nil && readErr == nil {
		readErr = fmt.Errorf("set serial read timeout: %w", err)
	}
	if n > 0 {
		s.pending = append(s.pending, buf[:n]...)
	}
	return len(s.pending), readErr
}

// FlushInput drops everything received so far
func (s *SerialPort) FlushInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = nil
	pt, err := s.current()
	if err != nil {
		return err
	}
	return pt.ResetInputBuffer()
}

func (s *SerialPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.pending = nil
	return err
}

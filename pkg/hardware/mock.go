package hardware

import (
	"errors"
	"sync"
)

// MockLine is an in-memory output line that records every level it was set to
type MockLine struct {
	mu      sync.Mutex
	name    string
	level   bool
	history []bool
	closes  int

	// SetErr, when non-nil, is returned by Set
	SetErr error
	// CloseErr, when non-nil, is returned by Close
	CloseErr error
}

// NewMockLine creates a low mock line
func NewMockLine(name string) *MockLine {
	return &MockLine{name: name}
}

func (l *MockLine) Set(high bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.SetErr != nil {
		return l.SetErr
	}
	l.level = high
	l.history = append(l.history, high)
	return nil
}

func (l *MockLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closes++
	return l.CloseErr
}

// Name returns the label given at construction
func (l *MockLine) Name() string {
	return l.name
}

// Level returns the last level set
func (l *MockLine) Level() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// History returns every level set, oldest first
func (l *MockLine) History() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.history...)
}

// Closes returns how many times Close was called
func (l *MockLine) Closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

// MockSerial is an in-memory UART. Whatever is written is recorded and
// passed to OnWrite; bytes returned by OnWrite, or queued with Inject,
// become readable. A Read with nothing queued returns (0, nil) the way a
// timed-out serial read does.
type MockSerial struct {
	mu      sync.Mutex
	rx      []byte
	writes  [][]byte
	flushes int
	closed  bool

	// OnWrite produces the module's reply to a write
	OnWrite func(p []byte) []byte
	// ChunkSize limits the bytes returned per Read when > 0
	ChunkSize int

	ReadErr  error
	WriteErr error
	FlushErr error
	CloseErr error
}

// NewMockSerial creates an empty mock UART
func NewMockSerial() *MockSerial {
	return &MockSerial{}
}

var errMockClosed = errors.New("mock serial closed")

func (s *MockSerial) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errMockClosed
	}
	if s.WriteErr != nil {
		err := s.WriteErr
		s.mu.Unlock()
		return 0, err
	}
	s.writes = append(s.writes, append([]byte(nil), p...))
	hook := s.OnWrite
	s.mu.Unlock()

	if hook != nil {
		if reply := hook(p); len(reply) > 0 {
			s.Inject(reply)
		}
	}
	return len(p), nil
}

func (s *MockSerial) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errMockClosed
	}
	if s.ReadErr != nil {
		return 0, s.ReadErr
	}
	n := len(p)
	if s.ChunkSize > 0 && n > s.ChunkSize {
		n = s.ChunkSize
	}
	n = copy(p[:n], s.rx)
	s.rx = s.rx[n:]
	return n, nil
}

func (s *MockSerial) Available() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errMockClosed
	}
	return len(s.rx), nil
}

func (s *MockSerial) FlushInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushes++
	if s.FlushErr != nil {
		return s.FlushErr
	}
	s.rx = nil
	return nil
}

func (s *MockSerial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return s.CloseErr
}

// Inject queues bytes as if the module had sent them
func (s *MockSerial) Inject(b []byte) {
	s.mu.Lock()
	s.rx = append(s.rx, b...)
	s.mu.Unlock()
}

// Writes returns a copy of every write, oldest first
func (s *MockSerial) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]byte, len(s.writes))
	for i, w := range s.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// Flushes returns how many times FlushInput was called
func (s *MockSerial) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Closed reports whether Close was called
func (s *MockSerial) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

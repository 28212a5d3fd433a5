package hardware

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/gpiod"
)

// GpiodLine drives one output through the GPIO character device
type GpiodLine struct {
	mu     sync.Mutex
	line   *gpiod.Line
	closed bool
}

// NewGpiodLine requests offset on chip (e.g. "gpiochip0") as a low output
func NewGpiodLine(chip string, offset int) (*GpiodLine, error) {
	line, err := gpiod.RequestLine(chip, offset, gpiod.AsOutput(0), gpiod.WithConsumer("sx126xd"))
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, offset, err)
	}
	return &GpiodLine{line: line}, nil
}

func (l *GpiodLine) Set(high bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("line %d released", l.line.Offset())
	}
	v := 0
	if high {
		v = 1
	}
	return l.line.SetValue(v)
}

// Close switches the line back to an input and releases it
func (l *GpiodLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return errors.Join(l.line.Reconfigure(gpiod.AsInput), l.line.Close())
}

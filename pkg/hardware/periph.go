package hardware

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	periphOnce sync.Once
	periphErr  error
)

func initPeriph() error {
	periphOnce.Do(func() {
		_, periphErr = host.Init()
	})
	return periphErr
}

// PeriphLine drives one output through periph.io's host drivers
type PeriphLine struct {
	mu     sync.Mutex
	pin    gpio.PinIO
	closed bool
}

// NewPeriphLine looks up pin by number ("GPIO22") and drives it low
func NewPeriphLine(pin int) (*PeriphLine, error) {
	if err := initPeriph(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io host: %w", err)
	}

	name := fmt.Sprintf("GPIO%d", pin)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("failed to open pin %s", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("set %s as output: %w", name, err)
	}
	return &PeriphLine{pin: p}, nil
}

func (l *PeriphLine) Set(high bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("pin %s released", l.pin.Name())
	}
	level := gpio.Low
	if high {
		level = gpio.High
	}
	return l.pin.Out(level)
}

// Close leaves the pin as a floating input
func (l *PeriphLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.pin.In(gpio.Float, gpio.NoEdge); err != nil {
		return fmt.Errorf("release %s: %w", l.pin.Name(), err)
	}
	return nil
}

package hardware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dougsko/sx126xd/pkg/logging"
)

// GPIO backends
const (
	BackendGpiod  = "gpiod"
	BackendPeriph = "periph"
	BackendSysfs  = "sysfs"
	BackendMock   = "mock"
)

// Line is a digital output
type Line interface {
	Set(high bool) error
	Close() error
}

// Port is a UART with a bounded read timeout
type Port interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Available() (int, error)
	FlushInput() error
	Close() error
}

// IOConfig selects the devices the HAT is wired to
type IOConfig struct {
	Backend     string
	SerialPort  string
	BaudRate    int
	ReadTimeout time.Duration
	Chip        string // gpiod only
	M0Pin       int
	M1Pin       int
}

// RadioIO is the UART and the two mode lines of one module
type RadioIO struct {
	Port Port
	M0   Line
	M1   Line

	// Simulator is set for the mock backend
	Simulator *ModuleSimulator
}

// Close releases everything Open acquired
func (r *RadioIO) Close() error {
	var errs []error
	for _, c := range []interface{ Close() error }{r.M0, r.M1, r.Port} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open acquires the lines, then the UART. Whatever was acquired is released
// again if a later step fails.
func Open(cfg IOConfig) (*RadioIO, error) {
	backend := strings.ToLower(cfg.Backend)
	logging.Infof("hardware", "opening radio I/O (backend %s, M0 %d, M1 %d, port %s)",
		backend, cfg.M0Pin, cfg.M1Pin, cfg.SerialPort)

	if backend == BackendMock {
		sim := NewModuleSimulator()
		logging.Info("hardware", "using simulated module")
		return &RadioIO{Port: sim.Serial, M0: sim.M0, M1: sim.M1, Simulator: sim}, nil
	}

	open, err := lineOpener(backend, cfg.Chip)
	if err != nil {
		return nil, err
	}

	rio := &RadioIO{}
	if rio.M0, err = open(cfg.M0Pin); err != nil {
		return nil, fmt.Errorf("failed to initialize M0: %w", err)
	}
	if rio.M1, err = open(cfg.M1Pin); err != nil {
		_ = rio.Close()
		return nil, fmt.Errorf("failed to initialize M1: %w", err)
	}

	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	port, err := OpenSerial(cfg.SerialPort, baud, cfg.ReadTimeout)
	if err != nil {
		_ = rio.Close()
		return nil, fmt.Errorf("failed to initialize UART: %w", err)
	}
	rio.Port = port

	logging.Infof("hardware", "radio I/O ready (%s at %d baud)", cfg.SerialPort, baud)
	return rio, nil
}

func lineOpener(backend, chip string) (func(pin int) (Line, error), error) {
	switch backend {
	case BackendGpiod, "":
		if chip == "" {
			chip = "gpiochip0"
		}
		return func(pin int) (Line, error) {
			l, err := NewGpiodLine(chip, pin)
			if err != nil {
				return nil, err
			}
			return l, nil
		}, nil
	case BackendPeriph:
		return func(pin int) (Line, error) {
			l, err := NewPeriphLine(pin)
			if err != nil {
				return nil, err
			}
			return l, nil
		}, nil
	case BackendSysfs:
		return func(pin int) (Line, error) {
			l, err := NewSysfsLine(pin)
			if err != nil {
				return nil, err
			}
			return l, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown GPIO backend %q", backend)
	}
}

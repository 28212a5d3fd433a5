package hardware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dougsko/sx126xd/pkg/logging"
)

const sysfsGPIORoot = "/sys/class/gpio"

// SysfsLine drives one output through the legacy /sys/class/gpio interface
type SysfsLine struct {
	root     string
	pin      int
	mutex    sync.Mutex
	exported bool
	closed   bool
}

// NewSysfsLine exports pin and configures it as a low output
func NewSysfsLine(pin int) (*SysfsLine, error) {
	return newSysfsLineAt(sysfsGPIORoot, pin)
}

func newSysfsLineAt(root string, pin int) (*SysfsLine, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, fmt.Errorf("GPIO not available on this system")
	}

	l := &SysfsLine{root: root, pin: pin}
	if err := l.export(); err != nil {
		return nil, fmt.Errorf("failed to export pin %d: %w", pin, err)
	}
	if err := l.write("direction", "out"); err != nil {
		_ = l.unexport()
		return nil, fmt.Errorf("failed to set pin %d direction: %w", pin, err)
	}
	if err := l.write("value", "0"); err != nil {
		_ = l.unexport()
		return nil, fmt.Errorf("failed to set pin %d value: %w", pin, err)
	}
	return l, nil
}

// Set drives the pin high or low
func (l *SysfsLine) Set(high bool) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.closed {
		return fmt.Errorf("pin %d released", l.pin)
	}
	value := "0"
	if high {
		value = "1"
	}
	if err := l.write("value", value); err != nil {
		return fmt.Errorf("failed to set pin %d value: %w", l.pin, err)
	}
	return nil
}

// Close returns the pin to an input and unexports it
func (l *SysfsLine) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if err := l.write("direction", "in"); err != nil {
		errs = append(errs, err)
	}
	if l.exported {
		if err := l.unexport(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *SysfsLine) pinPath() string {
	return filepath.Join(l.root, fmt.Sprintf("gpio%d", l.pin))
}

func (l *SysfsLine) write(attr, value string) error {
	return os.WriteFile(filepath.Join(l.pinPath(), attr), []byte(value), 0644)
}

// export exports the pin unless something else already did
func (l *SysfsLine) export() error {
	pinPath := l.pinPath()
	if _, err := os.Stat(pinPath); err == nil {
		return nil
	}

	if err := os.WriteFile(filepath.Join(l.root, "export"), []byte(strconv.Itoa(l.pin)), 0644); err != nil {
		return fmt.Errorf("failed to export GPIO pin %d: %w", l.pin, err)
	}

	// the kernel creates the pin directory asynchronously
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(pinPath); err == nil {
			l.exported = true
			logging.Debugf("hardware", "sysfs: exported pin %d", l.pin)
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}

	return fmt.Errorf("pin %d directory did not appear after export", l.pin)
}

func (l *SysfsLine) unexport() error {
	if err := os.WriteFile(filepath.Join(l.root, "unexport"), []byte(strconv.Itoa(l.pin)), 0644); err != nil {
		return fmt.Errorf("failed to unexport GPIO pin %d: %w", l.pin, err)
	}
	logging.Debugf("hardware", "sysfs: unexported pin %d", l.pin)
	return nil
}

package sx126x

import (
	"errors"
	"fmt"
	"time"

	"github.com/dougsko/sx126xd/pkg/logging"
)

// Mode is the operating mode selected by the M0/M1 lines
type Mode int

const (
	ModeUninitialized Mode = iota
	ModeConfig
	ModeNormal
	ModeReleased
)

func (m Mode) String() string {
	switch m {
	case ModeUninitialized:
		return "uninitialized"
	case ModeConfig:
		return "config"
	case ModeNormal:
		return "normal"
	case ModeReleased:
		return "released"
	default:
		return "unknown"
	}
}

// ModeController drives M0 and M1. It is not safe for concurrent use.
type ModeController struct {
	m0, m1 Line
	settle time.Duration
	sleep  func(time.Duration)
	mode   Mode
}

// NewModeController wraps two output lines
func NewModeController(m0, m1 Line, settle time.Duration) *ModeController {
	return &ModeController{
		m0:     m0,
		m1:     m1,
		settle: settle,
		sleep:  time.Sleep,
	}
}

// Mode returns the last mode that was latched
func (mc *ModeController) Mode() Mode {
	return mc.mode
}

// EnterConfig sets M0 low, M1 high and waits for the module to latch
func (mc *ModeController) EnterConfig() error {
	return mc.enter(ModeConfig, false, true)
}

// EnterNormal sets both lines low and waits for the module to latch
func (mc *ModeController) EnterNormal() error {
	return mc.enter(ModeNormal, false, false)
}

func (mc *ModeController) enter(mode Mode, m0, m1 bool) error {
	if mc.mode == ModeReleased {
		return ErrReleased
	}
	if err := mc.m0.Set(m0); err != nil {
		return fmt.Errorf("set M0: %w", err)
	}
	if err := mc.m1.Set(m1); err != nil {
		return fmt.Errorf("set M1: %w", err)
	}
	mc.sleep(mc.settle)

	if mc.mode != mode {
		logging.Debugf("sx126x", "mode %s -> %s", mc.mode, mode)
	}
	mc.mode = mode
	return nil
}

// Release closes both lines. Calling it again is a no-op.
func (mc *ModeController) Release() error {
	if mc.mode == ModeReleased {
		return nil
	}
	mc.mode = ModeReleased

	var errs []error
	if err := mc.m0.Close(); err != nil {
		errs = append(errs, fmt.Errorf("release M0: %w", err))
	}
	if err := mc.m1.Close(); err != nil {
		errs = append(errs, fmt.Errorf("release M1: %w", err))
	}
	return errors.Join(errs...)
}

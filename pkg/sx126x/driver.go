package sx126x

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dougsko/sx126xd/pkg/logging"
)

// AckPolicy decides how strictly a SET acknowledgment is checked
type AckPolicy int

const (
	// AckStrict requires 0xC1 followed by an echo of the sent registers
	AckStrict AckPolicy = iota
	// AckLoose only requires the 0xC1 marker
	AckLoose
)

func (p AckPolicy) String() string {
	if p == AckLoose {
		return "loose"
	}
	return "strict"
}

// ParseAckPolicy parses "strict" or "loose"
func ParseAckPolicy(name string) (AckPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "strict", "":
		return AckStrict, nil
	case "loose":
		return AckLoose, nil
	default:
		return 0, &ValidationError{Field: "ack_policy", Value: name}
	}
}

// Options tune the configuration protocol
type Options struct {
	MaxAttempts  int
	AckPolicy    AckPolicy
	SettleDelay  time.Duration // wait after every mode switch
	RetryBackoff time.Duration // wait between SET attempts

	// StayInConfigOnFailure leaves M1 high after a failed Apply so the
	// module can be inspected; normally Normal mode is always restored.
	StayInConfigOnFailure bool
}

// DefaultOptions returns the timings the HAT needs
func DefaultOptions() Options {
	return Options{
		MaxAttempts:  3,
		AckPolicy:    AckStrict,
		SettleDelay:  100 * time.Millisecond,
		RetryBackoff: 200 * time.Millisecond,
	}
}

const maxInboundRead = 1024

// Driver owns the UART and both mode lines of one module.
// It does no locking; callers sharing a Driver must serialize access.
type Driver struct {
	ch     Channel
	mode   *ModeController
	opts   Options
	sleep  func(time.Duration)
	state  *ActiveState
	stats  counters
	closed bool
}

// New takes ownership of ch, m0 and m1. Nothing is written until Apply.
func New(ch Channel, m0, m1 Line, opts Options) *Driver {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	return &Driver{
		ch:    ch,
		mode:  NewModeController(m0, m1, opts.SettleDelay),
		opts:  opts,
		sleep: time.Sleep,
	}
}

// State returns the active state, ok is false before the first successful Apply
func (d *Driver) State() (ActiveState, bool) {
	if d.state == nil {
		return ActiveState{}, false
	}
	return *d.state, true
}

// Mode returns the mode the lines currently select
func (d *Driver) Mode() Mode {
	return d.mode.Mode()
}

// Options returns the options the driver runs with
func (d *Driver) Options() Options {
	return d.opts
}

// Apply programs cfg into the module and, on success, replaces the active state.
func (d *Driver) Apply(cfg Config) (ActiveState, error) {
	if d.closed {
		return ActiveState{}, ErrReleased
	}

	frame, err := EncodeConfig(cfg)
	if err != nil {
		return ActiveState{}, err
	}
	base, _ := cfg.Band()

	logging.Infof("sx126x", "applying %d MHz, address %d, %s scheme, %d bps, %d dBm",
		cfg.FrequencyMHz, cfg.Address, cfg.Scheme, cfg.AirSpeed, cfg.Power)

	if err := d.mode.EnterConfig(); err != nil {
		return ActiveState{}, fmt.Errorf("enter configuration mode: %w", err)
	}

	if err := d.writeConfig(frame); err != nil {
		if d.opts.StayInConfigOnFailure {
			logging.Warn("sx126x", "left in configuration mode after failed apply")
		} else if nerr := d.mode.EnterNormal(); nerr != nil {
			err = errors.Join(err, fmt.Errorf("restore normal mode: %w", nerr))
		}
		return ActiveState{}, err
	}

	if err := d.mode.EnterNormal(); err != nil {
		return ActiveState{}, fmt.Errorf("enter normal mode: %w", err)
	}

	st := ActiveState{
		ChannelOffset: frame.ChannelOffset(),
		OwnAddress:    frame.Address(),
		RSSIEnabled:   frame.RSSIEnabled(),
		Scheme:        frame.Scheme(),
		BandBase:      base,
	}
	d.state = &st
	logging.Infof("sx126x", "module configured on channel %d (%d MHz)", st.ChannelOffset, st.FrequencyMHz())
	return st, nil
}

// writeConfig runs the SET/ACK exchange. The module must be in configuration mode.
func (d *Driver) writeConfig(frame Frame) error {
	if err := d.ch.FlushInput(); err != nil {
		logging.Warnf("sx126x", "flush before SET: %v", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			d.stats.configRetries.Add(1)
			if err := d.ch.FlushInput(); err != nil {
				logging.Warnf("sx126x", "flush before retry: %v", err)
			}
			d.sleep(d.opts.RetryBackoff)
		}

		logging.Debugf("sx126x", "SET attempt %d/%d: % X", attempt, d.opts.MaxAttempts, frame[:])
		if _, err := d.ch.Write(frame.Bytes()); err != nil {
			lastErr = fmt.Errorf("write SET: %w", err)
			logging.Warnf("sx126x", "SET attempt %d: %v", attempt, lastErr)
			continue
		}

		resp, err := d.readResponse(FrameLen)
		if err != nil {
			lastErr = fmt.Errorf("read ACK: %w", err)
			logging.Warnf("sx126x", "SET attempt %d: %v", attempt, lastErr)
			continue
		}

		if d.accepted(frame, resp) {
			logging.Debugf("sx126x", "SET acknowledged: % X", resp)
			return nil
		}
		if len(resp) == 0 {
			logging.Warnf("sx126x", "SET attempt %d: no response", attempt)
		} else {
			logging.Warnf("sx126x", "SET attempt %d: unexpected response % X", attempt, resp)
		}
	}

	return &ConfigError{Attempts: d.opts.MaxAttempts, LastErr: lastErr}
}

func (d *Driver) accepted(frame Frame, resp []byte) bool {
	if len(resp) == 0 || resp[0] != HeaderResponse {
		return false
	}
	if d.opts.AckPolicy == AckLoose {
		return true
	}
	return len(resp) == FrameLen && bytes.Equal(resp[1:], frame[1:])
}

// readResponse reads until n bytes arrived or a read times out empty
func (d *Driver) readResponse(n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	for got < n {
		k, err := d.ch.Read(buf[got:])
		if err != nil {
			return buf[:got], err
		}
		if k == 0 {
			break
		}
		got += k
	}
	return buf[:got], nil
}

func (d *Driver) ready() error {
	if d.closed {
		return ErrReleased
	}
	if d.state == nil {
		return ErrNotConfigured
	}
	return nil
}

func (d *Driver) ensureNormal() error {
	if d.mode.Mode() == ModeNormal {
		return nil
	}
	if err := d.mode.EnterNormal(); err != nil {
		return fmt.Errorf("enter normal mode: %w", err)
	}
	return nil
}

// Send transmits payload. dest is required in the fixed scheme.
// Write errors are returned without retry.
func (d *Driver) Send(payload []byte, dest *uint16) error {
	if err := d.ready(); err != nil {
		return err
	}

	out, err := EncodePacket(payload, dest, *d.state)
	if err != nil {
		return err
	}
	if err := d.ensureNormal(); err != nil {
		return err
	}

	n, err := d.ch.Write(out)
	if err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	if n != len(out) {
		return fmt.Errorf("write packet: %w", io.ErrShortWrite)
	}

	d.stats.packetsSent.Add(1)
	logging.Debugf("sx126x", "TX % X", out)
	return nil
}

// Receive returns the next inbound packet. It checks for pending bytes
// first, so it returns quickly when nothing arrived; ok is false then and
// for malformed or foreign-channel frames.
func (d *Driver) Receive() (Packet, bool, error) {
	if err := d.ready(); err != nil {
		return Packet{}, false, err
	}

	n, err := d.ch.Available()
	if err != nil {
		return Packet{}, false, fmt.Errorf("poll input: %w", err)
	}
	if n == 0 {
		return Packet{}, false, nil
	}

	raw, err := d.readInbound()
	if err != nil {
		return Packet{}, false, fmt.Errorf("read packet: %w", err)
	}
	logging.Debugf("sx126x", "RX % X", raw)

	pkt, res := decodePacket(raw, *d.state)
	switch res {
	case decodeShort:
		d.stats.malformedFrames.Add(1)
		logging.Debugf("sx126x", "dropped short frame (%d bytes)", len(raw))
		return Packet{}, false, nil
	case decodeFiltered:
		d.stats.filteredFrames.Add(1)
		logging.Debugf("sx126x", "dropped frame for channel %d", raw[2])
		return Packet{}, false, nil
	}

	d.stats.packetsReceived.Add(1)
	return pkt, true, nil
}

// readInbound drains the UART until a read times out empty
func (d *Driver) readInbound() ([]byte, error) {
	var raw []byte
	buf := make([]byte, 256)
	for len(raw) < maxInboundRead {
		k, err := d.ch.Read(buf)
		if err != nil {
			return raw, err
		}
		if k == 0 {
			break
		}
		raw = append(raw, buf[:k]...)
	}
	return raw, nil
}

// Close releases both lines and the UART. Errors are joined, never fatal,
// and calling Close again returns nil.
func (d *Driver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	if err := d.mode.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := d.ch.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}
	if len(errs) > 0 {
		logging.Warnf("sx126x", "close: %v", errors.Join(errs...))
	}
	return errors.Join(errs...)
}

package hardware

import (
	"bytes"
	"sync"
)

// register snapshot layout: addrHi addrLo netid reg0 reg1 channel reg3 cryptHi cryptLo
const (
	simRegCount = 9

	simRegReg1    = 4
	simRegChannel = 5
	simRegReg3    = 6

	simFlagRSSI    byte = 0x80
	simFlagFixed   byte = 0x40
	simNoiseEnable byte = 0x20
)

var (
	simGetCmd  = []byte{0xC1, 0x00, 0x09}
	simRSSICmd = []byte{0xC0, 0xC1, 0xC2, 0xC3, 0x00, 0x02}
)

// ModuleSimulator emulates an E22 HAT behind a MockSerial and two MockLines.
// It answers SET and GET only while M0 is low and M1 high, answers the
// ambient RSSI probe in normal mode, and records everything else as
// transmitted data.
type ModuleSimulator struct {
	M0     *MockLine
	M1     *MockLine
	Serial *MockSerial

	mu          sync.Mutex
	header      byte
	regs        [simRegCount]byte
	noise       byte
	silent      bool
	looseAck    bool
	sets        int
	transmitted [][]byte
}

// NewModuleSimulator returns a module holding factory registers
func NewModuleSimulator() *ModuleSimulator {
	sim := &ModuleSimulator{
		M0:     NewMockLine("M0"),
		M1:     NewMockLine("M1"),
		Serial: NewMockSerial(),
		header: 0xC2,
		regs:   [simRegCount]byte{0x00, 0x00, 0x00, 0x62, 0x00, 0x12, 0x03, 0x00, 0x00},
		noise:  0xA0,
	}
	sim.Serial.OnWrite = sim.handle
	return sim
}

// SetSilent makes the module ignore every command
func (m *ModuleSimulator) SetSilent(silent bool) {
	m.mu.Lock()
	m.silent = silent
	m.mu.Unlock()
}

// SetLooseAck makes SET replies a bare 0xC1 instead of a full echo
func (m *ModuleSimulator) SetLooseAck(loose bool) {
	m.mu.Lock()
	m.looseAck = loose
	m.mu.Unlock()
}

// SetNoise sets the raw ambient RSSI byte the probe reports
func (m *ModuleSimulator) SetNoise(raw byte) {
	m.mu.Lock()
	m.noise = raw
	m.mu.Unlock()
}

func (m *ModuleSimulator) configMode() bool {
	return !m.M0.Level() && m.M1.Level()
}

func (m *ModuleSimulator) handle(p []byte) []byte {
	inConfig := m.configMode()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.silent {
		return nil
	}

	if inConfig {
		switch {
		case len(p) == 12 && (p[0] == 0xC0 || p[0] == 0xC2) && p[1] == 0x00 && p[2] == simRegCount:
			m.header = p[0]
			copy(m.regs[:], p[3:])
			m.sets++
			if m.looseAck {
				return []byte{0xC1}
			}
			return append([]byte{0xC1}, p[1:]...)
		case bytes.Equal(p, simGetCmd):
			resp := append([]byte{}, simGetCmd...)
			resp = append(resp, m.header)
			return append(resp, m.regs[:]...)
		}
		return nil
	}

	if bytes.Equal(p, simRSSICmd) {
		if m.regs[simRegReg1]&simNoiseEnable == 0 {
			return nil
		}
		return []byte{0xC1, 0x00, 0x02, m.noise}
	}

	m.transmitted = append(m.transmitted, append([]byte(nil), p...))
	return nil
}

// Deliver queues an over-the-air frame laid out the way the current
// registers dictate: address/channel prefix in fixed mode, trailing RSSI
// byte when RSSI reporting is on.
func (m *ModuleSimulator) Deliver(src uint16, channel uint8, payload []byte, rssiRaw byte) {
	m.mu.Lock()
	reg3 := m.regs[simRegReg3]
	m.mu.Unlock()

	var frame []byte
	if reg3&simFlagFixed != 0 {
		frame = append(frame, byte(src>>8), byte(src), channel)
	}
	frame = append(frame, payload...)
	if reg3&simFlagRSSI != 0 {
		frame = append(frame, rssiRaw)
	}
	m.Serial.Inject(frame)
}

// Registers returns the header and the nine register bytes last programmed
func (m *ModuleSimulator) Registers() (byte, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.header, append([]byte(nil), m.regs[:]...)
}

// Channel returns the programmed channel offset
func (m *ModuleSimulator) Channel() uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[simRegChannel]
}

// Sets returns how many SET commands were accepted
func (m *ModuleSimulator) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

// Transmitted returns every data write made in normal mode
func (m *ModuleSimulator) Transmitted() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.transmitted))
	for i, t := range m.transmitted {
		out[i] = append([]byte(nil), t...)
	}
	return out
}

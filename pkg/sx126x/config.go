package sx126x

import (
	"fmt"
	"strings"
)

// Scheme selects how data frames are laid out on the UART
type Scheme int

const (
	// SchemeFixed frames carry destination address and channel offset
	SchemeFixed Scheme = iota
	// SchemeTransparent frames carry only the payload
	SchemeTransparent
)

// String returns the configuration name of a scheme
func (s Scheme) String() string {
	switch s {
	case SchemeFixed:
		return "fixed"
	case SchemeTransparent:
		return "transparent"
	default:
		return fmt.Sprintf("scheme(%d)", int(s))
	}
}

// ParseScheme parses "fixed" or "transparent"
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fixed", "":
		return SchemeFixed, nil
	case "transparent":
		return SchemeTransparent, nil
	default:
		return 0, &ValidationError{Field: "scheme", Value: name}
	}
}

// AirSpeed is the over-the-air data rate in bps
type AirSpeed int

// Supported air data rates
const (
	AirSpeed1200  AirSpeed = 1200
	AirSpeed2400  AirSpeed = 2400
	AirSpeed4800  AirSpeed = 4800
	AirSpeed9600  AirSpeed = 9600
	AirSpeed19200 AirSpeed = 19200
	AirSpeed38400 AirSpeed = 38400
	AirSpeed62500 AirSpeed = 62500
)

var airSpeedCodes = map[AirSpeed]byte{
	AirSpeed1200:  0x01,
	AirSpeed2400:  0x02,
	AirSpeed4800:  0x03,
	AirSpeed9600:  0x04,
	AirSpeed19200: 0x05,
	AirSpeed38400: 0x06,
	AirSpeed62500: 0x07,
}

// BufferSize is the sub-packet size in bytes
type BufferSize int

// Supported buffer sizes
const (
	Buffer240 BufferSize = 240
	Buffer128 BufferSize = 128
	Buffer64  BufferSize = 64
	Buffer32  BufferSize = 32
)

var bufferSizeCodes = map[BufferSize]byte{
	Buffer240: 0x00,
	Buffer128: 0x40,
	Buffer64:  0x80,
	Buffer32:  0xC0,
}

// Power is the transmit power in dBm
type Power int

// Supported transmit powers
const (
	Power22 Power = 22
	Power17 Power = 17
	Power13 Power = 13
	Power10 Power = 10
)

var powerCodes = map[Power]byte{
	Power22: 0x00,
	Power17: 0x01,
	Power13: 0x02,
	Power10: 0x03,
}

// WORCycle is the wake-on-radio period in milliseconds
type WORCycle int

var worCycleCodes = map[WORCycle]byte{
	500:  0x00,
	1000: 0x01,
	1500: 0x02,
	2000: 0x03,
	2500: 0x04,
	3000: 0x05,
	3500: 0x06,
	4000: 0x07,
}

// Frequency bands of the E22-400T22S and E22-900T22S modules (MHz)
const (
	LowBandBase  = 410
	LowBandMax   = 493
	HighBandBase = 850
	HighBandMax  = 930
)

// Config is the set of radio parameters programmed into the module
type Config struct {
	FrequencyMHz int
	Address      uint16
	NetID        uint8
	AirSpeed     AirSpeed
	BufferSize   BufferSize
	Power        Power
	RSSI         bool // append an RSSI byte to every received frame
	CryptKey     uint16
	Relay        bool
	Scheme       Scheme

	Persist  bool // registers survive power-off (0xC0 header instead of 0xC2)
	LBT      bool // listen before talk
	WOR      bool
	WORCycle WORCycle
}

// DefaultConfig returns the parameters the HAT ships with on the 900 MHz band
func DefaultConfig() Config {
	return Config{
		FrequencyMHz: 868,
		Address:      0,
		AirSpeed:     AirSpeed2400,
		BufferSize:   Buffer240,
		Power:        Power22,
		Scheme:       SchemeFixed,
		WORCycle:     2000,
	}
}

// Band returns the base frequency of the band containing the configured frequency
func (c Config) Band() (int, error) {
	return bandBase(c.FrequencyMHz)
}

// Validate checks every field against its lookup table
func (c Config) Validate() error {
	if _, err := bandBase(c.FrequencyMHz); err != nil {
		return err
	}
	if _, ok := airSpeedCodes[c.AirSpeed]; !ok {
		return &ValidationError{Field: "air_speed", Value: c.AirSpeed}
	}
	if _, ok := bufferSizeCodes[c.BufferSize]; !ok {
		return &ValidationError{Field: "buffer_size", Value: c.BufferSize}
	}
	if _, ok := powerCodes[c.Power]; !ok {
		return &ValidationError{Field: "power", Value: c.Power}
	}
	if c.Scheme != SchemeFixed && c.Scheme != SchemeTransparent {
		return &ValidationError{Field: "scheme", Value: c.Scheme}
	}
	if c.WOR {
		if _, ok := worCycleCodes[c.WORCycle]; !ok {
			return &ValidationError{Field: "wor_cycle", Value: c.WORCycle}
		}
	}
	return nil
}

func bandBase(freq int) (int, error) {
	switch {
	case freq >= LowBandBase && freq <= LowBandMax:
		return LowBandBase, nil
	case freq >= HighBandBase && freq <= HighBandMax:
		return HighBandBase, nil
	default:
		return 0, &ValidationError{Field: "frequency", Value: freq}
	}
}

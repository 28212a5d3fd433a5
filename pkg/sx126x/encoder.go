package sx126x

// Command headers and register layout of the E22 "SET"/"GET" commands
const (
	HeaderSave     byte = 0xC0 // write registers, keep after power-off
	HeaderTemp     byte = 0xC2 // write registers, lost at power-off
	HeaderResponse byte = 0xC1 // ACK marker and GET command

	regStart byte = 0x00
	regCount byte = 0x09

	FrameLen = 12
)

// register bits
const (
	uartBaud9600 byte = 0x60
	parity8N1    byte = 0x00

	ambientNoiseEnable byte = 0x20

	flagRSSI  byte = 0x80
	flagFixed byte = 0x40
	flagLBT   byte = 0x08
	worMask   byte = 0x07
)

// Relay mode uses reserved identifiers instead of the node address/netid.
// The flags keep the WOR cycle the vendor demo programs (0x03) with fixed addressing off.
const (
	relayAddrHi   byte = 0x01
	relayAddrLo   byte = 0x02
	relayNetID    byte = 0x03
	relayWORCycle byte = 0x03
)

// frame byte offsets
const (
	offHeader = iota
	offStart
	offCount
	offAddrHi
	offAddrLo
	offNetID
	offReg0
	offReg1
	offChannel
	offReg3
	offCryptHi
	offCryptLo
)

// Frame is one SET command. It is a value: every encode builds a new one.
type Frame [FrameLen]byte

// Bytes returns the frame as a slice ready to be written
func (f Frame) Bytes() []byte {
	b := make([]byte, FrameLen)
	copy(b, f[:])
	return b
}

// ChannelOffset returns the channel byte of the frame
func (f Frame) ChannelOffset() uint8 { return f[offChannel] }

// Address returns the node address the frame programs
func (f Frame) Address() uint16 { return uint16(f[offAddrHi])<<8 | uint16(f[offAddrLo]) }

// RSSIEnabled reports whether the frame turns on the trailing RSSI byte
func (f Frame) RSSIEnabled() bool { return f[offReg3]&flagRSSI != 0 }

// Scheme reports the transmission scheme the frame selects
func (f Frame) Scheme() Scheme {
	if f[offReg3]&flagFixed != 0 {
		return SchemeFixed
	}
	return SchemeTransparent
}

// ModeFlags derives REG3 from the scheme and the optional features
func ModeFlags(scheme Scheme, rssi, lbt bool, worBits byte) byte {
	flags := worBits & worMask
	if rssi {
		flags |= flagRSSI
	}
	if scheme == SchemeFixed {
		flags |= flagFixed
	}
	if lbt {
		flags |= flagLBT
	}
	return flags
}

// EncodeConfig validates cfg and builds its SET frame
func EncodeConfig(cfg Config) (Frame, error) {
	var f Frame
	if err := cfg.Validate(); err != nil {
		return f, err
	}

	base, _ := bandBase(cfg.FrequencyMHz)
	header := HeaderTemp
	if cfg.Persist {
		header = HeaderSave
	}

	var worBits byte
	if cfg.WOR {
		worBits = worCycleCodes[cfg.WORCycle]
	}

	f = Frame{
		header,
		regStart,
		regCount,
		byte(cfg.Address >> 8),
		byte(cfg.Address),
		cfg.NetID,
		uartBaud9600 | parity8N1 | airSpeedCodes[cfg.AirSpeed],
		bufferSizeCodes[cfg.BufferSize] | powerCodes[cfg.Power] | ambientNoiseEnable,
		byte(cfg.FrequencyMHz - base),
		ModeFlags(cfg.Scheme, cfg.RSSI, cfg.LBT, worBits),
		byte(cfg.CryptKey >> 8),
		byte(cfg.CryptKey),
	}

	if cfg.Relay {
		f[offAddrHi] = relayAddrHi
		f[offAddrLo] = relayAddrLo
		f[offNetID] = relayNetID
		f[offReg3] = ModeFlags(SchemeTransparent, cfg.RSSI, cfg.LBT, relayWORCycle)
	}

	return f, nil
}

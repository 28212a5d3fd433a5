package sx126x

// ActiveState is what the driver remembers after a successful Apply
type ActiveState struct {
	ChannelOffset uint8
	OwnAddress    uint16
	RSSIEnabled   bool
	Scheme        Scheme
	BandBase      int // 410 or 850
}

// FrequencyMHz returns the on-air frequency of the active channel
func (s ActiveState) FrequencyMHz() int {
	return s.BandBase + int(s.ChannelOffset)
}

// Packet is one decoded inbound frame
type Packet struct {
	Source        uint16 // only meaningful in the fixed scheme
	ChannelOffset uint8
	Payload       []byte
	RSSI          *int // dBm, nil when RSSI reporting is off
}

const fixedHeaderLen = 3

// RSSIdBm converts a raw RSSI byte to dBm
func RSSIdBm(raw byte) int {
	return -(256 - int(raw))
}

// EncodePacket builds the bytes to write for payload.
// dest is required in the fixed scheme and ignored in the transparent one.
func EncodePacket(payload []byte, dest *uint16, st ActiveState) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	if st.Scheme == SchemeTransparent {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}

	if dest == nil {
		return nil, ErrMissingDestination
	}
	out := make([]byte, 0, fixedHeaderLen+len(payload))
	out = append(out, byte(*dest>>8), byte(*dest), st.ChannelOffset)
	return append(out, payload...), nil
}

// DecodePacket parses raw inbound bytes. ok is false for short frames and,
// in the fixed scheme, for frames sent on another channel.
func DecodePacket(raw []byte, st ActiveState) (Packet, bool) {
	pkt, res := decodePacket(raw, st)
	return pkt, res == decodeOK
}

type decodeResult int

const (
	decodeOK decodeResult = iota
	decodeShort
	decodeFiltered
)

func decodePacket(raw []byte, st ActiveState) (Packet, decodeResult) {
	minLen := 1
	if st.Scheme == SchemeFixed {
		minLen += fixedHeaderLen
	}
	if st.RSSIEnabled {
		minLen++
	}
	if len(raw) < minLen {
		return Packet{}, decodeShort
	}

	var pkt Packet
	end := len(raw)
	if st.RSSIEnabled {
		end--
		dbm := RSSIdBm(raw[end])
		pkt.RSSI = &dbm
	}

	start := 0
	if st.Scheme == SchemeFixed {
		pkt.Source = uint16(raw[0])<<8 | uint16(raw[1])
		pkt.ChannelOffset = raw[2]
		if pkt.ChannelOffset != st.ChannelOffset {
			return Packet{}, decodeFiltered
		}
		start = fixedHeaderLen
	} else {
		pkt.ChannelOffset = st.ChannelOffset
	}

	pkt.Payload = make([]byte, end-start)
	copy(pkt.Payload, raw[start:end])
	return pkt, decodeOK
}

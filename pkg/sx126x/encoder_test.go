package sx126x

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeConfig915(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FrequencyMHz = 915
	cfg.Power = Power22
	cfg.AirSpeed = AirSpeed2400

	frame, err := EncodeConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, byte(0x41), frame[8])
	assert.Equal(t, Frame{0xC2, 0x00, 0x09, 0x00, 0x00, 0x00, 0x62, 0x20, 0x41, 0x40, 0x00, 0x00}, frame)
}

func TestEncodeConfigFields(t *testing.T) {
	cfg := Config{
		FrequencyMHz: 433,
		Address:      0x1234,
		NetID:        7,
		AirSpeed:     AirSpeed62500,
		BufferSize:   Buffer32,
		Power:        Power10,
		RSSI:         true,
		CryptKey:     0xBEEF,
		Scheme:       SchemeTransparent,
		Persist:      true,
		LBT:          true,
		WOR:          true,
		WORCycle:     2000,
	}

	frame, err := EncodeConfig(cfg)
	require.NoError(t, err)

	want := Frame{
		HeaderSave, 0x00, 0x09,
		0x12, 0x34, 0x07,
		0x60 | 0x07,
		0xC0 | 0x03 | 0x20,
		23,
		0x80 | 0x08 | 0x03,
		0xBE, 0xEF,
	}
	assert.Equal(t, want, frame)
	assert.Equal(t, uint16(0x1234), frame.Address())
	assert.True(t, frame.RSSIEnabled())
	assert.Equal(t, SchemeTransparent, frame.Scheme())
}

func TestEncodeConfigRelay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Address = 0x0505
	cfg.NetID = 9
	cfg.RSSI = true
	cfg.Relay = true

	frame, err := EncodeConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, byte(0x01), frame[3])
	assert.Equal(t, byte(0x02), frame[4])
	assert.Equal(t, byte(0x03), frame[5])
	assert.Equal(t, byte(0x83), frame[9])
	assert.Equal(t, SchemeTransparent, frame.Scheme())
}

func TestEncodeConfigFreshFrames(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	b.Relay = true

	fb, err := EncodeConfig(b)
	require.NoError(t, err)
	fa, err := EncodeConfig(a)
	require.NoError(t, err)

	// a relay encode must not leak into the next frame
	assert.NotEqual(t, fa, fb)
	assert.Equal(t, byte(0x40), fa[9])

	raw := fa.Bytes()
	raw[0] = 0xFF
	assert.Equal(t, HeaderTemp, fa[0])
}

func TestModeFlags(t *testing.T) {
	assert.Equal(t, byte(0x00), ModeFlags(SchemeTransparent, false, false, 0))
	assert.Equal(t, byte(0x40), ModeFlags(SchemeFixed, false, false, 0))
	assert.Equal(t, byte(0xC0), ModeFlags(SchemeFixed, true, false, 0))
	assert.Equal(t, byte(0x4F), ModeFlags(SchemeFixed, false, true, 0xFF))
}

package sx126x

import (
	"errors"
	"fmt"

	"github.com/dougsko/sx126xd/pkg/logging"
)

var (
	getSettingsCmd  = []byte{HeaderResponse, regStart, regCount}
	ambientRSSICmd  = []byte{0xC0, 0xC1, 0xC2, 0xC3, 0x00, 0x02}
	ambientRSSIResp = []byte{HeaderResponse, 0x00, 0x02}
)

const (
	settingsRespLen    = 13
	ambientRSSIRespLen = 4
)

// Settings is the register content reported by the module
type Settings struct {
	Header  byte   `json:"header"`
	Address uint16 `json:"address"`
	NetID   uint8  `json:"net_id"`

	UARTBaudCode byte   `json:"uart_baud_code"`
	ParityCode   byte   `json:"parity_code"`
	AirSpeedCode byte   `json:"air_speed_code"`
	BufferCode   byte   `json:"buffer_code"`
	AmbientRSSI  bool   `json:"ambient_rssi"`
	PowerCode    byte   `json:"power_code"`
	Channel      uint8  `json:"channel"`
	RSSIEnabled  bool   `json:"rssi_enabled"`
	FixedMode    bool   `json:"fixed_mode"`
	LBT          bool   `json:"lbt"`
	WORCycleCode byte   `json:"wor_cycle_code"`
	CryptKey     uint16 `json:"crypt_key"`
}

// AirSpeed maps the air-speed code back to bps
func (s Settings) AirSpeed() (AirSpeed, bool) {
	for v, code := range airSpeedCodes {
		if code == s.AirSpeedCode {
			return v, true
		}
	}
	return 0, false
}

// Power maps the power code back to dBm
func (s Settings) Power() Power {
	for v, code := range powerCodes {
		if code == s.PowerCode {
			return v
		}
	}
	return Power22
}

// BufferSize maps the buffer code back to bytes
func (s Settings) BufferSize() BufferSize {
	for v, code := range bufferSizeCodes {
		if code == s.BufferCode {
			return v
		}
	}
	return Buffer240
}

// Scheme reports the transmission scheme the module runs
func (s Settings) Scheme() Scheme {
	if s.FixedMode {
		return SchemeFixed
	}
	return SchemeTransparent
}

// FrequencyMHz returns the channel frequency for a band base (410 or 850)
func (s Settings) FrequencyMHz(base int) int {
	return base + int(s.Channel)
}

// ParseSettings decodes a GET response. ok is false unless resp is a
// complete response starting with C1 00 09.
func ParseSettings(resp []byte) (Settings, bool) {
	if len(resp) < settingsRespLen {
		return Settings{}, false
	}
	for i, b := range getSettingsCmd {
		if resp[i] != b {
			return Settings{}, false
		}
	}

	reg0, reg1, reg3 := resp[7], resp[8], resp[10]
	return Settings{
		Header:       resp[3],
		Address:      uint16(resp[4])<<8 | uint16(resp[5]),
		NetID:        resp[6],
		UARTBaudCode: reg0 & 0xE0,
		ParityCode:   reg0 & 0x18,
		AirSpeedCode: reg0 & 0x07,
		BufferCode:   reg1 & 0xC0,
		AmbientRSSI:  reg1&ambientNoiseEnable != 0,
		PowerCode:    reg1 & 0x03,
		Channel:      resp[9],
		RSSIEnabled:  reg3&flagRSSI != 0,
		FixedMode:    reg3&flagFixed != 0,
		LBT:          reg3&flagLBT != 0,
		WORCycleCode: reg3 & worMask,
		CryptKey:     uint16(resp[11])<<8 | uint16(resp[12]),
	}, true
}

// ReadSettings asks the module for its registers. Normal mode is restored
// before returning. ok is false when the response is short or has the wrong prefix.
func (d *Driver) ReadSettings() (s Settings, ok bool, err error) {
	if d.closed {
		return Settings{}, false, ErrReleased
	}

	if err := d.mode.EnterConfig(); err != nil {
		return Settings{}, false, fmt.Errorf("enter configuration mode: %w", err)
	}
	defer func() {
		if nerr := d.mode.EnterNormal(); nerr != nil {
			err = errors.Join(err, fmt.Errorf("restore normal mode: %w", nerr))
		}
	}()

	if err := d.ch.FlushInput(); err != nil {
		logging.Warnf("sx126x", "flush before GET: %v", err)
	}
	if _, err := d.ch.Write(getSettingsCmd); err != nil {
		return Settings{}, false, fmt.Errorf("write GET: %w", err)
	}
	resp, err := d.readResponse(settingsRespLen)
	if err != nil {
		return Settings{}, false, fmt.Errorf("read GET response: %w", err)
	}

	s, ok = ParseSettings(resp)
	if !ok {
		d.stats.malformedResponses.Add(1)
		logging.Warnf("sx126x", "malformed settings response: % X", resp)
	}
	return s, ok, nil
}

// ReadAmbientRSSI samples the channel noise floor in dBm. The module stays
// in Normal mode.
func (d *Driver) ReadAmbientRSSI() (dbm int, ok bool, err error) {
	if d.closed {
		return 0, false, ErrReleased
	}
	if err := d.ensureNormal(); err != nil {
		return 0, false, err
	}

	if err := d.ch.FlushInput(); err != nil {
		logging.Warnf("sx126x", "flush before RSSI probe: %v", err)
	}
	if _, err := d.ch.Write(ambientRSSICmd); err != nil {
		return 0, false, fmt.Errorf("write RSSI probe: %w", err)
	}
	resp, err := d.readResponse(ambientRSSIRespLen)
	if err != nil {
		return 0, false, fmt.Errorf("read RSSI response: %w", err)
	}

	dbm, ok = parseAmbientRSSI(resp)
	if !ok {
		d.stats.malformedResponses.Add(1)
		logging.Warnf("sx126x", "malformed RSSI response: % X", resp)
	}
	return dbm, ok, nil
}

func parseAmbientRSSI(resp []byte) (int, bool) {
	if len(resp) < ambientRSSIRespLen {
		return 0, false
	}
	for i, b := range ambientRSSIResp {
		if resp[i] != b {
			return 0, false
		}
	}
	return RSSIdBm(resp[3]), true
}

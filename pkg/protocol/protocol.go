package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dougsko/sx126xd/pkg/sx126x"
)

// Command represents a command sent to the core engine
type Command struct {
	Type string                 `json:"type"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// Response represents a response from the core engine
type Response struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Packet directions
const (
	DirectionRX = "RX"
	DirectionTX = "TX"
)

// Packet is one frame sent or received over the air
type Packet struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Direction    string    `json:"direction"`
	Peer         uint16    `json:"peer"` // source on RX, destination on TX
	Channel      uint8     `json:"channel"`
	FrequencyMHz int       `json:"frequency_mhz"`
	Payload      []byte    `json:"payload"`
	Text         string    `json:"text,omitempty"`
	RSSI         *int      `json:"rssi,omitempty"`
}

// NewPacket builds a packet record; Text is filled when the payload is valid UTF-8
func NewPacket(direction string, peer uint16, st sx126x.ActiveState, payload []byte, rssi *int) Packet {
	p := Packet{
		Timestamp:    time.Now(),
		Direction:    direction,
		Peer:         peer,
		Channel:      st.ChannelOffset,
		FrequencyMHz: st.FrequencyMHz(),
		Payload:      append([]byte(nil), payload...),
		RSSI:         rssi,
	}
	if utf8.Valid(payload) {
		p.Text = string(payload)
	}
	return p
}

// Status represents the current daemon status
type Status struct {
	Configured   bool         `json:"configured"`
	Mode         string       `json:"mode"`
	FrequencyMHz int          `json:"frequency_mhz"`
	Channel      uint8        `json:"channel"`
	Address      uint16       `json:"address"`
	Scheme       string       `json:"scheme"`
	RSSIEnabled  bool         `json:"rssi_enabled"`
	Uptime       string       `json:"uptime"`
	StartTime    time.Time    `json:"start_time"`
	Version      string       `json:"version"`
	Driver       sx126x.Stats `json:"driver"`
}

// ParseCommand parses a text command into a Command struct
func ParseCommand(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty command")
	}
	parts := strings.SplitN(text, ":", 2)

	cmd := &Command{
		Type: strings.ToUpper(parts[0]),
		Args: make(map[string]interface{}),
	}

	if len(parts) > 1 {
		args := parts[1]

		switch cmd.Type {
		case CmdSend:
			// SEND:2 hello world, or SEND:hello in the transparent scheme
			sendParts := strings.SplitN(args, " ", 2)
			if len(sendParts) == 2 {
				if _, err := ParseAddress(sendParts[0]); err == nil {
					cmd.Args["to"] = sendParts[0]
					cmd.Args["message"] = sendParts[1]
					break
				}
			}
			cmd.Args["to"] = ""
			cmd.Args["message"] = args

		case CmdPackets:
			// PACKETS:10
			cmd.Args["limit"] = args
		}
	}

	return cmd, nil
}

// ParseAddress parses a node address in decimal or 0x-prefixed hex
func ParseAddress(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(v), nil
}

// String converts a Response to a JSON string
func (r *Response) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data map[string]interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// Protocol commands
const (
	CmdStatus   = "STATUS"
	CmdPackets  = "PACKETS"
	CmdSend     = "SEND"
	CmdSettings = "SETTINGS"
	CmdNoise    = "NOISE"
	CmdApply    = "APPLY"
	CmdQuit     = "QUIT"
	CmdPing     = "PING"
)

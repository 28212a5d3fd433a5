package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dougsko/sx126xd/pkg/sx126x"
)

func TestParseCommand(t *testing.T) {
	t.Run("STATUS Command", func(t *testing.T) {
		cmd, err := ParseCommand("status")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Type != CmdStatus {
			t.Errorf("Expected type STATUS, got %s", cmd.Type)
		}
		if len(cmd.Args) != 0 {
			t.Errorf("Expected no args for STATUS, got %d", len(cmd.Args))
		}
	})

	t.Run("SEND Command with Destination", func(t *testing.T) {
		cmd, err := ParseCommand("SEND:2 Hello world")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Args["to"] != "2" {
			t.Errorf("Expected to 2, got %v", cmd.Args["to"])
		}
		if cmd.Args["message"] != "Hello world" {
			t.Errorf("Expected message 'Hello world', got %v", cmd.Args["message"])
		}
	})

	t.Run("SEND Command Hex Destination", func(t *testing.T) {
		cmd, _ := ParseCommand("SEND:0xFFFF broadcast")
		if cmd.Args["to"] != "0xFFFF" {
			t.Errorf("Expected to 0xFFFF, got %v", cmd.Args["to"])
		}
	})

	t.Run("SEND Command Message Only", func(t *testing.T) {
		cmd, err := ParseCommand("SEND:level five")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Args["to"] != "" {
			t.Errorf("Expected empty destination, got %v", cmd.Args["to"])
		}
		if cmd.Args["message"] != "level five" {
			t.Errorf("Expected whole text as message, got %v", cmd.Args["message"])
		}
	})

	t.Run("PACKETS Command with Limit", func(t *testing.T) {
		cmd, _ := ParseCommand("PACKETS:10")
		if cmd.Type != CmdPackets {
			t.Errorf("Expected type PACKETS, got %s", cmd.Type)
		}
		if cmd.Args["limit"] != "10" {
			t.Errorf("Expected limit 10, got %v", cmd.Args["limit"])
		}
	})

	t.Run("Empty Command", func(t *testing.T) {
		if _, err := ParseCommand("   "); err == nil {
			t.Error("Expected error for empty command")
		}
	})
}

func TestParseAddress(t *testing.T) {
	tests := map[string]uint16{"0": 0, "2": 2, "0x0102": 0x0102, "65535": 65535}
	for in, want := range tests {
		got, err := ParseAddress(in)
		if err != nil {
			t.Errorf("ParseAddress(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseAddress(%q) = %d, want %d", in, got, want)
		}
	}

	for _, bad := range []string{"", "node", "65536", "-1"} {
		if _, err := ParseAddress(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestNewPacket(t *testing.T) {
	st := sx126x.ActiveState{ChannelOffset: 0x41, BandBase: 850}
	rssi := -90

	p := NewPacket(DirectionRX, 2, st, []byte("hi"), &rssi)
	if p.FrequencyMHz != 915 || p.Channel != 0x41 {
		t.Errorf("Unexpected channel info %d/%d", p.FrequencyMHz, p.Channel)
	}
	if p.Text != "hi" {
		t.Errorf("Expected text hi, got %q", p.Text)
	}

	bin := NewPacket(DirectionTX, 2, st, []byte{0xFF, 0xFE}, nil)
	if bin.Text != "" {
		t.Errorf("Expected no text for binary payload, got %q", bin.Text)
	}
}

func TestResponse(t *testing.T) {
	t.Run("Success Response", func(t *testing.T) {
		resp := NewSuccessResponse(map[string]interface{}{"channel": 65})
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(resp.String()), &decoded); err != nil {
			t.Fatalf("Response is not JSON: %v", err)
		}
		if decoded["success"] != true {
			t.Errorf("Expected success true, got %v", decoded["success"])
		}
	})

	t.Run("Error Response", func(t *testing.T) {
		resp := NewErrorResponse("module did not acknowledge")
		if !strings.Contains(resp.String(), `"error":"module did not acknowledge"`) {
			t.Errorf("Unexpected error response %s", resp.String())
		}
		if strings.Contains(resp.String(), `"data"`) {
			t.Errorf("Error response should omit data: %s", resp.String())
		}
	})
}

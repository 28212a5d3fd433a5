package client

import (
	"bufio"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dougsko/sx126xd/pkg/protocol"
)

// serveCanned answers each command line with the matching canned response
func serveCanned(t *testing.T, replies map[string]*protocol.Response) string {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "client.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				scanner := bufio.NewScanner(conn)
				if !scanner.Scan() {
					return
				}
				resp, ok := replies[scanner.Text()]
				if !ok {
					resp = protocol.NewErrorResponse("unknown command: " + scanner.Text())
				}
				conn.Write([]byte(resp.String() + "\n"))
			}(conn)
		}
	}()
	return socketPath
}

func TestSocketClient(t *testing.T) {
	rssi := -80
	socketPath := serveCanned(t, map[string]*protocol.Response{
		"PING": protocol.NewSuccessResponse(map[string]interface{}{"pong": 1}),
		"STATUS": protocol.NewSuccessResponse(map[string]interface{}{
			"status": protocol.Status{Configured: true, FrequencyMHz: 915, Channel: 65, Scheme: "fixed"},
		}),
		"PACKETS:2": protocol.NewSuccessResponse(map[string]interface{}{
			"packets": []protocol.Packet{
				{ID: 2, Direction: protocol.DirectionRX, Peer: 3, Text: "b", RSSI: &rssi},
				{ID: 1, Direction: protocol.DirectionTX, Peer: 3, Text: "a"},
			},
		}),
		"SEND:2 hello": protocol.NewSuccessResponse(map[string]interface{}{
			"packet": protocol.Packet{ID: 9, Direction: protocol.DirectionTX, Peer: 2, Text: "hello"},
		}),
		"SEND:hello": protocol.NewErrorResponse("sx126x: fixed transmission requires a destination address"),
		"NOISE":      protocol.NewSuccessResponse(map[string]interface{}{"noise_dbm": -96}),
		"APPLY":      protocol.NewSuccessResponse(map[string]interface{}{"channel": 65}),
		"SETTINGS":   protocol.NewSuccessResponse(map[string]interface{}{"settings": map[string]interface{}{"channel": 65, "address": 1}}),
	})
	c := NewSocketClient(socketPath)

	t.Run("Ping", func(t *testing.T) {
		if !c.IsConnected() {
			t.Error("Expected client to be connected")
		}
	})

	t.Run("Status", func(t *testing.T) {
		status, err := c.GetStatus()
		if err != nil {
			t.Fatalf("GetStatus failed: %v", err)
		}
		if !status.Configured || status.FrequencyMHz != 915 || status.Channel != 65 {
			t.Errorf("Unexpected status %+v", status)
		}
	})

	t.Run("Packets", func(t *testing.T) {
		packets, err := c.GetPackets(2)
		if err != nil {
			t.Fatalf("GetPackets failed: %v", err)
		}
		if len(packets) != 2 {
			t.Fatalf("Expected 2 packets, got %d", len(packets))
		}
		if packets[0].RSSI == nil || *packets[0].RSSI != -80 {
			t.Errorf("Expected RSSI -80 on first packet, got %v", packets[0].RSSI)
		}
	})

	t.Run("Send", func(t *testing.T) {
		pkt, err := c.Send("2", "hello")
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if pkt.ID != 9 || pkt.Peer != 2 {
			t.Errorf("Unexpected packet %+v", pkt)
		}

		_, err = c.Send("", "hello")
		if err == nil || !strings.Contains(err.Error(), "destination") {
			t.Errorf("Expected destination error, got %v", err)
		}
	})

	t.Run("Settings And Noise", func(t *testing.T) {
		s, err := c.GetSettings()
		if err != nil {
			t.Fatalf("GetSettings failed: %v", err)
		}
		if s.Channel != 65 || s.Address != 1 {
			t.Errorf("Unexpected settings %+v", s)
		}

		dbm, err := c.GetNoise()
		if err != nil || dbm != -96 {
			t.Errorf("Expected -96 dBm, got %d (%v)", dbm, err)
		}

		if err := c.Reapply(); err != nil {
			t.Errorf("Reapply failed: %v", err)
		}
	})
}

func TestSocketClientUnreachable(t *testing.T) {
	c := NewSocketClient(filepath.Join(t.TempDir(), "missing.sock"))
	if c.IsConnected() {
		t.Error("Expected no connection to a missing socket")
	}
	if _, err := c.GetStatus(); err == nil || !strings.Contains(err.Error(), "failed to connect") {
		t.Errorf("Expected connect error, got %v", err)
	}
}

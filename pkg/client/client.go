package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/dougsko/sx126xd/pkg/protocol"
	"github.com/dougsko/sx126xd/pkg/sx126x"
)

// SocketClient talks to a running daemon over its Unix socket
type SocketClient struct {
	socketPath string
	timeout    time.Duration
}

// NewSocketClient creates a new socket client
func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// SendCommand sends a command and returns the response
func (c *SocketClient) SendCommand(cmd string) (*protocol.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return nil, fmt.Errorf("send error: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return nil, fmt.Errorf("no response received")
	}

	var response protocol.Response
	if err := json.Unmarshal(scanner.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &response, nil
}

// call runs cmd and decodes Data[key] into out
func (c *SocketClient) call(cmd, key string, out interface{}) error {
	resp, err := c.SendCommand(cmd)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s error: %s", cmd, resp.Error)
	}
	if out == nil {
		return nil
	}

	value, ok := resp.Data[key]
	if !ok {
		return fmt.Errorf("%s not found in response", key)
	}

	// Round trip through JSON to get typed values
	raw, _ := json.Marshal(value)
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return nil
}

// GetStatus gets the current daemon status
func (c *SocketClient) GetStatus() (*protocol.Status, error) {
	var status protocol.Status
	if err := c.call(protocol.CmdStatus, "status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetPackets gets recent packets, newest first
func (c *SocketClient) GetPackets(limit int) ([]protocol.Packet, error) {
	cmd := protocol.CmdPackets
	if limit > 0 {
		cmd = fmt.Sprintf("%s:%d", protocol.CmdPackets, limit)
	}

	packets := []protocol.Packet{}
	if err := c.call(cmd, "packets", &packets); err != nil {
		return nil, err
	}
	return packets, nil
}

// Send transmits text. to may be empty when the module runs in the transparent scheme.
func (c *SocketClient) Send(to, text string) (*protocol.Packet, error) {
	cmd := fmt.Sprintf("%s:%s %s", protocol.CmdSend, to, text)
	if to == "" {
		cmd = fmt.Sprintf("%s:%s", protocol.CmdSend, text)
	}

	var pkt protocol.Packet
	if err := c.call(cmd, "packet", &pkt); err != nil {
		return nil, err
	}
	return &pkt, nil
}

// GetSettings reads the module registers
func (c *SocketClient) GetSettings() (*sx126x.Settings, error) {
	var s sx126x.Settings
	if err := c.call(protocol.CmdSettings, "settings", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetNoise samples the ambient RSSI in dBm
func (c *SocketClient) GetNoise() (int, error) {
	var dbm int
	if err := c.call(protocol.CmdNoise, "noise_dbm", &dbm); err != nil {
		return 0, err
	}
	return dbm, nil
}

// Reapply programs the configured parameters into the module again
func (c *SocketClient) Reapply() error {
	return c.call(protocol.CmdApply, "", nil)
}

// Ping tests the connection
func (c *SocketClient) Ping() error {
	return c.call(protocol.CmdPing, "", nil)
}

// IsConnected tests if the daemon is reachable
func (c *SocketClient) IsConnected() bool {
	return c.Ping() == nil
}

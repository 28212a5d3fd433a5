package engine

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dougsko/sx126xd/pkg/config"
	"github.com/dougsko/sx126xd/pkg/hardware"
	"github.com/dougsko/sx126xd/pkg/logging"
	"github.com/dougsko/sx126xd/pkg/protocol"
	"github.com/dougsko/sx126xd/pkg/storage"
	"github.com/dougsko/sx126xd/pkg/sx126x"
)

// Version is reported by STATUS
var Version = "0.1.0"

const (
	recentPackets    = 100
	subscriberBuffer = 32
)

var (
	ErrNotRunning        = errors.New("engine is not running")
	ErrMalformedResponse = errors.New("module returned a malformed response")
)

// CoreEngine owns the radio and serves the control socket
type CoreEngine struct {
	config     *config.Config
	socketPath string
	listener   net.Listener
	running    bool
	mutex      sync.RWMutex
	startTime  time.Time

	// radioMu serializes every driver call
	radioMu  sync.Mutex
	rio      *hardware.RadioIO
	driver   *sx126x.Driver
	radioCfg sx126x.Config

	store    *storage.PacketStore
	recent   []protocol.Packet
	recentMu sync.RWMutex

	subMu       sync.Mutex
	subscribers map[chan protocol.Packet]struct{}

	openRadio func(hardware.IOConfig) (*hardware.RadioIO, error)
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewCoreEngine creates an engine. store may be nil, in which case only
// the most recent packets are kept in memory. An empty socketPath disables
// the control socket.
func NewCoreEngine(cfg *config.Config, socketPath string, store *storage.PacketStore) *CoreEngine {
	return &CoreEngine{
		config:      cfg,
		socketPath:  socketPath,
		store:       store,
		subscribers: make(map[chan protocol.Packet]struct{}),
		openRadio:   hardware.Open,
	}
}

// OpenDriver opens the hardware named by cfg and applies its radio section.
// Everything opened is released again on failure.
func OpenDriver(cfg *config.Config) (*sx126x.Driver, *hardware.RadioIO, error) {
	return openDriver(cfg, hardware.Open)
}

func openDriver(cfg *config.Config, open func(hardware.IOConfig) (*hardware.RadioIO, error)) (*sx126x.Driver, *hardware.RadioIO, error) {
	radioCfg, err := cfg.RadioConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid radio configuration: %w", err)
	}
	opts, err := cfg.DriverOptions()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid driver configuration: %w", err)
	}

	rio, err := open(cfg.IOConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open radio: %w", err)
	}
	driver := sx126x.New(rio.Port, rio.M0, rio.M1, opts)

	if _, err := driver.Apply(radioCfg); err != nil {
		driver.Close()
		return nil, nil, fmt.Errorf("failed to configure module: %w", err)
	}
	return driver, rio, nil
}

// Start opens the radio, programs the configured parameters and starts
// polling for packets
func (e *CoreEngine) Start() error {
	driver, rio, err := openDriver(e.config, e.openRadio)
	if err != nil {
		return err
	}
	radioCfg, _ := e.config.RadioConfig()

	e.radioMu.Lock()
	e.rio = rio
	e.driver = driver
	e.radioCfg = radioCfg
	e.radioMu.Unlock()

	if e.socketPath != "" {
		os.Remove(e.socketPath)
		listener, err := net.Listen("unix", e.socketPath)
		if err != nil {
			driver.Close()
			return fmt.Errorf("failed to create Unix socket: %w", err)
		}
		if err := os.Chmod(e.socketPath, 0660); err != nil {
			logging.Warnf("engine", "failed to set socket permissions: %v", err)
		}
		e.listener = listener
		logging.Infof("engine", "listening on %s", e.socketPath)
	}

	e.mutex.Lock()
	e.running = true
	e.startTime = time.Now()
	e.stop = make(chan struct{})
	e.mutex.Unlock()

	if e.listener != nil {
		e.wg.Add(1)
		go e.acceptConnections()
	}
	e.wg.Add(1)
	go e.receiveLoop(e.config.PollInterval())

	return nil
}

// Stop stops polling, closes the socket and releases the radio
func (e *CoreEngine) Stop() error {
	e.mutex.Lock()
	if !e.running {
		e.mutex.Unlock()
		return nil
	}
	e.running = false
	close(e.stop)
	e.mutex.Unlock()

	if e.listener != nil {
		e.listener.Close()
	}
	e.wg.Wait()

	var err error
	e.radioMu.Lock()
	if e.driver != nil {
		err = e.driver.Close()
	}
	e.radioMu.Unlock()

	if e.socketPath != "" {
		os.Remove(e.socketPath)
	}

	e.subMu.Lock()
	for ch := range e.subscribers {
		close(ch)
		delete(e.subscribers, ch)
	}
	e.subMu.Unlock()

	logging.Info("engine", "stopped")
	return err
}

func (e *CoreEngine) isRunning() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.running
}

// Simulator returns the simulated module when running on the mock backend
func (e *CoreEngine) Simulator() *hardware.ModuleSimulator {
	e.radioMu.Lock()
	defer e.radioMu.Unlock()
	if e.rio == nil {
		return nil
	}
	return e.rio.Simulator
}

// withDriver runs fn with exclusive access to the driver
func (e *CoreEngine) withDriver(fn func(d *sx126x.Driver) error) error {
	e.radioMu.Lock()
	defer e.radioMu.Unlock()
	if e.driver == nil || !e.isRunning() {
		return ErrNotRunning
	}
	return fn(e.driver)
}

// Status reports the active radio state and driver counters
func (e *CoreEngine) Status() protocol.Status {
	e.mutex.RLock()
	start := e.startTime
	e.mutex.RUnlock()

	status := protocol.Status{
		Mode:      sx126x.ModeUninitialized.String(),
		StartTime: start,
		Version:   Version,
	}
	if !start.IsZero() {
		status.Uptime = time.Since(start).Truncate(time.Second).String()
	}

	e.radioMu.Lock()
	defer e.radioMu.Unlock()
	if e.driver == nil {
		return status
	}

	status.Mode = e.driver.Mode().String()
	status.Driver = e.driver.Stats()
	if st, ok := e.driver.State(); ok {
		status.Configured = true
		status.FrequencyMHz = st.FrequencyMHz()
		status.Channel = st.ChannelOffset
		status.Address = st.OwnAddress
		status.Scheme = st.Scheme.String()
		status.RSSIEnabled = st.RSSIEnabled
	}
	return status
}

// RadioConfig returns the parameters last applied successfully
func (e *CoreEngine) RadioConfig() sx126x.Config {
	e.radioMu.Lock()
	defer e.radioMu.Unlock()
	return e.radioCfg
}

// Apply reprograms the module. The previous parameters stay active on failure.
func (e *CoreEngine) Apply(cfg sx126x.Config) (sx126x.ActiveState, error) {
	var st sx126x.ActiveState
	err := e.withDriver(func(d *sx126x.Driver) error {
		var err error
		if st, err = d.Apply(cfg); err != nil {
			return err
		}
		e.radioCfg = cfg
		return nil
	})
	return st, err
}

// Send transmits payload and records it. dest is ignored in the transparent scheme.
func (e *CoreEngine) Send(dest *uint16, payload []byte) (protocol.Packet, error) {
	var pkt protocol.Packet
	err := e.withDriver(func(d *sx126x.Driver) error {
		if err := d.Send(payload, dest); err != nil {
			return err
		}
		st, _ := d.State()
		var peer uint16
		if dest != nil && st.Scheme == sx126x.SchemeFixed {
			peer = *dest
		}
		pkt = protocol.NewPacket(protocol.DirectionTX, peer, st, payload, nil)
		return nil
	})
	if err != nil {
		return protocol.Packet{}, err
	}
	return e.record(pkt), nil
}

// Settings reads the module registers
func (e *CoreEngine) Settings() (sx126x.Settings, error) {
	var s sx126x.Settings
	err := e.withDriver(func(d *sx126x.Driver) error {
		var ok bool
		var err error
		if s, ok, err = d.ReadSettings(); err != nil {
			return err
		}
		if !ok {
			return ErrMalformedResponse
		}
		return nil
	})
	return s, err
}

// Noise samples the ambient RSSI in dBm
func (e *CoreEngine) Noise() (int, error) {
	var dbm int
	err := e.withDriver(func(d *sx126x.Driver) error {
		var ok bool
		var err error
		if dbm, ok, err = d.ReadAmbientRSSI(); err != nil {
			return err
		}
		if !ok {
			return ErrMalformedResponse
		}
		return nil
	})
	return dbm, err
}

// Packets returns up to limit recent packets, newest first
func (e *CoreEngine) Packets(limit int) ([]protocol.Packet, error) {
	if e.store != nil {
		return e.store.GetRecentPackets(limit)
	}

	e.recentMu.RLock()
	defer e.recentMu.RUnlock()
	n := len(e.recent)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]protocol.Packet, 0, n)
	for i := len(e.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, e.recent[i])
	}
	return out, nil
}

// Subscribe returns a channel receiving every packet sent or received.
// Slow subscribers miss packets rather than block the radio.
func (e *CoreEngine) Subscribe() (<-chan protocol.Packet, func()) {
	ch := make(chan protocol.Packet, subscriberBuffer)
	e.subMu.Lock()
	e.subscribers[ch] = struct{}{}
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (e *CoreEngine) record(p protocol.Packet) protocol.Packet {
	if e.store != nil {
		id, err := e.store.SavePacket(p)
		if err != nil {
			logging.Warnf("engine", "failed to store packet: %v", err)
		} else {
			p.ID = id
		}
	}

	e.recentMu.Lock()
	e.recent = append(e.recent, p)
	if len(e.recent) > recentPackets {
		e.recent = e.recent[len(e.recent)-recentPackets:]
	}
	e.recentMu.Unlock()

	e.subMu.Lock()
	for ch := range e.subscribers {
		select {
		case ch <- p:
		default:
		}
	}
	e.subMu.Unlock()
	return p
}

func (e *CoreEngine) receiveLoop(interval time.Duration) {
	defer e.wg.Done()

	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.drain()
		}
	}
}

// drain reads until the driver has nothing pending
func (e *CoreEngine) drain() {
	for {
		var pkt protocol.Packet
		var got bool
		err := e.withDriver(func(d *sx126x.Driver) error {
			p, ok, err := d.Receive()
			if err != nil || !ok {
				return err
			}
			st, _ := d.State()
			pkt = protocol.NewPacket(protocol.DirectionRX, p.Source, st, p.Payload, p.RSSI)
			got = true
			return nil
		})
		if err != nil {
			if !errors.Is(err, ErrNotRunning) {
				logging.Warnf("engine", "receive failed: %v", err)
			}
			return
		}
		if !got {
			return
		}

		rssi := "n/a"
		if pkt.RSSI != nil {
			rssi = strconv.Itoa(*pkt.RSSI) + " dBm"
		}
		logging.Infof("engine", "RX from %d on %d MHz (%d bytes, RSSI %s)", pkt.Peer, pkt.FrequencyMHz, len(pkt.Payload), rssi)
		e.record(pkt)
	}
}

func (e *CoreEngine) acceptConnections() {
	defer e.wg.Done()
	for e.isRunning() {
		conn, err := e.listener.Accept()
		if err != nil {
			if e.isRunning() {
				logging.Warnf("engine", "socket accept error: %v", err)
			}
			continue
		}

		go e.handleConnection(conn)
	}
}

func (e *CoreEngine) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			response := protocol.NewErrorResponse(fmt.Sprintf("parse error: %v", err))
			conn.Write([]byte(response.String() + "\n"))
			continue
		}

		response := e.handleCommand(cmd)
		conn.Write([]byte(response.String() + "\n"))

		if cmd.Type == protocol.CmdQuit {
			break
		}
	}
}

func (e *CoreEngine) handleCommand(cmd *protocol.Command) *protocol.Response {
	switch cmd.Type {
	case protocol.CmdStatus:
		return e.handleStatus()

	case protocol.CmdPackets:
		return e.handlePackets(cmd)

	case protocol.CmdSend:
		return e.handleSend(cmd)

	case protocol.CmdSettings:
		return e.handleSettings()

	case protocol.CmdNoise:
		return e.handleNoise()

	case protocol.CmdApply:
		return e.handleApply()

	case protocol.CmdPing:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"pong": time.Now().Unix(),
		})

	case protocol.CmdQuit:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"message": "goodbye",
		})

	default:
		return protocol.NewErrorResponse(fmt.Sprintf("unknown command: %s", cmd.Type))
	}
}

func (e *CoreEngine) handleStatus() *protocol.Response {
	return protocol.NewSuccessResponse(map[string]interface{}{
		"status": e.Status(),
	})
}

func (e *CoreEngine) handlePackets(cmd *protocol.Command) *protocol.Response {
	limit := 10
	if s, ok := cmd.Args["limit"].(string); ok && s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return protocol.NewErrorResponse(fmt.Sprintf("invalid limit: %s", s))
		}
		limit = n
	}

	packets, err := e.Packets(limit)
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"packets": packets,
		"count":   len(packets),
	})
}

func (e *CoreEngine) handleSend(cmd *protocol.Command) *protocol.Response {
	text, _ := cmd.Args["message"].(string)
	if text == "" {
		return protocol.NewErrorResponse("message is required")
	}

	var dest *uint16
	if to, _ := cmd.Args["to"].(string); to != "" {
		addr, err := protocol.ParseAddress(to)
		if err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		dest = &addr
	}

	pkt, err := e.Send(dest, []byte(text))
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"packet": pkt,
	})
}

func (e *CoreEngine) handleSettings() *protocol.Response {
	s, err := e.Settings()
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"settings": s,
	})
}

func (e *CoreEngine) handleNoise() *protocol.Response {
	dbm, err := e.Noise()
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"noise_dbm": dbm,
	})
}

func (e *CoreEngine) handleApply() *protocol.Response {
	st, err := e.Apply(e.RadioConfig())
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"frequency_mhz": st.FrequencyMHz(),
		"channel":       st.ChannelOffset,
		"address":       st.OwnAddress,
		"scheme":        st.Scheme.String(),
	})
}

package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dougsko/sx126xd/pkg/engine"
	"github.com/dougsko/sx126xd/pkg/logging"
	"github.com/dougsko/sx126xd/pkg/protocol"
	"github.com/dougsko/sx126xd/pkg/storage"
	"github.com/dougsko/sx126xd/pkg/sx126x"
)

// errorStatus maps driver and engine errors to HTTP status codes
func errorStatus(err error) int {
	var verr *sx126x.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, sx126x.ErrMissingDestination),
		errors.Is(err, sx126x.ErrEmptyPayload):
		return http.StatusBadRequest
	case errors.Is(err, sx126x.ErrNoAcknowledgment), errors.Is(err, engine.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrNotRunning), errors.Is(err, sx126x.ErrReleased):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

// handleGetStatus returns daemon and radio status
func (d *Daemon) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, d.coreEngine.Status())
}

// handleGetPackets returns logged packets. Filters other than limit need the packet store.
func (d *Daemon) handleGetPackets(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	if d.store == nil {
		packets, err := d.coreEngine.Packets(limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"packets": packets, "count": len(packets)})
		return
	}

	query := storage.PacketQuery{Limit: limit}
	if v := c.Query("offset"); v != "" {
		if query.Offset, err = strconv.Atoi(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return
		}
	}
	if v := c.Query("peer"); v != "" {
		peer, err := protocol.ParseAddress(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		query.Peer = &peer
	}
	switch v := c.Query("direction"); v {
	case "", protocol.DirectionRX, protocol.DirectionTX:
		query.Direction = v
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be RX or TX"})
		return
	}
	if v := c.Query("min_rssi"); v != "" {
		rssi, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_rssi"})
			return
		}
		query.MinRSSI = &rssi
	}
	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		query.Since = &since
	}

	packets, err := d.store.GetPackets(query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packets": packets, "count": len(packets)})
}

// handleSendPacket transmits a packet
func (d *Daemon) handleSendPacket(c *gin.Context) {
	var req struct {
		To      *uint16 `json:"to"`
		Message string  `json:"message" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pkt, err := d.coreEngine.Send(req.To, []byte(req.Message))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "sent",
		"packet": pkt,
	})
}

func (d *Daemon) handleGetPeers(c *gin.Context) {
	if d.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "packet store disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	peers, err := d.store.GetPeers(limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"peers": peers, "count": len(peers)})
}

func (d *Daemon) handleGetStats(c *gin.Context) {
	resp := gin.H{"driver": d.coreEngine.Status().Driver}
	if d.store != nil {
		stats, err := d.store.GetStats()
		if err != nil {
			respondError(c, err)
			return
		}
		resp["storage"] = stats
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetSettings reads the registers back from the module
func (d *Daemon) handleGetSettings(c *gin.Context) {
	s, err := d.coreEngine.Settings()
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"settings":    s,
		"scheme":      s.Scheme().String(),
		"power_dbm":   int(s.Power()),
		"buffer_size": int(s.BufferSize()),
	}
	if speed, ok := s.AirSpeed(); ok {
		resp["air_speed"] = int(speed)
	}
	if base, err := d.coreEngine.RadioConfig().Band(); err == nil {
		resp["frequency_mhz"] = s.FrequencyMHz(base)
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetNoise samples the ambient RSSI
func (d *Daemon) handleGetNoise(c *gin.Context) {
	dbm, err := d.coreEngine.Noise()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"noise_dbm": dbm})
}

func radioJSON(cfg sx126x.Config) gin.H {
	return gin.H{
		"frequency":   cfg.FrequencyMHz,
		"address":     cfg.Address,
		"net_id":      cfg.NetID,
		"air_speed":   int(cfg.AirSpeed),
		"buffer_size": int(cfg.BufferSize),
		"power":       int(cfg.Power),
		"rssi":        cfg.RSSI,
		"relay":       cfg.Relay,
		"scheme":      cfg.Scheme.String(),
		"persist":     cfg.Persist,
		"lbt":         cfg.LBT,
		"wor":         cfg.WOR,
		"wor_cycle":   int(cfg.WORCycle),
	}
}

// handleGetRadio returns the parameters last applied
func (d *Daemon) handleGetRadio(c *gin.Context) {
	c.JSON(http.StatusOK, radioJSON(d.coreEngine.RadioConfig()))
}

// handleUpdateRadio changes some radio parameters and reprograms the module.
// Omitted fields keep their current value.
func (d *Daemon) handleUpdateRadio(c *gin.Context) {
	var req struct {
		Frequency  *int    `json:"frequency"`
		Address    *uint16 `json:"address"`
		NetID      *uint8  `json:"net_id"`
		AirSpeed   *int    `json:"air_speed"`
		BufferSize *int    `json:"buffer_size"`
		Power      *int    `json:"power"`
		RSSI       *bool   `json:"rssi"`
		Crypt      *uint16 `json:"crypt"`
		Relay      *bool   `json:"relay"`
		Scheme     *string `json:"scheme"`
		Persist    *bool   `json:"persist"`
		LBT        *bool   `json:"lbt"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := d.coreEngine.RadioConfig()
	if req.Frequency != nil {
		cfg.FrequencyMHz = *req.Frequency
	}
	if req.Address != nil {
		cfg.Address = *req.Address
	}
	if req.NetID != nil {
		cfg.NetID = *req.NetID
	}
	if req.AirSpeed != nil {
		cfg.AirSpeed = sx126x.AirSpeed(*req.AirSpeed)
	}
	if req.BufferSize != nil {
		cfg.BufferSize = sx126x.BufferSize(*req.BufferSize)
	}
	if req.Power != nil {
		cfg.Power = sx126x.Power(*req.Power)
	}
	if req.RSSI != nil {
		cfg.RSSI = *req.RSSI
	}
	if req.Crypt != nil {
		cfg.CryptKey = *req.Crypt
	}
	if req.Relay != nil {
		cfg.Relay = *req.Relay
	}
	if req.Scheme != nil {
		scheme, err := sx126x.ParseScheme(*req.Scheme)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg.Scheme = scheme
	}
	if req.Persist != nil {
		cfg.Persist = *req.Persist
	}
	if req.LBT != nil {
		cfg.LBT = *req.LBT
	}

	st, err := d.coreEngine.Apply(cfg)
	if err != nil {
		respondError(c, err)
		return
	}

	logging.Infof("daemon", "radio reconfigured to %d MHz", st.FrequencyMHz())
	resp := radioJSON(cfg)
	resp["channel"] = st.ChannelOffset
	c.JSON(http.StatusOK, resp)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handlePacketWebSocket streams every sent and received packet as JSON
func (d *Daemon) handlePacketWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("daemon", "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	packets, cancel := d.coreEngine.Subscribe()
	defer cancel()
	logging.Debug("daemon", "packet WebSocket client connected")

	// The read side only detects the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-closed:
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(gin.H{"type": "packet", "packet": pkt}); err != nil {
				logging.Debugf("daemon", "WebSocket write error: %v", err)
				return
			}
		}
	}
}

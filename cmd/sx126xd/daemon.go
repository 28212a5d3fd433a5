package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dougsko/sx126xd/pkg/client"
	"github.com/dougsko/sx126xd/pkg/config"
	"github.com/dougsko/sx126xd/pkg/engine"
	"github.com/dougsko/sx126xd/pkg/logging"
	"github.com/dougsko/sx126xd/pkg/storage"
)

// Daemon ties the core engine to the HTTP API
type Daemon struct {
	config *config.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	coreEngine   *engine.CoreEngine
	socketClient *client.SocketClient
	store        *storage.PacketStore
	router       *gin.Engine
	webServer    *http.Server

	socketPath string
}

// NewDaemon creates a new daemon instance
func NewDaemon(cfg *config.Config) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	daemon := &Daemon{
		config:       cfg,
		ctx:          ctx,
		cancel:       cancel,
		socketPath:   cfg.API.UnixSocket,
		socketClient: client.NewSocketClient(cfg.API.UnixSocket),
	}

	if cfg.Storage.DatabasePath != "" {
		store, err := storage.NewPacketStore(cfg.Storage.DatabasePath, cfg.Storage.MaxPackets)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open packet store: %w", err)
		}
		daemon.store = store
	}

	daemon.coreEngine = engine.NewCoreEngine(cfg, daemon.socketPath, daemon.store)
	daemon.setupWebServer()

	return daemon, nil
}

// Start starts the daemon
func (d *Daemon) Start() error {
	logging.Info("daemon", "Starting sx126xd daemon...")

	if err := d.coreEngine.Start(); err != nil {
		return fmt.Errorf("failed to start core engine: %w", err)
	}

	if d.socketPath != "" && !d.socketClient.IsConnected() {
		return fmt.Errorf("failed to connect to core engine socket")
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		logging.Infof("daemon", "Starting web server on %s", d.webServer.Addr)
		if err := d.webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("daemon", "Web server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the daemon gracefully
func (d *Daemon) Stop() error {
	logging.Info("daemon", "Stopping daemon...")

	d.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.webServer.Shutdown(ctx); err != nil {
		logging.Warnf("daemon", "Web server shutdown error: %v", err)
	}

	var stopErr error
	if err := d.coreEngine.Stop(); err != nil {
		logging.Warnf("daemon", "Core engine shutdown error: %v", err)
		stopErr = err
	}

	d.wg.Wait()

	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logging.Warnf("daemon", "Packet store close error: %v", err)
		}
	}

	logging.Info("daemon", "Daemon stopped")
	return stopErr
}

// setupWebServer initializes the router and the HTTP server
func (d *Daemon) setupWebServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/status", d.handleGetStatus)
		api.GET("/packets", d.handleGetPackets)
		api.POST("/packets", d.handleSendPacket)
		api.GET("/peers", d.handleGetPeers)
		api.GET("/stats", d.handleGetStats)
		api.GET("/settings", d.handleGetSettings)
		api.GET("/noise", d.handleGetNoise)
		api.GET("/radio", d.handleGetRadio)
		api.PUT("/radio", d.handleUpdateRadio)
	}
	router.GET("/ws/packets", d.handlePacketWebSocket)

	d.router = router
	d.webServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", d.config.Web.BindAddress, d.config.Web.Port),
		Handler: router,
	}
}

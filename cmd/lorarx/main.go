package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dougsko/sx126xd/pkg/config"
	"github.com/dougsko/sx126xd/pkg/engine"
	"github.com/dougsko/sx126xd/pkg/logging"
	"github.com/dougsko/sx126xd/pkg/sx126x"
)

var (
	configPath = flag.String("config", "", "Configuration file path (defaults when empty)")
	address    = flag.Int("addr", 1, "Address of this node")
	noise      = flag.Bool("noise", false, "Sample the ambient RSSI after each packet")
	verbose    = flag.Bool("verbose", false, "Log mode switches and frame bytes")
)

// levelPercent decodes a 1..10 level payload into a percentage
func levelPercent(payload []byte) (int, error) {
	level, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", payload)
	}
	if level < 1 || level > 10 {
		return 0, fmt.Errorf("value %d out of range", level)
	}
	return level * 10, nil
}

func describe(pkt sx126x.Packet) string {
	text := strings.TrimSpace(string(pkt.Payload))
	if pkt.RSSI != nil {
		return fmt.Sprintf("'%s' from %d (RSSI: %d dBm)", text, pkt.Source, *pkt.RSSI)
	}
	return fmt.Sprintf("'%s' from %d", text, pkt.Source)
}

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	cfg.Radio.Address = uint16(*address)
	cfg.Radio.RSSI = true
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	if err := logging.InitGlobalLogger(cfg.LoggingOptions()); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()

	driver, _, err := engine.OpenDriver(cfg)
	if err != nil {
		logging.Errorf("lorarx", "%v", err)
		os.Exit(1)
	}
	defer driver.Close()

	st, _ := driver.State()
	fmt.Printf("Listening: addr=%d, freq=%d MHz, %s scheme. Ctrl+C exits.\n",
		st.OwnAddress, st.FrequencyMHz(), st.Scheme)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			fmt.Println("Exiting...")
			return
		case <-ticker.C:
		}

		pkt, ok, err := driver.Receive()
		if err != nil {
			logging.Errorf("lorarx", "receive failed: %v", err)
			return
		}
		if !ok {
			continue
		}

		fmt.Printf("Received %s\n", describe(pkt))
		if percent, err := levelPercent(pkt.Payload); err != nil {
			fmt.Printf("  %v\n", err)
		} else {
			fmt.Printf("  level %d%%\n", percent)
		}

		if *noise {
			if dbm, ok, err := driver.ReadAmbientRSSI(); err != nil {
				logging.Warnf("lorarx", "noise probe failed: %v", err)
			} else if ok {
				fmt.Printf("  noise %d dBm\n", dbm)
			}
		}
	}
}

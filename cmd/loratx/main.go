package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dougsko/sx126xd/pkg/config"
	"github.com/dougsko/sx126xd/pkg/engine"
	"github.com/dougsko/sx126xd/pkg/logging"
	"github.com/dougsko/sx126xd/pkg/protocol"
)

var (
	configPath = flag.String("config", "", "Configuration file path (defaults when empty)")
	dest       = flag.String("dest", "1", "Destination node address")
	address    = flag.Int("addr", 0, "Address of this node")
	verbose    = flag.Bool("verbose", false, "Log mode switches and frame bytes")
)

// parseLevel accepts a whole number between 1 and 10
func parseLevel(line string) (int, error) {
	level, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", line)
	}
	if level < 1 || level > 10 {
		return 0, fmt.Errorf("level %d out of range 1..10", level)
	}
	return level, nil
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
	cfg.Radio.Scheme = "fixed"
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	to, err := protocol.ParseAddress(*dest)
	if err != nil {
		log.Fatalf("Invalid destination: %v", err)
	}

	if err := logging.InitGlobalLogger(cfg.LoggingOptions()); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()

	driver, _, err := engine.OpenDriver(cfg)
	if err != nil {
		logging.Errorf("loratx", "%v", err)
		os.Exit(1)
	}
	defer driver.Close()

	st, _ := driver.State()
	fmt.Printf("Transmitting to %d on %d MHz from address %d\n", to, st.FrequencyMHz(), st.OwnAddress)
	fmt.Println("Enter a level from 1 to 10, one per line. Ctrl+D exits.")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		level, err := parseLevel(line)
		if err != nil {
			fmt.Printf("  %v\n", err)
			continue
		}

		if err := driver.Send([]byte(strconv.Itoa(level)), &to); err != nil {
			logging.Errorf("loratx", "send failed: %v", err)
			continue
		}
		fmt.Printf("  sent %d\n", level)
	}
	if err := scanner.Err(); err != nil {
		logging.Errorf("loratx", "stdin: %v", err)
	}
}

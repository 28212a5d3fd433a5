package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dougsko/sx126xd/pkg/client"
)

var (
	socketPath = flag.String("socket", "/tmp/sx126xd.sock", "Unix socket path")
	command    = flag.String("cmd", "", "Command to send (e.g., 'STATUS', 'SEND:2 hello')")
)

func main() {
	flag.Parse()

	if *socketPath == "" {
		fmt.Fprintf(os.Stderr, "Socket path is required\n")
		os.Exit(1)
	}

	if *command == "" {
		if len(flag.Args()) > 0 {
			*command = strings.Join(flag.Args(), " ")
		} else {
			showHelp()
			return
		}
	}

	c := client.NewSocketClient(*socketPath)

	response, err := c.SendCommand(*command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", response.String())
	if !response.Success {
		os.Exit(1)
	}
}

func showHelp() {
	fmt.Println("sx126xctl - SX126x LoRa daemon control tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command>\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -socket <path>    Unix socket path (default: /tmp/sx126xd.sock)")
	fmt.Println("  -cmd <command>    Command to send")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  STATUS                    Get daemon and radio status")
	fmt.Println("  PACKETS                   Get recent packets")
	fmt.Println("  PACKETS:10                Get last 10 packets")
	fmt.Println("  SEND:<addr> <text>        Send to a node (fixed scheme)")
	fmt.Println("  SEND:<text>               Send raw (transparent scheme)")
	fmt.Println("  SETTINGS                  Read the module registers")
	fmt.Println("  NOISE                     Sample the ambient RSSI")
	fmt.Println("  APPLY                     Program the configured parameters again")
	fmt.Println("  PING                      Test connection")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s STATUS\n", os.Args[0])
	fmt.Printf("  %s 'SEND:0x0002 hello'\n", os.Args[0])
	fmt.Printf("  %s PACKETS:5\n", os.Args[0])
	fmt.Printf("  echo 'NOISE' | nc -U /tmp/sx126xd.sock\n")
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dougsko/sx126xd/pkg/sx126x"
)

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()

	t.Run("Valid Config", func(t *testing.T) {
		configContent := `
radio:
  port: "/dev/ttyAMA0"
  frequency: 433
  address: 5
  net_id: 2
  air_speed: 9600
  power: 17
  rssi: true
  crypt: 4660
  scheme: "transparent"
  persist: true

driver:
  max_attempts: 5
  ack_policy: "loose"
  poll_interval_ms: 250

gpio:
  backend: "sysfs"
  m0_pin: 5
  m1_pin: 6

storage:
  database_path: "/tmp/sx126xd.db"
  max_packets: 5000

logging:
  level: "debug"
  file: "/var/log/sx126xd.log"
  console: true
`
		configPath := filepath.Join(tempDir, "valid.yaml")
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if err := config.Validate(); err != nil {
			t.Fatalf("Expected valid config, got: %v", err)
		}

		if config.Radio.Port != "/dev/ttyAMA0" {
			t.Errorf("Expected port /dev/ttyAMA0, got %s", config.Radio.Port)
		}
		if config.Radio.Frequency != 433 {
			t.Errorf("Expected frequency 433, got %d", config.Radio.Frequency)
		}
		if config.Radio.BufferSize != 240 {
			t.Errorf("Expected default buffer size 240, got %d", config.Radio.BufferSize)
		}
		if config.Driver.MaxAttempts != 5 {
			t.Errorf("Expected 5 attempts, got %d", config.Driver.MaxAttempts)
		}
		if config.GPIO.Backend != "sysfs" {
			t.Errorf("Expected sysfs backend, got %s", config.GPIO.Backend)
		}
		if config.Storage.MaxPackets != 5000 {
			t.Errorf("Expected max packets 5000, got %d", config.Storage.MaxPackets)
		}
		if !config.Logging.Console {
			t.Error("Expected console logging")
		}

		radio, err := config.RadioConfig()
		if err != nil {
			t.Fatalf("RadioConfig failed: %v", err)
		}
		want := sx126x.Config{
			FrequencyMHz: 433,
			Address:      5,
			NetID:        2,
			AirSpeed:     sx126x.AirSpeed9600,
			BufferSize:   sx126x.Buffer240,
			Power:        sx126x.Power17,
			RSSI:         true,
			CryptKey:     0x1234,
			Scheme:       sx126x.SchemeTransparent,
			Persist:      true,
			WORCycle:     2000,
		}
		if radio != want {
			t.Errorf("Expected radio config %+v, got %+v", want, radio)
		}

		opts, err := config.DriverOptions()
		if err != nil {
			t.Fatalf("DriverOptions failed: %v", err)
		}
		if opts.AckPolicy != sx126x.AckLoose {
			t.Errorf("Expected loose ack policy, got %s", opts.AckPolicy)
		}
		if opts.SettleDelay != 100*time.Millisecond {
			t.Errorf("Expected 100ms settle delay, got %v", opts.SettleDelay)
		}
		if config.PollInterval() != 250*time.Millisecond {
			t.Errorf("Expected 250ms poll interval, got %v", config.PollInterval())
		}

		io := config.IOConfig()
		if io.M0Pin != 5 || io.M1Pin != 6 || io.SerialPort != "/dev/ttyAMA0" || io.BaudRate != 9600 {
			t.Errorf("Unexpected IO config %+v", io)
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "empty.yaml")
		if err := os.WriteFile(configPath, []byte("{}\n"), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if err := config.Validate(); err != nil {
			t.Fatalf("Expected defaults to validate, got: %v", err)
		}

		if config.Radio.Frequency != 915 {
			t.Errorf("Expected default frequency 915, got %d", config.Radio.Frequency)
		}
		if config.Radio.Power != 22 || config.Radio.AirSpeed != 2400 {
			t.Errorf("Unexpected power/air speed defaults %d/%d", config.Radio.Power, config.Radio.AirSpeed)
		}
		if config.Radio.Scheme != "fixed" {
			t.Errorf("Expected fixed scheme, got %s", config.Radio.Scheme)
		}
		if config.GPIO.M0Pin != 22 || config.GPIO.M1Pin != 27 {
			t.Errorf("Expected M0/M1 on 22/27, got %d/%d", config.GPIO.M0Pin, config.GPIO.M1Pin)
		}
		if config.Web.Port != 8080 {
			t.Errorf("Expected web port 8080, got %d", config.Web.Port)
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(tempDir, "nonexistent.yaml"))
		if err == nil {
			t.Error("Expected error for missing file")
		}
		if !strings.Contains(err.Error(), "failed to read config file") {
			t.Errorf("Expected read error, got: %v", err)
		}
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "invalid.yaml")
		if err := os.WriteFile(configPath, []byte("radio: [unclosed"), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}
		_, err := LoadConfig(configPath)
		if err == nil {
			t.Error("Expected error for invalid YAML")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(*Config)
		wantErr string
	}{
		{"frequency out of band", func(c *Config) { c.Radio.Frequency = 600 }, "frequency"},
		{"unsupported power", func(c *Config) { c.Radio.Power = 20 }, "power"},
		{"unknown scheme", func(c *Config) { c.Radio.Scheme = "mesh" }, "scheme"},
		{"unknown ack policy", func(c *Config) { c.Driver.AckPolicy = "maybe" }, "ack_policy"},
		{"same pins", func(c *Config) { c.GPIO.M1Pin = c.GPIO.M0Pin }, "must differ"},
		{"unknown backend", func(c *Config) { c.GPIO.Backend = "wiringpi" }, "backend"},
		{"negative attempts", func(c *Config) { c.Driver.MaxAttempts = -1 }, "max_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.edit(config)

			err := config.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoggingOptions(t *testing.T) {
	config := Default()
	config.Logging.File = "/tmp/sx126xd.log"
	config.Logging.Compress = true

	opts := config.LoggingOptions()
	if opts.Level != "info" || opts.File != "/tmp/sx126xd.log" || !opts.Compress {
		t.Errorf("Unexpected logging options %+v", opts)
	}
	if opts.MaxSize != 10 || opts.MaxBackups != 3 || opts.MaxAge != 28 {
		t.Errorf("Unexpected rotation defaults %+v", opts)
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/dougsko/sx126xd/pkg/hardware"
	"github.com/dougsko/sx126xd/pkg/logging"
	"github.com/dougsko/sx126xd/pkg/sx126x"
)

// Config represents the sx126xd configuration
type Config struct {
	Radio struct {
		Port       string `yaml:"port"`
		Frequency  int    `yaml:"frequency"`
		Address    uint16 `yaml:"address"`
		NetID      uint8  `yaml:"net_id"`
		AirSpeed   int    `yaml:"air_speed"`
		BufferSize int    `yaml:"buffer_size"`
		Power      int    `yaml:"power"`
		RSSI       bool   `yaml:"rssi"`
		Crypt      uint16 `yaml:"crypt"`
		Relay      bool   `yaml:"relay"`
		Scheme     string `yaml:"scheme"`

		// Register options
		Persist  bool `yaml:"persist"`
		LBT      bool `yaml:"lbt"`
		WOR      bool `yaml:"wor"`
		WORCycle int  `yaml:"wor_cycle"`
	} `yaml:"radio"`

	Driver struct {
		MaxAttempts           int    `yaml:"max_attempts"`
		AckPolicy             string `yaml:"ack_policy"`
		SettleDelayMS         int    `yaml:"settle_delay_ms"`
		RetryBackoffMS        int    `yaml:"retry_backoff_ms"`
		ReadTimeoutMS         int    `yaml:"read_timeout_ms"`
		PollIntervalMS        int    `yaml:"poll_interval_ms"`
		StayInConfigOnFailure bool   `yaml:"stay_in_config_on_failure"`
	} `yaml:"driver"`

	GPIO struct {
		Backend string `yaml:"backend"`
		Chip    string `yaml:"chip"`
		M0Pin   int    `yaml:"m0_pin"`
		M1Pin   int    `yaml:"m1_pin"`
	} `yaml:"gpio"`

	Web struct {
		Port        int    `yaml:"port"`
		BindAddress string `yaml:"bind_address"`
	} `yaml:"web"`

	API struct {
		UnixSocket string `yaml:"unix_socket"`
	} `yaml:"api"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		MaxPackets   int    `yaml:"max_packets"`
	} `yaml:"storage"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and fills in defaults for every unset value
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	if c.Radio.Port == "" {
		c.Radio.Port = "/dev/ttyS0"
	}
	if c.Radio.Frequency == 0 {
		c.Radio.Frequency = 915
	}
	if c.Radio.AirSpeed == 0 {
		c.Radio.AirSpeed = 2400
	}
	if c.Radio.BufferSize == 0 {
		c.Radio.BufferSize = 240
	}
	if c.Radio.Power == 0 {
		c.Radio.Power = 22
	}
	if c.Radio.Scheme == "" {
		c.Radio.Scheme = "fixed"
	}
	if c.Radio.WORCycle == 0 {
		c.Radio.WORCycle = 2000
	}

	if c.Driver.MaxAttempts == 0 {
		c.Driver.MaxAttempts = 3
	}
	if c.Driver.AckPolicy == "" {
		c.Driver.AckPolicy = "strict"
	}
	if c.Driver.SettleDelayMS == 0 {
		c.Driver.SettleDelayMS = 100
	}
	if c.Driver.RetryBackoffMS == 0 {
		c.Driver.RetryBackoffMS = 200
	}
	if c.Driver.ReadTimeoutMS == 0 {
		c.Driver.ReadTimeoutMS = 100
	}
	if c.Driver.PollIntervalMS == 0 {
		c.Driver.PollIntervalMS = 100
	}

	if c.GPIO.Backend == "" {
		c.GPIO.Backend = hardware.BackendGpiod
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = "gpiochip0"
	}
	if c.GPIO.M0Pin == 0 {
		c.GPIO.M0Pin = 22
	}
	if c.GPIO.M1Pin == 0 {
		c.GPIO.M1Pin = 27
	}

	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.BindAddress == "" {
		c.Web.BindAddress = "0.0.0.0"
	}
	if c.API.UnixSocket == "" {
		c.API.UnixSocket = "/tmp/sx126xd.sock"
	}
	if c.Storage.MaxPackets == 0 {
		c.Storage.MaxPackets = 10000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 10
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 28
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Radio.Port == "" && c.GPIO.Backend != hardware.BackendMock {
		return fmt.Errorf("radio port is required")
	}
	radio, err := c.RadioConfig()
	if err != nil {
		return err
	}
	if err := radio.Validate(); err != nil {
		return err
	}
	if _, err := sx126x.ParseAckPolicy(c.Driver.AckPolicy); err != nil {
		return err
	}
	if c.Driver.MaxAttempts < 1 {
		return fmt.Errorf("driver max_attempts must be at least 1")
	}
	if c.GPIO.M0Pin == c.GPIO.M1Pin {
		return fmt.Errorf("gpio m0_pin and m1_pin must differ")
	}
	switch c.GPIO.Backend {
	case hardware.BackendGpiod, hardware.BackendPeriph, hardware.BackendSysfs, hardware.BackendMock:
	default:
		return fmt.Errorf("unknown gpio backend %q", c.GPIO.Backend)
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web port %d out of range", c.Web.Port)
	}
	return nil
}

// RadioConfig converts the radio section into driver parameters
func (c *Config) RadioConfig() (sx126x.Config, error) {
	scheme, err := sx126x.ParseScheme(c.Radio.Scheme)
	if err != nil {
		return sx126x.Config{}, err
	}
	return sx126x.Config{
		FrequencyMHz: c.Radio.Frequency,
		Address:      c.Radio.Address,
		NetID:        c.Radio.NetID,
		AirSpeed:     sx126x.AirSpeed(c.Radio.AirSpeed),
		BufferSize:   sx126x.BufferSize(c.Radio.BufferSize),
		Power:        sx126x.Power(c.Radio.Power),
		RSSI:         c.Radio.RSSI,
		CryptKey:     c.Radio.Crypt,
		Relay:        c.Radio.Relay,
		Scheme:       scheme,
		Persist:      c.Radio.Persist,
		LBT:          c.Radio.LBT,
		WOR:          c.Radio.WOR,
		WORCycle:     sx126x.WORCycle(c.Radio.WORCycle),
	}, nil
}

// DriverOptions converts the driver section
func (c *Config) DriverOptions() (sx126x.Options, error) {
	policy, err := sx126x.ParseAckPolicy(c.Driver.AckPolicy)
	if err != nil {
		return sx126x.Options{}, err
	}
	return sx126x.Options{
		MaxAttempts:           c.Driver.MaxAttempts,
		AckPolicy:             policy,
		SettleDelay:           time.Duration(c.Driver.SettleDelayMS) * time.Millisecond,
		RetryBackoff:          time.Duration(c.Driver.RetryBackoffMS) * time.Millisecond,
		StayInConfigOnFailure: c.Driver.StayInConfigOnFailure,
	}, nil
}

// PollInterval is how often the daemon checks for inbound packets
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Driver.PollIntervalMS) * time.Millisecond
}

// IOConfig selects the UART and mode lines
func (c *Config) IOConfig() hardware.IOConfig {
	return hardware.IOConfig{
		Backend:     c.GPIO.Backend,
		SerialPort:  c.Radio.Port,
		BaudRate:    hardware.DefaultBaudRate,
		ReadTimeout: time.Duration(c.Driver.ReadTimeoutMS) * time.Millisecond,
		Chip:        c.GPIO.Chip,
		M0Pin:       c.GPIO.M0Pin,
		M1Pin:       c.GPIO.M1Pin,
	}
}

// LoggingOptions converts the logging section
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		Console:    c.Logging.Console,
		Structured: c.Logging.Structured,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
		Compress:   c.Logging.Compress,
	}
}

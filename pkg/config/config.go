package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of environment overrides, e.g. X6D_BUS_NUMBER.
const EnvPrefix = "X6D"

// Device generations.
const (
	VariantX6100 = "x6100"
	VariantX6200 = "x6200"
)

// Band policies.
const (
	BandPolicyReselect = "reselect"
	BandPolicyDisabled = "disabled"
)

// GPIO backends.
const (
	GPIOBackendLine  = "line"
	GPIOBackendSysfs = "sysfs"
	GPIOBackendMock  = "mock"
)

// Config represents the x6d configuration
type Config struct {
	Device struct {
		Variant     string `yaml:"variant" envconfig:"variant"`
		BandPolicy  string `yaml:"band_policy" envconfig:"band_policy"`
		MinFirmware string `yaml:"min_firmware" envconfig:"min_firmware"`
	} `yaml:"device" envconfig:"device"`

	Bus struct {
		Number          int      `yaml:"number" envconfig:"number"`
		Address         uint16   `yaml:"address" envconfig:"address"`
		ReadyAddr       uint16   `yaml:"ready_addr" envconfig:"ready_addr"`
		IdentityAddr    uint16   `yaml:"identity_addr" envconfig:"identity_addr"`
		CalibrationAddr uint16   `yaml:"calibration_addr" envconfig:"calibration_addr"`
		HostCommands    []uint16 `yaml:"host_commands" envconfig:"host_commands"`
		ReadyInterval   int      `yaml:"ready_interval" envconfig:"ready_interval"` // milliseconds
	} `yaml:"bus" envconfig:"bus"`

	GPIO struct {
		Backend   string `yaml:"backend" envconfig:"backend"`
		SysfsRoot string `yaml:"sysfs_root" envconfig:"sysfs_root"`
	} `yaml:"gpio" envconfig:"gpio"`

	Telemetry struct {
		Enabled       bool   `yaml:"enabled" envconfig:"enabled"`
		Device        string `yaml:"device" envconfig:"device"`
		BaudRate      int    `yaml:"baud_rate" envconfig:"baud_rate"`
		ReadTimeout   int    `yaml:"read_timeout" envconfig:"read_timeout"` // milliseconds
		RetryDelay    int    `yaml:"retry_delay" envconfig:"retry_delay"`   // milliseconds
		RestartAfter  int    `yaml:"restart_after" envconfig:"restart_after"`
		StoreInterval int    `yaml:"store_interval" envconfig:"store_interval"` // seconds, 0 disables
	} `yaml:"telemetry" envconfig:"telemetry"`

	Supervisor struct {
		Interval      int `yaml:"interval" envconfig:"interval"`         // milliseconds
		ReopenDelay   int `yaml:"reopen_delay" envconfig:"reopen_delay"` // milliseconds
		EscalateAfter int `yaml:"escalate_after" envconfig:"escalate_after"`
	} `yaml:"supervisor" envconfig:"supervisor"`

	API struct {
		UnixSocket string `yaml:"unix_socket" envconfig:"unix_socket"`
	} `yaml:"api" envconfig:"api"`

	Web struct {
		Port        int    `yaml:"port" envconfig:"port"`
		BindAddress string `yaml:"bind_address" envconfig:"bind_address"`
	} `yaml:"web" envconfig:"web"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret" envconfig:"jwt_secret"`
		Issuer    string `yaml:"issuer" envconfig:"issuer"`
	} `yaml:"auth" envconfig:"auth"`

	Storage struct {
		DatabasePath string `yaml:"database_path" envconfig:"database_path"`
		MaxSamples   int    `yaml:"max_samples" envconfig:"max_samples"`
	} `yaml:"storage" envconfig:"storage"`

	Logging struct {
		Level      string `yaml:"level" envconfig:"level"`
		File       string `yaml:"file" envconfig:"file"`
		Console    bool   `yaml:"console" envconfig:"console"`
		Structured bool   `yaml:"structured" envconfig:"structured"`
		MaxSize    int    `yaml:"max_size" envconfig:"max_size"` // megabytes
		MaxBackups int    `yaml:"max_backups" envconfig:"max_backups"`
		MaxAge     int    `yaml:"max_age" envconfig:"max_age"` // days
		Compress   bool   `yaml:"compress" envconfig:"compress"`
	} `yaml:"logging" envconfig:"logging"`
}

// LoadConfig loads configuration from a YAML file, applies environment
// overrides and fills in defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// Default returns a configuration populated only with defaults
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	if c.Device.Variant == "" {
		c.Device.Variant = VariantX6100
	}
	if c.Device.BandPolicy == "" {
		if c.Device.Variant == VariantX6200 {
			c.Device.BandPolicy = BandPolicyDisabled
		} else {
			c.Device.BandPolicy = BandPolicyReselect
		}
	}
	if c.Device.MinFirmware == "" {
		c.Device.MinFirmware = "1.1.0"
	}

	if c.Bus.Address == 0 {
		c.Bus.Address = 0x72
	}
	if c.Bus.ReadyAddr == 0 {
		c.Bus.ReadyAddr = 0x0200
	}
	if c.Bus.CalibrationAddr == 0 {
		c.Bus.CalibrationAddr = 0x0100
	}
	if len(c.Bus.HostCommands) == 0 {
		c.Bus.HostCommands = []uint16{0x0001, 0x0002}
	}
	if c.Bus.ReadyInterval == 0 {
		c.Bus.ReadyInterval = 1000
	}

	if c.GPIO.Backend == "" {
		c.GPIO.Backend = GPIOBackendLine
	}
	if c.GPIO.SysfsRoot == "" {
		c.GPIO.SysfsRoot = "/sys/class/gpio"
	}

	if c.Telemetry.Device == "" {
		c.Telemetry.Device = "/dev/ttyS1"
	}
	if c.Telemetry.BaudRate == 0 {
		c.Telemetry.BaudRate = 1152000
	}
	if c.Telemetry.ReadTimeout == 0 {
		c.Telemetry.ReadTimeout = 100
	}
	if c.Telemetry.RetryDelay == 0 {
		c.Telemetry.RetryDelay = 25
	}
	if c.Telemetry.RestartAfter == 0 {
		c.Telemetry.RestartAfter = 20
	}

	if c.Supervisor.Interval == 0 {
		c.Supervisor.Interval = 1000
	}
	if c.Supervisor.ReopenDelay == 0 {
		c.Supervisor.ReopenDelay = 1
	}
	if c.Supervisor.EscalateAfter == 0 {
		c.Supervisor.EscalateAfter = 10
	}

	if c.API.UnixSocket == "" {
		c.API.UnixSocket = "/tmp/x6d.sock"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.BindAddress == "" {
		c.Web.BindAddress = "0.0.0.0"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "x6d"
	}

	if c.Storage.DatabasePath == "" {
		if path, err := xdg.DataFile(filepath.Join("x6d", "x6d.db")); err == nil {
			c.Storage.DatabasePath = path
		} else {
			c.Storage.DatabasePath = filepath.Join(os.TempDir(), "x6d.db")
		}
	}
	if c.Storage.MaxSamples == 0 {
		c.Storage.MaxSamples = 10000
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
	switch c.Device.Variant {
	case VariantX6100, VariantX6200:
	default:
		return fmt.Errorf("unknown device variant %q", c.Device.Variant)
	}
	switch c.Device.BandPolicy {
	case BandPolicyReselect, BandPolicyDisabled:
	default:
		return fmt.Errorf("unknown band policy %q", c.Device.BandPolicy)
	}
	if c.Bus.Number < 0 {
		return fmt.Errorf("bus number must not be negative")
	}
	if c.Bus.Address == 0 || c.Bus.Address > 0x7F {
		return fmt.Errorf("bus address %#x is not a 7-bit address", c.Bus.Address)
	}
	if len(c.Bus.HostCommands) != 2 {
		return fmt.Errorf("exactly two host commands are required, got %d", len(c.Bus.HostCommands))
	}
	switch c.GPIO.Backend {
	case GPIOBackendLine, GPIOBackendSysfs, GPIOBackendMock:
	default:
		return fmt.Errorf("unknown gpio backend %q", c.GPIO.Backend)
	}
	if c.Telemetry.Enabled && c.Telemetry.Device == "" {
		return fmt.Errorf("telemetry device is required when telemetry is enabled")
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port %d", c.Web.Port)
	}
	if strings.TrimSpace(c.API.UnixSocket) == "" {
		return fmt.Errorf("unix socket path is required")
	}
	return nil
}

// ReadyInterval returns the await-ready poll interval
func (c *Config) ReadyInterval() time.Duration {
	return time.Duration(c.Bus.ReadyInterval) * time.Millisecond
}

// SupervisorInterval returns the idle tick interval
func (c *Config) SupervisorInterval() time.Duration {
	return time.Duration(c.Supervisor.Interval) * time.Millisecond
}

// ReopenDelay returns the pause between closing and reopening the bus
func (c *Config) ReopenDelay() time.Duration {
	return time.Duration(c.Supervisor.ReopenDelay) * time.Millisecond
}

// TelemetryRetryDelay returns the pause after a failed frame read
func (c *Config) TelemetryRetryDelay() time.Duration {
	return time.Duration(c.Telemetry.RetryDelay) * time.Millisecond
}

// TelemetryReadTimeout returns the serial read timeout
func (c *Config) TelemetryReadTimeout() time.Duration {
	return time.Duration(c.Telemetry.ReadTimeout) * time.Millisecond
}

// StoreInterval returns how often telemetry samples are persisted
func (c *Config) StoreInterval() time.Duration {
	return time.Duration(c.Telemetry.StoreInterval) * time.Second
}

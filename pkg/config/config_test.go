package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Create a temporary directory for test files
	tempDir, err := os.MkdirTemp("", "x6d-config-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	t.Run("Valid Config", func(t *testing.T) {
		configContent := `
device:
  variant: "x6100"
  min_firmware: "1.1.7"

bus:
  number: 0
  address: 0x72
  host_commands: [0x10, 0x11]

gpio:
  backend: "sysfs"

telemetry:
  enabled: true
  device: "/dev/ttyS2"
  baud_rate: 115200

web:
  port: 9090
  bind_address: "127.0.0.1"

storage:
  database_path: "/tmp/x6d-test.db"

logging:
  level: "debug"
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

		if config.Device.MinFirmware != "1.1.7" {
			t.Errorf("Expected min firmware 1.1.7, got %s", config.Device.MinFirmware)
		}
		if config.Device.BandPolicy != BandPolicyReselect {
			t.Errorf("Expected reselect band policy for x6100, got %s", config.Device.BandPolicy)
		}
		if config.Bus.Address != 0x72 {
			t.Errorf("Expected bus address 0x72, got %#x", config.Bus.Address)
		}
		if len(config.Bus.HostCommands) != 2 || config.Bus.HostCommands[0] != 0x10 {
			t.Errorf("Unexpected host commands %v", config.Bus.HostCommands)
		}
		if config.GPIO.Backend != GPIOBackendSysfs {
			t.Errorf("Expected sysfs backend, got %s", config.GPIO.Backend)
		}
		if config.Telemetry.BaudRate != 115200 {
			t.Errorf("Expected baud rate 115200, got %d", config.Telemetry.BaudRate)
		}
		if config.Web.Port != 9090 {
			t.Errorf("Expected web port 9090, got %d", config.Web.Port)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("Expected valid config, got: %v", err)
		}
	})

	t.Run("Defaults Applied", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "minimal.yaml")
		if err := os.WriteFile(configPath, []byte("device:\n  variant: x6200\n"), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if config.Device.BandPolicy != BandPolicyDisabled {
			t.Errorf("Expected disabled band policy for x6200, got %s", config.Device.BandPolicy)
		}
		if config.Bus.Address != 0x72 {
			t.Errorf("Expected default bus address 0x72, got %#x", config.Bus.Address)
		}
		if config.Telemetry.Device != "/dev/ttyS1" {
			t.Errorf("Expected default telemetry device, got %s", config.Telemetry.Device)
		}
		if config.Telemetry.RestartAfter != 20 {
			t.Errorf("Expected restart after 20, got %d", config.Telemetry.RestartAfter)
		}
		if config.SupervisorInterval() != time.Second {
			t.Errorf("Expected 1s supervisor interval, got %v", config.SupervisorInterval())
		}
		if config.ReopenDelay() != time.Millisecond {
			t.Errorf("Expected 1ms reopen delay, got %v", config.ReopenDelay())
		}
		if !strings.HasSuffix(config.Storage.DatabasePath, "x6d.db") {
			t.Errorf("Expected default database path, got %s", config.Storage.DatabasePath)
		}
	})

	t.Run("Environment Override", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "env.yaml")
		if err := os.WriteFile(configPath, []byte("web:\n  port: 8080\n"), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		t.Setenv("X6D_WEB_PORT", "7070")
		t.Setenv("X6D_LOGGING_LEVEL", "warn")

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if config.Web.Port != 7070 {
			t.Errorf("Expected env port 7070, got %d", config.Web.Port)
		}
		if config.Logging.Level != "warn" {
			t.Errorf("Expected env level warn, got %s", config.Logging.Level)
		}
	})

	t.Run("Invalid YAML", func(t *testing.T) {
		configPath := filepath.Join(tempDir, "invalid.yaml")
		if err := os.WriteFile(configPath, []byte("device: [unclosed"), 0644); err != nil {
			t.Fatalf("Failed to write config file: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Error("Expected error for invalid YAML")
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(tempDir, "missing.yaml")); err == nil {
			t.Error("Expected error for missing file")
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("Unknown Variant", func(t *testing.T) {
		config := Default()
		config.Device.Variant = "x9000"
		if err := config.Validate(); err == nil {
			t.Error("Expected error for unknown variant")
		}
	})

	t.Run("Bad Bus Address", func(t *testing.T) {
		config := Default()
		config.Bus.Address = 0x100
		if err := config.Validate(); err == nil {
			t.Error("Expected error for 10-bit address")
		}
	})

	t.Run("Wrong Host Command Count", func(t *testing.T) {
		config := Default()
		config.Bus.HostCommands = []uint16{1}
		if err := config.Validate(); err == nil {
			t.Error("Expected error for single host command")
		}
	})

	t.Run("Unknown GPIO Backend", func(t *testing.T) {
		config := Default()
		config.GPIO.Backend = "parallel-port"
		if err := config.Validate(); err == nil {
			t.Error("Expected error for unknown backend")
		}
	})

	t.Run("Defaults Are Valid", func(t *testing.T) {
		if err := Default().Validate(); err != nil {
			t.Errorf("Expected defaults to validate, got: %v", err)
		}
	})
}

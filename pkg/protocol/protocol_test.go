package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dougsko/x6d/pkg/regs"
)

func TestParseCommand(t *testing.T) {
	t.Run("Simple Commands", func(t *testing.T) {
		for _, cmdText := range []string{"STATUS", "PING", "QUIT", "REGS", "TELEMETRY", "FIELDS"} {
			t.Run(cmdText, func(t *testing.T) {
				cmd, err := ParseCommand(cmdText)
				if err != nil {
					t.Fatalf("Expected no error, got: %v", err)
				}
				if cmd.Type != cmdText {
					t.Errorf("Expected type %s, got %s", cmdText, cmd.Type)
				}
				if len(cmd.Args) != 0 {
					t.Errorf("Expected no args, got %d", len(cmd.Args))
				}
			})
		}
	})

	t.Run("REG Command", func(t *testing.T) {
		cmd, err := ParseCommand("REG:13")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Args["index"] != regs.VfoVm {
			t.Errorf("Expected index VfoVm, got %v", cmd.Args["index"])
		}

		cmd, err = ParseCommand("REG:0x35")
		if err != nil {
			t.Fatalf("Expected no error for hex index, got: %v", err)
		}
		if cmd.Args["index"] != regs.Last {
			t.Errorf("Expected index Last, got %v", cmd.Args["index"])
		}
	})

	t.Run("REG Out Of Range", func(t *testing.T) {
		if _, err := ParseCommand("REG:54"); err == nil {
			t.Error("Expected error for index 54")
		}
		if _, err := ParseCommand("REG:abc"); err == nil {
			t.Error("Expected error for non-numeric index")
		}
	})

	t.Run("SET Command", func(t *testing.T) {
		cmd, err := ParseCommand("SET:Squelch:40")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Args["field"] != "squelch" {
			t.Errorf("Expected field squelch, got %v", cmd.Args["field"])
		}
		if cmd.Args["value"] != uint32(40) {
			t.Errorf("Expected value 40, got %v", cmd.Args["value"])
		}

		if _, err := ParseCommand("SET:squelch"); err == nil {
			t.Error("Expected error for missing value")
		}
		if _, err := ParseCommand("SET:squelch:-1"); err == nil {
			t.Error("Expected error for negative value")
		}
	})

	t.Run("FREQ Command", func(t *testing.T) {
		cmd, err := ParseCommand("FREQ:b:7074000")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Args["vfo"] != regs.VFOB {
			t.Errorf("Expected VFO B, got %v", cmd.Args["vfo"])
		}
		if cmd.Args["frequency"] != uint32(7074000) {
			t.Errorf("Expected frequency 7074000, got %v", cmd.Args["frequency"])
		}

		if _, err := ParseCommand("FREQ:C:7074000"); err == nil {
			t.Error("Expected error for VFO C")
		}
	})

	t.Run("MODE Command", func(t *testing.T) {
		cmd, err := ParseCommand("MODE:A:usb-d")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Args["mode"] != regs.ModeUSBDig {
			t.Errorf("Expected USB-D, got %v", cmd.Args["mode"])
		}

		if _, err := ParseCommand("MODE:A:FT8"); err == nil {
			t.Error("Expected error for unknown mode")
		}
	})

	t.Run("VFO And PTT", func(t *testing.T) {
		cmd, err := ParseCommand("VFO:B")
		if err != nil || cmd.Args["vfo"] != regs.VFOB {
			t.Errorf("Expected VFO B, got %v (%v)", cmd, err)
		}

		cmd, err = ParseCommand("PTT:on")
		if err != nil || cmd.Args["on"] != true {
			t.Errorf("Expected PTT on, got %v (%v)", cmd, err)
		}
		cmd, err = ParseCommand("PTT:OFF")
		if err != nil || cmd.Args["on"] != false {
			t.Errorf("Expected PTT off, got %v (%v)", cmd, err)
		}
		if _, err := ParseCommand("PTT:maybe"); err == nil {
			t.Error("Expected error for PTT:maybe")
		}
	})

	t.Run("ATU Command", func(t *testing.T) {
		if _, err := ParseCommand("ATU:tune"); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if _, err := ParseCommand("ATU:bypass"); err == nil {
			t.Error("Expected error for ATU:bypass")
		}
	})

	t.Run("SNAPSHOT Reason", func(t *testing.T) {
		cmd, _ := ParseCommand("SNAPSHOT")
		if cmd.Args["reason"] != "manual" {
			t.Errorf("Expected default reason, got %v", cmd.Args["reason"])
		}
		cmd, _ = ParseCommand("SNAPSHOT:before-contest")
		if cmd.Args["reason"] != "before-contest" {
			t.Errorf("Expected reason before-contest, got %v", cmd.Args["reason"])
		}
	})

	t.Run("Case And Whitespace", func(t *testing.T) {
		cmd, err := ParseCommand("  status \n")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Type != CmdStatus {
			t.Errorf("Expected STATUS, got %s", cmd.Type)
		}
	})

	t.Run("Unknown And Empty", func(t *testing.T) {
		if _, err := ParseCommand("SEND:hello"); err == nil {
			t.Error("Expected error for unknown command")
		}
		if _, err := ParseCommand("   "); err == nil {
			t.Error("Expected error for empty command")
		}
	})
}

func TestResponse(t *testing.T) {
	t.Run("Success Response JSON", func(t *testing.T) {
		resp := NewSuccessResponse(map[string]interface{}{"index": 13, "value": 256})
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(resp.String()), &decoded); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if decoded["success"] != true {
			t.Error("Expected success true")
		}
		if _, ok := decoded["error"]; ok {
			t.Error("Expected error to be omitted")
		}
	})

	t.Run("Error Response JSON", func(t *testing.T) {
		resp := NewErrorResponse("bus not open")
		s := resp.String()
		if !strings.Contains(s, `"success":false`) || !strings.Contains(s, `"error":"bus not open"`) {
			t.Errorf("Unexpected response %s", s)
		}
		if strings.Contains(s, `"data"`) {
			t.Error("Expected data to be omitted")
		}
	})
}

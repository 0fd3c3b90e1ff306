package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dougsko/x6d/pkg/regs"
)

// Command represents a command sent to the core engine
type Command struct {
	Type string                 `json:"type"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// Response represents a response from the core engine
type Response struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Status represents the current daemon status
type Status struct {
	Variant    string    `json:"variant"`
	Firmware   string    `json:"firmware"`
	Connected  bool      `json:"connected"`
	Foreground string    `json:"foreground"`
	Band       string    `json:"band"`
	BandPolicy string    `json:"band_policy"`
	Telemetry  bool      `json:"telemetry"`
	ATUState   string    `json:"atu_state"`
	Uptime     string    `json:"uptime"`
	StartTime  time.Time `json:"start_time"`
	Version    string    `json:"version"`
}

// RegisterEntry is one row of the register dump
type RegisterEntry struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Value uint32 `json:"value"`
}

// Protocol commands
const (
	CmdStatus    = "STATUS"
	CmdPing      = "PING"
	CmdQuit      = "QUIT"
	CmdRegs      = "REGS"
	CmdReg       = "REG"
	CmdSet       = "SET"
	CmdFreq      = "FREQ"
	CmdMode      = "MODE"
	CmdVFO       = "VFO"
	CmdPTT       = "PTT"
	CmdATU       = "ATU"
	CmdTelemetry = "TELEMETRY"
	CmdFields    = "FIELDS"
	CmdSnapshot  = "SNAPSHOT"
)

// ParseCommand parses a text command into a Command struct. Arguments
// are validated and converted: "index" is a regs.Index, "vfo" a regs.VFO,
// "mode" a regs.Mode, "value" and "frequency" are uint32, "on" is a bool.
func ParseCommand(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty command")
	}
	parts := strings.SplitN(text, ":", 2)

	cmd := &Command{
		Type: strings.ToUpper(parts[0]),
		Args: make(map[string]interface{}),
	}

	args := ""
	if len(parts) > 1 {
		args = parts[1]
	}

	switch cmd.Type {
	case CmdStatus, CmdPing, CmdQuit, CmdRegs, CmdTelemetry, CmdFields:

	case CmdReg:
		// REG:13
		idx, err := parseIndex(args)
		if err != nil {
			return nil, err
		}
		cmd.Args["index"] = idx

	case CmdSet:
		// SET:squelch:40
		setParts := strings.SplitN(args, ":", 2)
		if len(setParts) != 2 || setParts[0] == "" {
			return nil, fmt.Errorf("usage: SET:<field>:<value>")
		}
		value, err := parseValue(setParts[1])
		if err != nil {
			return nil, err
		}
		cmd.Args["field"] = strings.ToLower(setParts[0])
		cmd.Args["value"] = value

	case CmdFreq:
		// FREQ:A:14074000
		freqParts := strings.SplitN(args, ":", 2)
		if len(freqParts) != 2 {
			return nil, fmt.Errorf("usage: FREQ:<A|B>:<hz>")
		}
		vfo, err := regs.ParseVFO(freqParts[0])
		if err != nil {
			return nil, err
		}
		freq, err := parseValue(freqParts[1])
		if err != nil {
			return nil, err
		}
		cmd.Args["vfo"] = vfo
		cmd.Args["frequency"] = freq

	case CmdMode:
		// MODE:B:USB-D
		modeParts := strings.SplitN(args, ":", 2)
		if len(modeParts) != 2 {
			return nil, fmt.Errorf("usage: MODE:<A|B>:<mode>")
		}
		vfo, err := regs.ParseVFO(modeParts[0])
		if err != nil {
			return nil, err
		}
		mode, err := regs.ParseMode(strings.ToUpper(modeParts[1]))
		if err != nil {
			return nil, err
		}
		cmd.Args["vfo"] = vfo
		cmd.Args["mode"] = mode

	case CmdVFO:
		vfo, err := regs.ParseVFO(args)
		if err != nil {
			return nil, err
		}
		cmd.Args["vfo"] = vfo

	case CmdPTT:
		on, err := parseOnOff(args)
		if err != nil {
			return nil, err
		}
		cmd.Args["on"] = on

	case CmdATU:
		if strings.ToLower(args) != "tune" {
			return nil, fmt.Errorf("usage: ATU:tune")
		}
		cmd.Args["action"] = "tune"

	case CmdSnapshot:
		// SNAPSHOT or SNAPSHOT:reason
		if args == "" {
			args = "manual"
		}
		cmd.Args["reason"] = args

	default:
		return nil, fmt.Errorf("unknown command: %s", cmd.Type)
	}

	return cmd, nil
}

func parseIndex(s string) (regs.Index, error) {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid register index %q", s)
	}
	idx := regs.Index(n)
	if err := idx.Check(); err != nil {
		return 0, err
	}
	return idx, nil
}

func parseValue(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return uint32(n), nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// String converts a Response to a JSON string
func (r *Response) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data map[string]interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

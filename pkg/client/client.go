package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/dougsko/x6d/pkg/flow"
	"github.com/dougsko/x6d/pkg/protocol"
	"github.com/dougsko/x6d/pkg/regs"
)

// SocketClient represents a client connection to the core engine
type SocketClient struct {
	socketPath string
	timeout    time.Duration
}

// Telemetry is the TELEMETRY reply
type Telemetry struct {
	Enabled bool `json:"enabled"`
	Stats   struct {
		Frames   uint64 `json:"frames"`
		Errors   uint64 `json:"errors"`
		Restarts uint64 `json:"restarts"`
	} `json:"stats"`
	Latest *struct {
		Time time.Time `json:"time"`
		flow.Summary
	} `json:"latest,omitempty"`
	Buffers map[string]int64 `json:"buffers,omitempty"`
}

// NewSocketClient creates a new socket client
func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// SetTimeout changes the per-command deadline
func (c *SocketClient) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendCommand sends a command and returns the response
func (c *SocketClient) SendCommand(cmd string) (*protocol.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return nil, fmt.Errorf("send error: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return nil, fmt.Errorf("no response received")
	}

	var response protocol.Response
	if err := json.Unmarshal(scanner.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &response, nil
}

// call sends cmd, fails on an error response and decodes Data[key] into
// out when out is not nil
func (c *SocketClient) call(cmd, key string, out interface{}) (*protocol.Response, error) {
	resp, err := c.SendCommand(cmd)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("%s error: %s", cmd, resp.Error)
	}
	if out == nil {
		return resp, nil
	}

	var data interface{} = resp.Data
	if key != "" {
		value, ok := resp.Data[key]
		if !ok {
			return resp, fmt.Errorf("%s not found in response", key)
		}
		data = value
	}

	// Convert to JSON and back to parse properly
	raw, _ := json.Marshal(data)
	if err := json.Unmarshal(raw, out); err != nil {
		return resp, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return resp, nil
}

// GetStatus gets the current daemon status
func (c *SocketClient) GetStatus() (*protocol.Status, error) {
	var status protocol.Status
	if _, err := c.call(protocol.CmdStatus, "status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetRegisters gets every cached register
func (c *SocketClient) GetRegisters() ([]protocol.RegisterEntry, error) {
	var entries []protocol.RegisterEntry
	if _, err := c.call(protocol.CmdRegs, "registers", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetRegister gets one cached register
func (c *SocketClient) GetRegister(idx regs.Index) (*protocol.RegisterEntry, error) {
	var entry protocol.RegisterEntry
	if _, err := c.call(fmt.Sprintf("REG:%d", idx), "", &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetFields lists the settable field names
func (c *SocketClient) GetFields() ([]string, error) {
	var names []string
	if _, err := c.call(protocol.CmdFields, "fields", &names); err != nil {
		return nil, err
	}
	return names, nil
}

// SetField writes a named field and returns the stored value
func (c *SocketClient) SetField(name string, value uint32) (uint32, error) {
	var stored uint32
	if _, err := c.call(fmt.Sprintf("SET:%s:%d", name, value), "value", &stored); err != nil {
		return 0, err
	}
	return stored, nil
}

// SetFrequency tunes a VFO
func (c *SocketClient) SetFrequency(vfo regs.VFO, hz uint32) error {
	_, err := c.call(fmt.Sprintf("FREQ:%s:%d", vfo, hz), "", nil)
	return err
}

// SetMode changes a VFO's mode
func (c *SocketClient) SetMode(vfo regs.VFO, mode regs.Mode) error {
	_, err := c.call(fmt.Sprintf("MODE:%s:%s", vfo, mode), "", nil)
	return err
}

// SelectVFO changes the foreground VFO
func (c *SocketClient) SelectVFO(vfo regs.VFO) error {
	_, err := c.call(fmt.Sprintf("VFO:%s", vfo), "", nil)
	return err
}

// SetPTT keys or unkeys the transmitter
func (c *SocketClient) SetPTT(on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	_, err := c.call(fmt.Sprintf("PTT:%s", state), "", nil)
	return err
}

// Tune requests an antenna tuner cycle
func (c *SocketClient) Tune() error {
	_, err := c.call("ATU:tune", "", nil)
	return err
}

// GetTelemetry gets the latest telemetry reading and stream counters
func (c *SocketClient) GetTelemetry() (*Telemetry, error) {
	var telemetry Telemetry
	if _, err := c.call(protocol.CmdTelemetry, "", &telemetry); err != nil {
		return nil, err
	}
	return &telemetry, nil
}

// Snapshot stores the register table under reason and returns its ID
func (c *SocketClient) Snapshot(reason string) (int64, error) {
	cmd := protocol.CmdSnapshot
	if reason != "" {
		cmd += ":" + reason
	}
	var id int64
	if _, err := c.call(cmd, "id", &id); err != nil {
		return 0, err
	}
	return id, nil
}

// Ping tests the connection
func (c *SocketClient) Ping() error {
	_, err := c.call(protocol.CmdPing, "", nil)
	return err
}

// IsConnected tests if the daemon is reachable
func (c *SocketClient) IsConnected() bool {
	return c.Ping() == nil
}

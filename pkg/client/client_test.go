package client

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dougsko/x6d/pkg/protocol"
	"github.com/dougsko/x6d/pkg/regs"
)

// fakeDaemon answers each command line with a canned response and records
// what it was sent
type fakeDaemon struct {
	listener net.Listener
	replies  map[string]*protocol.Response
	mutex    sync.Mutex
	received []string
}

func newFakeDaemon(t *testing.T, replies map[string]*protocol.Response) (*fakeDaemon, string) {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "x6d-client-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	socketPath := filepath.Join(tempDir, "x6d.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	d := &fakeDaemon{listener: listener, replies: replies}
	go d.serve()
	return d, socketPath
}

func (d *fakeDaemon) serve() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		go func(conn net.Conn) {
			defer conn.Close()
			scanner := bufio.NewScanner(conn)
			for scanner.Scan() {
				line := scanner.Text()
				d.mutex.Lock()
				d.received = append(d.received, line)
				d.mutex.Unlock()

				resp, ok := d.replies[line]
				if !ok {
					resp = protocol.NewErrorResponse("unknown command: " + line)
				}
				conn.Write([]byte(resp.String() + "\n"))
			}
		}(conn)
	}
}

func (d *fakeDaemon) last() string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if len(d.received) == 0 {
		return ""
	}
	return d.received[len(d.received)-1]
}

func TestSocketClient(t *testing.T) {
	replies := map[string]*protocol.Response{
		"PING": protocol.NewSuccessResponse(map[string]interface{}{"pong": 1}),
		"STATUS": protocol.NewSuccessResponse(map[string]interface{}{
			"status": protocol.Status{Variant: "x6100", Foreground: "A", Band: "20m"},
		}),
		"REGS": protocol.NewSuccessResponse(map[string]interface{}{
			"registers": []protocol.RegisterEntry{
				{Index: 0, Name: "vfoa_ham_band", Value: 1},
				{Index: 1, Name: "vfoa_freq", Value: 14074000},
			},
		}),
		"REG:13": protocol.NewSuccessResponse(map[string]interface{}{
			"index": 13, "name": "vfo_vm", "value": 0x100,
		}),
		"SET:squelch:300": protocol.NewSuccessResponse(map[string]interface{}{
			"field": "squelch", "value": 44, "truncated": true,
		}),
		"FREQ:B:7074000": protocol.NewSuccessResponse(map[string]interface{}{"band": "40m"}),
		"MODE:A:USB-D":   protocol.NewSuccessResponse(nil),
		"PTT:on":         protocol.NewSuccessResponse(nil),
		"ATU:tune":       protocol.NewErrorResponse("tune already in progress"),
		"SNAPSHOT:test":  protocol.NewSuccessResponse(map[string]interface{}{"id": 7}),
		"TELEMETRY": protocol.NewSuccessResponse(map[string]interface{}{
			"enabled": true,
			"stats":   map[string]interface{}{"frames": 12, "errors": 1, "restarts": 0},
			"latest":  map[string]interface{}{"time": time.Now(), "tx": true, "swr": 1.3},
		}),
	}
	d, socketPath := newFakeDaemon(t, replies)
	c := NewSocketClient(socketPath)

	t.Run("Ping", func(t *testing.T) {
		if !c.IsConnected() {
			t.Error("Expected daemon reachable")
		}
	})

	t.Run("Status", func(t *testing.T) {
		status, err := c.GetStatus()
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if status.Variant != "x6100" || status.Band != "20m" {
			t.Errorf("Unexpected status %+v", status)
		}
	})

	t.Run("Registers", func(t *testing.T) {
		entries, err := c.GetRegisters()
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(entries) != 2 || entries[1].Value != 14074000 {
			t.Errorf("Unexpected entries %+v", entries)
		}

		entry, err := c.GetRegister(regs.VfoVm)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if entry.Name != "vfo_vm" || entry.Value != 0x100 {
			t.Errorf("Unexpected entry %+v", entry)
		}
	})

	t.Run("Set Field Returns Stored Value", func(t *testing.T) {
		stored, err := c.SetField("squelch", 300)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if stored != 44 {
			t.Errorf("Expected stored 44, got %d", stored)
		}
	})

	t.Run("Command Formatting", func(t *testing.T) {
		if err := c.SetFrequency(regs.VFOB, 7074000); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if d.last() != "FREQ:B:7074000" {
			t.Errorf("Unexpected command %q", d.last())
		}
		if err := c.SetMode(regs.VFOA, regs.ModeUSBDig); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
		if err := c.SetPTT(true); err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
	})

	t.Run("Error Response", func(t *testing.T) {
		err := c.Tune()
		if err == nil || !strings.Contains(err.Error(), "tune already in progress") {
			t.Errorf("Expected daemon error, got %v", err)
		}
	})

	t.Run("Snapshot", func(t *testing.T) {
		id, err := c.Snapshot("test")
		if err != nil || id != 7 {
			t.Errorf("Expected id 7, got %d (%v)", id, err)
		}
	})

	t.Run("Telemetry", func(t *testing.T) {
		telemetry, err := c.GetTelemetry()
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if telemetry.Stats.Frames != 12 || telemetry.Latest == nil || !telemetry.Latest.TX {
			t.Errorf("Unexpected telemetry %+v", telemetry)
		}
	})
}

func TestSocketClientUnreachable(t *testing.T) {
	c := NewSocketClient(filepath.Join(os.TempDir(), "x6d-no-such.sock"))
	c.SetTimeout(100 * time.Millisecond)
	if c.IsConnected() {
		t.Error("Expected daemon unreachable")
	}
	if _, err := c.GetStatus(); err == nil {
		t.Error("Expected error from GetStatus")
	}
}

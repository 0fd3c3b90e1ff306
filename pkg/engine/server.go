package engine

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dougsko/x6d/pkg/logging"
	"github.com/dougsko/x6d/pkg/protocol"
	"github.com/dougsko/x6d/pkg/regs"
)

// acceptConnections accepts and handles socket connections
func (e *CoreEngine) acceptConnections() {
	for e.isRunning() {
		conn, err := e.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if e.isRunning() {
				logging.Warnf("engine", "socket accept error: %v", err)
			}
			continue
		}

		go e.handleConnection(conn)
	}
}

// handleConnection handles a single socket connection
func (e *CoreEngine) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		cmd, err := protocol.ParseCommand(line)
		if err != nil {
			response := protocol.NewErrorResponse(fmt.Sprintf("parse error: %v", err))
			conn.Write([]byte(response.String() + "\n"))
			continue
		}

		response := e.HandleCommand(cmd)
		conn.Write([]byte(response.String() + "\n"))

		if cmd.Type == protocol.CmdQuit {
			break
		}
	}
}

// HandleCommand executes a parsed command
func (e *CoreEngine) HandleCommand(cmd *protocol.Command) *protocol.Response {
	switch cmd.Type {
	case protocol.CmdStatus:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"status":     e.Status(),
			"radio":      e.radio.State(),
			"supervisor": e.supervisor.Stats(),
		})

	case protocol.CmdPing:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"pong": time.Now().Unix(),
		})

	case protocol.CmdQuit:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"message": "goodbye",
		})

	case protocol.CmdRegs:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"registers": e.registerList(),
		})

	case protocol.CmdReg:
		idx := cmd.Args["index"].(regs.Index)
		return protocol.NewSuccessResponse(map[string]interface{}{
			"index": int(idx),
			"name":  idx.String(),
			"value": e.cache.Read(idx),
		})

	case protocol.CmdSet:
		return e.handleSet(cmd)

	case protocol.CmdFreq:
		vfo := cmd.Args["vfo"].(regs.VFO)
		freq := cmd.Args["frequency"].(uint32)
		if err := e.radio.SetVFOFreq(vfo, freq); err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"vfo":       vfo.String(),
			"frequency": freq,
			"band":      regs.BandIndex(freq).String(),
		})

	case protocol.CmdMode:
		vfo := cmd.Args["vfo"].(regs.VFO)
		mode := cmd.Args["mode"].(regs.Mode)
		if err := e.radio.SetVFOMode(vfo, mode); err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"vfo":  vfo.String(),
			"mode": mode.String(),
		})

	case protocol.CmdVFO:
		vfo := cmd.Args["vfo"].(regs.VFO)
		if err := e.radio.SelectVFO(vfo); err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"foreground": vfo.String(),
		})

	case protocol.CmdPTT:
		on := cmd.Args["on"].(bool)
		if err := e.radio.SetPTT(on); err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"ptt": on,
		})

	case protocol.CmdATU:
		if err := e.RequestTune(); err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"status": "tune requested",
		})

	case protocol.CmdTelemetry:
		data := map[string]interface{}{
			"enabled": e.TelemetryEnabled(),
			"stats":   e.telemetry.Stats(),
		}
		if latest := e.telemetry.Latest(); latest != nil {
			data["latest"] = latest
		}
		if e.reader != nil {
			data["buffers"] = e.reader.BufferStats()
		}
		return protocol.NewSuccessResponse(data)

	case protocol.CmdFields:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"fields": regs.FieldNames(),
		})

	case protocol.CmdSnapshot:
		reason, _ := cmd.Args["reason"].(string)
		id, err := e.Snapshot(reason)
		if err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"id":     id,
			"reason": reason,
		})

	default:
		return protocol.NewErrorResponse(fmt.Sprintf("unknown command: %s", cmd.Type))
	}
}

func (e *CoreEngine) handleSet(cmd *protocol.Command) *protocol.Response {
	name := cmd.Args["field"].(string)
	value := cmd.Args["value"].(uint32)

	if err := e.radio.SetNamed(name, value); err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	stored, _ := e.radio.GetNamed(name)
	return protocol.NewSuccessResponse(map[string]interface{}{
		"field":     name,
		"value":     stored,
		"truncated": stored != value,
	})
}

func (e *CoreEngine) registerList() []protocol.RegisterEntry {
	table := e.cache.Snapshot()
	entries := make([]protocol.RegisterEntry, 0, len(table))
	for i, v := range table {
		idx := regs.Index(i)
		entries = append(entries, protocol.RegisterEntry{Index: i, Name: idx.String(), Value: v})
	}
	return entries
}

// Registers returns every register with its cached value
func (e *CoreEngine) Registers() []protocol.RegisterEntry {
	return e.registerList()
}

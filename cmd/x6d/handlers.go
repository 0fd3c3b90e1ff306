package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dougsko/x6d/pkg/logging"
	"github.com/dougsko/x6d/pkg/regs"
	"github.com/dougsko/x6d/pkg/storage"
)

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// handleGetStatus returns daemon status via socket
func (d *X6Daemon) handleGetStatus(c *gin.Context) {
	status, err := d.socketClient.GetStatus()
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// handleGetRegisters returns the cached register table
func (d *X6Daemon) handleGetRegisters(c *gin.Context) {
	entries, err := d.socketClient.GetRegisters()
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"registers": entries,
		"count":     len(entries),
	})
}

// handleGetRegister returns one cached register
func (d *X6Daemon) handleGetRegister(c *gin.Context) {
	n, err := strconv.ParseUint(c.Param("index"), 0, 8)
	if err != nil {
		badRequest(c, errors.New("invalid register index"))
		return
	}
	idx := regs.Index(n)
	if err := idx.Check(); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	entry, err := d.socketClient.GetRegister(idx)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// handleGetFields lists the settable field names
func (d *X6Daemon) handleGetFields(c *gin.Context) {
	names, err := d.socketClient.GetFields()
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fields": names})
}

// handleGetTelemetry returns the latest reading and stream counters
func (d *X6Daemon) handleGetTelemetry(c *gin.Context) {
	telemetry, err := d.socketClient.GetTelemetry()
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, telemetry)
}

func (d *X6Daemon) requireStore(c *gin.Context) *storage.TelemetryStore {
	store := d.coreEngine.Store()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "telemetry storage disabled"})
	}
	return store
}

// handleGetSamples returns stored telemetry samples
func (d *X6Daemon) handleGetSamples(c *gin.Context) {
	store := d.requireStore(c)
	if store == nil {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	query := storage.SampleQuery{
		Limit:  limit,
		Offset: offset,
		TXOnly: c.Query("tx") == "true",
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			badRequest(c, errors.New("since must be RFC3339"))
			return
		}
		query.Since = &t
	}

	samples, err := store.GetSamples(query)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"samples": samples,
		"count":   len(samples),
	})
}

// handleGetSnapshots lists stored register snapshots
func (d *X6Daemon) handleGetSnapshots(c *gin.Context) {
	store := d.requireStore(c)
	if store == nil {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	snapshots, err := store.ListSnapshots(limit)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// handleGetSnapshot returns one snapshot
func (d *X6Daemon) handleGetSnapshot(c *gin.Context) {
	store := d.requireStore(c)
	if store == nil {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, errors.New("invalid snapshot id"))
		return
	}
	snapshot, err := store.GetSnapshot(id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// handleTakeSnapshot stores the current register table
func (d *X6Daemon) handleTakeSnapshot(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	id, err := d.socketClient.Snapshot(req.Reason)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func vfoParam(c *gin.Context) (regs.VFO, bool) {
	vfo, err := regs.ParseVFO(c.Param("vfo"))
	if err != nil {
		badRequest(c, err)
		return 0, false
	}
	return vfo, true
}

// handleSetFrequency tunes a VFO
func (d *X6Daemon) handleSetFrequency(c *gin.Context) {
	vfo, ok := vfoParam(c)
	if !ok {
		return
	}
	var req struct {
		Frequency uint32 `json:"frequency" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := d.socketClient.SetFrequency(vfo, req.Frequency); err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vfo":       vfo.String(),
		"frequency": req.Frequency,
		"band":      regs.BandIndex(req.Frequency).String(),
	})
}

// handleSetMode changes a VFO's mode
func (d *X6Daemon) handleSetMode(c *gin.Context) {
	vfo, ok := vfoParam(c)
	if !ok {
		return
	}
	var req struct {
		Mode string `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	mode, err := regs.ParseMode(strings.ToUpper(req.Mode))
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := d.socketClient.SetMode(vfo, mode); err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vfo":  vfo.String(),
		"mode": mode.String(),
	})
}

// handleSelectVFO changes the foreground VFO
func (d *X6Daemon) handleSelectVFO(c *gin.Context) {
	var req struct {
		VFO string `json:"vfo" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	vfo, err := regs.ParseVFO(req.VFO)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := d.socketClient.SelectVFO(vfo); err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"foreground": vfo.String()})
}

// handleSetField writes a named register field
func (d *X6Daemon) handleSetField(c *gin.Context) {
	var req struct {
		Value *uint32 `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	name := strings.ToLower(c.Param("name"))
	if _, err := regs.Lookup(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	stored, err := d.socketClient.SetField(name, *req.Value)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"field":     name,
		"value":     stored,
		"truncated": stored != *req.Value,
	})
}

// handleSetPTT keys or unkeys the transmitter
func (d *X6Daemon) handleSetPTT(c *gin.Context) {
	var req struct {
		On *bool `json:"on" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := d.socketClient.SetPTT(*req.On); err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ptt": *req.On})
}

// handleTune requests an antenna tuner cycle
func (d *X6Daemon) handleTune(c *gin.Context) {
	if !d.coreEngine.TelemetryEnabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tuning requires telemetry"})
		return
	}
	if err := d.socketClient.Tune(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "tuning"})
}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleTelemetryWebSocket streams telemetry readings as JSON
func (d *X6Daemon) handleTelemetryWebSocket(c *gin.Context) {
	if !d.coreEngine.TelemetryEnabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "telemetry disabled"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("web", "websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	readings, release := d.coreEngine.Telemetry().Subscribe(8)
	defer release()

	logging.Debugf("web", "telemetry client %s connected", conn.RemoteAddr())

	// Reads only detect the close; clients send nothing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	for {
		select {
		case reading, ok := <-readings:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(reading); err != nil {
				logging.Debugf("web", "websocket write error: %v", err)
				return
			}
		case <-closed:
			logging.Debugf("web", "telemetry client %s disconnected", conn.RemoteAddr())
			return
		case <-ctx.Done():
			return
		}
	}
}

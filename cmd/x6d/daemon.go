package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/dougsko/x6d/pkg/auth"
	"github.com/dougsko/x6d/pkg/client"
	"github.com/dougsko/x6d/pkg/config"
	"github.com/dougsko/x6d/pkg/engine"
	"github.com/dougsko/x6d/pkg/logging"
)

const defaultTokenTTL = 24 * time.Hour

// X6Daemon ties the core engine to the web API
type X6Daemon struct {
	config     *config.Config
	configPath string

	coreEngine   *engine.CoreEngine
	socketClient *client.SocketClient
	guard        *auth.Middleware
	router       *gin.Engine
	webServer    *http.Server
}

// NewX6Daemon creates a new daemon instance
func NewX6Daemon(cfg *config.Config, configPath string, opts engine.Options) (*X6Daemon, error) {
	coreEngine, err := engine.NewCoreEngine(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create core engine: %w", err)
	}

	var verifier *auth.Verifier
	if cfg.Auth.JWTSecret != "" {
		verifier, err = auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			return nil, err
		}
	} else {
		logging.Warn("auth", "no JWT secret configured, control routes are open")
	}

	daemon := &X6Daemon{
		config:       cfg,
		configPath:   configPath,
		coreEngine:   coreEngine,
		socketClient: client.NewSocketClient(cfg.API.UnixSocket),
		guard:        auth.NewMiddleware(verifier),
	}
	daemon.setupWebServer()

	return daemon, nil
}

// Start runs the baseband handshake and checks the control socket
func (d *X6Daemon) Start(ctx context.Context) error {
	logging.Info("main", "starting x6d daemon")

	if err := d.coreEngine.Start(ctx); err != nil {
		return err
	}

	if !d.socketClient.IsConnected() {
		return fmt.Errorf("failed to connect to core engine socket")
	}
	return nil
}

// Run serves until ctx ends or a component fails
func (d *X6Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.coreEngine.Run(ctx)
	})

	g.Go(func() error {
		logging.Infof("web", "starting web server on %s", d.webServer.Addr)
		if err := d.webServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.webServer.Shutdown(shutdownCtx); err != nil {
			logging.Warnf("web", "web server shutdown error: %v", err)
		}
		return nil
	})

	if d.configPath != "" {
		g.Go(func() error {
			d.watchConfig(ctx)
			return nil
		})
	}

	return g.Wait()
}

// Stop releases the engine
func (d *X6Daemon) Stop() error {
	logging.Info("main", "stopping daemon")
	if err := d.coreEngine.Stop(); err != nil {
		return fmt.Errorf("core engine shutdown error: %w", err)
	}
	return nil
}

// setupWebServer initializes the router and routes
func (d *X6Daemon) setupWebServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	api := router.Group("/api/v1")
	{
		api.GET("/status", d.handleGetStatus)
		api.GET("/registers", d.handleGetRegisters)
		api.GET("/registers/:index", d.handleGetRegister)
		api.GET("/fields", d.handleGetFields)
		api.GET("/telemetry", d.handleGetTelemetry)
		api.GET("/telemetry/samples", d.handleGetSamples)
		api.GET("/snapshots", d.handleGetSnapshots)
		api.GET("/snapshots/:id", d.handleGetSnapshot)
		api.GET("/ws/telemetry", d.handleTelemetryWebSocket)
	}

	control := api.Group("", d.guard.RequireScope(auth.ScopeControl))
	{
		control.PUT("/vfo/:vfo/frequency", d.handleSetFrequency)
		control.PUT("/vfo/:vfo/mode", d.handleSetMode)
		control.PUT("/foreground", d.handleSelectVFO)
		control.PUT("/fields/:name", d.handleSetField)
		control.PUT("/ptt", d.handleSetPTT)
		control.POST("/atu/tune", d.handleTune)
		control.POST("/snapshots", d.handleTakeSnapshot)
	}

	d.router = router
	d.webServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", d.config.Web.BindAddress, d.config.Web.Port),
		Handler: router,
	}
}

// requestLogger logs each request through the daemon logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("web", "request", logging.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
	}
}

// watchConfig reapplies the log level whenever the config file changes
func (d *X6Daemon) watchConfig(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warnf("config", "unable to start config watcher: %v", err)
		return
	}
	defer watcher.Close()

	// Editors often replace the file, so watch its directory
	target := filepath.Clean(d.configPath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		logging.Warnf("config", "unable to watch %s: %v", target, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != target || !(e.Has(fsnotify.Write) || e.Has(fsnotify.Create)) {
				continue
			}
			drainUntilSilence(watcher, 100*time.Millisecond)
			d.reloadConfig()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Warnf("config", "watcher error: %v", err)
		}
	}
}

// reloadConfig applies the settings that can change without a restart
func (d *X6Daemon) reloadConfig() {
	cfg, err := config.LoadConfig(d.configPath)
	if err != nil {
		logging.Warnf("config", "ignoring config change: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		logging.Warnf("config", "ignoring invalid config: %v", err)
		return
	}

	level := logging.ParseLogLevel(cfg.Logging.Level)
	logger := logging.GetGlobalLogger()
	if logger.Level() != level {
		logger.SetLevel(level)
		logging.Infof("config", "log level changed to %s", level)
	}
}

// drainUntilSilence discards events until none arrive for silenceDur
func drainUntilSilence(w *fsnotify.Watcher, silenceDur time.Duration) {
	timer := time.NewTimer(silenceDur)
	defer timer.Stop()
	for {
		select {
		case <-w.Events:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(silenceDur)
		case <-timer.C:
			return
		}
	}
}

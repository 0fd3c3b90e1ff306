package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/dougsko/x6d/pkg/auth"
	"github.com/dougsko/x6d/pkg/config"
	"github.com/dougsko/x6d/pkg/control"
	"github.com/dougsko/x6d/pkg/engine"
	"github.com/dougsko/x6d/pkg/logging"
)

var (
	configPath = pflag.StringP("config", "c", "config.yaml", "Configuration file path")
	logLevel   = pflag.StringP("log-level", "l", "", "Override the configured log level")
	version    = pflag.BoolP("version", "v", false, "Show version information")
	issueToken = pflag.String("issue-token", "", "Print a control token for the given subject and exit")
	tokenTTL   = pflag.Duration("token-ttl", 0, "Lifetime of an issued token (default 24h)")
)

const Build = "development"

func main() {
	pflag.Parse()

	if *version {
		fmt.Printf("x6d version %s (%s)\n", engine.Version, Build)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if *issueToken != "" {
		token, err := mintToken(cfg, *issueToken)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		os.Exit(0)
	}

	if err := logging.InitGlobalLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()

	logging.Infof("main", "x6d version %s starting", engine.Version)
	logging.Infof("main", "device %s on i2c-%d address 0x%02X", cfg.Device.Variant, cfg.Bus.Number, cfg.Bus.Address)
	logging.Infof("main", "web interface: http://%s:%d", cfg.Web.BindAddress, cfg.Web.Port)

	daemon, err := NewX6Daemon(cfg, *configPath, engine.Options{})
	if err != nil {
		logging.Errorf("main", "failed to create daemon: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := daemon.Start(ctx); err != nil {
		var initErr *control.InitError
		if errors.As(err, &initErr) {
			logging.Error("main", "baseband initialization failed", logging.Fields{
				"step":  initErr.Step,
				"error": initErr.Err.Error(),
			})
		} else {
			logging.Errorf("main", "failed to start daemon: %v", err)
		}
		daemon.Stop()
		os.Exit(1)
	}

	logging.Info("main", "x6d started successfully")

	if err := daemon.Run(ctx); err != nil {
		logging.Errorf("main", "daemon stopped with error: %v", err)
	}

	logging.Info("main", "shutting down")
	if err := daemon.Stop(); err != nil {
		logging.Errorf("main", "error during shutdown: %v", err)
	}
	logging.Info("main", "x6d stopped")
}

func mintToken(cfg *config.Config, subject string) (string, error) {
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return "", err
	}
	ttl := *tokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return verifier.IssueToken(subject, []string{auth.ScopeRead, auth.ScopeControl}, ttl)
}

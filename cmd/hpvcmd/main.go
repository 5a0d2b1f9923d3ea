// Package main implements the device command service entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paphko/habpanelviewer/internal/api"
	"github.com/paphko/habpanelviewer/internal/audit"
	"github.com/paphko/habpanelviewer/internal/auth"
	"github.com/paphko/habpanelviewer/internal/capability"
	"github.com/paphko/habpanelviewer/internal/capability/fake"
	"github.com/paphko/habpanelviewer/internal/command"
	"github.com/paphko/habpanelviewer/internal/config"
	"github.com/paphko/habpanelviewer/internal/handlers"
	"github.com/paphko/habpanelviewer/internal/permission"
	"github.com/paphko/habpanelviewer/internal/report"
	"github.com/paphko/habpanelviewer/internal/telemetry"
	"github.com/paphko/habpanelviewer/internal/tracing"
)

func main() {
	log.Printf("Starting hpvcmd v%s", api.Version)

	// Step 1: Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("Configuration loaded successfully")

	// Step 2: Tracing (opt-in)
	shutdownTracing, err := tracing.Setup(context.Background(), cfg.Tracing)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	if cfg.Tracing.Enabled {
		log.Printf("Tracing exports to %s", cfg.Tracing.Endpoint)
	}

	// Step 3: Reporters
	telemetryHub := telemetry.NewHub(cfg.Telemetry)
	log.Println("Telemetry hub initialized")

	reporters := []command.Reporter{telemetryHub}
	var auditLogger *audit.Logger
	if cfg.Audit.Enabled {
		auditLogger, err = audit.NewLoggerWithOptions(cfg.Audit.Dir, audit.Options{
			MaxSizeMB:  cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
			MaxAgeDays: cfg.Audit.MaxAgeDays,
			Compress:   cfg.Audit.Compress,
		})
		if err != nil {
			log.Fatalf("Failed to initialize audit logger: %v", err)
		}
		reporters = append(reporters, auditLogger)
		log.Printf("Audit logger writing to %s", auditLogger.GetFilePath())
	}
	asyncReporter := report.NewAsync(report.Multi(reporters...), cfg.Report.QueueSize)

	// Step 4: Dispatcher and handlers
	grants := permission.NewGrants(cfg.Permissions.Granted...)
	dispatcher := command.NewDispatcher(asyncReporter)
	dispatcher.SetLogger(log.Default())

	if err := handlers.Register(dispatcher, cfg.Handlers, demoBackends(cfg.Handlers), grants); err != nil {
		log.Fatalf("Failed to register handlers: %v", err)
	}
	for _, info := range dispatcher.Handlers() {
		log.Printf("Handler %d: %s %v", info.Index, info.Description, info.Commands)
	}
	telemetryHub.SetReadySnapshot(func() map[string]interface{} {
		return map[string]interface{}{
			"handlers": dispatcher.Handlers(),
			"granted":  grants.List(),
		}
	})

	// Step 5: API server
	authMiddleware, err := newAuthMiddleware(cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to initialize auth: %v", err)
	}
	if !authMiddleware.Enabled() {
		log.Println("Authentication disabled: serving API unauthenticated")
	}
	server := api.NewServer(cfg.Server, dispatcher, telemetryHub, grants, authMiddleware)

	log.Printf("Starting HTTP server on %s", cfg.Server.Addr)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	log.Printf("Health endpoint: http://localhost%s/api/v1/health", cfg.Server.Addr)

	// Set up graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		log.Printf("Server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	// Open SSE streams hold Shutdown until they end
	telemetryHub.Stop()
	log.Println("Telemetry hub stopped")

	if err := server.Stop(ctx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	} else {
		log.Println("HTTP server stopped gracefully")
	}

	asyncReporter.Close()
	if dropped := asyncReporter.Dropped(); dropped > 0 {
		log.Printf("Reporter dropped %d notifications", dropped)
	}

	if auditLogger != nil {
		if err := auditLogger.Close(); err != nil {
			log.Printf("Error closing audit logger: %v", err)
		}
		log.Println("Audit logger closed")
	}

	if err := shutdownTracing(ctx); err != nil {
		log.Printf("Error flushing traces: %v", err)
	}

	log.Println("hpvcmd shutdown complete")
}

// newAuthMiddleware returns an open middleware unless tokens are required.
func newAuthMiddleware(cfg config.AuthConfig) (*auth.Middleware, error) {
	if !cfg.Required {
		return auth.NewMiddleware(nil), nil
	}
	verifier, err := auth.NewVerifierFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return auth.NewMiddleware(verifier), nil
}

// demoBackends binds every configured capability to an in-memory back-end.
func demoBackends(cfg config.HandlersConfig) handlers.Backends {
	backends := handlers.Backends{
		Togglers: make(map[string]capability.Toggler),
		Capturer: fake.NewCapturer(),
	}
	for _, t := range cfg.Toggles {
		if _, ok := backends.Togglers[t.Capability]; !ok {
			backends.Togglers[t.Capability] = fake.NewToggler(t.Capability)
		}
	}
	return backends
}

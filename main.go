// VAT Registry MCP Server - A Model Context Protocol server for VAT numbers
// Validates VAT identification numbers and looks them up in the EU VIES registry
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/olgasafonova/vat-registry-mcp-server/internal/base"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/config"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/service"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/vat"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/vies"
	"github.com/olgasafonova/vat-registry-mcp-server/tools"
	"github.com/olgasafonova/vat-registry-mcp-server/tracing"
)

// recoverPanic logs a panic with its stack instead of crashing silently
func recoverPanic(logger *slog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error("Panic recovered",
			"operation", operation,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}

const (
	ServerName    = "vat-registry-mcp-server"
	ServerVersion = "1.0.0"
)

const instructions = `VAT Registry MCP Server validates VAT identification numbers.

Available tools:
- vat_validate: Check one number against its country's syntax and checksum, optionally confirmed in VIES
- vat_validate_batch: Validate up to 20 numbers at once
- vat_lookup: Fetch the VIES record (name, address) of an EU VAT number
- vat_list_countries: List supported country prefixes and their rules

A VIES outage never makes a number invalid: the result reports remote=indeterminate instead.

Configure via environment variables:
- VAT_EU_ONLY: Only accept EU VAT area numbers
- VAT_ALLOWED_COUNTRIES: Comma-separated country codes to accept
- VAT_VIES_CHECK: Confirm numbers in VIES during validation
- VAT_STRICT_CHECKSUMS: Also enforce DK, FI, NO and SE check digits
- HTTP_ADDR: Serve streamable HTTP on this address instead of stdio`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure logging to stderr (stdout is used for MCP protocol)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	defer recoverPanic(logger, "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracingCfg := tracing.DefaultConfig()
	tracingCfg.ServiceVersion = ServerVersion
	shutdownTracing, err := tracing.Setup(ctx, tracingCfg)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown failed", "error", err)
		}
	}()

	server, viesClient, err := newServer(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	logger.Info("Starting VAT Registry MCP Server",
		"name", ServerName,
		"version", ServerVersion,
		"eu_only", cfg.EUOnly,
		"allowed_countries", cfg.AllowedCountries,
		"vies_check", cfg.RemoteCheck,
		"vies_endpoint", viesClient.Endpoint(),
	)

	if cfg.HTTPAddr != "" {
		err = serveHTTP(ctx, cfg, server, viesClient, logger)
	} else {
		err = server.Run(ctx, &mcp.StdioTransport{})
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

// newServer wires the VIES client, validator and service into an MCP server
// with every tool registered.
func newServer(cfg *config.Config, logger *slog.Logger) (*mcp.Server, *vies.Client, error) {
	viesClient := vies.NewClient(cfg.VIESEndpoint,
		base.WithTimeout(cfg.VIESTimeout),
		base.WithMaxConcurrent(cfg.VIESMaxConcurrent),
		base.WithLogger(logger),
	)

	validator, err := vat.NewValidator(cfg.ValidatorConfig(), vat.WithConfirmer(viesClient))
	if err != nil {
		return nil, nil, err
	}

	svc, err := service.New(validator, viesClient, logger)
	if err != nil {
		return nil, nil, err
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, &mcp.ServerOptions{
		Logger:       logger,
		Instructions: instructions,
	})

	tools.NewHandlerRegistry(svc, logger).RegisterAll(server)
	return server, viesClient, nil
}

// serveHTTP runs the streamable HTTP transport until ctx is canceled.
func serveHTTP(ctx context.Context, cfg *config.Config, server *mcp.Server, viesClient *vies.Client, logger *slog.Logger) error {
	handler, closeHandler := newRouter(server, viesClient, logger, SecurityConfig{
		RateLimit:   cfg.HTTPRateLimit,
		MaxBodySize: cfg.HTTPMaxBodySize,
	})
	defer closeHandler()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer recoverPanic(logger, "http server")
		logger.Info("Listening", "addr", cfg.HTTPAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("Shutting down HTTP server")
		return httpServer.Shutdown(shutdownCtx)
	}
}

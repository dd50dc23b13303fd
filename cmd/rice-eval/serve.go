package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/grpcserver"
	"github.com/ricesearch/rice-eval/internal/mcp"
	"github.com/ricesearch/rice-eval/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation HTTP API",
		Long: `Serve the evaluation API over HTTP, plus the gRPC health service when a
gRPC port is configured.

Judgments and queries given with --judgments/--queries are loaded at
startup; both can be replaced later through the API.

Examples:
  rice-eval serve                         # Start with defaults
  rice-eval serve --http-port 8090        # Custom HTTP port
  rice-eval serve --grpc-port 50051       # Enable gRPC health checks
  rice-eval serve --unix-socket /tmp/re.sock`,
		RunE: runServe,
	}

	cmd.Flags().Int("http-port", 8090, "HTTP server port")
	cmd.Flags().Int("grpc-port", 0, "gRPC health port (0 disables)")
	cmd.Flags().String("host", "0.0.0.0", "server host")
	cmd.Flags().String("unix-socket", "", "gRPC Unix socket path (disabled on Windows)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	httpPort, _ := cmd.Flags().GetInt("http-port")
	grpcPort, _ := cmd.Flags().GetInt("grpc-port")
	host, _ := cmd.Flags().GetString("host")
	unixSocket, _ := cmd.Flags().GetString("unix-socket")

	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Override from flags
	if cmd.Flags().Changed("http-port") {
		cfg.Port = httpPort
	}
	if cmd.Flags().Changed("grpc-port") {
		cfg.GRPCPort = grpcPort
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = host
	}

	log.Info("Starting rice-eval server",
		"version", version,
		"http_port", cfg.Port,
		"grpc_port", cfg.GRPCPort,
	)

	a, err := newApp(cfg, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	if !a.svc.Ready() {
		log.Warn("No judgments loaded; upload them to /v1/evaluation/judgments")
	}
	if cfg.Security.RateLimit > 0 {
		log.Info("Rate limiting enabled", "requests_per_second", cfg.Security.RateLimit)
	}

	var grpcSrv *grpcserver.Server
	if addr := cfg.GRPCAddress(); addr != "" {
		grpcSrv = grpcserver.New(grpcserver.Config{
			TCPAddr:        addr,
			UnixSocketPath: unixSocket,
		}, a.svc, log)
		if err := grpcSrv.Start(); err != nil {
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
		defer grpcSrv.Stop()
	}

	httpSrv := server.New(server.Config{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Version:   version,
		RateLimit: cfg.Security.RateLimit,
	}, a.svc, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Start()
	}()

	// Wait for shutdown signal (platform-specific: Unix includes SIGQUIT, Windows does not)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)

	select {
	case <-sigCh:
		log.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSrv.Stop(ctx); err != nil {
		log.Error("HTTP shutdown error", "error", err)
	}
	if grpcSrv != nil {
		grpcSrv.Stop()
	}

	log.Info("Server stopped")
	return nil
}

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the evaluation tools over the Model Context Protocol",
		Long: `Serve evaluation_status, evaluate_run, compare_runs, list_history and
get_history as MCP tools. Stdio is used unless --socket or --tcp is set.`,
		RunE: runMCP,
	}

	cmd.Flags().String("socket", "", "serve on a Unix socket instead of stdio")
	cmd.Flags().String("tcp", "", "serve on a TCP address instead of stdio")

	return cmd
}

func runMCP(cmd *cobra.Command, _ []string) error {
	socket, _ := cmd.Flags().GetString("socket")
	tcp, _ := cmd.Flags().GetString("tcp")

	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	srv := mcp.NewServer(mcp.ServerConfig{
		SocketPath: socket,
		TCPAddr:    tcp,
		Version:    version,
		Handler:    mcp.NewHandler(a.svc, log),
		Log:        log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	if socket == "" && tcp == "" {
		return srv.ServeStdio(ctx)
	}
	return srv.ServeSocket(ctx)
}

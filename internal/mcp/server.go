// Package mcp exposes the evaluation harness as Model Context Protocol tools
// over stdio or a local socket.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ricesearch/rice-eval/internal/pkg/logger"
)

const (
	// ServerName is the MCP server name.
	ServerName = "rice-eval"
	// DefaultVersion is reported when no version is configured.
	DefaultVersion = "dev"
)

// Server serves the evaluation tools. Each socket connection gets its own
// stdio session on the shared MCP server.
type Server struct {
	mcp      *server.MCPServer
	addr     string
	network  string
	listener net.Listener

	// Active connections
	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	log *logger.Logger
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// SocketPath is the Unix socket for ServeSocket.
	SocketPath string
	// TCPAddr overrides SocketPath with a TCP address.
	TCPAddr string
	Version string
	Handler *Handler
	Log     *logger.Logger
}

// NewServer creates an MCP server with the handler's tools registered.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Log == nil {
		cfg.Log = logger.Default()
	}

	network := "unix"
	addr := cfg.SocketPath
	if cfg.TCPAddr != "" {
		network = "tcp"
		addr = cfg.TCPAddr
	} else if addr == "" {
		home, _ := os.UserHomeDir()
		addr = filepath.Join(home, ".local", "run", "rice-eval", "mcp.sock")
	}

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			cfg.Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		addr:    addr,
		network: network,
		conns:   make(map[net.Conn]struct{}),
		log:     cfg.Log.WithSource("mcp"),
	}
	cfg.Handler.Register(s.mcp)
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves one session on stdin and stdout until ctx is done or
// stdin is closed.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.serveStream(ctx, os.Stdin, os.Stdout)
}

func (s *Server) serveStream(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ServeSocket listens on the configured socket and serves each connection
// until ctx is cancelled.
func (s *Server) ServeSocket(ctx context.Context) error {
	var (
		listener net.Listener
		err      error
	)

	if s.network == "unix" {
		if err := os.MkdirAll(filepath.Dir(s.addr), 0o755); err != nil {
			return fmt.Errorf("failed to create socket dir: %w", err)
		}
		_ = os.Remove(s.addr)

		listener, err = net.Listen("unix", s.addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		}
		_ = os.Chmod(s.addr, 0o600)
	} else {
		listener, err = net.Listen("tcp", s.addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		}
	}

	s.listener = listener
	s.log.Info("MCP server listening", "network", s.network, "addr", s.addr)

	go s.acceptLoop(ctx)

	<-ctx.Done()
	return s.Shutdown()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("Accept error", "error", err)
			continue
		}

		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
	}()

	s.log.Debug("Client connected")
	if err := s.serveStream(ctx, conn, conn); err != nil {
		s.log.Debug("Client disconnected", "error", err)
	}
}

// Shutdown closes the listener and every open connection.
func (s *Server) Shutdown() error {
	s.log.Info("Shutting down MCP server")

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	if s.network == "unix" {
		_ = os.Remove(s.addr)
	}
	return nil
}

// Addr returns the socket path or TCP address.
func (s *Server) Addr() string {
	return s.addr
}

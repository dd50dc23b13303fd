// Package grpcserver exposes the standard gRPC health and reflection
// services so orchestrators can check the evaluation service.
package grpcserver

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/ricesearch/rice-eval/internal/harness"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
)

// ServiceName is the health-checked service name. The empty name reports
// the same status.
const ServiceName = "rice.eval.v1.Evaluator"

// Config holds the gRPC server configuration.
type Config struct {
	// TCPAddr is the TCP address to listen on (e.g., ":50051").
	TCPAddr string

	// UnixSocketPath is the Unix socket path for local connections.
	// Empty string disables Unix socket listening.
	UnixSocketPath string

	// HealthInterval is how often readiness is re-checked.
	HealthInterval time.Duration

	// MaxRecvMsgSize is the maximum message size in bytes (default: 4MB).
	MaxRecvMsgSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TCPAddr:        ":50051",
		HealthInterval: 5 * time.Second,
		MaxRecvMsgSize: 4 * 1024 * 1024,
	}
}

// Server serves gRPC health checks for a harness service.
type Server struct {
	cfg        Config
	log        *logger.Logger
	svc        *harness.Service
	grpcServer *grpc.Server
	health     *health.Server

	stopOnce sync.Once
	stop     chan struct{}

	// Listeners
	tcpListener  net.Listener
	unixListener net.Listener
}

// New creates a gRPC server reporting the readiness of svc.
func New(cfg Config, svc *harness.Service, log *logger.Logger) *Server {
	def := DefaultConfig()
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = def.TCPAddr
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = def.HealthInterval
	}
	if cfg.MaxRecvMsgSize <= 0 {
		cfg.MaxRecvMsgSize = def.MaxRecvMsgSize
	}
	if log == nil {
		log = logger.Default()
	}

	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  10 * time.Second,
			Timeout:               3 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	s := &Server{
		cfg:        cfg,
		log:        log,
		svc:        svc,
		grpcServer: grpc.NewServer(opts...),
		health:     health.NewServer(),
		stop:       make(chan struct{}),
	}

	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)
	s.UpdateHealth()

	return s
}

// UpdateHealth sets the serving status from the service readiness.
func (s *Server) UpdateHealth() healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s.svc.Ready() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	return st
}

// Start listens on TCP and, if configured, a Unix socket. It returns once
// the listeners are open.
func (s *Server) Start() error {
	tcpLis, err := net.Listen("tcp", s.cfg.TCPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on TCP %s: %w", s.cfg.TCPAddr, err)
	}
	s.tcpListener = tcpLis
	s.log.Info("gRPC server listening on TCP", "addr", tcpLis.Addr().String())

	go s.serve(tcpLis, "TCP")

	if s.cfg.UnixSocketPath != "" && runtime.GOOS != "windows" {
		_ = os.Remove(s.cfg.UnixSocketPath)

		unixLis, err := net.Listen("unix", s.cfg.UnixSocketPath)
		if err != nil {
			s.log.Warn("Failed to listen on Unix socket", "path", s.cfg.UnixSocketPath, "error", err)
		} else {
			s.unixListener = unixLis
			_ = os.Chmod(s.cfg.UnixSocketPath, 0o660)
			s.log.Info("gRPC server listening on Unix socket", "path", s.cfg.UnixSocketPath)
			go s.serve(unixLis, "Unix socket")
		}
	}

	go s.watchReadiness()
	return nil
}

// Serve serves on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

func (s *Server) serve(lis net.Listener, kind string) {
	if err := s.Serve(lis); err != nil {
		s.log.Error(kind+" server error", "error", err)
	}
}

// watchReadiness flips the health status when judgments are loaded or
// replaced after startup.
func (s *Server) watchReadiness() {
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	last := s.UpdateHealth()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if st := s.UpdateHealth(); st != last {
				s.log.Info("gRPC health changed", "status", st.String())
				last = st
			}
		}
	}
}

// Addr returns the TCP listen address once started.
func (s *Server) Addr() net.Addr {
	if s.tcpListener == nil {
		return nil
	}
	return s.tcpListener.Addr()
}

// Stop marks the service as not serving and stops gracefully.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.log.Info("Stopping gRPC server...")
		s.health.Shutdown()
		s.grpcServer.GracefulStop()

		if s.cfg.UnixSocketPath != "" {
			_ = os.Remove(s.cfg.UnixSocketPath)
		}
	})
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/oggyb/matchmaker/internal/config"
)

// GRPCServer wraps a grpc.Server with health reporting.
type GRPCServer struct {
	srv    *grpc.Server
	health *health.Server
	log    *slog.Logger
}

// NewGRPCServer builds a server with all provided services, the health
// service and reflection registered.
func NewGRPCServer(log *slog.Logger, registrars ...Registrar) *GRPCServer {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(log)))

	// register all services
	for _, r := range registrars {
		r.Register(srv)
	}

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, r := range registrars {
		if n, ok := r.(interface{ ServiceName() string }); ok {
			hs.SetServingStatus(n.ServiceName(), healthpb.HealthCheckResponse_SERVING)
		}
	}

	// enable reflection for easier debugging with grpcurl
	reflection.Register(srv)

	return &GRPCServer{srv: srv, health: hs, log: log}
}

// Server exposes the underlying grpc.Server.
func (s *GRPCServer) Server() *grpc.Server { return s.srv }

// Serve accepts connections on lis until ctx ends, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.srv.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// StartGRPCServer listens on the configured address and serves the
// provided services until ctx ends.
func StartGRPCServer(ctx context.Context, cfg *config.Config, log *slog.Logger, registrars ...Registrar) error {
	addr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	log.Info("starting gRPC server", "addr", addr)
	return NewGRPCServer(log, registrars...).Serve(ctx, lis)
}

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			log.Debug("rpc failed", "method", info.FullMethod, "duration", time.Since(start), "err", err)
		} else {
			log.Debug("rpc handled", "method", info.FullMethod, "duration", time.Since(start))
		}
		return resp, err
	}
}

package grpcPack

import (
	"context"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/sajjad-MoBe/lsmstore/internal/shared"
	"github.com/sajjad-MoBe/lsmstore/internal/storage"
)

// ServiceName is the health service name reported for the storage engine
const ServiceName = "lsmstore.Engine"

// StatsSource reports engine statistics
type StatsSource interface {
	Stats() storage.Stats
}

// Server exposes the grpc.health.v1 service for one engine
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	source     StatsSource
	logger     *shared.Logger

	mu      sync.Mutex
	serving bool
}

// NewServer creates a new gRPC server reporting the health of source
func NewServer(source StatsSource, logger *shared.Logger) *Server {
	if logger == nil {
		logger = shared.DefaultLogger
	}

	s := &Server{
		grpcServer: grpc.NewServer(
			grpc.ChainUnaryInterceptor(UnaryErrorInterceptor, UnaryLoggingInterceptor(logger)),
			grpc.StreamInterceptor(StreamErrorInterceptor),
		),
		health:     health.NewServer(),
		source:     source,
		logger:     logger,
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.Refresh()
	return s
}

// Refresh recomputes the serving status from the engine statistics. An
// outstanding flush failure reports NOT_SERVING until a flush succeeds.
func (s *Server) Refresh() {
	stats := s.source.Stats()
	serving := stats.LastFlushError == ""

	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)

	s.mu.Lock()
	changed := s.serving != serving
	s.serving = serving
	s.mu.Unlock()

	if changed && !serving {
		s.logger.Warn("engine not serving: %s", stats.LastFlushError)
	}
}

// Watch refreshes the status every interval until ctx is done
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// Serve accepts connections on lis until Stop is called
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop marks every service as not serving and stops the server gracefully
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

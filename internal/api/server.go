// Package api hosts the collector's operator surface: an HTTP listener for
// metrics, liveness and queue inspection, and a gRPC listener carrying the
// standard health service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"ticklake/internal/config"
	"ticklake/internal/metrics"
	"ticklake/internal/queue"
)

// ServiceName is the gRPC health service name reported alongside the
// server-wide ("") status.
const ServiceName = "ticklake.TickCollector"

const shutdownTimeout = 5 * time.Second

// Server is the API server that hosts HTTP and gRPC endpoints.
type Server struct {
	httpAddr    string
	grpcAddr    string
	metricsPath string

	queue   *queue.Client
	metrics *metrics.Metrics
	health  *health.Server
	serving atomic.Bool
	log     *slog.Logger
}

// NewServer creates a Server configured from cfg. q and m may be nil, in
// which case the queue and metrics routes are not registered.
func NewServer(cfg *config.Config, q *queue.Client, m *metrics.Metrics) *Server {
	s := &Server{
		httpAddr:    cfg.Metrics.Addr,
		metricsPath: cfg.Metrics.Path,
		queue:       q,
		metrics:     m,
		health:      health.NewServer(),
		log:         slog.Default().With("component", "api"),
	}
	if cfg.Server.GRPCPort > 0 {
		s.grpcAddr = net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.GRPCPort))
	}
	s.SetServing(true)
	return s
}

// SetServing flips both health surfaces. The collector reports NOT_SERVING
// while it is paused for an upstream restart.
func (s *Server) SetServing(ok bool) {
	s.serving.Store(ok)
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Health returns the gRPC health service implementation.
func (s *Server) Health() healthpb.HealthServer { return s.health }

// RegisterGRPC registers the server's services on gs.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, s.health)
}

// RegisterRoutes registers all HTTP routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil && s.metricsPath != "" {
		mux.Handle("GET "+s.metricsPath, s.metrics.Handler())
	}
	if s.queue != nil {
		mux.HandleFunc("GET /api/queue", s.handleQueue)
		mux.HandleFunc("GET /api/queue/{doc}", s.handleQueueDoc)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until ctx is
// cancelled or a listener fails. Listeners without an address are skipped.
func (s *Server) ListenAndServe(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.httpAddr != "" {
		srv := &http.Server{Addr: s.httpAddr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			s.log.Info("http listening", "addr", s.httpAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if s.grpcAddr != "" {
		lis, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", s.grpcAddr, err)
		}
		gs := grpc.NewServer()
		s.RegisterGRPC(gs)
		g.Go(func() error {
			s.log.Info("grpc listening", "addr", s.grpcAddr)
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			s.health.Shutdown()
			gs.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/sheetsync/sheetsync/internal/server/ratelimit"
)

type serverImpl struct {
	cfg    Config
	logger *slog.Logger

	httpMux      *http.ServeMux
	httpServer   *http.Server
	httpListener net.Listener

	rateLimiter ratelimit.Stoppable

	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *health.Server

	mu      sync.Mutex
	started bool
}

// New creates a Service. The gRPC server and health service are created
// immediately so statuses can be set before Start.
func New(cfg Config, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &serverImpl{
		cfg:     cfg,
		logger:  logger.With("component", "server"),
		httpMux: http.NewServeMux(),
		health:  health.NewServer(),
	}

	if cfg.RateLimit.Enabled {
		s.rateLimiter = ratelimit.NewMemoryLimiter(cfg.RateLimit)
	}

	if cfg.GRPCEnabled {
		s.grpcServer = grpc.NewServer(
			grpc.ChainUnaryInterceptor(s.recoveryUnaryInterceptor, s.loggingUnaryInterceptor),
			grpc.ChainStreamInterceptor(s.recoveryStreamInterceptor),
		)
		healthpb.RegisterHealthServer(s.grpcServer, s.health)
		if cfg.EnableReflection {
			reflection.Register(s.grpcServer)
		}
	}
	return s
}

func (s *serverImpl) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true

	if err := s.listen(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.initHTTPServer()
	s.mu.Unlock()

	errChan := make(chan error, 2)
	go s.runHTTPServer(errChan)
	if s.grpcServer != nil {
		go s.runGRPCServer(errChan)
	}

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return nil
	}
}

// listen binds both listeners up front so a port conflict fails Start
// synchronously.
func (s *serverImpl) listen() error {
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.HTTPPort))
	if err != nil {
		return fmt.Errorf("http listen error: %w", err)
	}
	s.httpListener = lis

	if s.grpcServer != nil {
		glis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.GRPCPort))
		if err != nil {
			lis.Close()
			return fmt.Errorf("grpc listen error: %w", err)
		}
		s.grpcListener = glis
	}
	return nil
}

func (s *serverImpl) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	if s.httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("Stopping HTTP server")
			if err := s.httpServer.Shutdown(ctx); err != nil {
				errChan <- fmt.Errorf("http shutdown error: %w", err)
			}
		}()
	}

	if s.grpcServer != nil {
		s.health.Shutdown()
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("Stopping gRPC server")

			done := make(chan struct{})
			go func() {
				s.grpcServer.GracefulStop()
				close(done)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				s.logger.Warn("Context deadline exceeded, forcing gRPC stop")
				s.grpcServer.Stop()
			}
		}()
	}

	wg.Wait()
	close(errChan)

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *serverImpl) RegisterHTTPHandler(pattern string, handler http.Handler) {
	s.httpMux.Handle(pattern, handler)
}

func (s *serverImpl) RegisterGRPCService(desc *grpc.ServiceDesc, impl any) {
	if s.grpcServer != nil {
		s.grpcServer.RegisterService(desc, impl)
	}
}

func (s *serverImpl) SetServingStatus(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

func (s *serverImpl) HTTPAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

func (s *serverImpl) GRPCAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

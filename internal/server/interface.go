package server

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
)

// Service is the network layer: the HTTP control API and the gRPC health
// endpoint.
type Service interface {
	// Start binds the listeners and serves until ctx is canceled or a
	// listener fails.
	Start(ctx context.Context) error

	// Stop gracefully shuts down both servers, forcing them closed when ctx
	// expires.
	Stop(ctx context.Context) error

	// RegisterHTTPHandler registers a handler. Must be called before Start.
	RegisterHTTPHandler(pattern string, handler http.Handler)

	// RegisterGRPCService registers a gRPC service. Must be called before Start.
	RegisterGRPCService(desc *grpc.ServiceDesc, impl any)

	// SetServingStatus reports a named service through gRPC health checks.
	// The empty name is the overall server status.
	SetServingStatus(service string, serving bool)

	// HTTPAddr returns the bound HTTP address, or "" before Start.
	HTTPAddr() string

	// GRPCAddr returns the bound gRPC address, or "" if gRPC is disabled or
	// not started.
	GRPCAddr() string
}

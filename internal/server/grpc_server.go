package server

import (
	"fmt"
)

func (s *serverImpl) runGRPCServer(errChan chan<- error) {
	s.logger.Info("Starting gRPC server", "addr", s.grpcListener.Addr().String())
	if err := s.grpcServer.Serve(s.grpcListener); err != nil {
		errChan <- fmt.Errorf("grpc server error: %w", err)
	}
}

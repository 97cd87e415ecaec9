package httpserver

import (
	"context"
	"fmt"
	"time"
)

// ShutdownTimeout bounds how long in-flight requests may take to finish.
var ShutdownTimeout = 10 * time.Second

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := s.inner.Shutdown(ctx); err != nil {
		_ = s.inner.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

package utils

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	DEFAULT_READ_TIMEOUT     = 60 * time.Second
	DEFAULT_WRITE_TIMEOUT    = DEFAULT_READ_TIMEOUT
	DEFAULT_SHUTDOWN_TIMEOUT = 30 * time.Second
)

// GraceServer serves handler on addr until ctx is cancelled, then drains
// in-flight requests for up to DEFAULT_SHUTDOWN_TIMEOUT.
func GraceServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  DEFAULT_READ_TIMEOUT,
		WriteTimeout: DEFAULT_WRITE_TIMEOUT,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	L().Info("shutdown signal received, draining HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DEFAULT_SHUTDOWN_TIMEOUT)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		L().Errorf("HTTP server shutdown error: %v", err)
		return err
	}
	L().Info("HTTP server shutdown success")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/goGate/logging"
	"github.com/MrEthical07/goGate/session"
	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"
)

func newServeCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gate as an HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, st.cfg)
		},
	}
}

func serve(ctx context.Context, cfg *appConfig) error {
	b, err := openBackends(ctx, cfg.Stores, cfg.usesRedis())
	if err != nil {
		return err
	}
	defer b.Close()

	reg := newRegistry()
	engine, err := buildEngine(cfg, b, reg)
	if err != nil {
		return fmt.Errorf("build gate: %w", err)
	}
	defer engine.Close()

	handler, err := newRouter(engine, reg, cfg.Server.MetricsPath, b.pingers())
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	sup := newSupervisor(cfg.Server.ShutdownTimeout)
	sup.Add(newHTTPService(srv, cfg.Server.ShutdownTimeout))
	if b.purger != nil && cfg.Stores.PurgeInterval > 0 {
		sup.Add(newPurgeService(b.purger, cfg.Stores.PurgeInterval))
	}

	logging.Info().
		Str("addr", cfg.Server.Addr).
		Str("environment", cfg.Gate.Environment).
		Int("routes", len(engine.Routes().Routes())).
		Msg("gogate: serving")

	err = sup.Serve(ctx)
	if ctx.Err() != nil {
		logging.Info().Msg("gogate: shut down")
		return nil
	}
	return err
}

func newSupervisor(shutdownTimeout time.Duration) *suture.Supervisor {
	log := logging.WithComponent("supervisor")
	return suture.New("gogate", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn().Str("event", e.String()).Msg("gogate: supervisor event")
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
}

// httpServer is the part of *http.Server the service drives.
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// httpService runs an HTTP server under a supervisor.
type httpService struct {
	server          httpServer
	shutdownTimeout time.Duration
}

func newHTTPService(server httpServer, shutdownTimeout time.Duration) *httpService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &httpService{server: server, shutdownTimeout: shutdownTimeout}
}

func (s *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		// ctx is already canceled
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *httpService) String() string { return "http-server" }

type expiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

var _ expiredPurger = (*session.PostgresStore)(nil)

// purgeService deletes expired refresh-token rows on a fixed interval.
// Redis expires keys on its own and needs no sweep.
type purgeService struct {
	store    expiredPurger
	interval time.Duration
}

func newPurgeService(store expiredPurger, interval time.Duration) *purgeService {
	return &purgeService{store: store, interval: interval}
}

func (s *purgeService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.purge(ctx)
		}
	}
}

func (s *purgeService) purge(ctx context.Context) {
	n, err := s.store.PurgeExpired(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("gogate: refresh token purge failed")
		return
	}
	if n > 0 {
		logging.Debug().Int64("purged", n).Msg("gogate: expired refresh tokens removed")
	}
}

func (s *purgeService) String() string { return "refresh-purge" }

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/config"
	servernet "github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/ws"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/room"
)

// RunServer serves the relay room until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.Config) error {
	obs, err := newObservability(cfg, cfg.Server.Metrics)
	if err != nil {
		return err
	}
	defer obs.close()

	r := room.New(cfg.Server.Room(), room.Deps{
		Metrics:   obs.metrics,
		Publisher: obs.router,
		Logger:    obs.logger,
	})
	defer r.Close()

	socketCfg := cfg.Server.Socket()
	socketCfg.Logger = obs.logger
	socketCfg.Metrics = obs.metrics

	var registry *prometheus.Registry
	if cfg.Server.Metrics {
		registry = obs.registry
	}
	handler := servernet.NewHTTPHandler(servernet.HTTPHandlerConfig{
		Room:     r,
		Socket:   ws.NewHandler(r, socketCfg),
		Registry: registry,
		Counters: obs.counters,
		Events:   obs.events,
		Logger:   obs.logger,
	})

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		obs.logger.Printf("relay listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"studiosync/internal/config"
	"studiosync/internal/executor"
	"studiosync/internal/httpapi"
	"studiosync/internal/hub"
	"studiosync/internal/model"
	"studiosync/internal/protocol"
)

const shutdownTimeout = 10 * time.Second

// stack is the wired process: one registry, one dispatcher bound to it, one
// executor and the hub in front of them.
type stack struct {
	reg     *model.Registry
	exec    *executor.Sequential
	hub     *hub.Hub
	svc     *httpapi.HubService
	handler http.Handler
}

func buildStack(ctx context.Context, cfg config.Config, log zerolog.Logger) *stack {
	reg := model.NewRegistry("default", log.With().Str("component", "registry").Logger())
	for _, id := range slices.Sorted(maps.Keys(cfg.Models)) {
		reg.CreateModel(id, cfg.Models[id])
	}
	disp := protocol.New("default", reg, log.With().Str("component", "protocol").Logger())

	execLog := log.With().Str("component", "executor").Logger()
	exec := executor.New(executor.Config{
		Concurrency:   cfg.ExecutorConcurrency,
		NotifyTimeout: cfg.SendTimeout.D(),
		BaseContext:   context.WithoutCancel(ctx),
		Logger:        &execLog,
	})
	registerBuiltinTools(exec, reg)

	hubLog := log.With().Str("component", "hub").Logger()
	h := hub.New(hub.Config{
		Dispatcher:        disp,
		Executor:          exec,
		Logger:            &hubLog,
		HeartbeatInterval: cfg.HeartbeatInterval.D(),
		StaleAfter:        cfg.StaleAfter.D(),
		SendTimeout:       cfg.SendTimeout.D(),
		SendBuffer:        cfg.SendBuffer,
		MaxMessageBytes:   cfg.MaxMessageBytes,
		OriginPatterns:    cfg.CORSOrigins,
		DefaultGroups:     cfg.DefaultGroups,
	})

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	svc := httpapi.NewHubService(h, exec)
	mux := httpapi.NewMux(svc, h, httpapi.Options{
		MaxBodyBytes: cfg.MaxBodyBytes,
		CORSOrigins:  cfg.CORSOrigins,
		BaseContext:  ctx,
	})
	return &stack{reg: reg, exec: exec, hub: h, svc: svc, handler: mux}
}

// serve runs the server and the hub housekeeping loop until SIGINT/SIGTERM
// or until either of them fails.
func serve(parent context.Context, cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := buildStack(ctx, cfg, log)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           st.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Int("models", st.reg.Len()).
			Int("concurrency", cfg.ExecutorConcurrency).Msg("studiosync listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return st.hub.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return st.shutdown(srv, log)
	})
	return g.Wait()
}

// shutdown drains in order: stop advertising readiness, drop live
// connections, stop the listener, then let queued tool calls finish.
func (st *stack) shutdown(srv *http.Server, log zerolog.Logger) error {
	log.Info().Msg("shutting down")
	st.svc.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	closed := st.hub.CloseAll("server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	st.exec.Close()
	if err := st.exec.Wait(ctx); err != nil {
		log.Warn().Err(err).Int("queued", st.exec.Stats().Queued).Msg("tool calls still pending at exit")
	}
	log.Info().Int("connections_closed", closed).Msg("stopped")
	return nil
}

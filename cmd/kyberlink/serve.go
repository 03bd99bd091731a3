package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	kyberlink "github.com/sage-x-project/kyberlink"
	"github.com/sage-x-project/kyberlink/channel"
	"github.com/sage-x-project/kyberlink/config"
	"github.com/sage-x-project/kyberlink/crypto/formats"
	"github.com/sage-x-project/kyberlink/health"
	"github.com/sage-x-project/kyberlink/internal/logger"
	"github.com/sage-x-project/kyberlink/internal/metrics"
)

const greeting = "HELLO WORLD"

// runServe accepts connections, greets each authorized peer, and closes the
// session. Per-connection failures are logged; the listener keeps serving.
func runServe(ctx context.Context, cfg *config.Config) error {
	kp, err := formats.ReadKeyPair(cfg.Keys.PrivateFile, cfg.Keys.PublicFile, rand.Reader)
	if err != nil {
		return err
	}
	defer kp.Zeroize()

	ln, err := channel.Listen(cfg.Listen)
	if err != nil {
		return err
	}
	defer ln.Close()
	logger.Info("listening", logger.String("addr", ln.Addr().String()))

	opts := channel.Opts{
		Trust: &channel.AuthorizedKeys{Path: cfg.AuthorizedKeys.Path},
	}
	if !cfg.AuthorizedKeys.Enforce {
		opts.InsecureSkipVerify = true
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled || cfg.Health.Enabled {
		g.Go(func() error {
			return serveOps(ctx, cfg, ln)
		})
	}

	g.Go(func() error {
		for {
			sess, err := ln.Accept(ctx, kp, opts)
			if err != nil {
				if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, kyberlink.KindPermissionDenied) {
					logger.Warn("peer rejected", logger.Error(err))
				} else {
					logger.ErrorMsg("handshake failed", logger.Error(err))
				}
				continue
			}

			logger.Info("peer connected",
				logger.String("session", sess.ID()),
				logger.String("peer", sess.PeerAddr().String()),
				logger.String("peer_key", sess.PeerKeyHex()[:16]))

			if err := sess.Send([]byte(greeting)); err != nil {
				logger.ErrorMsg("send failed", logger.Error(err))
			}
			if err := sess.Close(); err != nil {
				logger.Warn("close failed", logger.Error(err))
			}
		}
	})

	return g.Wait()
}

// serveOps exposes the metrics and health endpoints on the ops listener.
func serveOps(ctx context.Context, cfg *config.Config, ln *channel.Listener) error {
	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}
	if cfg.Health.Enabled {
		checker := health.NewChecker(0)
		checker.RegisterCheck("private_key", health.KeyFileCheck(cfg.Keys.PrivateFile))
		checker.RegisterCheck("public_key", health.KeyFileCheck(cfg.Keys.PublicFile))
		checker.RegisterCheck("listener", health.ListenerCheck(func() string { return ln.Addr().String() }))

		mux.HandleFunc(cfg.Health.Path, func(w http.ResponseWriter, r *http.Request) {
			results := checker.CheckAll(r.Context())
			status := http.StatusOK
			for _, res := range results {
				if res.Status == health.StatusUnhealthy {
					status = http.StatusServiceUnavailable
				}
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(results)
		})
	}

	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

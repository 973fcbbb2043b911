package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pepeant/diceland-server/internal/config"
	"github.com/pepeant/diceland-server/internal/hub"
	"github.com/pepeant/diceland-server/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a json or yaml config file")
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := hub.New(logger.WithFields(map[string]any{"component": "hub"}), hub.Options{
		HeartbeatInterval: cfg.Hub.HeartbeatInterval.Std(),
		MaxNickname:       cfg.Hub.MaxNickname,
		MaxChatLen:        cfg.Hub.MaxChatLen,
		DefaultRoom:       cfg.Hub.DefaultRoom,
		SendBuffer:        cfg.Hub.SendBuffer,
		MaxMessageSize:    cfg.Hub.MaxMessageSize,
		WriteTimeout:      cfg.Hub.WriteTimeout.Std(),
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
	})
	if err := h.Start(ctx); err != nil {
		logger.Error("failed to start hub", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			reqLogger := logger.WithFields(map[string]any{
				"request_id": middleware.GetReqID(req.Context()),
			})
			next.ServeHTTP(w, req.WithContext(logging.WithLogger(req.Context(), reqLogger)))
		})
	})

	r.Get("/ws", h.ServeWS)

	health := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	}
	r.Get("/", health)
	r.Get("/healthz", health)

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.Stats())
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	// No write timeout: upgraded connections are hijacked and live far
	// longer than any sane HTTP deadline.
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadTimeout.Std(),
		IdleTimeout:       cfg.Server.IdleTimeout.Std(),
	}

	go func() {
		logger.Info("websocket server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := h.Stop(); err != nil {
		logger.Error("hub shutdown", "error", err)
	}
}

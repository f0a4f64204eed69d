package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slidingwindow-gateway/logger"
	"slidingwindow-gateway/middleware/ratelimit"
	"slidingwindow-gateway/middleware/ratelimit/application"
	"slidingwindow-gateway/middleware/ratelimit/domain"
	"slidingwindow-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
)

func main() {
	// Exemplo: o limiter aplicado por rota, direto no webserver (sem proxy).
	// GET e POST têm registros separados para o mesmo chamador.
	lg := logger.New(os.Getenv("LOG_FORMAT"))

	window := 5 * time.Second
	ledger, err := infra.OpenLedger(infra.LedgerConfig{
		Mode:         domain.StoreLocal,
		Window:       window,
		CleanupEvery: 2 * time.Minute,
	})
	if err != nil {
		log.Fatalf("ledger error: %v", err)
	}
	defer func() { _ = ledger.Close() }()

	svc, err := application.NewService(ledger, application.Config{
		PerSecond: 1,
		Window:    window,
		Logger:    lg.Logger,
	})
	if err != nil {
		log.Fatalf("limiter error: %v", err)
	}

	limitFor := func(resource string) func(http.Handler) http.Handler {
		return ratelimit.Middleware(ratelimit.Options{
			Checker:             svc,
			KeyFn:               ratelimit.ForwardedHostKeyFunc(),
			Resource:            resource,
			AddRateLimitHeaders: true,
		})
	}

	r := chi.NewRouter()
	r.Use(ratelimit.WithRequestID(lg))
	r.With(limitFor("on_get")).Get("/resource", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("get ok\n"))
	})
	r.With(limitFor("on_post")).Post("/resource", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("post ok\n"))
	})
	// sem limite
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	lg.Info("example server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slidingwindow-gateway/config"
	"slidingwindow-gateway/logger"
	"slidingwindow-gateway/metrics"
	"slidingwindow-gateway/middleware/ratelimit"
	"slidingwindow-gateway/middleware/ratelimit/application"
	"slidingwindow-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	lg := logger.New(cfg.LogFormat)

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.FromContext(r.Context()).Error("proxy error", "err", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ledger, err := infra.OpenLedger(cfg.Limiter.LedgerConfig())
	if err != nil {
		log.Fatalf("ledger error: %v", err)
	}
	defer func() { _ = ledger.Close() }()

	// Redis fora do ar não impede a subida: as verificações fazem fail-open.
	if rl, ok := ledger.(*infra.RedisLedger); ok {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rl.Ping(pingCtx); err != nil {
			lg.Warn("shared ledger unreachable at startup, checks will fail open until it recovers", "err", err)
		}
		cancel()
	}

	svc, err := application.NewService(ledger, cfg.Limiter.ServiceConfig(lg))
	if err != nil {
		log.Fatalf("limiter error: %v", err)
	}

	stats := infra.MultiStatsStore{infra.PrometheusStatsStore{}}
	if cfg.Stats.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,

			ContextTimeoutEnabled: true,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			log.Fatalf("redis stats ping error: %v", err)
		}

		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackIdentities(cfg.Stats.TrackIdentities),
		))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h := http.Handler(proxy)
	if cfg.RateEnabled {
		opts := ratelimit.Options{
			Checker:             svc,
			Stats:               stats,
			KeyHeader:           cfg.KeyHeader,
			TrustForwarded:      cfg.TrustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.RetryAfter,
			AddRateLimitHeaders: cfg.AddHeaders,
		}
		if cfg.KeyByForwardedHost {
			opts.KeyFn = ratelimit.ForwardedHostKeyFunc()
		}
		if cfg.ResourceByPath {
			opts.ResourceFn = ratelimit.PathResourceFunc()
		}
		h = ratelimit.Middleware(opts)(h)
	}
	h = ratelimit.WithRequestID(lg)(h)
	h = countActive(h)

	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	lim := cfg.Limiter
	lg.Info("gateway listening", "addr", cfg.ListenAddr, "upstream", target.String(), "metrics", cfg.MetricsPath)
	lg.Info("rate limit",
		"enabled", cfg.RateEnabled,
		"per_second", lim.PerSecond,
		"window_size", lim.WindowSize,
		"resource", lim.Resource,
		"store_mode", lim.StoreMode,
		"key_header", cfg.KeyHeader,
		"trust_xff", cfg.TrustXFF,
		"key_by_forwarded_host", cfg.KeyByForwardedHost,
	)
	lg.Info("rate stats", "redis_enabled", cfg.Stats.Enabled, "redis_addr", cfg.Stats.RedisAddr, "bucket", cfg.Stats.Bucket, "ttl", cfg.Stats.TTL)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Error("server error", "err", err)
		os.Exit(1)
	}
}

func countActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.ActiveRequests.Inc()
		defer metrics.ActiveRequests.Dec()
		next.ServeHTTP(w, r)
	})
}

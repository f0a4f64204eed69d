package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"slidingwindow-gateway/logger"
	"slidingwindow-gateway/middleware/ratelimit/domain"
)

// KeyFunc extrai a identidade do chamador.
type KeyFunc func(r *http.Request) string

// ResourceFunc extrai o rótulo do recurso protegido. "" usa o recurso padrão do limiter.
type ResourceFunc func(r *http.Request) string

// Checker é o que o middleware precisa do caso de uso (application.Service).
type Checker interface {
	Check(ctx context.Context, identity, resource string) domain.Decision
}

type Options struct {
	Checker        Checker
	Stats          domain.StatsStore
	KeyFn          KeyFunc
	KeyHeader      string
	TrustForwarded bool
	ResourceFn     ResourceFunc
	// Resource fixa o recurso da rota quando ResourceFn é nil.
	Resource            string
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

type rateInfo interface {
	PerSecond() float64
	Window() time.Duration
}

func DefaultKeyFunc(keyHeader string, trustForwarded bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustForwarded {
			if fh := firstHeaderValue(r.Header.Get("X-Forwarded-Host")); fh != "" {
				return fh
			}
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if ip := firstHeaderValue(r.Header.Get("X-Forwarded-For")); ip != "" {
				return ip
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// ForwardedHostKeyFunc usa o host encaminhado pelo proxy (X-Forwarded-Host)
// ou, sem ele, o Host da requisição.
func ForwardedHostKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if fh := firstHeaderValue(r.Header.Get("X-Forwarded-Host")); fh != "" {
			return fh
		}
		return r.Host
	}
}

// PathResourceFunc usa "<METHOD> <path>" como recurso. Cuidado com cardinalidade.
func PathResourceFunc() ResourceFunc {
	return func(r *http.Request) string {
		return r.Method + " " + r.URL.Path
	}
}

func firstHeaderValue(v string) string {
	if v == "" {
		return ""
	}
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Checker == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	ri, hasRateInfo := opts.Checker.(rateInfo)
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
		if hasRateInfo {
			opts.RetryAfter = ri.Window()
		}
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustForwarded)
	}
	if opts.ResourceFn == nil {
		resource := opts.Resource
		opts.ResourceFn = func(*http.Request) string { return resource }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := opts.KeyFn(r)
			dec := opts.Checker.Check(r.Context(), identity, opts.ResourceFn(r))

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", identity)
				w.Header().Set("X-RateLimit-Resource", dec.Key.Resource)
				if hasRateInfo {
					w.Header().Set("X-RateLimit-Limit", formatFloat(ri.PerSecond()))
					w.Header().Set("X-RateLimit-Window", formatSeconds(ri.Window()))
				}
				if dec.Outcome != domain.OutcomeFailOpen {
					w.Header().Set("X-RateLimit-Rate", formatFloat(dec.Rate))
				}
			}

			if opts.Stats != nil {
				if err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     dec.Key,
					Outcome: dec.Outcome,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				}); err != nil {
					logger.FromContext(r.Context()).Debug("rate limit stats not recorded", "err", err)
				}
			}

			if !dec.Allowed {
				logger.FromContext(r.Context()).Info("rate limit exceeded",
					"identity", identity,
					"resource", dec.Key.Resource,
					"count", dec.Count,
				)
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(opts.RetryAfter)))
				msg := dec.Message
				if msg == "" {
					msg = http.StatusText(opts.RejectStatus)
				}
				http.Error(w, msg, opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

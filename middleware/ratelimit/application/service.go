package application

import (
	"context"
	"log/slog"
	"time"

	"slidingwindow-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

const (
	DefaultErrorMessage = "429 Too Many Requests"
	DefaultStoreTimeout = 500 * time.Millisecond
	DefaultWarnInterval = 10 * time.Second
)

// Config descreve o limite aplicado por Service.
type Config struct {
	// PerSecond é a taxa (chamadas/segundo) acima da qual a chamada é negada.
	PerSecond float64
	// Window é o tamanho da janela deslizante.
	Window time.Duration
	// Resource é o recurso padrão quando o chamador passa "".
	Resource     string
	ErrorMessage string

	// StoreTimeout limita cada operação do ledger.
	StoreTimeout time.Duration
	// WarnInterval espaça os warnings de fail-open durante uma queda do store.
	WarnInterval time.Duration

	Clock  domain.Clock
	Logger *slog.Logger
}

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Seguro para uso concorrente; o ledger é injetado por quem constrói o Service.
type Service struct {
	ledger domain.Ledger

	perSecond     float64
	window        time.Duration
	windowSeconds float64
	resource      string
	errorMessage  string
	storeTimeout  time.Duration

	clock  domain.Clock
	logger *slog.Logger
	warn   *rate.Sometimes
}

// NewService valida a configuração antes de qualquer acesso ao ledger.
func NewService(ledger domain.Ledger, cfg Config) (*Service, error) {
	if ledger == nil {
		return nil, domain.NewConfigError("ledger", "is required")
	}
	if cfg.Window <= 0 {
		return nil, domain.NewConfigError("window_size", "must be > 0, got %s", cfg.Window)
	}
	if cfg.PerSecond <= 0 {
		return nil, domain.NewConfigError("per_second", "must be > 0, got %g", cfg.PerSecond)
	}
	if cfg.Resource == "" {
		cfg.Resource = domain.DefaultResource
	}
	if cfg.ErrorMessage == "" {
		cfg.ErrorMessage = DefaultErrorMessage
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.WarnInterval <= 0 {
		cfg.WarnInterval = DefaultWarnInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		ledger:        ledger,
		perSecond:     cfg.PerSecond,
		window:        cfg.Window,
		windowSeconds: cfg.Window.Seconds(),
		resource:      cfg.Resource,
		errorMessage:  cfg.ErrorMessage,
		storeTimeout:  cfg.StoreTimeout,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		warn:          &rate.Sometimes{First: 1, Interval: cfg.WarnInterval},
	}, nil
}

func (s *Service) PerSecond() float64    { return s.perSecond }
func (s *Service) Window() time.Duration { return s.window }
func (s *Service) Resource() string      { return s.resource }

// Check decide uma chamada e registra no ledger, seja ela permitida ou negada.
//
// A contagem inclui a própria chamada e a comparação é estrita: taxa igual a
// PerSecond ainda passa. Falha no ledger resulta em fail-open.
func (s *Service) Check(ctx context.Context, identity, resource string) domain.Decision {
	if resource == "" {
		resource = s.resource
	}
	key := domain.Key{Identity: identity, Resource: resource}

	if l, ok := s.ledger.(domain.KeyLocker); ok {
		unlock := l.LockKey(key)
		defer unlock()
	}

	// lido dentro da seção crítica para manter os timestamps em ordem por chave
	now := domain.Seconds(s.clock())

	count, err := s.track(ctx, key, now)
	if err != nil {
		s.warn.Do(func() {
			s.logger.WarnContext(ctx, "rate limit store unavailable, failing open",
				"identity", key.Identity,
				"resource", key.Resource,
				"err", err,
			)
		})
		return domain.Decision{Allowed: true, Outcome: domain.OutcomeFailOpen, Key: key}
	}

	r := float64(count) / s.windowSeconds
	if r > s.perSecond {
		return domain.Decision{
			Allowed: false,
			Outcome: domain.OutcomeDenied,
			Key:     key,
			Count:   count,
			Rate:    r,
			Message: s.errorMessage,
		}
	}
	return domain.Decision{Allowed: true, Outcome: domain.OutcomeAllowed, Key: key, Count: count, Rate: r}
}

func (s *Service) track(ctx context.Context, key domain.Key, now float64) (int64, error) {
	cutoff := now - s.windowSeconds

	if err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.ledger.Prune(ctx, key, cutoff)
	}); err != nil {
		return 0, err
	}
	if err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.ledger.RecordCall(ctx, key, now)
	}); err != nil {
		return 0, err
	}

	var count int64
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		count, err = s.ledger.CountActive(ctx, key)
		return err
	})
	return count, err
}

func (s *Service) withTimeout(ctx context.Context, op func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return op(opCtx)
}

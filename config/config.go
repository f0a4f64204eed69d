// Package config monta a configuração do limiter e do gateway a partir de
// variáveis de ambiente (.env incluso) ou de um arquivo YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"slidingwindow-gateway/logger"
	"slidingwindow-gateway/middleware/ratelimit/application"
	"slidingwindow-gateway/middleware/ratelimit/domain"
	"slidingwindow-gateway/middleware/ratelimit/infra"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Limiter são as opções do limiter. WindowSize é em segundos (float).
type Limiter struct {
	PerSecond          float64          `yaml:"per_second" validate:"gt=0"`
	WindowSize         float64          `yaml:"window_size" validate:"gt=0"`
	Resource           string           `yaml:"resource"`
	ErrorMessage       string           `yaml:"error_message"`
	StoreMode          domain.StoreMode `yaml:"store_mode" validate:"oneof=local shared"`
	SharedStoreAddress string           `yaml:"shared_store_address" validate:"required_if=StoreMode shared"`
	StoreTimeout       time.Duration    `yaml:"store_timeout" validate:"gte=0s"`
	KeyPrefix          string           `yaml:"key_prefix"`
	CleanupEvery       time.Duration    `yaml:"cleanup_every"`
}

func Default() Limiter {
	return Limiter{
		PerSecond:    10,
		WindowSize:   1,
		Resource:     domain.DefaultResource,
		ErrorMessage: application.DefaultErrorMessage,
		StoreMode:    domain.StoreLocal,
		StoreTimeout: application.DefaultStoreTimeout,
		CleanupEvery: 2 * time.Minute,
	}
}

func (l Limiter) Window() time.Duration {
	return time.Duration(l.WindowSize * float64(time.Second))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// erros com o nome do campo no YAML, que é o que o operador escreve
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate devolve um *domain.ConfigError para o primeiro campo inválido.
func (l Limiter) Validate() error {
	err := validate.Struct(l)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewConfigError("", "%v", err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "gt":
		return domain.NewConfigError(fe.Field(), "must be > %s, got %v", fe.Param(), fe.Value())
	case "gte":
		return domain.NewConfigError(fe.Field(), "must be >= %s, got %v", fe.Param(), fe.Value())
	case "oneof":
		return domain.NewConfigError(fe.Field(), "must be one of [%s], got %q", fe.Param(), fe.Value())
	case "required_if":
		return domain.NewConfigError(fe.Field(), "is required when %s", strings.Replace(fe.Param(), " ", "=", 1))
	default:
		return domain.NewConfigError(fe.Field(), "failed %q validation", fe.Tag())
	}
}

func (l Limiter) ServiceConfig(lg *logger.Logger) application.Config {
	cfg := application.Config{
		PerSecond:    l.PerSecond,
		Window:       l.Window(),
		Resource:     l.Resource,
		ErrorMessage: l.ErrorMessage,
		StoreTimeout: l.StoreTimeout,
	}
	if lg != nil {
		cfg.Logger = lg.Logger
	}
	return cfg
}

func (l Limiter) LedgerConfig() infra.LedgerConfig {
	return infra.LedgerConfig{
		Mode:         l.StoreMode,
		Address:      l.SharedStoreAddress,
		Window:       l.Window(),
		KeyPrefix:    l.KeyPrefix,
		CleanupEvery: l.CleanupEvery,
	}
}

// LoadLimiterFile lê o YAML por cima de Default() e valida.
func LoadLimiterFile(path string) (Limiter, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Limiter{}, fmt.Errorf("read limiter config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Limiter{}, fmt.Errorf("parse limiter config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Limiter{}, err
	}
	return cfg, nil
}

// Stats configura o RedisStatsStore opcional do gateway.
type Stats struct {
	Enabled         bool
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	Prefix          string
	TTL             time.Duration
	Bucket          string
	TrackIdentities bool
}

type Gateway struct {
	ListenAddr  string
	UpstreamURL string
	MetricsPath string
	LogFormat   string

	RateEnabled bool
	Limiter     Limiter
	KeyHeader   string
	TrustXFF    bool
	// KeyByForwardedHost identifica o chamador pelo host encaminhado (X-Forwarded-Host / Host).
	KeyByForwardedHost bool
	ResourceByPath     bool
	RetryAfter         time.Duration
	AddHeaders         bool

	Stats Stats
}

// FromEnv carrega .env (se existir) e depois lê o ambiente. RATE_CONFIG_FILE,
// quando definido, fornece a base do limiter; as variáveis RATE_* sobrescrevem.
func FromEnv() (Gateway, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Gateway{}, fmt.Errorf("load .env: %w", err)
	}

	env := &envReader{}
	lim := Default()
	if path := os.Getenv("RATE_CONFIG_FILE"); path != "" {
		var err error
		if lim, err = LoadLimiterFile(path); err != nil {
			return Gateway{}, err
		}
	}
	lim.PerSecond = env.float("RATE_PER_SECOND", lim.PerSecond)
	lim.WindowSize = env.float("RATE_WINDOW_SIZE", lim.WindowSize)
	lim.Resource = env.str("RATE_RESOURCE", lim.Resource)
	lim.ErrorMessage = env.str("RATE_ERROR_MESSAGE", lim.ErrorMessage)
	lim.StoreMode = domain.StoreMode(strings.ToLower(env.str("RATE_STORE_MODE", string(lim.StoreMode))))
	lim.SharedStoreAddress = env.str("RATE_STORE_ADDR", lim.SharedStoreAddress)
	lim.StoreTimeout = env.duration("RATE_STORE_TIMEOUT", lim.StoreTimeout)
	lim.KeyPrefix = env.str("RATE_KEY_PREFIX", lim.KeyPrefix)
	lim.CleanupEvery = env.duration("RATE_CLEANUP_EVERY", lim.CleanupEvery)

	cfg := Gateway{
		ListenAddr:         env.str("LISTEN_ADDR", ":8080"),
		UpstreamURL:        env.str("UPSTREAM_URL", ""),
		MetricsPath:        env.str("METRICS_PATH", "/metrics"),
		LogFormat:          env.str("LOG_FORMAT", "json"),
		RateEnabled:        env.bool("RATE_ENABLED", true),
		Limiter:            lim,
		KeyHeader:          env.str("RATE_KEY_HEADER", ""),
		TrustXFF:           env.bool("TRUST_XFF", false),
		KeyByForwardedHost: env.bool("RATE_KEY_BY_FORWARDED_HOST", false),
		ResourceByPath:     env.bool("RATE_RESOURCE_BY_PATH", false),
		RetryAfter:         env.duration("RETRY_AFTER", 0),
		AddHeaders:         env.bool("ADD_RATELIMIT_HEADERS", false),
		Stats: Stats{
			Enabled:         env.bool("RATE_STATS_ENABLED", false),
			RedisAddr:       env.str("RATE_STATS_REDIS_ADDR", ""),
			RedisPassword:   os.Getenv("RATE_STATS_REDIS_PASSWORD"),
			RedisDB:         env.int("RATE_STATS_REDIS_DB", 0),
			Prefix:          env.str("RATE_STATS_PREFIX", "ratelimit:stats"),
			TTL:             env.duration("RATE_STATS_TTL", 24*time.Hour),
			Bucket:          env.str("RATE_STATS_BUCKET", "minute"),
			TrackIdentities: env.bool("RATE_STATS_TRACK_IDENTITIES", false),
		},
	}

	if env.err != nil {
		return Gateway{}, env.err
	}
	if strings.TrimSpace(cfg.UpstreamURL) == "" {
		return Gateway{}, domain.NewConfigError("UPSTREAM_URL", "is required")
	}
	if cfg.Stats.Enabled && strings.TrimSpace(cfg.Stats.RedisAddr) == "" {
		return Gateway{}, domain.NewConfigError("RATE_STATS_REDIS_ADDR", "is required when RATE_STATS_ENABLED=true")
	}
	if err := cfg.Limiter.Validate(); err != nil {
		return Gateway{}, err
	}
	return cfg, nil
}

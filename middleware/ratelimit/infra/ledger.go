package infra

import (
	"io"
	"strings"
	"time"

	"slidingwindow-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// Ledger é um domain.Ledger que precisa ser fechado pelo dono.
type Ledger interface {
	domain.Ledger
	io.Closer
}

// LedgerConfig descreve qual variante abrir.
type LedgerConfig struct {
	Mode domain.StoreMode
	// Address é obrigatório no modo shared: "redis://..." ou "host:port".
	Address string
	// Window é a janela do limite; a limpeza de chaves ociosas nunca é
	// mais agressiva que ela.
	Window time.Duration

	KeyPrefix string
	// CleanupEvery é o intervalo do janitor do ledger local; <= 0 desliga.
	CleanupEvery time.Duration
}

// OpenLedger resolve o modo na construção: modo desconhecido ou endereço
// inválido falham aqui, não na primeira verificação.
func OpenLedger(cfg LedgerConfig) (Ledger, error) {
	switch cfg.Mode {
	case domain.StoreLocal, "":
		opts := []LocalLedgerOption{WithCleanupEvery(cfg.CleanupEvery)}
		if cfg.Window > 0 {
			opts = append(opts, WithRetention(retentionFor(cfg.Window)))
		}
		return NewLocalLedger(opts...), nil

	case domain.StoreShared:
		redisOpts, err := RedisOptions(cfg.Address)
		if err != nil {
			return nil, err
		}
		opts := []RedisLedgerOption{}
		if cfg.KeyPrefix != "" {
			opts = append(opts, WithKeyPrefix(cfg.KeyPrefix))
		}
		if cfg.Window > 0 {
			opts = append(opts, WithKeyTTL(retentionFor(cfg.Window)))
		}
		return NewRedisLedger(redis.NewClient(redisOpts), opts...), nil

	default:
		return nil, domain.NewConfigError("store_mode", "unknown mode %q (want %q or %q)", cfg.Mode, domain.StoreLocal, domain.StoreShared)
	}
}

// RedisOptions aceita URL (redis://, rediss://, unix://) ou host:port.
func RedisOptions(address string) (*redis.Options, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, domain.NewConfigError("shared_store_address", "is required when store_mode=%s", domain.StoreShared)
	}
	opts := &redis.Options{Addr: address}
	if strings.Contains(address, "://") {
		var err error
		if opts, err = redis.ParseURL(address); err != nil {
			return nil, domain.NewConfigError("shared_store_address", "%v", err)
		}
	}
	// o StoreTimeout do Service chega como deadline do contexto
	opts.ContextTimeoutEnabled = true
	return opts, nil
}

// retentionFor dá folga sobre a janela para não descartar registros ainda válidos.
func retentionFor(window time.Duration) time.Duration {
	return 2*window + time.Second
}

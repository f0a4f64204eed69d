package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"slidingwindow-gateway/metrics"
	"slidingwindow-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisStoreLabel = "redis"

// RedisLedger guarda os registros de cada chave num SET do Redis, compartilhado
// entre processos.
//
// Cada operação é um round trip separado: duas verificações concorrentes na
// mesma chave podem se intercalar e contar a mais ou a menos por um instante.
// Não há lock distribuído.
type RedisLedger struct {
	rdb    redis.UniversalClient
	prefix string
	// ttl renova a expiração do SET a cada chamada; 0 desliga.
	ttl time.Duration
}

var _ domain.Ledger = (*RedisLedger)(nil)

type RedisLedgerOption func(*RedisLedger)

func WithKeyPrefix(prefix string) RedisLedgerOption {
	return func(l *RedisLedger) { l.prefix = prefix }
}

// WithKeyTTL faz chaves abandonadas expirarem no Redis. Deve ser maior que a janela.
func WithKeyTTL(d time.Duration) RedisLedgerOption {
	return func(l *RedisLedger) { l.ttl = d }
}

func NewRedisLedger(rdb redis.UniversalClient, opts ...RedisLedgerOption) *RedisLedger {
	l := &RedisLedger{
		rdb:    rdb,
		prefix: "ratelimit:ledger:",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// redisKey prefixa a identidade com o seu tamanho: ("a:b", "c") e ("a", "b:c")
// precisam cair em SETs diferentes, como no ledger local.
func (l *RedisLedger) redisKey(key domain.Key) string {
	return l.prefix + strconv.Itoa(len(key.Identity)) + ":" + key.Identity + ":" + key.Resource
}

// Prune busca os membros e remove os anteriores a cutoff.
// Membros que não começam com um timestamp também são removidos.
func (l *RedisLedger) Prune(ctx context.Context, key domain.Key, cutoff float64) error {
	rk := l.redisKey(key)
	defer observe("prune", time.Now())

	members, err := l.rdb.SMembers(ctx, rk).Result()
	if err != nil {
		return storeErr("prune", rk, err)
	}

	var expired []any
	for _, m := range members {
		ts, ok := parseMember(m)
		if !ok || ts < cutoff {
			expired = append(expired, m)
		}
	}
	if len(expired) == 0 {
		return nil
	}
	if err := l.rdb.SRem(ctx, rk, expired...).Err(); err != nil {
		return storeErr("prune", rk, err)
	}
	return nil
}

// RecordCall adiciona "<timestamp>:<uuid>": duas chamadas no mesmo instante
// precisam virar dois membros do SET.
func (l *RedisLedger) RecordCall(ctx context.Context, key domain.Key, ts float64) error {
	rk := l.redisKey(key)
	defer observe("record", time.Now())

	member := formatMember(ts)
	if l.ttl <= 0 {
		if err := l.rdb.SAdd(ctx, rk, member).Err(); err != nil {
			return storeErr("record", rk, err)
		}
		return nil
	}

	pipe := l.rdb.TxPipeline()
	pipe.SAdd(ctx, rk, member)
	pipe.Expire(ctx, rk, l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("record", rk, err)
	}
	return nil
}

func (l *RedisLedger) CountActive(ctx context.Context, key domain.Key) (int64, error) {
	rk := l.redisKey(key)
	defer observe("count", time.Now())

	n, err := l.rdb.SCard(ctx, rk).Result()
	if err != nil {
		return 0, storeErr("count", rk, err)
	}
	return n, nil
}

// Ping verifica se o Redis responde.
func (l *RedisLedger) Ping(ctx context.Context) error {
	if err := l.rdb.Ping(ctx).Err(); err != nil {
		return storeErr("ping", "", err)
	}
	return nil
}

func (l *RedisLedger) Close() error {
	return l.rdb.Close()
}

func formatMember(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64) + ":" + uuid.NewString()
}

// parseMember aceita também o formato antigo, só com o timestamp.
func parseMember(m string) (float64, bool) {
	raw, _, _ := strings.Cut(m, ":")
	ts, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

func storeErr(op, key string, err error) error {
	metrics.LedgerErrorsTotal.WithLabelValues(redisStoreLabel, op).Inc()
	if key == "" {
		return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("%w: %s %s: %w", domain.ErrStoreUnavailable, op, key, err)
}

func observe(op string, start time.Time) {
	metrics.LedgerOpDuration.WithLabelValues(redisStoreLabel, op).Observe(time.Since(start).Seconds())
}

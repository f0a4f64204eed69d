package infra

import (
	"context"
	"strings"
	"time"

	"slidingwindow-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

const DefaultStatsTimeout = 250 * time.Millisecond

// RedisStatsStore soma as decisões em hashes do Redis, com o outcome como campo:
//
//	<prefix>:total                 cumulativo, não expira
//	<prefix>:minute:YYYYMMDDHHMM   série por minuto (bucket "minute")
//	<prefix>:resource              campo "<recurso>:<outcome>"
//	<prefix>:identity:<id>         só com WithStatsTrackIdentities
type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl vale para as chaves por minuto e por identidade.
	ttl     time.Duration
	bucket  string
	timeout time.Duration

	trackIdentities bool
}

var _ domain.StatsStore = (*RedisStatsStore)(nil)

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket aceita "minute" (padrão) ou "none".
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackIdentities(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackIdentities = track }
}

// WithStatsTimeout limita o tempo de Record, que roda no caminho da requisição.
func WithStatsTimeout(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.timeout = d }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:     rdb,
		prefix:  "ratelimit:stats",
		ttl:     24 * time.Hour,
		bucket:  "minute",
		timeout: DefaultStatsTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// statsIncr é um HINCRBY; expire só se aplica às chaves com TTL.
type statsIncr struct {
	key    string
	field  string
	expire bool
}

func (s *RedisStatsStore) increments(ev domain.StatsEvent) []statsIncr {
	outcome := string(ev.Outcome)
	out := []statsIncr{{key: s.prefix + ":total", field: outcome}}

	if s.bucket == "minute" {
		at := ev.At
		if at.IsZero() {
			at = time.Now()
		}
		out = append(out, statsIncr{
			key:    s.prefix + ":minute:" + at.UTC().Format("200601021504"),
			field:  outcome,
			expire: true,
		})
	}
	if res := strings.TrimSpace(ev.Key.Resource); res != "" {
		out = append(out, statsIncr{key: s.prefix + ":resource", field: res + ":" + outcome})
	}
	if id := strings.TrimSpace(ev.Key.Identity); s.trackIdentities && id != "" {
		out = append(out, statsIncr{key: s.prefix + ":identity:" + id, field: outcome, expire: true})
	}
	return out
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil || ev.Outcome == "" {
		return nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, inc := range s.increments(ev) {
			pipe.HIncrBy(ctx, inc.key, inc.field, 1)
			if inc.expire && s.ttl > 0 {
				pipe.Expire(ctx, inc.key, s.ttl)
			}
		}
		return nil
	})
	return err
}

package infra

import (
	"errors"
	"testing"
	"time"

	"slidingwindow-gateway/middleware/ratelimit/domain"
)

func TestOpenLedger_LocalByDefault(t *testing.T) {
	l, err := OpenLedger(LedgerConfig{Window: 5 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	local, ok := l.(*LocalLedger)
	if !ok {
		t.Fatalf("expected *LocalLedger, got %T", l)
	}
	if local.retention != 11*time.Second {
		t.Fatalf("expected retention derived from window, got %s", local.retention)
	}
}

func TestOpenLedger_SharedAcceptsURLAndHostPort(t *testing.T) {
	for _, addr := range []string{"redis://localhost:6379/0", "localhost:6379"} {
		l, err := OpenLedger(LedgerConfig{Mode: domain.StoreShared, Address: addr, Window: time.Second})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", addr, err)
		}
		if _, ok := l.(*RedisLedger); !ok {
			t.Fatalf("%s: expected *RedisLedger, got %T", addr, l)
		}
		_ = l.Close()
	}
}

func TestOpenLedger_ConfigErrors(t *testing.T) {
	cases := []struct {
		name  string
		cfg   LedgerConfig
		field string
	}{
		{"shared without address", LedgerConfig{Mode: domain.StoreShared}, "shared_store_address"},
		{"shared with bad url", LedgerConfig{Mode: domain.StoreShared, Address: "http://localhost:6379"}, "shared_store_address"},
		{"unknown mode", LedgerConfig{Mode: "memcached"}, "store_mode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := OpenLedger(tc.cfg)
			if l != nil {
				t.Fatalf("expected nil ledger")
			}
			var cfgErr *domain.ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != tc.field {
				t.Fatalf("expected config error on %q, got %v", tc.field, err)
			}
		})
	}
}

func TestRedisOptions_HonorContextDeadlines(t *testing.T) {
	for _, addr := range []string{"redis://localhost:6379/2", "localhost:6379"} {
		opts, err := RedisOptions(addr)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", addr, err)
		}
		if !opts.ContextTimeoutEnabled {
			t.Fatalf("%s: expected ContextTimeoutEnabled so StoreTimeout bounds each op", addr)
		}
	}
}

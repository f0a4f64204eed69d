package infra

import (
	"context"
	"sync"
	"time"

	"slidingwindow-gateway/middleware/ratelimit/domain"

	"github.com/gammazero/deque"
)

// LocalLedger é o ledger em memória do processo, com uma fila ordenada de
// timestamps por chave. O estado some quando o processo reinicia.
type LocalLedger struct {
	mu      sync.Mutex
	entries map[domain.Key]*series

	retention    time.Duration
	cleanupEvery time.Duration
	done         chan struct{}
	closeOnce    sync.Once
}

type series struct {
	// check serializa prune/record/count de uma verificação (ver LockKey).
	check sync.Mutex
	// dead marca uma série removida pelo janitor; quem a travou deve buscar outra.
	dead bool

	mu      sync.Mutex
	records deque.Deque[float64]
}

var (
	_ domain.Ledger    = (*LocalLedger)(nil)
	_ domain.KeyLocker = (*LocalLedger)(nil)
)

type LocalLedgerOption func(*LocalLedger)

// WithRetention define há quanto tempo o registro mais novo de uma chave precisa
// ter sido feito para a chave ser descartada. Deve ser maior que a janela do
// limite. Sem retenção o janitor não roda: o ledger não conhece a janela.
func WithRetention(d time.Duration) LocalLedgerOption {
	return func(l *LocalLedger) { l.retention = d }
}

// WithCleanupEvery define o intervalo do janitor. <= 0 desliga a limpeza automática.
func WithCleanupEvery(d time.Duration) LocalLedgerOption {
	return func(l *LocalLedger) { l.cleanupEvery = d }
}

func NewLocalLedger(opts ...LocalLedgerOption) *LocalLedger {
	l := &LocalLedger{
		entries:      make(map[domain.Key]*series),
		cleanupEvery: 2 * time.Minute,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.cleanupEvery > 0 && l.retention > 0 {
		go l.cleanupLoop()
	}
	return l
}

func (l *LocalLedger) get(key domain.Key) *series {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.entries[key]
	if !ok {
		s = &series{}
		l.entries[key] = s
	}
	return s
}

// LockKey implementa domain.KeyLocker.
func (l *LocalLedger) LockKey(key domain.Key) func() {
	for {
		s := l.get(key)
		s.check.Lock()
		if !s.dead {
			return s.check.Unlock
		}
		s.check.Unlock()
	}
}

// Prune remove o prefixo expirado; os registros chegam em ordem, então basta
// olhar a frente da fila.
func (l *LocalLedger) Prune(_ context.Context, key domain.Key, cutoff float64) error {
	s := l.get(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.records.Len() > 0 && s.records.Front() < cutoff {
		s.records.PopFront()
	}
	return nil
}

func (l *LocalLedger) RecordCall(_ context.Context, key domain.Key, ts float64) error {
	s := l.get(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records.PushBack(ts)
	return nil
}

func (l *LocalLedger) CountActive(_ context.Context, key domain.Key) (int64, error) {
	s := l.get(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(s.records.Len()), nil
}

// Len devolve quantas chaves estão em memória.
func (l *LocalLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Cleanup descarta chaves cujo registro mais novo é anterior a cutoff (segundos).
// Chaves em verificação no momento são mantidas.
func (l *LocalLedger) Cleanup(cutoff float64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, s := range l.entries {
		if !s.check.TryLock() {
			continue
		}
		s.mu.Lock()
		idle := s.records.Len() == 0 || s.records.Back() < cutoff
		s.mu.Unlock()
		if idle {
			s.dead = true
			delete(l.entries, k)
			removed++
		}
		s.check.Unlock()
	}
	return removed
}

func (l *LocalLedger) cleanupLoop() {
	t := time.NewTicker(l.cleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case now := <-t.C:
			l.Cleanup(domain.Seconds(now.Add(-l.retention)))
		}
	}
}

// Close para o janitor. O ledger continua utilizável.
func (l *LocalLedger) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

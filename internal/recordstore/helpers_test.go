package recordstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/starford/parkwatch/internal/kv"
	"github.com/starford/parkwatch/internal/models"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newStore(t *testing.T, b kv.Backend, opts ...Option) *Store {
	t.Helper()
	s, err := New(b, append([]Option{WithLogger(quiet)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func issue(id string, ts int64) models.Issue {
	return models.Issue{
		ID:        id,
		Data:      "FHE-e30=",
		Category:  models.CategorySafety,
		Timestamp: ts,
		Status:    models.StatusPending,
	}
}

// barrier holds the first n Gets of key until all n have read, so every
// participant observes the same value before anyone writes.
type barrier struct {
	*kv.Memory
	key string

	mu      sync.Mutex
	n       int
	release chan struct{}
}

func newBarrier(mem *kv.Memory, key string, n int) *barrier {
	return &barrier{Memory: mem, key: key, n: n, release: make(chan struct{})}
}

func (b *barrier) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.Memory.Get(ctx, key)
	if key != b.key {
		return v, err
	}
	b.mu.Lock()
	if b.n == 0 {
		b.mu.Unlock()
		return v, err
	}
	b.n--
	if b.n == 0 {
		close(b.release)
	}
	ch := b.release
	b.mu.Unlock()
	<-ch
	return v, err
}

var errInjected = errors.New("injected failure")

// faulty fails every Set on failKey and counts writes.
type faulty struct {
	*kv.Memory
	failKey string
	sets    atomic.Int32
}

func (f *faulty) Set(ctx context.Context, key string, value []byte) error {
	f.sets.Add(1)
	if key == f.failKey {
		return errInjected
	}
	return f.Memory.Set(ctx, key, value)
}

// losing is a Swapper that never wins.
type losing struct {
	*kv.Memory
}

func (losing) CompareAndSet(context.Context, string, []byte, []byte) (bool, error) {
	return false, nil
}

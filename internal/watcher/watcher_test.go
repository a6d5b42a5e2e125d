package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/parkwatch/internal/kv"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *recorder) add(key string) {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func startWatch(t *testing.T, dir string, rec *recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, dir, 30*time.Millisecond, quiet, rec.add)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
}

func waitFor(t *testing.T, rec *recorder, key string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, k := range rec.snapshot() {
			if k == key {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no change reported for %s; got %v", key, rec.snapshot())
}

func TestWatch_ReportsBackendWrites(t *testing.T) {
	dir := t.TempDir()
	store, err := kv.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatch(t, dir, rec)

	if err := store.Set(context.Background(), "issue_keys", []byte(`["1-a"]`)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, rec, "issue_keys")
}

func TestWatch_IgnoresUnchangedContentAndForeignFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issue_1-a"+kv.FileExt)
	if err := os.WriteFile(path, []byte(`{"votes":0}`), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatch(t, dir, rec)

	// Same bytes as the snapshot: not a change.
	_ = os.WriteFile(path, []byte(`{"votes":0}`), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	time.Sleep(200 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("unexpected changes: %v", got)
	}

	_ = os.WriteFile(path, []byte(`{"votes":1}`), 0o644)
	waitFor(t, rec, "issue_1-a")
}

func TestWatch_ReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issue_2-b"+kv.FileExt)
	_ = os.WriteFile(path, []byte("{}"), 0o644)
	rec := &recorder{}
	startWatch(t, dir, rec)

	_ = os.Remove(path)
	waitFor(t, rec, "issue_2-b")
}

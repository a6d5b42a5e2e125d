// Package testutil provides shared test helpers for building backends and
// services.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/parkwatch/internal/codec"
	"github.com/starford/parkwatch/internal/issueservice"
	"github.com/starford/parkwatch/internal/kv"
	"github.com/starford/parkwatch/internal/recordstore"
)

// Quiet is a logger that discards everything.
var Quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// TestSQLite creates a temporary SQLite backend that is automatically cleaned up.
func TestSQLite(t *testing.T) *kv.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "parkwatch-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := kv.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLedgerDir creates a temporary FS backend and returns its directory.
func TestLedgerDir(t *testing.T) (string, *kv.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := kv.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Clock returns a time source that advances one second per call, starting at
// start. Consecutive submits therefore get distinct timestamps.
func Clock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := cur
		cur = cur.Add(time.Second)
		return now
	}
}

// TestService builds a service over b with the label codec, a quiet logger
// and a stepping clock.
func TestService(t *testing.T, b kv.Backend, opts ...issueservice.Option) *issueservice.Service {
	t.Helper()
	store, err := recordstore.New(b, recordstore.WithLogger(Quiet))
	if err != nil {
		t.Fatal(err)
	}
	base := []issueservice.Option{
		issueservice.WithLogger(Quiet),
		issueservice.WithClock(Clock(time.Unix(1_700_000_000, 0))),
	}
	return issueservice.NewService(store, codec.NewLabel(""), append(base, opts...)...)
}

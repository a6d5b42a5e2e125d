package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/starford/parkwatch/internal/apperr"
	"github.com/starford/parkwatch/internal/kv"
	"github.com/starford/parkwatch/internal/models"
)

func TestDeriveKey(t *testing.T) {
	if got := DeriveKey("1700000000000-abc123"); got != "issue_1700000000000-abc123" {
		t.Errorf("DeriveKey = %q", got)
	}
	if ValidID("keys") {
		t.Error(`"keys" must never be a valid id`)
	}
	for _, id := range []string{"", "abc", "1-", "-x", "1-ABC", "1-a_b", "../1-a"} {
		if ValidID(id) {
			t.Errorf("ValidID(%q) = true", id)
		}
	}
	if !ValidID("1700000000000-k3j9x0a") {
		t.Error("generated id shape rejected")
	}
}

func TestParseConsistency(t *testing.T) {
	if c, err := ParseConsistency(""); err != nil || c != LastWriterWins {
		t.Errorf("empty = %v, %v", c, err)
	}
	if c, err := ParseConsistency("CAS"); err != nil || c != CompareAndSet {
		t.Errorf("CAS = %v, %v", c, err)
	}
	if _, err := ParseConsistency("paxos"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("unknown mode err = %v", err)
	}
}

func TestNew_CASNeedsSwapper(t *testing.T) {
	fs, err := kv.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = New(fs, WithConsistency(CompareAndSet))
	if !errors.Is(err, apperr.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
	if _, err := New(fs); err != nil {
		t.Fatalf("lww on fs: %v", err)
	}
}

func TestListIDs_AbsentMalformedAndDuplicates(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newStore(t, mem)

	ids, err := s.ListIDs(ctx)
	if err != nil || len(ids) != 0 {
		t.Fatalf("absent index = %v, %v", ids, err)
	}

	_ = mem.Set(ctx, IndexKey, []byte("{not json"))
	ids, err = s.ListIDs(ctx)
	if err != nil || len(ids) != 0 {
		t.Fatalf("malformed index = %v, %v", ids, err)
	}

	_ = mem.Set(ctx, IndexKey, []byte(`["1-a","2-b","1-a"]`))
	ids, err = s.ListIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "1-a" || ids[1] != "2-b" {
		t.Errorf("ids = %v, want [1-a 2-b]", ids)
	}
}

func TestCreateRecord_WritesRecordAndIndex(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newStore(t, mem)

	if err := s.CreateRecord(ctx, issue("100-a", 100)); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	raw, _ := mem.Get(ctx, "issue_100-a")
	want := `{"data":"FHE-e30=","timestamp":100,"category":"Safety","votes":0,"status":"pending"}`
	if string(raw) != want {
		t.Errorf("record = %s\nwant     %s", raw, want)
	}
	idx, _ := mem.Get(ctx, IndexKey)
	if string(idx) != `["100-a"]` {
		t.Errorf("index = %s", idx)
	}
}

func TestCreateRecord_RejectsBadID(t *testing.T) {
	s := newStore(t, kv.NewMemory())
	err := s.CreateRecord(context.Background(), issue("keys", 1))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestCreateRecord_IndexFailureLeavesInvisibleOrphan(t *testing.T) {
	ctx := context.Background()
	b := &faulty{Memory: kv.NewMemory(), failKey: IndexKey}
	s := newStore(t, b)

	err := s.CreateRecord(ctx, issue("1-orphan", 1))
	if !errors.Is(err, apperr.ErrBackendUnavailable) || !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want wrapped backend failure", err)
	}
	if _, err := s.ReadRecord(ctx, "1-orphan"); err != nil {
		t.Errorf("orphan record should be stored: %v", err)
	}
	all, err := s.ReadAll(ctx)
	if err != nil || len(all) != 0 {
		t.Errorf("ReadAll = %v, %v; orphan must be invisible", all, err)
	}
}

func TestCreateRecord_RecordFailureWritesNoIndex(t *testing.T) {
	ctx := context.Background()
	b := &faulty{Memory: kv.NewMemory(), failKey: DeriveKey("1-x")}
	s := newStore(t, b)

	if err := s.CreateRecord(ctx, issue("1-x", 1)); err == nil {
		t.Fatal("expected error")
	}
	idx, _ := b.Memory.Get(ctx, IndexKey)
	if len(idx) != 0 {
		t.Errorf("index written after failed record write: %s", idx)
	}
}

func TestReadAll_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, kv.NewMemory())
	for i, ts := range []int64{200, 100, 300} {
		id := []string{"200-a", "100-b", "300-c"}[i]
		if err := s.CreateRecord(ctx, issue(id, ts)); err != nil {
			t.Fatal(err)
		}
	}
	all, err := s.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i, want := range []int64{300, 200, 100} {
		if all[i].Timestamp != want {
			t.Errorf("all[%d].Timestamp = %d, want %d", i, all[i].Timestamp, want)
		}
	}
}

func TestReadAll_SkipsCorruptAndMissingRecords(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newStore(t, mem)
	for i, id := range []string{"1-a", "2-b", "3-c", "4-d"} {
		if err := s.CreateRecord(ctx, issue(id, int64(i+1))); err != nil {
			t.Fatal(err)
		}
	}
	_ = mem.Set(ctx, DeriveKey("2-b"), []byte("\x00garbage"))
	_ = mem.Set(ctx, IndexKey, []byte(`["1-a","2-b","3-c","4-d","9-gone"]`))

	all, err := s.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for _, is := range all {
		if is.ID == "2-b" {
			t.Error("corrupt record listed")
		}
	}
}

func TestReadRecord_LenientDefaultsAndMalformed(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newStore(t, mem)

	_ = mem.Set(ctx, DeriveKey("1-old"), []byte(`{"data":"FHE-x","timestamp":5,"category":"Other"}`))
	got, err := s.ReadRecord(ctx, "1-old")
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if got.Votes != 0 || got.Status != models.StatusPending || got.ID != "1-old" {
		t.Errorf("defaults not applied: %+v", got)
	}

	for _, raw := range []string{`null`, `[]`, `{"status":"closed"}`, `{"votes":-1}`, `{"votes":"many"}`} {
		_ = mem.Set(ctx, DeriveKey("2-bad"), []byte(raw))
		_, err := s.ReadRecord(ctx, "2-bad")
		if !errors.Is(err, apperr.ErrDecode) || !errors.Is(err, apperr.ErrRecordNotFound) {
			t.Errorf("ReadRecord(%s) err = %v, want ErrRecordNotFound and ErrDecode", raw, err)
		}
	}

	if _, err := s.ReadRecord(ctx, "3-none"); !errors.Is(err, apperr.ErrRecordNotFound) {
		t.Errorf("missing err = %v, want ErrRecordNotFound", err)
	}
}

func TestIndexCorruption_RecoveredByNextCreate(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newStore(t, mem)
	_ = s.CreateRecord(ctx, issue("1-a", 1))
	_ = mem.Set(ctx, IndexKey, []byte("<<corrupt>>"))

	all, err := s.ReadAll(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("ReadAll on corrupt index = %v, %v", all, err)
	}
	if err := s.CreateRecord(ctx, issue("2-b", 2)); err != nil {
		t.Fatalf("CreateRecord after corruption: %v", err)
	}
	ids, err := s.ListIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "2-b" {
		t.Errorf("ids = %v, want fresh index [2-b]", ids)
	}
}

func TestUpdateRecord_AppliesMutation(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, kv.NewMemory())
	_ = s.CreateRecord(ctx, issue("1-a", 42))

	got, err := s.UpdateRecord(ctx, "1-a", func(is models.Issue) models.Issue {
		is.Votes++
		is.Timestamp = 0
		is.ID = "other"
		return is
	})
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if got.Votes != 1 || got.Timestamp != 42 || got.ID != "1-a" {
		t.Errorf("updated = %+v", got)
	}
	stored, _ := s.ReadRecord(ctx, "1-a")
	if stored.Votes != 1 || stored.Timestamp != 42 {
		t.Errorf("stored = %+v", stored)
	}
}

func TestUpdateRecord_MissingDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	b := &faulty{Memory: kv.NewMemory()}
	s := newStore(t, b)

	_, err := s.UpdateRecord(ctx, "1-none", func(is models.Issue) models.Issue { return is })
	if !errors.Is(err, apperr.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
	if n := b.sets.Load(); n != 0 {
		t.Errorf("writes = %d, want 0", n)
	}
}

func TestUpdateRecord_CorruptDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	b := &faulty{Memory: kv.NewMemory()}
	_ = b.Memory.Set(ctx, DeriveKey("1-a"), []byte("garbage"))
	s := newStore(t, b)

	_, err := s.UpdateRecord(ctx, "1-a", func(is models.Issue) models.Issue { is.Votes++; return is })
	if !errors.Is(err, apperr.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
	if n := b.sets.Load(); n != 0 {
		t.Errorf("writes = %d, want 0", n)
	}
	raw, _ := b.Memory.Get(ctx, DeriveKey("1-a"))
	if string(raw) != "garbage" {
		t.Errorf("stored = %q, want untouched", raw)
	}
}

func TestUpdateRecord_KeepsForeignFields(t *testing.T) {
	for _, mode := range []Consistency{LastWriterWins, CompareAndSet} {
		t.Run(mode.String(), func(t *testing.T) {
			ctx := context.Background()
			mem := kv.NewMemory()
			_ = mem.Set(ctx, DeriveKey("1-a"), []byte(
				`{"data":"FHE-x","timestamp":7,"category":"Safety","votes":2,"status":"pending","reporter":"0xabc","tags":["gate"]}`))
			s := newStore(t, mem, WithConsistency(mode))

			if _, err := s.UpdateRecord(ctx, "1-a", func(is models.Issue) models.Issue { is.Votes++; return is }); err != nil {
				t.Fatalf("UpdateRecord: %v", err)
			}
			raw, _ := mem.Get(ctx, DeriveKey("1-a"))
			var stored map[string]any
			if err := json.Unmarshal(raw, &stored); err != nil {
				t.Fatal(err)
			}
			if stored["reporter"] != "0xabc" {
				t.Errorf("reporter lost: %s", raw)
			}
			if tags, _ := stored["tags"].([]any); len(tags) != 1 {
				t.Errorf("tags lost: %s", raw)
			}
			if stored["votes"] != float64(3) || stored["category"] != "Safety" {
				t.Errorf("own fields wrong: %s", raw)
			}
		})
	}
}

func TestUpdateRecord_RejectsInvalidMutation(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, kv.NewMemory())
	_ = s.CreateRecord(ctx, issue("1-a", 1))
	_, err := s.UpdateRecord(ctx, "1-a", func(is models.Issue) models.Issue {
		is.Votes = -3
		return is
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestCAS_DuplicateIDConflicts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, kv.NewMemory(), WithConsistency(CompareAndSet))
	if err := s.CreateRecord(ctx, issue("1-a", 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateRecord(ctx, issue("1-a", 2)); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestCAS_GivesUpAfterRetries(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	seed := newStore(t, mem)
	_ = seed.CreateRecord(ctx, issue("1-a", 1))

	s := newStore(t, losing{mem}, WithConsistency(CompareAndSet), WithMaxRetries(3))
	_, err := s.UpdateRecord(ctx, "1-a", func(is models.Issue) models.Issue { is.Votes++; return is })
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if s.Conflicts() != 4 {
		t.Errorf("conflicts = %d, want 4", s.Conflicts())
	}
}

func TestCAS_RepairsCorruptIndex(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	_ = mem.Set(ctx, IndexKey, []byte("garbage"))
	s := newStore(t, mem, WithConsistency(CompareAndSet))
	if err := s.CreateRecord(ctx, issue("1-a", 1)); err != nil {
		t.Fatal(err)
	}
	idx, _ := mem.Get(ctx, IndexKey)
	if string(idx) != `["1-a"]` {
		t.Errorf("index = %s", idx)
	}
}

package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/backstop/internal/infra/storage"
)

func entry(cid string, status int) storage.JournalEntry {
	return storage.JournalEntry{
		CID:        cid,
		Status:     status,
		Message:    "not found",
		OccurredAt: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
	}
}

func TestJournalRepo_RecordAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewJournalRepo(0)

	if err := repo.Record(ctx, entry("c1", 404)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := repo.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != 404 || got.Message != "not found" {
		t.Errorf("Get = %+v", got)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestJournalRepo_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	repo := NewJournalRepo(3)

	for i := 1; i <= 5; i++ {
		_ = repo.Record(ctx, entry(fmt.Sprintf("c%d", i), 500))
	}

	if _, err := repo.Get(ctx, "c1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("c1 should be evicted, err = %v", err)
	}

	recent, _ := repo.Recent(ctx, 10)
	if len(recent) != 3 {
		t.Fatalf("Recent len = %d, want 3", len(recent))
	}
	want := []string{"c5", "c4", "c3"}
	for i, e := range recent {
		if e.CID != want[i] {
			t.Errorf("Recent[%d] = %s, want %s", i, e.CID, want[i])
		}
	}
}

func TestJournalRepo_RecordReplacesSameCID(t *testing.T) {
	ctx := context.Background()
	repo := NewJournalRepo(3)

	_ = repo.Record(ctx, entry("a", 500))
	_ = repo.Record(ctx, entry("b", 500))
	_ = repo.Record(ctx, entry("a", 404))

	recent, _ := repo.Recent(ctx, 0)
	if len(recent) != 2 || recent[0].CID != "a" || recent[0].Status != 404 {
		t.Errorf("Recent = %+v", recent)
	}
}

func TestJournalRepo_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	repo := NewJournalRepo(10)
	base := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	for i, cid := range []string{"a", "b", "c"} {
		e := entry(cid, 500)
		e.OccurredAt = base.Add(time.Duration(i) * time.Hour)
		_ = repo.Record(ctx, e)
	}

	n, err := repo.DeleteOlderThan(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	if _, err := repo.Get(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get(a) err = %v, want ErrNotFound", err)
	}
	recent, _ := repo.Recent(ctx, 0)
	if len(recent) != 1 || recent[0].CID != "c" {
		t.Errorf("Recent = %+v, want only c", recent)
	}
}

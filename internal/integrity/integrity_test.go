package integrity

import (
	"testing"

	"github.com/revred/Sharc-sub000/internal/pagesource"
	"github.com/revred/Sharc-sub000/sharcerr"
)

func newStore(t *testing.T, pageSize, pages int) *pagesource.Memory {
	t.Helper()
	m := pagesource.NewMemory(pageSize)
	for i := 1; i <= pages; i++ {
		buf := make([]byte, pageSize)
		buf[0] = byte(i)
		if err := m.WritePage(pagesource.Pgno(i), buf); err != nil {
			t.Fatalf("WritePage(%d) error = %v", i, err)
		}
	}
	return m
}

func TestSnapshotCoversEveryPage(t *testing.T) {
	store := newStore(t, 512, 3)
	m, err := Snapshot(store)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(m.Hashes) != 3 {
		t.Fatalf("len(Hashes) = %d, want 3", len(m.Hashes))
	}
	if m.Hashes[1] == m.Hashes[2] {
		t.Error("distinct page contents hashed to the same digest")
	}
}

func TestQuickCheckDetectsMutatedPage(t *testing.T) {
	store := newStore(t, 512, 2)
	baseline, err := Snapshot(store)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	mutated := make([]byte, 512)
	mutated[10] = 0xff
	if err := store.WritePage(2, mutated); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}

	mismatched, err := QuickCheck(store, baseline)
	if err != nil {
		t.Fatalf("QuickCheck() error = %v", err)
	}
	if len(mismatched) != 1 || mismatched[0] != 2 {
		t.Errorf("QuickCheck() = %v, want [2]", mismatched)
	}
}

func TestQuickCheckCleanStoreReportsNothing(t *testing.T) {
	store := newStore(t, 512, 4)
	baseline, err := Snapshot(store)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	mismatched, err := QuickCheck(store, baseline)
	if err != nil {
		t.Fatalf("QuickCheck() error = %v", err)
	}
	if len(mismatched) != 0 {
		t.Errorf("QuickCheck() = %v, want none", mismatched)
	}
}

func TestVerifyFailsOnTruncatedStore(t *testing.T) {
	store := newStore(t, 512, 2)
	_, err := Verify(store, 5)
	if !sharcerr.OfKind(err, sharcerr.KindIntegrityFailure) {
		t.Errorf("expected IntegrityFailure for a truncated store, got %v", err)
	}
}

func TestVerifySucceedsWhenPageCountMatches(t *testing.T) {
	store := newStore(t, 512, 3)
	m, err := Verify(store, 3)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(m.Hashes) != 3 {
		t.Errorf("Verify() manifest has %d hashes, want 3", len(m.Hashes))
	}
}

package pagesource

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryReadWriteRoundTrip(t *testing.T) {
	m := NewMemory(4096)
	page := bytes.Repeat([]byte{0xab}, 4096)
	if err := m.WritePage(1, page); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}
	got, err := m.ReadPage(1)
	if err != nil {
		t.Fatalf("ReadPage() error = %v", err)
	}
	if !bytes.Equal(got, page) {
		t.Error("round trip mismatch")
	}
	if m.PageCount() != 1 {
		t.Errorf("PageCount() = %d, want 1", m.PageCount())
	}
}

func TestMemoryReadPageZeroInvalid(t *testing.T) {
	m := NewMemory(4096)
	if _, err := m.ReadPage(0); err == nil {
		t.Fatal("expected error reading page 0")
	}
}

func TestMemoryReadPastEndInvalid(t *testing.T) {
	m := NewMemory(4096)
	m.WritePage(1, make([]byte, 4096))
	if _, err := m.ReadPage(5); err == nil {
		t.Fatal("expected error reading past end")
	}
}

func TestMemoryTruncate(t *testing.T) {
	m := NewMemory(4096)
	for i := Pgno(1); i <= 5; i++ {
		m.WritePage(i, bytes.Repeat([]byte{byte(i)}, 4096))
	}
	if err := m.Truncate(2); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}
	if m.PageCount() != 2 {
		t.Errorf("PageCount() after truncate = %d, want 2", m.PageCount())
	}
	if err := m.Truncate(4); err != nil {
		t.Fatalf("Truncate(grow) error = %v", err)
	}
	if m.PageCount() != 4 {
		t.Errorf("PageCount() after grow = %d, want 4", m.PageCount())
	}
}

func TestFileReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	f, err := OpenFile(path, 4096, false)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()

	page := bytes.Repeat([]byte{0x42}, 4096)
	if err := f.WritePage(1, page); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}
	got, err := f.ReadPage(1)
	if err != nil {
		t.Fatalf("ReadPage() error = %v", err)
	}
	if !bytes.Equal(got, page) {
		t.Error("round trip mismatch")
	}
}

func TestFileReadOnlyRejectsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	rw, err := OpenFile(path, 4096, false)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	rw.WritePage(1, make([]byte, 4096))
	rw.Close()

	ro, err := OpenFile(path, 4096, true)
	if err != nil {
		t.Fatalf("OpenFile(readOnly) error = %v", err)
	}
	defer ro.Close()
	if err := ro.WritePage(1, make([]byte, 4096)); err == nil {
		t.Fatal("expected write to fail on read-only store")
	}
}

func TestFileShortReadIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	os.WriteFile(path, make([]byte, 100), 0o644)

	f, err := OpenFile(path, 4096, false)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()
	if _, err := f.ReadPage(1); err == nil {
		t.Fatal("expected corrupt-page error on short read")
	}
}

func TestCachedServesFromCacheAndInvalidatesOnWrite(t *testing.T) {
	m := NewMemory(4096)
	m.WritePage(1, bytes.Repeat([]byte{0x01}, 4096))
	c := NewCached(m, 2)

	first, err := c.ReadPage(1)
	if err != nil {
		t.Fatalf("ReadPage() error = %v", err)
	}
	if !bytes.Equal(first, bytes.Repeat([]byte{0x01}, 4096)) {
		t.Fatal("unexpected initial page contents")
	}

	if err := c.WritePage(1, bytes.Repeat([]byte{0x02}, 4096)); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}
	second, err := c.ReadPage(1)
	if err != nil {
		t.Fatalf("ReadPage() after write error = %v", err)
	}
	if !bytes.Equal(second, bytes.Repeat([]byte{0x02}, 4096)) {
		t.Error("cache served stale data after write")
	}
}

func TestCachedEvictsLeastRecentlyUsed(t *testing.T) {
	m := NewMemory(4096)
	for i := Pgno(1); i <= 3; i++ {
		m.WritePage(i, bytes.Repeat([]byte{byte(i)}, 4096))
	}
	c := NewCached(m, 2)

	c.ReadPage(1)
	c.ReadPage(2)
	c.ReadPage(3) // evicts 1, the least recently used

	if _, ok := c.entries[1]; ok {
		t.Error("expected page 1 to have been evicted")
	}
	if _, ok := c.entries[3]; !ok {
		t.Error("expected page 3 to be cached")
	}
}

func TestCachedZeroCapacityPassesThrough(t *testing.T) {
	m := NewMemory(4096)
	m.WritePage(1, make([]byte, 4096))
	c := NewCached(m, 0)
	if _, err := c.ReadPage(1); err != nil {
		t.Fatalf("ReadPage() error = %v", err)
	}
	if len(c.entries) != 0 {
		t.Error("expected no caching with capacity 0")
	}
}

package wal

import (
	"bytes"
	"testing"
)

// memFile is an in-memory stand-in for *os.File satisfying the File interface.
type memFile struct {
	buf []byte
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, nil
	}
	n := copy(p, m.buf[off:])
	return n, nil
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:], p)
	return len(p), nil
}

func (m *memFile) Truncate(size int64) error {
	if size <= int64(len(m.buf)) {
		m.buf = m.buf[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, m.buf)
	m.buf = grown
	return nil
}

func (m *memFile) Sync() error { return nil }

func page(n, pageSize int) []byte {
	buf := make([]byte, pageSize)
	for i := range buf {
		buf[i] = byte(n)
	}
	return buf
}

func TestWriteThenReadRecoversCommittedFrames(t *testing.T) {
	const pageSize = 512
	f := &memFile{}
	w := NewWriter(f, pageSize, 0x1111, 0x2222)

	if err := w.AppendFrame(5, page(5, pageSize)); err != nil {
		t.Fatalf("AppendFrame() error = %v", err)
	}
	if err := w.AppendFrame(9, page(9, pageSize)); err != nil {
		t.Fatalf("AppendFrame() error = %v", err)
	}
	if err := w.AppendCommitFrame(2, page(2, pageSize), 10); err != nil {
		t.Fatalf("AppendCommitFrame() error = %v", err)
	}

	r, err := Read(f, int64(len(f.buf)))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !r.HasCommit() {
		t.Fatal("expected a committed transaction")
	}
	if r.FrameCount() != 3 {
		t.Fatalf("FrameCount() = %d, want 3", r.FrameCount())
	}

	for _, pgno := range []uint32{5, 9, 2} {
		off, ok := r.PageOffset(pgno)
		if !ok {
			t.Fatalf("PageOffset(%d) not found", pgno)
		}
		got := make([]byte, pageSize)
		f.ReadAt(got, off)
		if !bytes.Equal(got, page(int(pgno), pageSize)) {
			t.Errorf("page %d contents mismatch", pgno)
		}
	}
}

func TestUncommittedTailIsInvisible(t *testing.T) {
	const pageSize = 512
	f := &memFile{}
	w := NewWriter(f, pageSize, 7, 8)

	if err := w.AppendCommitFrame(1, page(1, pageSize), 1); err != nil {
		t.Fatalf("AppendCommitFrame() error = %v", err)
	}
	if err := w.AppendFrame(1, page(99, pageSize)); err != nil {
		t.Fatalf("AppendFrame() error = %v", err)
	}

	r, err := Read(f, int64(len(f.buf)))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	off, ok := r.PageOffset(1)
	if !ok {
		t.Fatal("expected page 1 to be visible from the committed frame")
	}
	got := make([]byte, pageSize)
	f.ReadAt(got, off)
	if !bytes.Equal(got, page(1, pageSize)) {
		t.Error("uncommitted frame's content leaked into the visible page map")
	}
}

func TestTamperedFrameStopsReplay(t *testing.T) {
	const pageSize = 512
	f := &memFile{}
	w := NewWriter(f, pageSize, 1, 2)
	if err := w.AppendCommitFrame(1, page(1, pageSize), 1); err != nil {
		t.Fatalf("AppendCommitFrame() error = %v", err)
	}
	if err := w.AppendCommitFrame(2, page(2, pageSize), 2); err != nil {
		t.Fatalf("AppendCommitFrame() error = %v", err)
	}

	// Corrupt the second frame's page bytes without touching its checksum.
	secondFrameData := 32 + (24 + pageSize) + 24 // header + first frame + second frame's header
	f.buf[secondFrameData] ^= 0xff

	r, err := Read(f, int64(len(f.buf)))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if _, ok := r.PageOffset(2); ok {
		t.Error("expected tampered second frame to be excluded from the page map")
	}
	if _, ok := r.PageOffset(1); !ok {
		t.Error("expected the first, untouched commit to remain visible")
	}
}

func TestCheckpointWritesPagesAndResetStartsFreshGeneration(t *testing.T) {
	const pageSize = 512
	walF := &memFile{}
	w := NewWriter(walF, pageSize, 3, 4)
	if err := w.AppendCommitFrame(1, page(1, pageSize), 1); err != nil {
		t.Fatalf("AppendCommitFrame() error = %v", err)
	}
	if err := w.AppendFrame(3, page(3, pageSize)); err != nil {
		t.Fatalf("AppendFrame() error = %v", err)
	}
	if err := w.AppendCommitFrame(3, page(33, pageSize), 3); err != nil {
		t.Fatalf("AppendCommitFrame() error = %v", err)
	}

	r, err := Read(walF, int64(len(walF.buf)))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if r.FrameCount() != 2 {
		t.Fatalf("FrameCount() = %d, want 2 (page 3 superseded within the chain)", r.FrameCount())
	}

	main := &memFile{buf: make([]byte, 3*pageSize)}
	if err := Checkpoint(walF, r, main); err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}

	got3 := make([]byte, pageSize)
	main.ReadAt(got3, 2*pageSize)
	if !bytes.Equal(got3, page(33, pageSize)) {
		t.Error("checkpoint wrote the superseded frame instead of the latest one")
	}

	if err := Reset(walF, pageSize, 55, 66); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if len(walF.buf) != 32 {
		t.Fatalf("wal length after Reset() = %d, want 32", len(walF.buf))
	}
}

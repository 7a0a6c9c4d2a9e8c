package pagesource

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/revred/Sharc-sub000/sharcerr"
)

// Mmapped is a read-only page store backed by a whole-file mmap. Useful for
// preload_to_memory-style opens where the OS page cache should do the work
// instead of a Go-side LRU.
type Mmapped struct {
	mu       sync.RWMutex
	f        *os.File
	data     []byte
	pageSize int
}

// OpenMmapped maps path read-only and exposes it as a page store.
func OpenMmapped(path string, pageSize int) (*Mmapped, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "opening database file for mmap", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "stat for mmap", err)
	}
	size := info.Size()
	if size == 0 {
		f.Close()
		return nil, sharcerr.New(sharcerr.KindInvalidDatabase, "cannot mmap an empty database file")
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "mmap", err)
	}
	return &Mmapped{f: f, data: data, pageSize: pageSize}, nil
}

func (m *Mmapped) PageSize() int { return m.pageSize }

func (m *Mmapped) PageCount() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint32(len(m.data) / m.pageSize)
}

func (m *Mmapped) ReadOnly() bool { return true }

func (m *Mmapped) ReadPage(pgno Pgno) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := uint32(len(m.data) / m.pageSize)
	if err := checkPage(pgno, count); err != nil {
		return nil, err
	}
	off := int(pgno-1) * m.pageSize
	out := make([]byte, m.pageSize)
	copy(out, m.data[off:off+m.pageSize])
	return out, nil
}

func (m *Mmapped) WritePage(pgno Pgno, data []byte) error {
	return ErrReadOnly
}

func (m *Mmapped) Truncate(pages uint32) error {
	return ErrReadOnly
}

func (m *Mmapped) Sync() error { return nil }

func (m *Mmapped) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := unix.Munmap(m.data); err != nil {
		m.f.Close()
		return sharcerr.Wrap(sharcerr.KindIOFailure, fmt.Sprintf("munmap (%d bytes)", len(m.data)), err)
	}
	return m.f.Close()
}

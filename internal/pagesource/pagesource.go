// Package pagesource abstracts the byte-addressable store a database is
// read from and written to: a plain file, an in-memory buffer, or a
// memory-mapped read-only view. Every higher layer (transform, btree,
// freelist, txn) talks to a Store, never to an *os.File directly.
package pagesource

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/revred/Sharc-sub000/sharcerr"
)

// Pgno is a 1-based page number. Page 0 never refers to a real page.
type Pgno uint32

// Store is the minimal interface every page source implements: fixed-size
// page read/write addressed by 1-based page number, plus lifecycle.
type Store interface {
	// ReadPage returns a copy of the page's on-disk bytes. Reading past
	// PageCount is an invalid-argument error.
	ReadPage(pgno Pgno) ([]byte, error)

	// WritePage writes a full page's worth of bytes. data must be exactly
	// PageSize() bytes. Implementations that are read-only return an error.
	WritePage(pgno Pgno, data []byte) error

	// Truncate sets the page count, extending with zeroed pages or
	// discarding trailing ones.
	Truncate(pages uint32) error

	// PageSize returns the fixed page size this store was opened with.
	PageSize() int

	// PageCount returns the number of pages currently backing the store.
	PageCount() uint32

	// Sync flushes any buffered writes to stable storage.
	Sync() error

	// Close releases any underlying resources.
	Close() error

	// ReadOnly reports whether WritePage always fails.
	ReadOnly() bool
}

// ErrReadOnly is returned by WritePage on a read-only store.
var ErrReadOnly = sharcerr.New(sharcerr.KindInvalidArgument, "page source is read-only")

func checkPage(pgno Pgno, count uint32) error {
	if pgno == 0 {
		return sharcerr.New(sharcerr.KindInvalidArgument, "page number 0 is invalid")
	}
	if count != 0 && uint32(pgno) > count {
		return sharcerr.New(sharcerr.KindInvalidArgument,
			fmt.Sprintf("page %d exceeds page count %d", pgno, count))
	}
	return nil
}

// Memory is an in-memory page store, used for :memory: databases and as the
// backing of the shadow copy-on-write overlay.
type Memory struct {
	mu       sync.RWMutex
	pageSize int
	pages    [][]byte
}

// NewMemory returns an empty in-memory store with the given page size.
func NewMemory(pageSize int) *Memory {
	return &Memory{pageSize: pageSize}
}

func (m *Memory) PageSize() int { return m.pageSize }

func (m *Memory) PageCount() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint32(len(m.pages))
}

func (m *Memory) ReadOnly() bool { return false }

func (m *Memory) ReadPage(pgno Pgno) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := checkPage(pgno, uint32(len(m.pages))); err != nil {
		return nil, err
	}
	out := make([]byte, m.pageSize)
	copy(out, m.pages[pgno-1])
	return out, nil
}

func (m *Memory) WritePage(pgno Pgno, data []byte) error {
	if len(data) != m.pageSize {
		return sharcerr.New(sharcerr.KindInvalidArgument, "page write length mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if pgno == 0 {
		return sharcerr.New(sharcerr.KindInvalidArgument, "page number 0 is invalid")
	}
	for uint32(len(m.pages)) < uint32(pgno) {
		m.pages = append(m.pages, make([]byte, m.pageSize))
	}
	buf := make([]byte, m.pageSize)
	copy(buf, data)
	m.pages[pgno-1] = buf
	return nil
}

func (m *Memory) Truncate(pages uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := uint32(len(m.pages))
	if pages < cur {
		m.pages = m.pages[:pages]
		return nil
	}
	for cur < pages {
		m.pages = append(m.pages, make([]byte, m.pageSize))
		cur++
	}
	return nil
}

func (m *Memory) Sync() error  { return nil }
func (m *Memory) Close() error { return nil }

// File is a page store backed by an *os.File, using positioned reads and
// writes (no implicit seek state, so concurrent cursors never race on the
// file offset).
type File struct {
	mu       sync.RWMutex
	f        *os.File
	pageSize int
	readOnly bool
}

// OpenFile opens path as a page store. If the file is empty and readOnly is
// false, the store starts with zero pages; the caller is expected to write
// the first page (carrying the 100-byte database header) itself.
func OpenFile(path string, pageSize int, readOnly bool) (*File, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "opening database file", err)
	}
	return &File{f: f, pageSize: pageSize, readOnly: readOnly}, nil
}

// Raw exposes the underlying *os.File, for callers that need the plain
// io.ReaderAt/io.WriterAt surface directly (a WAL checkpoint writes pages
// at byte offsets that don't line up with ReadPage/WritePage's page-number
// addressing).
func (s *File) Raw() *os.File { return s.f }

func (s *File) PageSize() int { return s.pageSize }

func (s *File) PageCount() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, err := s.f.Stat()
	if err != nil {
		return 0
	}
	return uint32(info.Size() / int64(s.pageSize))
}

func (s *File) ReadOnly() bool { return s.readOnly }

func (s *File) ReadPage(pgno Pgno) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count uint32
	if info, err := s.f.Stat(); err == nil {
		count = uint32(info.Size() / int64(s.pageSize))
	}
	if err := checkPage(pgno, count); err != nil {
		return nil, err
	}
	buf := make([]byte, s.pageSize)
	off := int64(pgno-1) * int64(s.pageSize)
	n, err := s.f.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, fmt.Sprintf("reading page %d", pgno), err)
	}
	if n < s.pageSize {
		return nil, sharcerr.New(sharcerr.KindCorruptPage,
			fmt.Sprintf("short read of page %d: got %d of %d bytes", pgno, n, s.pageSize))
	}
	return buf, nil
}

func (s *File) WritePage(pgno Pgno, data []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if len(data) != s.pageSize {
		return sharcerr.New(sharcerr.KindInvalidArgument, "page write length mismatch")
	}
	if pgno == 0 {
		return sharcerr.New(sharcerr.KindInvalidArgument, "page number 0 is invalid")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	off := int64(pgno-1) * int64(s.pageSize)
	if _, err := s.f.WriteAt(data, off); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, fmt.Sprintf("writing page %d", pgno), err)
	}
	return nil
}

func (s *File) Truncate(pages uint32) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Truncate(int64(pages) * int64(s.pageSize)); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "truncating database file", err)
	}
	return nil
}

func (s *File) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readOnly {
		return nil
	}
	if err := s.f.Sync(); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "fsync", err)
	}
	return nil
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

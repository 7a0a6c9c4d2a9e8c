package pagesource

import (
	"io"
	"os"
	"sync"

	"github.com/revred/Sharc-sub000/internal/format"
	"github.com/revred/Sharc-sub000/internal/transform"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// EncryptedFile is a page store backed by an encrypted database file: a
// 128-byte envelope at offset 0, followed by one variable-size record per
// page (nonce || ciphertext || tag for the AES-256-GCM transform). Unlike
// File, page addressing uses the transform's StoredSize rather than the
// plain page size, since every record is larger than its logical page.
type EncryptedFile struct {
	mu       sync.RWMutex
	f        *os.File
	xform    transform.PageTransform
	pageSize int
	recSize  int64
	readOnly bool
}

// OpenEncryptedFile wraps f (already positioned past a validated envelope)
// as a page store of pageSize-byte logical pages, each encoded to disk
// through xform.
func OpenEncryptedFile(f *os.File, xform transform.PageTransform, pageSize int, readOnly bool) *EncryptedFile {
	return &EncryptedFile{
		f:        f,
		xform:    xform,
		pageSize: pageSize,
		recSize:  int64(xform.StoredSize(pageSize)),
		readOnly: readOnly,
	}
}

func (s *EncryptedFile) PageSize() int { return s.pageSize }

func (s *EncryptedFile) PageCount() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, err := s.f.Stat()
	if err != nil {
		return 0
	}
	body := info.Size() - format.EnvelopeSize
	if body <= 0 {
		return 0
	}
	return uint32(body / s.recSize)
}

func (s *EncryptedFile) ReadOnly() bool { return s.readOnly }

func (s *EncryptedFile) offsetFor(pgno Pgno) int64 {
	return int64(format.EnvelopeSize) + int64(pgno-1)*s.recSize
}

func (s *EncryptedFile) ReadPage(pgno Pgno) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := checkPage(pgno, s.pageCountLocked()); err != nil {
		return nil, err
	}

	stored := make([]byte, s.recSize)
	n, err := s.f.ReadAt(stored, s.offsetFor(pgno))
	if err != nil && err != io.EOF {
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "reading encrypted page record", err)
	}
	if int64(n) < s.recSize {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "short read of encrypted page record")
	}

	plain, err := s.xform.Decode(uint32(pgno), stored)
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindIntegrityFailure, "decoding encrypted page", err)
	}
	return plain, nil
}

func (s *EncryptedFile) WritePage(pgno Pgno, data []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if len(data) != s.pageSize {
		return sharcerr.New(sharcerr.KindInvalidArgument, "page write length mismatch")
	}
	if pgno == 0 {
		return sharcerr.New(sharcerr.KindInvalidArgument, "page number 0 is invalid")
	}

	stored, err := s.xform.Encode(uint32(pgno), data)
	if err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "encoding encrypted page", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.WriteAt(stored, s.offsetFor(pgno)); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "writing encrypted page record", err)
	}
	return nil
}

func (s *EncryptedFile) Truncate(pages uint32) error {
	if s.readOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	size := int64(format.EnvelopeSize) + int64(pages)*s.recSize
	if err := s.f.Truncate(size); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "truncating encrypted database file", err)
	}
	return nil
}

func (s *EncryptedFile) Sync() error {
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

func (s *EncryptedFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// pageCountLocked assumes mu is already held.
func (s *EncryptedFile) pageCountLocked() uint32 {
	info, err := s.f.Stat()
	if err != nil {
		return 0
	}
	body := info.Size() - format.EnvelopeSize
	if body <= 0 {
		return 0
	}
	return uint32(body / s.recSize)
}

// Package shadow implements the copy-on-write overlay a single write
// transaction mutates: reads fall through to the underlying snapshot,
// writes land in an in-memory overlay invisible to every other reader
// until the transaction commits.
package shadow

import (
	"github.com/revred/Sharc-sub000/internal/format"
	"github.com/revred/Sharc-sub000/internal/pagesource"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// Source is the underlying read-only view a Shadow overlays: the
// pre-transaction snapshot (a pagesource.Store, or a WAL-merged view of one).
type Source interface {
	ReadPage(pgno pagesource.Pgno) ([]byte, error)
	PageSize() int
	PageCount() uint32
}

// Shadow is a copy-on-write page overlay plus the in-progress database
// header, both of which become durable only on commit.
type Shadow struct {
	base    Source
	header  *format.DBHeader
	overlay map[pagesource.Pgno][]byte
	dirty   map[pagesource.Pgno]bool
}

// New opens a shadow over base, starting from header (a copy the caller
// should not mutate directly afterward).
func New(base Source, header *format.DBHeader) *Shadow {
	h := *header
	return &Shadow{
		base:    base,
		header:  &h,
		overlay: make(map[pagesource.Pgno][]byte),
		dirty:   make(map[pagesource.Pgno]bool),
	}
}

func (s *Shadow) PageSize() int { return s.base.PageSize() }

func (s *Shadow) PageCount() uint32 { return s.header.DatabaseSize }

// ReadPage returns the overlay's copy of pgno if dirty, else falls through
// to the base snapshot. Page 1's first 100 bytes always reflect the
// in-progress header.
func (s *Shadow) ReadPage(pgno pagesource.Pgno) ([]byte, error) {
	if buf, ok := s.overlay[pgno]; ok {
		out := make([]byte, len(buf))
		copy(out, buf)
		if pgno == 1 {
			copy(out[:format.DBHeaderSize], s.header.Write())
		}
		return out, nil
	}
	if uint32(pgno) > s.header.DatabaseSize {
		return nil, sharcerr.New(sharcerr.KindInvalidArgument, "page number beyond shadowed database size")
	}
	data, err := s.base.ReadPage(pgno)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	if pgno == 1 {
		copy(out[:format.DBHeaderSize], s.header.Write())
	}
	return out, nil
}

// WritePage stores data in the overlay, marking pgno dirty.
func (s *Shadow) WritePage(pgno pagesource.Pgno, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.overlay[pgno] = buf
	s.dirty[pgno] = true
	return nil
}

// DirtyPages returns the page numbers written during this transaction, in
// ascending order, suitable for handing to a commit strategy.
func (s *Shadow) DirtyPages() []pagesource.Pgno {
	out := make([]pagesource.Pgno, 0, len(s.dirty))
	for pgno := range s.dirty {
		out = append(out, pgno)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Header returns the in-progress, shadowed database header.
func (s *Shadow) Header() *format.DBHeader { return s.header }

// --- freelist.Header adapter ---

func (s *Shadow) FreelistTrunk() uint32     { return s.header.FreelistTrunk }
func (s *Shadow) SetFreelistTrunk(v uint32) { s.header.FreelistTrunk = v }
func (s *Shadow) FreelistCount() uint32     { return s.header.FreelistCount }
func (s *Shadow) SetFreelistCount(v uint32) { s.header.FreelistCount = v }
func (s *Shadow) SetPageCount(v uint32)     { s.header.DatabaseSize = v }
func (s *Shadow) UsableSize() int           { return s.header.UsableSize() }

// Pages adapts a Shadow's Pgno-typed ReadPage/WritePage to the plain-uint32
// signatures the freelist and cell packages expect (freelist.PageStore,
// cell.PageReader), since pagesource.Pgno is a distinct
// named type and Go does not satisfy interfaces across named-type boundaries.
type Pages struct {
	*Shadow
}

func (p Pages) ReadPage(pgno uint32) ([]byte, error) {
	return p.Shadow.ReadPage(pagesource.Pgno(pgno))
}

func (p Pages) WritePage(pgno uint32, data []byte) error {
	return p.Shadow.WritePage(pagesource.Pgno(pgno), data)
}

func (p Pages) PageSize() int { return p.Shadow.PageSize() }

func (s *Shadow) Reset(header *format.DBHeader) {
	h := *header
	s.header = &h
	s.overlay = make(map[pagesource.Pgno][]byte)
	s.dirty = make(map[pagesource.Pgno]bool)
}

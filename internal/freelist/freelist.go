// Package freelist implements the trunk/leaf freelist page allocator
// described in spec.md §4.10: a chain of trunk pages, each holding an
// array of free leaf page numbers, consulted before the database is
// extended to satisfy a new page allocation.
package freelist

import (
	"encoding/binary"

	"github.com/revred/Sharc-sub000/sharcerr"
)

// Header is the subset of shadowed database-header state the freelist
// manager reads and mutates. Implemented by the shadow page source so that
// every freelist change lands in the in-progress transaction only.
type Header interface {
	FreelistTrunk() uint32
	SetFreelistTrunk(uint32)
	FreelistCount() uint32
	SetFreelistCount(uint32)
	PageCount() uint32
	SetPageCount(uint32)
}

// PageStore is the page read/write surface the freelist manager needs.
type PageStore interface {
	ReadPage(pgno uint32) ([]byte, error)
	WritePage(pgno uint32, data []byte) error
	PageSize() int
	UsableSize() int
}

// Manager allocates and frees pages against a shadowed header and page
// store. Every mutation it makes is a shadow write and only becomes
// durable at commit.
type Manager struct {
	header Header
	store  PageStore
}

// New returns a freelist manager bound to header and store.
func New(header Header, store PageStore) *Manager {
	return &Manager{header: header, store: store}
}

const trunkHeaderSize = 8 // next-trunk pointer (4) + leaf count (4)

func maxLeavesPerTrunk(usableSize int) int {
	return (usableSize - trunkHeaderSize) / 4
}

// Allocate returns a page number ready to be overwritten by the caller. If
// the freelist is non-empty it is satisfied from the trunk chain;
// otherwise the logical database is extended by one page.
func (m *Manager) Allocate() (uint32, error) {
	if m.header.FreelistCount() == 0 {
		pg := m.header.PageCount() + 1
		m.header.SetPageCount(pg)
		return pg, nil
	}

	trunkPgno := m.header.FreelistTrunk()
	trunk, err := m.store.ReadPage(trunkPgno)
	if err != nil {
		return 0, err
	}
	if len(trunk) < trunkHeaderSize {
		return 0, sharcerr.New(sharcerr.KindCorruptPage, "freelist trunk page too small")
	}

	next := binary.BigEndian.Uint32(trunk[0:4])
	leafCount := binary.BigEndian.Uint32(trunk[4:8])

	if leafCount > 0 {
		offset := trunkHeaderSize + int(leafCount-1)*4
		if offset+4 > len(trunk) {
			return 0, sharcerr.New(sharcerr.KindCorruptPage, "freelist trunk leaf array truncated")
		}
		pg := binary.BigEndian.Uint32(trunk[offset : offset+4])
		leafCount--
		binary.BigEndian.PutUint32(trunk[4:8], leafCount)
		if err := m.store.WritePage(trunkPgno, trunk); err != nil {
			return 0, err
		}
		m.header.SetFreelistCount(m.header.FreelistCount() - 1)
		return pg, nil
	}

	// This trunk has no leaves of its own: it becomes the allocated page,
	// and the next trunk in the chain takes over.
	m.header.SetFreelistTrunk(next)
	m.header.SetFreelistCount(m.header.FreelistCount() - 1)
	return trunkPgno, nil
}

// Free returns pgno to the freelist: pushed onto the current trunk's leaf
// array, or promoted to a new trunk if that array is full.
func (m *Manager) Free(pgno uint32) error {
	usableSize := m.store.UsableSize()
	trunkPgno := m.header.FreelistTrunk()

	if trunkPgno == 0 {
		buf := make([]byte, m.store.PageSize())
		if err := m.store.WritePage(pgno, buf); err != nil {
			return err
		}
		m.header.SetFreelistTrunk(pgno)
		m.header.SetFreelistCount(m.header.FreelistCount() + 1)
		return nil
	}

	trunk, err := m.store.ReadPage(trunkPgno)
	if err != nil {
		return err
	}
	if len(trunk) < trunkHeaderSize {
		return sharcerr.New(sharcerr.KindCorruptPage, "freelist trunk page too small")
	}
	leafCount := binary.BigEndian.Uint32(trunk[4:8])

	if int(leafCount) < maxLeavesPerTrunk(usableSize) {
		offset := trunkHeaderSize + int(leafCount)*4
		binary.BigEndian.PutUint32(trunk[offset:offset+4], pgno)
		leafCount++
		binary.BigEndian.PutUint32(trunk[4:8], leafCount)
		if err := m.store.WritePage(trunkPgno, trunk); err != nil {
			return err
		}
		m.header.SetFreelistCount(m.header.FreelistCount() + 1)
		return nil
	}

	// Trunk is full: the freed page becomes the new head of the chain.
	buf := make([]byte, m.store.PageSize())
	binary.BigEndian.PutUint32(buf[0:4], trunkPgno)
	if err := m.store.WritePage(pgno, buf); err != nil {
		return err
	}
	m.header.SetFreelistTrunk(pgno)
	m.header.SetFreelistCount(m.header.FreelistCount() + 1)
	return nil
}

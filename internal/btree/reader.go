// Package btree walks and mutates the on-disk B-tree: a reading cursor
// that produces (rowid, payload) pairs in key order, and a mutator that
// inserts, updates, and deletes rows with splitting, merging, and
// overflow-chain management.
package btree

import (
	"github.com/revred/Sharc-sub000/internal/cell"
	"github.com/revred/Sharc-sub000/internal/format"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// MaxDepth bounds the cursor's path stack: no database on disk today
// plausibly exceeds this B-tree depth (spec.md §4.8).
const MaxDepth = 20

// PageStore is the read surface a Cursor needs: whole-page reads plus the
// usable-size convention for cell-framing math.
type PageStore interface {
	ReadPage(pgno uint32) ([]byte, error)
	UsableSize() int
}

type pathEntry struct {
	page  uint32
	index int
}

// Cursor walks a single table B-tree (rowid-keyed). It is not safe for
// concurrent use, though the underlying store may be shared by readers.
type Cursor struct {
	store PageStore
	root  uint32

	path  []pathEntry
	valid bool

	curPage   uint32
	curHeader *format.PageHeader
	curData   []byte
	curIndex  int
	curCell   *cell.Info
}

// OpenAt creates a cursor over the table B-tree rooted at root. The cursor
// starts positioned before the first entry; call MoveFirst or Seek.
func OpenAt(store PageStore, root uint32) *Cursor {
	return &Cursor{store: store, root: root, path: make([]pathEntry, 0, MaxDepth)}
}

func (c *Cursor) Valid() bool { return c.valid }

// Rowid returns the current entry's key. Valid only when Valid() is true.
func (c *Cursor) Rowid() int64 {
	if c.curCell == nil {
		return 0
	}
	return c.curCell.Key
}

// Payload returns the current entry's full record bytes, reassembling any
// overflow chain.
func (c *Cursor) Payload() ([]byte, error) {
	if c.curCell == nil {
		return nil, sharcerr.New(sharcerr.KindInvalidArgument, "cursor has no current entry")
	}
	if !c.curCell.HasOverflow() {
		return c.curCell.Payload, nil
	}
	reader := pageReaderAdapter{c.store}
	return cell.ReassemblePayload(c.curCell.Payload, c.curCell.OverflowPage, int(c.curCell.PayloadSize), c.store.UsableSize(), reader)
}

type pageReaderAdapter struct{ store PageStore }

func (a pageReaderAdapter) ReadPage(pgno uint32) ([]byte, error) { return a.store.ReadPage(pgno) }

func (c *Cursor) loadPage(pgno uint32) ([]byte, *format.PageHeader, error) {
	data, err := c.store.ReadPage(pgno)
	if err != nil {
		return nil, nil, err
	}
	h, err := format.ParsePageHeader(data, pgno)
	if err != nil {
		return nil, nil, err
	}
	return data, h, nil
}

func (c *Cursor) parseCellAt(data []byte, h *format.PageHeader, idx int) (*cell.Info, error) {
	off, err := h.CellPointer(data, idx)
	if err != nil {
		return nil, err
	}
	if int(off) >= len(data) {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "cell pointer out of bounds")
	}
	body := data[off:]
	usable := c.store.UsableSize()
	if h.IsLeaf() {
		return cell.ParseTableLeaf(body, usable)
	}
	return cell.ParseTableInterior(body)
}

func (c *Cursor) setCurrent(pgno uint32, data []byte, h *format.PageHeader, idx int) error {
	info, err := c.parseCellAt(data, h, idx)
	if err != nil {
		c.valid = false
		return err
	}
	c.curPage = pgno
	c.curData = data
	c.curHeader = h
	c.curIndex = idx
	c.curCell = info
	c.valid = true
	return nil
}

// MoveFirst descends to the leftmost leaf's first cell.
func (c *Cursor) MoveFirst() error {
	c.path = c.path[:0]
	pgno := c.root
	for {
		data, h, err := c.loadPage(pgno)
		if err != nil {
			c.valid = false
			return err
		}
		if h.IsLeaf() {
			if h.NumCells == 0 {
				c.valid = false
				return nil
			}
			return c.setCurrent(pgno, data, h, 0)
		}
		if len(c.path) >= MaxDepth {
			return sharcerr.New(sharcerr.KindCorruptPage, "b-tree depth exceeded")
		}
		c.path = append(c.path, pathEntry{page: pgno, index: 0})
		if h.NumCells == 0 {
			pgno = h.RightChild
			continue
		}
		info, err := c.parseCellAt(data, h, 0)
		if err != nil {
			return err
		}
		pgno = info.ChildPage
	}
}

// MoveLast descends to the rightmost leaf's last cell.
func (c *Cursor) MoveLast() error {
	c.path = c.path[:0]
	pgno := c.root
	for {
		data, h, err := c.loadPage(pgno)
		if err != nil {
			c.valid = false
			return err
		}
		if h.IsLeaf() {
			if h.NumCells == 0 {
				c.valid = false
				return nil
			}
			return c.setCurrent(pgno, data, h, int(h.NumCells)-1)
		}
		if len(c.path) >= MaxDepth {
			return sharcerr.New(sharcerr.KindCorruptPage, "b-tree depth exceeded")
		}
		c.path = append(c.path, pathEntry{page: pgno, index: int(h.NumCells)})
		pgno = h.RightChild
	}
}

// MoveNext advances to the next entry in rowid order. Once the tree is
// exhausted, Valid() becomes false and the cursor returns no error.
func (c *Cursor) MoveNext() error {
	if !c.valid {
		return sharcerr.New(sharcerr.KindInvalidArgument, "cursor not positioned")
	}
	if c.curIndex+1 < int(c.curHeader.NumCells) {
		return c.setCurrent(c.curPage, c.curData, c.curHeader, c.curIndex+1)
	}

	for len(c.path) > 0 {
		top := c.path[len(c.path)-1]
		c.path = c.path[:len(c.path)-1]

		data, h, err := c.loadPage(top.page)
		if err != nil {
			c.valid = false
			return err
		}
		nextIndex := top.index + 1
		var childPgno uint32
		if nextIndex >= int(h.NumCells) {
			if nextIndex > int(h.NumCells) {
				continue
			}
			childPgno = h.RightChild
		} else {
			info, err := c.parseCellAt(data, h, nextIndex)
			if err != nil {
				return err
			}
			childPgno = info.ChildPage
		}
		c.path = append(c.path, pathEntry{page: top.page, index: nextIndex})
		return c.descendLeftmostFrom(childPgno)
	}

	c.valid = false
	return nil
}

func (c *Cursor) descendLeftmostFrom(pgno uint32) error {
	for {
		data, h, err := c.loadPage(pgno)
		if err != nil {
			c.valid = false
			return err
		}
		if h.IsLeaf() {
			if h.NumCells == 0 {
				c.valid = false
				return nil
			}
			return c.setCurrent(pgno, data, h, 0)
		}
		if len(c.path) >= MaxDepth {
			return sharcerr.New(sharcerr.KindCorruptPage, "b-tree depth exceeded")
		}
		c.path = append(c.path, pathEntry{page: pgno, index: 0})
		if h.NumCells == 0 {
			pgno = h.RightChild
			continue
		}
		info, err := c.parseCellAt(data, h, 0)
		if err != nil {
			return err
		}
		pgno = info.ChildPage
	}
}

// Seek positions the cursor at rowid, or at the first entry greater than
// rowid if no exact match exists. Returns whether an exact match was found.
func (c *Cursor) Seek(rowid int64) (bool, error) {
	c.path = c.path[:0]
	pgno := c.root
	for {
		data, h, err := c.loadPage(pgno)
		if err != nil {
			c.valid = false
			return false, err
		}

		idx, exact, err := c.binarySearch(data, h, rowid)
		if err != nil {
			return false, err
		}

		if h.IsLeaf() {
			if idx >= int(h.NumCells) {
				if h.NumCells == 0 {
					c.valid = false
					return false, nil
				}
				// Every key here is smaller: the next greater entry, if
				// any, is the first one past this leaf's last cell.
				if err := c.setCurrent(pgno, data, h, int(h.NumCells)-1); err != nil {
					return false, err
				}
				return false, c.MoveNext()
			}
			if err := c.setCurrent(pgno, data, h, idx); err != nil {
				return false, err
			}
			return exact, nil
		}

		if exact {
			// An interior key is a strict upper bound for its child, so a
			// row with exactly that rowid lives in the next child over.
			idx++
		}
		if len(c.path) >= MaxDepth {
			return false, sharcerr.New(sharcerr.KindCorruptPage, "b-tree depth exceeded")
		}
		c.path = append(c.path, pathEntry{page: pgno, index: idx})

		if idx >= int(h.NumCells) {
			pgno = h.RightChild
			continue
		}
		info, err := c.parseCellAt(data, h, idx)
		if err != nil {
			return false, err
		}
		pgno = info.ChildPage
	}
}

// binarySearch finds the first cell whose key is >= rowid, reporting
// whether its key equals rowid (Seek steps one cell further on an exact
// interior match, since interior keys are strict upper bounds).
func (c *Cursor) binarySearch(data []byte, h *format.PageHeader, rowid int64) (int, bool, error) {
	lo, hi := 0, int(h.NumCells)
	for lo < hi {
		mid := (lo + hi) / 2
		info, err := c.parseCellAt(data, h, mid)
		if err != nil {
			return 0, false, err
		}
		if info.Key == rowid {
			return mid, true, nil
		}
		if info.Key < rowid {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, false, nil
}

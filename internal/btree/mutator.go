package btree

import (
	"sort"

	"github.com/revred/Sharc-sub000/internal/cell"
	"github.com/revred/Sharc-sub000/internal/format"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// Store is the read/write page surface a Mutator needs.
type Store interface {
	ReadPage(pgno uint32) ([]byte, error)
	WritePage(pgno uint32, data []byte) error
	PageSize() int
	UsableSize() int
}

// Freelist supplies and reclaims page numbers for splits, merges, and
// overflow chains (internal/freelist.Manager satisfies this).
type Freelist interface {
	Allocate() (uint32, error)
	Free(pgno uint32) error
}

// Mutator inserts, updates, and deletes rows in table B-trees, splitting
// and merging pages as needed. It operates on rowid-keyed table B-trees
// only; index B-trees are read-only in this implementation.
type Mutator struct {
	store Store
	free  Freelist
}

// NewMutator builds a Mutator over store, allocating and freeing pages
// through free.
func NewMutator(store Store, free Freelist) *Mutator {
	return &Mutator{store: store, free: free}
}

type rawCell struct {
	key   int64
	data  []byte
	child uint32 // interior cells only
}

type cellAllocAdapter struct{ m *Mutator }

func (a cellAllocAdapter) AllocatePage() (uint32, error)           { return a.m.free.Allocate() }
func (a cellAllocAdapter) WritePage(pgno uint32, data []byte) error { return a.m.store.WritePage(pgno, data) }
func (a cellAllocAdapter) PageSize() int                          { return a.m.store.PageSize() }

func headerSizeForType(t byte) int {
	if t == format.PageInteriorTable || t == format.PageInteriorIndex {
		return format.InteriorHeaderSize
	}
	return format.LeafHeaderSize
}

func headerOffsetFor(pgno uint32) int {
	if pgno == 1 {
		return format.DBHeaderSize
	}
	return 0
}

// Insert adds a new row. Fails if root already has a row with this rowid.
func (m *Mutator) Insert(root uint32, rowid int64, payload []byte) error {
	return m.putRow(root, rowid, payload, false)
}

// Update rewrites an existing row. Fails if root has no row with this rowid.
func (m *Mutator) Update(root uint32, rowid int64, payload []byte) error {
	return m.putRow(root, rowid, payload, true)
}

func (m *Mutator) putRow(root uint32, rowid int64, payload []byte, replace bool) error {
	path, leafPgno, err := m.descend(root, rowid)
	if err != nil {
		return err
	}
	data, err := m.store.ReadPage(leafPgno)
	if err != nil {
		return err
	}
	h, err := format.ParsePageHeader(data, leafPgno)
	if err != nil {
		return err
	}
	cells, err := m.extractCells(data, h)
	if err != nil {
		return err
	}

	newCellBytes, err := cell.BuildTableLeaf(rowid, payload, m.store.UsableSize(), cellAllocAdapter{m})
	if err != nil {
		return err
	}

	idx := sort.Search(len(cells), func(i int) bool { return cells[i].key >= rowid })
	switch {
	case idx < len(cells) && cells[idx].key == rowid:
		if !replace {
			return sharcerr.New(sharcerr.KindInvalidArgument, "rowid already exists")
		}
		cells[idx] = rawCell{key: rowid, data: newCellBytes}
	default:
		if replace {
			return sharcerr.New(sharcerr.KindInvalidArgument, "rowid not found")
		}
		next := make([]rawCell, 0, len(cells)+1)
		next = append(next, cells[:idx]...)
		next = append(next, rawCell{key: rowid, data: newCellBytes})
		next = append(next, cells[idx:]...)
		cells = next
	}

	return m.commitLevel(leafPgno, root, true, cells, 0, path)
}

// Delete removes a row, rebalancing the page it leaves behind: borrowing a
// cell from a sibling first, merging with a sibling if neither has one to
// spare, and cascading that merge upward for as many levels as it leaves
// underfull in turn.
func (m *Mutator) Delete(root uint32, rowid int64) error {
	path, leafPgno, err := m.descend(root, rowid)
	if err != nil {
		return err
	}
	data, err := m.store.ReadPage(leafPgno)
	if err != nil {
		return err
	}
	h, err := format.ParsePageHeader(data, leafPgno)
	if err != nil {
		return err
	}
	cells, err := m.extractCells(data, h)
	if err != nil {
		return err
	}

	idx := sort.Search(len(cells), func(i int) bool { return cells[i].key >= rowid })
	if idx >= len(cells) || cells[idx].key != rowid {
		return sharcerr.New(sharcerr.KindInvalidArgument, "rowid not found")
	}
	cells = append(cells[:idx:idx], cells[idx+1:]...)

	return m.rebalanceAfterDelete(leafPgno, root, true, cells, 0, path)
}

// commitLevel writes cells (plus rightChild, for interior levels) to pgno,
// splitting and propagating a new separator upward when the page overflows.
func (m *Mutator) commitLevel(pgno, root uint32, isLeaf bool, cells []rawCell, rightChild uint32, path []pathEntry) error {
	for {
		pageType := byte(format.PageLeafTable)
		if !isLeaf {
			pageType = format.PageInteriorTable
		}
		off := headerOffsetFor(pgno)
		headerSize := headerSizeForType(pageType)

		if m.fitsOnPage(cells, off, headerSize) {
			return m.writeNode(pgno, pageType, cells, rightChild, off, headerSize)
		}

		left, right, leftRC, rightRC, promotedKey, err := m.splitCells(cells, rightChild, isLeaf)
		if err != nil {
			return err
		}

		if pgno == root {
			leftPgno, err := m.free.Allocate()
			if err != nil {
				return err
			}
			rightPgno, err := m.free.Allocate()
			if err != nil {
				return err
			}
			if err := m.writeNode(leftPgno, pageType, left, leftRC, 0, headerSize); err != nil {
				return err
			}
			if err := m.writeNode(rightPgno, pageType, right, rightRC, 0, headerSize); err != nil {
				return err
			}
			rootCell := rawCell{key: promotedKey, child: leftPgno, data: cell.BuildTableInterior(leftPgno, promotedKey)}
			return m.writeNode(root, format.PageInteriorTable, []rawCell{rootCell}, rightPgno, headerOffsetFor(root), format.InteriorHeaderSize)
		}

		rightPgno, err := m.free.Allocate()
		if err != nil {
			return err
		}
		if err := m.writeNode(pgno, pageType, left, leftRC, off, headerSize); err != nil {
			return err
		}
		if err := m.writeNode(rightPgno, pageType, right, rightRC, 0, headerSize); err != nil {
			return err
		}

		parentEntry := path[len(path)-1]
		parentPgno := parentEntry.page
		usedIndex := parentEntry.index

		parentData, err := m.store.ReadPage(parentPgno)
		if err != nil {
			return err
		}
		parentHeader, err := format.ParsePageHeader(parentData, parentPgno)
		if err != nil {
			return err
		}
		parentCells, err := m.extractCells(parentData, parentHeader)
		if err != nil {
			return err
		}
		newParentRightChild := parentHeader.RightChild

		newParentCells := make([]rawCell, 0, len(parentCells)+1)
		newParentCells = append(newParentCells, parentCells[:usedIndex]...)
		newParentCells = append(newParentCells, rawCell{key: promotedKey, child: pgno, data: cell.BuildTableInterior(pgno, promotedKey)})
		if usedIndex < len(parentCells) {
			retargeted := parentCells[usedIndex]
			retargeted.child = rightPgno
			retargeted.data = cell.BuildTableInterior(rightPgno, retargeted.key)
			newParentCells = append(newParentCells, retargeted)
			newParentCells = append(newParentCells, parentCells[usedIndex+1:]...)
		} else {
			newParentRightChild = rightPgno
		}

		pgno = parentPgno
		cells = newParentCells
		rightChild = newParentRightChild
		isLeaf = false
		path = path[:len(path)-1]
	}
}

// node is an in-memory view of one page's cells plus, for interior pages,
// its trailing rightChild pointer (cells alone don't carry it).
type node struct {
	pgno       uint32
	cells      []rawCell
	rightChild uint32
}

func (m *Mutator) readNode(pgno uint32) (node, error) {
	data, err := m.store.ReadPage(pgno)
	if err != nil {
		return node{}, err
	}
	h, err := format.ParsePageHeader(data, pgno)
	if err != nil {
		return node{}, err
	}
	cells, err := m.extractCells(data, h)
	if err != nil {
		return node{}, err
	}
	return node{pgno: pgno, cells: cells, rightChild: h.RightChild}, nil
}

// childAt returns the child pointer at position idx among a level's
// len(cells)+1 children: cells[idx].child for idx < len(cells), rightChild
// for idx == len(cells) (the rightmost subtree, past every separator key).
func childAt(cells []rawCell, rightChild uint32, idx int) uint32 {
	if idx < len(cells) {
		return cells[idx].child
	}
	return rightChild
}

func pageTypeFor(isLeaf bool) byte {
	if isLeaf {
		return format.PageLeafTable
	}
	return format.PageInteriorTable
}

// underfull reports whether cells occupy less than a quarter of the usable
// area a page of this type at pgno offers, the bar spec.md §4.9 sets for
// considering a page for sibling rebalancing or a merge.
func (m *Mutator) underfull(pgno uint32, cells []rawCell, isLeaf bool) bool {
	off := headerOffsetFor(pgno)
	headerSize := headerSizeForType(pageTypeFor(isLeaf))
	used := headerSize
	for _, c := range cells {
		used += len(c.data) + 2
	}
	avail := m.store.UsableSize() - off
	return used*4 < avail
}

func (m *Mutator) fits(pgno uint32, cells []rawCell, isLeaf bool) bool {
	return m.fitsOnPage(cells, headerOffsetFor(pgno), headerSizeForType(pageTypeFor(isLeaf)))
}

func (m *Mutator) writeLevelNode(n node, isLeaf bool) error {
	pageType := pageTypeFor(isLeaf)
	return m.writeNode(n.pgno, pageType, n.cells, n.rightChild, headerOffsetFor(n.pgno), headerSizeForType(pageType))
}

// borrowFromLeft rotates left's last entry into self (its right sibling)
// through oldSeparator, the key currently sitting between them in the
// parent, and returns the key that replaces it there.
func borrowFromLeft(left, self node, isLeaf bool, oldSeparator int64) (newLeft, newSelf node, newSeparator int64) {
	last := left.cells[len(left.cells)-1]
	if isLeaf {
		newLeft = node{pgno: left.pgno, cells: left.cells[:len(left.cells)-1]}
		newSelf = node{pgno: self.pgno, cells: append([]rawCell{last}, self.cells...)}
		newSeparator = last.key
		return
	}
	migrated := rawCell{key: oldSeparator, child: left.rightChild, data: cell.BuildTableInterior(left.rightChild, oldSeparator)}
	newLeft = node{pgno: left.pgno, cells: left.cells[:len(left.cells)-1], rightChild: last.child}
	newSelf = node{pgno: self.pgno, cells: append([]rawCell{migrated}, self.cells...), rightChild: self.rightChild}
	newSeparator = last.key
	return
}

// borrowFromRight is the mirror of borrowFromLeft: self's left sibling
// donates no longer applies here, self gains right's first entry instead.
func borrowFromRight(self, right node, isLeaf bool, oldSeparator int64) (newSelf, newRight node, newSeparator int64) {
	first := right.cells[0]
	if isLeaf {
		newSelf = node{pgno: self.pgno, cells: append(append([]rawCell{}, self.cells...), first)}
		newRight = node{pgno: right.pgno, cells: right.cells[1:]}
		newSeparator = newRight.cells[0].key
		return
	}
	migrated := rawCell{key: oldSeparator, child: self.rightChild, data: cell.BuildTableInterior(self.rightChild, oldSeparator)}
	newSelf = node{pgno: self.pgno, cells: append(append([]rawCell{}, self.cells...), migrated), rightChild: first.child}
	newRight = node{pgno: right.pgno, cells: right.cells[1:], rightChild: right.rightChild}
	newSeparator = first.key
	return
}

// mergeNodes combines left and right, adjacent siblings separated by
// parentSeparator, into one node written back at left's page number; the
// caller frees right's page once the merged node is durable.
func mergeNodes(left, right node, isLeaf bool, parentSeparator int64) node {
	if isLeaf {
		merged := make([]rawCell, 0, len(left.cells)+len(right.cells))
		merged = append(merged, left.cells...)
		merged = append(merged, right.cells...)
		return node{pgno: left.pgno, cells: merged}
	}
	merged := make([]rawCell, 0, len(left.cells)+1+len(right.cells))
	merged = append(merged, left.cells...)
	merged = append(merged, rawCell{key: parentSeparator, child: left.rightChild, data: cell.BuildTableInterior(left.rightChild, parentSeparator)})
	merged = append(merged, right.cells...)
	return node{pgno: left.pgno, cells: merged, rightChild: right.rightChild}
}

// removePointer removes the child pointer at removedIndex from a level's
// cells/rightChild pair once that child's contents have been merged into
// the child at removedIndex-1: the separator between the two is dropped
// and the surviving child takes over removedIndex's upper bound (its
// cell's key, or the rightChild slot).
func removePointer(cells []rawCell, rightChild uint32, removedIndex int) ([]rawCell, uint32) {
	if removedIndex < len(cells) {
		survivor := cells[removedIndex-1].child
		kept := cells[removedIndex]
		kept.child = survivor
		kept.data = cell.BuildTableInterior(survivor, kept.key)
		out := append(cells[:removedIndex-1:removedIndex-1], kept)
		return append(out, cells[removedIndex+1:]...), rightChild
	}
	if len(cells) == 0 {
		return cells, 0
	}
	last := cells[len(cells)-1]
	return cells[:len(cells)-1], last.child
}

// afterChildRemoved processes pgno once one of its children has been fully
// merged away: collapsing the root by a level if it is left with a single
// child (or empty), otherwise continuing the same borrow-or-merge rebalance
// pgno itself may now need.
func (m *Mutator) afterChildRemoved(pgno, root uint32, cells []rawCell, rightChild uint32, path []pathEntry) error {
	if pgno == root {
		if len(cells) == 0 {
			if rightChild == 0 {
				// The whole tree is now empty; leave root as an empty leaf.
				return m.writeNode(root, format.PageLeafTable, nil, 0, headerOffsetFor(root), format.LeafHeaderSize)
			}
			return m.collapseRoot(root, rightChild)
		}
		return m.writeNode(root, format.PageInteriorTable, cells, rightChild, headerOffsetFor(root), format.InteriorHeaderSize)
	}
	return m.rebalanceAfterDelete(pgno, root, false, cells, rightChild, path)
}

// rebalanceAfterDelete writes pgno's cells back, first borrowing a cell
// from a sibling or merging with one if pgno (a non-root page) has dropped
// below a quarter full, cascading the merge case up through afterChildRemoved
// when removing pgno's pointer leaves its own parent underfull in turn.
func (m *Mutator) rebalanceAfterDelete(pgno, root uint32, isLeaf bool, cells []rawCell, rightChild uint32, path []pathEntry) error {
	if pgno == root || len(path) == 0 || !m.underfull(pgno, cells, isLeaf) {
		return m.commitLevel(pgno, root, isLeaf, cells, rightChild, path)
	}

	parentEntry := path[len(path)-1]
	parentPgno := parentEntry.page
	usedIndex := parentEntry.index
	parentPath := path[:len(path)-1]

	parentData, err := m.store.ReadPage(parentPgno)
	if err != nil {
		return err
	}
	parentHeader, err := format.ParsePageHeader(parentData, parentPgno)
	if err != nil {
		return err
	}
	parentCells, err := m.extractCells(parentData, parentHeader)
	if err != nil {
		return err
	}
	parentRightChild := parentHeader.RightChild
	self := node{pgno: pgno, cells: cells, rightChild: rightChild}

	if usedIndex > 0 {
		leftPgno := childAt(parentCells, parentRightChild, usedIndex-1)
		left, err := m.readNode(leftPgno)
		if err != nil {
			return err
		}
		if len(left.cells) > 1 && !m.underfull(leftPgno, left.cells[:len(left.cells)-1], isLeaf) {
			separator := parentCells[usedIndex-1].key
			newLeft, newSelf, newSeparator := borrowFromLeft(left, self, isLeaf, separator)
			if err := m.writeLevelNode(newLeft, isLeaf); err != nil {
				return err
			}
			if err := m.writeLevelNode(newSelf, isLeaf); err != nil {
				return err
			}
			parentCells[usedIndex-1] = rawCell{key: newSeparator, child: parentCells[usedIndex-1].child,
				data: cell.BuildTableInterior(parentCells[usedIndex-1].child, newSeparator)}
			return m.commitLevel(parentPgno, root, false, parentCells, parentRightChild, parentPath)
		}
	}
	if usedIndex < len(parentCells) {
		rightPgno := childAt(parentCells, parentRightChild, usedIndex+1)
		right, err := m.readNode(rightPgno)
		if err != nil {
			return err
		}
		if len(right.cells) > 1 && !m.underfull(rightPgno, right.cells[1:], isLeaf) {
			separator := parentCells[usedIndex].key
			newSelf, newRight, newSeparator := borrowFromRight(self, right, isLeaf, separator)
			if err := m.writeLevelNode(newSelf, isLeaf); err != nil {
				return err
			}
			if err := m.writeLevelNode(newRight, isLeaf); err != nil {
				return err
			}
			parentCells[usedIndex] = rawCell{key: newSeparator, child: pgno, data: cell.BuildTableInterior(pgno, newSeparator)}
			return m.commitLevel(parentPgno, root, false, parentCells, parentRightChild, parentPath)
		}
	}

	// Neither sibling has a cell to spare: merge with whichever neighbor
	// exists, preferring the left so the page number that survives is the
	// lower-indexed one.
	if usedIndex > 0 {
		leftPgno := childAt(parentCells, parentRightChild, usedIndex-1)
		left, err := m.readNode(leftPgno)
		if err != nil {
			return err
		}
		separator := parentCells[usedIndex-1].key
		merged := mergeNodes(left, self, isLeaf, separator)
		if m.fits(leftPgno, merged.cells, isLeaf) {
			if err := m.writeLevelNode(merged, isLeaf); err != nil {
				return err
			}
			if err := m.free.Free(pgno); err != nil {
				return err
			}
			newParentCells, newParentRightChild := removePointer(parentCells, parentRightChild, usedIndex)
			return m.afterChildRemoved(parentPgno, root, newParentCells, newParentRightChild, parentPath)
		}
	}
	if usedIndex < len(parentCells) {
		rightPgno := childAt(parentCells, parentRightChild, usedIndex+1)
		right, err := m.readNode(rightPgno)
		if err != nil {
			return err
		}
		separator := parentCells[usedIndex].key
		merged := mergeNodes(self, right, isLeaf, separator)
		if m.fits(pgno, merged.cells, isLeaf) {
			if err := m.writeLevelNode(merged, isLeaf); err != nil {
				return err
			}
			if err := m.free.Free(rightPgno); err != nil {
				return err
			}
			newParentCells, newParentRightChild := removePointer(parentCells, parentRightChild, usedIndex+1)
			return m.afterChildRemoved(parentPgno, root, newParentCells, newParentRightChild, parentPath)
		}
	}

	// Every sibling and merge candidate is already too full to help (or
	// this page has none, being the root's only child): leave pgno
	// underfull rather than force a layout that doesn't fit. Every other
	// invariant still holds.
	return m.commitLevel(pgno, root, isLeaf, cells, rightChild, path)
}

// collapseRoot replaces the root's content with onlyChild's content and
// frees onlyChild, shrinking the tree by one level.
func (m *Mutator) collapseRoot(root, onlyChild uint32) error {
	data, err := m.store.ReadPage(onlyChild)
	if err != nil {
		return err
	}
	h, err := format.ParsePageHeader(data, onlyChild)
	if err != nil {
		return err
	}
	cells, err := m.extractCells(data, h)
	if err != nil {
		return err
	}
	if err := m.writeNode(root, h.Type, cells, h.RightChild, headerOffsetFor(root), headerSizeForType(h.Type)); err != nil {
		return err
	}
	return m.free.Free(onlyChild)
}

// splitCells divides cells (plus rightChild, for interior levels) into a
// left and right half by cumulative byte size, returning the key to
// promote to the parent. For leaf levels the promoted key is a copy of
// the right half's smallest key; for interior levels it is consumed from
// the cell array and becomes a pure separator.
func (m *Mutator) splitCells(cells []rawCell, rightChild uint32, isLeaf bool) (left, right []rawCell, leftRC, rightRC uint32, promotedKey int64, err error) {
	if len(cells) == 0 {
		return nil, nil, 0, 0, 0, sharcerr.New(sharcerr.KindCorruptPage, "cannot split an empty page")
	}

	mid := splitIndexBySize(cells)

	if isLeaf {
		if mid < 1 {
			mid = 1
		}
		if mid > len(cells)-1 {
			mid = len(cells) - 1
		}
		left = cells[:mid]
		right = cells[mid:]
		promotedKey = right[0].key
		return left, right, 0, 0, promotedKey, nil
	}

	if mid < 0 {
		mid = 0
	}
	if mid > len(cells)-1 {
		mid = len(cells) - 1
	}
	left = cells[:mid]
	leftRC = cells[mid].child
	promotedKey = cells[mid].key
	right = cells[mid+1:]
	rightRC = rightChild
	return left, right, leftRC, rightRC, promotedKey, nil
}

func splitIndexBySize(cells []rawCell) int {
	total := 0
	for _, c := range cells {
		total += len(c.data)
	}
	half := total / 2
	running := 0
	for i, c := range cells {
		running += len(c.data)
		if running >= half {
			return i + 1
		}
	}
	return len(cells) / 2
}

func (m *Mutator) fitsOnPage(cells []rawCell, off, headerSize int) bool {
	total := 0
	for _, c := range cells {
		total += len(c.data) + 2
	}
	avail := m.store.UsableSize() - off - headerSize
	return total <= avail
}

// writeNode lays out cells (in the given order) into pgno, packing cell
// bodies from the end of the usable area backward and the pointer array
// immediately after the page header.
func (m *Mutator) writeNode(pgno uint32, pageType byte, cells []rawCell, rightChild uint32, off, headerSize int) error {
	buf := make([]byte, m.store.PageSize())
	h := &format.PageHeader{
		Type:         pageType,
		HeaderOffset: off,
		HeaderSize:   headerSize,
		NumCells:     uint16(len(cells)),
	}
	if headerSize == format.InteriorHeaderSize {
		h.RightChild = rightChild
	}

	cursor := m.store.UsableSize()
	for i, c := range cells {
		cursor -= len(c.data)
		if cursor < off+headerSize+2*len(cells) {
			return sharcerr.New(sharcerr.KindCorruptPage, "cell layout exceeds page capacity")
		}
		copy(buf[cursor:], c.data)
		h.SetCellPointer(buf, i, uint16(cursor))
	}
	h.CellContentStart = uint16(cursor)
	h.Write(buf)
	return m.store.WritePage(pgno, buf)
}

func (m *Mutator) extractCells(data []byte, h *format.PageHeader) ([]rawCell, error) {
	cells := make([]rawCell, 0, h.NumCells)
	usable := m.store.UsableSize()
	for i := 0; i < int(h.NumCells); i++ {
		off, err := h.CellPointer(data, i)
		if err != nil {
			return nil, err
		}
		if int(off) >= len(data) {
			return nil, sharcerr.New(sharcerr.KindCorruptPage, "cell pointer out of bounds")
		}

		var info *cell.Info
		if h.IsLeaf() {
			info, err = cell.ParseTableLeaf(data[off:], usable)
		} else {
			info, err = cell.ParseTableInterior(data[off:])
		}
		if err != nil {
			return nil, err
		}

		raw := make([]byte, info.CellSize)
		copy(raw, data[off:int(off)+int(info.CellSize)])
		cells = append(cells, rawCell{key: info.Key, data: raw, child: info.ChildPage})
	}
	return cells, nil
}

// descend walks from root to the leaf that would contain key, recording
// the (page, child index) path taken through interior pages.
func (m *Mutator) descend(root uint32, key int64) ([]pathEntry, uint32, error) {
	path := make([]pathEntry, 0, MaxDepth)
	pgno := root
	for {
		data, err := m.store.ReadPage(pgno)
		if err != nil {
			return nil, 0, err
		}
		h, err := format.ParsePageHeader(data, pgno)
		if err != nil {
			return nil, 0, err
		}
		if h.IsLeaf() {
			return path, pgno, nil
		}

		idx, err := m.findChildIndex(data, h, key)
		if err != nil {
			return nil, 0, err
		}
		if len(path) >= MaxDepth {
			return nil, 0, sharcerr.New(sharcerr.KindCorruptPage, "b-tree depth exceeded")
		}
		path = append(path, pathEntry{page: pgno, index: idx})

		if idx >= int(h.NumCells) {
			pgno = h.RightChild
			continue
		}
		off, err := h.CellPointer(data, idx)
		if err != nil {
			return nil, 0, err
		}
		info, err := cell.ParseTableInterior(data[off:])
		if err != nil {
			return nil, 0, err
		}
		pgno = info.ChildPage
	}
}

// findChildIndex returns the index of the first interior cell whose key
// exceeds key (NumCells for the right child): a separator is a strict
// upper bound for its child, so an equal key belongs to the next child.
func (m *Mutator) findChildIndex(data []byte, h *format.PageHeader, key int64) (int, error) {
	lo, hi := 0, int(h.NumCells)
	for lo < hi {
		mid := (lo + hi) / 2
		off, err := h.CellPointer(data, mid)
		if err != nil {
			return 0, err
		}
		info, err := cell.ParseTableInterior(data[off:])
		if err != nil {
			return 0, err
		}
		if info.Key <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

package format

import (
	"encoding/binary"
	"fmt"
)

// B-tree page type bytes (spec.md §3).
const (
	PageInteriorIndex = 0x02
	PageInteriorTable = 0x05
	PageLeafIndex     = 0x0a
	PageLeafTable     = 0x0d
)

// Page header field offsets, relative to the start of the page header
// (which itself is offset by DBHeaderSize on page 1).
const (
	phOffType       = 0
	phOffFreeblock  = 1
	phOffNumCells   = 3
	phOffCellStart  = 5
	phOffFragmented = 7
	phOffRightChild = 8

	LeafHeaderSize     = 8
	InteriorHeaderSize = 12
)

// PageHeader is the parsed 8- or 12-byte B-tree page header.
type PageHeader struct {
	Type             byte
	FirstFreeblock   uint16
	NumCells         uint16
	CellContentStart uint16
	FragmentedBytes  byte
	RightChild       uint32 // interior pages only

	HeaderOffset int // 100 on page 1, else 0
	HeaderSize   int // 8 or 12
}

func (h *PageHeader) IsLeaf() bool     { return h.Type == PageLeafTable || h.Type == PageLeafIndex }
func (h *PageHeader) IsTable() bool    { return h.Type == PageLeafTable || h.Type == PageInteriorTable }
func (h *PageHeader) IsIndex() bool    { return !h.IsTable() }
func (h *PageHeader) CellPtrOffset() int { return h.HeaderOffset + h.HeaderSize }

// ParsePageHeader parses a B-tree page header from a full page buffer.
// pageNum must be the 1-based page number (page 1 carries the 100-byte
// database header first).
func ParsePageHeader(data []byte, pageNum uint32) (*PageHeader, error) {
	off := 0
	if pageNum == 1 {
		off = DBHeaderSize
	}
	if len(data) < off+LeafHeaderSize {
		return nil, fmt.Errorf("format: page %d too small for header", pageNum)
	}

	h := &PageHeader{
		Type:             data[off+phOffType],
		FirstFreeblock:   binary.BigEndian.Uint16(data[off+phOffFreeblock:]),
		NumCells:         binary.BigEndian.Uint16(data[off+phOffNumCells:]),
		CellContentStart: binary.BigEndian.Uint16(data[off+phOffCellStart:]),
		FragmentedBytes:  data[off+phOffFragmented],
		HeaderOffset:     off,
	}

	switch h.Type {
	case PageInteriorIndex, PageInteriorTable:
		if len(data) < off+InteriorHeaderSize {
			return nil, fmt.Errorf("format: interior page %d too small for header", pageNum)
		}
		h.RightChild = binary.BigEndian.Uint32(data[off+phOffRightChild:])
		h.HeaderSize = InteriorHeaderSize
	case PageLeafIndex, PageLeafTable:
		h.HeaderSize = LeafHeaderSize
	default:
		return nil, fmt.Errorf("format: invalid page type 0x%02x on page %d", h.Type, pageNum)
	}

	return h, nil
}

// Write serializes the header fields back into data at the appropriate
// offset for pageNum. data must be at least large enough to hold the header.
func (h *PageHeader) Write(data []byte) {
	off := h.HeaderOffset
	data[off+phOffType] = h.Type
	binary.BigEndian.PutUint16(data[off+phOffFreeblock:], h.FirstFreeblock)
	binary.BigEndian.PutUint16(data[off+phOffNumCells:], h.NumCells)
	binary.BigEndian.PutUint16(data[off+phOffCellStart:], h.CellContentStart)
	data[off+phOffFragmented] = h.FragmentedBytes
	if h.HeaderSize == InteriorHeaderSize {
		binary.BigEndian.PutUint32(data[off+phOffRightChild:], h.RightChild)
	}
}

// CellPointer reads the i-th cell pointer (0-based) from the cell pointer
// array immediately following the page header.
func (h *PageHeader) CellPointer(data []byte, i int) (uint16, error) {
	if i < 0 || i >= int(h.NumCells) {
		return 0, fmt.Errorf("format: cell index %d out of range (0..%d)", i, h.NumCells-1)
	}
	o := h.CellPtrOffset() + i*2
	if o+2 > len(data) {
		return 0, fmt.Errorf("format: cell pointer %d out of bounds", i)
	}
	return binary.BigEndian.Uint16(data[o:]), nil
}

// SetCellPointer writes the i-th cell pointer.
func (h *PageHeader) SetCellPointer(data []byte, i int, offset uint16) {
	o := h.CellPtrOffset() + i*2
	binary.BigEndian.PutUint16(data[o:], offset)
}

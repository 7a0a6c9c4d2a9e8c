// Package cell builds and parses the four B-tree cell shapes (table
// leaf/interior, index leaf/interior), including the inline/overflow
// payload split and overflow-page chain assembly.
package cell

import (
	"encoding/binary"

	"github.com/revred/Sharc-sub000/internal/format"
	"github.com/revred/Sharc-sub000/internal/varint"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// Info is the parsed form of one cell, independent of which of the four
// shapes produced it.
type Info struct {
	Key          int64  // rowid for table cells, payload size for index cells
	Payload      []byte // locally stored payload bytes (may need overflow reassembly)
	PayloadSize  uint32 // total logical payload size
	LocalPayload uint16 // bytes of Payload stored on this page
	CellSize     uint16 // bytes this cell occupies on the page
	OverflowPage uint32 // first overflow page, 0 if none
	ChildPage    uint32 // interior cells only
}

// HasOverflow reports whether the payload spills past this page.
func (c *Info) HasOverflow() bool { return c.OverflowPage != 0 }

// maxLocal and minLocal follow SQLite's table-leaf inline-payload bounds
// (spec.md §3 "cell framing"): usableSize-35 max and the 32/255 fraction
// min; index cells use these same two bounds in this implementation.
func maxLocal(usableSize int) int { return usableSize - 35 }
func minLocal(usableSize int) int { return (usableSize-12)*32/255 - 23 }

func localPayloadSize(payloadSize, usableSize int) int {
	max := maxLocal(usableSize)
	if payloadSize <= max {
		return payloadSize
	}
	min := minLocal(usableSize)
	surplus := min + (payloadSize-min)%(usableSize-4)
	if surplus <= max {
		return surplus
	}
	return min
}

// ParseTableLeaf parses a table leaf cell: varint(payload_size),
// varint(rowid), payload[, overflow_page].
func ParseTableLeaf(data []byte, usableSize int) (*Info, error) {
	if len(data) == 0 {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "empty table leaf cell")
	}
	payloadSize, n := varint.DecodeUvarint(data)
	if n == 0 {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "truncated payload size")
	}
	offset := n
	rowid, n := varint.DecodeUvarint(data[offset:])
	if n == 0 {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "truncated rowid")
	}
	offset += n

	return finishPayload(data, offset, int64(rowid), uint32(payloadSize), usableSize)
}

// ParseTableInterior parses a table interior cell: 4-byte child page,
// varint(rowid).
func ParseTableInterior(data []byte) (*Info, error) {
	if len(data) < 4 {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "table interior cell too small")
	}
	child := binary.BigEndian.Uint32(data[0:4])
	rowid, n := varint.DecodeUvarint(data[4:])
	if n == 0 {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "truncated rowid")
	}
	return &Info{ChildPage: child, Key: int64(rowid), CellSize: uint16(4 + n)}, nil
}

// ParseIndexLeaf parses an index leaf cell: varint(payload_size), payload[, overflow_page].
func ParseIndexLeaf(data []byte, usableSize int) (*Info, error) {
	if len(data) == 0 {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "empty index leaf cell")
	}
	payloadSize, n := varint.DecodeUvarint(data)
	if n == 0 {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "truncated payload size")
	}
	return finishPayload(data, n, int64(payloadSize), uint32(payloadSize), usableSize)
}

// ParseIndexInterior parses an index interior cell: 4-byte child page,
// varint(payload_size), payload[, overflow_page].
func ParseIndexInterior(data []byte, usableSize int) (*Info, error) {
	if len(data) < 4 {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "index interior cell too small")
	}
	child := binary.BigEndian.Uint32(data[0:4])
	payloadSize, n := varint.DecodeUvarint(data[4:])
	if n == 0 {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "truncated payload size")
	}
	info, err := finishPayload(data[4:], n, int64(payloadSize), uint32(payloadSize), usableSize)
	if err != nil {
		return nil, err
	}
	info.ChildPage = child
	info.CellSize += 4
	return info, nil
}

func finishPayload(data []byte, offset int, key int64, payloadSize uint32, usableSize int) (*Info, error) {
	info := &Info{Key: key, PayloadSize: payloadSize}
	local := localPayloadSize(int(payloadSize), usableSize)
	info.LocalPayload = uint16(local)

	if offset+local > len(data) {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "cell payload truncated")
	}
	info.Payload = data[offset : offset+local]
	offset += local

	if int(payloadSize) > local {
		if offset+4 > len(data) {
			return nil, sharcerr.New(sharcerr.KindCorruptPage, "overflow page number truncated")
		}
		info.OverflowPage = binary.BigEndian.Uint32(data[offset:])
		offset += 4
	}

	info.CellSize = uint16(offset)
	return info, nil
}

// PageAllocator lets the cell builder obtain and populate overflow pages
// without knowing how page allocation is implemented (freelist vs. new page).
type PageAllocator interface {
	AllocatePage() (uint32, error)
	WritePage(pgno uint32, data []byte) error
	PageSize() int
}

// PageReader resolves overflow page chains back into contiguous payload.
type PageReader interface {
	ReadPage(pgno uint32) ([]byte, error)
}

// writeOverflowChain stores the tail of payload (the part not stored
// locally) across a chain of overflow pages. Each overflow page is laid
// out as a 4-byte next-page pointer followed by payload bytes filling the
// rest of the usable page size.
func writeOverflowChain(a PageAllocator, tail []byte, usableSize int) (uint32, error) {
	if len(tail) == 0 {
		return 0, nil
	}
	perPage := usableSize - 4
	if perPage <= 0 {
		return 0, sharcerr.New(sharcerr.KindInvalidArgument, "usable size too small for overflow pages")
	}

	n := len(tail)
	numPages := (n + perPage - 1) / perPage

	pgnos := make([]uint32, numPages)
	for i := range pgnos {
		pg, err := a.AllocatePage()
		if err != nil {
			return 0, err
		}
		pgnos[i] = pg
	}

	for i, pgno := range pgnos {
		start := i * perPage
		end := start + perPage
		if end > n {
			end = n
		}
		buf := make([]byte, a.PageSize())
		var next uint32
		if i+1 < len(pgnos) {
			next = pgnos[i+1]
		}
		binary.BigEndian.PutUint32(buf[0:4], next)
		copy(buf[4:], tail[start:end])
		if err := a.WritePage(pgno, buf); err != nil {
			return 0, err
		}
	}
	return pgnos[0], nil
}

// ReassemblePayload follows an overflow chain to recover the full payload
// given the locally stored prefix.
func ReassemblePayload(local []byte, overflowPage uint32, payloadSize int, usableSize int, r PageReader) ([]byte, error) {
	out := make([]byte, 0, payloadSize)
	out = append(out, local...)

	seen := make(map[uint32]bool)
	pgno := overflowPage
	for pgno != 0 && len(out) < payloadSize {
		if seen[pgno] {
			return nil, sharcerr.New(sharcerr.KindCorruptPage, "overflow chain cycle detected")
		}
		seen[pgno] = true

		page, err := r.ReadPage(pgno)
		if err != nil {
			return nil, err
		}
		if len(page) < 4 {
			return nil, sharcerr.New(sharcerr.KindCorruptPage, "overflow page too small")
		}
		next := binary.BigEndian.Uint32(page[0:4])
		remaining := payloadSize - len(out)
		chunk := page[4:]
		if remaining < len(chunk) {
			chunk = chunk[:remaining]
		}
		out = append(out, chunk...)
		pgno = next
	}

	if len(out) != payloadSize {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "overflow chain ended before payload was complete")
	}
	return out, nil
}

func splitPayload(payload []byte, usableSize int) (local, tail []byte) {
	n := localPayloadSize(len(payload), usableSize)
	if n >= len(payload) {
		return payload, nil
	}
	return payload[:n], payload[n:]
}

// BuildTableLeaf encodes a table leaf cell, writing any overflow tail
// through a (the payload allocator). usableSize is the page's usable size.
func BuildTableLeaf(rowid int64, payload []byte, usableSize int, a PageAllocator) ([]byte, error) {
	local, tail := splitPayload(payload, usableSize)

	var overflow uint32
	var err error
	if len(tail) > 0 {
		overflow, err = writeOverflowChain(a, tail, usableSize)
		if err != nil {
			return nil, err
		}
	}

	buf := make([]byte, 0, varint.MaxLen*2+len(local)+4)
	var tmp [varint.MaxLen]byte
	n := varint.PutUvarint(tmp[:], uint64(len(payload)))
	buf = append(buf, tmp[:n]...)
	n = varint.PutUvarint(tmp[:], uint64(rowid))
	buf = append(buf, tmp[:n]...)
	buf = append(buf, local...)
	if overflow != 0 {
		var ov [4]byte
		binary.BigEndian.PutUint32(ov[:], overflow)
		buf = append(buf, ov[:]...)
	}
	return buf, nil
}

// BuildTableInterior encodes a table interior cell.
func BuildTableInterior(childPage uint32, rowid int64) []byte {
	buf := make([]byte, 4, 4+varint.MaxLen)
	binary.BigEndian.PutUint32(buf, childPage)
	var tmp [varint.MaxLen]byte
	n := varint.PutUvarint(tmp[:], uint64(rowid))
	return append(buf, tmp[:n]...)
}

// BuildIndexLeaf encodes an index leaf cell, spilling to overflow as needed.
func BuildIndexLeaf(payload []byte, usableSize int, a PageAllocator) ([]byte, error) {
	local, tail := splitPayload(payload, usableSize)

	var overflow uint32
	var err error
	if len(tail) > 0 {
		overflow, err = writeOverflowChain(a, tail, usableSize)
		if err != nil {
			return nil, err
		}
	}

	buf := make([]byte, 0, varint.MaxLen+len(local)+4)
	var tmp [varint.MaxLen]byte
	n := varint.PutUvarint(tmp[:], uint64(len(payload)))
	buf = append(buf, tmp[:n]...)
	buf = append(buf, local...)
	if overflow != 0 {
		var ov [4]byte
		binary.BigEndian.PutUint32(ov[:], overflow)
		buf = append(buf, ov[:]...)
	}
	return buf, nil
}

// BuildIndexInterior encodes an index interior cell, spilling to overflow
// as needed.
func BuildIndexInterior(childPage uint32, payload []byte, usableSize int, a PageAllocator) ([]byte, error) {
	body, err := BuildIndexLeaf(payload, usableSize, a)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint32(buf, childPage)
	return append(buf, body...), nil
}

// UsableSizeFromPage resolves the page's usable size for cell-framing math
// from the database header's reserved-space field.
func UsableSizeFromPage(h *format.DBHeader) int { return h.UsableSize() }

package format

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Database header byte offsets (spec.md §3, all fields big-endian).
const (
	DBHeaderSize = 100

	offMagic             = 0
	offPageSize          = 16
	offFileFormatWrite   = 18
	offFileFormatRead    = 19
	offReservedSpace     = 20
	offMaxPayloadFrac    = 21
	offMinPayloadFrac    = 22
	offLeafPayloadFrac   = 23
	offFileChangeCounter = 24
	offDatabaseSize      = 28
	offFreelistTrunk     = 32
	offFreelistCount     = 36
	offSchemaCookie      = 40
	offSchemaFormat      = 44
	offDefaultCacheSize  = 48
	offLargestRootPage   = 52
	offTextEncoding      = 56
	offUserVersion       = 60
	offIncrementalVacuum = 64
	offApplicationID     = 68
	offReserved          = 72
	offVersionValidFor   = 92
	offSQLiteVersion     = 96

	reservedFieldLen = 20
)

// MagicHeaderString is the standard SQLite3 magic header.
const MagicHeaderString = "SQLite format 3\x00"

const (
	MinPageSize = 512
	MaxPageSize = 65536
)

// Text encodings, as stored in the database header.
const (
	EncodingUTF8    = 1
	EncodingUTF16LE = 2
	EncodingUTF16BE = 3
)

var (
	ErrBadMagic         = errors.New("format: invalid database magic header")
	ErrBadPageSize       = errors.New("format: invalid page size")
	ErrBadFormatVersion = errors.New("format: unsupported file-format version")
	ErrTruncatedHeader  = errors.New("format: database header truncated")
)

// DBHeader is the parsed form of the 100-byte database header at file offset 0.
type DBHeader struct {
	Magic             [16]byte
	RawPageSize       uint16 // as stored; 1 means 65536
	FileFormatWrite   uint8
	FileFormatRead    uint8
	ReservedSpace     uint8
	MaxPayloadFrac    uint8
	MinPayloadFrac    uint8
	LeafPayloadFrac   uint8
	FileChangeCounter uint32
	DatabaseSize      uint32
	FreelistTrunk     uint32
	FreelistCount     uint32
	SchemaCookie      uint32
	SchemaFormat      uint32
	DefaultCacheSize  uint32
	LargestRootPage   uint32
	TextEncoding      uint32
	UserVersion       uint32
	IncrementalVacuum uint32
	ApplicationID     uint32
	Reserved          [reservedFieldLen]byte
	VersionValidFor   uint32
	SQLiteVersion     uint32
}

// PageSize returns the effective page size, resolving the stored-as-1 ==
// 65536 convention.
func (h *DBHeader) PageSize() int {
	if h.RawPageSize == 1 {
		return MaxPageSize
	}
	return int(h.RawPageSize)
}

// UsableSize returns PageSize() minus ReservedSpace.
func (h *DBHeader) UsableSize() int {
	return h.PageSize() - int(h.ReservedSpace)
}

// IsPowerOfTwoPageSize reports whether size is a valid SQLite page size:
// a power of two in [512, 65536], or the special value 1 (meaning 65536).
func IsPowerOfTwoPageSize(size int) bool {
	if size == 1 {
		return true
	}
	if size < MinPageSize || size > MaxPageSize {
		return false
	}
	return size&(size-1) == 0
}

// ParseDBHeader parses the 100-byte database header.
func ParseDBHeader(data []byte) (*DBHeader, error) {
	if len(data) < DBHeaderSize {
		return nil, ErrTruncatedHeader
	}
	h := &DBHeader{}
	copy(h.Magic[:], data[offMagic:offMagic+16])
	if string(h.Magic[:]) != MagicHeaderString {
		return nil, fmt.Errorf("%w: got %q", ErrBadMagic, h.Magic[:])
	}

	h.RawPageSize = binary.BigEndian.Uint16(data[offPageSize:])
	if !IsPowerOfTwoPageSize(int(h.RawPageSize)) {
		return nil, fmt.Errorf("%w: %d", ErrBadPageSize, h.RawPageSize)
	}

	h.FileFormatWrite = data[offFileFormatWrite]
	h.FileFormatRead = data[offFileFormatRead]
	h.ReservedSpace = data[offReservedSpace]
	h.MaxPayloadFrac = data[offMaxPayloadFrac]
	h.MinPayloadFrac = data[offMinPayloadFrac]
	h.LeafPayloadFrac = data[offLeafPayloadFrac]

	h.FileChangeCounter = binary.BigEndian.Uint32(data[offFileChangeCounter:])
	h.DatabaseSize = binary.BigEndian.Uint32(data[offDatabaseSize:])
	h.FreelistTrunk = binary.BigEndian.Uint32(data[offFreelistTrunk:])
	h.FreelistCount = binary.BigEndian.Uint32(data[offFreelistCount:])
	h.SchemaCookie = binary.BigEndian.Uint32(data[offSchemaCookie:])
	h.SchemaFormat = binary.BigEndian.Uint32(data[offSchemaFormat:])
	h.DefaultCacheSize = binary.BigEndian.Uint32(data[offDefaultCacheSize:])
	h.LargestRootPage = binary.BigEndian.Uint32(data[offLargestRootPage:])
	h.TextEncoding = binary.BigEndian.Uint32(data[offTextEncoding:])
	h.UserVersion = binary.BigEndian.Uint32(data[offUserVersion:])
	h.IncrementalVacuum = binary.BigEndian.Uint32(data[offIncrementalVacuum:])
	h.ApplicationID = binary.BigEndian.Uint32(data[offApplicationID:])
	copy(h.Reserved[:], data[offReserved:offReserved+reservedFieldLen])
	h.VersionValidFor = binary.BigEndian.Uint32(data[offVersionValidFor:])
	h.SQLiteVersion = binary.BigEndian.Uint32(data[offSQLiteVersion:])

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Write serializes the header into a freshly allocated 100-byte slice.
func (h *DBHeader) Write() []byte {
	data := make([]byte, DBHeaderSize)
	copy(data[offMagic:], h.Magic[:])

	raw := h.RawPageSize
	if h.PageSize() == MaxPageSize {
		raw = 1
	}
	binary.BigEndian.PutUint16(data[offPageSize:], raw)

	data[offFileFormatWrite] = h.FileFormatWrite
	data[offFileFormatRead] = h.FileFormatRead
	data[offReservedSpace] = h.ReservedSpace
	data[offMaxPayloadFrac] = h.MaxPayloadFrac
	data[offMinPayloadFrac] = h.MinPayloadFrac
	data[offLeafPayloadFrac] = h.LeafPayloadFrac

	binary.BigEndian.PutUint32(data[offFileChangeCounter:], h.FileChangeCounter)
	binary.BigEndian.PutUint32(data[offDatabaseSize:], h.DatabaseSize)
	binary.BigEndian.PutUint32(data[offFreelistTrunk:], h.FreelistTrunk)
	binary.BigEndian.PutUint32(data[offFreelistCount:], h.FreelistCount)
	binary.BigEndian.PutUint32(data[offSchemaCookie:], h.SchemaCookie)
	binary.BigEndian.PutUint32(data[offSchemaFormat:], h.SchemaFormat)
	binary.BigEndian.PutUint32(data[offDefaultCacheSize:], h.DefaultCacheSize)
	binary.BigEndian.PutUint32(data[offLargestRootPage:], h.LargestRootPage)
	binary.BigEndian.PutUint32(data[offTextEncoding:], h.TextEncoding)
	binary.BigEndian.PutUint32(data[offUserVersion:], h.UserVersion)
	binary.BigEndian.PutUint32(data[offIncrementalVacuum:], h.IncrementalVacuum)
	binary.BigEndian.PutUint32(data[offApplicationID:], h.ApplicationID)
	copy(data[offReserved:], h.Reserved[:])
	binary.BigEndian.PutUint32(data[offVersionValidFor:], h.VersionValidFor)
	binary.BigEndian.PutUint32(data[offSQLiteVersion:], h.SQLiteVersion)

	return data
}

// NewDBHeader returns a fresh header for a new database with the given page
// size and default field values per spec.md §3.
func NewDBHeader(pageSize int) (*DBHeader, error) {
	if !IsPowerOfTwoPageSize(pageSize) {
		return nil, fmt.Errorf("%w: %d", ErrBadPageSize, pageSize)
	}
	raw := uint16(pageSize)
	if pageSize == MaxPageSize {
		raw = 1
	}
	h := &DBHeader{
		RawPageSize:      raw,
		FileFormatWrite:  1,
		FileFormatRead:   1,
		MaxPayloadFrac:   64,
		MinPayloadFrac:   32,
		LeafPayloadFrac:  32,
		SchemaFormat:     4,
		TextEncoding:     EncodingUTF8,
		DatabaseSize:     1,
		SQLiteVersion:    3045000,
	}
	copy(h.Magic[:], MagicHeaderString)
	return h, nil
}

// Validate checks the structural invariants spec.md §4.3 requires.
func (h *DBHeader) Validate() error {
	if string(h.Magic[:]) != MagicHeaderString {
		return ErrBadMagic
	}
	if !IsPowerOfTwoPageSize(h.PageSize()) {
		return fmt.Errorf("%w: %d", ErrBadPageSize, h.PageSize())
	}
	if h.UsableSize() <= 0 {
		return fmt.Errorf("%w: usable size not positive", ErrBadPageSize)
	}
	if h.FileFormatWrite != 1 && h.FileFormatWrite != 2 {
		return fmt.Errorf("%w: write format %d", ErrBadFormatVersion, h.FileFormatWrite)
	}
	if h.FileFormatRead != 1 && h.FileFormatRead != 2 {
		return fmt.Errorf("%w: read format %d", ErrBadFormatVersion, h.FileFormatRead)
	}
	return nil
}

package txn

import (
	"encoding/binary"
	"io"

	"github.com/revred/Sharc-sub000/sharcerr"
)

// journalMagic marks the start of a rollback journal. spec.md §4.12 leaves
// the exact on-disk journal layout unspecified beyond "journal header plus
// per-page records"; this is a private format (not SQLite's own journal
// byte layout), since a sharc journal is only ever read back by a sharc
// recovery pass over the same generation that wrote it.
var journalMagic = [8]byte{'s', 'h', 'a', 'r', 'c', 'j', 'r', '1'}

const journalHeaderSize = 16 // magic(8) + pageSize(4) + recordCount(4)

// File is the subset of *os.File a journal writer and reader need.
type File interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Sync() error
}

// PageRecord is one original page image recovered from a journal.
type PageRecord struct {
	Pgno uint32
	Data []byte
}

// journalWriter appends the pre-transaction image of a page the first time
// it is dirtied, so a crash between "pages written to the main DB" and
// "journal discarded" can be rolled back by replaying records backward.
type journalWriter struct {
	f        File
	pageSize int
	offset   int64
	count    uint32
}

func newJournalWriter(f File, pageSize int) (*journalWriter, error) {
	jw := &journalWriter{f: f, pageSize: pageSize, offset: journalHeaderSize}
	if err := jw.writeHeader(); err != nil {
		return nil, err
	}
	return jw, nil
}

func (jw *journalWriter) writeHeader() error {
	var hdr [journalHeaderSize]byte
	copy(hdr[0:8], journalMagic[:])
	binary.BigEndian.PutUint32(hdr[8:12], uint32(jw.pageSize))
	if _, err := jw.f.WriteAt(hdr[:], 0); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "writing journal header", err)
	}
	return nil
}

// Record appends pgno's pre-transaction image.
func (jw *journalWriter) Record(pgno uint32, original []byte) error {
	if len(original) != jw.pageSize {
		return sharcerr.New(sharcerr.KindInvalidArgument, "journal record size mismatch")
	}
	var rhdr [4]byte
	binary.BigEndian.PutUint32(rhdr[:], pgno)
	if _, err := jw.f.WriteAt(rhdr[:], jw.offset); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "writing journal record header", err)
	}
	if _, err := jw.f.WriteAt(original, jw.offset+4); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "writing journal record page", err)
	}
	jw.offset += 4 + int64(jw.pageSize)
	jw.count++
	return nil
}

// Finish writes the final record count into the header and fsyncs, the
// point at which the journal is durable enough to recover from.
func (jw *journalWriter) Finish() error {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], jw.count)
	if _, err := jw.f.WriteAt(countBuf[:], 12); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "finalizing journal header", err)
	}
	if err := jw.f.Sync(); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "syncing journal", err)
	}
	return nil
}

// Discard truncates the journal back to empty: the commit-complete or
// rollback-complete equivalent of removing it.
func (jw *journalWriter) Discard() error {
	if err := jw.f.Truncate(0); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "truncating journal", err)
	}
	return jw.f.Sync()
}

// ReplayBackward parses every record in a journal and returns them in
// reverse order (most-recently-written first), the order a crash recovery
// pass restores them to the main DB in.
func ReplayBackward(f io.ReaderAt, fileSize int64, pageSize int) ([]PageRecord, error) {
	hdrBuf := make([]byte, journalHeaderSize)
	if _, err := f.ReadAt(hdrBuf, 0); err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindCorruptPage, "reading journal header", err)
	}
	if string(hdrBuf[0:8]) != string(journalMagic[:]) {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "journal magic mismatch")
	}
	storedPageSize := binary.BigEndian.Uint32(hdrBuf[8:12])
	if int(storedPageSize) != pageSize {
		return nil, sharcerr.New(sharcerr.KindCorruptPage, "journal page size mismatch")
	}
	count := binary.BigEndian.Uint32(hdrBuf[12:16])

	recordSize := int64(4 + pageSize)
	var records []PageRecord
	offset := int64(journalHeaderSize)
	for i := uint32(0); i < count; i++ {
		if offset+recordSize > fileSize {
			break // a partially written tail record: stop, per spec's "deterministic and idempotent" recovery
		}
		rhdr := make([]byte, 4)
		if _, err := f.ReadAt(rhdr, offset); err != nil {
			return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "reading journal record header", err)
		}
		data := make([]byte, pageSize)
		if _, err := f.ReadAt(data, offset+4); err != nil {
			return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "reading journal record page", err)
		}
		records = append(records, PageRecord{Pgno: binary.BigEndian.Uint32(rhdr), Data: data})
		offset += recordSize
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

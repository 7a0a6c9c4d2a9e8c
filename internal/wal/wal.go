// Package wal implements the write-ahead log writer, reader, and
// checkpointer: frames are appended to a side file under a rolling
// checksum, a reader rebuilds the most-recent-commit page map by
// replaying that checksum chain, and a checkpointer folds valid frames
// back into the main database file.
package wal

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/revred/Sharc-sub000/internal/format"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// AutoCheckpointThreshold is the frame count at which a commit opportunistically
// triggers a checkpoint (spec.md §4.13).
const AutoCheckpointThreshold = 1000

// File is the subset of *os.File the WAL writer, reader, and checkpointer need.
type File interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Sync() error
}

// NewSalts returns a fresh random salt pair for a new WAL generation.
func NewSalts() (salt1, salt2 uint32, err error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, 0, sharcerr.Wrap(sharcerr.KindIOFailure, "generating wal salts", err)
	}
	return binary.BigEndian.Uint32(buf[0:4]), binary.BigEndian.Uint32(buf[4:8]), nil
}

// Writer appends frames to a WAL file, maintaining the rolling checksum
// chain that lets a Reader validate them later.
type Writer struct {
	f        File
	pageSize uint32
	salt1    uint32
	salt2    uint32
	s0, s1   uint32
	offset   int64
	started  bool
}

// NewWriter prepares a writer for a fresh WAL generation. The header is
// written lazily, on the first appended frame.
func NewWriter(f File, pageSize, salt1, salt2 uint32) *Writer {
	return &Writer{f: f, pageSize: pageSize, salt1: salt1, salt2: salt2}
}

// ResumeWriter continues appending to a WAL whose existing chain has
// already been validated by a Reader; s0/s1 and offset are the checksum
// state and byte offset immediately following the last valid frame.
func ResumeWriter(f File, header *format.WALHeader, s0, s1 uint32, offset int64) *Writer {
	return &Writer{
		f: f, pageSize: header.PageSize, salt1: header.Salt1, salt2: header.Salt2,
		s0: s0, s1: s1, offset: offset, started: true,
	}
}

func (w *Writer) writeHeaderIfNeeded() error {
	if w.started {
		return nil
	}
	h := format.NewWALHeader(w.pageSize, w.salt1, w.salt2)
	if _, err := w.f.WriteAt(h.Write(), 0); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "writing wal header", err)
	}
	w.offset = format.WALHeaderSize
	w.s0, w.s1 = 0, 0
	w.started = true
	return nil
}

func (w *Writer) appendFrame(pageNumber, commitSize uint32, pageBytes []byte) error {
	if err := w.writeHeaderIfNeeded(); err != nil {
		return err
	}
	if uint32(len(pageBytes)) != w.pageSize {
		return sharcerr.New(sharcerr.KindInvalidArgument, "page size mismatch appending wal frame")
	}

	var head8 [8]byte
	binary.BigEndian.PutUint32(head8[0:4], pageNumber)
	binary.BigEndian.PutUint32(head8[4:8], commitSize)

	s0, s1 := format.WALChecksum(head8[:], w.s0, w.s1)
	s0, s1 = format.WALChecksum(pageBytes, s0, s1)

	fh := &format.WALFrameHeader{
		PageNumber: pageNumber,
		CommitSize: commitSize,
		Salt1:      w.salt1,
		Salt2:      w.salt2,
		Checksum1:  s0,
		Checksum2:  s1,
	}

	if _, err := w.f.WriteAt(fh.Write(), w.offset); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "writing wal frame header", err)
	}
	if _, err := w.f.WriteAt(pageBytes, w.offset+format.WALFrameHeaderSize); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "writing wal frame page", err)
	}

	w.offset += format.WALFrameHeaderSize + int64(len(pageBytes))
	w.s0, w.s1 = s0, s1
	return nil
}

// AppendFrame writes a non-commit frame for pageNumber.
func (w *Writer) AppendFrame(pageNumber uint32, pageBytes []byte) error {
	return w.appendFrame(pageNumber, 0, pageBytes)
}

// AppendCommitFrame writes the final frame of a transaction: dbSizeInPages
// is the commit marker, recording the database's new size in pages.
func (w *Writer) AppendCommitFrame(pageNumber uint32, pageBytes []byte, dbSizeInPages uint32) error {
	return w.appendFrame(pageNumber, dbSizeInPages, pageBytes)
}

// Offset returns the byte offset immediately after the last frame written.
func (w *Writer) Offset() int64 { return w.offset }

// Sync fsyncs the WAL file.
func (w *Writer) Sync() error {
	if err := w.f.Sync(); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "syncing wal", err)
	}
	return nil
}

// Reader replays a WAL's checksum chain, producing the byte offset (of the
// page image, past its frame header) of the most recent committed frame
// for each page.
type Reader struct {
	header    *format.WALHeader
	frames    map[uint32]int64
	frameN    int
	commitEnd int64  // byte offset just past the last valid commit frame; -1 if none
	dbSize    uint32 // database size in pages as of the last valid commit frame
}

// Header returns the parsed WAL header.
func (r *Reader) Header() *format.WALHeader { return r.header }

// PageOffset returns the byte offset of the most recent valid committed
// image of pgno, if any.
func (r *Reader) PageOffset(pgno uint32) (int64, bool) {
	off, ok := r.frames[pgno]
	return off, ok
}

// FrameCount is the number of distinct pages covered by the committed chain.
func (r *Reader) FrameCount() int { return r.frameN }

// HasCommit reports whether at least one full transaction has committed.
func (r *Reader) HasCommit() bool { return r.commitEnd >= 0 }

// CommitEnd is the byte offset immediately following the last valid commit
// frame; a Writer resuming from here continues the same checksum chain.
func (r *Reader) CommitEnd() int64 { return r.commitEnd }

// DBSize is the database size in pages as of the last valid commit frame,
// the same value a WALView reports as PageCount once the WAL is merged
// in front of the main file.
func (r *Reader) DBSize() uint32 { return r.dbSize }

// Read scans the WAL starting at the header, validating salts and the
// rolling checksum frame by frame, and stops at the first frame that
// fails either check (an incomplete tail from a crashed writer).
func Read(f io.ReaderAt, fileSize int64) (*Reader, error) {
	hdrBuf := make([]byte, format.WALHeaderSize)
	if _, err := f.ReadAt(hdrBuf, 0); err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindCorruptPage, "reading wal header", err)
	}
	header, err := format.ParseWALHeader(hdrBuf)
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindCorruptPage, "parsing wal header", err)
	}

	r := &Reader{header: header, frames: make(map[uint32]int64), commitEnd: -1}
	pending := make(map[uint32]int64)

	s0, s1 := uint32(0), uint32(0)
	offset := int64(format.WALHeaderSize)
	frameSize := int64(format.WALFrameHeaderSize) + int64(header.PageSize)

	for offset+frameSize <= fileSize {
		fhBuf := make([]byte, format.WALFrameHeaderSize)
		if _, err := f.ReadAt(fhBuf, offset); err != nil {
			break
		}
		fh, err := format.ParseWALFrameHeader(fhBuf)
		if err != nil {
			break
		}
		if fh.Salt1 != header.Salt1 || fh.Salt2 != header.Salt2 {
			break
		}

		pageBuf := make([]byte, header.PageSize)
		if _, err := f.ReadAt(pageBuf, offset+format.WALFrameHeaderSize); err != nil {
			break
		}

		var head8 [8]byte
		binary.BigEndian.PutUint32(head8[0:4], fh.PageNumber)
		binary.BigEndian.PutUint32(head8[4:8], fh.CommitSize)
		ns0, ns1 := format.WALChecksum(head8[:], s0, s1)
		ns0, ns1 = format.WALChecksum(pageBuf, ns0, ns1)
		if ns0 != fh.Checksum1 || ns1 != fh.Checksum2 {
			break
		}
		s0, s1 = ns0, ns1

		pending[fh.PageNumber] = offset + format.WALFrameHeaderSize
		offset += frameSize

		if fh.IsCommit() {
			for pgno, off := range pending {
				r.frames[pgno] = off
			}
			pending = make(map[uint32]int64)
			r.commitEnd = offset
			r.dbSize = fh.CommitSize
		}
	}

	r.frameN = len(r.frames)
	return r, nil
}

// Checkpoint copies every page the reader's committed chain covers into
// main at (page_number-1)*page_size and fsyncs it. It does not reset the
// WAL; call Reset separately once the checkpoint completes.
func Checkpoint(walFile io.ReaderAt, r *Reader, main File) error {
	pageSize := int64(r.header.PageSize)
	buf := make([]byte, pageSize)
	for pgno, off := range r.frames {
		if _, err := walFile.ReadAt(buf, off); err != nil {
			return sharcerr.Wrap(sharcerr.KindIOFailure, "reading wal page during checkpoint", err)
		}
		mainOffset := int64(pgno-1) * pageSize
		if _, err := main.WriteAt(buf, mainOffset); err != nil {
			return sharcerr.Wrap(sharcerr.KindIOFailure, "writing checkpointed page", err)
		}
	}
	if err := main.Sync(); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "syncing main db after checkpoint", err)
	}
	return nil
}

// Reset truncates the WAL back to a single, empty header with a fresh
// salt pair, so the next writer starts a new generation. Safe to call
// after a crashed or partial checkpoint: frames are overlaid
// deterministically by page number, so replaying a checkpoint is idempotent.
func Reset(f File, pageSize, salt1, salt2 uint32) error {
	h := format.NewWALHeader(pageSize, salt1, salt2)
	if err := f.Truncate(format.WALHeaderSize); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "truncating wal", err)
	}
	if _, err := f.WriteAt(h.Write(), 0); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "writing reset wal header", err)
	}
	return f.Sync()
}

// ShouldAutoCheckpoint reports whether frameCount has crossed the
// opportunistic auto-checkpoint threshold.
func ShouldAutoCheckpoint(frameCount int) bool { return frameCount >= AutoCheckpointThreshold }

package pagesource

import (
	"io"

	"github.com/revred/Sharc-sub000/internal/wal"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// WALView overlays a WAL reader's committed frames on top of a base store,
// the same merge a checkpoint performs by copying pages back into the main
// file, but computed on the fly for readers that open outside an active
// write transaction. It is read-only: writers go through txn.Begin's own
// shadow + wal.Writer path instead.
type WALView struct {
	base   Store
	walRA  io.ReaderAt
	reader *wal.Reader
}

// NewWALView wraps base with reader's committed frames, read from walRA.
// If reader has never seen a commit, WALView reads straight through to base.
func NewWALView(base Store, walRA io.ReaderAt, reader *wal.Reader) *WALView {
	return &WALView{base: base, walRA: walRA, reader: reader}
}

func (v *WALView) PageSize() int { return v.base.PageSize() }

func (v *WALView) PageCount() uint32 {
	if v.reader.HasCommit() {
		return v.reader.DBSize()
	}
	return v.base.PageCount()
}

func (v *WALView) ReadOnly() bool { return true }

func (v *WALView) ReadPage(pgno Pgno) ([]byte, error) {
	if off, ok := v.reader.PageOffset(uint32(pgno)); ok {
		buf := make([]byte, v.base.PageSize())
		n, err := v.walRA.ReadAt(buf, off)
		if err != nil && err != io.EOF {
			return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "reading wal page", err)
		}
		if n < len(buf) {
			return nil, sharcerr.New(sharcerr.KindCorruptPage, "short read of wal page")
		}
		return buf, nil
	}
	return v.base.ReadPage(pgno)
}

func (v *WALView) WritePage(Pgno, []byte) error { return ErrReadOnly }
func (v *WALView) Truncate(uint32) error        { return ErrReadOnly }
func (v *WALView) Sync() error                  { return nil }
func (v *WALView) Close() error                 { return nil }

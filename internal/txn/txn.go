// Package txn implements the transaction manager (spec.md §4.12): a
// one-shot None→Active→(Committed|RolledBack) state machine that owns a
// reserved file lock, a shadow copy-on-write overlay, and the mutator and
// freelist manager bound to it for the duration of one writer's scope.
package txn

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/revred/Sharc-sub000/internal/btree"
	"github.com/revred/Sharc-sub000/internal/filelock"
	"github.com/revred/Sharc-sub000/internal/format"
	"github.com/revred/Sharc-sub000/internal/freelist"
	"github.com/revred/Sharc-sub000/internal/pagesource"
	"github.com/revred/Sharc-sub000/internal/shadow"
	"github.com/revred/Sharc-sub000/internal/wal"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// State is a transaction's position in its one-shot lifecycle.
type State int

const (
	None State = iota
	Active
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case None:
		return "none"
	case Active:
		return "active"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Mode selects the durable-commit strategy spec.md §4.12 names.
type Mode int

const (
	ModeRollbackJournal Mode = iota
	ModeWAL
)

// pageStore is the read/write surface both commit strategies' mutator and
// freelist manager share; the rollback-journal strategy wraps it with
// first-write journaling, the WAL strategy uses it unwrapped.
type pageStore interface {
	ReadPage(pgno uint32) ([]byte, error)
	WritePage(pgno uint32, data []byte) error
	PageSize() int
	UsableSize() int
}

// journalingStore journals a page's pre-transaction image the first time it
// is dirtied in this transaction, then forwards the write to the shadow.
type journalingStore struct {
	inner     pageStore
	base      shadow.Source
	jw        *journalWriter
	journaled map[uint32]bool
}

func (j *journalingStore) ReadPage(pgno uint32) ([]byte, error) { return j.inner.ReadPage(pgno) }
func (j *journalingStore) PageSize() int                        { return j.inner.PageSize() }
func (j *journalingStore) UsableSize() int                      { return j.inner.UsableSize() }

func (j *journalingStore) WritePage(pgno uint32, data []byte) error {
	if !j.journaled[pgno] {
		j.journaled[pgno] = true
		if pgno <= j.base.PageCount() {
			original, err := j.base.ReadPage(pagesource.Pgno(pgno))
			if err != nil {
				return err
			}
			if err := j.jw.Record(pgno, original); err != nil {
				return err
			}
		}
	}
	return j.inner.WritePage(pgno, data)
}

// Config bundles the dependencies Begin wires into a new transaction.
type Config struct {
	Mode   Mode
	Base   shadow.Source    // pre-transaction snapshot
	Header *format.DBHeader // current on-disk header, copied into the shadow
	Locker *filelock.Locker

	// Main and Journal are required in ModeRollbackJournal.
	Main    pagesource.Store
	Journal File

	// WALFile, Salt1, and Salt2 are required in ModeWAL.
	WALFile      wal.File
	Salt1, Salt2 uint32
}

// Txn is one in-flight writer's shadow, mutator, and freelist manager,
// bound together under a single reserved lock.
type Txn struct {
	id     uuid.UUID
	mode   Mode
	state  State
	locker *filelock.Locker
	base   shadow.Source
	shadow *shadow.Shadow
	pages  pageStore

	mutator *btree.Mutator
	free    *freelist.Manager

	// rollback-journal mode
	journal *journalWriter
	main    pagesource.Store

	// WAL mode
	wal *wal.Writer
}

// Begin acquires a reserved lock and opens a new transaction over cfg.Base.
func Begin(cfg Config) (*Txn, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "generating transaction session id", err)
	}
	if err := cfg.Locker.Reserved(); err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindBusy,
			fmt.Sprintf("session %s could not begin a write transaction", id), err)
	}

	sh := shadow.New(cfg.Base, cfg.Header)
	basePages := shadow.Pages{Shadow: sh}

	t := &Txn{
		id:     id,
		mode:   cfg.Mode,
		state:  Active,
		locker: cfg.Locker,
		base:   cfg.Base,
		shadow: sh,
	}

	var store pageStore = basePages
	switch cfg.Mode {
	case ModeRollbackJournal:
		jw, err := newJournalWriter(cfg.Journal, sh.PageSize())
		if err != nil {
			cfg.Locker.Unlock()
			return nil, err
		}
		t.journal = jw
		t.main = cfg.Main
		store = &journalingStore{inner: basePages, base: cfg.Base, jw: jw, journaled: make(map[uint32]bool)}
	case ModeWAL:
		t.wal = wal.NewWriter(cfg.WALFile, uint32(sh.PageSize()), cfg.Salt1, cfg.Salt2)
	default:
		cfg.Locker.Unlock()
		return nil, sharcerr.New(sharcerr.KindInvalidArgument, "unknown transaction mode")
	}

	t.pages = store
	t.free = freelist.New(sh, store)
	t.mutator = btree.NewMutator(store, t.free)
	return t, nil
}

// ID returns this transaction's session id, surfaced in Busy errors so
// concurrent writers can be told apart in diagnostics.
func (t *Txn) ID() uuid.UUID { return t.id }

// State reports the transaction's current lifecycle position.
func (t *Txn) State() State { return t.state }

// Pages exposes the shadow's page store for opening a read cursor
// (btree.OpenAt) against rows this transaction has written but not yet
// committed.
func (t *Txn) Pages() btree.PageStore { return t.pages }

func (t *Txn) checkActive() error {
	if t.state != Active {
		return sharcerr.New(sharcerr.KindUseAfterRelease,
			fmt.Sprintf("transaction %s is %s, not active", t.id, t.state))
	}
	return nil
}

// Insert inserts a new row, failing if rowid already exists on the table
// rooted at root.
func (t *Txn) Insert(root uint32, rowid int64, payload []byte) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	return t.mutator.Insert(root, rowid, payload)
}

// Update replaces an existing row's payload, failing if rowid is absent.
func (t *Txn) Update(root uint32, rowid int64, payload []byte) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	return t.mutator.Update(root, rowid, payload)
}

// Delete removes a row, failing if rowid is absent.
func (t *Txn) Delete(root uint32, rowid int64) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	return t.mutator.Delete(root, rowid)
}

// Commit durably persists every write this transaction made and releases
// its lock. A transaction may be committed at most once.
func (t *Txn) Commit() error {
	if err := t.checkActive(); err != nil {
		return err
	}

	t.shadow.Header().FileChangeCounter++

	var err error
	switch t.mode {
	case ModeRollbackJournal:
		err = t.commitRollbackJournal()
	case ModeWAL:
		err = t.commitWAL()
	}
	if err != nil {
		return err
	}

	t.state = Committed
	return t.locker.Unlock()
}

func (t *Txn) commitRollbackJournal() error {
	if err := t.journal.Finish(); err != nil {
		return err
	}
	if err := t.locker.Exclusive(); err != nil {
		return err
	}

	pages := t.shadow.DirtyPages()
	wrotePage1 := false
	for _, pgno := range pages {
		data, err := t.shadow.ReadPage(pgno)
		if err != nil {
			return err
		}
		if err := t.main.WritePage(pgno, data); err != nil {
			return err
		}
		if pgno == 1 {
			wrotePage1 = true
		}
	}
	if !wrotePage1 {
		data, err := t.shadow.ReadPage(1)
		if err != nil {
			return err
		}
		if err := t.main.WritePage(1, data); err != nil {
			return err
		}
	}
	if err := t.main.Sync(); err != nil {
		return err
	}
	return t.journal.Discard()
}

func (t *Txn) commitWAL() error {
	pages := t.shadow.DirtyPages()
	hasPage1 := false
	for _, pgno := range pages {
		if pgno == 1 {
			hasPage1 = true
			break
		}
	}
	if !hasPage1 {
		pages = append([]pagesource.Pgno{1}, pages...)
	}

	dbSize := t.shadow.PageCount()
	for i, pgno := range pages {
		data, err := t.shadow.ReadPage(pgno)
		if err != nil {
			return err
		}
		if i == len(pages)-1 {
			if err := t.wal.AppendCommitFrame(uint32(pgno), data, dbSize); err != nil {
				return err
			}
		} else if err := t.wal.AppendFrame(uint32(pgno), data); err != nil {
			return err
		}
	}
	return t.wal.Sync()
}

// Rollback discards the shadow and releases the lock without touching the
// main database. A transaction may be rolled back at most once, and never
// after a commit.
func (t *Txn) Rollback() error {
	if err := t.checkActive(); err != nil {
		return err
	}
	t.state = RolledBack
	if t.mode == ModeRollbackJournal {
		if err := t.journal.Discard(); err != nil {
			return err
		}
	}
	return t.locker.Unlock()
}

// AutoCheckpointDue reports whether the WAL writer's frame count has
// crossed the opportunistic auto-checkpoint threshold (spec.md §4.13). Only
// meaningful in ModeWAL, after a successful Commit.
func (t *Txn) AutoCheckpointDue() bool {
	if t.mode != ModeWAL {
		return false
	}
	frameSize := int64(format.WALFrameHeaderSize) + int64(t.shadow.PageSize())
	frames := (t.wal.Offset() - format.WALHeaderSize) / frameSize
	return wal.ShouldAutoCheckpoint(int(frames))
}

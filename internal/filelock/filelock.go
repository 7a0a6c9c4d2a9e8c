// Package filelock implements SQLite-compatible byte-range advisory locks
// on the database file: a shared lock for readers, reserved for a
// starting writer, pending as an upgrade barrier, and exclusive for
// committing writers or checkpoints. All acquisitions are non-blocking.
package filelock

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/revred/Sharc-sub000/sharcerr"
)

// Byte offsets of SQLite's locking bytes, relative to a notional 1 GiB
// offset so they never collide with real page data in even the largest
// supported database.
const (
	pendingByte = 0x40000000
	reservedByte = pendingByte + 1
	sharedFirst  = pendingByte + 2
	sharedSize   = 510
)

// State is the lock level currently held.
type State int

const (
	None State = iota
	Shared
	Reserved
	Pending
	Exclusive
)

// Locker manages the lock state machine for one open file handle.
type Locker struct {
	f     *os.File
	state State
}

// New wraps f for locking. f must be open on the same file the database
// pages live in (the main DB file, per spec.md §6).
func New(f *os.File) *Locker {
	return &Locker{f: f}
}

func (l *Locker) State() State { return l.state }

func lockRange(f *os.File, typ int16, start, length int64) error {
	lk := unix.Flock_t{
		Type:   typ,
		Whence: 0, // SEEK_SET
		Start:  start,
		Len:    length,
	}
	return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &lk)
}

func busyErr(op string, cause error) error {
	return sharcerr.Wrap(sharcerr.KindBusy, "acquiring "+op+" lock", cause)
}

// Shared acquires a shared (read) lock. Fails with a Busy error if any
// writer holds a conflicting lock.
func (l *Locker) Shared() error {
	if err := lockRange(l.f, unix.F_RDLCK, sharedFirst, sharedSize); err != nil {
		return busyErr("shared", err)
	}
	l.state = Shared
	return nil
}

// Reserved upgrades a shared lock to reserved: signals intent to write
// without blocking other readers.
func (l *Locker) Reserved() error {
	if err := lockRange(l.f, unix.F_WRLCK, reservedByte, 1); err != nil {
		return busyErr("reserved", err)
	}
	l.state = Reserved
	return nil
}

// Pending blocks new shared-lock acquisitions while this writer drains
// existing readers before going exclusive.
func (l *Locker) Pending() error {
	if err := lockRange(l.f, unix.F_WRLCK, pendingByte, 1); err != nil {
		return busyErr("pending", err)
	}
	l.state = Pending
	return nil
}

// Exclusive acquires the full shared-range lock, required before a
// rollback-journal commit writes the main DB file or a WAL checkpoint runs.
func (l *Locker) Exclusive() error {
	if err := lockRange(l.f, unix.F_WRLCK, sharedFirst, sharedSize); err != nil {
		return busyErr("exclusive", err)
	}
	l.state = Exclusive
	return nil
}

// Unlock releases every lock this Locker holds.
func (l *Locker) Unlock() error {
	if err := lockRange(l.f, unix.F_UNLCK, pendingByte, 2+sharedSize); err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "releasing locks", err)
	}
	l.state = None
	return nil
}

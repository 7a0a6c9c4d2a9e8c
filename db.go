// Package sharc is the top-level handle for the embedded, SQLite
// file-format-compatible storage engine: Open wires a page source, an
// optional page transform, the B-tree reader, the schema reader, and the
// transaction manager behind one DB.
package sharc

import (
	"crypto/rand"
	"os"

	"github.com/revred/Sharc-sub000/internal/btree"
	"github.com/revred/Sharc-sub000/internal/filelock"
	"github.com/revred/Sharc-sub000/internal/format"
	"github.com/revred/Sharc-sub000/internal/integrity"
	"github.com/revred/Sharc-sub000/internal/pagesource"
	"github.com/revred/Sharc-sub000/internal/schema"
	"github.com/revred/Sharc-sub000/internal/transform"
	"github.com/revred/Sharc-sub000/internal/txn"
	"github.com/revred/Sharc-sub000/internal/wal"
	"github.com/revred/Sharc-sub000/sharcerr"
)

const defaultPageSize = 4096

// JournalMode selects the durability strategy a database uses for write
// transactions. AutoJournalMode defers to what Open finds on disk: an
// existing "-wal" sidecar means WAL, anything else means rollback journal.
type JournalMode int

const (
	AutoJournalMode JournalMode = iota
	RollbackJournalMode
	WALMode
)

// FileShareMode controls the shared byte-range lock Open takes.
// ShareReadWrite, the default, takes a shared lock at Open, which lets
// other processes open the same file concurrently. ShareExclusive skips
// that shared lock; Open takes no exclusive lock in its place, and an
// exclusive lock taken for journal recovery or a checkpoint is kept rather
// than downgraded to shared. A Transaction's Commit or Rollback releases
// every lock the handle holds, in either mode.
type FileShareMode int

const (
	ShareReadWrite FileShareMode = iota
	ShareExclusive
)

// EncryptionOptions configures password-based page encryption (spec.md §4.11).
// A nil Encryption in Options means the database is read and written in
// cleartext.
type EncryptionOptions struct {
	Password []byte

	// KDFAlgo and CipherAlgo select format.KDFArgon2id/KDFScrypt and
	// format.CipherAES256GCM. Zero means "use the default" when creating a
	// new encrypted database (Argon2id + AES-256-GCM); both are ignored
	// when opening an existing one, whose envelope already records them.
	KDFAlgo    uint8
	CipherAlgo uint8
}

// Options configures Open.
type Options struct {
	// Path is the database file path, or "" / ":memory:" for an in-memory
	// database. Buffer is ignored unless Path is empty or ":memory:".
	Path   string
	Buffer []byte

	// PageCacheSize bounds the in-process LRU of page buffers; 0 disables
	// caching beyond whatever PreloadToMemory adds.
	PageCacheSize int

	// PreloadToMemory reads every page at Open time and takes a BLAKE3
	// integrity baseline (internal/integrity) so Verify can later detect
	// pages that changed outside a tracked transaction.
	PreloadToMemory bool

	FileShareMode FileShareMode
	Encryption    *EncryptionOptions
	JournalMode   JournalMode
	Writable      bool

	// Mmap opens a read-only plain-file database through a whole-file mmap
	// instead of positioned reads, letting the OS page cache do the work a
	// PageCacheSize LRU would otherwise do in Go. Ignored for encrypted and
	// :memory: databases (pagesource.Mmapped only maps a real, cleartext
	// file) and for Writable opens (the mapping is read-only).
	Mmap bool
}

// DB is one open database handle.
type DB struct {
	opts   Options
	store  pagesource.Store
	xform  transform.PageTransform
	header *format.DBHeader
	sch    *schema.Schema

	lockFile     *os.File
	ownsLockFile bool
	locker       *filelock.Locker

	mode     txn.Mode
	mainPath string

	walFile      *os.File
	walReader    *wal.Reader
	salt1, salt2 uint32

	baseline *integrity.Manifest
}

// Open opens a database per opts.
func Open(opts Options) (*DB, error) {
	if opts.Path == "" || opts.Path == ":memory:" {
		return openMemory(opts)
	}
	return openFile(opts)
}

func openMemory(opts Options) (*DB, error) {
	pageSize := defaultPageSize
	mem := pagesource.NewMemory(pageSize)
	var header *format.DBHeader

	if len(opts.Buffer) >= format.DBHeaderSize {
		h, err := format.ParseDBHeader(opts.Buffer[:format.DBHeaderSize])
		if err != nil {
			return nil, sharcerr.Wrap(sharcerr.KindInvalidDatabase, "parsing buffer header", err)
		}
		header = h
		pageSize = h.PageSize()
		mem = pagesource.NewMemory(pageSize)
		if err := loadBuffer(mem, opts.Buffer, pageSize); err != nil {
			return nil, err
		}
	} else {
		h, err := format.NewDBHeader(pageSize)
		if err != nil {
			return nil, err
		}
		header = h
		if err := mem.WritePage(1, bootstrapPage1(pageSize, header)); err != nil {
			return nil, err
		}
	}

	// A memory database still needs a real file descriptor to drive
	// filelock's byte-range locks, which only make sense against an
	// *os.File; an anonymous temp file plays that role and is never read.
	lockFile, err := os.CreateTemp("", "sharc-memlock-*")
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "creating memory-mode lock file", err)
	}

	db := &DB{
		opts:         opts,
		store:        mem,
		xform:        transform.Identity{},
		header:       header,
		lockFile:     lockFile,
		ownsLockFile: true,
		locker:       filelock.New(lockFile),
		// WAL needs a real sidecar path to host its frames; a memory
		// database has none, so it always uses the rollback journal
		// (whose file Begin creates beside the dedicated temp lock file,
		// since there is no database path to put it next to).
		mode: txn.ModeRollbackJournal,
	}
	if err := db.afterOpen(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openFile(opts Options) (*DB, error) {
	flag := os.O_RDONLY
	if opts.Writable {
		flag = os.O_RDWR | os.O_CREATE
	}
	raw, err := os.OpenFile(opts.Path, flag, 0o644)
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "opening database file", err)
	}

	info, err := raw.Stat()
	if err != nil {
		raw.Close()
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "stat database file", err)
	}

	if info.Size() == 0 {
		return bootstrapFile(raw, opts)
	}

	probe := make([]byte, format.EnvelopeSize)
	if _, err := raw.ReadAt(probe, 0); err != nil {
		raw.Close()
		return nil, sharcerr.Wrap(sharcerr.KindInvalidDatabase, "reading database preamble", err)
	}

	if string(probe[:len(format.EnvelopeMagic)]) == format.EnvelopeMagic {
		return openEncryptedFile(raw, probe, opts)
	}
	return openPlainFile(raw, probe[:format.DBHeaderSize], opts)
}

func openPlainFile(raw *os.File, headerBytes []byte, opts Options) (*DB, error) {
	header, err := format.ParseDBHeader(headerBytes)
	if err != nil {
		raw.Close()
		return nil, sharcerr.Wrap(sharcerr.KindInvalidDatabase, "parsing database header", err)
	}
	raw.Close()

	var fileStore pagesource.Store
	if opts.Mmap && !opts.Writable {
		fileStore, err = pagesource.OpenMmapped(opts.Path, header.PageSize())
	} else {
		fileStore, err = pagesource.OpenFile(opts.Path, header.PageSize(), !opts.Writable)
	}
	if err != nil {
		return nil, err
	}

	lockFile, err := openLockFile(opts)
	if err != nil {
		fileStore.Close()
		return nil, err
	}

	db := &DB{
		opts:     opts,
		store:    fileStore,
		xform:    transform.Identity{},
		header:   header,
		lockFile: lockFile,
		locker:   filelock.New(lockFile),
		mainPath: opts.Path,
	}
	db.mode = db.detectJournalMode(opts)
	if err := db.afterOpen(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openEncryptedFile(raw *os.File, envBytes []byte, opts Options) (*DB, error) {
	env, err := format.ParseEnvelope(envBytes)
	if err != nil {
		raw.Close()
		return nil, sharcerr.Wrap(sharcerr.KindInvalidDatabase, "parsing encryption envelope", err)
	}
	if opts.Encryption == nil || len(opts.Encryption.Password) == 0 {
		raw.Close()
		return nil, sharcerr.New(sharcerr.KindWrongPassword, "encrypted database requires a password")
	}

	key, err := transform.DeriveKey(env, opts.Encryption.Password)
	if err != nil {
		raw.Close()
		return nil, err
	}
	if !transform.VerifyKey(env, key) {
		raw.Close()
		return nil, sharcerr.New(sharcerr.KindWrongPassword, "wrong password")
	}

	xform, err := transform.New(env, key)
	if err != nil {
		raw.Close()
		return nil, err
	}

	encStore := pagesource.OpenEncryptedFile(raw, xform, int(env.InnerPageSize), !opts.Writable)

	page1, err := encStore.ReadPage(1)
	if err != nil {
		encStore.Close()
		return nil, err
	}
	header, err := format.ParseDBHeader(page1)
	if err != nil {
		encStore.Close()
		return nil, sharcerr.Wrap(sharcerr.KindInvalidDatabase, "parsing decrypted header", err)
	}

	lockFile, err := openLockFile(opts)
	if err != nil {
		encStore.Close()
		return nil, err
	}

	db := &DB{
		opts:     opts,
		store:    encStore,
		xform:    xform,
		header:   header,
		lockFile: lockFile,
		locker:   filelock.New(lockFile),
		mainPath: opts.Path,
		// WAL framing assumes fixed-stride pageSize records; an encrypted
		// envelope's per-page records are variable-stride (nonce+cipher+tag),
		// which spec.md §4.11/§4.13 never reconciles. Encrypted databases
		// always use the rollback journal (see DESIGN.md open question).
		mode: txn.ModeRollbackJournal,
	}
	if err := db.afterOpen(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func bootstrapFile(raw *os.File, opts Options) (*DB, error) {
	if !opts.Writable {
		raw.Close()
		return nil, sharcerr.New(sharcerr.KindInvalidDatabase, "cannot create a new database read-only")
	}

	header, err := format.NewDBHeader(defaultPageSize)
	if err != nil {
		raw.Close()
		return nil, err
	}

	if opts.Encryption != nil {
		return bootstrapEncryptedFile(raw, header, opts)
	}

	if _, err := raw.WriteAt(bootstrapPage1(defaultPageSize, header), 0); err != nil {
		raw.Close()
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "writing initial page", err)
	}
	raw.Close()

	fileStore, err := pagesource.OpenFile(opts.Path, defaultPageSize, false)
	if err != nil {
		return nil, err
	}
	lockFile, err := openLockFile(opts)
	if err != nil {
		fileStore.Close()
		return nil, err
	}

	db := &DB{
		opts:     opts,
		store:    fileStore,
		xform:    transform.Identity{},
		header:   header,
		lockFile: lockFile,
		locker:   filelock.New(lockFile),
		mainPath: opts.Path,
		mode:     modeFromOption(opts.JournalMode),
	}
	if err := db.afterOpen(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func bootstrapEncryptedFile(raw *os.File, header *format.DBHeader, opts Options) (*DB, error) {
	env := format.NewArgon2idEnvelope(header.PageSize())
	if opts.Encryption.KDFAlgo != 0 {
		env.KDFAlgo = opts.Encryption.KDFAlgo
	}
	if opts.Encryption.CipherAlgo != 0 {
		env.CipherAlgo = opts.Encryption.CipherAlgo
	}

	salt := make([]byte, format.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		raw.Close()
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "generating salt", err)
	}
	copy(env.Salt[:], salt)

	key, err := transform.DeriveKey(env, opts.Encryption.Password)
	if err != nil {
		raw.Close()
		return nil, err
	}
	env.KeyCheckMAC = transform.KeyVerifyMAC(key)

	xform, err := transform.New(env, key)
	if err != nil {
		raw.Close()
		return nil, err
	}

	if _, err := raw.WriteAt(env.Write(), 0); err != nil {
		raw.Close()
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "writing encryption envelope", err)
	}

	encStore := pagesource.OpenEncryptedFile(raw, xform, header.PageSize(), false)
	if err := encStore.WritePage(1, bootstrapPage1(header.PageSize(), header)); err != nil {
		encStore.Close()
		return nil, err
	}

	lockFile, err := openLockFile(opts)
	if err != nil {
		encStore.Close()
		return nil, err
	}

	db := &DB{
		opts:     opts,
		store:    encStore,
		xform:    xform,
		header:   header,
		lockFile: lockFile,
		locker:   filelock.New(lockFile),
		mainPath: opts.Path,
		mode:     txn.ModeRollbackJournal,
	}
	if err := db.afterOpen(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openLockFile(opts Options) (*os.File, error) {
	flag := os.O_RDONLY
	if opts.Writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(opts.Path, flag, 0o644)
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "opening database file for locking", err)
	}
	return f, nil
}

func modeFromOption(jm JournalMode) txn.Mode {
	if jm == WALMode {
		return txn.ModeWAL
	}
	return txn.ModeRollbackJournal
}

func (db *DB) detectJournalMode(opts Options) txn.Mode {
	switch opts.JournalMode {
	case WALMode:
		return txn.ModeWAL
	case RollbackJournalMode:
		return txn.ModeRollbackJournal
	default:
		if _, err := os.Stat(db.mainPath + "-wal"); err == nil {
			return txn.ModeWAL
		}
		return txn.ModeRollbackJournal
	}
}

// afterOpen runs the steps common to every construction path: refusing a
// read-write open of an auto-vacuum database, acquiring the initial lock,
// picking up an existing WAL generation, applying page caching, taking a
// preload integrity baseline, and loading the schema.
func (db *DB) afterOpen() error {
	if db.opts.Writable && (db.header.LargestRootPage != 0 || db.header.IncrementalVacuum != 0) {
		return sharcerr.New(sharcerr.KindInvalidArgument, "auto-vacuum databases can only be opened read-only")
	}
	if db.opts.FileShareMode != ShareExclusive {
		if err := db.locker.Shared(); err != nil {
			return err
		}
	}

	if err := db.recoverRollbackJournal(); err != nil {
		return err
	}

	if db.mode == txn.ModeWAL && db.mainPath != "" {
		if err := db.openWALSidecar(); err != nil {
			return err
		}
	}

	db.applyCaching()

	if db.opts.PreloadToMemory {
		m, err := integrity.Snapshot(db.readStore())
		if err != nil {
			return err
		}
		db.baseline = m
	}

	sch, err := schema.Load(db.schemaView())
	if err != nil {
		return err
	}
	db.sch = sch
	return nil
}

// recoverRollbackJournal looks for a leftover "-journal" file from a writer
// that crashed after journal.Finish() synced but before the commit finished
// writing every dirty page to the main store (a "hot journal", in SQLite's
// terms), and replays it backward into the main store before anything else
// reads a page. A non-empty journal with no way to recover it (a read-only
// open) is refused rather than risked as a silent torn read.
func (db *DB) recoverRollbackJournal() error {
	if db.mode != txn.ModeRollbackJournal || db.mainPath == "" {
		return nil
	}
	path := db.journalPath()
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return nil
	}
	if !db.opts.Writable {
		return sharcerr.New(sharcerr.KindBusy, "leftover rollback journal requires a writable open to recover")
	}

	if err := db.locker.Exclusive(); err != nil {
		return err
	}
	if db.opts.FileShareMode != ShareExclusive {
		defer db.locker.Shared()
	}

	jf, err := os.Open(path)
	if err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "opening leftover rollback journal", err)
	}
	defer jf.Close()

	records, err := txn.ReplayBackward(jf, info.Size(), db.header.PageSize())
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := db.store.WritePage(pagesource.Pgno(rec.Pgno), rec.Data); err != nil {
			return err
		}
	}
	if err := db.store.Sync(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "removing recovered rollback journal", err)
	}

	page1, err := db.store.ReadPage(1)
	if err != nil {
		return err
	}
	header, err := format.ParseDBHeader(page1)
	if err != nil {
		return sharcerr.Wrap(sharcerr.KindInvalidDatabase, "parsing recovered header", err)
	}
	db.header = header
	return nil
}

func (db *DB) applyCaching() {
	capacity := db.opts.PageCacheSize
	if db.opts.PreloadToMemory {
		if full := int(db.store.PageCount()); full > capacity {
			capacity = full
		}
	}
	if capacity > 0 {
		db.store = pagesource.NewCached(db.store, capacity)
	}
}

func (db *DB) openWALSidecar() error {
	f, err := os.OpenFile(db.mainPath+"-wal", os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "opening wal file", err)
	}
	db.walFile = f

	info, err := f.Stat()
	if err != nil {
		return sharcerr.Wrap(sharcerr.KindIOFailure, "stat wal file", err)
	}
	if info.Size() < int64(format.WALHeaderSize) {
		salt1, salt2, err := wal.NewSalts()
		if err != nil {
			return err
		}
		db.salt1, db.salt2 = salt1, salt2
		return nil
	}

	r, err := wal.Read(f, info.Size())
	if err != nil {
		return err
	}
	db.walReader = r
	db.salt1, db.salt2 = r.Header().Salt1, r.Header().Salt2
	return nil
}

// readStore returns the current read view: the WAL merged in front of the
// main store if this database is in WAL mode and has at least one commit,
// otherwise the store itself.
func (db *DB) readStore() pagesource.Store {
	if db.mode == txn.ModeWAL && db.walReader != nil && db.walReader.HasCommit() {
		return pagesource.NewWALView(db.store, db.walFile, db.walReader)
	}
	return db.store
}

// pgnoStore adapts a Pgno-typed pagesource.Store to the plain-uint32
// signature btree.PageStore and schema.Load expect; pagesource.Pgno is a
// distinct named type, so Go does not satisfy that interface directly.
type pgnoStore struct {
	s    pagesource.Store
	used int
}

func (p pgnoStore) ReadPage(pgno uint32) ([]byte, error) { return p.s.ReadPage(pagesource.Pgno(pgno)) }
func (p pgnoStore) UsableSize() int                       { return p.used }

func (db *DB) schemaView() btree.PageStore {
	return pgnoStore{s: db.readStore(), used: db.header.UsableSize()}
}

func loadBuffer(mem *pagesource.Memory, buf []byte, pageSize int) error {
	pages := (len(buf) + pageSize - 1) / pageSize
	for i := 0; i < pages; i++ {
		start := i * pageSize
		end := start + pageSize
		page := make([]byte, pageSize)
		if end > len(buf) {
			end = len(buf)
		}
		copy(page, buf[start:end])
		if err := mem.WritePage(pagesource.Pgno(i+1), page); err != nil {
			return err
		}
	}
	return nil
}

func bootstrapPage1(pageSize int, header *format.DBHeader) []byte {
	buf := make([]byte, pageSize)
	copy(buf, header.Write())

	ph := &format.PageHeader{
		Type:             format.PageLeafTable,
		HeaderOffset:     format.DBHeaderSize,
		HeaderSize:       format.LeafHeaderSize,
		CellContentStart: uint16(pageSize),
	}
	ph.Write(buf)
	return buf
}

// Schema returns the tables, indexes, and views this database's
// sqlite_schema B-tree declared as of the last Open or committed Transaction.
func (db *DB) Schema() *schema.Schema { return db.sch }

// Cursor opens a read cursor over the table or index B-tree rooted at root,
// seeing every change committed so far (including, in WAL mode, frames not
// yet checkpointed back into the main file).
func (db *DB) Cursor(root uint32) *btree.Cursor {
	return btree.OpenAt(db.schemaView(), root)
}

// PageCount returns the number of pages currently visible through this
// handle (the WAL-merged count, in WAL mode).
func (db *DB) PageCount() uint32 { return db.readStore().PageCount() }

// ReadPage returns a copy of one page's raw on-disk bytes, decrypted and
// WAL-merged as needed. Intended for inspection tooling, not query execution.
func (db *DB) ReadPage(pgno uint32) ([]byte, error) {
	return db.readStore().ReadPage(pagesource.Pgno(pgno))
}

// Verify hashes every page currently reachable and compares it against the
// preload-time baseline (if PreloadToMemory was set) or a freshly taken one,
// returning the page numbers whose contents no longer match.
func (db *DB) Verify() ([]uint32, error) {
	if db.baseline == nil {
		m, err := integrity.Snapshot(db.readStore())
		if err != nil {
			return nil, err
		}
		db.baseline = m
		return nil, nil
	}
	return integrity.QuickCheck(db.readStore(), db.baseline)
}

// Begin starts a write transaction. The returned Transaction owns the
// reserved lock until Commit or Rollback.
func (db *DB) Begin() (*Transaction, error) {
	if !db.opts.Writable {
		return nil, sharcerr.New(sharcerr.KindInvalidArgument, "database was opened read-only")
	}

	cfg := txn.Config{
		Mode:   db.mode,
		Base:   db.readStore(),
		Header: db.header,
		Locker: db.locker,
	}

	t := &Transaction{db: db}
	switch db.mode {
	case txn.ModeRollbackJournal:
		jf, err := os.OpenFile(db.journalPath(), os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "opening rollback journal", err)
		}
		t.journal = jf
		cfg.Main = db.store
		cfg.Journal = jf
	case txn.ModeWAL:
		if db.walFile == nil {
			if err := db.openWALSidecar(); err != nil {
				return nil, err
			}
		}
		cfg.WALFile = db.walFile
		cfg.Salt1, cfg.Salt2 = db.salt1, db.salt2
	}

	inner, err := txn.Begin(cfg)
	if err != nil {
		if t.journal != nil {
			t.journal.Close()
		}
		return nil, err
	}
	t.inner = inner
	return t, nil
}

func (db *DB) journalPath() string {
	if db.mainPath == "" {
		return db.lockFile.Name() + "-journal"
	}
	return db.mainPath + "-journal"
}

// afterCommit refreshes the header and schema a committed Transaction may
// have changed, and opportunistically checkpoints the WAL once its frame
// count crosses the auto-checkpoint threshold.
func (db *DB) afterCommit() error {
	page1, err := db.readStore().ReadPage(1)
	if err != nil {
		return err
	}
	header, err := format.ParseDBHeader(page1)
	if err != nil {
		return err
	}
	db.header = header

	if db.mode == txn.ModeWAL && db.walFile != nil {
		info, err := db.walFile.Stat()
		if err == nil {
			if r, err := wal.Read(db.walFile, info.Size()); err == nil {
				db.walReader = r
				frameSize := int64(format.WALFrameHeaderSize) + int64(r.Header().PageSize)
				frames := (r.CommitEnd() - format.WALHeaderSize) / frameSize
				if r.HasCommit() && wal.ShouldAutoCheckpoint(int(frames)) {
					db.checkpoint(r)
				}
			}
		}
	}

	sch, err := schema.Load(db.schemaView())
	if err != nil {
		return err
	}
	db.sch = sch
	return nil
}

// checkpoint folds a WAL's committed frames back into the main file. It is
// a best-effort operation limited to plain file-backed stores (encrypted
// and memory-backed databases never use WAL mode, see the mode-selection
// notes above), so a type mismatch is simply skipped rather than surfaced
// as an error: the WAL remains valid and will be retried on a later commit.
func (db *DB) checkpoint(r *wal.Reader) error {
	store := db.store
	if c, ok := store.(*pagesource.Cached); ok {
		store = c.Underlying()
	}
	f, ok := store.(*pagesource.File)
	if !ok {
		return nil
	}

	if err := db.locker.Exclusive(); err != nil {
		return err
	}
	err := wal.Checkpoint(db.walFile, r, f.Raw())
	if err == nil {
		err = wal.Reset(db.walFile, uint32(db.header.PageSize()), db.salt1, db.salt2)
		if err == nil {
			db.walReader = nil
		}
	}

	if db.opts.FileShareMode != ShareExclusive {
		if lockErr := db.locker.Shared(); lockErr != nil && err == nil {
			err = lockErr
		}
	}
	return err
}

// Close releases every resource this handle holds. It does not commit or
// roll back an in-flight Transaction; the caller must do that first.
func (db *DB) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if db.locker != nil {
		record(db.locker.Unlock())
	}
	if db.store != nil {
		record(db.store.Close())
	}
	if db.walFile != nil {
		record(db.walFile.Close())
	}
	if db.lockFile != nil {
		record(db.lockFile.Close())
		if db.ownsLockFile {
			os.Remove(db.lockFile.Name())
		}
	}
	return firstErr
}

// Transaction is one in-flight write transaction, returned by DB.Begin.
type Transaction struct {
	db      *DB
	inner   *txn.Txn
	journal *os.File
}

// Insert inserts a new row, failing if rowid already exists on the table
// rooted at root.
func (t *Transaction) Insert(root uint32, rowid int64, payload []byte) error {
	return t.inner.Insert(root, rowid, payload)
}

// Update replaces an existing row's payload, failing if rowid is absent.
func (t *Transaction) Update(root uint32, rowid int64, payload []byte) error {
	return t.inner.Update(root, rowid, payload)
}

// Delete removes a row, failing if rowid is absent.
func (t *Transaction) Delete(root uint32, rowid int64) error {
	return t.inner.Delete(root, rowid)
}

// Cursor opens a read cursor over this transaction's own uncommitted
// writes, layered on top of everything already committed.
func (t *Transaction) Cursor(root uint32) *btree.Cursor {
	return btree.OpenAt(t.inner.Pages(), root)
}

// Commit durably persists the transaction's writes and refreshes the
// owning DB's header and schema.
func (t *Transaction) Commit() error {
	if err := t.inner.Commit(); err != nil {
		return err
	}
	t.cleanupJournal()
	return t.db.afterCommit()
}

// Rollback discards the transaction's writes without touching the main
// database.
func (t *Transaction) Rollback() error {
	err := t.inner.Rollback()
	t.cleanupJournal()
	return err
}

func (t *Transaction) cleanupJournal() {
	if t.journal == nil {
		return
	}
	name := t.journal.Name()
	t.journal.Close()
	os.Remove(name)
	t.journal = nil
}

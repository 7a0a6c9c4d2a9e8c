package sharc

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/revred/Sharc-sub000/internal/record"
	"github.com/revred/Sharc-sub000/sharcerr"
)

func schemaRow(name string, rootPage uint32) []byte {
	return record.Encode([]record.Value{
		record.TextValue("table"),
		record.TextValue(name),
		record.TextValue(name),
		record.IntValue(int64(rootPage)),
		record.TextValue("CREATE TABLE " + name + " (id INTEGER PRIMARY KEY, val TEXT)"),
	})
}

func TestOpenMemoryInsertCommitVisibleInSchemaAndCursor(t *testing.T) {
	db, err := Open(Options{Path: ":memory:", Writable: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if len(db.Schema().TableNames()) != 0 {
		t.Fatalf("expected empty schema on a fresh database, got %v", db.Schema().TableNames())
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Insert(1, 1, schemaRow("widgets", 2)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	tbl, ok := db.Schema().Table("widgets")
	if !ok {
		t.Fatalf("expected Schema to report table %q after commit", "widgets")
	}
	if tbl.RootPage != 2 {
		t.Errorf("RootPage = %d, want 2", tbl.RootPage)
	}

	cur := db.Cursor(1)
	if err := cur.MoveFirst(); err != nil {
		t.Fatalf("MoveFirst() error = %v", err)
	}
	if !cur.Valid() {
		t.Fatal("expected a row in sqlite_schema after commit")
	}
	if got := cur.Rowid(); got != 1 {
		t.Errorf("Rowid() = %d, want 1", got)
	}
}

func TestOpenMemoryRollbackLeavesSchemaUnchanged(t *testing.T) {
	db, err := Open(Options{Path: ":memory:", Writable: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Insert(1, 1, schemaRow("widgets", 2)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	if _, ok := db.Schema().Table("widgets"); ok {
		t.Fatal("expected rolled-back insert to be invisible")
	}
}

func TestOpenMemoryWithWALRequestedStillUsesRollbackJournal(t *testing.T) {
	// :memory: has no sidecar path to host WAL frames, so Open silently
	// downgrades to the rollback journal regardless of what's requested.
	// A real attempt to open "-wal" against an empty path would fail, so a
	// successful round trip here is the observable proof of the downgrade.
	db, err := Open(Options{Path: ":memory:", Writable: true, JournalMode: WALMode})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Insert(1, 1, schemaRow("widgets", 2)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func TestOpenFileWritableThenReopenReadOnlySeesCommittedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.db")

	db, err := Open(Options{Path: path, Writable: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Insert(1, 1, schemaRow("widgets", 2)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(Options{Path: path, Writable: false})
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	defer reopened.Close()

	if _, ok := reopened.Schema().Table("widgets"); !ok {
		t.Fatal("expected reopened database to see the committed table")
	}

	if _, err := reopened.Begin(); !sharcerr.OfKind(err, sharcerr.KindInvalidArgument) {
		t.Errorf("Begin() on a read-only handle: err = %v, want KindInvalidArgument", err)
	}
}

func TestOpenFileWALModeCommitVisibleAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.db")

	db, err := Open(Options{Path: path, Writable: true, JournalMode: WALMode})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Insert(1, 1, schemaRow("widgets", 2)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if _, ok := db.Schema().Table("widgets"); !ok {
		t.Fatal("expected the committing handle to see its own write")
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(Options{Path: path, Writable: true})
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	defer reopened.Close()

	if _, ok := reopened.Schema().Table("widgets"); !ok {
		t.Fatal("expected a later reopen to see the WAL-committed table")
	}
}

func TestOpenEncryptedFileRoundTripAndWrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.db")
	password := []byte("correct horse battery staple")

	db, err := Open(Options{
		Path:       path,
		Writable:   true,
		Encryption: &EncryptionOptions{Password: password},
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Insert(1, 1, schemaRow("widgets", 2)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(Options{
		Path:       path,
		Writable:   false,
		Encryption: &EncryptionOptions{Password: password},
	})
	if err != nil {
		t.Fatalf("reopen with correct password: error = %v", err)
	}
	defer reopened.Close()
	if _, ok := reopened.Schema().Table("widgets"); !ok {
		t.Fatal("expected decrypted reopen to see the committed table")
	}

	_, err = Open(Options{
		Path:       path,
		Writable:   false,
		Encryption: &EncryptionOptions{Password: []byte("wrong password")},
	})
	if !sharcerr.OfKind(err, sharcerr.KindWrongPassword) {
		t.Errorf("reopen with wrong password: err = %v, want KindWrongPassword", err)
	}
}

func TestOpenEncryptedFileForcesRollbackJournal(t *testing.T) {
	// Encrypted databases always use the rollback journal (WAL's fixed-stride
	// frame format cannot address the envelope's variable-stride records);
	// requesting WAL here must be silently downgraded rather than produce a
	// broken on-disk WAL file.
	path := filepath.Join(t.TempDir(), "secret-wal.db")
	db, err := Open(Options{
		Path:        path,
		Writable:    true,
		JournalMode: WALMode,
		Encryption:  &EncryptionOptions{Password: []byte("hunter2")},
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Insert(1, 1, schemaRow("widgets", 2)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func TestOpenFileMmapReadOnlySeesCommittedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mmap.db")

	db, err := Open(Options{Path: path, Writable: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Insert(1, 1, schemaRow("widgets", 2)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	mapped, err := Open(Options{Path: path, Writable: false, Mmap: true})
	if err != nil {
		t.Fatalf("mmap Open() error = %v", err)
	}
	defer mapped.Close()

	if _, ok := mapped.Schema().Table("widgets"); !ok {
		t.Fatal("expected mmap-backed reopen to see the committed table")
	}
}

func TestVerifyDetectsPageTamperedOutsideATransaction(t *testing.T) {
	db, err := Open(Options{Path: ":memory:", Writable: true, PreloadToMemory: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if clean, err := db.Verify(); err != nil {
		t.Fatalf("Verify() on an untouched baseline: error = %v", err)
	} else if len(clean) != 0 {
		t.Fatalf("Verify() on an untouched baseline = %v, want none", clean)
	}

	if err := db.store.WritePage(1, append([]byte{0xff}, make([]byte, db.header.PageSize()-1)...)); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}

	bad, err := db.Verify()
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(bad) != 1 || bad[0] != 1 {
		t.Errorf("Verify() = %v, want [1]", bad)
	}
}

// writeHotJournal hand-builds a rollback journal file recording preImage as
// page 1's pre-transaction image, the same bytes a writer's journalWriter
// would have synced to disk before a crash that left the main file's page 1
// rewritten but the journal not yet discarded.
func writeHotJournal(t *testing.T, path string, pageSize int, preImage []byte) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("sharcjr1")
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(pageSize))
	buf.Write(u32[:])
	binary.BigEndian.PutUint32(u32[:], 1)
	buf.Write(u32[:])
	binary.BigEndian.PutUint32(u32[:], 1) // pgno 1
	buf.Write(u32[:])
	buf.Write(preImage)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing hot journal: %v", err)
	}
}

func TestOpenFileRecoversHotRollbackJournalAfterCrashedCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash.db")

	db, err := Open(Options{Path: path, Writable: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Insert(1, 1, schemaRow("widgets", 2)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	preCrashPage1, err := db.ReadPage(1)
	if err != nil {
		t.Fatalf("ReadPage(1) error = %v", err)
	}
	pageSize := db.header.PageSize()

	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Simulate a writer that synced its journal (journal.Finish) and then
	// crashed partway through rewriting the main file: page 1 on disk is
	// torn, but the journal still holds its pre-transaction image.
	torn := bytes.Repeat([]byte{0xee}, pageSize)
	raw, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("opening main file to tear it: %v", err)
	}
	if _, err := raw.WriteAt(torn, 0); err != nil {
		t.Fatalf("writing torn page 1: %v", err)
	}
	if err := raw.Close(); err != nil {
		t.Fatalf("closing main file: %v", err)
	}
	journalPath := path + "-journal"
	writeHotJournal(t, journalPath, pageSize, preCrashPage1)

	reopened, err := Open(Options{Path: path, Writable: true})
	if err != nil {
		t.Fatalf("reopen after crash: Open() error = %v", err)
	}
	defer reopened.Close()

	if _, err := os.Stat(journalPath); !os.IsNotExist(err) {
		t.Errorf("expected recovery to remove the journal, stat err = %v", err)
	}

	got, err := reopened.ReadPage(1)
	if err != nil {
		t.Fatalf("ReadPage(1) after recovery: error = %v", err)
	}
	if !bytes.Equal(got, preCrashPage1) {
		t.Errorf("page 1 after recovery = %x, want pre-crash image %x", got, preCrashPage1)
	}

	if _, ok := reopened.Schema().Table("widgets"); !ok {
		t.Fatal("expected the recovered schema to still see the committed table")
	}
}

func TestOpenFileReadOnlyRefusesToRecoverHotJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash-ro.db")

	db, err := Open(Options{Path: path, Writable: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := tx.Insert(1, 1, schemaRow("widgets", 2)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	preCrashPage1, err := db.ReadPage(1)
	if err != nil {
		t.Fatalf("ReadPage(1) error = %v", err)
	}
	pageSize := db.header.PageSize()
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	writeHotJournal(t, path+"-journal", pageSize, preCrashPage1)

	_, err = Open(Options{Path: path, Writable: false})
	if !sharcerr.OfKind(err, sharcerr.KindBusy) {
		t.Errorf("reopen read-only with a hot journal: err = %v, want KindBusy", err)
	}
}

package sharc

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// TestCrossEngineReadsModerncSQLiteWrittenFile writes a database with a
// second, independent pure-Go SQLite implementation and reads it back
// through this package, checking the two engines agree on page layout
// rather than just on our own round trip.
func TestCrossEngineReadsModerncSQLiteWrittenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cross.db")

	sdb, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	// The rollback journal keeps everything in one file; this package's
	// WAL support is exercised separately in db_test.go, and comparing
	// against it here would mean replaying modernc's WAL framing too.
	if _, err := sdb.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		t.Fatalf("setting journal_mode: %v", err)
	}
	if _, err := sdb.Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT, price REAL)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	if _, err := sdb.Exec("CREATE INDEX idx_widgets_name ON widgets (name)"); err != nil {
		t.Fatalf("CREATE INDEX: %v", err)
	}

	const rowCount = 25
	tx, err := sdb.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	stmt, err := tx.Prepare("INSERT INTO widgets (id, name, price) VALUES (?, ?, ?)")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	for i := 1; i <= rowCount; i++ {
		if _, err := stmt.Exec(i, fmt.Sprintf("widget-%02d", i), float64(i)*1.5); err != nil {
			t.Fatalf("Exec insert %d: %v", i, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := sdb.Close(); err != nil {
		t.Fatalf("sdb.Close(): %v", err)
	}

	db, err := Open(Options{Path: path, Writable: false})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	tbl, ok := db.Schema().Table("widgets")
	if !ok {
		t.Fatal("expected Schema to see the widgets table")
	}
	if len(tbl.Columns) != 3 {
		t.Errorf("Columns = %v, want 3 columns", tbl.Columns)
	}

	idx := db.Schema().IndexesForTable("widgets")
	if len(idx) != 1 || idx[0].Name != "idx_widgets_name" {
		t.Errorf("IndexesForTable(widgets) = %v, want [idx_widgets_name]", idx)
	}

	cur := db.Cursor(tbl.RootPage)
	if err := cur.MoveFirst(); err != nil {
		t.Fatalf("MoveFirst() error = %v", err)
	}
	seen := 0
	for cur.Valid() {
		seen++
		if _, err := cur.Payload(); err != nil {
			t.Fatalf("Payload() on row %d: %v", cur.Rowid(), err)
		}
		if err := cur.MoveNext(); err != nil {
			t.Fatalf("MoveNext() error = %v", err)
		}
	}
	if seen != rowCount {
		t.Errorf("rows visited = %d, want %d", seen, rowCount)
	}
}

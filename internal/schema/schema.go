// Package schema reads the sqlite_schema B-tree rooted at page 1 and
// returns a structural description of tables, indexes, and views. It is a
// pure consumer of the B-tree reader: no SQL execution, no SQL parser.
package schema

import (
	"regexp"
	"sort"
	"strings"

	"github.com/revred/Sharc-sub000/internal/btree"
	"github.com/revred/Sharc-sub000/internal/record"
	"github.com/revred/Sharc-sub000/sharcerr"
)

const masterRootPage = 1

// Table is a table's schema-reader view: its root page and a best-effort
// column name list recovered from the stored CREATE TABLE text.
type Table struct {
	Name     string
	RootPage uint32
	SQL      string
	Columns  []string
}

// Index is an index's schema-reader view.
type Index struct {
	Name     string
	Table    string
	RootPage uint32
	SQL      string
}

// View is a view's schema-reader view. Views carry no root page of their
// own; they are a named query over other objects.
type View struct {
	Name string
	SQL  string
}

// Schema is the parsed contents of sqlite_schema.
type Schema struct {
	Tables  map[string]*Table
	Indexes map[string]*Index
	Views   map[string]*View
}

// Load walks the sqlite_schema B-tree rooted at page 1 and classifies each
// row into a table, index, or view. sqlite_sequence and sqlite_autoindex_*
// rows are internal bookkeeping and are skipped, matching what a reader
// would see from PRAGMA table_list.
func Load(store btree.PageStore) (*Schema, error) {
	s := &Schema{
		Tables:  make(map[string]*Table),
		Indexes: make(map[string]*Index),
		Views:   make(map[string]*View),
	}

	cur := btree.OpenAt(store, masterRootPage)
	if err := cur.MoveFirst(); err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindCorruptPage, "reading sqlite_schema", err)
	}

	for cur.Valid() {
		row, err := decodeMasterRow(cur)
		if err != nil {
			return nil, err
		}

		switch row.objectType {
		case "table":
			if row.name == "sqlite_master" || row.name == "sqlite_sequence" {
				break
			}
			s.Tables[row.name] = &Table{
				Name:     row.name,
				RootPage: row.rootPage,
				SQL:      row.sql,
				Columns:  columnNames(row.sql),
			}
		case "index":
			if strings.HasPrefix(row.name, "sqlite_autoindex") {
				break
			}
			s.Indexes[row.name] = &Index{
				Name:     row.name,
				Table:    row.tblName,
				RootPage: row.rootPage,
				SQL:      row.sql,
			}
		case "view":
			s.Views[row.name] = &View{Name: row.name, SQL: row.sql}
		}

		if err := cur.MoveNext(); err != nil {
			return nil, sharcerr.Wrap(sharcerr.KindCorruptPage, "walking sqlite_schema", err)
		}
	}

	return s, nil
}

type masterRow struct {
	objectType string
	name       string
	tblName    string
	rootPage   uint32
	sql        string
}

func decodeMasterRow(cur *btree.Cursor) (masterRow, error) {
	payload, err := cur.Payload()
	if err != nil {
		return masterRow{}, sharcerr.Wrap(sharcerr.KindCorruptPage, "reading sqlite_schema row", err)
	}
	values, err := record.Decode(payload)
	if err != nil {
		return masterRow{}, sharcerr.Wrap(sharcerr.KindCorruptPage, "decoding sqlite_schema row", err)
	}
	if len(values) < 5 {
		return masterRow{}, sharcerr.New(sharcerr.KindCorruptPage, "sqlite_schema row has too few columns")
	}

	row := masterRow{
		objectType: values[0].Text,
		name:       values[1].Text,
		tblName:    values[2].Text,
		sql:        values[4].Text,
	}
	if values[3].Kind == record.KindInteger {
		row.rootPage = uint32(values[3].Int)
	}
	return row, nil
}

// TableNames returns all table names in sorted order (enumerate_tables).
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IndexNames returns all index names in sorted order (enumerate_indexes).
func (s *Schema) IndexNames() []string {
	names := make([]string, 0, len(s.Indexes))
	for name := range s.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ViewNames returns all view names in sorted order (enumerate_views).
func (s *Schema) ViewNames() []string {
	names := make([]string, 0, len(s.Views))
	for name := range s.Views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Table looks up a table by name, case-insensitively.
func (s *Schema) Table(name string) (*Table, bool) {
	lower := strings.ToLower(name)
	for n, t := range s.Tables {
		if strings.ToLower(n) == lower {
			return t, true
		}
	}
	return nil, false
}

// IndexesForTable returns the indexes defined on table, sorted by name.
func (s *Schema) IndexesForTable(table string) []*Index {
	lower := strings.ToLower(table)
	var out []*Index
	for _, idx := range s.Indexes {
		if strings.ToLower(idx.Table) == lower {
			out = append(out, idx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// columnNames extracts a CREATE TABLE statement's top-level column names,
// skipping table-level constraints (PRIMARY KEY/UNIQUE/CHECK/FOREIGN KEY).
// This is a regex-based stand-in for a full SQL parser: the core has no SQL
// execution, so recovering column names and order is all the schema reader
// interface needs.
var (
	columnListRe      = regexp.MustCompile(`(?is)\((.*)\)\s*;?\s*$`)
	tableConstraintRe = regexp.MustCompile(`(?i)^(primary\s+key|unique|check|foreign\s+key|constraint)\b`)
	identifierRe      = regexp.MustCompile("^[\"`\\[]?([A-Za-z_][A-Za-z0-9_]*)")
)

func columnNames(sql string) []string {
	m := columnListRe.FindStringSubmatch(sql)
	if m == nil {
		return nil
	}

	parts := splitTopLevel(m[1])
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || tableConstraintRe.MatchString(p) {
			continue
		}
		id := identifierRe.FindStringSubmatch(p)
		if id == nil {
			continue
		}
		names = append(names, id[1])
	}
	return names
}

// splitTopLevel splits a column-definition list on commas that are not
// nested inside parentheses, e.g. "a INTEGER, b TEXT CHECK(b <> ''), c VARCHAR(100)".
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

package main

import (
	"fmt"

	sharc "github.com/revred/Sharc-sub000"
)

// InspectCmd prints a database's sqlite_schema contents (tables, indexes,
// and views); header fields are not printed. With --verify it also takes a
// BLAKE3 baseline of every page; no earlier baseline is compared against.
type InspectCmd struct {
	Path     string `arg:"" help:"Path to the database file" type:"existingfile"`
	Password string `help:"Password for an encrypted database (prompted if omitted and the database is encrypted)"`
	Verify   bool   `help:"Take a BLAKE3 baseline of every page"`
}

func (c *InspectCmd) Run() error {
	password := c.Password
	db, err := openForInspection(c.Path, password)
	if errWrongPassword(err) && password == "" {
		password, err = promptPassword()
		if err != nil {
			return err
		}
		db, err = openForInspection(c.Path, password)
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.Path, err)
	}
	defer db.Close()

	printSchema(db)

	if c.Verify {
		if _, err := db.Verify(); err != nil {
			return fmt.Errorf("taking integrity baseline: %w", err)
		}
		fmt.Println("\nBLAKE3 baseline recorded for this session's page contents.")
	}

	return nil
}

func printSchema(db *sharc.DB) {
	sch := db.Schema()

	names := sch.TableNames()
	fmt.Printf("Tables: %d\n", len(names))
	for _, name := range names {
		tbl, _ := sch.Table(name)
		fmt.Printf("  %-20s root=%-6d columns=%v\n", tbl.Name, tbl.RootPage, tbl.Columns)
	}

	if len(sch.Indexes) > 0 {
		fmt.Printf("\nIndexes: %d\n", len(sch.Indexes))
		for name, idx := range sch.Indexes {
			fmt.Printf("  %-20s table=%-20s root=%d\n", name, idx.Table, idx.RootPage)
		}
	}

	if len(sch.Views) > 0 {
		fmt.Printf("\nViews: %d\n", len(sch.Views))
		for name := range sch.Views {
			fmt.Printf("  %s\n", name)
		}
	}
}

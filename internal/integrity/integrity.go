// Package integrity computes a lightweight, non-cryptographic corruption
// signal over a database's pages: a BLAKE3 digest per page, independent of
// whatever AEAD authentication tag an encrypted envelope already carries.
// It backs preload-to-memory's consistency check and the CLI's --verify
// flag, in the spirit of SQLite's PRAGMA quick_check.
package integrity

import (
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/revred/Sharc-sub000/internal/pagesource"
	"github.com/revred/Sharc-sub000/sharcerr"
)

// PageHash is a hex-encoded BLAKE3 digest of one page's bytes.
type PageHash string

// HashPage returns the BLAKE3 digest of a single page's bytes.
func HashPage(data []byte) PageHash {
	h := blake3.Sum256(data)
	return PageHash(hex.EncodeToString(h[:]))
}

// Manifest is a snapshot of every page's hash, taken at preload time so a
// later quick-check can detect pages that changed outside of a tracked
// transaction: a torn write, a corrupted sector, an out-of-band edit.
type Manifest struct {
	PageSize int
	Hashes   map[uint32]PageHash
}

// Snapshot computes a Manifest over every page currently in store.
func Snapshot(store pagesource.Store) (*Manifest, error) {
	m := &Manifest{PageSize: store.PageSize(), Hashes: make(map[uint32]PageHash)}
	count := store.PageCount()
	for pgno := uint32(1); pgno <= count; pgno++ {
		data, err := store.ReadPage(pagesource.Pgno(pgno))
		if err != nil {
			return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "reading page during hash snapshot", err)
		}
		m.Hashes[pgno] = HashPage(data)
	}
	return m, nil
}

// QuickCheck recomputes every page's hash against a prior Manifest and
// returns the mismatched page numbers in ascending order. An empty result
// means every page the baseline saw is still byte-identical.
func QuickCheck(store pagesource.Store, baseline *Manifest) ([]uint32, error) {
	var mismatched []uint32
	for pgno, want := range baseline.Hashes {
		data, err := store.ReadPage(pagesource.Pgno(pgno))
		if err != nil {
			return nil, sharcerr.Wrap(sharcerr.KindIOFailure, "reading page during quick-check", err)
		}
		if HashPage(data) != want {
			mismatched = append(mismatched, pgno)
		}
	}
	sort.Slice(mismatched, func(i, j int) bool { return mismatched[i] < mismatched[j] })
	return mismatched, nil
}

// Verify is the CLI --verify entry point: it hashes every page reachable
// through store and fails if the store's page count falls short of what
// the database header declares, which a truncated file would exhibit even
// before any single page's bytes are examined.
func Verify(store pagesource.Store, declaredPageCount uint32) (*Manifest, error) {
	if declaredPageCount != 0 && store.PageCount() < declaredPageCount {
		return nil, sharcerr.New(sharcerr.KindIntegrityFailure,
			"page count is less than the database header declares")
	}
	m, err := Snapshot(store)
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.KindIntegrityFailure, "quick-check hashing failed", err)
	}
	return m, nil
}

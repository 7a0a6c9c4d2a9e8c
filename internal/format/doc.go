// Package format parses and serializes the fixed-size binary headers that
// make up a Sharc/SQLite file: the 100-byte database header, the 8/12-byte
// B-tree page header, the 32-byte WAL header, the 24-byte WAL frame header,
// and the 128-byte encryption envelope. All multibyte integers are
// big-endian, per spec.md §3.
package format

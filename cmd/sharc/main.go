// Command sharc inspects and dumps SQLite-file-format-compatible databases
// without going through any SQL engine.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	sharc "github.com/revred/Sharc-sub000"
	"github.com/revred/Sharc-sub000/sharcerr"
)

const version = "0.1.0"

// CLI defines the command-line interface for sharc.
var CLI struct {
	Inspect InspectCmd `cmd:"" help:"Print a database's schema"`
	Dump    DumpCmd    `cmd:"" help:"Export a range of pages from a database"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("sharc"),
		kong.Description("Inspect and dump SQLite-file-format-compatible databases"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// VersionCmd prints the tool version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("sharc version %s\n", version)
	return nil
}

func openForInspection(path string, password string) (*sharc.DB, error) {
	opts := sharc.Options{Path: path, Writable: false}
	if password != "" {
		opts.Encryption = &sharc.EncryptionOptions{Password: []byte(password)}
	}
	return sharc.Open(opts)
}

func errWrongPassword(err error) bool {
	return sharcerr.OfKind(err, sharcerr.KindWrongPassword)
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "password: ")
	var pw string
	if _, err := fmt.Scanln(&pw); err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return pw, nil
}

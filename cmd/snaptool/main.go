// Command snaptool is a small smoke-test driver for the snapshot
// subsystem: it opens a backing file, loads an empty live snapshot (no
// existing cookie is read), writes one new snapshot, and prints the
// resulting cookie in its human-readable form.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/emberstore/ember/advanced/compression"
	"github.com/emberstore/ember/blockfile"
	"github.com/emberstore/ember/snapconf"
	"github.com/emberstore/ember/snapshot"
)

func main() {
	path := flag.String("file", "", "backing file path")
	name := flag.String("name", "snaptool", "block object name")
	rootSize := flag.Int("root-size", 4096, "bytes to write as the new root page (0 for an empty tree)")
	comp := flag.String("compression", "none", "extent/root page compression algorithm: none, lz4, snappy, or zstd")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: snaptool -file <path> [-name NAME] [-root-size N] [-compression ALGO]")
		os.Exit(2)
	}

	if err := run(*path, *name, *rootSize, *comp); err != nil {
		log.Fatalf("snaptool: %v", err)
	}
}

func run(path, name string, rootSize int, comp string) error {
	cfg := snapconf.Default()
	cfg.ExtentCompression = comp
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var engine *compression.Engine
	if comp != "none" {
		engine = compression.NewCompressionEngine()
	}

	f, err := blockfile.Open(path, engine, comp)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	b := snapshot.Open(name, f, cfg, nil)

	var dsk []byte
	if err := b.Load(&dsk, nil, false); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	defer b.Unload()

	var buf []byte
	if rootSize > 0 {
		buf = make([]byte, rootSize)
		for i := range buf {
			buf[i] = byte('R')
		}
	}

	entries := []*snapshot.ListEntry{
		{Name: "snap-1", Flags: snapshot.FlagAdd},
	}

	if err := b.Snapshot(buf, entries); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	desc, err := snapshot.FormatCookie(entries[0].Raw)
	if err != nil {
		return fmt.Errorf("format cookie: %w", err)
	}
	fmt.Println(desc)
	return nil
}

package snapshot

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/emberstore/ember/blockfile"
	"github.com/emberstore/ember/snapconf"
	"github.com/emberstore/ember/snaperrors"
)

func openTestBlock(t *testing.T) (*Block, *blockfile.File) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.db")
	f, err := blockfile.Open(path, nil, "none")
	if err != nil {
		t.Fatalf("blockfile.Open: %v", err)
	}
	t.Cleanup(func() { f.Close() })

	cfg := snapconf.Default()
	cfg.CheckExtentLists = true
	return Open("test", f, cfg, nil), f
}

func rootPage(b byte, n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

// S1: empty snapshot.
func TestLoadEmptySnapshot(t *testing.T) {
	b, _ := openTestBlock(t)

	var dsk []byte
	if err := b.Load(&dsk, nil, false); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dsk != nil {
		t.Errorf("dsk = %v, want nil for an empty tree", dsk)
	}
	if !b.IsLoaded() {
		t.Error("IsLoaded() = false after successful Load")
	}
	if err := b.Unload(); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if b.IsLoaded() {
		t.Error("IsLoaded() = true after Unload")
	}
}

func TestLoadTwiceFails(t *testing.T) {
	b, _ := openTestBlock(t)
	var dsk []byte
	if err := b.Load(&dsk, nil, false); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if err := b.Load(&dsk, nil, false); err == nil {
		t.Fatal("expected second Load to fail")
	} else if !errorsIs(err, snaperrors.ErrAlreadyLoaded) {
		t.Errorf("got %v, want ErrAlreadyLoaded", err)
	}
}

func TestUnloadWithoutLoadFails(t *testing.T) {
	b, _ := openTestBlock(t)
	if err := b.Unload(); err == nil {
		t.Fatal("expected Unload without Load to fail")
	} else if !errorsIs(err, snaperrors.ErrNotLoaded) {
		t.Errorf("got %v, want ErrNotLoaded", err)
	}
}

// S2: create first snapshot.
func TestSnapshotCreateFirst(t *testing.T) {
	b, f := openTestBlock(t)

	var dsk []byte
	if err := b.Load(&dsk, nil, false); err != nil {
		t.Fatalf("Load: %v", err)
	}

	root := rootPage('R', 4096)
	entries := []*ListEntry{{Name: "s1", Flags: FlagAdd}}
	if err := b.Snapshot(root, entries); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(entries[0].Raw) == 0 {
		t.Fatal("s1.Raw is empty after creation")
	}

	var decoded State
	if err := DecodeCookie(entries[0].Raw, &decoded); err != nil {
		t.Fatalf("DecodeCookie: %v", err)
	}
	if decoded.RootSize != 4096 {
		t.Errorf("root size = %d, want 4096", decoded.RootSize)
	}
	if decoded.RootCksum == 0 {
		t.Error("root cksum = 0, want nonzero")
	}

	size, err := f.Size()
	if err != nil {
		t.Fatalf("f.Size: %v", err)
	}
	if decoded.FileSize != size {
		t.Errorf("file size = %d, want %d (actual file length after fsync)", decoded.FileSize, size)
	}
}

// helper: build a chain of n historical snapshots by repeatedly calling
// Snapshot, returning the entries slice. Every entry carries a real
// cookie and has its flags cleared, so all are historical for the next
// round (the last one was the most recent ADD).
func buildChain(t *testing.T, b *Block, names ...string) []*ListEntry {
	t.Helper()
	var entries []*ListEntry
	for i, name := range names {
		entries = append(entries, &ListEntry{Name: name, Flags: FlagAdd})
		if err := b.Snapshot(rootPage(byte('A'+i), 256), entries); err != nil {
			t.Fatalf("Snapshot(%s): %v", name, err)
		}
		entries[len(entries)-1].Flags = 0 // now historical for the next round
	}
	return entries
}

// S3: delete-middle.
func TestSnapshotDeleteMiddle(t *testing.T) {
	b, _ := openTestBlock(t)
	var dsk []byte
	if err := b.Load(&dsk, nil, false); err != nil {
		t.Fatalf("Load: %v", err)
	}

	chain := buildChain(t, b, "s1", "s2", "s3")
	s1, s2, s3 := chain[0], chain[1], chain[2]
	s3RawBefore := append([]byte(nil), s3.Raw...)

	entries := []*ListEntry{
		{Name: s1.Name, Raw: s1.Raw},
		{Name: s2.Name, Raw: s2.Raw, Flags: FlagDelete},
		{Name: s3.Name, Raw: s3.Raw},
		{Name: "s4", Flags: FlagAdd},
	}
	if err := b.Snapshot(rootPage('Z', 256), entries); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if len(entries[3].Raw) == 0 {
		t.Fatal("s4.Raw is empty")
	}
	if !entries[2].Flags.Has(FlagUpdate) {
		t.Error("s3 should be flagged UPDATE after s2's deletion")
	}
	if bytes.Equal(entries[2].Raw, s3RawBefore) {
		t.Error("s3.Raw should have been rewritten")
	}
	if b.LiveState().Avail.Empty() {
		t.Error("live avail should contain s2's and the old s3's extent-list storage")
	}
}

// S4: delete-last.
func TestSnapshotDeleteLast(t *testing.T) {
	b, _ := openTestBlock(t)
	var dsk []byte
	if err := b.Load(&dsk, nil, false); err != nil {
		t.Fatalf("Load: %v", err)
	}

	chain := buildChain(t, b, "s1", "s2")
	s1, s2 := chain[0], chain[1]

	entries := []*ListEntry{
		{Name: s1.Name, Raw: s1.Raw},
		{Name: s2.Name, Raw: s2.Raw, Flags: FlagDelete},
		{Name: "s3", Flags: FlagAdd},
	}
	if err := b.Snapshot(rootPage('Y', 256), entries); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(entries[2].Raw) == 0 {
		t.Fatal("s3.Raw is empty")
	}
	if b.LiveState().Avail.Empty() {
		t.Error("live avail should contain s2's extent-list storage")
	}
}

// S5: delete-run.
func TestSnapshotDeleteRun(t *testing.T) {
	b, _ := openTestBlock(t)
	var dsk []byte
	if err := b.Load(&dsk, nil, false); err != nil {
		t.Fatalf("Load: %v", err)
	}

	chain := buildChain(t, b, "s1", "s2", "s3")
	s1, s2, s3 := chain[0], chain[1], chain[2]

	entries := []*ListEntry{
		{Name: s1.Name, Raw: s1.Raw, Flags: FlagDelete},
		{Name: s2.Name, Raw: s2.Raw, Flags: FlagDelete},
		{Name: s3.Name, Raw: s3.Raw},
		{Name: "s4", Flags: FlagAdd},
	}
	if err := b.Snapshot(rootPage('X', 256), entries); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !entries[2].Flags.Has(FlagUpdate) {
		t.Error("s3 should be flagged UPDATE after the s1,s2 delete-run")
	}
	if len(entries[3].Raw) == 0 {
		t.Fatal("s4.Raw is empty")
	}
	if b.LiveState().Avail.Empty() {
		t.Error("live avail should contain freed extent-list storage from the delete-run")
	}
}

// S6: load-then-truncate.
func TestLoadTruncatesCrashTail(t *testing.T) {
	b, f := openTestBlock(t)
	var dsk []byte
	if err := b.Load(&dsk, nil, false); err != nil {
		t.Fatalf("Load: %v", err)
	}

	entries := []*ListEntry{{Name: "s1", Flags: FlagAdd}}
	if err := b.Snapshot(rootPage('R', 256), entries); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := b.Unload(); err != nil {
		t.Fatalf("Unload: %v", err)
	}

	sizeBefore, err := f.Size()
	if err != nil {
		t.Fatalf("f.Size: %v", err)
	}

	// Simulate a crashed writer: bytes written past the snapshot.
	if _, err := f.WriteOff(rootPage('!', 128)); err != nil {
		t.Fatalf("simulate crash tail: %v", err)
	}
	sizeWithTail, err := f.Size()
	if err != nil {
		t.Fatalf("f.Size: %v", err)
	}
	if sizeWithTail <= sizeBefore {
		t.Fatalf("expected crash tail to grow the file, before=%d after=%d", sizeBefore, sizeWithTail)
	}

	t.Run("readonly leaves file untouched", func(t *testing.T) {
		b2 := Open("test-ro", f, snapconf.Default(), nil)
		var dsk2 []byte
		if err := b2.Load(&dsk2, entries[0].Raw, true); err != nil {
			t.Fatalf("Load readonly: %v", err)
		}
		defer b2.Unload()

		size, err := f.Size()
		if err != nil {
			t.Fatalf("f.Size: %v", err)
		}
		if size != sizeWithTail {
			t.Errorf("readonly load changed file size: got %d, want %d", size, sizeWithTail)
		}
	})

	t.Run("writable truncates to recorded file_size", func(t *testing.T) {
		b3 := Open("test-rw", f, snapconf.Default(), nil)
		var dsk3 []byte
		if err := b3.Load(&dsk3, entries[0].Raw, false); err != nil {
			t.Fatalf("Load writable: %v", err)
		}
		defer b3.Unload()

		size, err := f.Size()
		if err != nil {
			t.Fatalf("f.Size: %v", err)
		}
		if size != sizeBefore {
			t.Errorf("writable load truncated to %d, want %d", size, sizeBefore)
		}
	})
}

func TestSnapshotRejectsMalformedList(t *testing.T) {
	b, _ := openTestBlock(t)
	var dsk []byte
	if err := b.Load(&dsk, nil, false); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cases := []struct {
		name    string
		entries []*ListEntry
	}{
		{"no ADD entry", []*ListEntry{{Name: "s1", Raw: []byte("x")}}},
		{"ADD not last", []*ListEntry{{Name: "s1", Flags: FlagAdd}, {Name: "s2", Raw: []byte("x")}}},
		{"two ADD entries", []*ListEntry{{Name: "s1", Flags: FlagAdd}, {Name: "s2", Flags: FlagAdd}}},
		{"historical with no cookie", []*ListEntry{{Name: "s1"}, {Name: "s2", Flags: FlagAdd}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := b.Snapshot(nil, tc.entries); err == nil {
				t.Fatal("expected error for malformed snapshot list")
			} else if !errorsIs(err, snaperrors.ErrInvalidArgument) {
				t.Errorf("got %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func errorsIs(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

package snapshot

import (
	"fmt"

	"github.com/emberstore/ember/blockfile"
	"github.com/emberstore/ember/extent"
	"github.com/emberstore/ember/snaperrors"
)

func readExtentList(f *blockfile.File, name string, loc blockfile.Locator) (*extent.List, error) {
	return extent.ReadFrom(f, name, loc)
}

// validateSnapshotList checks the shape guarantees §4.5 depends on:
// exactly one ADD entry, and it is last; every non-ADD entry carries a
// cookie.
func validateSnapshotList(snaps []*ListEntry) error {
	if len(snaps) == 0 {
		return fmt.Errorf("empty snapshot list: %w", snaperrors.ErrInvalidArgument)
	}

	addCount := 0
	for i, s := range snaps {
		if s.Flags.Has(FlagAdd) {
			addCount++
			if i != len(snaps)-1 {
				return fmt.Errorf("ADD entry %q is not last: %w", s.Name, snaperrors.ErrInvalidArgument)
			}
			if len(s.Raw) != 0 {
				return fmt.Errorf("ADD entry %q carries a cookie: %w", s.Name, snaperrors.ErrInvalidArgument)
			}
		} else if len(s.Raw) == 0 {
			return fmt.Errorf("historical entry %q has no cookie: %w", s.Name, snaperrors.ErrInvalidArgument)
		}
	}
	if addCount != 1 {
		return fmt.Errorf("expected exactly one ADD entry, found %d: %w", addCount, snaperrors.ErrInvalidArgument)
	}
	return nil
}

// freeNormal is an "ordinary" free: the range is routed through the
// live snapshot's discard accounting for this epoch.
func (b *Block) freeNormal(r extent.Range) {
	b.live.Discard.Free(r)
}

// freeDirect returns a range straight to the live avail list, bypassing
// discard — used for the on-disk regions that held a retired
// snapshot's own extent lists, which were never tracked on any alloc
// list and so need no epoch-accounting detour.
func (b *Block) freeDirect(r extent.Range) {
	b.live.Avail.Free(r)
}

func locatorRange(loc blockfile.Locator) (extent.Range, bool) {
	if loc.Invalid() {
		return extent.Range{}, false
	}
	return extent.Range{Start: loc.Offset, Len: loc.Size}, true
}

// Snapshot is the create-and-process path: it writes buf as the new
// root page (or records an empty tree if buf is nil), then folds
// deletions, merges, and rewrites across snaps, producing a fresh
// cookie for the entry flagged ADD. It returns only after the backing
// file has been fsynced, so a successful return means the new snapshot
// set is durable.
func (b *Block) Snapshot(buf []byte, snaps []*ListEntry) error {
	if err := validateSnapshotList(snaps); err != nil {
		return err
	}

	// §4.5.2: write the new root. Like __wt_block_write_off, the
	// freshly written block is entered onto the live alloc list: it is
	// live, in-use file space until something later frees it.
	if buf != nil {
		loc, err := b.file.WriteOff(buf)
		if err != nil {
			return fmt.Errorf("%s: write root page: %w", b.name, err)
		}
		b.live.RootOffset, b.live.RootSize, b.live.RootCksum = loc.Offset, loc.Size, loc.Cksum
		b.live.Alloc.Alloc(extent.Range{Start: loc.Offset, Len: loc.Size})
	} else {
		b.live.RootOffset, b.live.RootSize, b.live.RootCksum = blockfile.InvalidOffset, 0, 0
	}
	b.live.Version = b.cfg.Version

	// §4.5.3: load historical state for affected entries, no lock held.
	found := false
	for i, s := range snaps {
		if s.Flags.Has(FlagAdd) {
			continue
		}
		needLoad := s.Flags.Has(FlagDelete) || i == 0 || snaps[i-1].Flags.Has(FlagDelete)
		if !needLoad {
			continue
		}

		state := &State{}
		if err := InitState(b, state, false); err != nil {
			b.freeTransient(snaps)
			return err
		}
		if err := DecodeCookie(s.Raw, state); err != nil {
			b.freeTransient(snaps)
			return fmt.Errorf("%s: decode historical cookie %q: %w", b.name, s.Name, err)
		}

		var err error
		if state.Alloc, err = readExtentList(b.file, "alloc", state.Alloc.Locator); err != nil {
			b.freeTransient(snaps)
			return fmt.Errorf("%s: read alloc for %q: %w", b.name, s.Name, err)
		}
		if state.Avail, err = readExtentList(b.file, "avail", state.Avail.Locator); err != nil {
			b.freeTransient(snaps)
			return fmt.Errorf("%s: read avail for %q: %w", b.name, s.Name, err)
		}
		if state.Discard, err = readExtentList(b.file, "discard", state.Discard.Locator); err != nil {
			b.freeTransient(snaps)
			return fmt.Errorf("%s: read discard for %q: %w", b.name, s.Name, err)
		}

		s.priv = state
		found = true
	}
	defer b.freeTransient(snaps)

	// §4.5.4: enter the live lock for the rest of the operation.
	b.liveLock.Lock()
	locked := true
	unlock := func() {
		if locked {
			b.liveLock.Unlock()
			locked = false
		}
	}
	defer unlock()

	if found {
		if err := b.deleteAndMerge(snaps); err != nil {
			return err
		}
	}

	// §4.5.7: finalize the live/new snapshot.
	add := snaps[len(snaps)-1]
	size, err := b.file.Size()
	if err != nil {
		return fmt.Errorf("%s: file size: %w", b.name, err)
	}
	if newSize, truncated := b.live.Avail.Truncate(size); truncated {
		if err := b.file.Truncate(newSize); err != nil {
			return fmt.Errorf("%s: truncate avail tail: %w", b.name, err)
		}
	}
	if err := b.update(add, &b.live); err != nil {
		return err
	}
	b.live.Alloc = extent.New("alloc")
	b.live.Discard = extent.New("discard")
	// Avail is retained in memory so subsequent allocations can proceed.

	unlock()

	// §4.5.8: durability, outside the lock.
	if err := b.file.Sync(); err != nil {
		return fmt.Errorf("%s: sync: %w", b.name, err)
	}

	b.logger.Printf("create-snapshot: %s: %s", add.Name, mustFormat(add.Raw))
	return nil
}

// deleteAndMerge runs §4.5.5 (delete/merge, under the live lock) and
// §4.5.6 (rewrite snapshots marked UPDATE by that pass).
func (b *Block) deleteAndMerge(snaps []*ListEntry) error {
	for i, s := range snaps {
		if !s.Flags.Has(FlagDelete) {
			continue
		}

		a := s.priv
		if a == nil {
			return fmt.Errorf("%s: DELETE entry %q has no loaded state: %w", b.name, s.Name, snaperrors.ErrInvalidArgument)
		}

		next := snaps[i+1]
		var bState *State
		if next.Flags.Has(FlagAdd) {
			bState = &b.live
		} else {
			bState = next.priv
			if bState == nil {
				return fmt.Errorf("%s: successor %q of deleted %q has no loaded state: %w",
					b.name, next.Name, s.Name, snaperrors.ErrInvalidArgument)
			}
		}

		// Free A's root as an ordinary free.
		if r, ok := locatorRange(blockfile.Locator{Offset: a.RootOffset, Size: a.RootSize}); ok {
			b.freeNormal(r)
		}

		// Return A's own extent-list storage regions directly to avail.
		for _, l := range []*extent.List{a.Alloc, a.Avail, a.Discard} {
			if r, ok := locatorRange(l.Locator); ok {
				b.freeDirect(r)
			}
		}

		// Roll A's alloc/discard forward into B. Avail is intentionally
		// not merged: a historical avail list is only meaningful relative
		// to that snapshot's own "now".
		bState.Alloc.Merge(a.Alloc)
		bState.Discard.Merge(a.Discard)

		if next.Flags.Has(FlagDelete) {
			// B is itself being deleted; it will be handled when the
			// loop reaches it, aggregating transitively.
			continue
		}

		reusable := extent.Match(bState.Alloc, bState.Discard)
		bState.Avail.Merge(reusable)

		if next.Flags.Has(FlagAdd) {
			// The live system will be updated in §4.5.7.
			continue
		}

		// B survives and must be rewritten: its old extent-list storage
		// is no longer needed and returns directly to avail.
		for _, l := range []*extent.List{bState.Alloc, bState.Avail, bState.Discard} {
			if r, ok := locatorRange(l.Locator); ok {
				b.freeDirect(r)
			}
		}
		next.Flags |= FlagUpdate
	}

	if b.cfg.CheckExtentLists {
		if err := extent.CheckDisjoint(b.live.Alloc, b.live.Avail); err != nil {
			return fmt.Errorf("%s: live after merge: %w", b.name, err)
		}
		if err := extent.CheckDisjoint(b.live.Discard, b.live.Avail); err != nil {
			return fmt.Errorf("%s: live after merge: %w", b.name, err)
		}
	}

	for _, s := range snaps {
		if !s.Flags.Has(FlagUpdate) {
			continue
		}
		if err := b.update(s, s.priv); err != nil {
			return err
		}
	}
	return nil
}

// update is snapshot-update (§4.6): write the three extent lists,
// capture the current file size, and re-encode the cookie.
//
// Known limitation (carried from the original, see DESIGN.md Open
// Question 2): the recorded file_size reflects whatever the backing
// file currently measures, not necessarily the smallest size this
// particular snapshot's own reachable blocks would allow — rewriting an
// early snapshot while later ones still reference tail space does not
// shrink the file.
func (b *Block) update(entry *ListEntry, state *State) error {
	if b.cfg.CheckExtentLists {
		if err := extent.CheckDisjoint(state.Alloc, state.Discard); err != nil {
			return fmt.Errorf("%s: snapshot-update %q: %w", b.name, entry.Name, err)
		}
	}

	if err := state.Alloc.WriteTo(b.file); err != nil {
		return fmt.Errorf("%s: write alloc for %q: %w", b.name, entry.Name, err)
	}
	if err := state.Avail.WriteTo(b.file); err != nil {
		return fmt.Errorf("%s: write avail for %q: %w", b.name, entry.Name, err)
	}
	if err := state.Discard.WriteTo(b.file); err != nil {
		return fmt.Errorf("%s: write discard for %q: %w", b.name, entry.Name, err)
	}

	size, err := b.file.Size()
	if err != nil {
		return fmt.Errorf("%s: file size for %q: %w", b.name, entry.Name, err)
	}
	state.FileSize = size

	raw, err := EncodeCookie(state)
	if err != nil {
		return fmt.Errorf("%s: encode cookie for %q: %w", b.name, entry.Name, err)
	}
	entry.Raw = raw
	return nil
}

// freeTransient releases the in-memory extent lists of any entry that
// had historical state loaded during this call, regardless of outcome.
func (b *Block) freeTransient(snaps []*ListEntry) {
	for _, s := range snaps {
		if s.priv == nil {
			continue
		}
		s.priv.Alloc = nil
		s.priv.Avail = nil
		s.priv.Discard = nil
		s.priv = nil
	}
}

// Package extent implements disjoint half-open byte-range sets: the
// alloc/avail/discard lists a snapshot state block carries. Ranges are
// kept sorted and coalesced on every mutation so disjointness holds by
// construction.
package extent

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/emberstore/ember/blockfile"
	"github.com/emberstore/ember/snaperrors"
)

// Range is a half-open byte range [Start, Start+Len) over file space.
type Range struct {
	Start int64
	Len   int64
}

// End returns the exclusive end of the range.
func (r Range) End() int64 { return r.Start + r.Len }

// List is a named, disjoint set of ranges.
type List struct {
	Name    string
	Locator blockfile.Locator
	Ranges  []Range
}

// New returns an empty, named extent list with an invalid locator.
func New(name string) *List {
	return &List{Name: name, Locator: blockfile.InvalidLocator}
}

// Alloc adds r to the list, coalescing with any adjacent or overlapping
// ranges.
func (l *List) Alloc(r Range) {
	if r.Len <= 0 {
		return
	}
	l.Ranges = append(l.Ranges, r)
	l.normalize()
}

// Free is an alias for Alloc: both simply add a range to the set. The
// caller decides which list (alloc/avail/discard) a freed range lands
// on; List itself has no opinion about semantics, only disjointness.
func (l *List) Free(r Range) {
	l.Alloc(r)
}

// FreeInPlace removes r from the list if present (exact-range removal,
// used when reversing a speculative allocation).
func (l *List) FreeInPlace(r Range) {
	out := l.Ranges[:0]
	for _, cur := range l.Ranges {
		if cur == r {
			continue
		}
		out = append(out, cur)
	}
	l.Ranges = out
}

// Empty reports whether the list has no ranges.
func (l *List) Empty() bool { return len(l.Ranges) == 0 }

// normalize sorts ranges by start offset and merges adjacent/overlapping
// entries so the invariant "pairwise disjoint, no duplicates" holds.
func (l *List) normalize() {
	if len(l.Ranges) < 2 {
		return
	}
	sort.Slice(l.Ranges, func(i, j int) bool {
		return l.Ranges[i].Start < l.Ranges[j].Start
	})

	merged := l.Ranges[:1]
	for _, r := range l.Ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End() {
			if end := r.End(); end > last.End() {
				last.Len = end - last.Start
			}
			continue
		}
		merged = append(merged, r)
	}
	l.Ranges = merged
}

// Merge folds other's ranges into l, leaving other untouched. Used to
// roll a deleted historical snapshot's alloc/discard contributions
// forward into its successor.
func (l *List) Merge(other *List) {
	if other == nil {
		return
	}
	l.Ranges = append(l.Ranges, other.Ranges...)
	l.normalize()
}

// Match moves every range that appears identically in both alloc and
// discard out of both lists and returns those ranges. This is
// reuse-match: a range allocated and freed within the same epoch is
// reusable. Only exact range matches are moved; ranges that overlap
// without being equal stay in both lists unchanged.
func Match(alloc, discard *List) *List {
	reusable := New("reuse")
	if alloc.Empty() || discard.Empty() {
		return reusable
	}

	var newAlloc, newDiscard []Range
	ai, di := 0, 0
	for ai < len(alloc.Ranges) && di < len(discard.Ranges) {
		a, d := alloc.Ranges[ai], discard.Ranges[di]
		switch {
		case a == d:
			reusable.Alloc(a)
			ai++
			di++
		case a.Start < d.Start:
			newAlloc = append(newAlloc, a)
			ai++
		default:
			newDiscard = append(newDiscard, d)
			di++
		}
	}
	newAlloc = append(newAlloc, alloc.Ranges[ai:]...)
	newDiscard = append(newDiscard, discard.Ranges[di:]...)

	alloc.Ranges = newAlloc
	discard.Ranges = newDiscard
	return reusable
}

// Truncate drops the trailing range of l if it abuts fileSize exactly,
// reporting the smaller size the backing file could be truncated to.
// Ranges are kept sorted and coalesced (see normalize), so at most one
// range can ever abut the current end of file.
func (l *List) Truncate(fileSize int64) (newSize int64, truncated bool) {
	if l.Empty() {
		return fileSize, false
	}
	last := len(l.Ranges) - 1
	if l.Ranges[last].End() == fileSize {
		newSize = l.Ranges[last].Start
		l.Ranges = l.Ranges[:last]
		return newSize, true
	}
	return fileSize, false
}

// Check asserts that l's ranges are sorted, non-overlapping, and
// contain no duplicates. It is the diagnostic-build equivalent of the
// original's HAVE_DIAGNOSTIC extent-list checker; callers gate it
// behind snapconf.Config.CheckExtentLists.
func (l *List) Check(context string) error {
	for i := 1; i < len(l.Ranges); i++ {
		if l.Ranges[i].Start < l.Ranges[i-1].End() {
			return fmt.Errorf("%s: extent list %s not disjoint at %d: %w",
				context, l.Name, l.Ranges[i].Start, snaperrors.ErrCorrupt)
		}
	}
	return nil
}

// CheckDisjoint verifies that a and b share no overlapping range. Used
// after the delete/merge pass of snapshot creation to assert invariant
// 2 (alloc∩avail = ∅, discard∩avail = ∅ on the live snapshot), and by
// snapshot-update to assert alloc∩discard = ∅.
func CheckDisjoint(a, b *List) error {
	for _, ra := range a.Ranges {
		for _, rb := range b.Ranges {
			if ra.Start < rb.End() && rb.Start < ra.End() {
				return fmt.Errorf("extent lists %s and %s overlap at %d: %w",
					a.Name, b.Name, ra.Start, snaperrors.ErrCorrupt)
			}
		}
	}
	return nil
}

// --- on-disk encoding ---
//
// A written extent list is a sequence of (start, len) fixed-width pairs
// prefixed by a count; blockfile.File.WriteOff computes and carries the
// page's checksum in the returned Locator, so no trailer is embedded
// in the encoded bytes themselves.

// WriteTo serializes the list's ranges and writes them as a new page,
// updating l.Locator in place. An empty list writes nothing and leaves
// the locator as the invalid sentinel.
func (l *List) WriteTo(f *blockfile.File) error {
	if l.Empty() {
		l.Locator = blockfile.InvalidLocator
		return nil
	}

	buf := make([]byte, 4+len(l.Ranges)*16)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(l.Ranges)))
	off := 4
	for _, r := range l.Ranges {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(r.Start))
		binary.LittleEndian.PutUint64(buf[off+8:off+16], uint64(r.Len))
		off += 16
	}

	loc, err := f.WriteOff(buf)
	if err != nil {
		return fmt.Errorf("write extent list %s: %w", l.Name, err)
	}
	l.Locator = loc
	return nil
}

// ReadFrom reads a previously written extent list from f at loc into a
// new List named name. An invalid locator yields an empty list.
func ReadFrom(f *blockfile.File, name string, loc blockfile.Locator) (*List, error) {
	l := New(name)
	l.Locator = loc
	if loc.Invalid() {
		return l, nil
	}

	data, err := f.ReadOff(loc)
	if err != nil {
		return nil, fmt.Errorf("read extent list %s: %w", name, err)
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("extent list %s: short record: %w", name, snaperrors.ErrCorrupt)
	}

	count := binary.LittleEndian.Uint32(data[0:4])
	want := 4 + int(count)*16
	if len(data) < want {
		return nil, fmt.Errorf("extent list %s: truncated record: %w", name, snaperrors.ErrCorrupt)
	}

	l.Ranges = make([]Range, 0, count)
	off := 4
	for i := uint32(0); i < count; i++ {
		start := int64(binary.LittleEndian.Uint64(data[off : off+8]))
		ln := int64(binary.LittleEndian.Uint64(data[off+8 : off+16]))
		l.Ranges = append(l.Ranges, Range{Start: start, Len: ln})
		off += 16
	}
	return l, nil
}

package extent

import "testing"

func TestAllocCoalescesAdjacentRanges(t *testing.T) {
	l := New("alloc")
	l.Alloc(Range{Start: 100, Len: 50})
	l.Alloc(Range{Start: 150, Len: 20})
	l.Alloc(Range{Start: 0, Len: 50})

	if len(l.Ranges) != 2 {
		t.Fatalf("want 2 coalesced ranges, got %d: %v", len(l.Ranges), l.Ranges)
	}
	if l.Ranges[0] != (Range{Start: 0, Len: 50}) {
		t.Errorf("unexpected first range %v", l.Ranges[0])
	}
	if l.Ranges[1] != (Range{Start: 100, Len: 70}) {
		t.Errorf("unexpected second range %v", l.Ranges[1])
	}
}

func TestMatchMovesOverlapToReusable(t *testing.T) {
	alloc := New("alloc")
	alloc.Alloc(Range{Start: 0, Len: 10})
	alloc.Alloc(Range{Start: 50, Len: 10})

	discard := New("discard")
	discard.Alloc(Range{Start: 0, Len: 10})
	discard.Alloc(Range{Start: 100, Len: 5})

	reusable := Match(alloc, discard)

	if len(reusable.Ranges) != 1 || reusable.Ranges[0] != (Range{Start: 0, Len: 10}) {
		t.Fatalf("want [0,10) reusable, got %v", reusable.Ranges)
	}
	if len(alloc.Ranges) != 1 || alloc.Ranges[0] != (Range{Start: 50, Len: 10}) {
		t.Errorf("alloc should retain only its unmatched range, got %v", alloc.Ranges)
	}
	if len(discard.Ranges) != 1 || discard.Ranges[0] != (Range{Start: 100, Len: 5}) {
		t.Errorf("discard should retain only its unmatched range, got %v", discard.Ranges)
	}
}

func TestTruncateDropsTrailingRangeAtEOF(t *testing.T) {
	avail := New("avail")
	avail.Alloc(Range{Start: 0, Len: 10})
	avail.Alloc(Range{Start: 900, Len: 100}) // abuts fileSize=1000

	newSize, truncated := avail.Truncate(1000)
	if !truncated || newSize != 900 {
		t.Fatalf("want truncated to 900, got %d, truncated=%v", newSize, truncated)
	}
	if len(avail.Ranges) != 1 {
		t.Fatalf("want trailing range dropped, got %v", avail.Ranges)
	}

	// No trailing range touching fileSize: nothing to do.
	newSize, truncated = avail.Truncate(500)
	if truncated || newSize != 500 {
		t.Fatalf("want no truncation, got %d, truncated=%v", newSize, truncated)
	}
}

func TestCheckDisjointDetectsOverlap(t *testing.T) {
	a := New("a")
	a.Alloc(Range{Start: 0, Len: 100})
	b := New("b")
	b.Alloc(Range{Start: 50, Len: 10})

	if err := CheckDisjoint(a, b); err == nil {
		t.Fatal("expected overlap error, got nil")
	}

	b2 := New("b2")
	b2.Alloc(Range{Start: 200, Len: 10})
	if err := CheckDisjoint(a, b2); err != nil {
		t.Fatalf("unexpected error for disjoint lists: %v", err)
	}
}

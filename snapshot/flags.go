package snapshot

// Flags tags a snapshot-list entry with the operations to apply to it
// during create-and-process.
type Flags uint8

const (
	// FlagAdd marks the single new snapshot being created this round.
	// It is always the last entry in the list.
	FlagAdd Flags = 1 << iota
	// FlagDelete marks a historical snapshot to retire.
	FlagDelete
	// FlagUpdate marks a historical snapshot whose on-disk extent
	// lists must be rewritten (set internally by Snapshot when a
	// predecessor is deleted into it).
	FlagUpdate
)

// Has reports whether f has all bits of x set.
func (f Flags) Has(x Flags) bool { return f&x == x }

// ListEntry is one entry of the engine-supplied snapshot list: a named
// snapshot, its cookie bytes (empty iff it is the ADD entry), the
// operations to apply, and a slot for the in-memory state block loaded
// transiently during processing.
type ListEntry struct {
	Name  string
	Raw   []byte
	Flags Flags

	priv *State
}

// State returns the transient in-memory state block loaded for this
// entry during create-and-process, or nil if none was loaded.
func (e *ListEntry) State() *State { return e.priv }

// Package snapshot is the core of the subsystem: the snapshot state
// block, its cookie codec, the block object, and the load/unload/
// create-and-process lifecycle operations.
package snapshot

import (
	"github.com/emberstore/ember/blockfile"
	"github.com/emberstore/ember/extent"
)

// State is a snapshot state block: the root locator, the three extent
// lists, the file size that makes the snapshot self-contained, and a
// monotone write generation.
type State struct {
	Version    uint8
	RootOffset int64
	RootSize   int64
	RootCksum  uint32

	Alloc   *extent.List
	Avail   *extent.List
	Discard *extent.List

	FileSize int64
	WriteGen uint64
}

// InitState zeroes s and sets its sentinel fields. If isLive, it first
// claims b's live-load slot, failing with ErrAlreadyLoaded if one is
// already claimed; the slot is released by the caller on any
// subsequent failure (see Block.failLoad).
func InitState(b *Block, s *State, isLive bool) error {
	if isLive {
		if err := b.claimLive(); err != nil {
			return err
		}
	}

	*s = State{
		RootOffset: blockfile.InvalidOffset,
		Alloc:      extent.New("alloc"),
		Avail:      extent.New("avail"),
		Discard:    extent.New("discard"),
	}
	return nil
}

package snapshot

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/emberstore/ember/blockfile"
	"github.com/emberstore/ember/snapconf"
	"github.com/emberstore/ember/snaperrors"
	"github.com/emberstore/ember/sverify"
)

// Block is the runtime descriptor for one backing file plus its
// snapshot metadata: the file handle, the live-load guard, the live
// snapshot state, and the collaborators (config, verification hooks,
// logger) this subsystem calls but does not own.
type Block struct {
	name string
	file *blockfile.File

	liveLock   sync.Mutex
	liveLoaded bool
	live       State

	cfg    *snapconf.Config
	verify sverify.Hooks
	logger *log.Logger
}

// Open returns a new block object over file. cfg and verify may be nil,
// in which case snapconf.Default() and sverify.Noop{} are used.
func Open(name string, file *blockfile.File, cfg *snapconf.Config, verify sverify.Hooks) *Block {
	if cfg == nil {
		cfg = snapconf.Default()
	}
	if verify == nil {
		verify = sverify.Noop{}
	}
	return &Block{
		name:   name,
		file:   file,
		cfg:    cfg,
		verify: verify,
		logger: log.New(os.Stderr, fmt.Sprintf("[snapshot %s] ", name), log.LstdFlags),
	}
}

// SetLogger overrides the block object's logger.
func (b *Block) SetLogger(l *log.Logger) { b.logger = l }

// LiveState exposes the block object's live snapshot state for
// inspection. Callers above this subsystem should treat it as
// read-mostly: mutating it outside Load/Snapshot/Unload voids the
// invariants this package maintains.
func (b *Block) LiveState() *State { return &b.live }

// IsLoaded reports whether a live snapshot is currently loaded.
func (b *Block) IsLoaded() bool {
	b.liveLock.Lock()
	defer b.liveLock.Unlock()
	return b.liveLoaded
}

// claimLive sets liveLoaded, failing if it is already set.
func (b *Block) claimLive() error {
	b.liveLock.Lock()
	defer b.liveLock.Unlock()
	if b.liveLoaded {
		return fmt.Errorf("%s: %w", b.name, snaperrors.ErrAlreadyLoaded)
	}
	b.liveLoaded = true
	return nil
}

// failLoad clears the live-load guard on a failed load, so no partial
// state is left claimed.
func (b *Block) failLoad() {
	b.liveLock.Lock()
	b.liveLoaded = false
	b.liveLock.Unlock()
}

// Load initializes the live snapshot. If cookie is nil the live
// snapshot is left empty (an empty tree). Otherwise the cookie is
// decoded, the root page (if any) is read into dsk, and — unless
// readonly — the avail extent list is read from disk and the file is
// truncated to the snapshot's recorded file size, discarding any bytes
// written past it by a previous crashed writer.
//
// dsk, when non-nil, is set to nil if no root page was read. No partial
// state is left visible on failure: liveLoaded is cleared on every
// error path.
func (b *Block) Load(dsk *[]byte, cookie []byte, readonly bool) error {
	if dsk != nil {
		*dsk = nil
	}

	if err := InitState(b, &b.live, true); err != nil {
		return err
	}

	if len(cookie) == 0 {
		return nil
	}

	if err := DecodeCookie(cookie, &b.live); err != nil {
		b.failLoad()
		return fmt.Errorf("%s: decode cookie: %w", b.name, err)
	}

	if b.cfg.VerifyOnLoad {
		if err := b.verify.PreLoad(&b.live); err != nil {
			b.failLoad()
			return fmt.Errorf("%s: verify-snap-load: %w", b.name, err)
		}
	}

	var root []byte
	if b.live.RootOffset != blockfile.InvalidOffset {
		data, err := b.file.ReadOff(blockfile.Locator{
			Offset: b.live.RootOffset, Size: b.live.RootSize, Cksum: b.live.RootCksum,
		})
		if err != nil {
			b.failLoad()
			return fmt.Errorf("%s: read root page: %w", b.name, err)
		}
		root = data
		if dsk != nil {
			*dsk = data
		}
		if b.cfg.VerifyOnLoad {
			desc, _ := FormatCookie(cookie)
			if err := b.verify.VerifyDsk(desc, data); err != nil {
				b.failLoad()
				return fmt.Errorf("%s: verify-dsk: %w", b.name, err)
			}
		}
	}

	if b.cfg.VerifyOnLoad {
		if err := b.verify.PostLoad(&b.live, root); err != nil {
			b.failLoad()
			return fmt.Errorf("%s: verify-snap-post-load: %w", b.name, err)
		}
	}

	if !readonly {
		avail, err := readExtentList(b.file, "avail", b.live.Avail.Locator)
		if err != nil {
			b.failLoad()
			return fmt.Errorf("%s: read avail list: %w", b.name, err)
		}
		b.live.Avail = avail

		if err := b.file.Truncate(b.live.FileSize); err != nil {
			b.failLoad()
			return fmt.Errorf("%s: truncate to %d: %w", b.name, b.live.FileSize, err)
		}
	}

	b.logger.Printf("load-snapshot: %s", mustFormat(cookie))
	return nil
}

// Unload must be called exactly once per successful Load. It releases
// the live snapshot's three extent lists and clears the live-load
// guard.
func (b *Block) Unload() error {
	b.liveLock.Lock()
	loaded := b.liveLoaded
	b.liveLock.Unlock()
	if !loaded {
		return fmt.Errorf("%s: %w", b.name, snaperrors.ErrNotLoaded)
	}

	if b.cfg.VerifyOnUnload {
		if err := b.verify.PreUnload(&b.live); err != nil {
			return fmt.Errorf("%s: verify-snap-unload: %w", b.name, err)
		}
	}

	b.live.Alloc = nil
	b.live.Avail = nil
	b.live.Discard = nil

	b.liveLock.Lock()
	b.liveLoaded = false
	b.liveLock.Unlock()

	b.logger.Printf("unload snapshot")
	return nil
}

func mustFormat(cookie []byte) string {
	if len(cookie) == 0 {
		return "[Empty]"
	}
	s, err := FormatCookie(cookie)
	if err != nil {
		return "[unreadable]"
	}
	return s
}

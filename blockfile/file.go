// Package blockfile implements the block-addressed backing-file
// primitives the snapshot subsystem treats as external collaborators:
// page write/read with checksums, truncation, and fsync.
package blockfile

import (
	"fmt"
	"hash/crc32"
	"os"
	"sync"

	"github.com/emberstore/ember/advanced/compression"
	"github.com/emberstore/ember/snaperrors"
)

// InvalidOffset is the sentinel meaning "no such locator".
const InvalidOffset int64 = -1

// Locator identifies a page on disk: its offset, byte length, and a
// checksum of its (possibly compressed) payload.
type Locator struct {
	Offset int64
	Size   int64
	Cksum  uint32
}

// Invalid reports whether this locator is the sentinel "empty" value.
func (l Locator) Invalid() bool {
	return l.Offset == InvalidOffset
}

// InvalidLocator is the canonical empty locator.
var InvalidLocator = Locator{Offset: InvalidOffset}

// File wraps a backing file with page-level read/write primitives.
type File struct {
	mu   sync.Mutex
	f    *os.File
	path string

	comp     *compression.Engine
	compName string
}

// Open opens (creating if necessary) the backing file at path. comp may
// be nil to disable compression; compName selects the algorithm used
// for every page written through this handle ("none" disables it even
// when comp is non-nil).
func Open(path string, comp *compression.Engine, compName string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open backing file %s: %w", path, err)
	}
	if compName == "" {
		compName = "none"
	}
	return &File{f: f, path: path, comp: comp, compName: compName}, nil
}

// Close closes the backing file handle.
func (bf *File) Close() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.f.Close()
}

// Sync flushes the backing file to durable storage.
func (bf *File) Sync() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	if err := bf.f.Sync(); err != nil {
		return fmt.Errorf("fsync %s: %w", bf.path, snaperrors.ErrIO)
	}
	return nil
}

// Size returns the current file length.
func (bf *File) Size() (int64, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	fi, err := bf.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", bf.path, snaperrors.ErrIO)
	}
	return fi.Size(), nil
}

// Truncate trims (or extends) the backing file to exactly size bytes.
func (bf *File) Truncate(size int64) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	if err := bf.f.Truncate(size); err != nil {
		return fmt.Errorf("truncate %s to %d: %w", bf.path, size, snaperrors.ErrIO)
	}
	return nil
}

// WriteOff appends data to the end of the file (optionally compressing
// it first) and returns the locator describing where it landed.
func (bf *File) WriteOff(data []byte) (Locator, error) {
	payload, err := bf.compress(data)
	if err != nil {
		return InvalidLocator, err
	}

	bf.mu.Lock()
	defer bf.mu.Unlock()

	off, err := bf.f.Seek(0, os.SEEK_END)
	if err != nil {
		return InvalidLocator, fmt.Errorf("seek end of %s: %w", bf.path, snaperrors.ErrIO)
	}
	if _, err := bf.f.Write(payload); err != nil {
		return InvalidLocator, fmt.Errorf("write %s at %d: %w", bf.path, off, snaperrors.ErrIO)
	}

	return Locator{
		Offset: off,
		Size:   int64(len(payload)),
		Cksum:  crc32.ChecksumIEEE(payload),
	}, nil
}

// ReadOff reads and verifies the page described by loc, decompressing
// it if this file's algorithm is not "none".
func (bf *File) ReadOff(loc Locator) ([]byte, error) {
	if loc.Invalid() {
		return nil, nil
	}

	payload := make([]byte, loc.Size)
	bf.mu.Lock()
	_, err := bf.f.ReadAt(payload, loc.Offset)
	bf.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("read %s at %d: %w", bf.path, loc.Offset, snaperrors.ErrIO)
	}

	if crc32.ChecksumIEEE(payload) != loc.Cksum {
		return nil, fmt.Errorf("checksum mismatch at %d: %w", loc.Offset, snaperrors.ErrCorrupt)
	}

	return bf.decompress(payload)
}

func (bf *File) compress(data []byte) ([]byte, error) {
	if bf.comp == nil || bf.compName == "" || bf.compName == "none" {
		return data, nil
	}
	out, err := bf.comp.CompressWith(data, bf.compName)
	if err != nil {
		return nil, fmt.Errorf("compress with %s: %w", bf.compName, err)
	}
	return out, nil
}

func (bf *File) decompress(data []byte) ([]byte, error) {
	if bf.comp == nil || bf.compName == "" || bf.compName == "none" {
		return data, nil
	}
	out, err := bf.comp.Decompress(data, bf.compName)
	if err != nil {
		return nil, fmt.Errorf("decompress with %s: %w", bf.compName, snaperrors.ErrCorrupt)
	}
	return out, nil
}

package snapshot

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/emberstore/ember/blockfile"
	"github.com/emberstore/ember/extent"
	"github.com/emberstore/ember/snaperrors"
)

// MaxAddrCookie bounds an encoded cookie's size: version(1) + flags(1)
// + four (offset8+size8+cksum4) locators + file_size(8) + write_gen(8)
// + trailer crc32(4) = 102 bytes, comfortably under this ceiling.
const MaxAddrCookie = 256

const cookieSize = 1 + 1 + 4*20 + 8 + 8 + 4

const (
	flagRootValid = 1 << iota
	flagAllocValid
	flagAvailValid
	flagDiscardValid
)

// EncodeCookie serializes s into a compact binary cookie: a fixed
// header and payload followed by a crc32 trailer. Sentinel locators
// are encoded as a zeroed offset/size/cksum triple with the
// corresponding valid bit clear, never as a raw negative offset.
func EncodeCookie(s *State) ([]byte, error) {
	buf := make([]byte, cookieSize)
	buf[0] = s.Version

	var flags byte
	off := 2

	putLocator := func(valid bool, bit byte, offset, size int64, cksum uint32) {
		if valid {
			flags |= bit
			binary.LittleEndian.PutUint64(buf[off:], uint64(offset))
			binary.LittleEndian.PutUint64(buf[off+8:], uint64(size))
			binary.LittleEndian.PutUint32(buf[off+16:], cksum)
		}
		off += 20
	}

	putLocator(s.RootOffset != blockfile.InvalidOffset, flagRootValid, s.RootOffset, s.RootSize, s.RootCksum)
	putLocator(!s.Alloc.Locator.Invalid(), flagAllocValid, s.Alloc.Locator.Offset, s.Alloc.Locator.Size, s.Alloc.Locator.Cksum)
	putLocator(!s.Avail.Locator.Invalid(), flagAvailValid, s.Avail.Locator.Offset, s.Avail.Locator.Size, s.Avail.Locator.Cksum)
	putLocator(!s.Discard.Locator.Invalid(), flagDiscardValid, s.Discard.Locator.Offset, s.Discard.Locator.Size, s.Discard.Locator.Cksum)

	buf[1] = flags

	binary.LittleEndian.PutUint64(buf[off:], uint64(s.FileSize))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], s.WriteGen)
	off += 8

	trailer := crc32.ChecksumIEEE(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:], trailer)

	if len(buf) > MaxAddrCookie {
		return nil, fmt.Errorf("encoded cookie of %d bytes exceeds max %d: %w", len(buf), MaxAddrCookie, snaperrors.ErrInvalidArgument)
	}
	return buf, nil
}

// DecodeCookie is the inverse of EncodeCookie: decode(encode(s)) == s
// for every legal s, and encode(decode(c)) == c for every legal cookie
// c. Extent-list range data is not part of the cookie; only each
// list's on-disk locator is restored, matching EncodeCookie's output.
func DecodeCookie(data []byte, s *State) error {
	if len(data) != cookieSize {
		return fmt.Errorf("cookie has %d bytes, want %d: %w", len(data), cookieSize, snaperrors.ErrCorrupt)
	}

	trailer := binary.LittleEndian.Uint32(data[cookieSize-4:])
	if crc32.ChecksumIEEE(data[:cookieSize-4]) != trailer {
		return fmt.Errorf("cookie checksum mismatch: %w", snaperrors.ErrCorrupt)
	}

	version := data[0]
	flags := data[1]
	off := 2

	getLocator := func(bit byte) (int64, int64, uint32) {
		offset := int64(binary.LittleEndian.Uint64(data[off:]))
		size := int64(binary.LittleEndian.Uint64(data[off+8:]))
		cksum := binary.LittleEndian.Uint32(data[off+16:])
		off += 20
		if flags&bit == 0 {
			return blockfile.InvalidOffset, 0, 0
		}
		return offset, size, cksum
	}

	rootOffset, rootSize, rootCksum := getLocator(flagRootValid)
	allocOffset, allocSize, allocCksum := getLocator(flagAllocValid)
	availOffset, availSize, availCksum := getLocator(flagAvailValid)
	discardOffset, discardSize, discardCksum := getLocator(flagDiscardValid)

	fileSize := int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	writeGen := binary.LittleEndian.Uint64(data[off:])

	s.Version = version
	s.RootOffset, s.RootSize, s.RootCksum = rootOffset, rootSize, rootCksum
	s.Alloc = extentListWithLocator("alloc", allocOffset, allocSize, allocCksum)
	s.Avail = extentListWithLocator("avail", availOffset, availSize, availCksum)
	s.Discard = extentListWithLocator("discard", discardOffset, discardSize, discardCksum)
	s.FileSize = fileSize
	s.WriteGen = writeGen
	return nil
}

func extentListWithLocator(name string, offset, size int64, cksum uint32) *extent.List {
	l := extent.New(name)
	l.Locator = blockfile.Locator{Offset: offset, Size: size, Cksum: cksum}
	return l
}

package snapshot

import (
	"fmt"
	"strings"

	"github.com/emberstore/ember/blockfile"
)

// FormatCookie renders a human-readable description of an encoded
// cookie: version, root locator, each extent-list locator ("[Empty]"
// for sentinels), file size, and write generation. Pure and
// side-effect free, grounded on __snapshot_string's diagnostic output
// in the original implementation.
func FormatCookie(raw []byte) (string, error) {
	var s State
	if err := DecodeCookie(raw, &s); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "version=%d", s.Version)

	writeLocator := func(label string, offset, size int64, cksum uint32) {
		if offset == blockfile.InvalidOffset {
			fmt.Fprintf(&b, ", %s=[Empty]", label)
			return
		}
		fmt.Fprintf(&b, ", %s=[%d-%d, %d, %d]", label, offset, offset+size, size, cksum)
	}

	writeLocator("root", s.RootOffset, s.RootSize, s.RootCksum)
	writeLocator("alloc", s.Alloc.Locator.Offset, s.Alloc.Locator.Size, s.Alloc.Locator.Cksum)
	writeLocator("avail", s.Avail.Locator.Offset, s.Avail.Locator.Size, s.Avail.Locator.Cksum)
	writeLocator("discard", s.Discard.Locator.Offset, s.Discard.Locator.Size, s.Discard.Locator.Cksum)

	fmt.Fprintf(&b, ", file size=%d, write generation=%d", s.FileSize, s.WriteGen)
	return b.String(), nil
}

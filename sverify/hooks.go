// Package sverify models the optional verification collaborator the
// snapshot core calls at documented points but never depends on: an
// injectable interface with a no-op default implementation.
package sverify

// Hooks is implemented by an optional verification collaborator. All
// methods are called by the snapshot core at documented points; a nil
// error means "proceed".
type Hooks interface {
	// PreLoad runs just after a cookie has been decoded into the live
	// state block, before any page is read.
	PreLoad(state interface{}) error

	// PostLoad runs after the root page (if any) has been read, to
	// verify its on-disk contents.
	PostLoad(state interface{}, dsk []byte) error

	// PreUnload runs before the live snapshot's extent lists are
	// released.
	PreUnload(state interface{}) error

	// VerifyDsk verifies a page's contents independent of load/unload,
	// given a human-readable description of the cookie it came from.
	VerifyDsk(description string, dsk []byte) error
}

// Noop is the default, side-effect-free implementation.
type Noop struct{}

func (Noop) PreLoad(interface{}) error          { return nil }
func (Noop) PostLoad(interface{}, []byte) error { return nil }
func (Noop) PreUnload(interface{}) error        { return nil }
func (Noop) VerifyDsk(string, []byte) error     { return nil }

var _ Hooks = Noop{}

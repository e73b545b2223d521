// Package debug implements the two debug-information back ends spec.md
// §4.7-§4.8 describes — STABS line tables and DWARF v2/v3 line/aranges/
// info/abbrev tables — both satisfying object.DebugBackend so the emitter
// never needs to know which one (if either) is in use.
package debug

import (
	"fmt"

	"github.com/arc-language/elfgen/object"
)

// New resolves the `--debug` selector string spec.md §6.1 describes to a
// concrete back end. An empty kind means "no debug info"; New returns a nil
// backend and nil error in that case, matching object.NewEmitter's
// debug-may-be-nil contract.
func New(kind string) (object.DebugBackend, error) {
	switch kind {
	case "":
		return nil, nil
	case "stabs":
		return NewStabsBackend(), nil
	case "dwarf":
		return NewDWARFBackend(), nil
	default:
		return nil, fmt.Errorf("unknown debug back end %q", kind)
	}
}

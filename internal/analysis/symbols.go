package analysis

import "roach/internal/elfx"

// Symbols names addresses: function entry points, PLT stubs and the GOT
// slots imports are called through.
type Symbols map[uint64]string

// Lookup is safe on a nil map.
func (s Symbols) Lookup(va uint64) (string, bool) {
	name, ok := s[va]
	return name, ok && name != ""
}

// SymbolsFromImage collects the function symbols and import slots of im.
func SymbolsFromImage(im *elfx.Image) Symbols {
	syms := make(Symbols)
	for _, r := range im.Imports {
		if r.GOTAddr != 0 && r.SymName != "" {
			syms[r.GOTAddr] = r.SymName
		}
	}
	// Function symbols override GOT slots sharing an address.
	for _, s := range im.Symbols {
		if s.Addr != 0 && s.Demangled != "" {
			syms[s.Addr] = s.Demangled
		}
	}
	return syms
}

package elfimage

import (
	"debug/elf"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

// unknownSymbol is what Symbolicate returns for an address with no symbol at
// or below it.
const unknownSymbol = "??"

// SortedSymbol is one entry of the symbolication index: a symbol's address
// and name plus a memoized demangled form filled in on first use.
type SortedSymbol struct {
	Address uint64
	Name    string
	Symbol  Symbol

	demangled string
}

// sortedIndex is built at most once per Image, on the first address query,
// and is immutable afterwards except for the per-entry demangle memo. Safe
// for concurrent use.
type sortedIndex struct {
	once    sync.Once
	entries []SortedSymbol

	// demangleMu serializes the memoization writes.
	demangleMu sync.Mutex

	// builds counts index constructions, observable in tests.
	builds int
}

func (img *Image) sortedSymbols() []SortedSymbol {
	img.sorted.once.Do(func() {
		count := img.SymbolCount()
		if count == 0 {
			return
		}
		entries := make([]SortedSymbol, 0, count-1)
		// Entry 0 is the reserved null symbol; it never resolves an address.
		for i := 1; i < count; i++ {
			sym := img.Symbol(i)
			entries = append(entries, SortedSymbol{Address: sym.Value(), Name: sym.Name(), Symbol: sym})
		}
		slices.SortFunc(entries, func(a, b SortedSymbol) int {
			switch {
			case a.Address < b.Address:
				return -1
			case a.Address > b.Address:
				return 1
			}
			return strings.Compare(a.Name, b.Name)
		})
		img.sorted.entries = entries
		img.sorted.builds++
		if img.metrics != nil {
			img.metrics.IndexBuilds.Inc()
		}
	})
	return img.sorted.entries
}

// findSorted returns the index entry with the greatest address at or below
// addr, or nil when addr is below every symbol. Among symbols sharing one
// address the first by name wins.
func (img *Image) findSorted(addr uint64) *SortedSymbol {
	entries := img.sortedSymbols()
	if len(entries) == 0 || addr < entries[0].Address {
		return nil
	}
	i, found := slices.BinarySearchFunc(entries, addr, func(e SortedSymbol, target uint64) int {
		switch {
		case e.Address < target:
			return -1
		case e.Address > target:
			return 1
		}
		return 0
	})
	if !found {
		i--
	}
	for i > 0 && entries[i-1].Address == entries[i].Address {
		i--
	}
	return &img.sorted.entries[i]
}

// FindSymbol maps a runtime address to the nearest preceding symbol and the
// byte offset into it. The mangled name is left untouched; use Symbolicate
// for a display string.
func (img *Image) FindSymbol(addr uint64) (Symbol, uint64, bool) {
	entry := img.findSorted(addr)
	if entry == nil {
		if img.metrics != nil {
			img.metrics.UnknownSymbols.Inc()
		}
		return Symbol{}, 0, false
	}
	if img.metrics != nil {
		img.metrics.KnownSymbols.Inc()
	}
	return entry.Symbol, addr - entry.Address, true
}

// ResolveAddress is the out-parameter flavor of symbolication: the demangled
// name and the offset separately. Misses come back as ("??", 0, false).
func (img *Image) ResolveAddress(addr uint64) (name string, offset uint64, ok bool) {
	entry := img.findSorted(addr)
	if entry == nil {
		if img.metrics != nil {
			img.metrics.UnknownSymbols.Inc()
		}
		return unknownSymbol, 0, false
	}
	if img.metrics != nil {
		img.metrics.KnownSymbols.Inc()
	}
	return img.demangled(entry), addr - entry.Address, true
}

// Symbolicate renders an address as "name +0xoffset", demangling the symbol
// name on first use, or "??" when nothing resolves.
func (img *Image) Symbolicate(addr uint64) string {
	name, offset, ok := img.ResolveAddress(addr)
	if !ok {
		return unknownSymbol
	}
	return fmt.Sprintf("%s +%#x", name, offset)
}

// demangled memoizes the demangle result on the index entry. Demangling is
// pure, so caching per entry is safe; the mutex only orders the writes.
func (img *Image) demangled(entry *SortedSymbol) string {
	img.sorted.demangleMu.Lock()
	defer img.sorted.demangleMu.Unlock()
	if entry.demangled == "" {
		if entry.Name == "" {
			return ""
		}
		entry.demangled = img.demangler.Demangle(entry.Name)
	}
	return entry.demangled
}

// FindDemangledFunction finds the first defined function symbol, in table
// order, whose demangled name with any parameter list stripped equals name.
func (img *Image) FindDemangledFunction(name string) (Symbol, bool) {
	count := img.SymbolCount()
	for i := 1; i < count; i++ {
		sym := img.Symbol(i)
		if sym.Type() != elf.STT_FUNC || sym.IsUndefined() {
			continue
		}
		demangled := img.demangler.Demangle(sym.Name())
		if paren := strings.IndexByte(demangled, '('); paren >= 0 {
			demangled = demangled[:paren]
		}
		if demangled == name {
			return sym, true
		}
	}
	return Symbol{}, false
}

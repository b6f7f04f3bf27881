// Package demangle wraps the Itanium-ABI demangler behind the total-function
// contract the rest of the module relies on: Demangle never fails, worst case
// it hands the mangled name back unchanged.
package demangle

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ianlancetaylor/demangle"
)

var (
	OptionsUnspecified []demangle.Option = nil
	OptionsSimplified                    = []demangle.Option{demangle.NoParams, demangle.NoEnclosingParams, demangle.NoTemplateParams}
	OptionsTemplates                     = []demangle.Option{demangle.NoParams, demangle.NoEnclosingParams}
	OptionsFull                          = []demangle.Option{demangle.NoClones}
)

func ConvertOptions(o string) []demangle.Option {
	switch o {
	case "simplified":
		return OptionsSimplified
	case "templates":
		return OptionsTemplates
	case "full":
		return OptionsFull
	default:
		return OptionsUnspecified
	}
}

const defaultCacheSize = 4096

// Demangler memoizes demangle results. Crash handlers tend to symbolicate the
// same frames over and over, and demangling is by far the most expensive step.
type Demangler struct {
	cache   *lru.Cache[string, string]
	options []demangle.Option
}

func New(options ...demangle.Option) *Demangler {
	cache, err := lru.New[string, string](defaultCacheSize)
	if err != nil {
		panic(err)
	}
	return &Demangler{cache: cache, options: options}
}

// Demangle returns a human-readable form of name, or name itself when it is
// not a mangled symbol.
func (d *Demangler) Demangle(name string) string {
	if s, ok := d.cache.Get(name); ok {
		return s
	}
	s := demangle.Filter(name, d.options...)
	d.cache.Add(name, s)
	return s
}

package elfimage

import (
	"github.com/go-kit/log"

	"github.com/rafi67/elfscope/metrics"
)

// Demangler turns a mangled symbol name into a human-readable one. It is a
// total function: implementations return the input unchanged when the name is
// not mangled or cannot be decoded.
type Demangler interface {
	Demangle(name string) string
}

type Option func(*Image)

// WithLogger routes diagnostics about rejected buffers and suspicious string
// offsets to the given logger. Everything is logged at debug level.
func WithLogger(logger log.Logger) Option {
	return func(img *Image) {
		img.logger = logger
	}
}

// WithMetrics attaches counters for parse failures and symbolication hits and
// misses. May be nil for tests.
func WithMetrics(m *metrics.Metrics) Option {
	return func(img *Image) {
		img.metrics = m
	}
}

// WithDemangler replaces the default demangler.
func WithDemangler(d Demangler) Option {
	return func(img *Image) {
		img.demangler = d
	}
}

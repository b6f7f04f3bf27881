package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	ParseErrors     *prometheus.CounterVec
	IndexBuilds     prometheus.Counter
	KnownSymbols    prometheus.Counter
	UnknownSymbols  prometheus.Counter
	StringCacheHits prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elfscope_image_parse_errors_total",
			Help: "Total number of buffers rejected by structural validation",
		}, []string{"error"}),
		IndexBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "elfscope_image_index_builds_total",
			Help: "Total number of sorted symbol index builds",
		}),
		KnownSymbols: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "elfscope_symbolicate_known_total",
			Help: "Total number of addresses resolved to a symbol",
		}),
		UnknownSymbols: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "elfscope_symbolicate_unknown_total",
			Help: "Total number of addresses with no symbol at or below them",
		}),
		StringCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "elfscope_string_cache_hits_total",
			Help: "Total number of string table reads served from the cache",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ParseErrors,
			m.IndexBuilds,
			m.KnownSymbols,
			m.UnknownSymbols,
			m.StringCacheHits,
		)
	}

	return m
}

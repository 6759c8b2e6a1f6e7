package persistence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "partyreg",
		Subsystem: "query_cache",
		Name:      "hits_total",
		Help:      "Projection queries served from the compiled-query cache.",
	})
	queryCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "partyreg",
		Subsystem: "query_cache",
		Name:      "misses_total",
		Help:      "Projection queries compiled on first use.",
	})
	roleCacheLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partyreg",
		Subsystem: "role_cache",
		Name:      "loads_total",
		Help:      "Role-definition snapshot loads by result.",
	}, []string{"result"})
)

package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokenPairsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aria_token_pairs_issued_total",
		Help: "Access/refresh token pairs issued (login and rotation).",
	})

	tokenRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aria_token_rotations_total",
		Help: "Refresh-token rotation attempts by outcome.",
	}, []string{"outcome"})

	tokenRevocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aria_token_revocations_total",
		Help: "Subject-wide refresh-token revocations.",
	})

	tokenCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aria_token_cache_hits_total",
		Help: "Refresh-token validity lookups served from the cache.",
	})

	tokenCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aria_token_cache_misses_total",
		Help: "Refresh-token validity lookups that fell through to the durable store.",
	})

	tokenCacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aria_token_cache_errors_total",
		Help: "Refresh-token cache lookups that failed and degraded to durable-only.",
	})

	tokenCacheFills = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aria_token_cache_fills_total",
		Help: "Cache entries written from durable data (write-through and repair).",
	})
)

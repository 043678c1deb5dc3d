package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	providerCalls *prometheus.CounterVec
	searches      *prometheus.CounterVec
	cache         *prometheus.CounterVec
	storage       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallpaper",
			Name:      "provider_calls_total",
			Help:      "Provider search calls by outcome (ok, empty, unavailable).",
		}, []string{"provider", "outcome"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallpaper",
			Name:      "searches_total",
			Help:      "Aggregated searches by the provider that answered, or \"none\".",
		}, []string{"source"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallpaper",
			Name:      "upstream_cache_total",
			Help:      "Upstream response cache lookups.",
		}, []string{"result"}),
		storage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wallpaper",
			Name:      "storage_errors_total",
			Help:      "Favorites/settings storage failures.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.providerCalls, m.searches, m.cache, m.storage)
	return m
}

func (m *Metrics) providerCall(provider, outcome string) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) search(source string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(source).Inc()
}

func (m *Metrics) cacheLookup(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

func (m *Metrics) storageError(op string) {
	if m == nil {
		return
	}
	m.storage.WithLabelValues(op).Inc()
}

// SPDX-License-Identifier: GPL-3.0-or-later

package perf

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK     = "ok"
	resultNoData = "no_data"
	resultError  = "error"
)

type metrics struct {
	queries     *prometheus.CounterVec
	reconnects  prometheus.Counter
	resolutions prometheus.Counter
	cacheHits   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmdkperf",
			Name:      "queries_total",
			Help:      "Volume stats queries by result.",
		}, []string{"result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmdkperf",
			Name:      "reconnects_total",
			Help:      "Sessions re-established after the service invalidated the previous one.",
		}),
		resolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmdkperf",
			Name:      "resolutions_total",
			Help:      "Device counter set resolutions against the service.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vmdkperf",
			Name:      "cache_hits_total",
			Help:      "Device counter set cache hits.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.queries, m.reconnects, m.resolutions, m.cacheHits)
	}
	return m
}

func (m *metrics) observe(err error) {
	switch {
	case err == nil:
		m.queries.WithLabelValues(resultOK).Inc()
	case isNoData(err):
		m.queries.WithLabelValues(resultNoData).Inc()
	default:
		m.queries.WithLabelValues(resultError).Inc()
	}
}

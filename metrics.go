/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	gamesCreated prometheus.Counter
	liveGames    prometheus.Gauge
	spins        prometheus.Counter
	settlements  *prometheus.CounterVec
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gamesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whopays",
			Name:      "games_created_total",
			Help:      "Game sessions created.",
		}),
		liveGames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "whopays",
			Name:      "games_live",
			Help:      "Game sessions currently held in memory.",
		}),
		spins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whopays",
			Name:      "spins_total",
			Help:      "Wheel spins started.",
		}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whopays",
			Name:      "settlements_total",
			Help:      "Bill checks, by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.gamesCreated,
		m.liveGames,
		m.spins,
		m.settlements,
	)

	return m
}

func (m *Metrics) settled(o Outcome) {
	m.settlements.WithLabelValues(o.String()).Inc()
}

func registerMetricsHandler(cfg *Config, m *Metrics, mux *httprouter.Router) {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})

	mux.GET(cfg.prefix+"/metrics", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(cfg, w)
		h.ServeHTTP(w, r)
	})
}

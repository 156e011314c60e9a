// Package metrics exposes Prometheus counters for ingestion, dispatch, and the paper ledger.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bars_ingested_total", Help: "Bars parsed and accepted by ingestion"},
	)
	RecordsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "records_rejected_total", Help: "Records that failed to parse"},
		[]string{"reason"},
	)
	PoolTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pool_tasks_total", Help: "Task pool units by outcome"},
		[]string{"outcome"},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "events_published_total", Help: "Events published on the dispatcher"},
		[]string{"kind"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals emitted by the generator"},
		[]string{"action"},
	)
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fills_total", Help: "Paper ledger transitions applied"},
		[]string{"side"},
	)
)

func init() {
	prometheus.MustRegister(BarsIngested, RecordsRejected, PoolTasksTotal, EventsPublished, SignalsTotal, FillsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

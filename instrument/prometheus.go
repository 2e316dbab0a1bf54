// Package instrument holds the Prometheus metrics of the onion client.
// Metrics are package globals updated through small helper functions; Init
// registers them once with the default registry.
package instrument

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pathsBuilt = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onionrelay_paths_built_total",
			Help: "Number of onion paths built",
		},
	)
	pathBuildFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onionrelay_path_build_failures_total",
			Help: "Number of failed onion path builds",
		},
	)
	pathsEvicted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onionrelay_paths_evicted_total",
			Help: "Number of onion paths evicted, by failure kind",
		},
		[]string{"reason"},
	)
	readyPaths = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "onionrelay_ready_paths",
			Help: "Number of paths currently ready for use",
		},
	)
	onionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onionrelay_onion_requests_total",
			Help: "Number of onion requests, by outcome",
		},
		[]string{"outcome"},
	)
	quorumFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "onionrelay_quorum_failures_total",
			Help: "Number of swarm requests that did not reach quorum",
		},
	)
	poolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "onionrelay_node_pool_size",
			Help: "Number of candidate nodes in the pool",
		},
	)

	initOnce sync.Once
)

// Init registers all metrics with the default registry. It is safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(pathsBuilt)
		prometheus.MustRegister(pathBuildFailures)
		prometheus.MustRegister(pathsEvicted)
		prometheus.MustRegister(readyPaths)
		prometheus.MustRegister(onionRequests)
		prometheus.MustRegister(quorumFailures)
		prometheus.MustRegister(poolSize)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func PathBuilt() {
	pathsBuilt.Inc()
}

func PathBuildFailed() {
	pathBuildFailures.Inc()
}

func PathEvicted(reason string) {
	pathsEvicted.With(prometheus.Labels{"reason": reason}).Inc()
}

func ReadyPaths(n int) {
	readyPaths.Set(float64(n))
}

// OnionRequest counts a finished onion request. outcome is "ok", the
// error kind, or "invalid_request" for input rejected before sending.
func OnionRequest(outcome string) {
	onionRequests.With(prometheus.Labels{"outcome": outcome}).Inc()
}

func QuorumFailed() {
	quorumFailures.Inc()
}

func PoolSize(n int) {
	poolSize.Set(float64(n))
}

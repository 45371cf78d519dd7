// Package metrics exposes Prometheus counters for the bridge:
//   - bridge_trades_ingested_total{result}      fills journaled (ok|duplicate|error)
//   - bridge_sync_rows_total{mode,result}       account rows per sync (full|telemetry, applied|skipped)
//   - bridge_syncs_total{mode}                  sync calls
//   - bridge_commands_total{type,status}        command lifecycle (pending|executed|failed|expired)
//   - bridge_copier_running                     last reported is_running (0/1)
//   - bridge_http_requests_total{route,code}    API requests
//   - bridge_http_request_seconds{route}        API latency
//
// They are registered in init() and served at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tradesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_trades_ingested_total",
			Help: "Trade events submitted by the agent",
		},
		[]string{"result"},
	)

	syncRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_sync_rows_total",
			Help: "Account rows processed by sync, by mode and result",
		},
		[]string{"mode", "result"},
	)

	syncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_syncs_total",
			Help: "Sync calls by mode",
		},
		[]string{"mode"},
	)

	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_commands_total",
			Help: "Copier commands by type and status transition",
		},
		[]string{"type", "status"},
	)

	copierRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_copier_running",
			Help: "Last run state written (1 running, 0 stopped)",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "API requests by route template and status code",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_http_request_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(tradesIngested, syncRows, syncs, commands, copierRunning)
	prometheus.MustRegister(httpRequests, httpDuration)
}

// Handler serves the default registry
func Handler() http.Handler { return promhttp.Handler() }

func IncTradeIngested(result string)    { tradesIngested.WithLabelValues(result).Inc() }
func IncSync(mode string)               { syncs.WithLabelValues(mode).Inc() }
func IncSyncRow(mode, result string)    { syncRows.WithLabelValues(mode, result).Inc() }
func IncCommand(cmdType, status string) { commands.WithLabelValues(cmdType, status).Inc() }

// ObserveRequest records one API request
func ObserveRequest(route string, code int, d time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// SetCopierRunning mirrors the run state into a gauge
func SetCopierRunning(running bool) {
	if running {
		copierRunning.Set(1)
	} else {
		copierRunning.Set(0)
	}
}

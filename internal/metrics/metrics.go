// Package metrics exports Prometheus collectors for the runtime, covering
// processes, supervisors, registries, links, and monitors.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	processesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noex",
			Subsystem: "process",
			Name:      "started_total",
			Help:      "Number of processes started.",
		}, []string{"name"},
	)
	processesTerminated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noex",
			Subsystem: "process",
			Name:      "terminated_total",
			Help:      "Number of processes terminated, by reason.",
		}, []string{"name", "reason"},
	)
	mailboxQueueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "noex",
			Subsystem: "process",
			Name:      "mailbox_queue_size",
			Help:      "Current mailbox queue length per process id.",
		}, []string{"id"},
	)

	supervisorRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noex",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Number of child restarts performed by a supervisor.",
		}, []string{"supervisor", "child"},
	)
	supervisorGiveUps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noex",
			Subsystem: "supervisor",
			Name:      "give_ups_total",
			Help:      "Number of times a supervisor exceeded its restart intensity and gave up.",
		}, []string{"supervisor"},
	)

	registryEntryCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "noex",
			Subsystem: "registry",
			Name:      "entry_count",
			Help:      "Current entry count per registry name.",
		}, []string{"registry"},
	)
	linkEdgeCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "noex",
			Subsystem: "link",
			Name:      "edge_count",
			Help:      "Current number of link edges.",
		}, nil,
	)
	monitorEdgeCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "noex",
			Subsystem: "monitor",
			Name:      "edge_count",
			Help:      "Current number of monitor edges.",
		}, nil,
	)
)

// Register registers all collectors with r. Safe to call more than once;
// subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		processesStarted, processesTerminated, mailboxQueueSize,
		supervisorRestarts, supervisorGiveUps,
		registryEntryCount, linkEdgeCount, monitorEdgeCount,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves Prometheus metrics for the DefaultGatherer. The caller
// wires it onto an HTTP mux (e.g. internal/httpapi's router).
func Handler() http.Handler { return promhttp.Handler() }

func IncProcessStarted(name string) {
	if regOK.Load() {
		processesStarted.WithLabelValues(name).Inc()
	}
}

func IncProcessTerminated(name, reason string) {
	if regOK.Load() {
		processesTerminated.WithLabelValues(name, reason).Inc()
	}
}

func SetMailboxQueueSize(id string, n int) {
	if regOK.Load() {
		mailboxQueueSize.WithLabelValues(id).Set(float64(n))
	}
}

func IncSupervisorRestart(supervisor, child string) {
	if regOK.Load() {
		supervisorRestarts.WithLabelValues(supervisor, child).Inc()
	}
}

func IncSupervisorGiveUp(supervisor string) {
	if regOK.Load() {
		supervisorGiveUps.WithLabelValues(supervisor).Inc()
	}
}

func SetRegistryEntryCount(registry string, n int) {
	if regOK.Load() {
		registryEntryCount.WithLabelValues(registry).Set(float64(n))
	}
}

func SetLinkEdgeCount(n int) {
	if regOK.Load() {
		linkEdgeCount.WithLabelValues().Set(float64(n))
	}
}

func SetMonitorEdgeCount(n int) {
	if regOK.Load() {
		monitorEdgeCount.WithLabelValues().Set(float64(n))
	}
}

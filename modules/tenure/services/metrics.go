package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenure",
		Subsystem: "snapshot",
		Name:      "builds_total",
		Help:      "Total number of change snapshots built, broken down by build mode.",
	}, []string{"mode"})

	snapshotExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenure",
		Subsystem: "snapshot",
		Name:      "executions_total",
		Help:      "Total number of snapshot executions, broken down by result.",
	}, []string{"result"})

	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenure",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of write conflicts, broken down by kind.",
	}, []string{"kind"})
)

func recordSnapshotBuild(mode string) {
	snapshotBuilds.WithLabelValues(mode).Inc()
}

func recordExecution(result string) {
	snapshotExecutions.WithLabelValues(result).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	writeConflicts.WithLabelValues(kind).Inc()
}

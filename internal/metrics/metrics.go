// Package metrics exposes counters for dispatched cluster operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsStarted counts dispatched asynchronous operations by kind.
	OperationsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kubevapp",
		Name:      "operations_started_total",
		Help:      "Asynchronous cluster operations dispatched.",
	}, []string{"operation"})

	// OperationsSucceeded counts operations whose task reached SUCCESS.
	OperationsSucceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kubevapp",
		Name:      "operations_succeeded_total",
		Help:      "Asynchronous cluster operations that completed successfully.",
	}, []string{"operation"})

	// OperationsFailed counts operations whose task reached ERROR.
	OperationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kubevapp",
		Name:      "operations_failed_total",
		Help:      "Asynchronous cluster operations that ended in error.",
	}, []string{"operation"})
)

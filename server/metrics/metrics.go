// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ringmeta"

const (
	ResultOk    = "ok"
	ResultError = "error"
)

var (
	storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "op_duration_seconds",
			Help:      "Duration of meta storage operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op", "result"},
	)

	setTargetTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "convergence",
			Name:      "set_target_total",
			Help:      "Total number of set target requests",
		},
		[]string{"result"},
	)

	getStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "convergence",
			Name:      "get_status_total",
			Help:      "Total number of convergence status queries",
		},
		[]string{"result"},
	)

	controllerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "convergence",
			Name:      "controller_state",
			Help:      "1 for the state the convergence controller is in",
		},
		[]string{"dht", "state"},
	)

	bootstrapStepTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "step_total",
			Help:      "Total number of bootstrap steps executed",
		},
		[]string{"step", "result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of operator API requests",
		},
		[]string{"route", "code"},
	)
)

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOk
}

// ObserveStoreOp records the duration of a meta storage operation started at begin.
func ObserveStoreOp(op string, begin time.Time, err error) {
	storeOpDuration.WithLabelValues(op, result(err)).Observe(time.Since(begin).Seconds())
}

func RecordSetTarget(err error) {
	setTargetTotal.WithLabelValues(result(err)).Inc()
}

func RecordGetStatus(err error) {
	getStatusTotal.WithLabelValues(result(err)).Inc()
}

func RecordBootstrapStep(step string, err error) {
	bootstrapStepTotal.WithLabelValues(step, result(err)).Inc()
}

func RecordHTTPRequest(route string, code int) {
	httpRequestsTotal.WithLabelValues(route, httpCodeLabel(code)).Inc()
}

// SetControllerState marks state as the only active state of the controller of dht.
func SetControllerState(dht string, state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		controllerState.WithLabelValues(dht, s).Set(v)
	}
}

func httpCodeLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Copyright (c) 2025 The Peach Miner developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adequatesystems/peach-miner/device"
)

// Metrics holds the Prometheus collectors the Coordinator updates at the
// end of every iteration. It owns a private Registry rather than
// registering into the global default, so a Coordinator is usable in
// tests without a running HTTP server and without colliding with another
// Coordinator's metrics in the same process.
type Metrics struct {
	Registry *prometheus.Registry

	deviceStatus   *prometheus.GaugeVec
	deviceHashrate *prometheus.GaugeVec
	hashrateTotal  prometheus.Gauge
	sharesAccepted prometheus.Counter
	sharesRejected prometheus.Counter
}

// NewMetrics constructs and registers a Metrics set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		deviceStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "peachminer",
			Name:      "device_status",
			Help:      "Current device state machine status (0=NULL,1=INIT,2=IDLE,3=WORK,4=FAIL).",
		}, []string{"device_id", "kind"}),
		deviceHashrate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "peachminer",
			Name:      "device_hashrate",
			Help:      "Per-device hashes per second, as last measured during a WORK tick.",
		}, []string{"device_id", "kind"}),
		hashrateTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "peachminer",
			Name:      "hashrate_total",
			Help:      "Aggregate hashes per second across all attached devices.",
		}),
		sharesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peachminer",
			Name:      "shares_accepted_total",
			Help:      "Shares accepted by the pool.",
		}),
		sharesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peachminer",
			Name:      "shares_rejected_total",
			Help:      "Shares rejected by the pool.",
		}),
	}
	reg.MustRegister(m.deviceStatus, m.deviceHashrate, m.hashrateTotal, m.sharesAccepted, m.sharesRejected)
	return m
}

// observeDevice updates the per-device gauges for ctx.
func (m *Metrics) observeDevice(ctx *device.Context) {
	id := strconv.Itoa(ctx.ID)
	kind := ctx.Kind.String()
	m.deviceStatus.WithLabelValues(id, kind).Set(float64(ctx.Status))
	m.deviceHashrate.WithLabelValues(id, kind).Set(ctx.HPS)
}

// setAggregateHashrate sets the summed hashrate gauge.
func (m *Metrics) setAggregateHashrate(total float64) {
	m.hashrateTotal.Set(total)
}

// observeShareDelta increments the accepted/rejected counters by the given
// non-negative deltas since the last observation.
func (m *Metrics) observeShareDelta(acceptedDelta, rejectedDelta uint64) {
	if acceptedDelta > 0 {
		m.sharesAccepted.Add(float64(acceptedDelta))
	}
	if rejectedDelta > 0 {
		m.sharesRejected.Add(float64(rejectedDelta))
	}
}

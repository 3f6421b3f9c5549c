// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports Lorris frame counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

// Frame directions
const (
	DirectionRX = "rx"
	DirectionTX = "tx"
)

// NewRegistry creates a registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Collector counts frames and anomalies. A nil *Collector is valid and
// records nothing.
type Collector struct {
	vocab *lorris.Vocabulary

	Frames    *prometheus.CounterVec // labels: direction, command
	Anomalies *prometheus.CounterVec // labels: type
	Discarded prometheus.Counter
	Clients   prometheus.Gauge
}

// NewCollector registers the Lorris metrics on reg. vocab names the
// command label and validates received frames; it may be nil.
func NewCollector(reg prometheus.Registerer, vocab *lorris.Vocabulary) *Collector {
	c := &Collector{
		vocab: vocab,
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lorris",
			Name:      "frames_total",
			Help:      "Frames sent and received, by command.",
		}, []string{"direction", "command"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lorris",
			Name:      "anomalies_total",
			Help:      "Received frames failing vocabulary validation, by anomaly type.",
		}, []string{"type"}),
		Discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lorris",
			Name:      "discarded_bytes_total",
			Help:      "Bytes dropped by the decoder while resynchronizing.",
		}),
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lorris",
			Name:      "clients",
			Help:      "Peers with a decoder allocated.",
		}),
	}
	reg.MustRegister(c.Frames, c.Anomalies, c.Discarded, c.Clients)
	return c
}

// ObserveRX counts a received frame and returns its validation result
func (c *Collector) ObserveRX(p *lorris.Packet) []lorris.ValidationError {
	if c == nil {
		return nil
	}
	errs := c.vocab.Validate(p)
	c.Frames.WithLabelValues(DirectionRX, c.vocab.CommandName(p.Command())).Inc()
	for _, e := range errs {
		c.Anomalies.WithLabelValues(e.Type.String()).Inc()
	}
	return errs
}

// ObserveTX counts a sent frame
func (c *Collector) ObserveTX(p *lorris.Packet) {
	if c == nil {
		return
	}
	c.Frames.WithLabelValues(DirectionTX, c.vocab.CommandName(p.Command())).Inc()
}

// AddDiscarded adds n resynchronization bytes
func (c *Collector) AddDiscarded(n uint64) {
	if c == nil || n == 0 {
		return
	}
	c.Discarded.Add(float64(n))
}

// SetClients records the number of known peers
func (c *Collector) SetClients(n int) {
	if c == nil {
		return
	}
	c.Clients.Set(float64(n))
}

package rndis

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ardnew/softrndis/pkg"
)

// Metrics tracks Prometheus metrics for RNDIS control traffic.
//
// All metrics use the "rndis_" prefix. Methods handle a nil receiver, so a
// nil *Metrics is a no-op when metrics are disabled.
type Metrics struct {
	// Messages counts dispatched control messages.
	// Labels: type=[INITIALIZE, HALT, QUERY, SET, RESET, KEEPALIVE, unknown, invalid],
	//         result=[ok, not_supported, malformed, no_network_device, no_memory, ...]
	Messages *prometheus.CounterVec

	// Indications counts INDICATE_STATUS messages queued.
	// Labels: status=[media connect, media disconnect]
	Indications *prometheus.CounterVec

	// QueueDepth is the number of responses queued per instance.
	// Labels: instance
	QueueDepth *prometheus.GaugeVec

	// FilterChanges counts packet filter updates by the data-path gate they
	// produced. Labels: gate=[open, closed]
	FilterChanges *prometheus.CounterVec

	// DispatchDuration tracks time spent handling one control message.
	DispatchDuration prometheus.Histogram
}

// NewMetrics creates RNDIS metrics and registers them with registerer.
// If registerer is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rndis_messages_total",
				Help: "Total RNDIS control messages dispatched by type and result",
			},
			[]string{"type", "result"},
		),
		Indications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rndis_indications_total",
				Help: "Total RNDIS status indications queued by status",
			},
			[]string{"status"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rndis_response_queue_depth",
				Help: "Responses waiting for the transport per instance",
			},
			[]string{"instance"},
		),
		FilterChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rndis_packet_filter_changes_total",
				Help: "Total packet filter updates by resulting data-path gate",
			},
			[]string{"gate"},
		),
		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rndis_dispatch_duration_seconds",
				Help:    "Control message handling duration in seconds",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.Messages,
		m.Indications,
		m.QueueDepth,
		m.FilterChanges,
		m.DispatchDuration,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func messageLabel(t MessageType) string {
	switch t {
	case MsgInitialize, MsgHalt, MsgQuery, MsgSet, MsgReset, MsgKeepalive:
		return t.String()
	case 0:
		return "invalid"
	default:
		return "unknown"
	}
}

func (m *Metrics) recordMessage(t MessageType, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(messageLabel(t), pkg.ErrorLabel(err)).Inc()
	m.DispatchDuration.Observe(d.Seconds())
}

func (m *Metrics) recordIndication(s Status) {
	if m == nil {
		return
	}
	m.Indications.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) setQueueDepth(id ID, n int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(strconv.Itoa(int(id))).Set(float64(n))
}

func (m *Metrics) recordFilterChange(open bool) {
	if m == nil {
		return
	}
	gate := "closed"
	if open {
		gate = "open"
	}
	m.FilterChanges.WithLabelValues(gate).Inc()
}

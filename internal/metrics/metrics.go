// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons reported by the listener.
const (
	DropShort    = "short"
	DropEthernet = "ethernet"
	DropAVTPDU   = "avtpdu"
	DropCIP      = "cip"
	DropEmpty    = "empty"
)

var (
	// TalkerFramesTotal counts AVTP frames written to the wire
	TalkerFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avbstream_talker_frames_total",
			Help: "Total number of AVTP frames sent",
		},
		[]string{"interface", "format"},
	)

	// TalkerBytesTotal counts frame bytes written to the wire, headers included
	TalkerBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avbstream_talker_bytes_total",
			Help: "Total number of bytes sent",
		},
		[]string{"interface", "format"},
	)

	// TalkerSendErrorsTotal counts failed or short socket writes
	TalkerSendErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avbstream_talker_send_errors_total",
			Help: "Total number of failed frame sends",
		},
		[]string{"interface", "format"},
	)

	// ListenerFramesTotal counts AVTP frames accepted by the listener
	ListenerFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avbstream_listener_frames_total",
			Help: "Total number of AVTP frames accepted",
		},
		[]string{"interface", "format"},
	)

	// ListenerDropsTotal counts frames discarded before depayloading
	ListenerDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avbstream_listener_drops_total",
			Help: "Total number of frames dropped by the listener",
		},
		[]string{"interface", "reason"},
	)

	// ListenerDiscontinuitiesTotal counts sequence number gaps
	ListenerDiscontinuitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avbstream_listener_discontinuities_total",
			Help: "Total number of sequence number discontinuities",
		},
		[]string{"interface", "format"},
	)

	// ListenerTimeoutsTotal counts poll timeouts with no traffic
	ListenerTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avbstream_listener_timeouts_total",
			Help: "Total number of listener receive timeouts",
		},
		[]string{"interface"},
	)

	// PresentationOffsetSeconds tracks how far ahead of the local clock listener timestamps land
	PresentationOffsetSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "avbstream_listener_presentation_offset_seconds",
			Help:    "Presentation timestamp minus running time at arrival",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 100us to ~3s
		},
		[]string{"interface", "format"},
	)
)

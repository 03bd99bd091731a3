package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsSent counts sealed records written to the wire.
	RecordsSent = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "sent_total",
			Help:      "Total number of records sent",
		},
	)

	// RecordsReceived counts records read and verified.
	RecordsReceived = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "received_total",
			Help:      "Total number of records received and verified",
		},
	)

	// RecordBytesSent counts wire bytes written by the record layer.
	RecordBytesSent = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "sent_bytes_total",
			Help:      "Total record bytes written to the wire",
		},
	)

	// RecordBytesReceived counts wire bytes consumed by the record layer.
	RecordBytesReceived = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "received_bytes_total",
			Help:      "Total record bytes read from the wire",
		},
	)

	// RecordErrors counts record-layer failures by stage.
	RecordErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "errors_total",
			Help:      "Total record-layer failures by stage",
		},
		[]string{"stage"}, // write, frame, open
	)
)

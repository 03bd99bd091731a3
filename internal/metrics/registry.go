package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "kyberlink"

// Registry holds every collector the library registers. The CLI exposes it
// on /metrics; embedders may also mount it themselves.
var Registry = prometheus.NewRegistry()

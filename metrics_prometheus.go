package fabricmanager

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cxlfabric/fabricmanager/internal/interfaces"
)

// PrometheusObserver adapts fabric manager events onto real Prometheus
// collectors, so a deployment can scrape /metrics instead of reading
// Metrics.Snapshot in-process.
type PrometheusObserver struct {
	channelRequests  *prometheus.CounterVec
	channelReleases  prometheus.Counter
	writeRegions     *prometheus.CounterVec
	readOps          *prometheus.CounterVec
	disconnects      prometheus.Counter
	devicesUnhealthy prometheus.Counter
	channelLatency   prometheus.Histogram
}

// NewPrometheusObserver constructs a PrometheusObserver and registers its
// collectors against reg. Passing prometheus.NewRegistry() keeps the
// metrics isolated from the global default registry.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	p := &PrometheusObserver{
		channelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fabricmanager",
			Name:      "channel_requests_total",
			Help:      "RPC_REQUEST_CHANNEL_REQ outcomes by result.",
		}, []string{"result"}),
		channelReleases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fabricmanager",
			Name:      "channel_releases_total",
			Help:      "Channels released, whether by explicit release or by disconnect cleanup.",
		}),
		writeRegions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fabricmanager",
			Name:      "replicated_write_regions_total",
			Help:      "Per-region replicated write attempts by outcome.",
		}, []string{"outcome"}),
		readOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fabricmanager",
			Name:      "replicated_read_total",
			Help:      "Replicated reads by outcome.",
		}, []string{"outcome"}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fabricmanager",
			Name:      "client_disconnects_total",
			Help:      "Client socket disconnects observed.",
		}),
		devicesUnhealthy: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fabricmanager",
			Name:      "devices_marked_unhealthy_total",
			Help:      "Backing replica devices marked unhealthy via the admin fail command.",
		}),
		channelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fabricmanager",
			Name:      "channel_request_latency_seconds",
			Help:      "Latency of RPC_REQUEST_CHANNEL_REQ handling.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 10, 8),
		}),
	}
	reg.MustRegister(
		p.channelRequests,
		p.channelReleases,
		p.writeRegions,
		p.readOps,
		p.disconnects,
		p.devicesUnhealthy,
		p.channelLatency,
	)
	return p
}

func (p *PrometheusObserver) ObserveChannelRequest(success bool, latencyNs uint64) {
	result := "ok"
	if !success {
		result = "failed"
	}
	p.channelRequests.WithLabelValues(result).Inc()
	p.channelLatency.Observe(float64(latencyNs) / 1e9)
}

func (p *PrometheusObserver) ObserveChannelRelease() {
	p.channelReleases.Inc()
}

func (p *PrometheusObserver) ObserveWrite(regionsAttempted, regionsSucceeded int, latencyNs uint64) {
	outcome := "partial"
	switch {
	case regionsAttempted == 0:
		outcome = "no_healthy_backend"
	case regionsSucceeded == regionsAttempted:
		outcome = "ok"
	}
	p.writeRegions.WithLabelValues(outcome).Add(float64(regionsAttempted))
}

func (p *PrometheusObserver) ObserveRead(success bool, latencyNs uint64) {
	outcome := "ok"
	if !success {
		outcome = "no_healthy_backend"
	}
	p.readOps.WithLabelValues(outcome).Inc()
}

func (p *PrometheusObserver) ObserveDisconnect() {
	p.disconnects.Inc()
}

func (p *PrometheusObserver) ObserveDeviceMarkedUnhealthy(deviceIndex int) {
	p.devicesUnhealthy.Inc()
}

var _ interfaces.Observer = (*PrometheusObserver)(nil)

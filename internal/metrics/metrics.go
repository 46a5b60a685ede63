package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stoik/phish-catcher/internal/domain"
)

const namespace = "phishcatcher"

// Collector exposes pipeline counters in Prometheus format.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	certificates       prometheus.Counter
	domainsScored      *prometheus.CounterVec
	alerts             *prometheus.CounterVec
	alertsDropped      prometheus.Counter
	batchFetchFailures prometheus.Counter
	reportsSent        prometheus.Counter
	reportsFailed      prometheus.Counter
	publishFailures    prometheus.Counter
}

// New creates a collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		certificates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_total",
			Help:      "Certificates received from the transparency feed.",
		}),
		domainsScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domains_scored_total",
			Help:      "Domains scored, by feed.",
		}, []string{"source"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Domains at or above the alert threshold, by feed.",
		}, []string{"source"}),
		alertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_dropped_total",
			Help:      "Alerts lost because the alert store rejected the append.",
		}),
		batchFetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_fetch_failures_total",
			Help:      "Failed newly-registered-domains downloads.",
		}),
		reportsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_sent_total",
			Help:      "Alert reports mailed and archived.",
		}),
		reportsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_failed_total",
			Help:      "Alert reports the mail transport rejected.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Alerts that could not be published to the message bus.",
		}),
	}

	c.registry.MustRegister(
		c.certificates,
		c.domainsScored,
		c.alerts,
		c.alertsDropped,
		c.batchFetchFailures,
		c.reportsSent,
		c.reportsFailed,
		c.publishFailures,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the registry backing the collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics endpoint
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) IncCertificate() {
	if c == nil {
		return
	}
	c.certificates.Inc()
}

func (c *Collector) IncScored(source domain.Source) {
	if c == nil {
		return
	}
	c.domainsScored.WithLabelValues(string(source)).Inc()
}

func (c *Collector) IncAlert(source domain.Source) {
	if c == nil {
		return
	}
	c.alerts.WithLabelValues(string(source)).Inc()
}

func (c *Collector) IncAlertDropped() {
	if c == nil {
		return
	}
	c.alertsDropped.Inc()
}

func (c *Collector) IncBatchFetchFailure() {
	if c == nil {
		return
	}
	c.batchFetchFailures.Inc()
}

func (c *Collector) IncReportSent() {
	if c == nil {
		return
	}
	c.reportsSent.Inc()
}

func (c *Collector) IncReportFailed() {
	if c == nil {
		return
	}
	c.reportsFailed.Inc()
}

func (c *Collector) IncPublishFailure() {
	if c == nil {
		return
	}
	c.publishFailures.Inc()
}

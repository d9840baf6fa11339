package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	webhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wearsync",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Webhook deliveries by vendor and outcome (accepted, rejected, ignored, processed, failed).",
	}, []string{"vendor", "outcome"})

	apiRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wearsync",
		Subsystem: "vendor_api",
		Name:      "retries_total",
		Help:      "Retried vendor API calls by vendor and trigger (rate_limit, server_error, network).",
	}, []string{"vendor", "trigger"})

	tokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wearsync",
		Subsystem: "tokens",
		Name:      "refreshes_total",
		Help:      "Token refresh attempts by vendor and outcome (ok, recovered, failed).",
	}, []string{"vendor", "outcome"})

	tokenWriteConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wearsync",
		Subsystem: "tokens",
		Name:      "write_conflicts_total",
		Help:      "Token document writes lost to a concurrent revision bump.",
	}, []string{"vendor"})

	syncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wearsync",
		Subsystem: "backfill",
		Name:      "vendor_syncs_total",
		Help:      "Per-vendor manual sync outcomes.",
	}, []string{"vendor", "outcome"})
)

func init() {
	prometheus.MustRegister(webhookDeliveries, apiRetries, tokenRefreshes, tokenWriteConflicts, syncRuns)
}

func RecordWebhookDelivery(vendor, outcome string) {
	webhookDeliveries.WithLabelValues(vendor, outcome).Inc()
}

func RecordAPIRetry(vendor, trigger string) {
	apiRetries.WithLabelValues(vendor, trigger).Inc()
}

func RecordTokenRefresh(vendor, outcome string) {
	tokenRefreshes.WithLabelValues(vendor, outcome).Inc()
}

func RecordTokenWriteConflict(vendor string) {
	tokenWriteConflicts.WithLabelValues(vendor).Inc()
}

func RecordVendorSync(vendor, outcome string) {
	syncRuns.WithLabelValues(vendor, outcome).Inc()
}

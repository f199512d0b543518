// Package metrics contains all application-logic metrics
package metrics

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

var (
	bundlesSimulated   = metrics.NewCounter("bundles_simulated_total")
	bundlesSent        = metrics.NewCounter("bundles_sent_total")
	bundlesIncluded    = metrics.NewCounter("bundles_included_total")
	bundlesNotIncluded = metrics.NewCounter("bundles_not_included_total")
	broadcastsRejected = metrics.NewCounter("broadcasts_rejected_by_all_relays_total")
	blockFetchFailures = metrics.NewCounter("block_fetch_failures_total")
	journalFailures    = metrics.NewCounter("journal_failures_total")
)

const (
	relayCallDurationLabel = `relay_call_duration_milliseconds{relay="%s",method="%s"}`
	relayCallFailureLabel  = `relay_call_failure_total{relay="%s",method="%s"}`
	relayRejectionLabel    = `relay_rejection_total{relay="%s",status="%d"}`
)

func RecordRelayCallDuration(relay, method string, duration int64) {
	l := fmt.Sprintf(relayCallDurationLabel, relay, method)
	metrics.GetOrCreateSummary(l).Update(float64(duration))
}

func IncRelayCallFailure(relay, method string) {
	l := fmt.Sprintf(relayCallFailureLabel, relay, method)
	metrics.GetOrCreateCounter(l).Inc()
}

func IncRelayRejection(relay string, status int) {
	l := fmt.Sprintf(relayRejectionLabel, relay, status)
	metrics.GetOrCreateCounter(l).Inc()
}

func IncBundlesSimulated() {
	bundlesSimulated.Inc()
}

func IncBundlesSent() {
	bundlesSent.Inc()
}

func IncBundlesIncluded() {
	bundlesIncluded.Inc()
}

func IncBundlesNotIncluded() {
	bundlesNotIncluded.Inc()
}

func IncBroadcastsRejected() {
	broadcastsRejected.Inc()
}

func IncBlockFetchFailures() {
	blockFetchFailures.Inc()
}

func IncJournalFailures() {
	journalFailures.Inc()
}

// Package metrics exposes the Prometheus collectors the registry and event
// engine update, grounded on the teacher's pkg/metrics package (its own
// prometheus.NewRegistry()-plus-CounterVec/Gauge/HistogramVec idiom),
// generalized from HTTP/function metrics to bundle- and service-registry
// metrics. Core itself never starts an HTTP server for these — that is an
// out-of-scope shell concern — but the collectors are registered and
// updated by core so any embedding program can expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the collector registry bundlehost's components register
// into; an embedding program wires this into promhttp.HandlerFor.
var Registry = prometheus.NewRegistry()

var (
	// ServicesRegistered counts register() calls against the registry,
	// labeled by interface name.
	ServicesRegistered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlehost_services_registered_total",
		Help: "Number of services registered, labeled by interface name.",
	}, []string{"interface"})

	// ServicesActive is the current count of live (not-yet-unregistered)
	// services.
	ServicesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bundlehost_services_active",
		Help: "Current count of registered, not-yet-unregistered services.",
	})

	// TrackersActive is the current count of open trackers.
	TrackersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bundlehost_trackers_active",
		Help: "Current count of open service trackers.",
	})

	// BundleStateTransitions counts bundle lifecycle transitions, labeled
	// by the destination state.
	BundleStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlehost_bundle_state_transitions_total",
		Help: "Number of bundle lifecycle transitions, labeled by destination state.",
	}, []string{"state"})

	// EventTickDuration observes the wall-clock duration of a single
	// scheduled-event engine tick (command drain + deadline scan).
	EventTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bundlehost_event_tick_duration_seconds",
		Help:    "Duration of a single scheduled-event engine tick.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	// ScheduledEventsActive is the current count of live scheduled events.
	ScheduledEventsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bundlehost_scheduled_events_active",
		Help: "Current count of live scheduled events.",
	})
)

func init() {
	Registry.MustRegister(
		ServicesRegistered,
		ServicesActive,
		TrackersActive,
		BundleStateTransitions,
		EventTickDuration,
		ScheduledEventsActive,
	)
}

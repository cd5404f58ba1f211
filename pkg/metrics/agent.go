/*
Copyright 2025 The Kubermatic Kubernetes Platform contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EventsProcessedTotal counts updates handed to a resource handler.
	EventsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_policy_agent_events_processed_total",
		Help: "Count of all watch events handed to a resource handler",
	}, []string{"resource", "event"})

	// HandlerErrorsTotal counts updates whose handler returned an error.
	HandlerErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_policy_agent_handler_errors_total",
		Help: "Count of watch events whose handler returned an error",
	}, []string{"resource", "event"})

	// UpdatesDroppedTotal counts updates that were discarded before any
	// handler ran, labelled with the reason.
	UpdatesDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_policy_agent_updates_dropped_total",
		Help: "Count of watch events discarded before reaching a handler",
	}, []string{"reason"})

	// WatchRestartsTotal counts full list+watch cycles per resource.
	WatchRestartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_policy_agent_watch_restarts_total",
		Help: "Count of restarted list+watch cycles per resource",
	}, []string{"resource"})

	// QueueFullTotal counts enqueue attempts that timed out because the
	// dispatch queue was full.
	QueueFullTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_policy_agent_queue_full_total",
		Help: "Count of enqueue attempts that timed out on a full dispatch queue",
	}, []string{"resource"})
)

// RegisterAgentVecs must be called once before the agent starts.
func RegisterAgentVecs() {
	prometheus.MustRegister(EventsProcessedTotal)
	prometheus.MustRegister(HandlerErrorsTotal)
	prometheus.MustRegister(UpdatesDroppedTotal)
	prometheus.MustRegister(WatchRestartsTotal)
	prometheus.MustRegister(QueueFullTotal)
}

// RegisterQueueDepth exposes the current fill level of the dispatch queue.
// Must be called at most once.
func RegisterQueueDepth(depth func() int) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "network_policy_agent_queue_depth",
		Help: "Number of updates currently waiting in the dispatch queue",
	}, func() float64 {
		return float64(depth())
	}))
}

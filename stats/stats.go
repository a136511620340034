/*
Copyright (c) hostp2pd authors.

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

// Package stats holds the open-ended event-tag counters and the
// last-response-message field, and mirrors the event counters onto a
// Prometheus registry scraped over HTTP, the way ptp/sptp/stats does for
// the PTP client. The last response message is served only by /stats.
package stats

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Registry tracks per-event-tag counters and the last response message
// seen from the control client.
type Registry struct {
	mu                  sync.Mutex
	counters            map[string]int64
	lastResponseMessage string

	promRegistry *prometheus.Registry
	events       *prometheus.CounterVec
}

// New returns an empty Registry with its own private Prometheus registry
// (rather than the global DefaultRegisterer), so multiple Engines in the
// same process never collide over the hostp2pd_events_total name.
func New() *Registry {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hostp2pd_events_total",
		Help: "Count of control-client events seen, by tag.",
	}, []string{"tag"})
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(events)
	return &Registry{
		counters:     make(map[string]int64),
		promRegistry: promRegistry,
		events:       events,
	}
}

// IncEvent records one more occurrence of tag.
func (r *Registry) IncEvent(tag string) {
	r.mu.Lock()
	r.counters[tag]++
	r.mu.Unlock()
	r.events.WithLabelValues(tag).Inc()
}

// SetLastResponseMessage records the most recent line of interest.
func (r *Registry) SetLastResponseMessage(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastResponseMessage = msg
}

// Snapshot returns a copy of the current counters and last response
// message, safe to hand to a caller outside the lock.
func (r *Registry) Snapshot() (counters map[string]int64, lastResponseMessage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counters = make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		counters[k] = v
	}
	return counters, r.lastResponseMessage
}

// Start serves /metrics (Prometheus) and /stats (plain-text snapshot, one
// "tag count" line per counter) on port, blocking until the server stops.
func (r *Registry) Start(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.promRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		counters, lastMsg := r.Snapshot()
		for tag, n := range counters {
			fmt.Fprintf(w, "%s %d\n", tag, n)
		}
		fmt.Fprintf(w, "last_response_message %s\n", lastMsg)
	})
	log.Infof("stats server listening on :%d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

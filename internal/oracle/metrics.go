/*
 * Copyright 2024 Galactica Network
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "purchase_oracle"

const (
	ResultSuccess       = "success"
	ResultError         = "error"
	ResultSkipped       = "skipped"
	ResultFailed        = "failed"
	ResultAlreadySynced = "already_synced"
)

// Metrics are the prometheus collectors of the reconciliation.
type Metrics struct {
	runs             *prometheus.CounterVec
	runDuration      prometheus.Histogram
	leavesCommitted  prometheus.Counter
	rootUpdates      *prometheus.CounterVec
	unsyncedProducts prometheus.Gauge
	proofRequests    *prometheus.CounterVec
	productsUpdated  prometheus.Counter
	lastUpdate       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with the registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconcile_runs_total",
			Help:      "Reconciliation ticks by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "reconcile_run_duration_seconds",
			Help:      "Duration of completed reconciliation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		leavesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "leaves_committed_total",
			Help:      "Purchase leaves committed into product trees.",
		}),
		rootUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "root_updates_total",
			Help:      "Per product root resync outcomes.",
		}, []string{"result"}),
		unsyncedProducts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "unsynced_products",
			Help:      "Products left unsynced by the last reconciliation run.",
		}),
		proofRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "proof_requests_total",
			Help:      "Proof requests by status.",
		}, []string{"status"}),
		productsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "products_updated_total",
			Help:      "Products whose roots were resynced, as notified to the update subscribers.",
		}),
		lastUpdate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_update_timestamp_seconds",
			Help:      "Unix time of the last run that resynced at least one product root.",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.runs,
			m.runDuration,
			m.leavesCommitted,
			m.rootUpdates,
			m.unsyncedProducts,
			m.proofRequests,
			m.productsUpdated,
			m.lastUpdate,
		)
	}

	return m
}

// ObserveUpdate is a scheduler subscriber recording the runs that resynced product roots.
func (m *Metrics) ObserveUpdate(report Report) {
	m.productsUpdated.Add(float64(len(report.Products)))
	m.lastUpdate.SetToCurrentTime()
}

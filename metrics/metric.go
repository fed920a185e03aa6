// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dit"

var (
	Registry = prometheus.NewRegistry()

	ItemsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "items_created_total",
		Help:      "Items created by directory scans.",
	})

	IDsAllocated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "ids_allocated_total",
		Help:      "Identifiers handed out, by counter scope.",
	}, []string{"scope"})

	ScanErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "scan_errors_total",
		Help:      "Subtree scans aborted by an error.",
	})

	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "scan_duration_seconds",
		Help:      "Latency of top level scan calls.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

func init() {
	Registry.MustRegister(
		ItemsCreated,
		IDsAllocated,
		ScanErrors,
		ScanDuration,
	)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// Package-level tracer for score engine operations.
var tracer = otel.Tracer("wot.graph")

// Prometheus metrics for score recomputation. Recomputation runs inside the
// mutator's critical section, so its latency is on the write path and worth
// alerting on.
var (
	fullRecomputations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wot_score_full_recomputations_total",
		Help: "Full score tree rebuilds, by any trigger",
	})

	incrementalRecomputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wot_score_incremental_recomputations_total",
		Help: "Incremental score recomputations by kind (trust, distrust, distrust_slow)",
	}, []string{"kind"})

	recomputationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wot_score_recomputation_seconds",
		Help:    "Score recomputation latency by kind",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"kind"})

	scoreDivergences = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wot_score_divergences_total",
		Help: "Times incremental scores diverged from a verification rebuild",
	})
)

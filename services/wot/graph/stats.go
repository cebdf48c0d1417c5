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

import "time"

// statsCounters accumulates recomputation statistics. Guarded by the store
// lock; full recomputations are expensive enough that their average time is
// worth watching in production.
type statsCounters struct {
	FullRecomputations                    int64
	IncrementalTrustRecomputations        int64
	IncrementalDistrustRecomputations     int64
	SlowIncrementalDistrustRecomputations int64
	ScoreVerifications                    int64
	ScoreDivergences                      int64

	fullTime        time.Duration
	incrementalTime time.Duration
	incrementalRuns int64
}

func (c *statsCounters) recordFull(d time.Duration) {
	c.FullRecomputations++
	c.fullTime += d
}

func (c *statsCounters) recordIncremental(d time.Duration) {
	c.incrementalRuns++
	c.incrementalTime += d
}

// Stats is a point-in-time snapshot of graph sizes and recomputation
// counters.
type Stats struct {
	Identities    int `json:"identities"`
	OwnIdentities int `json:"own_identities"`
	Trusts        int `json:"trusts"`
	Scores        int `json:"scores"`

	FullRecomputations                    int64 `json:"full_recomputations"`
	IncrementalTrustRecomputations        int64 `json:"incremental_trust_recomputations"`
	IncrementalDistrustRecomputations     int64 `json:"incremental_distrust_recomputations"`
	SlowIncrementalDistrustRecomputations int64 `json:"slow_incremental_distrust_recomputations"`
	ScoreVerifications                    int64 `json:"score_verifications"`
	ScoreDivergences                      int64 `json:"score_divergences"`

	AvgFullRecomputationTime        time.Duration `json:"avg_full_recomputation_time"`
	AvgIncrementalRecomputationTime time.Duration `json:"avg_incremental_recomputation_time"`
}

// Stats returns a snapshot of graph sizes and recomputation counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Identities:                            len(s.identities),
		Trusts:                                0,
		FullRecomputations:                    s.stats.FullRecomputations,
		IncrementalTrustRecomputations:        s.stats.IncrementalTrustRecomputations,
		IncrementalDistrustRecomputations:     s.stats.IncrementalDistrustRecomputations,
		SlowIncrementalDistrustRecomputations: s.stats.SlowIncrementalDistrustRecomputations,
		ScoreVerifications:                    s.stats.ScoreVerifications,
		ScoreDivergences:                      s.stats.ScoreDivergences,
	}
	for _, identity := range s.identities {
		if identity.IsOwn() {
			st.OwnIdentities++
		}
	}
	for _, trustees := range s.given {
		st.Trusts += len(trustees)
	}
	for _, tree := range s.scores {
		st.Scores += len(tree)
	}
	if s.stats.FullRecomputations > 0 {
		st.AvgFullRecomputationTime = s.stats.fullTime / time.Duration(s.stats.FullRecomputations)
	}
	if s.stats.incrementalRuns > 0 {
		st.AvgIncrementalRecomputationTime = s.stats.incrementalTime / time.Duration(s.stats.incrementalRuns)
	}
	return st
}

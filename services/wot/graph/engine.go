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
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Full score recomputation
// =============================================================================
//
// Every own identity is the root of its own tree. A tree is derived from the
// trust edges in three passes:
//
//  1. Ranks: breadth-first from the root. A direct edge from the root gives
//     rank 1 regardless of sign; any other edge propagates rank only when it
//     is positive and its truster has capacity > 0.
//  2. Capacities: a lookup on rank, with two overrides — the root itself is
//     always 100, and any identity the root directly distrusts (value <= 0)
//     gets 0 no matter its rank.
//  3. Values: for each ranked identity, the capacity-weighted sum over all
//     received trusts whose truster is ranked. Integer math truncates toward
//     zero after multiply-then-divide-by-100.
//
// Capacity depends on rank only, never on value, so no fixpoint iteration is
// needed: values converge in a single pass once ranks are known. Cycles are
// therefore stable by construction.

// RecomputeAllScores rebuilds every tree from scratch. Exposed for operator
// use; normal trust mutations go through the incremental path.
func (s *Store) RecomputeAllScores() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recomputeAllTreesLocked("operator request")
}

func (s *Store) recomputeAllTreesLocked(reason string) {
	for _, ownerID := range s.ownIDsLocked() {
		s.recomputeTreeLocked(ownerID, reason)
	}
}

// recomputeTreeLocked rebuilds one owner's tree and installs the diff.
func (s *Store) recomputeTreeLocked(ownerID, reason string) {
	ctx, span := tracer.Start(context.Background(), "wot.score.full_recompute",
		trace.WithAttributes(
			attribute.String("owner", ownerID),
			attribute.String("reason", reason),
		))
	defer span.End()
	_ = ctx

	start := s.clock()
	fresh := s.computeTreeLocked(ownerID)
	changed := s.installTreeLocked(ownerID, fresh)
	elapsed := s.clock().Sub(start)

	s.stats.recordFull(elapsed)
	fullRecomputations.Inc()
	recomputationSeconds.WithLabelValues("full").Observe(elapsed.Seconds())

	span.SetAttributes(
		attribute.Int("tree_size", len(fresh)),
		attribute.Int("rows_changed", changed),
	)
	if changed > 0 {
		s.logger.Debug("full score recomputation",
			"owner", ownerID, "reason", reason,
			"tree_size", len(fresh), "rows_changed", changed,
			"duration", elapsed)
	}
}

// computeTreeLocked derives one owner's tree as a pure function of the
// current edges. It does not touch s.scores.
func (s *Store) computeTreeLocked(ownerID string) map[string]*Score {
	owner := s.identities[ownerID]
	if owner == nil || !owner.IsOwn() {
		return nil
	}

	// Pass 1: ranks, breadth-first. Frontiers are sorted so that ties at
	// equal rank always resolve the same way run to run.
	ranks := map[string]int{ownerID: OwnerRank}
	frontier := []string{ownerID}
	for len(frontier) > 0 {
		sort.Strings(frontier)
		var next []string
		for _, trusterID := range frontier {
			rank := ranks[trusterID]
			if s.capacityOfLocked(ownerID, trusterID, rank) == 0 {
				continue
			}
			for trusteeID, edge := range s.given[trusterID] {
				if trusterID != ownerID && edge.Value <= 0 {
					continue
				}
				if _, seen := ranks[trusteeID]; seen {
					continue
				}
				ranks[trusteeID] = rank + 1
				next = append(next, trusteeID)
			}
		}
		frontier = next
	}

	// Pass 2: capacities.
	fresh := make(map[string]*Score, len(ranks))
	for targetID, rank := range ranks {
		fresh[targetID] = &Score{
			OwnerID:  ownerID,
			TargetID: targetID,
			Rank:     rank,
			Capacity: s.capacityOfLocked(ownerID, targetID, rank),
		}
	}

	// Pass 3: values.
	for targetID, row := range fresh {
		row.Value = computeValue(ownerID, targetID, fresh, s.received[targetID])
	}
	return fresh
}

// computeValue sums the capacity-weighted received trusts of one target,
// given the tree's capacity assignment. The owner's own value is the
// self-trust axiom, not a sum.
func computeValue(ownerID, targetID string, tree map[string]*Score, received map[string]*Trust) int {
	if targetID == ownerID {
		return OwnerValue
	}
	value := 0
	for trusterID, edge := range received {
		truster := tree[trusterID]
		if truster == nil {
			continue
		}
		value += truster.Capacity * int(edge.Value) / 100
	}
	return value
}

// capacityOfLocked applies the rank table plus the two overrides: the owner
// is always 100, and direct distrust by the owner forces 0.
func (s *Store) capacityOfLocked(ownerID, targetID string, rank int) int {
	if targetID == ownerID {
		return OwnerCapacity
	}
	if edge := s.given[ownerID][targetID]; edge != nil && edge.Value <= 0 {
		return 0
	}
	return capacityForRank(rank)
}

// installTreeLocked replaces one owner's tree with a freshly computed one,
// emitting an event and persisting for every row that was created, changed,
// or deleted. Unchanged rows keep their LastChangeDate. Returns the number
// of rows touched.
func (s *Store) installTreeLocked(ownerID string, fresh map[string]*Score) int {
	current := s.scores[ownerID]
	if current == nil {
		current = make(map[string]*Score)
		s.scores[ownerID] = current
	}
	now := s.clock()
	changed := 0

	// Deterministic event order: deletions first, then upserts by target ID.
	var deleted, upserted []string
	for targetID := range current {
		if fresh[targetID] == nil {
			deleted = append(deleted, targetID)
		}
	}
	for targetID, row := range fresh {
		if !row.equalDerived(current[targetID]) {
			upserted = append(upserted, targetID)
		}
	}
	sort.Strings(deleted)
	sort.Strings(upserted)

	for _, targetID := range deleted {
		before := current[targetID]
		delete(current, targetID)
		s.persistScoreDeleteLocked(ownerID, targetID)
		s.emitScoreLocked(before, nil)
		changed++
	}
	for _, targetID := range upserted {
		before := current[targetID]
		row := fresh[targetID]
		row.LastChangeDate = now
		current[targetID] = row
		s.persistScoreLocked(row)
		s.emitScoreLocked(before, row)
		changed++
	}
	if len(fresh) == 0 && len(current) == 0 {
		delete(s.scores, ownerID)
	}
	return changed
}

// =============================================================================
// Verification
// =============================================================================

// VerifyScores recomputes every tree from scratch and compares it against
// the incrementally maintained rows. Divergence is logged, counted, and
// repaired by installing the full result; ErrScoreDivergence is returned so
// callers can surface that the safety net fired. Run by the periodic
// maintenance task and by tests.
func (s *Store) VerifyScores() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyScoresLocked()
}

func (s *Store) verifyScoresLocked() error {
	s.stats.ScoreVerifications++
	diverged := false
	for _, ownerID := range s.ownIDsLocked() {
		fresh := s.computeTreeLocked(ownerID)
		current := s.scores[ownerID]
		if !treesEqual(current, fresh) {
			diverged = true
			s.stats.ScoreDivergences++
			scoreDivergences.Inc()
			s.logger.Error("score verification found divergence, repairing",
				"owner", ownerID,
				"current_rows", len(current), "expected_rows", len(fresh))
			s.installTreeLocked(ownerID, fresh)
		}
	}
	if diverged {
		return ErrScoreDivergence
	}
	return nil
}

func treesEqual(current, fresh map[string]*Score) bool {
	if len(current) != len(fresh) {
		return false
	}
	for targetID, row := range fresh {
		if !row.equalDerived(current[targetID]) {
			return false
		}
	}
	return true
}

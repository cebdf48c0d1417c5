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

import "sort"

// =============================================================================
// Incremental score recomputation
// =============================================================================
//
// A single edge change u→v can only affect, per tree, the trustee v and its
// transitive trustees: rank paths run truster→trustee, so an identity whose
// rank path avoids v keeps its exact rank. The incremental path therefore:
//
//  1. Collects the "stale region": v plus all transitive trustees of region
//     members that currently hold a score. Old ranks inside the region are
//     discarded; ranks outside it remain exactly valid and act as a fixed
//     boundary.
//  2. Re-derives ranks for the region with a bucket Dijkstra (ranks are
//     bounded by the capacity cutoff, so buckets beat a heap). Identities
//     outside the tree that become reachable join the region as it grows;
//     identities outside the region whose rank improves through it join as
//     "improvable" (their old rank stays a valid upper bound).
//  3. Deletes rows for region members that lost all rank paths, then
//     recomputes values for the dirty set: every touched identity plus the
//     direct trustees of anyone whose capacity changed or whose row was
//     created or deleted. Values never feed back into capacities, so the
//     dirty set does not cascade further.
//
// Cost is O(affected subtree), the fallback for everything non-local
// (identity deletion, new roots) is a full rebuild, and the verification
// task cross-checks the whole construction against computeTreeLocked.

// maxTreeRank is the largest rank a scored identity can hold: anything
// farther away would need a parent past the capacity cutoff.
const maxTreeRank = MaxCapacityRank + 1

// updateTreesOnTrustChangeLocked re-derives every affected tree after one
// edge changed. Exactly one of old/new may be nil (create/remove).
func (s *Store) updateTreesOnTrustChangeLocked(old, new *Trust) {
	if old != nil && new != nil && old.Value == new.Value {
		return // comment-only change, scores unaffected
	}
	edge := new
	if edge == nil {
		edge = old
	}

	distrust := new == nil || (old != nil && new.Value < old.Value)

	for _, ownerID := range s.ownIDsLocked() {
		s.updateTreeOnTrustChangeLocked(ownerID, edge.TrusterID, edge.TrusteeID, distrust)
	}
}

func (s *Store) updateTreeOnTrustChangeLocked(ownerID, trusterID, trusteeID string, distrust bool) {
	// An edge toward the owner never changes anything: the owner's row is
	// the self-trust axiom and its capacity ignores incoming edges.
	if trusteeID == ownerID {
		return
	}
	// An edge from an identity without positive capacity in this tree
	// carries no weight and confers no rank (unless the owner itself is the
	// truster, which always matters).
	if trusterID != ownerID {
		row := s.scores[ownerID][trusterID]
		if row == nil || row.Capacity == 0 {
			return
		}
	}

	start := s.clock()
	changed, cascaded := s.recomputeRegionLocked(ownerID, trusteeID)
	elapsed := s.clock().Sub(start)

	switch {
	case !distrust:
		s.stats.recordIncremental(elapsed)
		s.stats.IncrementalTrustRecomputations++
		incrementalRecomputations.WithLabelValues("trust").Inc()
		recomputationSeconds.WithLabelValues("incremental_trust").Observe(elapsed.Seconds())
	case cascaded:
		// The distrust cascaded: descendants beyond the direct trustee
		// became unreachable and had to be removed.
		s.stats.recordIncremental(elapsed)
		s.stats.SlowIncrementalDistrustRecomputations++
		incrementalRecomputations.WithLabelValues("distrust_slow").Inc()
		recomputationSeconds.WithLabelValues("incremental_distrust").Observe(elapsed.Seconds())
	default:
		s.stats.recordIncremental(elapsed)
		s.stats.IncrementalDistrustRecomputations++
		incrementalRecomputations.WithLabelValues("distrust").Inc()
		recomputationSeconds.WithLabelValues("incremental_distrust").Observe(elapsed.Seconds())
	}
	_ = changed

	if s.verify {
		// Defensive consistency check: prove the incremental result against
		// a from-scratch derivation of this tree.
		fresh := s.computeTreeLocked(ownerID)
		if !treesEqual(s.scores[ownerID], fresh) {
			s.stats.ScoreDivergences++
			scoreDivergences.Inc()
			s.logger.Error("incremental recomputation diverged, repairing",
				"owner", ownerID, "truster", trusterID, "trustee", trusteeID)
			s.installTreeLocked(ownerID, fresh)
		}
	}
}

// recomputeRegionLocked re-derives rank, capacity, and value for the part of
// one tree that can depend on seedID. Returns the number of rows touched and
// whether any row beyond the seed itself had to be cascade-deleted.
func (s *Store) recomputeRegionLocked(ownerID, seedID string) (changedRows int, cascaded bool) {
	tree := s.scores[ownerID]
	if tree == nil {
		tree = make(map[string]*Score)
		s.scores[ownerID] = tree
	}

	// --- Stale region: seed plus transitive in-tree trustees. ---
	stale := map[string]bool{seedID: true}
	queue := []string{seedID}
	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]
		for y := range s.given[x] {
			if y == ownerID || stale[y] {
				continue
			}
			if tree[y] != nil {
				stale[y] = true
				queue = append(queue, y)
			}
		}
	}

	improvable := map[string]bool{} // outside stale, old rank valid upper bound
	newcomers := map[string]bool{}  // not in tree before, reachable now

	inRegion := func(y string) bool { return stale[y] || improvable[y] || newcomers[y] }

	// --- Bucket Dijkstra over the region. ---
	tentative := map[string]int{}
	relax := func(y string, r int) {
		if cur, ok := tentative[y]; !ok || r < cur {
			tentative[y] = r
		}
	}

	// Initial candidates for stale members from the fixed boundary: a direct
	// owner edge (any sign) gives rank 1; a positive edge from a
	// positive-capacity identity outside the region gives its rank + 1.
	for y := range stale {
		if s.given[ownerID][y] != nil {
			relax(y, 1)
		}
		for t, edge := range s.received[y] {
			if t == ownerID || edge.Value <= 0 || inRegion(t) {
				continue
			}
			row := tree[t]
			if row == nil || row.Capacity == 0 {
				continue
			}
			relax(y, row.Rank+1)
		}
	}

	done := map[string]int{}
	for r := 1; r <= maxTreeRank; r++ {
		var level []string
		for y, t := range tentative {
			if t == r {
				if _, fin := done[y]; !fin {
					level = append(level, y)
				}
			}
		}
		sort.Strings(level)

		for _, y := range level {
			if _, fin := done[y]; fin {
				continue
			}
			done[y] = r
			if s.capacityOfLocked(ownerID, y, r) == 0 {
				continue
			}
			for w, edge := range s.given[y] {
				if w == ownerID || edge.Value <= 0 {
					continue
				}
				if _, fin := done[w]; fin {
					continue
				}
				switch {
				case stale[w] || improvable[w] || newcomers[w]:
					relax(w, r+1)
				case tree[w] != nil:
					// Outside the region with a still-valid rank; joins only
					// when this path actually improves it.
					if r+1 < tree[w].Rank {
						improvable[w] = true
						relax(w, r+1)
					}
				default:
					// Newly reachable identity joins the tree.
					newcomers[w] = true
					relax(w, r+1)
				}
			}
		}
	}

	// --- Assemble the affected set with new ranks and capacities. ---
	affected := map[string]bool{}
	for y := range stale {
		affected[y] = true
	}
	for y := range improvable {
		affected[y] = true
	}
	for y := range newcomers {
		affected[y] = true
	}

	newRows := map[string]*Score{} // replacement rows (value filled below)
	var toDelete []string
	valueDirty := map[string]bool{}

	capOf := func(t string) (int, bool) {
		if row, ok := newRows[t]; ok {
			return row.Capacity, true
		}
		if affected[t] {
			return 0, false // region member that lost its rank
		}
		if t == ownerID {
			return OwnerCapacity, true
		}
		if row := tree[t]; row != nil {
			return row.Capacity, true
		}
		return 0, false
	}

	for y := range affected {
		rank, reachable := done[y]
		if !reachable {
			if improvable[y] {
				// Old rank stayed the better path; nothing to replace.
				affected[y] = false
				continue
			}
			if tree[y] != nil {
				toDelete = append(toDelete, y)
			}
			continue
		}
		if improvable[y] && tree[y] != nil && tree[y].Rank <= rank {
			affected[y] = false
			continue
		}
		newRows[y] = &Score{
			OwnerID:  ownerID,
			TargetID: y,
			Rank:     rank,
			Capacity: s.capacityOfLocked(ownerID, y, rank),
		}
	}

	// Dirty values: every touched row, plus the direct trustees of anyone
	// whose capacity changed or whose row appeared or disappeared. Values
	// never influence capacities, so this set is final.
	markTrusteesDirty := func(y string) {
		for w := range s.given[y] {
			if w == ownerID {
				continue
			}
			valueDirty[w] = true
		}
	}
	valueDirty[seedID] = true
	for y, row := range newRows {
		valueDirty[y] = true
		old := tree[y]
		if old == nil || old.Capacity != row.Capacity {
			markTrusteesDirty(y)
		}
	}
	for _, y := range toDelete {
		markTrusteesDirty(y)
	}

	// --- Compute values for the dirty set against the new capacities. ---
	newValues := map[string]int{}
	dirty := make([]string, 0, len(valueDirty))
	for y := range valueDirty {
		dirty = append(dirty, y)
	}
	sort.Strings(dirty)
	for _, y := range dirty {
		if y == ownerID {
			continue
		}
		if _, hasNew := newRows[y]; !hasNew {
			if affected[y] || tree[y] == nil {
				continue // deleted or never scored
			}
		}
		value := 0
		for t, edge := range s.received[y] {
			c, ok := capOf(t)
			if !ok {
				continue
			}
			value += c * int(edge.Value) / 100
		}
		newValues[y] = value
	}

	// --- Install: deletions first, then upserts, both in sorted order. ---
	now := s.clock()
	sort.Strings(toDelete)
	for _, y := range toDelete {
		before := tree[y]
		delete(tree, y)
		s.persistScoreDeleteLocked(ownerID, y)
		s.emitScoreLocked(before, nil)
		changedRows++
		if y != seedID {
			cascaded = true
		}
	}

	var upserts []string
	for y := range newRows {
		upserts = append(upserts, y)
	}
	for y := range newValues {
		if _, ok := newRows[y]; !ok {
			upserts = append(upserts, y)
		}
	}
	sort.Strings(upserts)
	for _, y := range upserts {
		before := tree[y]
		row := newRows[y]
		if row == nil {
			if before == nil {
				continue
			}
			clone := *before
			row = &clone
		}
		if v, ok := newValues[y]; ok {
			row.Value = v
		} else if before != nil {
			row.Value = before.Value
		}
		if row.equalDerived(before) {
			continue
		}
		row.LastChangeDate = now
		tree[y] = row
		s.persistScoreLocked(row)
		s.emitScoreLocked(before, row)
		changedRows++
	}
	return changedRows, cascaded
}

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

// Score tree constants.
const (
	// OwnerRank is the rank of a tree owner relative to itself.
	OwnerRank = 0

	// OwnerCapacity is the capacity of a tree owner relative to itself.
	OwnerCapacity = 100

	// OwnerValue is the score value of a tree owner relative to itself
	// (self-trust axiom, not derived from any incoming edge).
	OwnerValue = 100

	// MaxCapacityRank is the last rank that still receives capacity.
	// Identities beyond it get capacity 0 and are excluded from propagation.
	MaxCapacityRank = 5
)

// rankCapacities maps rank to the percentage weight an identity's given
// trusts carry in the trees it belongs to. The values compound by roughly
// 0.4 per hop. Ranks beyond MaxCapacityRank truncate propagation entirely.
var rankCapacities = [MaxCapacityRank + 1]int{100, 40, 16, 6, 2, 1}

// Score is one row of the materialized per-owner reputation view: how a
// tree owner sees a target identity. Exactly one row exists per
// (owner, target) pair while the target is reachable; unreachable targets
// have no row at all rather than an infinite-rank row.
type Score struct {
	// OwnerID is the own identity whose tree this row belongs to.
	OwnerID string `json:"owner_id"`

	// TargetID is the identity being scored.
	TargetID string `json:"target_id"`

	// Value is the reputation value: the capacity-weighted sum of trust
	// values received from identities that are themselves in the tree.
	Value int `json:"value"`

	// Rank is the hop-distance class from the owner. 0 for the owner itself.
	Rank int `json:"rank"`

	// Capacity is the percentage weight the target's given trusts carry in
	// this tree. 0 means the target cannot extend the tree.
	Capacity int `json:"capacity"`

	// LastChangeDate is bumped whenever value, rank, or capacity change.
	LastChangeDate time.Time `json:"last_change_date"`
}

// Clone returns a copy for before/after event snapshots.
func (s *Score) Clone() *Score {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// equalDerived reports whether two rows agree on the derived fields.
// LastChangeDate is bookkeeping, not part of the derivation.
func (s *Score) equalDerived(o *Score) bool {
	if s == nil || o == nil {
		return s == nil && o == nil
	}
	return s.Value == o.Value && s.Rank == o.Rank && s.Capacity == o.Capacity
}

// capacityForRank returns the propagation weight for a rank, before the
// owner-distrust override is applied.
func capacityForRank(rank int) int {
	if rank < 0 || rank > MaxCapacityRank {
		return 0
	}
	return rankCapacities[rank]
}

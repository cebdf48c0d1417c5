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

// Trust value bounds and field limits.
const (
	// MinTrustValue is the strongest possible distrust.
	MinTrustValue = -100

	// MaxTrustValue is the strongest possible trust.
	MaxTrustValue = 100

	// MaxCommentLength is the maximum trust comment size in bytes.
	MaxCommentLength = 256
)

// TrustSelection filters received-trust queries by value sign.
type TrustSelection int

const (
	// SelectAll returns every received trust edge.
	SelectAll TrustSelection = iota

	// SelectPositive returns edges with value > 0.
	SelectPositive

	// SelectNegative returns edges with value < 0.
	SelectNegative

	// SelectZero returns edges with value == 0.
	SelectZero
)

// Trust is a directed edge of the graph: one identity's signed opinion of
// another. At most one edge exists per ordered (truster, trustee) pair;
// removing a trust deletes the edge rather than storing a null value.
type Trust struct {
	// TrusterID is the identity giving the trust.
	TrusterID string `json:"truster_id"`

	// TrusteeID is the identity receiving the trust.
	TrusteeID string `json:"trustee_id"`

	// Value is the signed trust value in [MinTrustValue, MaxTrustValue].
	Value int8 `json:"value"`

	// Comment is the truster's short justification for the value.
	Comment string `json:"comment,omitempty"`

	// TrusterEdition is the edition of the truster's trust list this edge
	// was last confirmed in.
	TrusterEdition int64 `json:"truster_edition"`

	// LastChangeDate is bumped whenever value or comment change.
	LastChangeDate time.Time `json:"last_change_date"`
}

// Clone returns a copy for before/after event snapshots.
func (t *Trust) Clone() *Trust {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// matches reports whether the edge passes the selection filter.
func (t *Trust) matches(sel TrustSelection) bool {
	switch sel {
	case SelectPositive:
		return t.Value > 0
	case SelectNegative:
		return t.Value < 0
	case SelectZero:
		return t.Value == 0
	default:
		return true
	}
}

// validateTrustValue checks the [-100, 100] range.
func validateTrustValue(value int) error {
	if value < MinTrustValue || value > MaxTrustValue {
		return ErrTrustValueOutOfRange
	}
	return nil
}

// validateComment checks the comment size bound.
func validateComment(comment string) error {
	if len(comment) > MaxCommentLength {
		return ErrCommentTooLong
	}
	return nil
}

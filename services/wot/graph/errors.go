// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph implements the web-of-trust graph: identities as nodes,
// signed trust edges between them, and per-own-identity score trees derived
// from the edges.
//
// # Ownership Model
//
// The Store owns all Identity and Trust records. Score rows are owned by the
// score engine: they are created, updated, and deleted only as a derived view
// of the trust graph, never edited directly by callers.
//
// # Thread Safety
//
// All exported Store methods are safe for concurrent use. One coarse lock
// guards every mutation together with its dependent score recomputation, so
// readers never observe a trust edge without consistent scores.
//
// # Lifecycle
//
// A typical store lifecycle:
//  1. Create with NewStore(opts)
//  2. Optionally restore persisted rows with Load()
//  3. Create own identities, set trusts, query scores
//
// There is no Close: every mutation writes through to the persister inside
// its critical section, so nothing is buffered in the store itself.
package graph

import "errors"

// Sentinel errors for graph operations.
//
// The NotFound class (ErrIdentityNotFound, ErrNotTrusted, ErrNotInTrustTree)
// represents expected, recoverable conditions and is never logged as an
// error. The InvalidParameter class is rejected before any state changes.
var (
	// ErrIdentityNotFound is returned when no identity exists for the given
	// ID or request URI.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrNotTrusted is returned when no trust edge exists for the requested
	// (truster, trustee) pair.
	ErrNotTrusted = errors.New("no trust value for this identity pair")

	// ErrNotInTrustTree is returned when the target has no score under the
	// requested tree owner (unreachable, or reachable only through
	// zero-capacity identities).
	ErrNotInTrustTree = errors.New("identity is not in the trust tree")

	// ErrNotOwnIdentity is returned when an operation requiring private key
	// material is attempted on a remote identity.
	ErrNotOwnIdentity = errors.New("identity is not an own identity")

	// ErrDuplicateIdentity is returned when creating an own identity whose
	// ID is already present as an own identity.
	ErrDuplicateIdentity = errors.New("own identity already exists")

	// ErrInvalidNickname is returned when a nickname fails the length or
	// charset rule. Wrapped with the specific violation.
	ErrInvalidNickname = errors.New("invalid nickname")

	// ErrTrustValueOutOfRange is returned for trust values outside [-100, 100].
	ErrTrustValueOutOfRange = errors.New("trust value out of range [-100, 100]")

	// ErrCommentTooLong is returned when a trust comment exceeds
	// MaxCommentLength bytes.
	ErrCommentTooLong = errors.New("trust comment too long")

	// ErrSelfTrust is returned when an identity attempts to assign a trust
	// value to itself. Self-trust is an axiom of the score engine, not an
	// edge in the graph.
	ErrSelfTrust = errors.New("identity cannot assign a trust value to itself")

	// ErrScoreDivergence is reported by the verification path when an
	// incrementally maintained score tree does not match a from-scratch
	// recomputation. The tree is repaired before this is returned.
	ErrScoreDivergence = errors.New("incremental scores diverged from full recomputation")
)

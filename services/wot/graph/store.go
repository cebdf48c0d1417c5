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
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sasha-s/go-deadlock"

	"github.com/AleutianAI/AleutianWoT/pkg/validation"
)

// =============================================================================
// Collaborator interfaces
// =============================================================================

// EventSink receives before/after snapshots of every mutated record. Either
// side of a pair may be nil to signal creation or deletion. Implementations
// must not block: the sink is called inside the store's critical section and
// is expected to enqueue only.
type EventSink interface {
	IdentityChanged(before, after *Identity)
	TrustChanged(before, after *Trust)
	ScoreChanged(before, after *Score)
}

// Persister is the durable row store the graph writes through to. The
// in-memory maps are the source of truth while the process runs; the
// persister exists so a restart can Load() the same graph back.
type Persister interface {
	PutIdentity(*Identity) error
	DeleteIdentity(id string) error
	PutTrust(*Trust) error
	DeleteTrust(trusterID, trusteeID string) error
	PutScore(*Score) error
	DeleteScore(ownerID, targetID string) error
	LoadAll() (identities []*Identity, trusts []*Trust, scores []*Score, err error)
}

// =============================================================================
// Store
// =============================================================================

// Options configures a Store.
type Options struct {
	// Events receives mutation snapshots. Nil disables event emission.
	Events EventSink

	// Persister is the write-through durable store. Nil keeps the graph
	// memory-only (tests).
	Persister Persister

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock defaults to time.Now. Injected for tests.
	Clock func() time.Time

	// VerifyAfterIncremental compares every incremental score update
	// against a from-scratch recomputation and repairs divergence. Too
	// expensive for production; used by tests and debugging.
	VerifyAfterIncremental bool
}

// Store holds the trust graph and its derived score trees.
//
// One coarse lock guards every mutation together with the dependent score
// recomputation, so a reader never observes a trust edge whose scores have
// not been derived yet. The deadlock-detecting mutex is a drop-in for
// sync.RWMutex and catches lock-order bugs in development builds.
type Store struct {
	mu deadlock.RWMutex

	identities map[string]*Identity
	given      map[string]map[string]*Trust // truster -> trustee -> edge
	received   map[string]map[string]*Trust // trustee -> truster -> edge
	scores     map[string]map[string]*Score // owner -> target -> row

	events    EventSink
	persister Persister
	logger    *slog.Logger
	clock     func() time.Time
	verify    bool

	stats statsCounters
}

// NewStore creates an empty graph store.
func NewStore(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Store{
		identities: make(map[string]*Identity),
		given:      make(map[string]map[string]*Trust),
		received:   make(map[string]map[string]*Trust),
		scores:     make(map[string]map[string]*Score),
		events:     opts.Events,
		persister:  opts.Persister,
		logger:     opts.Logger,
		clock:      opts.Clock,
		verify:     opts.VerifyAfterIncremental,
	}
}

// Load restores all rows from the persister and rebuilds every score tree.
// Persisted scores are installed as-is first so the rebuild can report (and
// repair) any divergence introduced by a crash mid-mutation.
func (s *Store) Load() error {
	if s.persister == nil {
		return nil
	}
	identities, trusts, scores, err := s.persister.LoadAll()
	if err != nil {
		return fmt.Errorf("loading persisted graph: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range identities {
		s.identities[id.ID] = id
	}
	for _, tr := range trusts {
		s.linkTrustLocked(tr)
	}
	for _, sc := range scores {
		if s.scores[sc.OwnerID] == nil {
			s.scores[sc.OwnerID] = make(map[string]*Score)
		}
		s.scores[sc.OwnerID][sc.TargetID] = sc
	}

	s.logger.Info("graph loaded",
		"identities", len(s.identities),
		"trusts", len(trusts),
		"scores", len(scores))

	// A crash between a trust write and its score derivation leaves stale
	// rows behind. Rebuilding here restores the invariant.
	s.recomputeAllTreesLocked("startup")
	return nil
}

// =============================================================================
// Identity operations
// =============================================================================

// GetByID returns the identity with the given ID, or ErrIdentityNotFound.
func (s *Store) GetByID(id string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.identities[id]
	if i == nil {
		return nil, ErrIdentityNotFound
	}
	return i.Clone(), nil
}

// GetByURI returns the identity whose ID derives from the URI's routing key.
func (s *Store) GetByURI(uri string) (*Identity, error) {
	id, err := IDFromRequestURI(uri)
	if err != nil {
		return nil, err
	}
	return s.GetByID(id)
}

// OwnIdentities returns all own identities, sorted by ID.
func (s *Store) OwnIdentities() []*Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Identity
	for _, id := range s.ownIDsLocked() {
		out = append(out, s.identities[id].Clone())
	}
	return out
}

// AllIdentities returns every identity, sorted by ID.
func (s *Store) AllIdentities() []*Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.identities))
	for id := range s.identities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Identity, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.identities[id].Clone())
	}
	return out
}

// Add stores a stub identity for a request URI. Idempotent: if the identity
// is already known the existing record is returned unchanged.
func (s *Store) Add(requestURI string) (*Identity, error) {
	id, err := IDFromRequestURI(requestURI)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.identities[id]; existing != nil {
		return existing.Clone(), nil
	}
	identity := newIdentity(id, requestURI, s.clock())
	s.identities[id] = identity
	s.persistIdentityLocked(identity)
	s.emitIdentityLocked(nil, identity)
	return identity.Clone(), nil
}

// CreateOwnIdentity creates an own identity from its insert URI and
// initializes its trust tree with the self-score axiom. If the identity is
// already known as a remote identity, the private material is attached to
// the existing record (restore path) and its tree is built from the edges
// already in the graph.
func (s *Store) CreateOwnIdentity(insertURI, nickname string, publishesTrustList bool, context string) (*Identity, error) {
	if err := validation.ValidateNickname(nickname); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNickname, err)
	}
	if context != "" {
		if err := validation.ValidateContextName(context); err != nil {
			return nil, err
		}
	}
	// The insert URI is private key material. Only the derived request URI
	// is stored in the publicly serialized part of the record.
	requestURI, err := validation.RequestURIFromInsertURI(insertURI)
	if err != nil {
		return nil, err
	}
	id, err := IDFromRequestURI(requestURI)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	existing := s.identities[id]
	if existing != nil && existing.IsOwn() {
		return nil, ErrDuplicateIdentity
	}

	var before *Identity
	identity := existing
	if identity == nil {
		identity = newIdentity(id, requestURI, now)
		s.identities[id] = identity
	} else {
		before = identity.Clone()
	}
	identity.Nickname = nickname
	identity.PublishesTrustList = publishesTrustList
	identity.FetchState = FetchStateFetched
	identity.Own = &OwnMaterial{InsertURI: insertURI, RestoreInProgress: existing != nil}
	if context != "" {
		identity.Contexts[context] = true
	}
	identity.LastChangeDate = now

	s.persistIdentityLocked(identity)
	s.emitIdentityLocked(before, identity)

	// New tree root: a full build is the only correct option, the root may
	// already have edges if this is a restore.
	s.recomputeTreeLocked(id, "init trust tree")
	return identity.Clone(), nil
}

// Delete removes an identity and cascades: all its given and received trust
// edges, its score rows in every tree, and its own tree if it was an own
// identity. The remaining trees are rebuilt because the removal can
// disconnect rank paths non-locally.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity := s.identities[id]
	if identity == nil {
		return ErrIdentityNotFound
	}

	for trusteeID, tr := range s.given[id] {
		s.unlinkTrustLocked(id, trusteeID)
		s.persistTrustDeleteLocked(id, trusteeID)
		s.emitTrustLocked(tr, nil)
	}
	for trusterID, tr := range s.received[id] {
		s.unlinkTrustLocked(trusterID, id)
		s.persistTrustDeleteLocked(trusterID, id)
		s.emitTrustLocked(tr, nil)
	}

	if identity.IsOwn() {
		for _, row := range s.scores[id] {
			s.persistScoreDeleteLocked(row.OwnerID, row.TargetID)
			s.emitScoreLocked(row, nil)
		}
		delete(s.scores, id)
	}

	delete(s.identities, id)
	s.persistIdentityDeleteLocked(id)
	s.emitIdentityLocked(identity, nil)

	s.recomputeAllTreesLocked("identity deleted")
	return nil
}

// SetNickname updates an identity's nickname after validation.
func (s *Store) SetNickname(id, nickname string) error {
	if err := validation.ValidateNickname(nickname); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNickname, err)
	}
	return s.mutateIdentity(id, func(i *Identity) {
		i.Nickname = nickname
	})
}

// SetPublishesTrustList toggles trust-list publishing.
func (s *Store) SetPublishesTrustList(id string, publishes bool) error {
	return s.mutateIdentity(id, func(i *Identity) {
		i.PublishesTrustList = publishes
	})
}

// AddContext adds a context to an identity.
func (s *Store) AddContext(id, context string) error {
	if err := validation.ValidateContextName(context); err != nil {
		return err
	}
	return s.mutateIdentity(id, func(i *Identity) {
		i.Contexts[context] = true
	})
}

// RemoveContext removes a context from an identity.
func (s *Store) RemoveContext(id, context string) error {
	return s.mutateIdentity(id, func(i *Identity) {
		delete(i.Contexts, context)
	})
}

// SetProperty stores a property key/value pair on an identity.
func (s *Store) SetProperty(id, key, value string) error {
	if err := validation.ValidateProperty(key, value); err != nil {
		return err
	}
	return s.mutateIdentity(id, func(i *Identity) {
		i.Properties[key] = value
	})
}

// RemoveProperty removes a property from an identity.
func (s *Store) RemoveProperty(id, key string) error {
	return s.mutateIdentity(id, func(i *Identity) {
		delete(i.Properties, key)
	})
}

// MarkFetched records a successful fetch of the identity file at the given
// edition. Called by the external fetch pipeline after parsing.
func (s *Store) MarkFetched(id string, edition int64) error {
	return s.mutateIdentity(id, func(i *Identity) {
		i.FetchState = FetchStateFetched
		i.LastFetchedDate = s.clock()
		if edition > i.CurrentEdition {
			i.CurrentEdition = edition
		}
		if i.IsOwn() {
			i.Own.RestoreInProgress = false
		}
	})
}

// mutateIdentity applies fn under the lock, bumps LastChangeDate, persists,
// and emits the before/after pair. Validation must happen before calling.
func (s *Store) mutateIdentity(id string, fn func(*Identity)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity := s.identities[id]
	if identity == nil {
		return ErrIdentityNotFound
	}
	before := identity.Clone()
	fn(identity)
	identity.LastChangeDate = s.clock()
	s.persistIdentityLocked(identity)
	s.emitIdentityLocked(before, identity)
	return nil
}

// =============================================================================
// Trust operations
// =============================================================================

// GetTrust returns the edge for the ordered pair, or ErrNotTrusted.
func (s *Store) GetTrust(trusterID, trusteeID string) (*Trust, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr := s.given[trusterID][trusteeID]
	if tr == nil {
		return nil, ErrNotTrusted
	}
	return tr.Clone(), nil
}

// GivenTrusts returns every edge the identity has assigned, sorted by
// trustee ID.
func (s *Store) GivenTrusts(id string) []*Trust {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedTrusts(s.given[id], func(t *Trust) string { return t.TrusteeID })
}

// ReceivedTrusts returns the edges the identity has received, filtered by
// selection and sorted by truster ID.
func (s *Store) ReceivedTrusts(id string, sel TrustSelection) []*Trust {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Trust
	for _, tr := range sortedTrusts(s.received[id], func(t *Trust) string { return t.TrusterID }) {
		if tr.matches(sel) {
			out = append(out, tr)
		}
	}
	return out
}

// TrustCount returns the number of edges for the ordered pair (0 or 1).
// Exists for invariant checks: setTrust must never duplicate an edge.
func (s *Store) TrustCount(trusterID, trusteeID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.given[trusterID][trusteeID] != nil {
		return 1
	}
	return 0
}

// SetTrust creates or updates the edge truster→trustee and re-derives the
// scores of every affected tree within the same critical section. Both
// identities must already exist; use SetTrustFromURI when the trustee is
// being discovered through this very edge.
func (s *Store) SetTrust(trusterID, trusteeID string, value int, comment string) error {
	if err := validateTrustValue(value); err != nil {
		return err
	}
	if err := validateComment(comment); err != nil {
		return err
	}
	if trusterID == trusteeID {
		return ErrSelfTrust
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setTrustLocked(trusterID, trusteeID, int8(value), comment)
}

// SetTrustFromURI is SetTrust for a trustee that may not be known yet: a
// stub identity (nickname unknown) is created from the request URI first.
// This is how the graph grows from social discovery.
func (s *Store) SetTrustFromURI(trusterID, trusteeURI string, value int, comment string) error {
	if err := validateTrustValue(value); err != nil {
		return err
	}
	if err := validateComment(comment); err != nil {
		return err
	}
	trusteeID, err := IDFromRequestURI(trusteeURI)
	if err != nil {
		return err
	}
	if trusterID == trusteeID {
		return ErrSelfTrust
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identities[trusteeID] == nil {
		stub := newIdentity(trusteeID, trusteeURI, s.clock())
		s.identities[trusteeID] = stub
		s.persistIdentityLocked(stub)
		s.emitIdentityLocked(nil, stub)
	}
	return s.setTrustLocked(trusterID, trusteeID, int8(value), comment)
}

// RemoveTrust deletes the edge and re-derives affected scores. Removing a
// nonexistent edge returns ErrNotTrusted.
func (s *Store) RemoveTrust(trusterID, trusteeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.given[trusterID][trusteeID]
	if old == nil {
		return ErrNotTrusted
	}
	before := old.Clone()
	s.unlinkTrustLocked(trusterID, trusteeID)
	s.persistTrustDeleteLocked(trusterID, trusteeID)
	s.emitTrustLocked(before, nil)

	s.updateTreesOnTrustChangeLocked(before, nil)
	return nil
}

func (s *Store) setTrustLocked(trusterID, trusteeID string, value int8, comment string) error {
	truster := s.identities[trusterID]
	if truster == nil {
		return ErrIdentityNotFound
	}
	if s.identities[trusteeID] == nil {
		return ErrIdentityNotFound
	}

	now := s.clock()
	old := s.given[trusterID][trusteeID]
	var before *Trust
	if old != nil {
		if old.Value == value && old.Comment == comment {
			// Idempotent: identical arguments leave the row untouched.
			return nil
		}
		before = old.Clone()
	}

	edge := &Trust{
		TrusterID:      trusterID,
		TrusteeID:      trusteeID,
		Value:          value,
		Comment:        comment,
		TrusterEdition: truster.CurrentEdition,
		LastChangeDate: now,
	}
	s.linkTrustLocked(edge)
	s.persistTrustLocked(edge)
	s.emitTrustLocked(before, edge)

	s.updateTreesOnTrustChangeLocked(before, edge)
	return nil
}

// linkTrustLocked installs an edge in both adjacency directions.
func (s *Store) linkTrustLocked(tr *Trust) {
	if s.given[tr.TrusterID] == nil {
		s.given[tr.TrusterID] = make(map[string]*Trust)
	}
	if s.received[tr.TrusteeID] == nil {
		s.received[tr.TrusteeID] = make(map[string]*Trust)
	}
	s.given[tr.TrusterID][tr.TrusteeID] = tr
	s.received[tr.TrusteeID][tr.TrusterID] = tr
}

func (s *Store) unlinkTrustLocked(trusterID, trusteeID string) {
	delete(s.given[trusterID], trusteeID)
	delete(s.received[trusteeID], trusterID)
}

// =============================================================================
// Score queries
// =============================================================================

// GetScore returns the score row for (owner, target), or ErrNotInTrustTree
// when the target is unreachable in that tree.
func (s *Store) GetScore(ownerID, targetID string) (*Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner := s.identities[ownerID]
	if owner == nil {
		return nil, ErrIdentityNotFound
	}
	if !owner.IsOwn() {
		return nil, ErrNotOwnIdentity
	}
	row := s.scores[ownerID][targetID]
	if row == nil {
		return nil, ErrNotInTrustTree
	}
	return row.Clone(), nil
}

// TreeScores returns every score row of one owner's tree, sorted by target
// ID. Selection filters by value sign the way ReceivedTrusts does.
func (s *Store) TreeScores(ownerID string, sel TrustSelection) ([]*Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner := s.identities[ownerID]
	if owner == nil {
		return nil, ErrIdentityNotFound
	}
	if !owner.IsOwn() {
		return nil, ErrNotOwnIdentity
	}
	tree := s.scores[ownerID]
	ids := make([]string, 0, len(tree))
	for id := range tree {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Score, 0, len(ids))
	for _, id := range ids {
		row := tree[id]
		switch sel {
		case SelectPositive:
			if row.Value <= 0 {
				continue
			}
		case SelectNegative:
			if row.Value >= 0 {
				continue
			}
		case SelectZero:
			if row.Value != 0 {
				continue
			}
		}
		out = append(out, row.Clone())
	}
	return out, nil
}

// AllScores returns every score row of every tree, sorted by owner then
// target. Used for subscription snapshots.
func (s *Store) AllScores() []*Score {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Score
	for _, ownerID := range s.ownIDsLocked() {
		tree := s.scores[ownerID]
		ids := make([]string, 0, len(tree))
		for id := range tree {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			out = append(out, tree[id].Clone())
		}
	}
	return out
}

// AllTrusts returns every edge, sorted by truster then trustee. Used for
// subscription snapshots.
func (s *Store) AllTrusts() []*Trust {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trusters := make([]string, 0, len(s.given))
	for id := range s.given {
		trusters = append(trusters, id)
	}
	sort.Strings(trusters)
	var out []*Trust
	for _, trusterID := range trusters {
		out = append(out, sortedTrusts(s.given[trusterID], func(t *Trust) string { return t.TrusteeID })...)
	}
	return out
}

// =============================================================================
// Internal helpers
// =============================================================================

// ownIDsLocked returns the IDs of all own identities in ascending order.
// The order is what makes rank tie-breaks and event sequences deterministic.
func (s *Store) ownIDsLocked() []string {
	var ids []string
	for id, identity := range s.identities {
		if identity.IsOwn() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func sortedTrusts(m map[string]*Trust, key func(*Trust) string) []*Trust {
	out := make([]*Trust, 0, len(m))
	for _, tr := range m {
		out = append(out, tr.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i]) < key(out[j]) })
	return out
}

// Event emission. Snapshots are cloned so subscribers never alias live rows.

func (s *Store) emitIdentityLocked(before, after *Identity) {
	if s.events == nil {
		return
	}
	s.events.IdentityChanged(before.Clone(), after.Clone())
}

func (s *Store) emitTrustLocked(before, after *Trust) {
	if s.events == nil {
		return
	}
	s.events.TrustChanged(before.Clone(), after.Clone())
}

func (s *Store) emitScoreLocked(before, after *Score) {
	if s.events == nil {
		return
	}
	s.events.ScoreChanged(before.Clone(), after.Clone())
}

// Write-through persistence. The in-memory graph is mutated only after
// validation, so these cannot roll anything back; a failing persister is a
// degraded durability layer, not a failed mutation, and is logged as such.

func (s *Store) persistIdentityLocked(i *Identity) {
	if s.persister == nil {
		return
	}
	if err := s.persister.PutIdentity(i); err != nil {
		s.logger.Error("persisting identity failed", "id", i.ID, "error", err)
	}
}

func (s *Store) persistIdentityDeleteLocked(id string) {
	if s.persister == nil {
		return
	}
	if err := s.persister.DeleteIdentity(id); err != nil {
		s.logger.Error("deleting persisted identity failed", "id", id, "error", err)
	}
}

func (s *Store) persistTrustLocked(t *Trust) {
	if s.persister == nil {
		return
	}
	if err := s.persister.PutTrust(t); err != nil {
		s.logger.Error("persisting trust failed",
			"truster", t.TrusterID, "trustee", t.TrusteeID, "error", err)
	}
}

func (s *Store) persistTrustDeleteLocked(trusterID, trusteeID string) {
	if s.persister == nil {
		return
	}
	if err := s.persister.DeleteTrust(trusterID, trusteeID); err != nil {
		s.logger.Error("deleting persisted trust failed",
			"truster", trusterID, "trustee", trusteeID, "error", err)
	}
}

func (s *Store) persistScoreLocked(sc *Score) {
	if s.persister == nil {
		return
	}
	if err := s.persister.PutScore(sc); err != nil {
		s.logger.Error("persisting score failed",
			"owner", sc.OwnerID, "target", sc.TargetID, "error", err)
	}
}

func (s *Store) persistScoreDeleteLocked(ownerID, targetID string) {
	if s.persister == nil {
		return
	}
	if err := s.persister.DeleteScore(ownerID, targetID); err != nil {
		s.logger.Error("deleting persisted score failed",
			"owner", ownerID, "target", targetID, "error", err)
	}
}

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
	"time"

	"github.com/AleutianAI/AleutianWoT/pkg/validation"
)

// FetchState describes how far an identity's published file has been
// processed.
type FetchState int

const (
	// FetchStateNotFetched means the identity was discovered through a trust
	// reference but its file has never been downloaded. Nickname is unknown.
	FetchStateNotFetched FetchState = iota

	// FetchStateFetched means the latest known edition was downloaded and
	// parsed successfully.
	FetchStateFetched

	// FetchStateParsingFailed means the latest download could not be parsed.
	FetchStateParsingFailed
)

func (s FetchState) String() string {
	switch s {
	case FetchStateNotFetched:
		return "NotFetched"
	case FetchStateFetched:
		return "Fetched"
	case FetchStateParsingFailed:
		return "ParsingFailed"
	default:
		return "Unknown"
	}
}

// OwnMaterial is the payload that distinguishes an own identity from a
// remote one: the private insert key and the restore flag. Identities
// without it cannot publish a trust list from this node.
type OwnMaterial struct {
	// InsertURI is the private key URI used to publish the identity file.
	InsertURI string `json:"insert_uri"`

	// RestoreInProgress is set while an own identity is being restored from
	// the network and its published data has not been fetched yet.
	RestoreInProgress bool `json:"restore_in_progress"`
}

// Identity is a node of the trust graph.
//
// The ID is derived from the request URI's routing key and is immutable and
// globally unique. An identity is "own" when Own is non-nil; capability
// checks go through IsOwn() rather than type switches.
type Identity struct {
	// ID is the stable identifier derived from the routing key.
	ID string `json:"id"`

	// RequestURI is the public key URI the identity file is fetched from.
	RequestURI string `json:"request_uri"`

	// Nickname is empty until the identity file has been fetched.
	Nickname string `json:"nickname,omitempty"`

	// Contexts is the set of client-application contexts the identity
	// participates in.
	Contexts map[string]bool `json:"contexts,omitempty"`

	// Properties are free-form key/value pairs published by the identity.
	Properties map[string]string `json:"properties,omitempty"`

	// PublishesTrustList indicates whether the identity publishes its trust
	// values for others to import.
	PublishesTrustList bool `json:"publishes_trust_list"`

	// AddedDate is when this identity was first stored.
	AddedDate time.Time `json:"added_date"`

	// LastFetchedDate is when the identity file was last downloaded.
	// Zero if never fetched.
	LastFetchedDate time.Time `json:"last_fetched_date,omitempty"`

	// LastChangeDate is bumped on every mutation of this record.
	LastChangeDate time.Time `json:"last_change_date"`

	// CurrentEdition is the latest known edition of the identity file.
	CurrentEdition int64 `json:"current_edition"`

	// FetchState tracks processing of the identity file.
	FetchState FetchState `json:"fetch_state"`

	// Own holds private key material for own identities, nil otherwise.
	Own *OwnMaterial `json:"own,omitempty"`
}

// IsOwn reports whether this identity carries private insert material.
func (i *Identity) IsOwn() bool {
	return i != nil && i.Own != nil
}

// HasContext reports whether the identity participates in the given context.
func (i *Identity) HasContext(name string) bool {
	return i.Contexts[name]
}

// Clone returns a deep copy. Used for before/after event snapshots so
// subscribers never alias live store state.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.Contexts != nil {
		c.Contexts = make(map[string]bool, len(i.Contexts))
		for k, v := range i.Contexts {
			c.Contexts[k] = v
		}
	}
	if i.Properties != nil {
		c.Properties = make(map[string]string, len(i.Properties))
		for k, v := range i.Properties {
			c.Properties[k] = v
		}
	}
	if i.Own != nil {
		own := *i.Own
		c.Own = &own
	}
	return &c
}

// Public returns a copy safe to serialize outside the process: the
// insert URI is private key material and never leaves the store. The
// restore flag survives so clients can tell a restore apart from a
// fresh creation.
func (i *Identity) Public() *Identity {
	if i == nil || i.Own == nil {
		return i
	}
	c := i.Clone()
	c.Own = &OwnMaterial{RestoreInProgress: i.Own.RestoreInProgress}
	return c
}

// IDFromRequestURI derives the stable identity ID from a request URI.
//
// The ID is the routing-key portion of the URI: stable across editions and
// shared between the request and insert URI of the same key pair, which is
// what makes CreateOwnIdentity and a later restore produce the same ID.
func IDFromRequestURI(uri string) (string, error) {
	return validation.RoutingKey(uri)
}

// newIdentity constructs a remote identity record for a request URI.
// The nickname stays empty until the identity file is fetched.
func newIdentity(id, requestURI string, now time.Time) *Identity {
	return &Identity{
		ID:             id,
		RequestURI:     requestURI,
		Contexts:       make(map[string]bool),
		Properties:     make(map[string]string),
		AddedDate:      now,
		LastChangeDate: now,
		FetchState:     FetchStateNotFetched,
	}
}

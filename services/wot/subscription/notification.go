// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package subscription

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StreamType identifies one of the three event streams a client can
// subscribe to.
type StreamType string

const (
	// StreamIdentities delivers identity create/update/delete events.
	StreamIdentities StreamType = "identities"

	// StreamTrusts delivers trust edge create/update/delete events.
	StreamTrusts StreamType = "trusts"

	// StreamScores delivers score row create/update/delete events.
	StreamScores StreamType = "scores"
)

// Valid reports whether t names a known stream.
func (t StreamType) Valid() bool {
	switch t {
	case StreamIdentities, StreamTrusts, StreamScores:
		return true
	}
	return false
}

// ParseStreamType converts a wire string to a StreamType.
func ParseStreamType(s string) (StreamType, error) {
	t := StreamType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown subscription stream %q", s)
	}
	return t, nil
}

// Notification is one change event as stored in the durable queue and
// shipped to clients. Either Before or After may be absent: a creation has
// no before-state, a deletion has no after-state.
type Notification struct {
	// ID uniquely identifies this notification.
	ID string `json:"id"`

	// Stream is the stream this notification belongs to.
	Stream StreamType `json:"stream"`

	// Before is the object state before the change, JSON-encoded.
	Before json.RawMessage `json:"before,omitempty"`

	// After is the object state after the change, JSON-encoded.
	After json.RawMessage `json:"after,omitempty"`

	// CreatedAt is when the change was observed.
	CreatedAt time.Time `json:"created_at"`
}

// newNotification builds a notification for a before/after object pair.
// A nil object side stays absent in the payload.
func newNotification(stream StreamType, before, after any, now time.Time) (*Notification, error) {
	n := &Notification{
		ID:        uuid.NewString(),
		Stream:    stream,
		CreatedAt: now,
	}
	var err error
	if before != nil {
		if n.Before, err = json.Marshal(before); err != nil {
			return nil, fmt.Errorf("marshal before-state: %w", err)
		}
	}
	if after != nil {
		if n.After, err = json.Marshal(after); err != nil {
			return nil, fmt.Errorf("marshal after-state: %w", err)
		}
	}
	return n, nil
}

// encode serializes the notification for queue storage and wire delivery.
func (n *Notification) encode() ([]byte, error) {
	return json.Marshal(n)
}

// DecodeNotification parses a queued notification payload.
func DecodeNotification(payload []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &n, nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fcp implements the keyed-field client protocol of the
// web-of-trust daemon: a flat message of string fields, dispatched by
// message name, carried over websocket JSON frames or HTTP POST.
//
// All field values are strings; numbers are decimal strings. A Trust or
// Score query for an absent row answers with the value "Inexistent"
// instead of an error, so clients can distinguish "not trusted" from a
// protocol failure.
package fcp

import (
	"fmt"
	"strconv"
)

// Inexistent is the wire value for an absent trust or score.
const Inexistent = "Inexistent"

// Message names understood by the dispatcher.
const (
	MsgPing              = "Ping"
	MsgSetTrust          = "SetTrust"
	MsgRemoveTrust       = "RemoveTrust"
	MsgGetTrust          = "GetTrust"
	MsgGetScore          = "GetScore"
	MsgGetIdentity       = "GetIdentity"
	MsgAddIdentity       = "AddIdentity"
	MsgCreateOwnIdentity = "CreateOwnIdentity"
	MsgDeleteIdentity    = "DeleteIdentity"
	MsgAddContext        = "AddContext"
	MsgRemoveContext     = "RemoveContext"
	MsgSetProperty       = "SetProperty"
	MsgGetProperty       = "GetProperty"
	MsgRemoveProperty    = "RemoveProperty"
	MsgSubscribe         = "Subscribe"
	MsgUnsubscribe       = "Unsubscribe"
)

// Reply names produced by the dispatcher.
const (
	MsgPong               = "Pong"
	MsgTrustSet           = "TrustSet"
	MsgTrustRemoved       = "TrustRemoved"
	MsgTrust              = "Trust"
	MsgScore              = "Score"
	MsgIdentity           = "Identity"
	MsgIdentityAdded      = "IdentityAdded"
	MsgOwnIdentityCreated = "OwnIdentityCreated"
	MsgIdentityDeleted    = "IdentityDeleted"
	MsgContextAdded       = "ContextAdded"
	MsgContextRemoved     = "ContextRemoved"
	MsgPropertySet        = "PropertySet"
	MsgPropertyValue      = "PropertyValue"
	MsgPropertyRemoved    = "PropertyRemoved"
	MsgSubscribed         = "Subscribed"
	MsgUnsubscribed       = "Unsubscribed"
	MsgError              = "Error"

	// MsgSynchronization carries the full stream snapshot that precedes
	// live notifications after a Subscribe.
	MsgSynchronization = "Synchronization"

	// MsgObjectChanged carries one before/after notification.
	MsgObjectChanged = "ObjectChangedNotification"

	// MsgSubscriptionTerminated informs a client the daemon force-ended
	// its subscription.
	MsgSubscriptionTerminated = "SubscriptionTerminated"
)

// Message is one keyed-field protocol message.
type Message struct {
	// Name selects the operation or reply type.
	Name string `json:"name"`

	// Fields are the flat string key/value parameters.
	Fields map[string]string `json:"fields,omitempty"`
}

// NewMessage creates a message with an empty field set.
func NewMessage(name string) *Message {
	return &Message{Name: name, Fields: make(map[string]string)}
}

// Set stores a field and returns the message for chaining.
func (m *Message) Set(key, value string) *Message {
	if m.Fields == nil {
		m.Fields = make(map[string]string)
	}
	m.Fields[key] = value
	return m
}

// SetInt stores an integer field as its decimal string.
func (m *Message) SetInt(key string, value int64) *Message {
	return m.Set(key, strconv.FormatInt(value, 10))
}

// SetBool stores a boolean field as "true" or "false".
func (m *Message) SetBool(key string, value bool) *Message {
	return m.Set(key, strconv.FormatBool(value))
}

// Get returns a field value, or empty string if absent.
func (m *Message) Get(key string) string {
	return m.Fields[key]
}

// Require returns a field value or an error naming the missing field.
func (m *Message) Require(key string) (string, error) {
	v, ok := m.Fields[key]
	if !ok || v == "" {
		return "", fmt.Errorf("missing required field %q", key)
	}
	return v, nil
}

// RequireInt parses a required decimal integer field.
func (m *Message) RequireInt(key string) (int, error) {
	v, err := m.Require(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("field %q is not a decimal integer: %q", key, v)
	}
	return n, nil
}

// GetBool parses an optional boolean field, defaulting to false.
func (m *Message) GetBool(key string) bool {
	v, err := strconv.ParseBool(m.Fields[key])
	if err != nil {
		return false
	}
	return v
}

// ErrorReply builds the standard error reply for a failed operation.
// OriginalMessage echoes the request name so pipelined clients can
// correlate.
func ErrorReply(original string, err error) *Message {
	return NewMessage(MsgError).
		Set("OriginalMessage", original).
		Set("Description", err.Error())
}

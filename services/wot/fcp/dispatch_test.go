// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianWoT/services/wot/graph"
)

// testURI builds a syntactically valid key URI whose routing key (and
// therefore identity ID) is derived from name.
func testURI(name string) string {
	routing := name + strings.Repeat("0", 24-len(name))
	return "USK@" + routing + ",crypto-part-padded-to-length00,AQACAAE/WebOfTrust/0"
}

func testID(name string) string {
	return name + strings.Repeat("0", 24-len(name))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *graph.Store) {
	t.Helper()
	store := graph.NewStore(graph.Options{})
	return NewDispatcher(store, nil), store
}

func TestHandle_Ping(t *testing.T) {
	d, _ := newTestDispatcher(t)
	reply := d.Handle(NewMessage(MsgPing))
	assert.Equal(t, MsgPong, reply.Name)
}

func TestHandle_UnknownMessage(t *testing.T) {
	d, _ := newTestDispatcher(t)
	reply := d.Handle(NewMessage("Bogus"))
	require.Equal(t, MsgError, reply.Name)
	assert.Equal(t, "Bogus", reply.Get("OriginalMessage"))
	assert.Contains(t, reply.Get("Description"), "unknown message")
}

func TestHandle_SetTrustByURICreatesStub(t *testing.T) {
	d, store := newTestDispatcher(t)
	_, err := store.CreateOwnIdentity(testURI("alice"), "Alice", true, "")
	require.NoError(t, err)

	reply := d.Handle(NewMessage(MsgSetTrust).
		Set("Truster", testID("alice")).
		Set("TrusteeURI", testURI("bob")).
		Set("Value", "75").
		Set("Comment", "met at fosdem"))
	require.Equal(t, MsgTrustSet, reply.Name)

	// The stub exists and the edge is queryable.
	_, err = store.GetByID(testID("bob"))
	require.NoError(t, err)

	got := d.Handle(NewMessage(MsgGetTrust).
		Set("Truster", testID("alice")).
		Set("Trustee", testID("bob")))
	require.Equal(t, MsgTrust, got.Name)
	assert.Equal(t, "75", got.Get("Value"))
	assert.Equal(t, "met at fosdem", got.Get("Comment"))
}

func TestHandle_GetTrustAbsentIsInexistent(t *testing.T) {
	d, store := newTestDispatcher(t)
	_, err := store.CreateOwnIdentity(testURI("alice"), "Alice", true, "")
	require.NoError(t, err)
	_, err = store.Add(testURI("bob"))
	require.NoError(t, err)

	reply := d.Handle(NewMessage(MsgGetTrust).
		Set("Truster", testID("alice")).
		Set("Trustee", testID("bob")))
	require.Equal(t, MsgTrust, reply.Name)
	assert.Equal(t, Inexistent, reply.Get("Value"))
}

func TestHandle_GetScore(t *testing.T) {
	d, store := newTestDispatcher(t)
	_, err := store.CreateOwnIdentity(testURI("alice"), "Alice", true, "")
	require.NoError(t, err)
	require.NoError(t, store.SetTrustFromURI(testID("alice"), testURI("bob"), 100, ""))

	reply := d.Handle(NewMessage(MsgGetScore).
		Set("TreeOwner", testID("alice")).
		Set("Target", testID("bob")))
	require.Equal(t, MsgScore, reply.Name)
	assert.Equal(t, "100", reply.Get("Value"))
	assert.Equal(t, "1", reply.Get("Rank"))
	assert.Equal(t, "40", reply.Get("Capacity"))

	// A target outside the tree answers Inexistent, not an error.
	_, err = store.Add(testURI("carol"))
	require.NoError(t, err)
	reply = d.Handle(NewMessage(MsgGetScore).
		Set("TreeOwner", testID("alice")).
		Set("Target", testID("carol")))
	require.Equal(t, MsgScore, reply.Name)
	assert.Equal(t, Inexistent, reply.Get("Value"))
}

func TestHandle_IdentityLifecycle(t *testing.T) {
	d, _ := newTestDispatcher(t)

	created := d.Handle(NewMessage(MsgCreateOwnIdentity).
		Set("InsertURI", testURI("alice")).
		Set("Nickname", "Alice").
		Set("PublishTrustList", "true"))
	require.Equal(t, MsgOwnIdentityCreated, created.Name)
	assert.Equal(t, testID("alice"), created.Get("ID"))
	assert.Equal(t, "true", created.Get("Own"))
	// Insert URIs are private key material and must never be echoed.
	_, leaked := created.Fields["InsertURI"]
	assert.False(t, leaked, "reply leaks the insert URI")

	added := d.Handle(NewMessage(MsgAddIdentity).
		Set("RequestURI", testURI("bob")))
	require.Equal(t, MsgIdentityAdded, added.Name)
	assert.Equal(t, "false", added.Get("Own"))

	got := d.Handle(NewMessage(MsgGetIdentity).Set("ID", testID("bob")))
	require.Equal(t, MsgIdentity, got.Name)
	assert.Equal(t, testID("bob"), got.Get("ID"))

	byURI := d.Handle(NewMessage(MsgGetIdentity).Set("RequestURI", testURI("bob")))
	require.Equal(t, MsgIdentity, byURI.Name)

	deleted := d.Handle(NewMessage(MsgDeleteIdentity).Set("ID", testID("bob")))
	require.Equal(t, MsgIdentityDeleted, deleted.Name)

	missing := d.Handle(NewMessage(MsgGetIdentity).Set("ID", testID("bob")))
	assert.Equal(t, MsgError, missing.Name)
}

func TestHandle_MissingFieldsRejected(t *testing.T) {
	d, _ := newTestDispatcher(t)

	tests := []*Message{
		NewMessage(MsgSetTrust).Set("Truster", "x"),                     // no value
		NewMessage(MsgSetTrust).Set("Truster", "x").Set("Value", "ten"), // not decimal
		NewMessage(MsgGetTrust).Set("Truster", "x"),                     // no trustee
		NewMessage(MsgGetScore),                                         // nothing
		NewMessage(MsgCreateOwnIdentity).Set("Nickname", "A"),           // no insert URI
		NewMessage(MsgDeleteIdentity),                                   // no id
	}
	for _, msg := range tests {
		reply := d.Handle(msg)
		assert.Equal(t, MsgError, reply.Name, "message %s", msg.Name)
	}
}

func TestHandle_SubscribeRequiresWebsocket(t *testing.T) {
	d, _ := newTestDispatcher(t)
	reply := d.Handle(NewMessage(MsgSubscribe).Set("To", "trusts"))
	require.Equal(t, MsgError, reply.Name)
	assert.Contains(t, reply.Get("Description"), "websocket")
}

func TestHandle_ContextRoundTrip(t *testing.T) {
	d, store := newTestDispatcher(t)
	_, err := store.Add(testURI("alice"))
	require.NoError(t, err)

	reply := d.Handle(NewMessage(MsgAddContext).
		Set("ID", testID("alice")).
		Set("Context", "Freetalk"))
	require.Equal(t, MsgContextAdded, reply.Name)

	identity, err := store.GetByID(testID("alice"))
	require.NoError(t, err)
	assert.True(t, identity.HasContext("Freetalk"))

	reply = d.Handle(NewMessage(MsgRemoveContext).
		Set("ID", testID("alice")).
		Set("Context", "Freetalk"))
	require.Equal(t, MsgContextRemoved, reply.Name)

	identity, err = store.GetByID(testID("alice"))
	require.NoError(t, err)
	assert.False(t, identity.HasContext("Freetalk"))
}

func TestHandle_PropertyValueAndInexistent(t *testing.T) {
	d, store := newTestDispatcher(t)
	_, err := store.Add(testURI("alice"))
	require.NoError(t, err)

	reply := d.Handle(NewMessage(MsgSetProperty).
		Set("ID", testID("alice")).
		Set("Property", "IntroductionPuzzleCount").
		Set("Value", "10"))
	require.Equal(t, MsgPropertySet, reply.Name)

	reply = d.Handle(NewMessage(MsgGetProperty).
		Set("ID", testID("alice")).
		Set("Property", "IntroductionPuzzleCount"))
	require.Equal(t, MsgPropertyValue, reply.Name)
	assert.Equal(t, "10", reply.Get("Value"))

	reply = d.Handle(NewMessage(MsgRemoveProperty).
		Set("ID", testID("alice")).
		Set("Property", "IntroductionPuzzleCount"))
	require.Equal(t, MsgPropertyRemoved, reply.Name)

	reply = d.Handle(NewMessage(MsgGetProperty).
		Set("ID", testID("alice")).
		Set("Property", "IntroductionPuzzleCount"))
	require.Equal(t, MsgPropertyValue, reply.Name)
	assert.Equal(t, Inexistent, reply.Get("Value"))
}

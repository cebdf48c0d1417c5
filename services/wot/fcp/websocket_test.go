// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fcp

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianWoT/services/wot/graph"
	storage "github.com/AleutianAI/AleutianWoT/services/wot/storage/badger"
	"github.com/AleutianAI/AleutianWoT/services/wot/subscription"
)

// newWebsocketClient spins up a full protocol endpoint (store, subscription
// manager, websocket route) and dials it.
func newWebsocketClient(t *testing.T) (*graph.Store, *websocket.Conn) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	subs, err := subscription.NewManager(subscription.Options{
		Queue:                  storage.NewNotificationQueue(db),
		SynchronizationTimeout: 5 * time.Second,
		AckTimeout:             5 * time.Second,
		RetryDelay:             5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { subs.Close() })

	store := graph.NewStore(graph.Options{Events: subs})

	router := gin.New()
	router.GET("/ws", HandleWebSocket(store, subs, nil))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return store, ws
}

func readMessage(t *testing.T, ws *websocket.Conn) *Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, ws.ReadJSON(&msg))
	return &msg
}

func ackMessage(t *testing.T, ws *websocket.Conn, msg *Message) {
	t.Helper()
	require.NotEmpty(t, msg.Get("MessageID"))
	require.NoError(t, ws.WriteJSON(NewMessage(MsgAck).Set("MessageID", msg.Get("MessageID"))))
}

// The Subscribe handshake needs the read loop to route the client's Ack
// while the handshake is still in flight, so the whole exchange must work
// over a single connection.
func TestWebsocket_SubscribeHandshake(t *testing.T) {
	store, ws := newWebsocketClient(t)

	_, err := store.CreateOwnIdentity(testURI("alice"), "Alice", true, "")
	require.NoError(t, err)

	require.NoError(t, ws.WriteJSON(NewMessage(MsgSubscribe).Set("To", "trusts")))

	sync := readMessage(t, ws)
	require.Equal(t, MsgSynchronization, sync.Name)
	assert.Equal(t, "trusts", sync.Get("To"))
	ackMessage(t, ws, sync)

	subscribed := readMessage(t, ws)
	require.Equal(t, MsgSubscribed, subscribed.Name)
	assert.Equal(t, "trusts", subscribed.Get("To"))
	assert.NotEmpty(t, subscribed.Get("SubscriptionID"))
}

func TestWebsocket_NotificationAfterHandshake(t *testing.T) {
	store, ws := newWebsocketClient(t)

	_, err := store.CreateOwnIdentity(testURI("alice"), "Alice", true, "")
	require.NoError(t, err)

	require.NoError(t, ws.WriteJSON(NewMessage(MsgSubscribe).Set("To", "trusts")))
	ackMessage(t, ws, readMessage(t, ws))
	subscribed := readMessage(t, ws)
	require.Equal(t, MsgSubscribed, subscribed.Name)

	require.NoError(t, store.SetTrustFromURI(testID("alice"), testURI("bob"), 75, "hello"))

	note := readMessage(t, ws)
	require.Equal(t, MsgObjectChanged, note.Name)
	assert.Equal(t, subscribed.Get("SubscriptionID"), note.Get("SubscriptionID"))
	assert.Contains(t, note.Get("Data"), `"value":75`)
	ackMessage(t, ws, note)
}

func TestWebsocket_RequestReplyStillServedDuringSubscription(t *testing.T) {
	store, ws := newWebsocketClient(t)

	_, err := store.CreateOwnIdentity(testURI("alice"), "Alice", true, "")
	require.NoError(t, err)

	require.NoError(t, ws.WriteJSON(NewMessage(MsgSubscribe).Set("To", "identities")))
	ackMessage(t, ws, readMessage(t, ws))
	require.Equal(t, MsgSubscribed, readMessage(t, ws).Name)

	require.NoError(t, ws.WriteJSON(NewMessage(MsgPing)))
	assert.Equal(t, MsgPong, readMessage(t, ws).Name)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianWoT/services/wot/graph"
	"github.com/AleutianAI/AleutianWoT/services/wot/subscription"
)

// Acknowledgement message names. Every Synchronization and
// ObjectChangedNotification carries a MessageID the client must answer
// with one of these.
const (
	MsgAck  = "Ack"
	MsgNack = "Nack"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// HandleWebSocket upgrades the connection and serves the keyed-field
// protocol over it, including the subscription handshake that the
// stateless dispatcher rejects.
func HandleWebSocket(store *graph.Store, subs *subscription.Manager, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	dispatcher := NewDispatcher(store, logger)

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		conn := &clientConn{
			ws:      ws,
			store:   store,
			subs:    subs,
			dsp:     dispatcher,
			logger:  logger.With("client", ws.RemoteAddr().String()),
			pending: make(map[string]chan bool),
			mine:    make(map[string]bool),
		}
		conn.logger.Info("protocol client connected")
		conn.serve()
		conn.logger.Info("protocol client disconnected")
	}
}

// clientConn is one websocket protocol session. Reads happen on the serve
// goroutine only; writes are serialized by writeMu because subscription
// workers write concurrently with request replies.
type clientConn struct {
	ws     *websocket.Conn
	store  *graph.Store
	subs   *subscription.Manager
	dsp    *Dispatcher
	logger *slog.Logger

	writeMu sync.Mutex

	// pending routes Ack/Nack replies to the worker waiting on them.
	pendingMu sync.Mutex
	pending   map[string]chan bool

	// mine tracks subscriptions owned by this connection so disconnect
	// detaches them (queue kept for resume).
	mineMu sync.Mutex
	mine   map[string]bool
}

func (c *clientConn) serve() {
	defer c.detachAll()

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		switch msg.Name {
		case MsgAck, MsgNack:
			c.routeAck(&msg)
		case MsgSubscribe:
			// The handshake blocks until the client acknowledges the
			// snapshot, and only this read loop can deliver that Ack, so
			// it must not run inline. Writes are serialized by writeMu.
			go func(msg Message) {
				c.write(c.handleSubscribe(&msg))
			}(msg)
		case MsgUnsubscribe:
			c.write(c.handleUnsubscribe(&msg))
		default:
			c.write(c.dsp.Handle(&msg))
		}
	}
}

func (c *clientConn) write(msg *Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(msg); err != nil {
		c.logger.Warn("websocket write failed", "message", msg.Name, "error", err)
	}
}

// writeChecked is for subscription deliveries, where a failed write must
// count as a failed attempt.
func (c *clientConn) writeChecked(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *clientConn) routeAck(msg *Message) {
	id := msg.Get("MessageID")
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Debug("acknowledgement for unknown message", "message_id", id)
		return
	}
	ch <- msg.Name == MsgAck
}

// awaitAck sends a message and blocks until the client acknowledges it or
// the context expires.
func (c *clientConn) awaitAck(ctx context.Context, msg *Message) error {
	id := uuid.NewString()
	msg.Set("MessageID", id)

	ch := make(chan bool, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := c.writeChecked(msg); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return err
	}

	select {
	case acked := <-ch:
		if !acked {
			return errors.New("client rejected message")
		}
		return nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return ctx.Err()
	}
}

// =============================================================================
// Subscription handshake
// =============================================================================

func (c *clientConn) handleSubscribe(msg *Message) *Message {
	to, err := msg.Require("To")
	if err != nil {
		return ErrorReply(msg.Name, err)
	}
	stream, err := subscription.ParseStreamType(to)
	if err != nil {
		return ErrorReply(msg.Name, err)
	}

	id, err := c.subs.Subscribe(subscription.Request{
		Stream:    stream,
		Snapshot:  func() ([]byte, error) { return c.snapshot(stream) },
		Transport: (*wsTransport)(c),
		ResumeID:  msg.Get("SubscriptionID"),
	})
	if err != nil {
		return ErrorReply(msg.Name, err)
	}

	c.mineMu.Lock()
	c.mine[id] = true
	c.mineMu.Unlock()

	return NewMessage(MsgSubscribed).
		Set("SubscriptionID", id).
		Set("To", to)
}

func (c *clientConn) handleUnsubscribe(msg *Message) *Message {
	id, err := msg.Require("SubscriptionID")
	if err != nil {
		return ErrorReply(msg.Name, err)
	}

	// Idempotent: unsubscribing twice still answers Unsubscribed.
	c.subs.Unsubscribe(id)
	c.mineMu.Lock()
	delete(c.mine, id)
	c.mineMu.Unlock()

	return NewMessage(MsgUnsubscribed).Set("SubscriptionID", id)
}

// snapshot serializes the full current state of one stream.
func (c *clientConn) snapshot(stream subscription.StreamType) ([]byte, error) {
	var v any
	switch stream {
	case subscription.StreamIdentities:
		identities := c.store.AllIdentities()
		public := make([]*graph.Identity, len(identities))
		for i, identity := range identities {
			public[i] = identity.Public()
		}
		v = public
	case subscription.StreamTrusts:
		v = c.store.AllTrusts()
	case subscription.StreamScores:
		v = c.store.AllScores()
	default:
		return nil, fmt.Errorf("unknown subscription stream %q", stream)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s snapshot: %w", stream, err)
	}
	return data, nil
}

// detachAll stops this connection's subscription workers but keeps their
// queues, so a reconnect with the same SubscriptionID resumes delivery.
func (c *clientConn) detachAll() {
	c.mineMu.Lock()
	ids := make([]string, 0, len(c.mine))
	for id := range c.mine {
		ids = append(ids, id)
	}
	c.mine = make(map[string]bool)
	c.mineMu.Unlock()

	for _, id := range ids {
		c.subs.Detach(id)
	}
}

// =============================================================================
// subscription.Transport over the websocket
// =============================================================================

// wsTransport adapts a clientConn to the subscription manager's Transport.
type wsTransport clientConn

func (t *wsTransport) conn() *clientConn { return (*clientConn)(t) }

func (t *wsTransport) SendSynchronization(ctx context.Context, subID string, stream subscription.StreamType, snapshot []byte) error {
	msg := NewMessage(MsgSynchronization).
		Set("SubscriptionID", subID).
		Set("To", string(stream)).
		Set("Data", string(snapshot))
	return t.conn().awaitAck(ctx, msg)
}

func (t *wsTransport) SendNotification(ctx context.Context, subID string, payload []byte) error {
	msg := NewMessage(MsgObjectChanged).
		Set("SubscriptionID", subID).
		Set("Data", string(payload))
	return t.conn().awaitAck(ctx, msg)
}

func (t *wsTransport) SendTerminated(subID string, reason string) {
	c := t.conn()
	c.mineMu.Lock()
	delete(c.mine, subID)
	c.mineMu.Unlock()
	c.write(NewMessage(MsgSubscriptionTerminated).
		Set("SubscriptionID", subID).
		Set("Reason", reason))
}

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
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianWoT/services/wot/graph"
)

// ErrSubscriptionRequiresStream is returned when a Subscribe or
// Unsubscribe message arrives on a stateless transport (HTTP POST).
var ErrSubscriptionRequiresStream = errors.New("subscriptions require a websocket connection")

// Dispatcher routes stateless protocol messages to the graph store.
// Subscription messages are connection-bound and handled by the websocket
// layer; the Dispatcher rejects them.
//
// Thread Safety: safe for concurrent use; all state lives in the store.
type Dispatcher struct {
	store  *graph.Store
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given store.
func NewDispatcher(store *graph.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, logger: logger}
}

// Handle executes one request message and always returns a reply: either
// the operation's result or an Error message. Handle never returns nil.
func (d *Dispatcher) Handle(msg *Message) *Message {
	reply, err := d.dispatch(msg)
	if err != nil {
		d.logger.Debug("protocol operation failed", "message", msg.Name, "error", err)
		return ErrorReply(msg.Name, err)
	}
	return reply
}

func (d *Dispatcher) dispatch(msg *Message) (*Message, error) {
	switch msg.Name {
	case MsgPing:
		return NewMessage(MsgPong), nil
	case MsgSetTrust:
		return d.setTrust(msg)
	case MsgRemoveTrust:
		return d.removeTrust(msg)
	case MsgGetTrust:
		return d.getTrust(msg)
	case MsgGetScore:
		return d.getScore(msg)
	case MsgGetIdentity:
		return d.getIdentity(msg)
	case MsgAddIdentity:
		return d.addIdentity(msg)
	case MsgCreateOwnIdentity:
		return d.createOwnIdentity(msg)
	case MsgDeleteIdentity:
		return d.deleteIdentity(msg)
	case MsgAddContext:
		return d.addContext(msg)
	case MsgRemoveContext:
		return d.removeContext(msg)
	case MsgSetProperty:
		return d.setProperty(msg)
	case MsgGetProperty:
		return d.getProperty(msg)
	case MsgRemoveProperty:
		return d.removeProperty(msg)
	case MsgSubscribe, MsgUnsubscribe:
		return nil, ErrSubscriptionRequiresStream
	default:
		return nil, fmt.Errorf("unknown message %q", msg.Name)
	}
}

func (d *Dispatcher) setTrust(msg *Message) (*Message, error) {
	truster, err := msg.Require("Truster")
	if err != nil {
		return nil, err
	}
	value, err := msg.RequireInt("Value")
	if err != nil {
		return nil, err
	}
	comment := msg.Get("Comment")

	// The trustee may arrive as a known ID or as a key URI for an
	// identity the daemon has never seen; the URI form creates a stub.
	if trusteeURI := msg.Get("TrusteeURI"); trusteeURI != "" {
		if err := d.store.SetTrustFromURI(truster, trusteeURI, value, comment); err != nil {
			return nil, err
		}
	} else {
		trustee, err := msg.Require("Trustee")
		if err != nil {
			return nil, err
		}
		if err := d.store.SetTrust(truster, trustee, value, comment); err != nil {
			return nil, err
		}
	}
	return NewMessage(MsgTrustSet), nil
}

func (d *Dispatcher) removeTrust(msg *Message) (*Message, error) {
	truster, err := msg.Require("Truster")
	if err != nil {
		return nil, err
	}
	trustee, err := msg.Require("Trustee")
	if err != nil {
		return nil, err
	}
	if err := d.store.RemoveTrust(truster, trustee); err != nil {
		return nil, err
	}
	return NewMessage(MsgTrustRemoved), nil
}

func (d *Dispatcher) getTrust(msg *Message) (*Message, error) {
	truster, err := msg.Require("Truster")
	if err != nil {
		return nil, err
	}
	trustee, err := msg.Require("Trustee")
	if err != nil {
		return nil, err
	}

	reply := NewMessage(MsgTrust).
		Set("Truster", truster).
		Set("Trustee", trustee)

	tr, err := d.store.GetTrust(truster, trustee)
	switch {
	case errors.Is(err, graph.ErrNotTrusted):
		return reply.Set("Value", Inexistent), nil
	case err != nil:
		return nil, err
	}
	return reply.
		SetInt("Value", int64(tr.Value)).
		Set("Comment", tr.Comment), nil
}

func (d *Dispatcher) getScore(msg *Message) (*Message, error) {
	owner, err := msg.Require("TreeOwner")
	if err != nil {
		return nil, err
	}
	target, err := msg.Require("Target")
	if err != nil {
		return nil, err
	}

	reply := NewMessage(MsgScore).
		Set("TreeOwner", owner).
		Set("Target", target)

	sc, err := d.store.GetScore(owner, target)
	switch {
	case errors.Is(err, graph.ErrNotInTrustTree):
		return reply.Set("Value", Inexistent), nil
	case err != nil:
		return nil, err
	}
	return reply.
		SetInt("Value", int64(sc.Value)).
		SetInt("Rank", int64(sc.Rank)).
		SetInt("Capacity", int64(sc.Capacity)), nil
}

func (d *Dispatcher) getIdentity(msg *Message) (*Message, error) {
	var (
		identity *graph.Identity
		err      error
	)
	if id := msg.Get("ID"); id != "" {
		identity, err = d.store.GetByID(id)
	} else {
		var uri string
		uri, err = msg.Require("RequestURI")
		if err != nil {
			return nil, err
		}
		identity, err = d.store.GetByURI(uri)
	}
	if err != nil {
		return nil, err
	}
	return identityReply(MsgIdentity, identity), nil
}

func (d *Dispatcher) addIdentity(msg *Message) (*Message, error) {
	uri, err := msg.Require("RequestURI")
	if err != nil {
		return nil, err
	}
	identity, err := d.store.Add(uri)
	if err != nil {
		return nil, err
	}
	return identityReply(MsgIdentityAdded, identity), nil
}

func (d *Dispatcher) createOwnIdentity(msg *Message) (*Message, error) {
	insertURI, err := msg.Require("InsertURI")
	if err != nil {
		return nil, err
	}
	nickname, err := msg.Require("Nickname")
	if err != nil {
		return nil, err
	}
	identity, err := d.store.CreateOwnIdentity(insertURI, nickname,
		msg.GetBool("PublishTrustList"), msg.Get("Context"))
	if err != nil {
		return nil, err
	}
	return identityReply(MsgOwnIdentityCreated, identity), nil
}

func (d *Dispatcher) deleteIdentity(msg *Message) (*Message, error) {
	id, err := msg.Require("ID")
	if err != nil {
		return nil, err
	}
	if err := d.store.Delete(id); err != nil {
		return nil, err
	}
	return NewMessage(MsgIdentityDeleted).Set("ID", id), nil
}

func (d *Dispatcher) addContext(msg *Message) (*Message, error) {
	id, err := msg.Require("ID")
	if err != nil {
		return nil, err
	}
	name, err := msg.Require("Context")
	if err != nil {
		return nil, err
	}
	if err := d.store.AddContext(id, name); err != nil {
		return nil, err
	}
	return NewMessage(MsgContextAdded).Set("ID", id).Set("Context", name), nil
}

func (d *Dispatcher) removeContext(msg *Message) (*Message, error) {
	id, err := msg.Require("ID")
	if err != nil {
		return nil, err
	}
	name, err := msg.Require("Context")
	if err != nil {
		return nil, err
	}
	if err := d.store.RemoveContext(id, name); err != nil {
		return nil, err
	}
	return NewMessage(MsgContextRemoved).Set("ID", id).Set("Context", name), nil
}

func (d *Dispatcher) setProperty(msg *Message) (*Message, error) {
	id, err := msg.Require("ID")
	if err != nil {
		return nil, err
	}
	key, err := msg.Require("Property")
	if err != nil {
		return nil, err
	}
	if err := d.store.SetProperty(id, key, msg.Get("Value")); err != nil {
		return nil, err
	}
	return NewMessage(MsgPropertySet).Set("ID", id).Set("Property", key), nil
}

func (d *Dispatcher) getProperty(msg *Message) (*Message, error) {
	id, err := msg.Require("ID")
	if err != nil {
		return nil, err
	}
	key, err := msg.Require("Property")
	if err != nil {
		return nil, err
	}
	identity, err := d.store.GetByID(id)
	if err != nil {
		return nil, err
	}

	reply := NewMessage(MsgPropertyValue).Set("ID", id).Set("Property", key)
	value, ok := identity.Properties[key]
	if !ok {
		return reply.Set("Value", Inexistent), nil
	}
	return reply.Set("Value", value), nil
}

func (d *Dispatcher) removeProperty(msg *Message) (*Message, error) {
	id, err := msg.Require("ID")
	if err != nil {
		return nil, err
	}
	key, err := msg.Require("Property")
	if err != nil {
		return nil, err
	}
	if err := d.store.RemoveProperty(id, key); err != nil {
		return nil, err
	}
	return NewMessage(MsgPropertyRemoved).Set("ID", id).Set("Property", key), nil
}

// identityReply flattens an identity into protocol fields. The insert URI
// of own identities is private key material and is never echoed.
func identityReply(name string, i *graph.Identity) *Message {
	return NewMessage(name).
		Set("ID", i.ID).
		Set("RequestURI", i.RequestURI).
		Set("Nickname", i.Nickname).
		SetBool("PublishesTrustList", i.PublishesTrustList).
		SetInt("CurrentEdition", i.CurrentEdition).
		Set("FetchState", i.FetchState.String()).
		SetBool("Own", i.IsOwn())
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fcp

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_FieldAccessors(t *testing.T) {
	msg := NewMessage(MsgSetTrust).
		Set("Truster", "abc").
		SetInt("Value", -100).
		SetBool("Flag", true)

	assert.Equal(t, "abc", msg.Get("Truster"))
	assert.Equal(t, "-100", msg.Get("Value"))
	assert.Equal(t, "true", msg.Get("Flag"))
	assert.True(t, msg.GetBool("Flag"))
	assert.False(t, msg.GetBool("Absent"))
	assert.Equal(t, "", msg.Get("Absent"))
}

func TestMessage_Require(t *testing.T) {
	msg := NewMessage(MsgGetTrust).Set("Truster", "abc").Set("Empty", "")

	v, err := msg.Require("Truster")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	_, err = msg.Require("Missing")
	assert.Error(t, err)
	_, err = msg.Require("Empty")
	assert.Error(t, err)
}

func TestMessage_RequireInt(t *testing.T) {
	msg := NewMessage(MsgSetTrust).
		Set("Value", "-42").
		Set("NotANumber", "many")

	n, err := msg.RequireInt("Value")
	require.NoError(t, err)
	assert.Equal(t, -42, n)

	_, err = msg.RequireInt("NotANumber")
	assert.Error(t, err)
	_, err = msg.RequireInt("Missing")
	assert.Error(t, err)
}

func TestMessage_JSONShape(t *testing.T) {
	msg := NewMessage(MsgTrust).Set("Value", Inexistent)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Trust","fields":{"Value":"Inexistent"}}`, string(data))

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, MsgTrust, decoded.Name)
	assert.Equal(t, Inexistent, decoded.Get("Value"))
}

func TestMessage_SetOnZeroValue(t *testing.T) {
	var msg Message
	msg.Set("Key", "value")
	assert.Equal(t, "value", msg.Get("Key"))
}

func TestErrorReply(t *testing.T) {
	reply := ErrorReply(MsgSetTrust, errors.New("trust value out of range"))
	assert.Equal(t, MsgError, reply.Name)
	assert.Equal(t, MsgSetTrust, reply.Get("OriginalMessage"))
	assert.Equal(t, "trust value out of range", reply.Get("Description"))
}

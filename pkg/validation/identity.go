// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for user-supplied
// identity material.
//
// This package contains validators for nicknames, key URIs, context names,
// and property keys before they reach the graph store. Using these
// validators keeps unsafe characters out of the host protocol's keyed field
// encoding and bounds field sizes before any state is mutated.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// MaxNicknameLength is the maximum nickname length in runes.
const MaxNicknameLength = 30

// MaxContextNameLength is the maximum context name length.
const MaxContextNameLength = 32

// MaxPropertyKeyLength is the maximum property key length.
const MaxPropertyKeyLength = 256

// MaxPropertyValueLength is the maximum property value length.
const MaxPropertyValueLength = 10 * 1024

// nicknameForbidden are characters unsafe for keyed field encoding:
// field separators, markup, and the key/site delimiters of URI notation.
const nicknameForbidden = "@\"<>#;:/?=\\"

// keyURIPattern matches a request or insert URI of the form
// "USK@<routing>,<crypto>,<extra>/<site>/<edition>". The routing key is the
// stable part an identity ID is derived from.
var keyURIPattern = regexp.MustCompile(`^(USK|SSK)@([A-Za-z0-9~_-]{20,100}),([A-Za-z0-9~_-]{20,100}),([A-Za-z0-9~_-]{1,20})(/.*)?$`)

// contextPattern matches valid context names: letters and digits only,
// e.g. "Introduction" or "Freetalk".
var contextPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ValidateNickname checks a nickname against the length and charset rule.
//
// Valid nicknames:
//   - 1 to MaxNicknameLength runes
//   - no leading or trailing whitespace
//   - no control characters
//   - none of the reserved field-encoding characters (@ " < > # ; : / ? = \)
//
// Returns an error describing the first violation found.
func ValidateNickname(nickname string) error {
	if nickname == "" {
		return fmt.Errorf("nickname cannot be empty")
	}
	if strings.TrimSpace(nickname) != nickname {
		return fmt.Errorf("nickname has leading or trailing whitespace")
	}
	runes := []rune(nickname)
	if len(runes) > MaxNicknameLength {
		return fmt.Errorf("nickname too long: %d runes (max %d)", len(runes), MaxNicknameLength)
	}
	for _, r := range runes {
		if unicode.IsControl(r) {
			return fmt.Errorf("nickname contains control character")
		}
		if strings.ContainsRune(nicknameForbidden, r) {
			return fmt.Errorf("nickname contains reserved character %q", r)
		}
	}
	return nil
}

// Key settings markers. The request and insert URI of a key pair share the
// routing and crypto keys; the settings component marks whether the key
// grants insert access.
const (
	RequestKeySettings = "AQACAAE"
	InsertKeySettings  = "AQECAAE"
)

// RoutingKey extracts the routing-key portion of a key URI. The routing key
// is stable across editions and is what identity IDs are derived from.
//
// Returns an error if the URI does not parse.
func RoutingKey(uri string) (string, error) {
	m := keyURIPattern.FindStringSubmatch(strings.TrimSpace(uri))
	if m == nil {
		return "", fmt.Errorf("not a valid key URI: %q", truncateForError(uri))
	}
	return m[2], nil
}

// RequestURIFromInsertURI derives the public request URI of a key pair from
// its insert URI by replacing the settings component with the request
// marker. The result is safe to publish; the insert URI never is.
func RequestURIFromInsertURI(uri string) (string, error) {
	m := keyURIPattern.FindStringSubmatch(strings.TrimSpace(uri))
	if m == nil {
		return "", fmt.Errorf("not a valid key URI: %q", truncateForError(uri))
	}
	return m[1] + "@" + m[2] + "," + m[3] + "," + RequestKeySettings + m[5], nil
}

// ValidateKeyURI checks that a request or insert URI parses.
func ValidateKeyURI(uri string) error {
	_, err := RoutingKey(uri)
	return err
}

// ValidateContextName checks a context name (letters and digits, bounded).
func ValidateContextName(name string) error {
	if name == "" {
		return fmt.Errorf("context name cannot be empty")
	}
	if len(name) > MaxContextNameLength {
		return fmt.Errorf("context name too long: %d chars (max %d)", len(name), MaxContextNameLength)
	}
	if !contextPattern.MatchString(name) {
		return fmt.Errorf("invalid context name %q (letters and digits only)", name)
	}
	return nil
}

// ValidateProperty checks a property key/value pair for size and charset.
func ValidateProperty(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("property key cannot be empty")
	}
	if len(key) > MaxPropertyKeyLength {
		return fmt.Errorf("property key too long: %d bytes (max %d)", len(key), MaxPropertyKeyLength)
	}
	if len(value) > MaxPropertyValueLength {
		return fmt.Errorf("property value too long: %d bytes (max %d)", len(value), MaxPropertyValueLength)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("property key contains control character")
		}
	}
	return nil
}

func truncateForError(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"
)

const testRoutingKey = "WMa1Z40iYdZZ51yctQ3toFl9VuWPPdsCzw2lr3A1"

func testURI(path string) string {
	return "USK@" + testRoutingKey + ",Aq3dqw8yzxyPzYGoZ1ZtazsiUIzxl4AcRvmPV9nNmCo,AQACAAE" + path
}

// =============================================================================
// Nickname Tests
// =============================================================================

func TestValidateNickname_Valid(t *testing.T) {
	valid := []string{
		"Alice",
		"alice_bob-99",
		"a",
		strings.Repeat("x", MaxNicknameLength),
		"Ünïcode",
	}
	for _, nick := range valid {
		if err := ValidateNickname(nick); err != nil {
			t.Errorf("ValidateNickname(%q) = %v, want nil", nick, err)
		}
	}
}

func TestValidateNickname_Invalid(t *testing.T) {
	tests := []struct {
		name string
		nick string
	}{
		{"empty", ""},
		{"leading space", " alice"},
		{"trailing space", "alice "},
		{"too long", strings.Repeat("x", MaxNicknameLength+1)},
		{"at sign", "alice@home"},
		{"angle bracket", "a<b"},
		{"slash", "a/b"},
		{"backslash", `a\b`},
		{"quote", `a"b`},
		{"hash", "a#b"},
		{"semicolon", "a;b"},
		{"colon", "a:b"},
		{"question mark", "a?b"},
		{"equals", "a=b"},
		{"control char", "a\x01b"},
		{"newline", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateNickname(tt.nick); err == nil {
				t.Errorf("ValidateNickname(%q) = nil, want error", tt.nick)
			}
		})
	}
}

func TestValidateNickname_LengthIsInRunes(t *testing.T) {
	// 30 multi-byte runes are allowed even though they exceed 30 bytes.
	nick := strings.Repeat("ü", MaxNicknameLength)
	if err := ValidateNickname(nick); err != nil {
		t.Errorf("ValidateNickname(30 multi-byte runes) = %v, want nil", err)
	}
}

// =============================================================================
// Key URI Tests
// =============================================================================

func TestRoutingKey_Valid(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"full USK", testURI("/WebOfTrust/5")},
		{"no path", testURI("")},
		{"SSK form", strings.Replace(testURI("/site-6"), "USK@", "SSK@", 1)},
		{"surrounding whitespace", "  " + testURI("/x/1") + "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := RoutingKey(tt.uri)
			if err != nil {
				t.Fatalf("RoutingKey(%q): %v", tt.uri, err)
			}
			if key != testRoutingKey {
				t.Errorf("RoutingKey = %q, want %q", key, testRoutingKey)
			}
		})
	}
}

func TestRoutingKey_Invalid(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"empty", ""},
		{"wrong scheme", "KSK@something"},
		{"no at sign", "USK" + testRoutingKey},
		{"missing parts", "USK@" + testRoutingKey},
		{"routing key too short", "USK@short,also-short-but-long-enough-crypto-key,AQACAAE"},
		{"illegal chars", "USK@" + strings.Repeat("!", 40) + ",crypto-key-part-long-enough-here,AQACAAE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RoutingKey(tt.uri); err == nil {
				t.Errorf("RoutingKey(%q) = nil error, want failure", tt.uri)
			}
		})
	}
}

func TestRoutingKey_StableAcrossEditions(t *testing.T) {
	a, err := RoutingKey(testURI("/WebOfTrust/1"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := RoutingKey(testURI("/WebOfTrust/42"))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("routing key changed across editions: %q vs %q", a, b)
	}
}

func TestRequestURIFromInsertURI(t *testing.T) {
	insert := "USK@" + testRoutingKey + ",Aq3dqw8yzxyPzYGoZ1ZtazsiUIzxl4AcRvmPV9nNmCo," + InsertKeySettings + "/WebOfTrust/7"

	request, err := RequestURIFromInsertURI(insert)
	if err != nil {
		t.Fatal(err)
	}
	if request == insert {
		t.Fatal("derived request URI must differ from the insert URI")
	}
	if want := testURI("/WebOfTrust/7"); request != want {
		t.Errorf("request URI = %q, want %q", request, want)
	}

	// Same key pair: both URIs map to the same identity ID.
	a, err := RoutingKey(insert)
	if err != nil {
		t.Fatal(err)
	}
	b, err := RoutingKey(request)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("routing key differs between insert and request URI: %q vs %q", a, b)
	}

	if _, err := RequestURIFromInsertURI("not-a-key"); err == nil {
		t.Error("malformed insert URI must be rejected")
	}
}

// =============================================================================
// Context and Property Tests
// =============================================================================

func TestValidateContextName(t *testing.T) {
	valid := []string{"Introduction", "Freetalk", "FMS2", "a"}
	for _, name := range valid {
		if err := ValidateContextName(name); err != nil {
			t.Errorf("ValidateContextName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "has space", "has-dash", "has_underscore",
		strings.Repeat("a", MaxContextNameLength+1)}
	for _, name := range invalid {
		if err := ValidateContextName(name); err == nil {
			t.Errorf("ValidateContextName(%q) = nil, want error", name)
		}
	}
}

func TestValidateProperty(t *testing.T) {
	if err := ValidateProperty("IntroductionPuzzleCount", "10"); err != nil {
		t.Errorf("valid property rejected: %v", err)
	}
	if err := ValidateProperty("", "value"); err == nil {
		t.Error("empty key accepted")
	}
	if err := ValidateProperty("   ", "value"); err == nil {
		t.Error("blank key accepted")
	}
	if err := ValidateProperty(strings.Repeat("k", MaxPropertyKeyLength+1), "v"); err == nil {
		t.Error("oversized key accepted")
	}
	if err := ValidateProperty("key", strings.Repeat("v", MaxPropertyValueLength+1)); err == nil {
		t.Error("oversized value accepted")
	}
	if err := ValidateProperty("bad\x00key", "v"); err == nil {
		t.Error("control character in key accepted")
	}
}

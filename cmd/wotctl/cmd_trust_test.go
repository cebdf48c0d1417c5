package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunTrustSet_SendsTrusteeURIForKeyURIs(t *testing.T) {
	var got map[string]any
	mockDaemon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/trusts" {
			t.Errorf("Expected PUT /v1/trusts, got %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"status": "trust set"})
	}))
	defer mockDaemon.Close()

	serverURL = mockDaemon.URL
	trustComment = "test edge"

	runTrustSet(nil, []string{
		"truster-id",
		"USK@routing-key-padded-to-length00,crypto-part-padded-to-length00,AQACAAE/WebOfTrust/0",
		"75",
	})

	if got["trustee_uri"] == nil {
		t.Errorf("Expected trustee_uri for a key URI argument, got %v", got)
	}
	if got["trustee"] != nil {
		t.Errorf("Did not expect a trustee ID field, got %v", got["trustee"])
	}
	if got["value"].(float64) != 75 {
		t.Errorf("Expected value 75, got %v", got["value"])
	}
	if got["comment"] != "test edge" {
		t.Errorf("Expected comment to be forwarded, got %v", got["comment"])
	}
}

func TestRunTrustSet_SendsTrusteeForPlainIDs(t *testing.T) {
	var got map[string]any
	mockDaemon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"status": "trust set"})
	}))
	defer mockDaemon.Close()

	serverURL = mockDaemon.URL
	trustComment = ""

	runTrustSet(nil, []string{"truster-id", "trustee-id", "-30"})

	if got["trustee"] != "trustee-id" {
		t.Errorf("Expected trustee ID field, got %v", got)
	}
	if got["value"].(float64) != -30 {
		t.Errorf("Expected value -30, got %v", got["value"])
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package wot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianWoT/services/wot/config"
	"github.com/AleutianAI/AleutianWoT/services/wot/fcp"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Test Setup
// =============================================================================

// testURI builds a key URI whose routing key is derived from name, so each
// distinct name yields a distinct identity ID.
func testURI(scheme, name string) string {
	routing := name + strings.Repeat("0", 24-len(name))
	return fmt.Sprintf("%s@%s,crypto-part-padded-to-length00,AQACAAE/WebOfTrust/0", scheme, routing)
}

// testInsertURI is the insert URI of the testURI("USK", name) key pair.
func testInsertURI(name string) string {
	return strings.Replace(testURI("USK", name), "AQACAAE", "AQECAAE", 1)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.SyncWrites = false
	return cfg
}

func newTestService(t *testing.T) (*Service, *gin.Engine) {
	t.Helper()
	svc, err := New(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	router := gin.New()
	SetupRoutes(router, svc)
	return svc, router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// createOwn creates an own identity over HTTP and returns its ID.
func createOwn(t *testing.T, router *gin.Engine, name string) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/v1/identities/own", CreateOwnIdentityRequest{
		InsertURI: testInsertURI(name),
		Nickname:  name,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	return created.ID
}

// =============================================================================
// Routes
// =============================================================================

func TestSetupRoutes_RegistersEndpoints(t *testing.T) {
	_, router := newTestService(t)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/fcp"},
		{"GET", "/ws"},
		{"GET", "/v1/identities"},
		{"POST", "/v1/identities"},
		{"POST", "/v1/identities/own"},
		{"GET", "/v1/identities/:id"},
		{"DELETE", "/v1/identities/:id"},
		{"GET", "/v1/identities/:id/trusts/given"},
		{"GET", "/v1/identities/:id/trusts/received"},
		{"PUT", "/v1/trusts"},
		{"GET", "/v1/trusts/:truster/:trustee"},
		{"DELETE", "/v1/trusts/:truster/:trustee"},
		{"GET", "/v1/scores/:owner"},
		{"GET", "/v1/scores/:owner/:target"},
		{"GET", "/v1/stats"},
	}

	routes := router.Routes()
	for _, want := range expected {
		found := false
		for _, r := range routes {
			if r.Method == want.method && r.Path == want.path {
				found = true
				break
			}
		}
		assert.True(t, found, "route %s %s not registered", want.method, want.path)
	}
}

func TestHealthCheck(t *testing.T) {
	_, router := newTestService(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

// =============================================================================
// Identity handlers
// =============================================================================

func TestCreateOwnIdentity_NeverEchoesInsertURI(t *testing.T) {
	_, router := newTestService(t)

	insertURI := testInsertURI("alice")
	w := doJSON(t, router, http.MethodPost, "/v1/identities/own", CreateOwnIdentityRequest{
		InsertURI: insertURI,
		Nickname:  "alice",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "insert_uri")
	assert.NotContains(t, w.Body.String(), insertURI)

	// The record carries the derived public request URI of the key pair,
	// not the insert URI it was created from.
	var created struct {
		ID         string `json:"id"`
		RequestURI string `json:"request_uri"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, testURI("USK", "alice"), created.RequestURI)

	// The listing and single-identity endpoints must not leak it either.
	for _, path := range []string{"/v1/identities", "/v1/identities/" + created.ID} {
		w = doJSON(t, router, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "insert_uri", "leak at %s", path)
		assert.NotContains(t, w.Body.String(), insertURI, "leak at %s", path)
	}
}

func TestCreateOwnIdentity_BadNickname(t *testing.T) {
	_, router := newTestService(t)

	w := doJSON(t, router, http.MethodPost, "/v1/identities/own", CreateOwnIdentityRequest{
		InsertURI: testURI("USK", "alice"),
		Nickname:  "bad/nick",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddIdentity_IdempotentAndRetrievable(t *testing.T) {
	_, router := newTestService(t)

	req := AddIdentityRequest{RequestURI: testURI("USK", "bob")}
	w := doJSON(t, router, http.MethodPost, "/v1/identities", req)
	require.Equal(t, http.StatusCreated, w.Code)

	var first struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	// Same URI again yields the same identity, not an error.
	w = doJSON(t, router, http.MethodPost, "/v1/identities", req)
	require.Equal(t, http.StatusCreated, w.Code)
	var second struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, first.ID, second.ID)

	w = doJSON(t, router, http.MethodGet, "/v1/identities/"+first.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetIdentity_NotFound(t *testing.T) {
	_, router := newTestService(t)

	w := doJSON(t, router, http.MethodGet, "/v1/identities/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteIdentity_RemovesTrustsAndScores(t *testing.T) {
	_, router := newTestService(t)

	owner := createOwn(t, router, "alice")
	w := doJSON(t, router, http.MethodPut, "/v1/trusts", SetTrustRequest{
		Truster:    owner,
		TrusteeURI: testURI("USK", "bob"),
		Value:      50,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var listed struct {
		Trusts []struct {
			Trustee string `json:"trustee_id"`
		} `json:"trusts"`
	}
	w = doJSON(t, router, http.MethodGet, "/v1/identities/"+owner+"/trusts/given", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Trusts, 1)
	trustee := listed.Trusts[0].Trustee

	w = doJSON(t, router, http.MethodDelete, "/v1/identities/"+trustee, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/trusts/"+owner+"/"+trustee, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, router, http.MethodGet, "/v1/scores/"+owner+"/"+trustee, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// Trust and score handlers
// =============================================================================

func TestSetTrust_DerivesScore(t *testing.T) {
	_, router := newTestService(t)

	owner := createOwn(t, router, "alice")
	w := doJSON(t, router, http.MethodPut, "/v1/trusts", SetTrustRequest{
		Truster:    owner,
		TrusteeURI: testURI("USK", "bob"),
		Value:      75,
		Comment:    "met at the conference",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var tree struct {
		Scores []struct {
			Target string `json:"target_id"`
			Value  int    `json:"value"`
			Rank   int    `json:"rank"`
		} `json:"scores"`
	}
	w = doJSON(t, router, http.MethodGet, "/v1/scores/"+owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tree))

	// Owner self-score plus the direct trustee.
	require.Len(t, tree.Scores, 2)
	for _, sc := range tree.Scores {
		if sc.Target == owner {
			assert.Equal(t, 100, sc.Value)
			assert.Equal(t, 0, sc.Rank)
		} else {
			assert.Equal(t, 75, sc.Value)
			assert.Equal(t, 1, sc.Rank)
		}
	}
}

func TestSetTrust_Validation(t *testing.T) {
	_, router := newTestService(t)
	owner := createOwn(t, router, "alice")

	// Value outside [-100, 100] fails request binding.
	w := doJSON(t, router, http.MethodPut, "/v1/trusts", SetTrustRequest{
		Truster:    owner,
		TrusteeURI: testURI("USK", "bob"),
		Value:      101,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Neither trustee nor trustee_uri.
	w = doJSON(t, router, http.MethodPut, "/v1/trusts", SetTrustRequest{
		Truster: owner,
		Value:   10,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Self-trust is rejected by the store.
	w = doJSON(t, router, http.MethodPut, "/v1/trusts", SetTrustRequest{
		Truster: owner,
		Trustee: owner,
		Value:   10,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveTrust_ThenInexistent(t *testing.T) {
	_, router := newTestService(t)

	owner := createOwn(t, router, "alice")
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPut, "/v1/trusts", SetTrustRequest{
		Truster:    owner,
		TrusteeURI: testURI("USK", "bob"),
		Value:      50,
	}).Code)

	var listed struct {
		Trusts []struct {
			Trustee string `json:"trustee_id"`
		} `json:"trusts"`
	}
	w := doJSON(t, router, http.MethodGet, "/v1/identities/"+owner+"/trusts/given", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Trusts, 1)
	trustee := listed.Trusts[0].Trustee

	w = doJSON(t, router, http.MethodDelete, "/v1/trusts/"+owner+"/"+trustee, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/trusts/"+owner+"/"+trustee, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReceivedTrusts_SelectionParam(t *testing.T) {
	_, router := newTestService(t)

	alice := createOwn(t, router, "alice")
	bob := createOwn(t, router, "bob")
	carol := createOwn(t, router, "carol")
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPut, "/v1/trusts",
		SetTrustRequest{Truster: alice, Trustee: carol, Value: 60}).Code)
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPut, "/v1/trusts",
		SetTrustRequest{Truster: bob, Trustee: carol, Value: -20}).Code)

	var listed struct {
		Trusts []json.RawMessage `json:"trusts"`
	}
	w := doJSON(t, router, http.MethodGet, "/v1/identities/"+carol+"/trusts/received?selection=positive", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Trusts, 1)

	w = doJSON(t, router, http.MethodGet, "/v1/identities/"+carol+"/trusts/received", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Trusts, 2)

	w = doJSON(t, router, http.MethodGet, "/v1/identities/"+carol+"/trusts/received?selection=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStats_CountsRecomputations(t *testing.T) {
	_, router := newTestService(t)

	owner := createOwn(t, router, "alice")
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPut, "/v1/trusts", SetTrustRequest{
		Truster:    owner,
		TrusteeURI: testURI("USK", "bob"),
		Value:      50,
	}).Code)

	var stats struct {
		IncrementalTrustRecomputations int `json:"incremental_trust_recomputations"`
	}
	w := doJSON(t, router, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.GreaterOrEqual(t, stats.IncrementalTrustRecomputations, 1)
}

// =============================================================================
// Protocol endpoint
// =============================================================================

func TestHandleFCP_Ping(t *testing.T) {
	_, router := newTestService(t)

	w := doJSON(t, router, http.MethodPost, "/fcp", fcp.NewMessage(fcp.MsgPing))
	require.Equal(t, http.StatusOK, w.Code)

	var reply fcp.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, fcp.MsgPong, reply.Name)
}

func TestHandleFCP_SubscribeNeedsWebsocket(t *testing.T) {
	_, router := newTestService(t)

	msg := fcp.NewMessage(fcp.MsgSubscribe)
	msg.Set("To", "identities")
	w := doJSON(t, router, http.MethodPost, "/fcp", msg)
	require.Equal(t, http.StatusOK, w.Code)

	var reply fcp.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, fcp.MsgError, reply.Name)
	assert.Equal(t, fcp.MsgSubscribe, reply.Get("OriginalMessage"))
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestService_RestartRestoresGraph(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := New(cfg, logger)
	require.NoError(t, err)
	router := gin.New()
	SetupRoutes(router, svc)

	owner := createOwn(t, router, "alice")
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPut, "/v1/trusts", SetTrustRequest{
		Truster:    owner,
		TrusteeURI: testURI("USK", "bob"),
		Value:      40,
	}).Code)
	require.NoError(t, svc.Close())

	svc, err = New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	router = gin.New()
	SetupRoutes(router, svc)

	w := doJSON(t, router, http.MethodGet, "/v1/identities/"+owner, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var tree struct {
		Scores []json.RawMessage `json:"scores"`
	}
	w = doJSON(t, router, http.MethodGet, "/v1/scores/"+owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tree))
	assert.Len(t, tree.Scores, 2)
}

func TestRunMaintenance_StopsOnCancel(t *testing.T) {
	svc, _ := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunMaintenance(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("maintenance loop did not stop on cancel")
	}
}

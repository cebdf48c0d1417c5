// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package wot

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianWoT/services/wot/fcp"
	"github.com/AleutianAI/AleutianWoT/services/wot/graph"
)

// abortWith writes the standard error envelope for a failed core call.
func abortWith(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func publicIdentities(identities []*graph.Identity) []*graph.Identity {
	out := make([]*graph.Identity, len(identities))
	for i, identity := range identities {
		out[i] = identity.Public()
	}
	return out
}

// HealthCheck reports daemon liveness and basic graph counts.
func HealthCheck(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "ok",
			"identities":     len(svc.store.AllIdentities()),
			"own_identities": len(svc.store.OwnIdentities()),
			"subscriptions":  svc.subs.Active(),
		})
	}
}

// =============================================================================
// Identities
// =============================================================================

// ListIdentities returns all known identities.
func ListIdentities(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"identities": publicIdentities(svc.store.AllIdentities())})
	}
}

// GetIdentity returns one identity by ID.
func GetIdentity(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := svc.store.GetByID(c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, identity.Public())
	}
}

// AddIdentityRequest is the body of POST /v1/identities.
type AddIdentityRequest struct {
	RequestURI string `json:"request_uri" binding:"required"`
}

// AddIdentity registers a remote identity by its request URI. Idempotent.
func AddIdentity(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddIdentityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		identity, err := svc.store.Add(req.RequestURI)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusCreated, identity.Public())
	}
}

// CreateOwnIdentityRequest is the body of POST /v1/identities/own.
type CreateOwnIdentityRequest struct {
	InsertURI          string `json:"insert_uri" binding:"required"`
	Nickname           string `json:"nickname" binding:"required"`
	PublishesTrustList bool   `json:"publishes_trust_list"`
	Context            string `json:"context"`
}

// CreateOwnIdentity creates or restores an own identity. The insert URI
// is accepted in the request and never echoed back.
func CreateOwnIdentity(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOwnIdentityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		identity, err := svc.store.CreateOwnIdentity(req.InsertURI, req.Nickname,
			req.PublishesTrustList, req.Context)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusCreated, identity.Public())
	}
}

// DeleteIdentity removes an identity and everything that references it.
func DeleteIdentity(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.store.Delete(c.Param("id")); err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
	}
}

// =============================================================================
// Trusts
// =============================================================================

// SetTrustRequest is the body of PUT /v1/trusts. Exactly one of Trustee
// (a known ID) or TrusteeURI (creates a stub) must be set.
type SetTrustRequest struct {
	Truster    string `json:"truster" binding:"required"`
	Trustee    string `json:"trustee"`
	TrusteeURI string `json:"trustee_uri"`
	Value      int    `json:"value" binding:"min=-100,max=100"`
	Comment    string `json:"comment"`
}

// SetTrust creates or updates a trust edge and re-derives the affected
// score trees before replying.
func SetTrust(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetTrustRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		var err error
		switch {
		case req.TrusteeURI != "":
			err = svc.store.SetTrustFromURI(req.Truster, req.TrusteeURI, req.Value, req.Comment)
		case req.Trustee != "":
			err = svc.store.SetTrust(req.Truster, req.Trustee, req.Value, req.Comment)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "trustee or trustee_uri is required"})
			return
		}
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "trust set"})
	}
}

// GetTrust returns one trust edge.
func GetTrust(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		trust, err := svc.store.GetTrust(c.Param("truster"), c.Param("trustee"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, trust)
	}
}

// RemoveTrust deletes a trust edge.
func RemoveTrust(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.store.RemoveTrust(c.Param("truster"), c.Param("trustee")); err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "trust removed"})
	}
}

// trustSelection parses the ?selection= query parameter.
func trustSelection(c *gin.Context) (graph.TrustSelection, bool) {
	switch c.DefaultQuery("selection", "all") {
	case "all":
		return graph.SelectAll, true
	case "positive":
		return graph.SelectPositive, true
	case "negative":
		return graph.SelectNegative, true
	case "zero":
		return graph.SelectZero, true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "selection must be all, positive, negative, or zero"})
		return graph.SelectAll, false
	}
}

// GivenTrusts lists the edges an identity has assigned.
func GivenTrusts(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := svc.store.GetByID(c.Param("id")); err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"trusts": svc.store.GivenTrusts(c.Param("id"))})
	}
}

// ReceivedTrusts lists the edges pointing at an identity, optionally
// filtered by sign.
func ReceivedTrusts(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := svc.store.GetByID(c.Param("id")); err != nil {
			abortWith(c, err)
			return
		}
		sel, ok := trustSelection(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"trusts": svc.store.ReceivedTrusts(c.Param("id"), sel)})
	}
}

// =============================================================================
// Scores
// =============================================================================

// GetScore returns one score row from an own identity's tree.
func GetScore(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		score, err := svc.store.GetScore(c.Param("owner"), c.Param("target"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, score)
	}
}

// TreeScores lists an own identity's whole score tree, optionally
// filtered by value sign.
func TreeScores(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sel, ok := trustSelection(c)
		if !ok {
			return
		}
		scores, err := svc.store.TreeScores(c.Param("owner"), sel)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"scores": scores})
	}
}

// =============================================================================
// Stats and protocol
// =============================================================================

// Stats reports the recomputation counters.
func Stats(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.store.Stats())
	}
}

// HandleFCP dispatches one keyed-field protocol message carried in an
// HTTP POST body. Subscription messages are rejected here; they need the
// websocket endpoint.
func HandleFCP(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg fcp.Message
		if err := c.ShouldBindJSON(&msg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		c.JSON(http.StatusOK, svc.dispatcher.Handle(&msg))
	}
}

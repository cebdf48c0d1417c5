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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianWoT/services/wot/fcp"
)

// SetupRoutes registers all HTTP and websocket endpoints on the router.
func SetupRoutes(router *gin.Engine, svc *Service) {
	router.GET("/health", HealthCheck(svc))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Keyed-field protocol: one-shot dispatch over POST, full session
	// with subscriptions over the websocket.
	router.POST("/fcp", HandleFCP(svc))
	router.GET("/ws", fcp.HandleWebSocket(svc.Store(), svc.Subscriptions(), svc.logger))

	v1 := router.Group("/v1")
	{
		identities := v1.Group("/identities")
		{
			identities.GET("", ListIdentities(svc))
			identities.POST("", AddIdentity(svc))
			identities.POST("/own", CreateOwnIdentity(svc))
			identities.GET("/:id", GetIdentity(svc))
			identities.DELETE("/:id", DeleteIdentity(svc))
			identities.GET("/:id/trusts/given", GivenTrusts(svc))
			identities.GET("/:id/trusts/received", ReceivedTrusts(svc))
		}

		trusts := v1.Group("/trusts")
		{
			trusts.PUT("", SetTrust(svc))
			trusts.GET("/:truster/:trustee", GetTrust(svc))
			trusts.DELETE("/:truster/:trustee", RemoveTrust(svc))
		}

		scores := v1.Group("/scores")
		{
			scores.GET("/:owner", TreeScores(svc))
			scores.GET("/:owner/:target", GetScore(svc))
		}

		v1.GET("/stats", Stats(svc))
	}
}

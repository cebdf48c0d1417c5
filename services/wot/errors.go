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
	"errors"
	"net/http"

	"github.com/AleutianAI/AleutianWoT/services/wot/graph"
	"github.com/AleutianAI/AleutianWoT/services/wot/subscription"
)

// statusFor maps core errors onto HTTP status codes. Unknown errors are
// internal: validation failures are rejected before state changes, so
// anything unmapped is a daemon bug or storage fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrIdentityNotFound),
		errors.Is(err, graph.ErrNotTrusted),
		errors.Is(err, graph.ErrNotInTrustTree),
		errors.Is(err, subscription.ErrSubscriptionNotFound):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrInvalidNickname),
		errors.Is(err, graph.ErrTrustValueOutOfRange),
		errors.Is(err, graph.ErrCommentTooLong),
		errors.Is(err, graph.ErrSelfTrust),
		errors.Is(err, graph.ErrNotOwnIdentity):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrDuplicateIdentity):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

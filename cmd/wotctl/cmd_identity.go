// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func runIdentityList(cmd *cobra.Command, args []string) {
	printJSON(callAPI(http.MethodGet, "/v1/identities", nil))
}

func runIdentityShow(cmd *cobra.Command, args []string) {
	printJSON(callAPI(http.MethodGet, "/v1/identities/"+args[0], nil))
}

func runIdentityAdd(cmd *cobra.Command, args []string) {
	printJSON(callAPI(http.MethodPost, "/v1/identities", map[string]any{
		"request_uri": args[0],
	}))
}

func runIdentityCreate(cmd *cobra.Command, args []string) {
	printJSON(callAPI(http.MethodPost, "/v1/identities/own", map[string]any{
		"insert_uri":           insertURI,
		"nickname":             nickname,
		"publishes_trust_list": publishesTrustList,
		"context":              contextName,
	}))
}

func runIdentityDelete(cmd *cobra.Command, args []string) {
	callAPI(http.MethodDelete, "/v1/identities/"+args[0], nil)
	fmt.Printf("Deleted identity %s\n", args[0])
}

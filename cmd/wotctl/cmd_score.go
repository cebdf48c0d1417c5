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
	"net/http"

	"github.com/spf13/cobra"
)

func runScoreShow(cmd *cobra.Command, args []string) {
	printJSON(callAPI(http.MethodGet, "/v1/scores/"+args[0]+"/"+args[1], nil))
}

func runScoreTree(cmd *cobra.Command, args []string) {
	printJSON(callAPI(http.MethodGet, "/v1/scores/"+args[0]+"?selection="+selection, nil))
}

func runHealth(cmd *cobra.Command, args []string) {
	printJSON(callAPI(http.MethodGet, "/health", nil))
}

func runStats(cmd *cobra.Command, args []string) {
	printJSON(callAPI(http.MethodGet, "/v1/stats", nil))
}

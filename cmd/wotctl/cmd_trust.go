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
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func runTrustSet(cmd *cobra.Command, args []string) {
	value, err := strconv.Atoi(args[2])
	if err != nil {
		log.Fatalf("Trust value must be an integer between -100 and 100: %v", err)
	}

	payload := map[string]any{
		"truster": args[0],
		"value":   value,
		"comment": trustComment,
	}
	// A trustee given as a key URI creates a stub identity on the fly.
	if strings.Contains(args[1], "@") {
		payload["trustee_uri"] = args[1]
	} else {
		payload["trustee"] = args[1]
	}

	callAPI(http.MethodPut, "/v1/trusts", payload)
	fmt.Printf("Trust set: %s -> %s = %d\n", args[0], args[1], value)
}

func runTrustShow(cmd *cobra.Command, args []string) {
	printJSON(callAPI(http.MethodGet, "/v1/trusts/"+args[0]+"/"+args[1], nil))
}

func runTrustRemove(cmd *cobra.Command, args []string) {
	callAPI(http.MethodDelete, "/v1/trusts/"+args[0]+"/"+args[1], nil)
	fmt.Printf("Trust removed: %s -> %s\n", args[0], args[1])
}

func runTrustGiven(cmd *cobra.Command, args []string) {
	printJSON(callAPI(http.MethodGet, "/v1/identities/"+args[0]+"/trusts/given", nil))
}

func runTrustReceived(cmd *cobra.Command, args []string) {
	printJSON(callAPI(http.MethodGet,
		"/v1/identities/"+args[0]+"/trusts/received?selection="+selection, nil))
}

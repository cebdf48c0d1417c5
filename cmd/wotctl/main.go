// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command wotctl is the command-line client for the web-of-trust daemon.
//
// It talks to a running wot daemon over its REST API:
//
//	wotctl health
//	wotctl identity create --insert-uri "USK@.../WebOfTrust/0" --nickname alice
//	wotctl identity list
//	wotctl trust set <truster-id> <trustee-id-or-uri> 75 --comment "met in person"
//	wotctl score tree <owner-id>
//	wotctl stats
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL string

	insertURI          string
	nickname           string
	publishesTrustList bool
	contextName        string
	trustComment       string
	selection          string

	rootCmd = &cobra.Command{
		Use:   "wotctl",
		Short: "A cli to manage a web-of-trust daemon",
		Long: `wotctl manages identities, trust edges, and score trees
on a running web-of-trust daemon over its REST API.`,
	}

	// --- Identities ---
	identityCmd = &cobra.Command{
		Use:     "identity",
		Short:   "Manage identities",
		Aliases: []string{"id"},
	}
	identityListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all known identities",
		Run:   runIdentityList, // Defined in cmd_identity.go
	}
	identityShowCmd = &cobra.Command{
		Use:   "show [identity-id]",
		Short: "Show one identity",
		Args:  cobra.ExactArgs(1),
		Run:   runIdentityShow, // Defined in cmd_identity.go
	}
	identityAddCmd = &cobra.Command{
		Use:   "add [request-uri]",
		Short: "Register a remote identity by its request URI",
		Args:  cobra.ExactArgs(1),
		Run:   runIdentityAdd, // Defined in cmd_identity.go
	}
	identityCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Create or restore an own identity",
		Run:   runIdentityCreate, // Defined in cmd_identity.go
	}
	identityDeleteCmd = &cobra.Command{
		Use:   "delete [identity-id]",
		Short: "DANGER: Delete an identity and every trust and score referencing it",
		Args:  cobra.ExactArgs(1),
		Run:   runIdentityDelete, // Defined in cmd_identity.go
	}

	// --- Trusts ---
	trustCmd = &cobra.Command{
		Use:   "trust",
		Short: "Manage trust edges",
	}
	trustSetCmd = &cobra.Command{
		Use:   "set [truster-id] [trustee-id-or-uri] [value]",
		Short: "Assign a trust value between -100 and 100",
		Args:  cobra.ExactArgs(3),
		Run:   runTrustSet, // Defined in cmd_trust.go
	}
	trustShowCmd = &cobra.Command{
		Use:   "show [truster-id] [trustee-id]",
		Short: "Show one trust edge",
		Args:  cobra.ExactArgs(2),
		Run:   runTrustShow, // Defined in cmd_trust.go
	}
	trustRemoveCmd = &cobra.Command{
		Use:   "remove [truster-id] [trustee-id]",
		Short: "Remove a trust edge",
		Args:  cobra.ExactArgs(2),
		Run:   runTrustRemove, // Defined in cmd_trust.go
	}
	trustGivenCmd = &cobra.Command{
		Use:   "given [identity-id]",
		Short: "List the trust edges an identity has assigned",
		Args:  cobra.ExactArgs(1),
		Run:   runTrustGiven, // Defined in cmd_trust.go
	}
	trustReceivedCmd = &cobra.Command{
		Use:   "received [identity-id]",
		Short: "List the trust edges pointing at an identity",
		Args:  cobra.ExactArgs(1),
		Run:   runTrustReceived, // Defined in cmd_trust.go
	}

	// --- Scores ---
	scoreCmd = &cobra.Command{
		Use:   "score",
		Short: "Inspect derived score trees",
	}
	scoreShowCmd = &cobra.Command{
		Use:   "show [owner-id] [target-id]",
		Short: "Show one score row from an owner's tree",
		Args:  cobra.ExactArgs(2),
		Run:   runScoreShow, // Defined in cmd_score.go
	}
	scoreTreeCmd = &cobra.Command{
		Use:   "tree [owner-id]",
		Short: "List an owner's whole score tree",
		Args:  cobra.ExactArgs(1),
		Run:   runScoreTree, // Defined in cmd_score.go
	}

	// --- Utilities ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check daemon liveness",
		Run:   runHealth, // Defined in cmd_score.go
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show graph and recomputation statistics",
		Run:   runStats, // Defined in cmd_score.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		"http://localhost:8889", "Base URL of the wot daemon")

	identityCreateCmd.Flags().StringVar(&insertURI, "insert-uri", "",
		"Insert URI holding the identity's private key (required)")
	identityCreateCmd.Flags().StringVar(&nickname, "nickname", "",
		"Nickname for the new identity (required)")
	identityCreateCmd.Flags().BoolVar(&publishesTrustList, "publish-trust-list", true,
		"Whether the identity publishes its trust list")
	identityCreateCmd.Flags().StringVar(&contextName, "context", "",
		"Initial context, e.g. Introduction")
	identityCreateCmd.MarkFlagRequired("insert-uri")
	identityCreateCmd.MarkFlagRequired("nickname")

	trustSetCmd.Flags().StringVar(&trustComment, "comment", "",
		"Comment explaining the trust value")
	trustReceivedCmd.Flags().StringVar(&selection, "selection", "all",
		"Filter by sign: all, positive, negative, or zero")
	scoreTreeCmd.Flags().StringVar(&selection, "selection", "all",
		"Filter by sign: all, positive, negative, or zero")

	identityCmd.AddCommand(identityListCmd)
	identityCmd.AddCommand(identityShowCmd)
	identityCmd.AddCommand(identityAddCmd)
	identityCmd.AddCommand(identityCreateCmd)
	identityCmd.AddCommand(identityDeleteCmd)
	rootCmd.AddCommand(identityCmd)

	trustCmd.AddCommand(trustSetCmd)
	trustCmd.AddCommand(trustShowCmd)
	trustCmd.AddCommand(trustRemoveCmd)
	trustCmd.AddCommand(trustGivenCmd)
	trustCmd.AddCommand(trustReceivedCmd)
	rootCmd.AddCommand(trustCmd)

	scoreCmd.AddCommand(scoreShowCmd)
	scoreCmd.AddCommand(scoreTreeCmd)
	rootCmd.AddCommand(scoreCmd)

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statsCmd)
}

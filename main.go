// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("🏋️ fitsync - Fitness Coaching Sync Backend")
	fmt.Println("==========================================")
	fmt.Println()
	fmt.Println("fitsync reconciles batched, offline-first client mutations against")
	fmt.Println("the server store with optimistic version-based conflict detection,")
	fmt.Println("per-tenant isolation, and a best-effort change log.")
	fmt.Println()

	fmt.Println("📚 Available Examples:")
	fmt.Println()
	fmt.Println("1. 🌐 HTTP Server Example (examples/nethttp_server/)")
	fmt.Println("   A complete sync server using Go's net/http package")
	fmt.Println("   Features: JWT auth, tenant memberships, Postgres or SQLite storage")
	fmt.Println("   Run: cd examples/nethttp_server && go run .")
	fmt.Println()

	fmt.Println("Client usage: import the fitsyncclient package to push batches")
	fmt.Println("and page through the change log from Go programs.")
	fmt.Println()
}

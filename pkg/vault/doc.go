// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package vault routes reads and writes for a manga image store across many
// cloud storage accounts ("remotes"), grouped so that per-account quota
// ceilings can be bypassed by spilling new writes into the next group.
//
// A Router (see router.go) holds the ordered groups. Each group's remotes
// are reachable two ways: through a local HTTP sidecar daemon (fast path,
// see daemon.go and httppool.go) or through a direct CLI invocation of the
// configured sync tool (fallback path, see remoteclient.go). Health and
// quota state lives in health.go; which group new writes land in is
// decided by grouppolicy.go.
//
// Reads flow through read.go, writes through ingest.go. Progress for
// in-flight ingest jobs is tracked in progress.go.
package vault

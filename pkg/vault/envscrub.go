// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"os"
	"strings"
)

// reservedEnvPrefix is the environment-variable prefix the sync tool
// reserves for its own configuration. A stray value here (a malformed
// numeric timeout, say) can silently override an explicit CLI flag, so it
// is stripped from every subprocess environment before exec.
const reservedEnvPrefix = "RCLONE_"

// scrubbedEnv returns a copy of the current process environment with every
// variable whose name starts with reservedEnvPrefix removed. This is the
// single place subprocess environments are built; every C2/C3 exec must
// route through it rather than passing os.Environ() directly.
func scrubbedEnv() []string {
	src := os.Environ()
	out := make([]string, 0, len(src))
	for _, kv := range src {
		name := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			name = kv[:i]
		}
		if strings.HasPrefix(name, reservedEnvPrefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"strings"
	"testing"
)

func TestScrubbedEnvPurity(t *testing.T) {
	t.Setenv("RCLONE_CONFIG", "/tmp/bogus.conf")
	t.Setenv("RCLONE_TIMEOUT", "not-a-duration")
	t.Setenv("PATH", "/usr/bin")

	env := scrubbedEnv()
	for _, kv := range env {
		if strings.HasPrefix(kv, reservedEnvPrefix) {
			t.Errorf("scrubbed env still contains reserved var: %s", kv)
		}
	}

	found := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			found = true
		}
	}
	if !found {
		t.Errorf("scrubbed env dropped a non-reserved var (PATH)")
	}
}

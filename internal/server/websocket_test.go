// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"testing"
	"time"

	"github.com/mangavault/mangavault/pkg/vault"
)

func TestWSHubBroadcast(t *testing.T) {
	hub := NewWSHub()
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	hub.Broadcast("test", map[string]string{"key": "value"})
	hub.BroadcastJob(&vault.Job{ID: "test123", Status: vault.JobRunning})
	hub.BroadcastHealth([]vault.GroupSnapshot{{Group: 1}})
}

func TestWSHubClientCount(t *testing.T) {
	hub := NewWSHub()
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	if count := hub.ClientCount(); count != 0 {
		t.Errorf("ClientCount() = %d, want 0", count)
	}
}

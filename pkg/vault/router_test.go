// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"testing"
)

func testRouter(t *testing.T) *Router {
	t.Helper()
	configs := []GroupConfig{
		{N: 1, Primary: "r1", Backups: []string{"r2", "r3"}},
	}
	return NewRouter("rclone", configs, nil)
}

func TestRoundRobinFairness(t *testing.T) {
	r := testRouter(t)
	seen := make(map[string]int)
	for i := 0; i < 3; i++ {
		name, _, err := r.NextRemote(context.Background(), 1, RoundRobin)
		if err != nil {
			t.Fatalf("NextRemote: %v", err)
		}
		seen[name]++
	}
	for _, name := range []string{"r1", "r2", "r3"} {
		if seen[name] != 1 {
			t.Errorf("remote %s selected %d times, want 1", name, seen[name])
		}
	}
}

func TestNoHealthyRemotesWhenAllQuotaExceeded(t *testing.T) {
	r := testRouter(t)
	for _, name := range []string{"r1", "r2", "r3"} {
		s, _ := r.RemoteStatusOf(1, name)
		s.MarkFailure(true)
	}
	_, _, err := r.NextRemote(context.Background(), 1, RoundRobin)
	if _, ok := err.(*NoHealthyRemotesError); !ok {
		t.Fatalf("expected NoHealthyRemotesError, got %v", err)
	}
}

func TestMarkRemoteFailureQuotaMarksGroupFull(t *testing.T) {
	r := testRouter(t)
	r.MarkRemoteFailure(1, "r1", &QuotaExceededError{Remote: "r1"})
	if !r.IsFull(1) {
		t.Errorf("expected group 1 marked full after quota failure")
	}
}

func TestRecordUploadBytesMarksFullAtQuota(t *testing.T) {
	configs := []GroupConfig{{N: 1, Primary: "r1", QuotaBytes: 100}}
	r := NewRouter("rclone", configs, nil)
	r.RecordUploadBytes(1, 50)
	if r.IsFull(1) {
		t.Fatalf("should not be full yet")
	}
	r.RecordUploadBytes(1, 60)
	if !r.IsFull(1) {
		t.Errorf("expected full after exceeding quota")
	}
}

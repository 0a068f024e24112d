// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"path/filepath"
	"testing"
)

func TestActiveGroupPersistence(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "active_group.txt")

	configs := []GroupConfig{
		{N: 1, Primary: "r1"},
		{N: 2, Primary: "r2"},
	}
	router := NewRouter("rclone", configs, nil)

	p1, err := NewGroupPolicy(router, statePath, false)
	if err != nil {
		t.Fatalf("NewGroupPolicy: %v", err)
	}
	if err := p1.SetActive(2); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	router2 := NewRouter("rclone", configs, nil)
	p2, err := NewGroupPolicy(router2, statePath, false)
	if err != nil {
		t.Fatalf("NewGroupPolicy reload: %v", err)
	}
	if got := p2.GetActive(); got != 2 {
		t.Errorf("GetActive() after restart = %d, want 2", got)
	}
	if !router2.IsFull(1) {
		t.Errorf("expected group 1 marked full on restart with active=2")
	}
}

func TestSetActiveRejectsUnconfiguredGroup(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "active_group.txt")
	router := NewRouter("rclone", []GroupConfig{{N: 1, Primary: "r1"}}, nil)
	p, _ := NewGroupPolicy(router, statePath, false)
	if err := p.SetActive(5); err == nil {
		t.Errorf("expected error setting unconfigured group")
	}
}

func TestAutoSwitchAdvancesOnFullGroup(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "active_group.txt")
	router := NewRouter("rclone", []GroupConfig{
		{N: 1, Primary: "r1"},
		{N: 2, Primary: "r2"},
	}, nil)
	p, _ := NewGroupPolicy(router, statePath, true)

	if got := p.GetActive(); got != 1 {
		t.Fatalf("expected active=1 before any group is full, got %d", got)
	}
	router.MarkGroupFull(1, "test")
	if got := p.GetActive(); got != 2 {
		t.Errorf("expected active=2 once group 1 is full, got %d", got)
	}
}

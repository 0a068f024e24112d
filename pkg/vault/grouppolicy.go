// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// GroupPolicy is the single source of truth for which storage group new
// writes land in. It collapses what upstream kept as two parallel notions
// of "active upload group" into one service, backed by a small state file
// so a restart resumes at the same group.
type GroupPolicy struct {
	mu         sync.Mutex
	router     *Router
	statePath  string
	autoSwitch bool
	active     int
}

// NewGroupPolicy loads statePath (if present) and marks every group below
// the recorded one full, so Router.IsFull and this policy agree
// immediately after a restart.
func NewGroupPolicy(router *Router, statePath string, autoSwitch bool) (*GroupPolicy, error) {
	p := &GroupPolicy{router: router, statePath: statePath, autoSwitch: autoSwitch, active: 1}

	data, err := os.ReadFile(statePath)
	if err == nil {
		n, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if convErr == nil && n >= 1 {
			p.active = n
			for g := 1; g < n; g++ {
				router.MarkGroupFull(g, "restored from state file")
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read active group state: %w", err)
	}
	return p, nil
}

// GetActive returns the group new writes should land in: if auto-switch is
// enabled, the lowest configured group at or above the explicitly-set one
// that isn't full (the explicitly-set value if all of those are full);
// otherwise the explicitly-set value.
func (p *GroupPolicy) GetActive() int {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()

	if !p.autoSwitch {
		return active
	}
	for _, n := range p.router.Groups() {
		if n < active {
			continue
		}
		if !p.router.IsFull(n) {
			return n
		}
	}
	return active
}

// SetActive validates that group n is configured with at least one
// available remote, persists it to the state file, and updates the
// in-memory cursor atomically.
func (p *GroupPolicy) SetActive(n int) error {
	found := false
	for _, g := range p.router.Groups() {
		if g == n {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("group %d is not configured", n)
	}
	if !p.router.HasAvailableRemote(n) {
		return fmt.Errorf("group %d has no available remotes", n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.WriteFile(p.statePath, []byte(strconv.Itoa(n)), 0o644); err != nil {
		return fmt.Errorf("write active group state: %w", err)
	}
	p.active = n
	return nil
}

// WriteTarget is the one-shot answer ingest needs: which group to write
// to, and the remote names within it.
type WriteTarget struct {
	Group   int
	Primary string
	Backups []string
	Prefix  string
}

// NextWriteTarget resolves the currently active group into its primary
// and backup remote names plus the path prefix new rows should carry.
func (p *GroupPolicy) NextWriteTarget() (WriteTarget, error) {
	n := p.GetActive()
	g, ok := p.router.group(n)
	if !ok {
		return WriteTarget{}, fmt.Errorf("active group %d is not configured", n)
	}
	g.mu.Lock()
	names := append([]string(nil), g.remoteNames...)
	g.mu.Unlock()
	if len(names) == 0 {
		return WriteTarget{}, fmt.Errorf("group %d has no remotes", n)
	}
	prefix := ""
	if n > 1 {
		prefix = fmt.Sprintf("@%d/", n)
	}
	return WriteTarget{Group: n, Primary: names[0], Backups: names[1:], Prefix: prefix}, nil
}

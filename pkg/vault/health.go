// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"sync"
	"time"
)

const (
	unhealthyStreakThreshold = 5
	quotaResetWindow         = 24 * time.Hour
	autoRecoveryThreshold    = 10 * time.Minute
)

// RemoteStatus tracks per-remote request counters, health, and quota state.
// Every method is safe for concurrent use; a status is never held locked
// across I/O.
type RemoteStatus struct {
	mu sync.Mutex

	total      int64
	successful int64
	failed     int64

	errorStreak int
	healthy     bool
	lastError   time.Time

	quotaExceeded bool
	quotaResetAt  time.Time

	lastUsed time.Time
}

// NewRemoteStatus returns a status that starts out healthy.
func NewRemoteStatus() *RemoteStatus {
	return &RemoteStatus{healthy: true}
}

// MarkSuccess resets the error streak and records the access time.
func (s *RemoteStatus) MarkSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.successful++
	s.errorStreak = 0
	s.lastUsed = time.Now()
}

// MarkFailure records a failed request. isQuota marks the remote
// quota-exceeded for quotaResetWindow; five consecutive failures mark it
// unhealthy regardless of cause.
func (s *RemoteStatus) MarkFailure(isQuota bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.total++
	s.failed++
	s.errorStreak++
	s.lastError = now
	s.lastUsed = now
	if s.errorStreak >= unhealthyStreakThreshold {
		s.healthy = false
	}
	if isQuota {
		s.quotaExceeded = true
		s.quotaResetAt = now.Add(quotaResetWindow)
	}
}

// Available reports whether the remote may currently be selected: it must
// be healthy and either not quota-exceeded or past its reset time, in
// which case the flag is cleared as a side effect of the read.
func (s *RemoteStatus) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.healthy {
		return false
	}
	if s.quotaExceeded {
		if time.Now().Before(s.quotaResetAt) {
			return false
		}
		s.quotaExceeded = false
	}
	return true
}

// SuccessRate returns the percentage of successful requests, 0 when no
// requests have been made.
func (s *RemoteStatus) SuccessRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total == 0 {
		return 0
	}
	return float64(s.successful) / float64(s.total) * 100
}

// Total returns the total request count, used by the least-used strategy.
func (s *RemoteStatus) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Recover forces the remote back to healthy regardless of streak, used by
// explicit admin reset and by the background auto-recovery sweep.
func (s *RemoteStatus) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = true
	s.errorStreak = 0
}

// NeedsRecovery reports whether this remote is unhealthy with its last
// error older than the recovery threshold.
func (s *RemoteStatus) NeedsRecovery() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.healthy && time.Since(s.lastError) >= autoRecoveryThreshold
}

// Snapshot is a point-in-time, lock-free copy of a RemoteStatus for
// reporting (GET /health, metrics scrape).
type Snapshot struct {
	Total         int64     `json:"total"`
	Successful    int64     `json:"successful"`
	Failed        int64     `json:"failed"`
	SuccessRate   float64   `json:"success_rate"`
	Healthy       bool      `json:"healthy"`
	QuotaExceeded bool      `json:"quota_exceeded"`
	LastUsed      time.Time `json:"last_used,omitempty"`
}

// Snapshot returns a consistent copy of the status fields.
func (s *RemoteStatus) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	rate := 0.0
	if s.total > 0 {
		rate = float64(s.successful) / float64(s.total) * 100
	}
	return Snapshot{
		Total:         s.total,
		Successful:    s.successful,
		Failed:        s.failed,
		SuccessRate:   rate,
		Healthy:       s.healthy,
		QuotaExceeded: s.quotaExceeded,
		LastUsed:      s.lastUsed,
	}
}

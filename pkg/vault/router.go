// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Strategy selects how NextRemote picks among a group's available remotes.
type Strategy string

const (
	RoundRobin Strategy = "round_robin"
	Random     Strategy = "random"
	Weighted   Strategy = "weighted"
	LeastUsed  Strategy = "least_used"
)

const daemonCacheTTL = 30 * time.Second

// GroupConfig describes one configured storage group at startup.
type GroupConfig struct {
	N          int
	Primary    string
	Backups    []string
	QuotaBytes int64 // 0 = unbounded
}

type group struct {
	mu sync.Mutex

	n           int
	remoteNames []string
	clients     map[string]*RemoteClient
	status      map[string]*RemoteStatus

	remoteCursor int
	daemonCursor int

	daemonCache   []string
	daemonCacheAt time.Time

	quotaBytes    int64
	uploadedBytes int64
	isFull        bool
	fullSince     time.Time
}

// daemonURLProvider is the subset of DaemonSupervisor the router needs;
// narrowing to an interface lets tests substitute a stub.
type daemonURLProvider interface {
	URLOf(remote string) (string, bool)
}

// Router holds every configured storage group and exposes the selection
// primitives C9 (ingest) and C8 (read) build on.
type Router struct {
	exe        string
	supervisor daemonURLProvider
	maxRetries int

	mu     sync.RWMutex
	groups map[int]*group
	order  []int
}

// NewRouter constructs a router from the configured groups. exe is the
// sync-tool binary used to build each group's RemoteClient set.
func NewRouter(exe string, configs []GroupConfig, supervisor daemonURLProvider) *Router {
	r := &Router{
		exe:        exe,
		supervisor: supervisor,
		maxRetries: 3,
		groups:     make(map[int]*group),
	}
	for _, c := range configs {
		g := &group{
			n:           c.N,
			remoteNames: append([]string{c.Primary}, c.Backups...),
			clients:     make(map[string]*RemoteClient),
			status:      make(map[string]*RemoteStatus),
			quotaBytes:  c.QuotaBytes,
		}
		for _, name := range g.remoteNames {
			g.clients[name] = NewRemoteClient(exe, name)
			g.status[name] = NewRemoteStatus()
		}
		r.groups[c.N] = g
		r.order = append(r.order, c.N)
	}
	sort.Ints(r.order)
	return r
}

func (r *Router) group(n int) (*group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[n]
	return g, ok
}

// Groups returns the configured group numbers in ascending order.
func (r *Router) Groups() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, len(r.order))
	copy(out, r.order)
	return out
}

// NextRemote returns an available remote in group n chosen by strategy. If
// none are available it runs auto-recovery and retries once; failing that
// it returns NoHealthyRemotesError.
func (r *Router) NextRemote(ctx context.Context, n int, strategy Strategy) (string, *RemoteClient, error) {
	g, ok := r.group(n)
	if !ok {
		return "", nil, &NoHealthyRemotesError{Group: n}
	}

	name, ok := g.pickAvailable(strategy)
	if ok {
		return name, g.clients[name], nil
	}

	g.autoRecover()
	name, ok = g.pickAvailable(strategy)
	if !ok {
		return "", nil, &NoHealthyRemotesError{Group: n}
	}
	return name, g.clients[name], nil
}

func (g *group) availableNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.remoteNames))
	for _, name := range g.remoteNames {
		if g.status[name].Available() {
			out = append(out, name)
		}
	}
	return out
}

func (g *group) pickAvailable(strategy Strategy) (string, bool) {
	avail := g.availableNames()
	if len(avail) == 0 {
		return "", false
	}

	switch strategy {
	case Random:
		return avail[rand.Intn(len(avail))], true
	case Weighted:
		return g.pickWeighted(avail), true
	case LeastUsed:
		return g.pickLeastUsed(avail), true
	default: // RoundRobin
		g.mu.Lock()
		idx := g.remoteCursor % len(avail)
		g.remoteCursor++
		g.mu.Unlock()
		return avail[idx], true
	}
}

func (g *group) pickWeighted(avail []string) string {
	weights := make([]float64, len(avail))
	var total float64
	for i, name := range avail {
		w := g.status[name].SuccessRate()
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return avail[rand.Intn(len(avail))]
	}
	r := rand.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return avail[i]
		}
	}
	return avail[len(avail)-1]
}

func (g *group) pickLeastUsed(avail []string) string {
	best := avail[0]
	bestTotal := g.status[best].Total()
	for _, name := range avail[1:] {
		t := g.status[name].Total()
		if t < bestTotal {
			best = name
			bestTotal = t
		}
	}
	return best
}

func (g *group) autoRecover() {
	g.mu.Lock()
	names := append([]string(nil), g.remoteNames...)
	g.mu.Unlock()
	for _, name := range names {
		if g.status[name].NeedsRecovery() {
			g.status[name].Recover()
		}
	}
}

// ActiveDaemonURLs returns the live daemon URLs for group n, in configured
// order, caching the result for daemonCacheTTL.
func (r *Router) ActiveDaemonURLs(n int) []string {
	g, ok := r.group(n)
	if !ok {
		return nil
	}
	g.mu.Lock()
	if time.Since(g.daemonCacheAt) < daemonCacheTTL {
		cached := append([]string(nil), g.daemonCache...)
		g.mu.Unlock()
		return cached
	}
	names := append([]string(nil), g.remoteNames...)
	g.mu.Unlock()

	urls := make([]string, 0, len(names))
	if r.supervisor != nil {
		for _, name := range names {
			if url, ok := r.supervisor.URLOf(name); ok {
				urls = append(urls, url)
			}
		}
	}

	g.mu.Lock()
	g.daemonCache = urls
	g.daemonCacheAt = time.Now()
	g.mu.Unlock()
	return urls
}

// NextDaemonURL round-robins over ActiveDaemonURLs(n).
func (r *Router) NextDaemonURL(n int) (string, bool) {
	g, ok := r.group(n)
	if !ok {
		return "", false
	}
	urls := r.ActiveDaemonURLs(n)
	if len(urls) == 0 {
		return "", false
	}
	g.mu.Lock()
	idx := g.daemonCursor % len(urls)
	g.daemonCursor++
	g.mu.Unlock()
	return urls[idx], true
}

// RecordUploadBytes adds n bytes to the group's usage counter and marks it
// full if a quota ceiling is configured and reached.
func (r *Router) RecordUploadBytes(groupN int, n int64) {
	g, ok := r.group(groupN)
	if !ok {
		return
	}
	g.mu.Lock()
	g.uploadedBytes += n
	full := g.quotaBytes > 0 && g.uploadedBytes >= g.quotaBytes && !g.isFull
	if full {
		g.isFull = true
		g.fullSince = time.Now()
	}
	g.mu.Unlock()
}

// MarkGroupFull forces a group full, idempotently. reason is informational
// only (logged by the caller).
func (r *Router) MarkGroupFull(groupN int, reason string) {
	g, ok := r.group(groupN)
	if !ok {
		return
	}
	g.mu.Lock()
	if !g.isFull {
		g.isFull = true
		g.fullSince = time.Now()
	}
	g.mu.Unlock()
}

// IsFull reports whether group n has been marked full.
func (r *Router) IsFull(groupN int) bool {
	g, ok := r.group(groupN)
	if !ok {
		return true // an unconfigured group can never take writes
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isFull
}

// HasAvailableRemote reports whether group n has at least one remote that
// is currently healthy and not quota-exhausted.
func (r *Router) HasAvailableRemote(groupN int) bool {
	g, ok := r.group(groupN)
	if !ok {
		return false
	}
	return len(g.availableNames()) > 0
}

// Reset zeroes a group's usage counter and clears its full flag.
func (r *Router) Reset(groupN int) {
	g, ok := r.group(groupN)
	if !ok {
		return
	}
	g.mu.Lock()
	g.uploadedBytes = 0
	g.isFull = false
	g.fullSince = time.Time{}
	g.mu.Unlock()
}

// RemoteCount returns how many remotes are configured in group n.
func (r *Router) RemoteCount(n int) int {
	g, ok := r.group(n)
	if !ok {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.remoteNames)
}

// GroupForPath delegates to the path codec.
func (r *Router) GroupForPath(path string) int { return GroupOf(path) }

// MarkRemoteFailure records a failed request against remote in group n and
// classifies quota from err.
func (r *Router) MarkRemoteFailure(groupN int, remote string, err error) {
	g, ok := r.group(groupN)
	if !ok {
		return
	}
	status, ok := g.status[remote]
	if !ok {
		return
	}
	_, isQuota := err.(*QuotaExceededError)
	status.MarkFailure(isQuota)
	if isQuota {
		r.MarkGroupFull(groupN, "quota exceeded on "+remote)
	}
}

// MarkRemoteSuccess records a successful request against remote in group n.
func (r *Router) MarkRemoteSuccess(groupN int, remote string) {
	g, ok := r.group(groupN)
	if !ok {
		return
	}
	if status, ok := g.status[remote]; ok {
		status.MarkSuccess()
	}
}

// RemoteStatusOf exposes a remote's status for the thumbnail/ingest
// pipeline to report failures against, without re-resolving the group.
func (r *Router) RemoteStatusOf(groupN int, remote string) (*RemoteStatus, bool) {
	g, ok := r.group(groupN)
	if !ok {
		return nil, false
	}
	s, ok := g.status[remote]
	return s, ok
}

// ClientOf returns the RemoteClient for remote within group n.
func (r *Router) ClientOf(groupN int, remote string) (*RemoteClient, bool) {
	g, ok := r.group(groupN)
	if !ok {
		return nil, false
	}
	c, ok := g.clients[remote]
	return c, ok
}

// GroupSnapshot is the per-group view returned by GetHealth.
type GroupSnapshot struct {
	Group         int                      `json:"group"`
	UploadedBytes int64                    `json:"uploaded_bytes"`
	QuotaBytes    int64                    `json:"quota_bytes"`
	IsFull        bool                     `json:"is_full"`
	Remotes       map[string]Snapshot      `json:"remotes"`
	DaemonURLs    []string                 `json:"daemon_urls"`
}

// GetHealth returns a composite snapshot. When groupN is nil it returns
// every configured group in order; otherwise just the one group.
func (r *Router) GetHealth(groupN *int) []GroupSnapshot {
	nums := r.Groups()
	if groupN != nil {
		nums = []int{*groupN}
	}
	out := make([]GroupSnapshot, 0, len(nums))
	for _, n := range nums {
		g, ok := r.group(n)
		if !ok {
			continue
		}
		g.mu.Lock()
		snap := GroupSnapshot{
			Group:         n,
			UploadedBytes: g.uploadedBytes,
			QuotaBytes:    g.quotaBytes,
			IsFull:        g.isFull,
			Remotes:       make(map[string]Snapshot, len(g.remoteNames)),
		}
		names := append([]string(nil), g.remoteNames...)
		g.mu.Unlock()
		for _, name := range names {
			snap.Remotes[name] = g.status[name].Snapshot()
		}
		snap.DaemonURLs = r.ActiveDaemonURLs(n)
		out = append(out, snap)
	}
	return out
}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"net/http"
	"sync"
	"time"
)

// ClientPool hands out one reusable keep-alive *http.Client per daemon base
// URL, tuned for many small concurrent image GETs rather than a handful of
// large transfers.
type ClientPool struct {
	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewClientPool returns an empty pool.
func NewClientPool() *ClientPool {
	return &ClientPool{clients: make(map[string]*http.Client)}
}

// Get returns the shared client for baseURL, constructing it on first use.
func (p *ClientPool) Get(baseURL string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[baseURL]; ok {
		return c
	}
	c := buildPooledClient()
	p.clients[baseURL] = c
	return c
}

func buildPooledClient() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   0, // per-request deadlines come from the caller's context
	}
}

// CloseAll evicts idle connections for every pooled client. Called during
// shutdown, after the daemon supervisor has already terminated its
// sidecars.
func (p *ClientPool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.CloseIdleConnections()
	}
	p.clients = make(map[string]*http.Client)
}

// Size reports how many distinct base URLs currently have a pooled client,
// exposed for metrics.
func (p *ClientPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

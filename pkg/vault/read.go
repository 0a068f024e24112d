// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ReadMeta describes how a Read call was served, for the caller to turn
// into response headers.
type ReadMeta struct {
	Group     int
	Mode      string // "stream" | "fallback"
	DaemonURL string
}

// ReadPipeline serves a stored path by streaming from a sidecar daemon
// when one is available, falling back to a blocking "cat" through the
// remote client otherwise.
type ReadPipeline struct {
	Router     *Router
	Pool       *ClientPool
	MaxRetries int
}

// NewReadPipeline returns a pipeline with the spec's default retry bound.
func NewReadPipeline(router *Router, pool *ClientPool) *ReadPipeline {
	return &ReadPipeline{Router: router, Pool: pool, MaxRetries: 3}
}

// Serve resolves storedPath to a group and relative path, then returns a
// reader over its bytes. The caller must Close the returned ReadCloser.
func (p *ReadPipeline) Serve(ctx context.Context, storedPath string) (io.ReadCloser, ReadMeta, error) {
	if err := validateStoredPath(storedPath); err != nil {
		return nil, ReadMeta{}, err
	}
	n := GroupOf(storedPath)
	rel := Clean(storedPath)

	if rc, meta, err := p.tryStream(ctx, n, rel); err == nil {
		return rc, meta, nil
	} else if err == ErrNotFound {
		return nil, ReadMeta{}, ErrNotFound
	}

	return p.fallback(ctx, n, rel)
}

func validateStoredPath(p string) error {
	rel := Clean(p)
	if rel == "" {
		return ErrInvalidPath
	}
	if strings.Contains(rel, "..") || strings.HasPrefix(rel, "/") {
		return ErrInvalidPath
	}
	return nil
}

// tryStream opens a streaming GET against the next daemon URL in group n.
// A 404 is returned verbatim as ErrNotFound (terminal, no fallback); any
// other failure returns a generic error so the caller falls back.
func (p *ReadPipeline) tryStream(ctx context.Context, n int, rel string) (io.ReadCloser, ReadMeta, error) {
	url, ok := p.Router.NextDaemonURL(n)
	if !ok {
		return nil, ReadMeta{}, ErrDaemonUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/"+strings.TrimPrefix(rel, "/"), nil)
	if err != nil {
		return nil, ReadMeta{}, err
	}

	client := p.Pool.Get(url)
	resp, err := client.Do(req)
	if err != nil {
		return nil, ReadMeta{}, err
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ReadMeta{}, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, ReadMeta{}, fmt.Errorf("daemon responded %s", resp.Status)
	}

	return resp.Body, ReadMeta{Group: n, Mode: "stream", DaemonURL: url}, nil
}

// fallback retries download_bytes across every available remote in group
// n, bounded by available_remotes x MaxRetries total attempts.
func (p *ReadPipeline) fallback(ctx context.Context, n int, rel string) (io.ReadCloser, ReadMeta, error) {
	var lastErr error
	attempts := 0
	maxAttempts := p.MaxRetries * p.Router.RemoteCount(n)
	if maxAttempts == 0 {
		maxAttempts = p.MaxRetries
	}

	for attempts < maxAttempts {
		attempts++
		name, client, err := p.Router.NextRemote(ctx, n, RoundRobin)
		if err != nil {
			if lastErr != nil {
				return nil, ReadMeta{}, lastErr
			}
			return nil, ReadMeta{}, err
		}

		data, err := client.DownloadBytes(ctx, rel)
		if err != nil {
			p.Router.MarkRemoteFailure(n, name, err)
			lastErr = err
			continue
		}
		p.Router.MarkRemoteSuccess(n, name)
		return io.NopCloser(bytes.NewReader(data)), ReadMeta{Group: n, Mode: "fallback"}, nil
	}

	if lastErr != nil {
		return nil, ReadMeta{}, lastErr
	}
	return nil, ReadMeta{}, &NoHealthyRemotesError{Group: n}
}

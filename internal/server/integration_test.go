// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/mangavault/mangavault/pkg/vault"
)

// stubDaemonProvider satisfies the unexported daemonURLProvider interface
// vault.Router consumes, without spawning a real sidecar process.
type stubDaemonProvider struct {
	urls map[string]string
}

func (s *stubDaemonProvider) URLOf(remote string) (string, bool) {
	u, ok := s.urls[remote]
	return u, ok
}

// buildScenarioServer wires a Server around a router built from groups and
// supervisor, with exe used for any fallback ("cat") invocations.
func buildScenarioServer(t *testing.T, exe string, groups []vault.GroupConfig, supervisor *stubDaemonProvider) *Server {
	t.Helper()
	ctx := context.Background()

	router := vault.NewRouter(exe, groups, supervisor)
	statePath := filepath.Join(t.TempDir(), "active_group")
	policy, err := vault.NewGroupPolicy(router, statePath, false)
	if err != nil {
		t.Fatalf("NewGroupPolicy() error = %v", err)
	}
	progress := vault.NewProgressStore(ctx)
	read := vault.NewReadPipeline(router, vault.NewClientPool())
	engine := &vault.Engine{
		Router: router, Policy: policy, Progress: progress,
		Catalog: vault.NewMemStore(), TempRoot: t.TempDir(),
	}
	log := vault.NewLogger(vault.LevelError)

	return New(DefaultConfig(), router, policy, read, engine, progress, log)
}

// writeFakeCatExe writes a tiny shell script standing in for the sync-tool
// binary's "cat" subcommand: it ignores its arguments and prints body.
func writeFakeCatExe(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-sync-tool")
	script := "#!/bin/sh\nprintf '%s' '" + body + "'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIntegrationProxyAlternatesDaemonsWithinGroup(t *testing.T) {
	ts1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("from-r1"))
	}))
	defer ts1.Close()
	ts2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("from-r2"))
	}))
	defer ts2.Close()

	srv := buildScenarioServer(t, "mangavault-test-sync-tool-does-not-exist",
		[]vault.GroupConfig{{N: 1, Primary: "r1", Backups: []string{"r2"}}},
		&stubDaemonProvider{urls: map[string]string{"r1": ts1.URL, "r2": ts2.URL}})

	get := func() (*httptest.ResponseRecorder, string) {
		req := httptest.NewRequest(http.MethodGet, "/proxy/a/b/c.jpg", nil)
		req.SetPathValue("path", "a/b/c.jpg")
		w := httptest.NewRecorder()
		srv.handleProxy(w, req)
		return w, w.Header().Get("X-Serve-Daemon")
	}

	w1, daemon1 := get()
	if w1.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200, body=%s", w1.Code, w1.Body.String())
	}
	if w1.Header().Get("X-Storage-Group") != "1" {
		t.Errorf("X-Storage-Group = %q, want 1", w1.Header().Get("X-Storage-Group"))
	}

	w2, daemon2 := get()
	if w2.Code != http.StatusOK {
		t.Fatalf("second request: status = %d, want 200, body=%s", w2.Code, w2.Body.String())
	}

	if daemon1 == "" || daemon2 == "" {
		t.Fatalf("expected both requests to report a daemon URL, got %q and %q", daemon1, daemon2)
	}
	if daemon1 == daemon2 {
		t.Errorf("expected successive requests to alternate daemons, both used %q", daemon1)
	}
}

func TestIntegrationProxyGroupPrefixStripsUpstreamPath(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/x/y.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("group-2-bytes"))
	}))
	defer ts.Close()

	srv := buildScenarioServer(t, "mangavault-test-sync-tool-does-not-exist",
		[]vault.GroupConfig{{N: 2, Primary: "r1"}},
		&stubDaemonProvider{urls: map[string]string{"r1": ts.URL}})

	req := httptest.NewRequest(http.MethodGet, "/proxy/@2/x/y.jpg", nil)
	req.SetPathValue("path", "@2/x/y.jpg")
	w := httptest.NewRecorder()
	srv.handleProxy(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Storage-Group") != "2" {
		t.Errorf("X-Storage-Group = %q, want 2", w.Header().Get("X-Storage-Group"))
	}
	if w.Body.String() != "group-2-bytes" {
		t.Errorf("body = %q, want group-2-bytes", w.Body.String())
	}
}

func TestIntegrationProxyLegacyBarePrefixMeansGroup2(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/x/y.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("legacy-bytes"))
	}))
	defer ts.Close()

	srv := buildScenarioServer(t, "mangavault-test-sync-tool-does-not-exist",
		[]vault.GroupConfig{{N: 2, Primary: "r1"}},
		&stubDaemonProvider{urls: map[string]string{"r1": ts.URL}})

	req := httptest.NewRequest(http.MethodGet, "/proxy/@x/y.jpg", nil)
	req.SetPathValue("path", "@x/y.jpg")
	w := httptest.NewRecorder()
	srv.handleProxy(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Storage-Group") != "2" {
		t.Errorf("X-Storage-Group = %q, want 2 for the legacy bare @ prefix", w.Header().Get("X-Storage-Group"))
	}
}

func TestIntegrationProxyDaemonCrashFallsBackToCat(t *testing.T) {
	exe := writeFakeCatExe(t, "fallback-bytes")

	srv := buildScenarioServer(t, exe,
		[]vault.GroupConfig{{N: 1, Primary: "r1"}},
		&stubDaemonProvider{urls: map[string]string{}})

	req := httptest.NewRequest(http.MethodGet, "/proxy/a/b/c.jpg", nil)
	req.SetPathValue("path", "a/b/c.jpg")
	w := httptest.NewRecorder()
	srv.handleProxy(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Serve-Mode") != "fallback" {
		t.Errorf("X-Serve-Mode = %q, want fallback", w.Header().Get("X-Serve-Mode"))
	}
	if w.Body.String() != "fallback-bytes" {
		t.Errorf("body = %q, want fallback-bytes", w.Body.String())
	}
}

func getFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestIntegrationServeAndHealth(t *testing.T) {
	srv := newTestServer(t)
	srv.config.Port = getFreePort(t)
	srv.config.Addr = "127.0.0.1"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	baseURL := "http://127.0.0.1:" + strconv.Itoa(srv.config.Port)
	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get(baseURL + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe returned error after shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down within 2s of context cancel")
	}
}

func TestIntegrationProxyUnreachableRemoteIsBadGateway(t *testing.T) {
	srv := newTestServer(t)
	srv.config.Port = getFreePort(t)
	srv.config.Addr = "127.0.0.1"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.ListenAndServe(ctx)

	baseURL := "http://127.0.0.1:" + strconv.Itoa(srv.config.Port)
	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get(baseURL + "/proxy/manga/chapter-1/001.jpg")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /proxy: %v", err)
	}
	defer resp.Body.Close()
	// No daemon and no real sync-tool binary is available in this
	// process, so the read pipeline cannot actually reach a remote.
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 when no remote is reachable", resp.StatusCode)
	}
}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateStoredPath(t *testing.T) {
	if err := validateStoredPath("a/b/c.jpg"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := validateStoredPath("@2/a/../b.jpg"); err == nil {
		t.Errorf("expected error for path containing ..")
	}
}

func TestReadPipelineStreamsFromDaemon(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/x/y.jpg" {
			w.Write([]byte("image-bytes"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	router := NewRouter("rclone", []GroupConfig{{N: 2, Primary: "r1"}}, &stubSupervisor{urls: map[string]string{"r1": ts.URL}})
	pipeline := NewReadPipeline(router, NewClientPool())

	rc, meta, err := pipeline.Serve(context.Background(), "@2/x/y.jpg")
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "image-bytes" {
		t.Errorf("got body %q", data)
	}
	if meta.Mode != "stream" || meta.Group != 2 {
		t.Errorf("meta = %+v", meta)
	}
}

func TestReadPipelineNotFoundNoFallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	router := NewRouter("rclone", []GroupConfig{{N: 1, Primary: "r1"}}, &stubSupervisor{urls: map[string]string{"r1": ts.URL}})
	pipeline := NewReadPipeline(router, NewClientPool())

	_, _, err := pipeline.Serve(context.Background(), "missing.jpg")
	if err != ErrNotFound {
		t.Errorf("got err %v, want ErrNotFound", err)
	}
}

// stubSupervisor satisfies the subset of DaemonSupervisor behavior Router
// needs (URLOf), without spawning real processes.
type stubSupervisor struct {
	urls map[string]string
}

func (s *stubSupervisor) URLOf(remote string) (string, bool) {
	u, ok := s.urls[remote]
	return u, ok
}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mangavault/mangavault/pkg/vault"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	router := vault.NewRouter("mangavault-test-sync-tool-does-not-exist", []vault.GroupConfig{{N: 1, Primary: "remote1", Backups: []string{"remote2"}}}, nil)
	statePath := filepath.Join(t.TempDir(), "active_group")
	policy, err := vault.NewGroupPolicy(router, statePath, false)
	if err != nil {
		t.Fatalf("NewGroupPolicy() error = %v", err)
	}
	progress := vault.NewProgressStore(ctx)
	pool := vault.NewClientPool()
	read := vault.NewReadPipeline(router, pool)
	engine := &vault.Engine{
		Router: router, Policy: policy, Progress: progress,
		Catalog: vault.NewMemStore(), TempRoot: t.TempDir(),
	}
	log := vault.NewLogger(vault.LevelError)

	return New(DefaultConfig(), router, policy, read, engine, progress, log)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %v, want ok", resp["status"])
	}
	if resp["active_group"].(float64) != 1 {
		t.Errorf("active_group = %v, want 1", resp["active_group"])
	}
}

func TestHandleGroupsSwitch(t *testing.T) {
	srv := newTestServer(t)

	body := bytes.NewBufferString(`{"group": 1}`)
	req := httptest.NewRequest(http.MethodPost, "/groups/active", body)
	w := httptest.NewRecorder()
	srv.handleGroupsSwitch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/groups/active", bytes.NewBufferString(`{"group": 99}`))
	w = httptest.NewRecorder()
	srv.handleGroupsSwitch(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("switching to an unconfigured group: status = %d, want 400", w.Code)
	}
}

func buildEmptyZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHandleIngestStartRejectsMissingFields(t *testing.T) {
	srv := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("archive", "book.zip")
	part.Write(buildEmptyZip(t))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/ingest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.handleIngestStart(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing uploader/source_id, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleIngestStartAndStatus(t *testing.T) {
	srv := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("archive", "book.zip")
	part.Write(buildEmptyZip(t))
	mw.WriteField("uploader", "tester")
	mw.WriteField("source_id", "mysource")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/ingest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.handleIngestStart(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", w.Code, w.Body.String())
	}
	var job vault.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected a non-empty job id")
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/ingest/"+job.ID, nil)
	statusReq.SetPathValue("id", job.ID)
	statusW := httptest.NewRecorder()
	srv.handleIngestStatus(statusW, statusReq)
	if statusW.Code != http.StatusOK {
		t.Fatalf("status check: code = %d, want 200", statusW.Code)
	}
}

func TestHandleIngestStatusUnknownID(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ingest/doesnotexist", nil)
	req.SetPathValue("id", "doesnotexist")
	w := httptest.NewRecorder()
	srv.handleIngestStatus(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

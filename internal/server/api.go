// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/mangavault/mangavault/pkg/vault"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleProxy streams a stored path through the read pipeline, falling
// back to a downloaded blob when no sidecar daemon can stream it.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	storedPath := r.PathValue("path")
	if storedPath == "" {
		writeError(w, http.StatusBadRequest, "missing proxy path")
		return
	}

	rc, meta, err := s.read.Serve(r.Context(), storedPath)
	if err != nil {
		switch err {
		case vault.ErrInvalidPath:
			writeError(w, http.StatusBadRequest, err.Error())
		case vault.ErrNotFound:
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	defer rc.Close()

	w.Header().Set("Cache-Control", "public, max-age=604800, immutable")
	w.Header().Set("X-Storage-Group", strconv.Itoa(meta.Group))
	w.Header().Set("X-Serve-Mode", meta.Mode)
	if meta.DaemonURL != "" {
		w.Header().Set("X-Serve-Daemon", meta.DaemonURL)
	}
	w.Header().Set("Content-Type", contentTypeForPath(storedPath))

	io.CopyBuffer(w, rc, make([]byte, 64<<10))
}

func contentTypeForPath(p string) string {
	switch {
	case strings.HasSuffix(p, ".png"):
		return "image/png"
	case strings.HasSuffix(p, ".webp"):
		return "image/webp"
	case strings.HasSuffix(p, ".gif"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// handleHealth reports every configured group's upload/quota state and
// per-remote health, the same snapshot RouterCollector scrapes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"groups":       s.router.GetHealth(nil),
		"active_group": s.policy.GetActive(),
	})
}

func (s *Server) handleGroupsShow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active": s.policy.GetActive(),
		"groups": s.router.GetHealth(nil),
	})
}

func (s *Server) handleGroupsSwitch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Group int `json:"group"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.policy.SetActive(body.Group); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": body.Group})
}

var defaultChapterPattern = regexp.MustCompile(`(?i)^chapter[_\s]?(\d+(?:\.\d+)?)$`)

// handleIngestStart accepts a multipart upload ("archive" file field plus
// uploader/source_id/default_type/default_status fields), spawns a
// background ingest job, and returns its tracking id immediately.
func (s *Server) handleIngestStart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse multipart form: %v", err))
		return
	}

	file, header, err := r.FormFile("archive")
	if err != nil {
		writeError(w, http.StatusBadRequest, `missing "archive" file field`)
		return
	}
	defer file.Close()

	// The form file is backed by a request-scoped temp file that vanishes
	// once this handler returns, but ingest runs in a background
	// goroutine; read it fully into memory up front so the goroutine owns
	// an independent copy of the bytes.
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read upload: "+err.Error())
		return
	}

	uploader := r.FormValue("uploader")
	sourceID := r.FormValue("source_id")
	if uploader == "" || sourceID == "" {
		writeError(w, http.StatusBadRequest, "uploader and source_id are required")
		return
	}

	chapterRegex := defaultChapterPattern
	if raw := r.FormValue("chapter_regex"); raw != "" {
		compiled, err := regexp.Compile(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid chapter_regex: "+err.Error())
			return
		}
		chapterRegex = compiled
	}

	req := vault.IngestRequest{
		Uploader:      uploader,
		SourceID:      sourceID,
		BaseFolder:    sourceID,
		DefaultType:   r.FormValue("default_type"),
		DefaultStatus: r.FormValue("default_status"),
		ChapterRegex:  chapterRegex,
	}

	job, err := s.engine.Ingest(r.Context(), &sliceReaderAt{data}, int64(len(data)), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info("ingest job %s started for %q (%d bytes)", job.ID, header.Filename, len(data))
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := s.progress.GetJob(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job id")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleIngestResume(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	tok, ok := s.progress.GetToken(token)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown or expired resume token")
		return
	}

	req := vault.IngestRequest{
		Uploader:     tok.UploaderID,
		SourceID:     tok.BaseFolder,
		BaseFolder:   tok.BaseFolder,
		ChapterRegex: defaultChapterPattern,
	}
	job, err := s.engine.Resume(r.Context(), tok, req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// sliceReaderAt adapts an in-memory byte slice to io.ReaderAt so the
// ingest engine can treat an HTTP upload the same as any other archive
// source.
type sliceReaderAt struct{ data []byte }

func (s *sliceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path"
	"sort"
	"strings"
	"time"
)

var allowedImageExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
}

// RemoteClient is a thin wrapper over the sync tool's CLI for a single
// named remote. Every call scrubs the subprocess environment and supplies
// an explicit timeout with the tool's unit suffix.
type RemoteClient struct {
	// Exe is the sync tool binary, "rclone" by default.
	Exe string
	// Name is the configured remote name this client talks to.
	Name string
}

// NewRemoteClient returns a client for the named remote, defaulting Exe to
// "rclone" when empty.
func NewRemoteClient(exe, name string) *RemoteClient {
	if exe == "" {
		exe = "rclone"
	}
	return &RemoteClient{Exe: exe, Name: name}
}

// FileEntry is one row returned by ListFiles.
type FileEntry struct {
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
}

func validateRelPath(p string) error {
	if p == "" {
		return ErrInvalidPath
	}
	if strings.Contains(p, "..") || strings.Contains(p, "\\") || strings.HasPrefix(p, "/") {
		return ErrInvalidPath
	}
	return nil
}

func validateImagePath(p string) error {
	if err := validateRelPath(p); err != nil {
		return err
	}
	if len(p) < 3 {
		return ErrInvalidPath
	}
	ext := strings.ToLower(path.Ext(p))
	if !allowedImageExt[ext] {
		return ErrInvalidPath
	}
	return nil
}

// run executes the sync tool with args, a scrubbed environment, and a
// process deadline of timeout+5s. It returns stdout, stderr text, and a
// classified error.
func (c *RemoteClient) run(ctx context.Context, timeout time.Duration, args ...string) ([]byte, string, error) {
	procCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(procCtx, c.Exe, args...)
	cmd.Env = scrubbedEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.String(), nil
	}

	stderrText := stderr.String()
	if classifyQuota(stderrText) {
		return stdout.Bytes(), stderrText, &QuotaExceededError{Remote: c.Name}
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		if stderrText == "" && procCtx.Err() != nil {
			return stdout.Bytes(), stderrText, &RemoteTransientError{Remote: c.Name, Err: procCtx.Err()}
		}
		return stdout.Bytes(), stderrText, &ToolInvocationError{Args: args, ExitCode: exitErr.ExitCode(), Stderr: stderrText}
	}
	return stdout.Bytes(), stderrText, &RemoteTransientError{Remote: c.Name, Err: err}
}

func durArg(timeout time.Duration) string {
	return fmt.Sprintf("%ds", int(timeout.Seconds()))
}

// ListFiles lists files directly under folder, attaching folder as a
// prefix to each returned path and naturally sorting the result by name.
// When mimeSubstr is non-empty only entries whose path contains it survive.
func (c *RemoteClient) ListFiles(ctx context.Context, folder, mimeSubstr string) ([]FileEntry, error) {
	if err := validateRelPath(folder); err != nil {
		return nil, err
	}
	timeout := 30 * time.Second
	out, _, err := c.run(ctx, timeout,
		"lsjson", "--files-only", c.Name+":"+folder, "--timeout", durArg(timeout))
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Path string `json:"Path"`
		Size int64  `json:"Size"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parse lsjson output: %w", err)
	}

	entries := make([]FileEntry, 0, len(raw))
	for _, r := range raw {
		full := path.Join(folder, r.Path)
		if mimeSubstr != "" && !strings.Contains(strings.ToLower(full), strings.ToLower(mimeSubstr)) {
			continue
		}
		entries = append(entries, FileEntry{Path: full, Size: r.Size})
	}
	sort.SliceStable(entries, func(i, j int) bool { return naturalLess(entries[i].Path, entries[j].Path) })
	return entries, nil
}

// DownloadBytes returns the raw content of relPath via a blocking "cat".
func (c *RemoteClient) DownloadBytes(ctx context.Context, relPath string) ([]byte, error) {
	if err := validateRelPath(relPath); err != nil {
		return nil, err
	}
	timeout := 60 * time.Second
	out, _, err := c.run(ctx, timeout, "cat", c.Name+":"+relPath, "--timeout", durArg(timeout))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UploadFile copies a single local file to remotePath via "copyto".
func (c *RemoteClient) UploadFile(ctx context.Context, localPath, remotePath string) error {
	if err := validateRelPath(remotePath); err != nil {
		return err
	}
	timeout := 60 * time.Second
	_, _, err := c.run(ctx, timeout, "copyto", localPath, c.Name+":"+remotePath, "--timeout", durArg(timeout))
	return err
}

// UploadFolderOpts tunes the batched copy UploadFolder performs.
type UploadFolderOpts struct {
	Transfers int
	Checkers  int
	ChunkSize string
	Exclude   []string
	FileCount int // used only to size the timeout
}

// DefaultUploadFolderOpts returns the tuning the spec names as canonical.
func DefaultUploadFolderOpts() UploadFolderOpts {
	return UploadFolderOpts{Transfers: 8, Checkers: 8, ChunkSize: "64M"}
}

// UploadFolder performs the canonical batched write: one "copy" invocation
// of an entire local directory to a remote directory. Source may itself be
// "remote:path" form for server-side mirror copies. Timeout scales with
// file count: max(5min, 10s*file_count).
func (c *RemoteClient) UploadFolder(ctx context.Context, source, remoteDir string, opts UploadFolderOpts) error {
	timeout := 5 * time.Minute
	if d := time.Duration(opts.FileCount) * 10 * time.Second; d > timeout {
		timeout = d
	}
	args := []string{
		"copy", source, c.Name + ":" + remoteDir,
		"--transfers", itoa(opts.Transfers),
		"--checkers", itoa(opts.Checkers),
		"--drive-chunk-size", opts.ChunkSize,
		"--fast-list", "--no-traverse",
		"--timeout", durArg(timeout),
	}
	for _, ex := range opts.Exclude {
		args = append(args, "--exclude", ex)
	}
	_, _, err := c.run(ctx, timeout, args...)
	return err
}

// Mkdir creates remotePath (and parents) on the remote.
func (c *RemoteClient) Mkdir(ctx context.Context, remotePath string) error {
	if err := validateRelPath(remotePath); err != nil {
		return err
	}
	timeout := 30 * time.Second
	_, _, err := c.run(ctx, timeout, "mkdir", c.Name+":"+remotePath, "--timeout", durArg(timeout))
	return err
}

// Purge recursively removes remotePath.
func (c *RemoteClient) Purge(ctx context.Context, remotePath string) error {
	if err := validateRelPath(remotePath); err != nil {
		return err
	}
	timeout := 60 * time.Second
	_, _, err := c.run(ctx, timeout, "purge", c.Name+":"+remotePath, "--timeout", durArg(timeout))
	return err
}

// DeleteFile removes a single file.
func (c *RemoteClient) DeleteFile(ctx context.Context, remotePath string) error {
	if err := validateImagePath(remotePath); err != nil {
		return err
	}
	timeout := 30 * time.Second
	_, _, err := c.run(ctx, timeout, "deletefile", c.Name+":"+remotePath, "--timeout", durArg(timeout))
	return err
}

// AboutResult is the quota/usage snapshot returned by About.
type AboutResult struct {
	Total   int64 `json:"total"`
	Used    int64 `json:"used"`
	Free    int64 `json:"free"`
	Trashed int64 `json:"trashed"`
}

// About reports the remote's quota usage.
func (c *RemoteClient) About(ctx context.Context) (*AboutResult, error) {
	timeout := 30 * time.Second
	out, _, err := c.run(ctx, timeout, "about", c.Name+":", "--json", "--timeout", durArg(timeout))
	if err != nil {
		return nil, err
	}
	var res AboutResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("parse about output: %w", err)
	}
	return &res, nil
}

// TestConnection reports whether this remote is configured at all, by
// checking it appears in "listremotes".
func (c *RemoteClient) TestConnection(ctx context.Context) (bool, error) {
	timeout := 15 * time.Second
	out, _, err := c.run(ctx, timeout, "listremotes", "--timeout", durArg(timeout))
	if err != nil {
		return false, err
	}
	want := c.Name + ":"
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == want {
			return true, nil
		}
	}
	return false, nil
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }

// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	defaultChapterPattern = regexp.MustCompile(`(?i)^chapter[_\s]?(\d+(?:\.\d+)?)$`)
	altTitleLangPattern   = regexp.MustCompile(`^[a-z]{2,5}$`)

	allowedTypes   = map[string]bool{"manga": true, "manhwa": true, "manhua": true, "novel": true, "doujinshi": true, "one-shot": true}
	allowedStatus  = map[string]bool{"ongoing": true, "completed": true, "hiatus": true, "cancelled": true}
	typeMarkerFile = map[string]string{"manhwa.txt": "manhwa", "manga.txt": "manga", "manhua.txt": "manhua"}
)

// ChapterPlan is a detected chapter, staged and ready to upload (or, for a
// dry-run Plan, just described).
type ChapterPlan struct {
	MangaSlug   string
	MainNum     string
	SubNum      *string
	Label       string
	StagedDir   string // temp dir holding renamed files, empty until staged
	Images      []string
	PreviewPath string // original preview.* path if present
	TotalSize   int64
}

// MangaPlan is a detected manga folder and its chapters.
type MangaPlan struct {
	Title       string
	Slug        string
	SourceDir   string
	CoverPath   string
	Description string
	Genres      []string
	AltTitles   []AltTitle
	Type        string
	Status      string
	Chapters    []ChapterPlan
}

// Plan is the full result of scanning an archive, used both for dry-run
// responses and as the execute step's input.
type Plan struct {
	Mangas     []MangaPlan
	TotalFiles int
}

// IngestRequest carries the caller-supplied defaults and identity for one
// ingest run.
type IngestRequest struct {
	Uploader      string
	SourceID      string
	BaseFolder    string
	DefaultType   string
	DefaultStatus string
	ChapterRegex  *regexp.Regexp
}

// Engine runs the bulk ingest pipeline: extract, detect, stage, upload,
// thumbnail, mirror, and report progress.
type Engine struct {
	Router     *Router
	Policy     *GroupPolicy
	Progress   *ProgressStore
	Catalog    Store
	Thumbnails bool
	TempRoot   string
}

// Ingest kicks off a background job and returns its tracking handle
// immediately. The archive is read by the background job, so the caller
// must keep it readable until the job has finished.
func (e *Engine) Ingest(ctx context.Context, archive io.ReaderAt, size int64, req IngestRequest) (*Job, error) {
	job := e.Progress.NewJob()
	go e.run(job, archive, size, req)
	return job, nil
}

func (e *Engine) run(job *Job, archive io.ReaderAt, size int64, req IngestRequest) {
	ctx := context.Background()
	e.Progress.UpdateJob(job.ID, func(j *Job) { j.Status = JobRunning })

	stagingRoot, err := os.MkdirTemp(e.TempRoot, "ingest-*")
	if err != nil {
		e.fail(job, fmt.Errorf("create staging dir: %w", err))
		return
	}
	defer os.RemoveAll(stagingRoot)

	extractDir := filepath.Join(stagingRoot, "extract")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		e.fail(job, err)
		return
	}
	if err := extractZip(archive, size, extractDir); err != nil {
		e.fail(job, fmt.Errorf("%w: %v", ErrIngestUser, err))
		return
	}

	plan, err := scanArchive(extractDir, req)
	if err != nil {
		e.fail(job, fmt.Errorf("%w: %v", ErrIngestUser, err))
		return
	}
	if len(plan.Mangas) == 0 {
		e.fail(job, fmt.Errorf("%w: archive contains no chapters", ErrIngestUser))
		return
	}

	totalChapters := 0
	for _, m := range plan.Mangas {
		totalChapters += len(m.Chapters)
	}
	e.Progress.UpdateJob(job.ID, func(j *Job) {
		j.TotalChapters = totalChapters
		j.TotalFiles = plan.TotalFiles
	})

	for mi := range plan.Mangas {
		residual := e.executeManga(ctx, job, stagingRoot, req, &plan.Mangas[mi])
		if residual != nil {
			e.Progress.PutToken(residual)
			e.Progress.UpdateJob(job.ID, func(j *Job) {
				j.Status = JobFailed
				j.Error = "ingest stopped early; see resume token"
			})
			return
		}
	}

	now := time.Now()
	e.Progress.UpdateJob(job.ID, func(j *Job) {
		j.Status = JobCompleted
		j.CompletedAt = &now
	})
}

func (e *Engine) fail(job *Job, err error) {
	now := time.Now()
	e.Progress.UpdateJob(job.ID, func(j *Job) {
		j.Status = JobFailed
		j.Error = err.Error()
		j.CompletedAt = &now
	})
}

// executeManga upserts the manga row and uploads every not-yet-cataloged
// chapter. It returns a non-nil ResumeToken if a fatal (non-quota) error
// stops the batch partway through.
func (e *Engine) executeManga(ctx context.Context, job *Job, stagingRoot string, req IngestRequest, m *MangaPlan) *ResumeToken {
	storedCover := e.uploadCover(ctx, req, m)

	mangaID, err := e.Catalog.UpsertManga(ctx, MangaUpsert{
		Slug: m.Slug, Title: m.Title, Type: m.Type, Status: m.Status,
		Description: m.Description, Genres: m.Genres, AltTitles: m.AltTitles,
		CoverPath: storedCover, SourceID: req.SourceID,
	})
	if err != nil {
		e.Progress.UpdateJob(job.ID, func(j *Job) {
			j.Results = append(j.Results, ChapterResult{MangaSlug: m.Slug, Error: (&CatalogError{Op: "upsert_manga", Err: err}).Error()})
		})
		return &ResumeToken{ID: generateJobID(), MangaSlug: m.Slug, BaseFolder: req.BaseFolder, ResidualChapters: m.Chapters, UploaderID: req.Uploader}
	}

	for ci := range m.Chapters {
		ch := &m.Chapters[ci]
		exists, err := e.Catalog.ChapterExists(ctx, mangaID, ch.MainNum, ch.SubNum)
		if err == nil && exists {
			continue
		}

		result, fatalErr := e.executeChapter(ctx, stagingRoot, req, m, mangaID, ch)
		e.Progress.UpdateJob(job.ID, func(j *Job) {
			j.Results = append(j.Results, result)
			j.CompletedChapters++
			j.UploadedFiles += result.Files
			j.CurrentChapter = ch.Label
		})

		if fatalErr != nil {
			return &ResumeToken{
				ID:               generateJobID(),
				MangaID:          mangaID,
				MangaSlug:        m.Slug,
				BaseFolder:       req.BaseFolder,
				ResidualChapters: m.Chapters[ci+1:],
				CompletedResults: []ChapterResult{result},
				UploaderID:       req.Uploader,
			}
		}
	}
	return nil
}

// uploadCover pushes the manga's detected cover image to the currently
// active group's primary remote and returns the group-marked stored path,
// or "" if there was no cover or the upload failed. Failure is logged by
// the caller's result, never fatal to the manga.
func (e *Engine) uploadCover(ctx context.Context, req IngestRequest, m *MangaPlan) string {
	if m.CoverPath == "" {
		return ""
	}
	target, err := e.Policy.NextWriteTarget()
	if err != nil {
		return ""
	}
	client, ok := e.Router.ClientOf(target.Group, target.Primary)
	if !ok {
		return ""
	}
	ext := filepath.Ext(m.CoverPath)
	remotePath := path.Join(req.BaseFolder, m.Slug, "cover"+ext)
	if err := client.UploadFile(ctx, m.CoverPath, remotePath); err != nil {
		e.Router.MarkRemoteFailure(target.Group, target.Primary, err)
		return ""
	}
	e.Router.MarkRemoteSuccess(target.Group, target.Primary)
	return Mark(remotePath, target.Group)
}

func (e *Engine) executeChapter(ctx context.Context, stagingRoot string, req IngestRequest, m *MangaPlan, mangaID string, ch *ChapterPlan) (ChapterResult, error) {
	result := ChapterResult{MangaSlug: m.Slug, ChapterLabel: ch.Label, Files: len(ch.Images)}

	target, err := e.Policy.NextWriteTarget()
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	stagedDir, err := stageChapterFiles(stagingRoot, ch)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	primaryClient, ok := e.Router.ClientOf(target.Group, target.Primary)
	if !ok {
		err := fmt.Errorf("no client for remote %s", target.Primary)
		result.Error = err.Error()
		return result, err
	}

	chapterRemoteDir := path.Join(req.BaseFolder, m.Slug, ch.Label)
	if err := primaryClient.Mkdir(ctx, chapterRemoteDir); err != nil {
		e.Router.MarkRemoteFailure(target.Group, target.Primary, err)
		result.Error = err.Error()
		return result, err
	}

	opts := DefaultUploadFolderOpts()
	opts.FileCount = len(ch.Images)
	if err := primaryClient.UploadFolder(ctx, stagedDir, chapterRemoteDir, opts); err != nil {
		e.Router.MarkRemoteFailure(target.Group, target.Primary, err)
		result.Error = err.Error()
		if _, isQuota := err.(*QuotaExceededError); isQuota {
			return result, nil // non-fatal: next chapter picks the new active group
		}
		return result, err
	}
	e.Router.MarkRemoteSuccess(target.Group, target.Primary)
	e.Router.RecordUploadBytes(target.Group, ch.TotalSize)

	pages := make([]PageInsert, len(ch.Images))
	for i, src := range ch.Images {
		rel := path.Join(req.BaseFolder, m.Slug, ch.Label, stagedPageName(i, src))
		pages[i] = PageInsert{Index: i + 1, StoredPath: Mark(rel, target.Group)}
	}

	anchorPath := e.handleAnchor(ctx, primaryClient, target, req, m, ch, chapterRemoteDir)

	chapterID, err := e.Catalog.InsertChapter(ctx, ChapterInsert{MangaID: mangaID, MainNum: ch.MainNum, SubNum: ch.SubNum, Label: ch.Label, AnchorPath: anchorPath})
	if err != nil {
		result.Error = (&CatalogError{Op: "insert_chapter", Err: err}).Error()
		return result, err
	}
	if err := e.Catalog.InsertPages(ctx, chapterID, pages); err != nil {
		result.Error = (&CatalogError{Op: "insert_pages", Err: err}).Error()
		return result, err
	}

	go e.mirrorChapter(target, chapterRemoteDir, &result)

	return result, nil
}

// handleAnchor uploads a per-chapter preview if present, otherwise generates
// a 16:9 thumbnail from the first page, and returns the marked stored path
// of the anchor image. If the thumbnail cannot be generated or uploaded,
// the first page's own stored path is the anchor. Failure here never fails
// the chapter; a failed preview upload leaves anchor_path empty.
func (e *Engine) handleAnchor(ctx context.Context, client *RemoteClient, target WriteTarget, req IngestRequest, m *MangaPlan, ch *ChapterPlan, chapterRemoteDir string) string {
	if ch.PreviewPath != "" {
		ext := filepath.Ext(ch.PreviewPath)
		remotePath := path.Join(chapterRemoteDir, "preview"+ext)
		if err := client.UploadFile(ctx, ch.PreviewPath, remotePath); err != nil {
			return ""
		}
		return Mark(remotePath, target.Group)
	}
	if !e.Thumbnails || len(ch.Images) == 0 {
		return ""
	}
	gen := &ThumbnailGenerator{Client: client}
	firstPageRel := path.Join(req.BaseFolder, m.Slug, ch.Label, stagedPageName(0, ch.Images[0]))
	firstPage := Mark(firstPageRel, target.Group)
	thumb, err := gen.Generate(ctx, firstPageRel)
	if err != nil {
		return firstPage
	}
	remotePath := path.Join(chapterRemoteDir, "thumbnail.jpg")
	tmpFile, err := os.CreateTemp("", "thumb-*.jpg")
	if err != nil {
		return firstPage
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Write(thumb)
	tmpFile.Close()
	if err := client.UploadFile(ctx, tmpFile.Name(), remotePath); err != nil {
		return firstPage
	}
	return Mark(remotePath, target.Group)
}

// mirrorChapter performs a server-side copy of the chapter directory to
// every backup remote, in parallel, since backups never read each
// other's state and a slow remote shouldn't stall the rest. Failures
// are joined into the result's mirror_error field and never propagate
// to the caller.
func (e *Engine) mirrorChapter(target WriteTarget, chapterRemoteDir string, result *ChapterResult) {
	if len(target.Backups) == 0 {
		return
	}
	ctx := context.Background()
	source := target.Primary + ":" + chapterRemoteDir

	var (
		mu   sync.Mutex
		errs []string
		g    errgroup.Group
	)
	for _, backup := range target.Backups {
		backup := backup
		client, ok := e.Router.ClientOf(target.Group, backup)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := client.UploadFolder(ctx, source, chapterRemoteDir, DefaultUploadFolderOpts()); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Sprintf("%s: %v", backup, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	if len(errs) > 0 {
		result.MirrorError = strings.Join(errs, "; ")
	}
}

// Resume re-attempts a token's residual chapters against a fresh job,
// skipping the manga-level upsert since MangaID is already known. Each
// residual chapter is restaged from the source image paths recorded in the
// token. Those paths lie under the failed run's extract directory, which
// that run removes when it exits, so staging fails unless the files exist
// again at the same local paths.
func (e *Engine) Resume(ctx context.Context, tok *ResumeToken, req IngestRequest) (*Job, error) {
	if tok.MangaID == "" {
		return nil, fmt.Errorf("resume token has no manga context")
	}
	job := e.Progress.NewJob()
	e.Progress.UpdateJob(job.ID, func(j *Job) {
		j.Status = JobRunning
		j.TotalChapters = len(tok.ResidualChapters)
	})

	go func() {
		stagingRoot, err := os.MkdirTemp(e.TempRoot, "resume-*")
		if err != nil {
			e.fail(job, err)
			return
		}
		defer os.RemoveAll(stagingRoot)

		m := &MangaPlan{Slug: tok.MangaSlug, Chapters: tok.ResidualChapters}
		for ci := range m.Chapters {
			ch := &m.Chapters[ci]
			result, fatalErr := e.executeChapter(ctx, stagingRoot, req, m, tok.MangaID, ch)
			e.Progress.UpdateJob(job.ID, func(j *Job) {
				j.Results = append(j.Results, result)
				j.CompletedChapters++
				j.UploadedFiles += result.Files
				j.CurrentChapter = ch.Label
			})
			if fatalErr != nil {
				e.Progress.PutToken(&ResumeToken{
					ID: generateJobID(), MangaID: tok.MangaID, MangaSlug: tok.MangaSlug,
					BaseFolder: req.BaseFolder, ResidualChapters: m.Chapters[ci+1:],
					CompletedResults: []ChapterResult{result}, UploaderID: req.Uploader,
				})
				e.Progress.UpdateJob(job.ID, func(j *Job) {
					j.Status = JobFailed
					j.Error = "ingest stopped early; see resume token"
				})
				return
			}
		}
		now := time.Now()
		e.Progress.UpdateJob(job.ID, func(j *Job) {
			j.Status = JobCompleted
			j.CompletedAt = &now
		})
	}()

	return job, nil
}

// extractZip unpacks archive into dir, rejecting any entry whose name
// contains ".." or starts with "/".
func extractZip(archive io.ReaderAt, size int64, dir string) error {
	zr, err := zip.NewReader(archive, size)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		name := f.Name
		if strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
			return fmt.Errorf("forbidden entry path: %s", name)
		}
		dest := filepath.Join(dir, filepath.FromSlash(name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := extractOneFile(f, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractOneFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// stagedPageName returns the zero-padded name a source image is renamed to
// before upload, the same name used both on the remote and in catalog page
// rows; callers must never use the pre-rename basename of src.
func stagedPageName(index int, src string) string {
	ext := strings.ToLower(filepath.Ext(src))
	return fmt.Sprintf("%03d%s", index+1, ext)
}

// stageChapterFiles copies ch's naturally-sorted images into a fresh temp
// directory, renamed 001.<ext>, 002.<ext>, ... preserving order.
func stageChapterFiles(stagingRoot string, ch *ChapterPlan) (string, error) {
	dir, err := os.MkdirTemp(stagingRoot, "chapter-*")
	if err != nil {
		return "", err
	}
	for i, src := range ch.Images {
		name := stagedPageName(i, src)
		if err := copyFile(src, filepath.Join(dir, name)); err != nil {
			return "", err
		}
	}
	ch.StagedDir = dir
	return dir, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

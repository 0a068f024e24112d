// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"fmt"
	"sync"
)

// MangaUpsert is the row Ingest writes or fills in for a detected manga.
type MangaUpsert struct {
	Slug        string
	Title       string
	Type        string
	Status      string
	Description string
	Genres      []string
	AltTitles   []AltTitle
	CoverPath   string // stored path, extension preserved
	SourceID    string
}

// AltTitle is an alternate title with its language code.
type AltTitle struct {
	Title string
	Lang  string
}

// ChapterInsert is a new chapter row to create.
type ChapterInsert struct {
	MangaID    string
	MainNum    string
	SubNum     *string
	Label      string
	AnchorPath string // preview/thumbnail stored path
}

// PageInsert is a single page row within a chapter, in upload order.
type PageInsert struct {
	Index      int
	StoredPath string
}

// MangaRecord is what FindBySlug returns.
type MangaRecord struct {
	ID          string
	Slug        string
	Title       string
	Type        string
	Status      string
	Description string
	Genres      []string
	AltTitles   []AltTitle
	CoverPath   string
}

// Store is the external catalog collaborator Ingest consumes. Production
// wiring to a real relational catalog satisfies this interface; it is out
// of scope here.
type Store interface {
	UpsertManga(ctx context.Context, m MangaUpsert) (mangaID string, err error)
	ChapterExists(ctx context.Context, mangaID, mainNum string, sub *string) (bool, error)
	InsertChapter(ctx context.Context, ch ChapterInsert) (chapterID string, err error)
	InsertPages(ctx context.Context, chapterID string, pages []PageInsert) error
	FindBySlug(ctx context.Context, slug string) (*MangaRecord, error)
}

// chapterRecord is the in-memory row a chapter + its pages live under.
type chapterRecord struct {
	ChapterInsert
	Pages []PageInsert
}

// MemStore is an in-memory Store, used for tests and standalone runs.
type MemStore struct {
	mu         sync.Mutex
	byID       map[string]*MangaRecord
	bySlug     map[string]string                  // slug -> id
	chapterSet map[string]map[string]bool         // mangaID -> "main|sub" -> exists
	chapters   map[string]*chapterRecord          // chapterID -> record
	seq        int
}

// NewMemStore returns an empty in-memory catalog.
func NewMemStore() *MemStore {
	return &MemStore{
		byID:       make(map[string]*MangaRecord),
		bySlug:     make(map[string]string),
		chapterSet: make(map[string]map[string]bool),
		chapters:   make(map[string]*chapterRecord),
	}
}

func (m *MemStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// UpsertManga creates a new row or fills in only the fields missing on an
// existing one; it never overwrites description, cover, genres, or
// existing alt-titles.
func (m *MemStore) UpsertManga(ctx context.Context, u MangaUpsert) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.bySlug[u.Slug]; ok {
		rec := m.byID[id]
		if rec.Type == "" {
			rec.Type = u.Type
		}
		if rec.Status == "" {
			rec.Status = u.Status
		}
		if rec.Description == "" {
			rec.Description = u.Description
		}
		if rec.CoverPath == "" {
			rec.CoverPath = u.CoverPath
		}
		if len(rec.Genres) == 0 {
			rec.Genres = u.Genres
		}
		for _, alt := range u.AltTitles {
			if !hasAltTitle(rec.AltTitles, alt) {
				rec.AltTitles = append(rec.AltTitles, alt)
			}
		}
		return id, nil
	}

	id := m.nextID("manga")
	m.byID[id] = &MangaRecord{
		ID:          id,
		Slug:        u.Slug,
		Title:       u.Title,
		Type:        u.Type,
		Status:      u.Status,
		Description: u.Description,
		Genres:      u.Genres,
		AltTitles:   u.AltTitles,
		CoverPath:   u.CoverPath,
	}
	m.bySlug[u.Slug] = id
	return id, nil
}

// hasAltTitle reports whether title already exists, matched the same way
// the original catalog dedups: by (title, lang) pair.
func hasAltTitle(existing []AltTitle, candidate AltTitle) bool {
	for _, alt := range existing {
		if alt.Title == candidate.Title && alt.Lang == candidate.Lang {
			return true
		}
	}
	return false
}

func chapterKey(mainNum string, sub *string) string {
	if sub == nil {
		return mainNum + "|"
	}
	return mainNum + "|" + *sub
}

func (m *MemStore) ChapterExists(ctx context.Context, mangaID, mainNum string, sub *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.chapterSet[mangaID]
	if !ok {
		return false, nil
	}
	return set[chapterKey(mainNum, sub)], nil
}

func (m *MemStore) InsertChapter(ctx context.Context, ch ChapterInsert) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.chapterSet[ch.MangaID]
	if !ok {
		set = make(map[string]bool)
		m.chapterSet[ch.MangaID] = set
	}
	set[chapterKey(ch.MainNum, ch.SubNum)] = true

	id := m.nextID("chapter")
	m.chapters[id] = &chapterRecord{ChapterInsert: ch}
	return id, nil
}

func (m *MemStore) InsertPages(ctx context.Context, chapterID string, pages []PageInsert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.chapters[chapterID]
	if !ok {
		return fmt.Errorf("unknown chapter id %q", chapterID)
	}
	rec.Pages = append(rec.Pages, pages...)
	return nil
}

func (m *MemStore) FindBySlug(ctx context.Context, slug string) (*MangaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySlug[slug]
	if !ok {
		return nil, nil
	}
	return m.byID[id], nil
}

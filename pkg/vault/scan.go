// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// scanArchive walks extractDir, treating every top-level entry as one
// manga folder, and builds the full upload plan without touching any
// remote.
func scanArchive(extractDir string, req IngestRequest) (*Plan, error) {
	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return nil, fmt.Errorf("read extract dir: %w", err)
	}

	chapterPattern := defaultChapterPattern
	if req.ChapterRegex != nil {
		chapterPattern = req.ChapterRegex
	}

	plan := &Plan{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		mangaDir := filepath.Join(extractDir, entry.Name())
		m, err := scanMangaFolder(mangaDir, entry.Name(), chapterPattern, req)
		if err != nil {
			return nil, err
		}
		if len(m.Chapters) == 0 {
			continue
		}
		plan.Mangas = append(plan.Mangas, *m)
		for _, ch := range m.Chapters {
			plan.TotalFiles += len(ch.Images)
		}
	}
	return plan, nil
}

func scanMangaFolder(dir, title string, chapterPattern *regexp.Regexp, req IngestRequest) (*MangaPlan, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read manga dir %s: %w", title, err)
	}

	m := &MangaPlan{
		Title:     title,
		Slug:      slugify(title),
		SourceDir: dir,
		Type:      req.DefaultType,
		Status:    req.DefaultStatus,
	}

	var markerType string
	var typeFileType string
	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dir, name)
		switch {
		case entry.IsDir():
			continue
		case strings.EqualFold(name, "description.txt"):
			if b, err := os.ReadFile(full); err == nil {
				m.Description = strings.TrimSpace(string(b))
			}
		case strings.EqualFold(name, "genres.txt"):
			if b, err := os.ReadFile(full); err == nil {
				m.Genres = splitGenres(string(b))
			}
		case strings.EqualFold(name, "alt_titles.txt"):
			alts, err := parseAltTitles(full)
			if err == nil {
				m.AltTitles = alts
			}
		case strings.EqualFold(name, "type.txt"):
			if b, err := os.ReadFile(full); err == nil {
				typeFileType = normalizeType(string(b))
			}
		case strings.EqualFold(name, "status.txt"):
			if b, err := os.ReadFile(full); err == nil {
				if s := normalizeStatus(string(b)); s != "" {
					m.Status = s
				}
			}
		case typeMarkerFile[strings.ToLower(name)] != "":
			markerType = typeMarkerFile[strings.ToLower(name)]
		case isCoverFile(name):
			m.CoverPath = full
		}
	}

	switch {
	case typeFileType != "":
		m.Type = typeFileType
	case markerType != "":
		m.Type = markerType
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		match := chapterPattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		chapterDir := filepath.Join(dir, entry.Name())
		ch, err := scanChapterFolder(chapterDir, entry.Name(), match[1])
		if err != nil {
			return nil, err
		}
		if ch != nil {
			m.Chapters = append(m.Chapters, *ch)
		}
	}
	sortChapterPlans(m.Chapters)
	return m, nil
}

func scanChapterFolder(dir, folderName, numToken string) (*ChapterPlan, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read chapter dir %s: %w", folderName, err)
	}

	main, sub := splitChapterNumber(numToken)
	ch := &ChapterPlan{MainNum: main, SubNum: sub, Label: folderName}

	var imageNames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !allowedImageExt[ext] {
			continue
		}
		if strings.HasPrefix(strings.ToLower(name), "preview.") {
			ch.PreviewPath = filepath.Join(dir, name)
			continue
		}
		imageNames = append(imageNames, name)
	}
	naturalSort(imageNames)

	for _, name := range imageNames {
		full := filepath.Join(dir, name)
		ch.Images = append(ch.Images, full)
		if info, err := os.Stat(full); err == nil {
			ch.TotalSize += info.Size()
		}
	}
	if len(ch.Images) == 0 {
		return nil, nil
	}
	return ch, nil
}

// sortChapterPlans orders chapters by (main, sub) numerically, falling
// back to natural-sort of the label when numbers tie.
func sortChapterPlans(chapters []ChapterPlan) {
	less := func(i, j int) bool {
		a, b := chapters[i], chapters[j]
		if a.MainNum != b.MainNum {
			return naturalLess(a.MainNum, b.MainNum)
		}
		as, bs := "", ""
		if a.SubNum != nil {
			as = *a.SubNum
		}
		if b.SubNum != nil {
			bs = *b.SubNum
		}
		if as != bs {
			return naturalLess(as, bs)
		}
		return naturalLess(a.Label, b.Label)
	}
	sort.SliceStable(chapters, less)
}

func splitChapterNumber(token string) (main string, sub *string) {
	parts := strings.SplitN(token, ".", 2)
	main = parts[0]
	if len(parts) == 2 {
		s := parts[1]
		sub = &s
	}
	return main, sub
}

func isCoverFile(name string) bool {
	lower := strings.ToLower(name)
	for ext := range allowedImageExt {
		if lower == "cover"+ext {
			return true
		}
	}
	return false
}

func splitGenres(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

func parseAltTitles(path string) ([]AltTitle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []AltTitle
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			continue
		}
		title := strings.TrimSpace(parts[0])
		lang := strings.TrimSpace(parts[1])
		if !altTitleLangPattern.MatchString(lang) {
			continue
		}
		key := title + "|" + lang
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, AltTitle{Title: title, Lang: lang})
	}
	return out, scanner.Err()
}

func normalizeType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, " ", "-")
	if allowedTypes[t] {
		return t
	}
	return ""
}

func normalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if allowedStatus[s] {
		return s
	}
	return ""
}

func slugify(title string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

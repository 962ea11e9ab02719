package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/simp-lee/epubtrans"
	"github.com/simp-lee/epubtrans/segment"
)

// Layout of an extraction directory.
const (
	infoFile     = "info.json"
	segmentsFile = "segments.json"
	chaptersDir  = "chapters"
	progressDir  = "progress"
)

// bookInfo is written to info.json by extract.
type bookInfo struct {
	Source      string        `json:"source"`
	Version     string        `json:"version"`
	RunID       string        `json:"run_id"`
	Title       string        `json:"title"`
	Authors     []string      `json:"authors,omitempty"`
	Language    string        `json:"language,omitempty"`
	Identifier  string        `json:"identifier,omitempty"`
	Publisher   string        `json:"publisher,omitempty"`
	Date        string        `json:"date,omitempty"`
	Description string        `json:"description,omitempty"`
	Subjects    []string      `json:"subjects,omitempty"`
	Cover       string        `json:"cover,omitempty"`
	Chapters    int           `json:"chapters"`
	Stats       segment.Stats `json:"stats"`
	Warnings    []string      `json:"warnings,omitempty"`
}

func newBookInfo(src string, m epubtrans.PackageManifest, idx *segment.Index, warnings []string) bookInfo {
	return bookInfo{
		Source:      src,
		Version:     m.Version,
		RunID:       idx.RunID,
		Title:       m.Metadata.Title,
		Authors:     m.Metadata.Authors,
		Language:    m.Metadata.Language,
		Identifier:  m.Metadata.Identifier,
		Publisher:   m.Metadata.Publisher,
		Date:        m.Metadata.Date,
		Description: m.Metadata.Description,
		Subjects:    m.Metadata.Subjects,
		Chapters:    len(idx.Chapters),
		Stats:       idx.Stats,
		Warnings:    warnings,
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// loadIndex reads the segment index of an extraction directory.
func loadIndex(dir string) (*segment.Index, error) {
	f, err := os.Open(filepath.Join(dir, segmentsFile))
	if err != nil {
		return nil, fmt.Errorf("open segment index (run extract first): %w", err)
	}
	defer f.Close()
	return segment.ReadIndex(f)
}

// chapterFileName returns a file name for the plain text of the n-th
// (1-based) chapter.
func chapterFileName(n int, id string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
	return fmt.Sprintf("%03d_%s.txt", n, safe)
}

// defaultOutputPath places the rebuilt book next to the source, e.g.
// book.epub becomes book.ko.epub.
func defaultOutputPath(src, lang string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + "." + lang + ext
}

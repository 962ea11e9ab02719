package main

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/simp-lee/epubtrans"
	"github.com/simp-lee/epubtrans/segment"
)

var extractOut string

var extractCmd = &cobra.Command{
	Use:   "extract <book.epub>",
	Short: "Split a book into segments",
	Long: `Extract reads the book's chapters in reading order, splits their text into
segments bounded by segment.min_size and segment.max_size characters and
writes info.json, segments.json, chapters/*.txt and the cover image to the
work directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := extractOut
		if dir == "" {
			dir = cfg.WorkDir
		}
		return runExtract(cmd, args[0], dir)
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "output directory (default: work_dir from config)")
}

func runExtract(cmd *cobra.Command, src, dir string) error {
	pkg, err := epubtrans.Open(src)
	if err != nil {
		return err
	}
	defer pkg.Close()

	for _, w := range pkg.Warnings() {
		log.Warn(w)
	}

	seg, err := segment.New(cfg.Segment.MinSize, cfg.Segment.MaxSize)
	if err != nil {
		return err
	}
	opts := epubtrans.ChapterOptions{
		SkipFrontMatter: cfg.Extract.SkipFrontMatter,
		SkipLicense:     cfg.Extract.SkipLicense,
	}
	idx, err := epubtrans.Derive(cmd.Context(), pkg, seg, opts)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(dir, chaptersDir), 0o755); err != nil {
		return err
	}

	if err := writeChapterTexts(pkg, idx, filepath.Join(dir, chaptersDir), opts); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, segmentsFile))
	if err != nil {
		return err
	}
	if err := idx.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	info := newBookInfo(src, pkg.Manifest(), idx, pkg.Warnings())
	cover, err := pkg.Cover()
	switch {
	case err == nil:
		name := "cover" + path.Ext(cover.Path)
		if err := os.WriteFile(filepath.Join(dir, name), cover.Data, 0o644); err != nil {
			return err
		}
		info.Cover = name
	case errors.Is(err, epubtrans.ErrNoCover):
		log.Debug("book has no cover image")
	default:
		log.WithError(err).Warn("could not read cover image")
	}
	if err := writeJSON(filepath.Join(dir, infoFile), info); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"chapters": len(idx.Chapters),
		"segments": idx.Stats.Count,
		"run_id":   idx.RunID,
	}).Info("extraction complete")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Title:     %s\n", info.Title)
	fmt.Fprintf(out, "Chapters:  %d\n", len(idx.Chapters))
	fmt.Fprintf(out, "Segments:  %d (avg %.0f chars, min %d, max %d)\n",
		idx.Stats.Count, idx.Stats.AvgSize, idx.Stats.MinChars, idx.Stats.MaxChars)
	if idx.Stats.Oversize > 0 || idx.Stats.Undersize > 0 {
		fmt.Fprintf(out, "Outliers:  %d over max_size, %d under min_size\n", idx.Stats.Oversize, idx.Stats.Undersize)
	}
	fmt.Fprintf(out, "Output:    %s\n", dir)
	return nil
}

// writeChapterTexts writes the plain text of every segmented chapter.
func writeChapterTexts(pkg *epubtrans.Package, idx *segment.Index, dir string, opts epubtrans.ChapterOptions) error {
	refs, err := pkg.Chapters(opts)
	if err != nil {
		return err
	}
	byID := make(map[string]epubtrans.ContentRef, len(refs))
	for _, ref := range refs {
		byID[ref.ID] = ref
	}

	for i, ch := range idx.Chapters {
		ref, ok := byID[ch.ID]
		if !ok {
			return fmt.Errorf("chapter %s vanished from the spine", ch.ID)
		}
		text, err := ref.Text()
		if err != nil {
			return err
		}
		name := filepath.Join(dir, chapterFileName(i+1, ch.ID))
		if err := os.WriteFile(name, []byte(text+"\n"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

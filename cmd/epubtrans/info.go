package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simp-lee/epubtrans"
	"github.com/simp-lee/epubtrans/segment"
)

var infoSegments bool

var infoCmd = &cobra.Command{
	Use:   "info <book.epub>",
	Short: "Show the metadata and reading order of a book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInfo(cmd, args[0])
	},
}

func init() {
	infoCmd.Flags().BoolVar(&infoSegments, "segments", false, "also segment the book and print size statistics")
}

func runInfo(cmd *cobra.Command, src string) error {
	pkg, err := epubtrans.Open(src)
	if err != nil {
		return err
	}
	defer pkg.Close()

	m := pkg.Manifest()
	md := m.Metadata
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Title:       %s\n", md.Title)
	if len(md.Authors) > 0 {
		fmt.Fprintf(out, "Authors:     %s\n", strings.Join(md.Authors, ", "))
	}
	fmt.Fprintf(out, "Language:    %s\n", md.Language)
	fmt.Fprintf(out, "Identifier:  %s\n", md.Identifier)
	if md.Publisher != "" {
		fmt.Fprintf(out, "Publisher:   %s\n", md.Publisher)
	}
	fmt.Fprintf(out, "ePub:        %s (%s)\n", m.Version, m.PackagePath)
	if cover, err := pkg.Cover(); err == nil {
		fmt.Fprintf(out, "Cover:       %s (%s, %d bytes)\n", cover.Path, cover.MediaType, len(cover.Data))
	}

	fmt.Fprintf(out, "\nReading order (%d):\n", len(m.Items))
	for i, ref := range m.Items {
		flag := ""
		if !ref.Linear {
			flag = " [non-linear]"
		}
		fmt.Fprintf(out, "%4d  %-20s %-40s %s%s\n", i+1, ref.ID, ref.Path, ref.Title, flag)
	}

	for _, w := range pkg.Warnings() {
		fmt.Fprintf(out, "warning: %s\n", w)
	}

	if !infoSegments {
		return nil
	}
	seg, err := segment.New(cfg.Segment.MinSize, cfg.Segment.MaxSize)
	if err != nil {
		return err
	}
	idx, err := epubtrans.Derive(cmd.Context(), pkg, seg, epubtrans.ChapterOptions{
		SkipFrontMatter: cfg.Extract.SkipFrontMatter,
		SkipLicense:     cfg.Extract.SkipLicense,
	})
	if err != nil {
		return err
	}
	st := idx.Stats
	fmt.Fprintf(out, "\nSegments (%d-%d chars): %d in %d chapters\n", idx.MinSize, idx.MaxSize, st.Count, len(idx.Chapters))
	fmt.Fprintf(out, "  total %d chars, avg %.0f, min %d, max %d\n", st.TotalChars, st.AvgSize, st.MinChars, st.MaxChars)
	fmt.Fprintf(out, "  %d over max, %d under min\n", st.Oversize, st.Undersize)
	return nil
}

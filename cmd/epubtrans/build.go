package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/simp-lee/epubtrans"
	"github.com/simp-lee/epubtrans/internal/progress"
	"github.com/simp-lee/epubtrans/segment"
)

var buildOut string

var buildCmd = &cobra.Command{
	Use:   "build <book.epub> [workdir]",
	Short: "Write the translated book",
	Long: `Build rebuilds the original book with every translated segment of the work
directory. Segments without a translation keep their original text and are
listed in the report.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.WorkDir
		if len(args) == 2 {
			dir = args[1]
		}
		return runBuild(cmd, args[0], dir)
	},
}

func init() {
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "output file (default: <book>.<target_language>.epub)")
}

func runBuild(cmd *cobra.Command, src, dir string) error {
	idx, err := loadIndex(dir)
	if err != nil {
		return err
	}

	store, err := progress.Open(filepath.Join(dir, progressDir), log)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.BindRun(idx.RunID); err != nil {
		return err
	}
	transformed, err := store.Transformed()
	if err != nil {
		return err
	}
	failures, err := store.Failures()
	if err != nil {
		return err
	}

	dst := buildOut
	if dst == "" {
		dst = defaultOutputPath(src, cfg.Transform.TargetLanguage)
	}
	report, err := epubtrans.RebuildFile(cmd.Context(), src, dst, idx, transformed, epubtrans.RebuildOptions{
		Language:       cfg.Transform.TargetLanguage,
		ProvenanceNote: cfg.Rebuild.Note,
		TitleSuffix:    cfg.Rebuild.TitleSuffix,
		Contributor:    cfg.Rebuild.Contributor,
	})
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"replaced":   report.Replaced,
		"gaps":       len(report.Gaps),
		"misaligned": len(report.Misaligned),
	}).Info("rebuild complete")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Output:      %s\n", dst)
	fmt.Fprintf(out, "Chapters:    %d checked, %d rewritten\n", report.Chapters, report.Rewritten)
	fmt.Fprintf(out, "Segments:    %d of %d translated\n", report.Replaced, len(idx.Segments))
	printKeys(cmd, "Untranslated (original text kept)", report.Gaps, failures)
	printKeys(cmd, "Misaligned (paragraph count changed)", report.Misaligned, nil)
	return nil
}

func printKeys(cmd *cobra.Command, title string, keys []segment.Key, reasons map[segment.Key]string) {
	if len(keys) == 0 {
		return
	}
	sorted := append([]segment.Key(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d\n", title, len(sorted))
	for _, k := range sorted {
		if reason, ok := reasons[k]; ok {
			fmt.Fprintf(out, "  %s  %s\n", k, reason)
		} else {
			fmt.Fprintf(out, "  %s\n", k)
		}
	}
}

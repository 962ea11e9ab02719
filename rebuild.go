package epubtrans

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/simp-lee/epubtrans/segment"
)

// RebuildOptions controls the changes made to the package document.
// Empty fields leave the corresponding metadata untouched.
type RebuildOptions struct {
	// Language replaces dc:language (inserted when absent).
	Language string

	// ProvenanceNote is appended to dc:description (inserted when absent).
	ProvenanceNote string

	// TitleSuffix is appended to the first dc:title.
	TitleSuffix string

	// Contributor is added as a dc:contributor with the translator role.
	Contributor string
}

// RebuildReport summarises a rebuild.
type RebuildReport struct {
	// Chapters is the number of content documents checked.
	Chapters int

	// Rewritten is the number of content documents whose markup changed.
	Rewritten int

	// Replaced is the number of segments whose transformed text was applied.
	Replaced int

	// Gaps lists segments without transformed text; they keep the original.
	Gaps []segment.Key

	// Misaligned lists segments whose transformed text had fewer paragraphs
	// than the source; the uncovered paragraphs keep the original text.
	Misaligned []segment.Key
}

// chapterPlan is a validated chapter waiting to be rewritten.
type chapterPlan struct {
	entry segment.ChapterEntry
	name  string // ZIP entry name
	doc   *decodedMarkup
	scan  *markupScan
}

// Rebuild writes a copy of pkg to w in which the paragraphs covered by
// transformed segments carry the new text. Missing keys fall back to the
// original text. Every chapter of idx is validated against pkg before
// anything is written; a changed paragraph structure yields
// ErrStructuralDrift wrapped in ErrReassembly.
func Rebuild(ctx context.Context, pkg *Package, idx *segment.Index, transformed map[segment.Key]string, opts RebuildOptions, w io.Writer) (*RebuildReport, error) {
	plans, err := pkg.planRebuild(ctx, idx)
	if err != nil {
		return nil, err
	}

	report := &RebuildReport{Chapters: len(plans)}
	replace := make(map[string][]byte)

	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		texts, changed := distribute(plan, idx.ChapterSegments(plan.entry.ID), transformed, report)
		if !anyTrue(changed) {
			continue
		}

		out, err := plan.doc.encode(rewriteMarkup(plan.scan, texts, changed))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReassembly, &DocumentError{ID: plan.entry.ID, Path: plan.entry.Path, Err: err})
		}
		replace[plan.name] = out
		report.Rewritten++
	}

	opfFile := pkg.arc.lookup(pkg.opfPath)
	if opfFile == nil {
		return nil, fmt.Errorf("%w: %w: %s", ErrReassembly, ErrMissingPackageDocument, pkg.opfPath)
	}
	opfData, err := readEntry(opfFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReassembly, err)
	}
	patched, err := patchPackageDocument(opfData, pkg.opf.Version, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReassembly, err)
	}
	replace[opfFile.Name] = patched

	if err := writePackage(w, pkg.arc.entries(), replace); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReassembly, err)
	}
	return report, nil
}

// RebuildFile opens the original package at srcPath and writes the rebuilt
// package to dstPath. The output only appears once it is complete.
func RebuildFile(ctx context.Context, srcPath, dstPath string, idx *segment.Index, transformed map[segment.Key]string, opts RebuildOptions) (*RebuildReport, error) {
	pkg, err := Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReassembly, err)
	}
	defer pkg.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dstPath), ".epubtrans-*.epub")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReassembly, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	report, err := Rebuild(ctx, pkg, idx, transformed, opts, tmp)
	if err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReassembly, err)
	}
	if err := os.Rename(tmpName, dstPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReassembly, err)
	}
	return report, nil
}

// planRebuild re-extracts every chapter of idx and checks that its
// paragraph structure still matches.
func (p *Package) planRebuild(ctx context.Context, idx *segment.Index) ([]chapterPlan, error) {
	byID := make(map[string]ContentRef, len(p.manifest.Items))
	for _, ref := range p.manifest.Items {
		byID[ref.ID] = ref
	}

	plans := make([]chapterPlan, 0, len(idx.Chapters))
	for _, entry := range idx.Chapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		drift := func(format string, args ...any) error {
			return fmt.Errorf("%w: %w", ErrReassembly, &DocumentError{
				ID:   entry.ID,
				Path: entry.Path,
				Err:  fmt.Errorf("%w: "+format, append([]any{ErrStructuralDrift}, args...)...),
			})
		}

		ref, ok := byID[entry.ID]
		if !ok {
			return nil, drift("chapter is no longer in the spine")
		}
		f := p.arc.lookup(ref.Path)
		if f == nil {
			return nil, drift("content document %s is missing", ref.Path)
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReassembly, &DocumentError{ID: entry.ID, Path: ref.Path, Err: err})
		}
		doc, err := decodeMarkup(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReassembly, &DocumentError{ID: entry.ID, Path: ref.Path, Err: err})
		}
		scan, err := scanMarkup(doc.text, true)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReassembly, &DocumentError{ID: entry.ID, Path: ref.Path, Err: err})
		}
		if len(scan.units) != entry.Paragraphs {
			return nil, drift("expected %d paragraphs, found %d", entry.Paragraphs, len(scan.units))
		}
		for _, s := range idx.ChapterSegments(entry.ID) {
			if s.FirstParagraph < 0 || s.LastParagraph >= entry.Paragraphs || s.FirstParagraph > s.LastParagraph {
				return nil, drift("segment %s spans paragraphs %d..%d", s.Key(), s.FirstParagraph, s.LastParagraph)
			}
		}

		plans = append(plans, chapterPlan{entry: entry, name: f.Name, doc: doc, scan: scan})
	}
	return plans, nil
}

// blankLine splits transformed text into paragraphs.
var blankLine = regexp.MustCompile(`\n[ \t\r\f]*\n`)

// distribute computes the new text of every paragraph of a chapter from its
// segments. A segment contributes one fragment per paragraph it touches;
// fragments of consecutive segments within the same paragraph are joined by
// the earlier segment's Sep.
func distribute(plan chapterPlan, segs []segment.Segment, transformed map[segment.Key]string, report *RebuildReport) ([]string, []bool) {
	n := len(plan.scan.units)
	builders := make([]strings.Builder, n)

	var prev *segment.Segment
	for i := range segs {
		s := &segs[i]
		span := s.LastParagraph - s.FirstParagraph + 1
		parts := strings.Split(s.Text, ParagraphSeparator)
		if len(parts) != span {
			parts = []string{s.Text}
			span = 1
		}

		if text, ok := transformed[s.Key()]; ok {
			report.Replaced++
			newParts := splitTransformed(text, span)
			if len(newParts) < span {
				report.Misaligned = append(report.Misaligned, s.Key())
			}
			copy(parts, newParts)
		} else {
			report.Gaps = append(report.Gaps, s.Key())
		}

		for k, part := range parts {
			para := s.FirstParagraph + k
			if k == 0 && prev != nil && prev.LastParagraph == para {
				builders[para].WriteString(prev.Sep)
			}
			builders[para].WriteString(part)
		}
		prev = s
	}

	texts := make([]string, n)
	changed := make([]bool, n)
	for i, u := range plan.scan.units {
		texts[i] = builders[i].String()
		if texts[i] == "" {
			texts[i] = u.Text
		}
		changed[i] = texts[i] != u.Text
	}
	return texts, changed
}

// splitTransformed splits text into at most n paragraphs. Surplus
// paragraphs are merged into the last one.
func splitTransformed(text string, n int) []string {
	var parts []string
	for _, p := range blankLine.Split(strings.TrimSpace(text), -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if n == 1 {
		if len(parts) == 0 {
			return nil
		}
		return []string{strings.Join(parts, " ")}
	}
	if len(parts) > n {
		parts = append(parts[:n-1], strings.Join(parts[n-1:], " "))
	}
	return parts
}

func anyTrue(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}

package epubtrans

import (
	"context"

	"github.com/simp-lee/epubtrans/segment"
)

// Derive extracts the selected chapters of pkg and segments them in reading
// order. The returned index is everything Rebuild needs besides the
// transformed text.
func Derive(ctx context.Context, pkg *Package, seg *segment.Segmenter, opts ChapterOptions) (*segment.Index, error) {
	refs, err := pkg.Chapters(opts)
	if err != nil {
		return nil, err
	}

	var (
		chapters []segment.ChapterEntry
		segments []segment.Segment
	)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		units, err := ref.Paragraphs()
		if err != nil {
			return nil, err
		}
		if len(units) == 0 {
			continue
		}

		texts := make([]string, len(units))
		for i, u := range units {
			texts[i] = u.Text
		}
		parts := seg.Split(ref.ID, texts)

		chapters = append(chapters, segment.ChapterEntry{
			ID:         ref.ID,
			Path:       ref.Path,
			Title:      ref.Title,
			Paragraphs: len(units),
			Segments:   len(parts),
		})
		segments = append(segments, parts...)
	}

	return segment.NewIndex(seg.MinSize(), seg.MaxSize(), chapters, segments), nil
}

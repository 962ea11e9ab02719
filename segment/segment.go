// Package segment splits chapter text into size-bounded segments that can be
// sent to a transformation service one at a time and put back in place
// afterwards.
//
// Packing is greedy over a stream of atomic units. Whole paragraphs are used
// while they fit; a paragraph that has to be broken is replaced by its
// sentences, and a sentence that has to be broken by its words. Words are
// never split. Concatenating Text and Sep of a chapter's segments in
// PartIndex order reproduces the chapter text exactly.
package segment

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParagraphSeparator is placed between paragraphs of a chapter text.
const ParagraphSeparator = "\n\n"

// ErrInvalidBounds is returned by New when the size bounds are unusable.
var ErrInvalidBounds = errors.New("segment: invalid size bounds")

// Tier is the finest unit granularity a segment was built from.
type Tier int

const (
	// TierParagraph means the segment holds whole paragraphs only.
	TierParagraph Tier = iota
	// TierSentence means at least one paragraph was broken at sentence ends.
	TierSentence
	// TierWord means at least one sentence was broken between words.
	TierWord
)

// String returns a human-readable representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierParagraph:
		return "paragraph"
	case TierSentence:
		return "sentence"
	case TierWord:
		return "word"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	switch string(b) {
	case "paragraph":
		*t = TierParagraph
	case "sentence":
		*t = TierSentence
	case "word":
		*t = TierWord
	default:
		return fmt.Errorf("segment: unknown tier %q", b)
	}
	return nil
}

// Segment is one bounded piece of a chapter.
type Segment struct {
	ChapterID string `json:"chapter_id"`

	// PartIndex is 1-based and dense within a chapter.
	PartIndex int `json:"part_index"`

	Text string `json:"text"`

	// CharCount is the number of runes in Text.
	CharCount int `json:"char_count"`

	// Sep is the source text between this segment and the next one of the
	// same chapter; it is empty for the last segment.
	Sep string `json:"sep"`

	// FirstParagraph and LastParagraph are the 0-based paragraph indices
	// the segment touches.
	FirstParagraph int `json:"first_paragraph"`
	LastParagraph  int `json:"last_paragraph"`

	Tier Tier `json:"tier"`
}

// Key returns the segment's stable key.
func (s Segment) Key() Key {
	return Key{ChapterID: s.ChapterID, PartIndex: s.PartIndex}
}

// Segmenter packs paragraphs into segments of MinSize..MaxSize runes.
// It holds no state between calls and is safe for concurrent use.
type Segmenter struct {
	min int
	max int
}

// New returns a Segmenter for the given bounds. Both must be positive and
// min must be smaller than max.
func New(min, max int) (*Segmenter, error) {
	if min <= 0 || max <= 0 || min >= max {
		return nil, fmt.Errorf("%w: min=%d max=%d", ErrInvalidBounds, min, max)
	}
	return &Segmenter{min: min, max: max}, nil
}

// MinSize returns the lower bound in runes.
func (s *Segmenter) MinSize() int { return s.min }

// MaxSize returns the upper bound in runes.
func (s *Segmenter) MaxSize() int { return s.max }

// unit is an atomic piece of the chapter stream.
type unit struct {
	text string
	sep  string // source text preceding this unit
	para int
	tier Tier
}

// Split segments one chapter. The chapter text is the paragraphs joined by
// ParagraphSeparator.
//
// Every segment except the last has between MinSize and MaxSize runes, with
// two exceptions: a single word longer than MaxSize becomes its own segment,
// and a segment that is below MinSize when even the next word does not fit
// is closed early. Neither can happen when MaxSize-MinSize is at least the
// longest word.
func (s *Segmenter) Split(chapterID string, paragraphs []string) []Segment {
	if len(paragraphs) == 0 {
		return nil
	}

	queue := make([]unit, len(paragraphs))
	for i, p := range paragraphs {
		queue[i] = unit{text: p, para: i, tier: TierParagraph}
		if i > 0 {
			queue[i].sep = ParagraphSeparator
		}
	}

	var (
		groups  [][]unit
		cur     []unit
		curSize int
	)
	closeCur := func() {
		groups = append(groups, cur)
		cur = nil
		curSize = 0
	}

	for len(queue) > 0 {
		u := queue[0]
		add := utf8.RuneCountInString(u.text)
		if len(cur) > 0 {
			add += utf8.RuneCountInString(u.sep)
		}

		if curSize+add <= s.max {
			cur = append(cur, u)
			curSize += add
			queue = queue[1:]
			continue
		}

		if len(cur) > 0 && curSize >= s.min {
			closeCur()
			continue
		}

		// Either the unit is too large on its own or the segment still
		// needs to reach the lower bound: try finer units.
		if children := decompose(u); len(children) > 1 {
			queue = append(children, queue[1:]...)
			continue
		}

		if len(cur) == 0 {
			cur = append(cur, u)
			queue = queue[1:]
		}
		closeCur()
	}
	if len(cur) > 0 {
		closeCur()
	}

	return buildSegments(chapterID, groups)
}

// buildSegments turns unit groups into numbered segments. The separator of
// a segment is the sep of the first unit of the following group.
func buildSegments(chapterID string, groups [][]unit) []Segment {
	segs := make([]Segment, len(groups))
	for i, g := range groups {
		var sb strings.Builder
		tier := TierParagraph
		for j, u := range g {
			if j > 0 {
				sb.WriteString(u.sep)
			}
			sb.WriteString(u.text)
			if u.tier > tier {
				tier = u.tier
			}
		}
		text := sb.String()
		segs[i] = Segment{
			ChapterID:      chapterID,
			PartIndex:      i + 1,
			Text:           text,
			CharCount:      utf8.RuneCountInString(text),
			FirstParagraph: g[0].para,
			LastParagraph:  g[len(g)-1].para,
			Tier:           tier,
		}
		if i+1 < len(groups) {
			segs[i].Sep = groups[i+1][0].sep
		}
	}
	return segs
}

// decompose replaces a unit by its next finer units. A paragraph with a
// single sentence goes straight to words. A word yields nothing.
func decompose(u unit) []unit {
	switch u.tier {
	case TierParagraph:
		if pieces := splitSentences(u.text); len(pieces) > 1 {
			return toUnits(u, pieces, TierSentence)
		}
		fallthrough
	case TierSentence:
		if pieces := splitWords(u.text); len(pieces) > 1 {
			return toUnits(u, pieces, TierWord)
		}
	}
	return nil
}

// piece is a child text with the source text that precedes it.
type piece struct {
	text string
	sep  string
}

func toUnits(parent unit, pieces []piece, tier Tier) []unit {
	units := make([]unit, len(pieces))
	for i, p := range pieces {
		units[i] = unit{text: p.text, sep: p.sep, para: parent.para, tier: tier}
	}
	units[0].sep = parent.sep + units[0].sep
	return units
}

// splitWords splits text at whitespace runs. Leading whitespace becomes the
// first word's sep and trailing whitespace stays with the last word.
func splitWords(text string) []piece {
	var (
		pieces []piece
		sep    string
	)
	i := 0
	for i < len(text) {
		wsStart := i
		for i < len(text) {
			r, size := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r) {
				break
			}
			i += size
		}
		sep = text[wsStart:i]
		if i >= len(text) {
			break
		}
		wordStart := i
		for i < len(text) {
			r, size := utf8.DecodeRuneInString(text[i:])
			if unicode.IsSpace(r) {
				break
			}
			i += size
		}
		pieces = append(pieces, piece{text: text[wordStart:i], sep: sep})
		sep = ""
	}
	if sep != "" {
		if len(pieces) == 0 {
			return []piece{{text: text}}
		}
		pieces[len(pieces)-1].text += sep
	}
	return pieces
}

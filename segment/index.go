package segment

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
)

// ChapterEntry describes one segmented chapter of a package.
type ChapterEntry struct {
	ID         string `json:"id"`
	Path       string `json:"path"`
	Title      string `json:"title,omitempty"`
	Paragraphs int    `json:"paragraphs"`
	Segments   int    `json:"segments"`
}

// Stats summarises segment sizes of an index.
type Stats struct {
	Count      int     `json:"count"`
	TotalChars int     `json:"total_chars"`
	AvgSize    float64 `json:"avg_size"`
	MinChars   int     `json:"min_chars"`
	MaxChars   int     `json:"max_chars"`

	// Oversize counts single-word segments longer than the upper bound.
	Oversize int `json:"oversize"`

	// Undersize counts non-final segments closed below the lower bound.
	Undersize int `json:"undersize"`
}

// Index is the reversible record of one extraction: every segment of every
// chapter in reading order.
type Index struct {
	// RunID is derived from the bounds and the segments, so the same input
	// always yields the same id.
	RunID    string         `json:"run_id"`
	MinSize  int            `json:"min_size"`
	MaxSize  int            `json:"max_size"`
	Chapters []ChapterEntry `json:"chapters"`
	Segments []Segment      `json:"segments"`
	Stats    Stats          `json:"stats"`

	byKey map[Key]int
}

// NewIndex builds an index over segments produced with the given bounds.
// Segments must be grouped by chapter in reading order.
func NewIndex(minSize, maxSize int, chapters []ChapterEntry, segments []Segment) *Index {
	idx := &Index{
		MinSize:  minSize,
		MaxSize:  maxSize,
		Chapters: chapters,
		Segments: segments,
	}
	if idx.Chapters == nil {
		idx.Chapters = []ChapterEntry{}
	}
	if idx.Segments == nil {
		idx.Segments = []Segment{}
	}
	idx.Stats = computeStats(minSize, maxSize, segments)
	idx.RunID = runID(minSize, maxSize, segments).String()
	idx.buildLookup()
	return idx
}

func computeStats(minSize, maxSize int, segments []Segment) Stats {
	var st Stats
	for i, s := range segments {
		st.Count++
		st.TotalChars += s.CharCount
		if i == 0 || s.CharCount < st.MinChars {
			st.MinChars = s.CharCount
		}
		if s.CharCount > st.MaxChars {
			st.MaxChars = s.CharCount
		}
		if s.CharCount > maxSize {
			st.Oversize++
		}
		last := i+1 == len(segments) || segments[i+1].ChapterID != s.ChapterID
		if !last && s.CharCount < minSize {
			st.Undersize++
		}
	}
	if st.Count > 0 {
		st.AvgSize = float64(st.TotalChars) / float64(st.Count)
	}
	return st
}

// runID hashes the bounds and every segment into a name-based UUID.
func runID(minSize, maxSize int, segments []Segment) uuid.UUID {
	h := sha256.New()
	io.WriteString(h, strconv.Itoa(minSize)+"/"+strconv.Itoa(maxSize))
	for _, s := range segments {
		io.WriteString(h, "\x00"+s.Key().String()+"\x00"+s.Text+"\x00"+s.Sep)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, h.Sum(nil))
}

func (idx *Index) buildLookup() {
	idx.byKey = make(map[Key]int, len(idx.Segments))
	for i, s := range idx.Segments {
		idx.byKey[s.Key()] = i
	}
}

// Lookup returns the segment stored under key.
func (idx *Index) Lookup(key Key) (Segment, bool) {
	i, ok := idx.byKey[key]
	if !ok {
		return Segment{}, false
	}
	return idx.Segments[i], true
}

// ChapterSegments returns the segments of one chapter in PartIndex order.
func (idx *Index) ChapterSegments(chapterID string) []Segment {
	var out []Segment
	for _, s := range idx.Segments {
		if s.ChapterID == chapterID {
			out = append(out, s)
		}
	}
	return out
}

// Keys returns every segment key in index order.
func (idx *Index) Keys() []Key {
	keys := make([]Key, len(idx.Segments))
	for i, s := range idx.Segments {
		keys[i] = s.Key()
	}
	return keys
}

// WriteJSON writes the index as indented JSON.
func (idx *Index) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(idx); err != nil {
		return fmt.Errorf("segment: write index: %w", err)
	}
	return nil
}

// ReadIndex decodes an index written by WriteJSON.
func ReadIndex(r io.Reader) (*Index, error) {
	var idx Index
	if err := json.NewDecoder(r).Decode(&idx); err != nil {
		return nil, fmt.Errorf("segment: read index: %w", err)
	}
	idx.buildLookup()
	return &idx, nil
}

package epubtrans

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/simp-lee/epubtrans/segment"
)

// benchBook builds an ePub 3 package with numChapters chapters of a few
// realistic paragraphs each.
func benchBook(numChapters int) []zipEntry {
	chapters := make([]testChapter, numChapters)
	spine := make([]string, numChapters)
	for i := range chapters {
		id := fmt.Sprintf("ch%d", i+1)
		chapters[i] = testChapter{
			id:    id,
			href:  fmt.Sprintf("text/chapter%03d.xhtml", i+1),
			title: fmt.Sprintf("Chapter %d", i+1),
			body:  benchChapterBody(i + 1),
		}
		spine[i] = id
	}
	return testBook(chapters, spine)
}

func benchChapterBody(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Chapter %d</h1>\n", n)
	for i := 0; i < 12; i++ {
		b.WriteString(`<p>This is a paragraph of chapter text. It contains <em>inline</em> markup, a few sentences, and enough words to make segmentation do real work. Mr. Hale said so twice.</p>`)
		b.WriteByte('\n')
	}
	b.WriteString(`<p>` + strings.Repeat("unbroken run-on prose without any sentence ending ", 40) + `</p>`)
	return b.String()
}

// BenchmarkOpen measures Open on a 10-chapter book, including metadata and
// table-of-contents resolution.
func BenchmarkOpen(b *testing.B) {
	data := buildZipBytes(b, benchBook(10))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pkg, err := NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			b.Fatalf("NewReader: %v", err)
		}
		_ = pkg.Metadata()
	}
}

// BenchmarkExtractParagraphs measures paragraph extraction of one chapter.
func BenchmarkExtractParagraphs(b *testing.B) {
	doc := []byte(xhtmlDoc("Chapter", benchChapterBody(1)))

	b.ReportAllocs()
	b.SetBytes(int64(len(doc)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ExtractParagraphs(doc); err != nil {
			b.Fatalf("ExtractParagraphs: %v", err)
		}
	}
}

// BenchmarkSplit measures segmentation of one extracted chapter.
func BenchmarkSplit(b *testing.B) {
	units, err := ExtractParagraphs([]byte(xhtmlDoc("Chapter", benchChapterBody(1))))
	if err != nil {
		b.Fatal(err)
	}
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}
	seg, err := segment.New(200, 600)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		seg.Split("ch1", texts)
	}
}

// BenchmarkRebuild measures a full rebuild with every segment replaced,
// across book sizes.
func BenchmarkRebuild(b *testing.B) {
	for _, n := range []int{10, 50} {
		b.Run(fmt.Sprintf("chapters_%d", n), func(b *testing.B) {
			data := buildZipBytes(b, benchBook(n))
			pkg, err := NewReader(bytes.NewReader(data), int64(len(data)))
			if err != nil {
				b.Fatal(err)
			}
			seg, _ := segment.New(200, 600)
			idx, err := Derive(context.Background(), pkg, seg, ChapterOptions{})
			if err != nil {
				b.Fatal(err)
			}
			transformed := make(map[segment.Key]string, len(idx.Segments))
			for _, s := range idx.Segments {
				transformed[s.Key()] = strings.ToUpper(s.Text)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := Rebuild(context.Background(), pkg, idx, transformed, RebuildOptions{Language: "ko"}, io.Discard); err != nil {
					b.Fatalf("Rebuild: %v", err)
				}
			}
		})
	}
}

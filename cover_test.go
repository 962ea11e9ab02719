package epubtrans

import (
	"errors"
	"strings"
	"testing"
)

// withManifestItems inserts extra manifest items and metadata into the
// package document of entries.
func withManifestItems(entries []zipEntry, items, meta string) []zipEntry {
	for i := range entries {
		if entries[i].name == "OEBPS/content.opf" {
			entries[i].body = strings.Replace(entries[i].body, "  </manifest>", items+"\n  </manifest>", 1)
			entries[i].body = strings.Replace(entries[i].body, "  </metadata>", meta+"\n  </metadata>", 1)
		}
	}
	return entries
}

func TestCover(t *testing.T) {
	jpeg := "\xff\xd8\xff\xe0fake-jpeg"

	tests := []struct {
		name     string
		chapters []testChapter
		items    string
		meta     string
		files    []zipEntry
		wantPath string
	}{
		{
			name:     "cover-image property",
			items:    `    <item id="img" href="images/front.jpg" media-type="image/jpeg" properties="cover-image"/>`,
			files:    []zipEntry{{"OEBPS/images/front.jpg", jpeg}},
			wantPath: "OEBPS/images/front.jpg",
		},
		{
			name:     "meta cover pointer",
			items:    `    <item id="pic" href="images/p.jpg" media-type="image/jpeg"/>`,
			meta:     `    <meta name="cover" content="pic"/>`,
			files:    []zipEntry{{"OEBPS/images/p.jpg", jpeg}},
			wantPath: "OEBPS/images/p.jpg",
		},
		{
			name:     "manifest heuristic",
			items:    `    <item id="img1" href="images/Cover.JPG" media-type="image/jpeg"/>`,
			files:    []zipEntry{{"OEBPS/images/Cover.JPG", jpeg}},
			wantPath: "OEBPS/images/Cover.JPG",
		},
		{
			name: "first spine image",
			chapters: []testChapter{
				{id: "front", href: "text/front.xhtml", body: `<div><img src="../images/a.jpg" alt=""/></div>`},
			},
			items:    `    <item id="a" href="images/a.jpg" media-type="image/jpeg"/>`,
			files:    []zipEntry{{"OEBPS/images/a.jpg", jpeg}},
			wantPath: "OEBPS/images/a.jpg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chapters := tt.chapters
			if chapters == nil {
				chapters = []testChapter{{id: "c1", href: "c1.xhtml", body: "<p>text</p>"}}
			}
			var spine []string
			for _, ch := range chapters {
				spine = append(spine, ch.id)
			}
			entries := withManifestItems(testBook(chapters, spine), tt.items, tt.meta)
			pkg := openTestPackage(t, append(entries, tt.files...))

			cover, err := pkg.Cover()
			if err != nil {
				t.Fatalf("Cover() error = %v", err)
			}
			if cover.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", cover.Path, tt.wantPath)
			}
			if cover.MediaType != "image/jpeg" || string(cover.Data) != jpeg {
				t.Errorf("cover = %s %q", cover.MediaType, cover.Data)
			}
		})
	}
}

func TestCover_None(t *testing.T) {
	chapters, spine := threeChapters()
	pkg := openTestPackage(t, testBook(chapters, spine))

	if _, err := pkg.Cover(); !errors.Is(err, ErrNoCover) {
		t.Fatalf("Cover() error = %v, want ErrNoCover", err)
	}
}

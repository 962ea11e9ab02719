package epubtrans

import (
	"archive/zip"
	"errors"
	"strings"
	"testing"
)

func TestArchiveLookup(t *testing.T) {
	arc := newArchive(buildTestZip(t, map[string]string{
		"META-INF/container.xml": "<container/>",
		"OEBPS/Content.opf":      "<package/>",
		"OEBPS/Text/ch1.xhtml":   "<p/>",
		"Readme.txt":             "upper",
		"readme.txt":             "lower",
	}))

	tests := []struct {
		lookup string
		want   string // "" means no entry
	}{
		{"META-INF/container.xml", "META-INF/container.xml"},
		{"meta-inf/container.XML", "META-INF/container.xml"},
		{"oebps/content.opf", "OEBPS/Content.opf"},
		{"OEBPS/text/CH1.xhtml", "OEBPS/Text/ch1.xhtml"},
		{"readme.txt", "readme.txt"}, // exact beats folded
		{"Readme.txt", "Readme.txt"},
		{"OEBPS", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got := arc.lookup(tt.lookup)
		switch {
		case tt.want == "" && got != nil:
			t.Errorf("lookup(%q) = %q, want nil", tt.lookup, got.Name)
		case tt.want != "" && got == nil:
			t.Errorf("lookup(%q) = nil, want %q", tt.lookup, tt.want)
		case got != nil && got.Name != tt.want:
			t.Errorf("lookup(%q) = %q, want %q", tt.lookup, got.Name, tt.want)
		}
	}
}

func TestArchiveRead(t *testing.T) {
	arc := newArchive(buildTestZip(t, map[string]string{
		"OEBPS/ch1.xhtml": "<p>one</p>",
		"empty.txt":       "",
	}))

	data, err := arc.read("oebps/CH1.xhtml")
	if err != nil || string(data) != "<p>one</p>" {
		t.Errorf("read() = %q, %v", data, err)
	}
	if data, err := arc.read("empty.txt"); err != nil || len(data) != 0 {
		t.Errorf("read(empty) = %q, %v", data, err)
	}
	if _, err := arc.read("missing.xhtml"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("read(missing) error = %v, want ErrFileNotFound", err)
	}
}

func TestReadEntryLimit(t *testing.T) {
	arc := newArchive(buildTestZip(t, map[string]string{
		"small.txt": strings.Repeat("a", 100),
		"big.txt":   strings.Repeat("b", 101),
	}))

	if _, err := readEntryLimit(arc.lookup("small.txt"), 100); err != nil {
		t.Errorf("entry at the limit: %v", err)
	}
	if _, err := readEntryLimit(arc.lookup("big.txt"), 100); err == nil {
		t.Error("entry over the limit was read")
	}
}

func TestResolveRelativePath(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"OEBPS/content.opf", "text/ch1.xhtml", "OEBPS/text/ch1.xhtml"},
		{"OEBPS/content.opf", "./style.css", "OEBPS/style.css"},
		{"OEBPS/text/ch1.xhtml", "../images/a.png", "OEBPS/images/a.png"},
		{"content.opf", "ch1.xhtml", "ch1.xhtml"},
		{"OEBPS/content.opf", "Chapter%201.xhtml", "OEBPS/Chapter 1.xhtml"},
		{"OEBPS/content.opf", "  nav.xhtml ", "OEBPS/nav.xhtml"},
		{"OEBPS/content.opf", "../../outside.txt", ""},
		{"OEBPS/content.opf", "/abs/path.xhtml", ""},
	}
	for _, tt := range tests {
		if got := resolveRelativePath(tt.base, tt.href); got != tt.want {
			t.Errorf("resolveRelativePath(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}

func TestIsSafePath(t *testing.T) {
	safe := []string{"mimetype", "OEBPS/a/b.xhtml", ".", "a/../b"}
	unsafe := []string{"..", "../x", "a/../../x", "/etc/passwd", "../"}
	for _, p := range safe {
		if !isSafePath(p) {
			t.Errorf("isSafePath(%q) = false", p)
		}
	}
	for _, p := range unsafe {
		if isSafePath(p) {
			t.Errorf("isSafePath(%q) = true", p)
		}
	}
}

func TestStripBOM(t *testing.T) {
	if got := string(stripBOM([]byte("\xEF\xBB\xBF<?xml?>"))); got != "<?xml?>" {
		t.Errorf("stripBOM(bom) = %q", got)
	}
	for _, in := range []string{"<?xml?>", "", "\xEF\xBB", "a\xEF\xBB\xBF"} {
		if got := string(stripBOM([]byte(in))); got != in {
			t.Errorf("stripBOM(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestHrefWithoutFragment(t *testing.T) {
	for href, want := range map[string]string{
		"ch1.xhtml#sec2": "ch1.xhtml",
		"ch1.xhtml":      "ch1.xhtml",
		"#top":           "",
		"a.xhtml#b#c":    "a.xhtml",
	} {
		if got := hrefWithoutFragment(href); got != want {
			t.Errorf("hrefWithoutFragment(%q) = %q, want %q", href, got, want)
		}
	}
}

func TestBuildZipBytes_KeepsOrder(t *testing.T) {
	fp := buildTestEPubFile(t, []zipEntry{
		{"mimetype", "application/epub+zip"},
		{"z.txt", "last name first"},
		{"META-INF/container.xml", "<container/>"},
	})

	zrc, err := zip.OpenReader(fp)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer zrc.Close()

	var names []string
	for _, f := range zrc.File {
		names = append(names, f.Name)
	}
	if got := strings.Join(names, ","); got != "mimetype,z.txt,META-INF/container.xml" {
		t.Errorf("entries = %s", got)
	}
	if zrc.File[0].Method != zip.Store {
		t.Errorf("mimetype method = %d, want Store", zrc.File[0].Method)
	}
}

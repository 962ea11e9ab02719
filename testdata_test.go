package epubtrans

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

const validContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// zipEntry is one file of an ordered test archive.
type zipEntry struct {
	name string
	body string
}

// buildZipBytes writes entries to an in-memory ZIP in the given order.
// A leading "mimetype" entry is stored uncompressed like in a real ePub.
func buildZipBytes(t testing.TB, entries []zipEntry) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for i, e := range entries {
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		if i == 0 && e.name == "mimetype" {
			hdr.Method = zip.Store
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("buildZipBytes: create %s: %v", e.name, err)
		}
		if _, err := io.WriteString(fw, e.body); err != nil {
			t.Fatalf("buildZipBytes: write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("buildZipBytes: close writer: %v", err)
	}
	return buf.Bytes()
}

// buildTestZip creates an in-memory ZIP from a files map (path → content),
// with entries in sorted path order, and returns a reader over it.
func buildTestZip(t *testing.T, files map[string]string) *zip.Reader {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]zipEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, zipEntry{name: name, body: files[name]})
	}
	data := buildZipBytes(t, entries)
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("buildTestZip: open reader: %v", err)
	}
	return r
}

// buildTestEPubFile writes entries to a temporary .epub file and returns its path.
func buildTestEPubFile(t *testing.T, entries []zipEntry) string {
	t.Helper()
	fp := filepath.Join(t.TempDir(), "test.epub")
	if err := os.WriteFile(fp, buildZipBytes(t, entries), 0644); err != nil {
		t.Fatalf("buildTestEPubFile: write file: %v", err)
	}
	return fp
}

// openTestPackage opens entries with NewReader.
func openTestPackage(t *testing.T, entries []zipEntry) *Package {
	t.Helper()
	data := buildZipBytes(t, entries)
	pkg, err := NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	return pkg
}

// testChapter is a content document of a generated test book.
type testChapter struct {
	id    string
	href  string // relative to OEBPS/
	title string
	body  string // inner <body> markup
}

// xhtmlDoc wraps body markup into a complete XHTML document.
func xhtmlDoc(title, body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>` + title + `</title>
  <style>p { margin: 0; }</style>
</head>
<body>
` + body + `
</body>
</html>`
}

// testBookOPF renders an ePub 3 package document. Manifest order follows
// chapters; spine order follows spine (chapter ids).
func testBookOPF(chapters []testChapter, spine []string) string {
	var manifest, itemrefs strings.Builder
	manifest.WriteString(`    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>` + "\n")
	for _, ch := range chapters {
		fmt.Fprintf(&manifest, `    <item id="%s" href="%s" media-type="application/xhtml+xml"/>`+"\n", ch.id, ch.href)
	}
	for _, id := range spine {
		fmt.Fprintf(&itemrefs, `    <itemref idref="%s"/>`+"\n", id)
	}
	return `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="uid">urn:uuid:0b8a2f4e-2f6c-4a55-9a43-1d6b0e0c8f11</dc:identifier>
    <dc:title>The Test Book</dc:title>
    <dc:creator>Ada Writer</dc:creator>
    <dc:language>en</dc:language>
    <meta property="dcterms:modified">2024-01-01T00:00:00Z</meta>
  </metadata>
  <manifest>
` + manifest.String() + `  </manifest>
  <spine>
` + itemrefs.String() + `  </spine>
</package>`
}

// testBookNav renders a nav document listing the chapters that have a title.
func testBookNav(chapters []testChapter) string {
	var items strings.Builder
	for _, ch := range chapters {
		if ch.title != "" {
			fmt.Fprintf(&items, `<li><a href="%s">%s</a></li>`, ch.href, ch.title)
		}
	}
	return xhtmlDoc("Contents", `<nav epub:type="toc"><ol>`+items.String()+`</ol></nav>`)
}

// testBook returns the ordered entries of a complete ePub 3 package.
func testBook(chapters []testChapter, spine []string) []zipEntry {
	entries := []zipEntry{
		{"mimetype", "application/epub+zip"},
		{"META-INF/container.xml", validContainerXML},
		{"OEBPS/content.opf", testBookOPF(chapters, spine)},
		{"OEBPS/nav.xhtml", testBookNav(chapters)},
	}
	for _, ch := range chapters {
		entries = append(entries, zipEntry{"OEBPS/" + ch.href, xhtmlDoc(ch.title, ch.body)})
	}
	entries = append(entries, zipEntry{"OEBPS/style.css", "p { text-indent: 1em; }"})
	return entries
}

// threeChapters is a small book whose spine order differs from manifest order.
func threeChapters() ([]testChapter, []string) {
	chapters := []testChapter{
		{id: "c1", href: "text/c1.xhtml", title: "One", body: `<h1>One</h1><p>First chapter text.</p>`},
		{id: "c2", href: "text/c2.xhtml", title: "Two", body: `<h1>Two</h1><p>Second chapter text.</p>`},
		{id: "c3", href: "text/c3.xhtml", title: "Three", body: `<h1>Three</h1><p>Third chapter text.</p>`},
	}
	return chapters, []string{"c2", "c1", "c3"}
}

// readZipEntries returns name → content for every entry of an archive.
func readZipEntries(t *testing.T, data []byte) (map[string]string, []string) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open output zip: %v", err)
	}
	files := make(map[string]string, len(zr.File))
	order := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		b, err := readEntry(f)
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		files[f.Name] = string(b)
		order = append(order, f.Name)
	}
	return files, order
}

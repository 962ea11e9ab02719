package epubtrans

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// entryLimit caps the decompressed size of any single archive entry.
const entryLimit int64 = 256 << 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// archive is a ZIP reader with path lookup. Producers disagree on the case
// of entry names (OEBPS vs oebps), so lookups fall back to a case-folded
// match when no entry has the exact name.
type archive struct {
	zr     *zip.Reader
	byName map[string]*zip.File
	folded map[string]*zip.File
}

func newArchive(zr *zip.Reader) *archive {
	a := &archive{
		zr:     zr,
		byName: make(map[string]*zip.File, len(zr.File)),
		folded: make(map[string]*zip.File, len(zr.File)),
	}
	// First entry wins for duplicate names.
	for _, f := range zr.File {
		if _, dup := a.byName[f.Name]; !dup {
			a.byName[f.Name] = f
		}
		key := strings.ToLower(f.Name)
		if _, dup := a.folded[key]; !dup {
			a.folded[key] = f
		}
	}
	return a
}

// lookup returns the entry called name, or nil.
func (a *archive) lookup(name string) *zip.File {
	if f := a.byName[name]; f != nil {
		return f
	}
	return a.folded[strings.ToLower(name)]
}

// read returns the contents of the entry called name.
func (a *archive) read(name string) ([]byte, error) {
	f := a.lookup(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return readEntry(f)
}

// entries returns the archive entries in stored order.
func (a *archive) entries() []*zip.File {
	return a.zr.File
}

// readEntry reads one archive entry, refusing entries whose name escapes
// the archive root or whose content exceeds entryLimit.
func readEntry(f *zip.File) ([]byte, error) {
	return readEntryLimit(f, entryLimit)
}

func readEntryLimit(f *zip.File, limit int64) ([]byte, error) {
	switch {
	case !isSafePath(f.Name):
		return nil, fmt.Errorf("epubtrans: unsafe zip entry path: %s", f.Name)
	case f.UncompressedSize64 > uint64(limit):
		return nil, fmt.Errorf("epubtrans: zip entry %s declares %d bytes (limit %d)", f.Name, f.UncompressedSize64, limit)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("epubtrans: open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	// Declared sizes can lie, so read one byte more than allowed.
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("epubtrans: read zip entry %s: %w", f.Name, err)
	}
	if n > limit {
		return nil, fmt.Errorf("epubtrans: zip entry %s inflates past %d bytes", f.Name, limit)
	}
	return buf.Bytes(), nil
}

// resolveRelativePath resolves a percent-encoded href against the directory
// of the archive path base. It returns "" for absolute hrefs and for
// results outside the archive.
func resolveRelativePath(base, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "/") {
		return ""
	}
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	p := path.Join(path.Dir(base), href)
	if !isSafePath(p) {
		return ""
	}
	return p
}

// isSafePath reports whether p stays inside the archive root.
func isSafePath(p string) bool {
	p = path.Clean(p)
	return !path.IsAbs(p) && p != ".." && !strings.HasPrefix(p, "../")
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// hrefWithoutFragment drops a "#fragment" suffix.
func hrefWithoutFragment(href string) string {
	base, _, _ := strings.Cut(href, "#")
	return base
}

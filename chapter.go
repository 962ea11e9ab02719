package epubtrans

import (
	"bytes"
	"path"
	"regexp"
	"strings"
)

// ChapterOptions selects which spine entries Chapters returns.
type ChapterOptions struct {
	// SkipFrontMatter drops documents whose file name looks like a cover,
	// title page, copyright page, table of contents and similar.
	SkipFrontMatter bool

	// SkipLicense drops Project Gutenberg licence pages.
	SkipLicense bool
}

// frontMatterPatterns match lowercased content document file names.
var frontMatterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`title.*page`),
	regexp.MustCompile(`cover`),
	regexp.MustCompile(`copyright`),
	regexp.MustCompile(`toc`),
	regexp.MustCompile(`table.*of.*contents`),
	regexp.MustCompile(`front.*matter`),
	regexp.MustCompile(`dedication`),
	regexp.MustCompile(`epigraph`),
}

// gutenbergPatterns contains case-insensitive patterns that indicate a
// Project Gutenberg license page.
var gutenbergPatterns = []string{
	"project gutenberg license",
	"gutenberg.org/license",
	"start of the project gutenberg license",
	"end of the project gutenberg license",
}

// gutenbergComboPatterns contains pairs of strings that together indicate a
// Gutenberg license page (both must appear, case-insensitive).
var gutenbergComboPatterns = [][2]string{
	{"project gutenberg", "terms of use"},
	{"full license", "gutenberg"},
}

// isFrontMatter reports whether the file name of p matches a front-matter pattern.
func isFrontMatter(p string) bool {
	name := strings.ToLower(path.Base(p))
	for _, re := range frontMatterPatterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// isGutenbergLicense checks whether the extracted text of a document looks
// like a Project Gutenberg licence page.
func isGutenbergLicense(data []byte) bool {
	text, err := ExtractText(data)
	if err != nil {
		text = string(bytes.ToLower(data))
	} else {
		text = strings.ToLower(text)
	}

	for _, pat := range gutenbergPatterns {
		if strings.Contains(text, pat) {
			return true
		}
	}
	for _, combo := range gutenbergComboPatterns {
		if strings.Contains(text, combo[0]) && strings.Contains(text, combo[1]) {
			return true
		}
	}
	return false
}

// isTextual reports whether a manifest media type names an (X)HTML document.
func isTextual(mediaType string) bool {
	return strings.Contains(strings.ToLower(mediaType), "html")
}

// Chapters returns the textual spine entries in reading order, filtered by
// opts. Non-HTML spine entries (images, SVG pages) are always left out.
func (p *Package) Chapters(opts ChapterOptions) ([]ContentRef, error) {
	var out []ContentRef
	for _, ref := range p.manifest.Items {
		if !isTextual(ref.MediaType) {
			continue
		}
		if opts.SkipFrontMatter && isFrontMatter(ref.Path) {
			continue
		}
		if opts.SkipLicense {
			data, err := ref.Content()
			if err != nil {
				return nil, &DocumentError{ID: ref.ID, Path: ref.Path, Err: err}
			}
			if isGutenbergLicense(data) {
				continue
			}
		}
		out = append(out, ref)
	}
	return out, nil
}

// Content reads the raw bytes of this content document from the archive.
// A leading UTF-8 BOM is stripped.
func (c ContentRef) Content() ([]byte, error) {
	if c.pkg == nil {
		return nil, ErrInvalidChapter
	}
	data, err := c.pkg.readFile(c.Path)
	if err != nil {
		return nil, err
	}
	return stripBOM(data), nil
}

// Paragraphs extracts the paragraph units of this content document.
// Read and extraction errors carry the document's id and path.
func (c ContentRef) Paragraphs() ([]ParagraphUnit, error) {
	data, err := c.Content()
	if err != nil {
		return nil, &DocumentError{ID: c.ID, Path: c.Path, Err: err}
	}
	units, err := ExtractParagraphs(data)
	if err != nil {
		return nil, &DocumentError{ID: c.ID, Path: c.Path, Err: err}
	}
	return units, nil
}

// Text returns the plain text of this content document, paragraphs joined
// by ParagraphSeparator.
func (c ContentRef) Text() (string, error) {
	units, err := c.Paragraphs()
	if err != nil {
		return "", err
	}
	return JoinParagraphs(units), nil
}

package epubtrans

import (
	"bytes"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// CoverImage is the cover picture of a package.
type CoverImage struct {
	// Path is the ZIP-internal path of the image.
	Path      string
	MediaType string
	Data      []byte
}

// Cover locates the cover image. It tries, in order, the ePub 3
// cover-image property, the ePub 2 <meta name="cover"> pointer, an image
// manifest item named like a cover, and the first image of the first spine
// document. Returns ErrNoCover if none applies.
//
// The cover is carried over unchanged by Rebuild; it is exposed so callers
// can keep it next to the extracted text.
func (p *Package) Cover() (CoverImage, error) {
	strategies := []func() *manifestItem{
		p.coverFromManifestProperties,
		p.coverFromMetaCover,
		p.coverFromManifestHeuristic,
		p.coverFromFirstSpine,
	}
	for _, find := range strategies {
		if item := find(); item != nil {
			return p.loadCoverImage(item)
		}
	}
	return CoverImage{}, ErrNoCover
}

// coverFromManifestProperties returns the first manifest item whose
// properties contain "cover-image".
func (p *Package) coverFromManifestProperties() *manifestItem {
	for _, raw := range p.opf.Manifest.Items {
		item, ok := p.manifestByID[strings.TrimSpace(raw.ID)]
		if !ok {
			continue
		}
		if slices.Contains(strings.Fields(item.Properties), "cover-image") {
			return item
		}
	}
	return nil
}

// coverFromMetaCover resolves <meta name="cover" content="ID"/>. A pointer
// to a cover page is followed to the page's first image.
func (p *Package) coverFromMetaCover() *manifestItem {
	for _, m := range p.opf.Metadata.Metas {
		if !strings.EqualFold(m.Name, "cover") || m.Content == "" {
			continue
		}
		item, ok := p.manifestByID[strings.TrimSpace(m.Content)]
		if !ok {
			continue
		}
		if isImageMediaType(item.MediaType) {
			return item
		}
		if img := p.firstImageOf(p.resolveOPFPath(item.Href)); img != nil {
			return img
		}
	}
	return nil
}

// coverFromManifestHeuristic returns the first image item whose id or href
// mentions "cover".
func (p *Package) coverFromManifestHeuristic() *manifestItem {
	for _, raw := range p.opf.Manifest.Items {
		item, ok := p.manifestByID[strings.TrimSpace(raw.ID)]
		if !ok || !isImageMediaType(item.MediaType) {
			continue
		}
		if containsFold(item.ID, "cover") || containsFold(item.Href, "cover") {
			return item
		}
	}
	return nil
}

func (p *Package) coverFromFirstSpine() *manifestItem {
	if len(p.manifest.Items) == 0 {
		return nil
	}
	return p.firstImageOf(p.manifest.Items[0].Path)
}

// firstImageOf returns the manifest item of the first image referenced by
// the document at docPath.
func (p *Package) firstImageOf(docPath string) *manifestItem {
	data, err := p.ReadFile(docPath)
	if err != nil {
		return nil
	}
	imgPath := findFirstImageInHTML(data, docPath)
	if imgPath == "" {
		return nil
	}
	for _, raw := range p.opf.Manifest.Items {
		item, ok := p.manifestByID[strings.TrimSpace(raw.ID)]
		if !ok || !isImageMediaType(item.MediaType) {
			continue
		}
		if strings.EqualFold(p.resolveOPFPath(item.Href), imgPath) {
			return item
		}
	}
	return nil
}

func (p *Package) loadCoverImage(item *manifestItem) (CoverImage, error) {
	imgPath := p.resolveOPFPath(item.Href)
	data, err := p.ReadFile(imgPath)
	if err != nil {
		return CoverImage{}, err
	}
	return CoverImage{Path: imgPath, MediaType: item.MediaType, Data: data}, nil
}

// findFirstImageInHTML returns the ZIP-internal path of the first <img src>
// or SVG <image href> in htmlData, resolved against basePath.
func findFirstImageInHTML(htmlData []byte, basePath string) string {
	z := html.NewTokenizer(bytes.NewReader(htmlData))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := z.TagName()
			if !hasAttr {
				continue
			}
			a := atom.Lookup(tn)
			if a != atom.Img && a != atom.Image {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				k := string(key)
				match := k == "src"
				if a == atom.Image {
					match = k == "href" || k == "xlink:href"
				}
				if match && len(val) > 0 {
					return resolveRelativePath(basePath, string(val))
				}
				if !more {
					break
				}
			}
		}
	}
}

func isImageMediaType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}

// containsFold reports whether s contains substr, case-insensitively.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

package epubtrans

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// tocEntry is one flattened table-of-contents entry.
type tocEntry struct {
	Title string
	Href  string // ZIP-internal path, fragment removed
}

// tocTitles maps content document paths to their first TOC label. ePub 3
// packages prefer the nav document and fall back to the NCX. A missing or
// broken TOC only produces a warning.
func (p *Package) tocTitles() map[string]string {
	var entries []tocEntry
	if strings.HasPrefix(p.opf.Version, "3") {
		entries = p.readNavTOC()
	}
	if entries == nil {
		entries = p.readNCXTOC()
	}

	titles := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Href == "" || e.Title == "" {
			continue
		}
		if _, exists := titles[e.Href]; !exists {
			titles[e.Href] = e.Title
		}
	}
	return titles
}

// readNavTOC finds the manifest item with the "nav" property and parses its
// toc <nav>. Manifest order is used so the choice is deterministic.
func (p *Package) readNavTOC() []tocEntry {
	var navItem *manifestItem
	for _, raw := range p.opf.Manifest.Items {
		for _, prop := range strings.Fields(raw.Properties) {
			if prop == "nav" {
				navItem = p.manifestByID[strings.TrimSpace(raw.ID)]
			}
		}
		if navItem != nil {
			break
		}
	}
	if navItem == nil {
		return nil
	}

	navPath := p.resolveOPFPath(navItem.Href)
	data, err := p.ReadFile(navPath)
	if err != nil {
		p.warnings = append(p.warnings, fmt.Sprintf("failed to read nav document: %v", err))
		return nil
	}

	entries, err := parseNavDocument(data, navPath)
	if err != nil {
		p.warnings = append(p.warnings, fmt.Sprintf("failed to parse nav document: %v", err))
		return nil
	}
	return entries
}

// readNCXTOC parses the NCX named by the spine's toc attribute.
func (p *Package) readNCXTOC() []tocEntry {
	ncxItem, ok := p.manifestByID[strings.TrimSpace(p.opf.Spine.Toc)]
	if !ok {
		return nil
	}

	ncxPath := p.resolveOPFPath(ncxItem.Href)
	data, err := p.ReadFile(ncxPath)
	if err != nil {
		p.warnings = append(p.warnings, fmt.Sprintf("failed to read NCX file: %v", err))
		return nil
	}

	entries, err := parseNCX(data, ncxPath)
	if err != nil {
		p.warnings = append(p.warnings, fmt.Sprintf("failed to parse NCX file: %v", err))
		return nil
	}
	return entries
}

// ncxDocument represents the root <ncx> element of an NCX file.
type ncxDocument struct {
	XMLName xml.Name      `xml:"ncx"`
	Points  []ncxNavPoint `xml:"navMap>navPoint"`
}

// ncxNavPoint represents a <navPoint> element which may contain nested navPoints.
type ncxNavPoint struct {
	Label    string        `xml:"navLabel>text"`
	Src      string        `xml:"content>src,attr"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// parseNCX parses an ePub 2 NCX and returns its entries in document order.
// ncxPath is used to resolve relative hrefs to ZIP root-relative paths.
func parseNCX(data []byte, ncxPath string) ([]tocEntry, error) {
	var doc ncxDocument
	if err := xml.Unmarshal(stripBOM(preprocessHTMLEntities(data)), &doc); err != nil {
		return nil, fmt.Errorf("epubtrans: parse NCX: %w", err)
	}

	entries := []tocEntry{}
	var walk func([]ncxNavPoint)
	walk = func(points []ncxNavPoint) {
		for _, np := range points {
			entries = append(entries, tocEntry{
				Title: strings.TrimSpace(np.Label),
				Href:  resolveRelativePath(ncxPath, hrefWithoutFragment(np.Src)),
			})
			walk(np.Children)
		}
	}
	walk(doc.Points)
	return entries, nil
}

// parseNavDocument parses the toc <nav> of an ePub 3 navigation document.
// basePath is the ZIP-internal path of the nav document.
func parseNavDocument(data []byte, basePath string) ([]tocEntry, error) {
	doc, err := html.Parse(bytes.NewReader(stripBOM(data)))
	if err != nil {
		return nil, fmt.Errorf("epubtrans: parse nav document: %w", err)
	}

	nav := findNav(doc, "toc")
	if nav == nil {
		return nil, nil
	}

	entries := []tocEntry{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			entries = append(entries, tocEntry{
				Title: strings.Join(strings.Fields(nodeTextContent(n)), " "),
				Href:  resolveRelativePath(basePath, hrefWithoutFragment(getAttr(n, "href"))),
			})
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(nav)
	return entries, nil
}

// findNav returns the first <nav> whose epub:type contains typeName.
func findNav(n *html.Node, typeName string) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Nav {
		for _, t := range strings.Fields(getAttr(n, "epub:type")) {
			if t == typeName {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNav(c, typeName); found != nil {
			return found
		}
	}
	return nil
}

// getAttr returns the value of the attribute with the given key on n.
func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// nodeTextContent recursively collects all text content within a node.
func nodeTextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeTextContent(c))
	}
	return sb.String()
}

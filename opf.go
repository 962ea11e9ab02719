package epubtrans

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

const (
	opfNamespace = "http://www.idpf.org/2007/opf"
	dcNamespace  = "http://purl.org/dc/elements/1.1/"
)

// opfPackage represents the root <package> element of an OPF file.
// Manifest and Spine are pointers so that a missing element can be told
// apart from an empty one.
type opfPackage struct {
	XMLName          xml.Name     `xml:"package"`
	Version          string       `xml:"version,attr"`
	UniqueIdentifier string       `xml:"unique-identifier,attr"`
	Metadata         opfMetadata  `xml:"metadata"`
	Manifest         *opfManifest `xml:"manifest"`
	Spine            *opfSpine    `xml:"spine"`
}

// opfMetadata holds the raw metadata elements from the OPF file.
type opfMetadata struct {
	Titles       []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creators     []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Languages    []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifiers  []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Publishers   []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Dates        []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ date"`
	Descriptions []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ description"`
	Subjects     []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ subject"`
	Metas        []opfMeta      `xml:"meta"`
}

// opfDCElement holds a Dublin Core element with its id attribute.
type opfDCElement struct {
	Value string `xml:",chardata"`
	ID    string `xml:"id,attr"`
}

// opfMeta represents a <meta> element in the OPF metadata.
// ePub 2: <meta name="..." content="..."/>
// ePub 3: <meta property="..." refines="...">value</meta>
type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"`
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
	Value    string `xml:",chardata"`
}

// opfManifest wraps the <manifest> element.
type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

// opfManifestItem represents a single <item> in the manifest.
type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// opfSpine wraps the <spine> element.
type opfSpine struct {
	Toc      string            `xml:"toc,attr"`
	ItemRefs []opfSpineItemRef `xml:"itemref"`
}

// opfSpineItemRef represents a single <itemref> in the spine.
type opfSpineItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

// parseOPF parses and validates the package document. Structural problems
// are reported as ErrMalformedManifest.
func parseOPF(data []byte) (*opfPackage, error) {
	data = stripBOM(preprocessHTMLEntities(data))

	var pkg opfPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("%w: parse package document: %v", ErrMalformedManifest, err)
	}

	if pkg.XMLName.Space != opfNamespace {
		return nil, fmt.Errorf("%w: <package> is not in the %s namespace", ErrMalformedManifest, opfNamespace)
	}
	if pkg.Manifest == nil {
		return nil, fmt.Errorf("%w: <manifest> element missing", ErrMalformedManifest)
	}
	if pkg.Spine == nil {
		return nil, fmt.Errorf("%w: <spine> element missing", ErrMalformedManifest)
	}

	if pkg.Version == "" {
		pkg.Version = "2.0"
	}

	return &pkg, nil
}

// buildManifestMap indexes the manifest by item id. Duplicate ids are a
// manifest error because spine references would be ambiguous.
func buildManifestMap(manifest *opfManifest) (map[string]*manifestItem, error) {
	byID := make(map[string]*manifestItem, len(manifest.Items))
	for _, item := range manifest.Items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("%w: duplicate manifest id %q", ErrMalformedManifest, id)
		}
		byID[id] = &manifestItem{
			ID:         id,
			Href:       strings.TrimSpace(item.Href),
			MediaType:  strings.TrimSpace(item.MediaType),
			Properties: item.Properties,
		}
	}
	return byID, nil
}

// buildSpine converts the itemrefs and checks that each one names a
// distinct manifest item. Chapter ids come from the spine, so a repeat
// would give two chapters the same segment keys.
func buildSpine(spine *opfSpine, manifestByID map[string]*manifestItem) ([]spineItem, error) {
	items := make([]spineItem, 0, len(spine.ItemRefs))
	seen := make(map[string]bool, len(spine.ItemRefs))
	for _, ref := range spine.ItemRefs {
		idref := strings.TrimSpace(ref.IDRef)
		if _, ok := manifestByID[idref]; !ok {
			return nil, fmt.Errorf("%w: spine references unknown manifest id %q", ErrMalformedManifest, idref)
		}
		if seen[idref] {
			return nil, fmt.Errorf("%w: spine references manifest id %q more than once", ErrMalformedManifest, idref)
		}
		seen[idref] = true
		items = append(items, spineItem{
			IDRef:  idref,
			Linear: ref.Linear != "no",
		})
	}
	return items, nil
}

// entityNameToNumeric maps lowercase HTML entity names to their XML numeric
// character references. encoding/xml does not recognise HTML named entities,
// so they are converted before parsing OPF and NCX files.
var entityNameToNumeric = map[string][]byte{
	"nbsp": []byte("&#160;"), "mdash": []byte("&#8212;"), "ndash": []byte("&#8211;"),
	"hellip": []byte("&#8230;"),
	"lsquo":  []byte("&#8216;"), "rsquo": []byte("&#8217;"),
	"ldquo": []byte("&#8220;"), "rdquo": []byte("&#8221;"),
	"copy": []byte("&#169;"), "reg": []byte("&#174;"), "trade": []byte("&#8482;"),
	"bull": []byte("&#8226;"), "middot": []byte("&#183;"),
	"eacute": []byte("&#233;"), "egrave": []byte("&#232;"),
	"ecirc": []byte("&#234;"), "euml": []byte("&#235;"),
	"aacute": []byte("&#225;"), "agrave": []byte("&#224;"),
	"acirc": []byte("&#226;"), "auml": []byte("&#228;"),
	"iacute": []byte("&#237;"), "igrave": []byte("&#236;"),
	"icirc": []byte("&#238;"), "iuml": []byte("&#239;"),
	"oacute": []byte("&#243;"), "ograve": []byte("&#242;"),
	"ocirc": []byte("&#244;"), "ouml": []byte("&#246;"),
	"uacute": []byte("&#250;"), "ugrave": []byte("&#249;"),
	"ucirc": []byte("&#251;"), "uuml": []byte("&#252;"),
	"ntilde": []byte("&#241;"), "ccedil": []byte("&#231;"),
	"laquo": []byte("&#171;"), "raquo": []byte("&#187;"),
}

// htmlEntityPattern matches the named entities above, case-insensitively.
var htmlEntityPattern = regexp.MustCompile(
	`(?i)&(nbsp|mdash|ndash|hellip|lsquo|rsquo|ldquo|rdquo|copy|reg|trade|bull|middot|` +
		`eacute|egrave|ecirc|euml|aacute|agrave|acirc|auml|iacute|igrave|icirc|iuml|` +
		`oacute|ograve|ocirc|ouml|uacute|ugrave|ucirc|uuml|ntilde|ccedil|laquo|raquo);`)

// preprocessHTMLEntities replaces common HTML named entities with numeric
// character references so that encoding/xml can parse the data.
func preprocessHTMLEntities(data []byte) []byte {
	return htmlEntityPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := strings.ToLower(string(match[1 : len(match)-1]))
		if replacement, ok := entityNameToNumeric[name]; ok {
			return replacement
		}
		return match
	})
}

package epubtrans

import "github.com/simp-lee/epubtrans/segment"

// ParagraphSeparator joins ParagraphUnits back into a document's plain text.
const ParagraphSeparator = segment.ParagraphSeparator

// PackageManifest is the reading-order view of a package document.
type PackageManifest struct {
	// Version is the ePub specification version (e.g., "2.0", "3.0").
	Version string

	// PackagePath is the ZIP-internal path of the package (OPF) document.
	PackagePath string

	// Items lists the spine entries in reading order, resolved against the manifest.
	Items []ContentRef

	// Metadata holds the Dublin Core fields of the package.
	Metadata Metadata
}

// Metadata holds the flat Dublin Core fields extracted from the package document.
// Optional fields are empty when the package does not declare them.
type Metadata struct {
	// Title is the primary dc:title (first by display-seq when refined).
	Title string

	// Titles contains all dc:title values in display order.
	Titles []string

	// Authors contains the dc:creator display names in document order.
	Authors []string

	// Language is the first dc:language value (BCP 47 tag).
	Language string

	// Identifier is the first dc:identifier value.
	Identifier string

	Publisher   string
	Description string
	Date        string
	Subjects    []string
}

// ContentRef is a spine entry. Its bytes are read from the archive on demand.
type ContentRef struct {
	// ID is the manifest item id; it doubles as the chapter id of segment keys.
	ID string

	// Path is the ZIP-internal path of the content document.
	Path string

	// MediaType is the manifest media-type of the document.
	MediaType string

	// Linear reports whether the itemref is part of the linear reading order.
	Linear bool

	// Title is the table-of-contents label for this document, if any.
	Title string

	pkg contentReader
}

// contentReader is implemented by Package for lazy content loading.
type contentReader interface {
	readFile(path string) ([]byte, error)
}

// ParagraphUnit is a maximal run of inline text bounded by block-level elements.
type ParagraphUnit struct {
	Text  string
	Order int
}

// spineItem represents an entry in the OPF <spine> element.
type spineItem struct {
	IDRef  string
	Linear bool
}

// manifestItem represents an entry in the OPF <manifest> element.
type manifestItem struct {
	// ID is the unique identifier of this manifest item.
	ID string

	// Href is the file path relative to the OPF file location.
	Href string

	// MediaType is the MIME type of the resource.
	MediaType string

	// Properties contains space-separated property values (ePub 3, e.g., "nav").
	Properties string
}

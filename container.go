package epubtrans

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// containerXML models the META-INF/container.xml pointer file.
type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

// rootFile represents a single <rootfile> element inside container.xml.
type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

const (
	// containerPath is the well-known location of container.xml in an ePub archive.
	containerPath = "META-INF/container.xml"

	packageMediaType = "application/oebps-package+xml"
)

// parseContainer returns the package document path declared by
// META-INF/container.xml. The lookup is case-insensitive. A missing or
// unusable pointer file is reported as ErrMalformedPackage; the archive is
// not scanned for stray .opf files because such a package is not a valid
// ePub and its reading order cannot be trusted.
func parseContainer(arc *archive) (string, error) {
	f := arc.lookup(containerPath)
	if f == nil {
		return "", fmt.Errorf("%w: %s not found", ErrMalformedPackage, containerPath)
	}

	data, err := readEntry(f)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrMalformedPackage, containerPath, err)
	}

	var c containerXML
	if err := xml.Unmarshal(stripBOM(data), &c); err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", ErrMalformedPackage, containerPath, err)
	}

	var fallbackPath string
	for _, rf := range c.RootFiles {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), packageMediaType) {
			return fullPath, nil
		}
		if fallbackPath == "" {
			fallbackPath = fullPath
		}
	}

	if fallbackPath == "" {
		return "", fmt.Errorf("%w: %s has no rootfile with a full-path", ErrMalformedPackage, containerPath)
	}
	return fallbackPath, nil
}

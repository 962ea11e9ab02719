package epubtrans

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
)

// expectedMimetype is the required content of the "mimetype" file in a valid ePub.
const expectedMimetype = "application/epub+zip"

// Package is an opened ePub container. Content documents are read from the
// archive on demand; nothing beyond the package document is loaded up front.
//
// A Package is not safe for concurrent use by multiple goroutines.
type Package struct {
	arc          *archive
	closer       io.Closer // non-nil only when created via Open()
	opfPath      string
	opf          *opfPackage
	manifestByID map[string]*manifestItem
	spine        []spineItem
	manifest     PackageManifest
	warnings     []string
}

// Open opens an ePub file at the given path.
// The caller must call Close when done reading from the package.
func Open(path string) (*Package, error) {
	zrc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrMalformedPackage, path, err)
	}

	p, err := initPackage(&zrc.Reader, zrc)
	if err != nil {
		zrc.Close()
		return nil, err
	}
	return p, nil
}

// NewReader creates a Package from an io.ReaderAt with the given size.
// The caller is responsible for the lifetime of r.
func NewReader(r io.ReaderAt, size int64) (*Package, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: open zip: %v", ErrMalformedPackage, err)
	}
	return initPackage(zr, nil)
}

// initPackage locates and validates the package document and resolves the
// spine into the reading-order manifest.
func initPackage(zr *zip.Reader, closer io.Closer) (*Package, error) {
	p := &Package{
		arc:    newArchive(zr),
		closer: closer,
	}
	p.validateMimetype()

	opfPath, err := parseContainer(p.arc)
	if err != nil {
		return nil, err
	}
	p.opfPath = opfPath

	obfuscated, err := checkDRM(p.arc)
	if err != nil {
		return nil, err
	}
	if len(obfuscated) > 0 {
		p.warnings = append(p.warnings, fmt.Sprintf("font obfuscation detected on %d resources", len(obfuscated)))
	}

	opfFile := p.arc.lookup(opfPath)
	if opfFile == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingPackageDocument, opfPath)
	}
	opfData, err := readEntry(opfFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrMissingPackageDocument, opfPath, err)
	}

	pkg, err := parseOPF(opfData)
	if err != nil {
		return nil, err
	}
	p.opf = pkg

	if p.manifestByID, err = buildManifestMap(pkg.Manifest); err != nil {
		return nil, err
	}
	if p.spine, err = buildSpine(pkg.Spine, p.manifestByID); err != nil {
		return nil, err
	}

	items, err := p.resolveSpine()
	if err != nil {
		return nil, err
	}

	titles := p.tocTitles()
	for i := range items {
		items[i].Title = titles[items[i].Path]
	}

	p.manifest = PackageManifest{
		Version:     pkg.Version,
		PackagePath: opfPath,
		Items:       items,
		Metadata:    extractMetadata(pkg),
	}
	return p, nil
}

// resolveSpine turns spine itemrefs into ContentRefs with ZIP-internal paths.
// A spine entry whose file is not in the archive is a manifest error.
func (p *Package) resolveSpine() ([]ContentRef, error) {
	items := make([]ContentRef, 0, len(p.spine))
	for _, si := range p.spine {
		mi := p.manifestByID[si.IDRef]
		path := p.resolveOPFPath(mi.Href)
		if path == "" || p.arc.lookup(path) == nil {
			return nil, fmt.Errorf("%w: spine item %q points to missing file %q", ErrMalformedManifest, mi.ID, mi.Href)
		}
		items = append(items, ContentRef{
			ID:        mi.ID,
			Path:      path,
			MediaType: mi.MediaType,
			Linear:    si.Linear,
			pkg:       p,
		})
	}
	return items, nil
}

// validateMimetype checks that the first ZIP entry is named "mimetype" and
// contains "application/epub+zip". Deviations are recorded as warnings.
func (p *Package) validateMimetype() {
	entries := p.arc.entries()
	if len(entries) == 0 {
		p.warnings = append(p.warnings, "empty ZIP archive; mimetype entry missing")
		return
	}

	first := entries[0]
	if first.Name != "mimetype" {
		p.warnings = append(p.warnings, "first ZIP entry is not \"mimetype\"")
		return
	}

	data, err := readEntry(first)
	if err != nil {
		p.warnings = append(p.warnings, fmt.Sprintf("cannot read mimetype entry: %v", err))
		return
	}
	if strings.TrimSpace(string(data)) != expectedMimetype {
		p.warnings = append(p.warnings, fmt.Sprintf("unexpected mimetype: %q", string(data)))
	}
}

// Close releases resources held by the Package. When the Package was created
// via Open, Close closes the underlying file. Close is idempotent.
func (p *Package) Close() error {
	if p.closer != nil {
		err := p.closer.Close()
		p.closer = nil
		return err
	}
	return nil
}

// Manifest returns the reading-order manifest and metadata.
func (p *Package) Manifest() PackageManifest {
	m := p.manifest
	m.Items = append([]ContentRef(nil), p.manifest.Items...)
	m.Metadata = copyMetadata(p.manifest.Metadata)
	return m
}

// Metadata returns the extracted Dublin Core metadata.
func (p *Package) Metadata() Metadata {
	return copyMetadata(p.manifest.Metadata)
}

// Warnings returns the non-fatal problems noticed while opening the package.
func (p *Package) Warnings() []string {
	return append([]string(nil), p.warnings...)
}

// ReadFile reads a file from the ePub archive by its ZIP-internal path.
// The lookup is case-insensitive as a fallback.
func (p *Package) ReadFile(name string) ([]byte, error) {
	return p.arc.read(name)
}

// readFile implements contentReader.
func (p *Package) readFile(name string) ([]byte, error) {
	return p.ReadFile(name)
}

// resolveOPFPath resolves a manifest href relative to the package document.
func (p *Package) resolveOPFPath(href string) string {
	if href == "" {
		return ""
	}
	return resolveRelativePath(p.opfPath, hrefWithoutFragment(href))
}

func copyMetadata(in Metadata) Metadata {
	out := in
	out.Titles = append([]string(nil), in.Titles...)
	out.Authors = append([]string(nil), in.Authors...)
	out.Subjects = append([]string(nil), in.Subjects...)
	return out
}

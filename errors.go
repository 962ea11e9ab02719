package epubtrans

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the epubtrans package.
var (
	// ErrMalformedPackage indicates the archive cannot be opened as a ZIP
	// container or lacks a usable META-INF/container.xml pointer file.
	ErrMalformedPackage = errors.New("epubtrans: malformed package")

	// ErrMissingPackageDocument indicates the package document named by
	// container.xml does not exist in the archive.
	ErrMissingPackageDocument = errors.New("epubtrans: missing package document")

	// ErrMalformedManifest indicates the package document is missing
	// required elements or its spine references unknown manifest items.
	ErrMalformedManifest = errors.New("epubtrans: malformed manifest")

	// ErrUnparsableMarkup indicates a content document is structurally
	// broken beyond recovery (for example an unterminated <script>).
	ErrUnparsableMarkup = errors.New("epubtrans: unparsable markup")

	// ErrReassembly indicates the output package could not be produced.
	ErrReassembly = errors.New("epubtrans: reassembly failed")

	// ErrStructuralDrift indicates a content document no longer yields the
	// paragraph count recorded at extraction time.
	ErrStructuralDrift = errors.New("epubtrans: structural drift")

	// ErrDRMProtected indicates the ePub file is protected by DRM
	// (e.g., Adobe ADEPT, Apple FairPlay, Readium LCP) and cannot be read.
	ErrDRMProtected = errors.New("epubtrans: file is DRM protected")

	// ErrInvalidChapter indicates a ContentRef handle is not bound to a Package.
	ErrInvalidChapter = errors.New("epubtrans: invalid chapter handle")

	// ErrFileNotFound indicates the requested file does not exist
	// in the ePub archive.
	ErrFileNotFound = errors.New("epubtrans: file not found in archive")

	// ErrNoCover indicates no cover image could be found.
	ErrNoCover = errors.New("epubtrans: no cover image found")
)

// DocumentError attaches the manifest id and archive path of the offending
// content document to an underlying error.
type DocumentError struct {
	ID   string
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("epubtrans: document %s (%s): %v", e.ID, e.Path, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

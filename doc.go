// Package epubtrans extracts the text of ePub 2 and ePub 3 packages in
// bounded segments and writes a new package once the segments have been
// transformed, typically by a translation service.
//
// # Opening a package
//
// Use [Open] to open a file by path, or [NewReader] to read from an [io.ReaderAt].
// Malformed containers fail with [ErrMalformedPackage], [ErrMissingPackageDocument]
// or [ErrMalformedManifest]; DRM-protected files with [ErrDRMProtected]:
//
//	pkg, err := epubtrans.Open("book.epub")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pkg.Close()
//
// [Package.Manifest] returns the spine in reading order together with the
// Dublin Core metadata. Content documents are read lazily.
//
// # Paragraphs
//
// [ExtractParagraphs] turns an XHTML document into [ParagraphUnit] values.
// Block-level elements separate paragraphs; script, style and head content is
// dropped. [ContentRef.Paragraphs] does the same for a spine entry:
//
//	chapters, _ := pkg.Chapters(epubtrans.ChapterOptions{SkipLicense: true})
//	for _, ch := range chapters {
//	    units, err := ch.Paragraphs()
//	    ...
//	}
//
// # Segments
//
// [Derive] segments every chapter with a [segment.Segmenter] and returns a
// [segment.Index]. Each segment is identified by a [segment.Key] of chapter
// id and 1-based part index.
//
// # Rebuilding
//
// [Rebuild] takes the original package, the index and a possibly partial
// map of transformed segment text, and writes a new package. Markup outside
// the changed paragraphs is copied byte for byte; only the metadata block of
// the package document is edited. Segments without transformed text keep the
// original and are listed in the [RebuildReport].
package epubtrans

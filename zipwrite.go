package epubtrans

import (
	"archive/zip"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
)

// writePackage writes an ePub container to w. The mimetype entry comes
// first and is stored uncompressed; the remaining entries of src follow in
// their original order, with the bytes from replace substituted by entry
// name. Deflated entries are recompressed.
func writePackage(w io.Writer, src []*zip.File, replace map[string][]byte) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	modified := time.Now()
	for _, f := range src {
		if f.Name == "mimetype" {
			modified = f.Modified
			break
		}
	}

	mw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     "mimetype",
		Method:   zip.Store,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("write mimetype: %w", err)
	}
	if _, err := io.WriteString(mw, expectedMimetype); err != nil {
		return fmt.Errorf("write mimetype: %w", err)
	}

	for _, f := range src {
		if f.Name == "mimetype" {
			continue
		}
		if err := copyEntry(zw, f, replace); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

// copyEntry writes one source entry to zw.
func copyEntry(zw *zip.Writer, f *zip.File, replace map[string][]byte) error {
	hdr := &zip.FileHeader{
		Name:     f.Name,
		Comment:  f.Comment,
		Method:   zip.Deflate,
		Modified: f.Modified,
	}
	if f.Method == zip.Store {
		hdr.Method = zip.Store
	}
	hdr.SetMode(f.Mode())

	if f.FileInfo().IsDir() {
		hdr.Method = zip.Store
		if _, err := zw.CreateHeader(hdr); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
		return nil
	}

	data, ok := replace[f.Name]
	if !ok {
		var err error
		if data, err = readEntry(f); err != nil {
			return err
		}
	}

	ew, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("write %s: %w", f.Name, err)
	}
	if _, err := ew.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", f.Name, err)
	}
	return nil
}

package epubtrans

import (
	"archive/zip"
	"bytes"
	"io"
	"reflect"
	"testing"
	"time"
)

func TestWritePackage_MimetypeFirstAndStored(t *testing.T) {
	// Sorted order puts META-INF before mimetype.
	src := buildTestZip(t, map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": validContainerXML,
		"OEBPS/a.xhtml":          "<p>a</p>",
		"OEBPS/b.xhtml":          "<p>b</p>",
	})

	var buf bytes.Buffer
	err := writePackage(&buf, src.File, map[string][]byte{"OEBPS/b.xhtml": []byte("<p>B</p>")})
	if err != nil {
		t.Fatalf("writePackage() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	first := zr.File[0]
	if first.Name != "mimetype" || first.Method != zip.Store {
		t.Fatalf("first entry = %s (method %d), want stored mimetype", first.Name, first.Method)
	}

	files, order := readZipEntries(t, buf.Bytes())
	if want := []string{"mimetype", "META-INF/container.xml", "OEBPS/a.xhtml", "OEBPS/b.xhtml"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if files["mimetype"] != expectedMimetype || files["OEBPS/a.xhtml"] != "<p>a</p>" || files["OEBPS/b.xhtml"] != "<p>B</p>" {
		t.Errorf("contents = %v", files)
	}
	for _, f := range zr.File[1:] {
		if f.Method != zip.Deflate {
			t.Errorf("%s method = %d, want deflate", f.Name, f.Method)
		}
	}
}

func TestWritePackage_KeepsStoredEntriesAndDirectories(t *testing.T) {
	modified := time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)

	var in bytes.Buffer
	zw := zip.NewWriter(&in)
	add := func(name string, method uint16, body string) {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: modified})
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(w, body)
	}
	add("mimetype", zip.Store, "application/epub+zip")
	add("OEBPS/", zip.Store, "")
	add("OEBPS/img.png", zip.Store, "\x89PNG")
	add("OEBPS/text.xhtml", zip.Deflate, "<p>text</p>")
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	src, err := zip.NewReader(bytes.NewReader(in.Bytes()), int64(in.Len()))
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := writePackage(&out, src.File, nil); err != nil {
		t.Fatalf("writePackage() error = %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(out.Bytes()), int64(out.Len()))
	if err != nil {
		t.Fatal(err)
	}

	methods := make(map[string]uint16)
	for _, f := range zr.File {
		methods[f.Name] = f.Method
		if !f.Modified.Equal(modified) {
			t.Errorf("%s modified = %v, want %v", f.Name, f.Modified, modified)
		}
	}
	want := map[string]uint16{
		"mimetype":         zip.Store,
		"OEBPS/":           zip.Store,
		"OEBPS/img.png":    zip.Store,
		"OEBPS/text.xhtml": zip.Deflate,
	}
	if !reflect.DeepEqual(methods, want) {
		t.Errorf("methods = %v, want %v", methods, want)
	}
}

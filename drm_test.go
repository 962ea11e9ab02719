package epubtrans

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// encryptionXML renders META-INF/encryption.xml with one EncryptedData per
// algorithm/URI pair.
func encryptionXML(pairs ...[2]string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<encryption xmlns="urn:oasis:names:tc:opendocument:xmlns:container"
            xmlns:enc="http://www.w3.org/2001/04/xmlenc#">`)
	for _, p := range pairs {
		fmt.Fprintf(&sb, `
  <enc:EncryptedData>
    <enc:EncryptionMethod Algorithm="%s"/>
    <enc:CipherData><enc:CipherReference URI="%s"/></enc:CipherData>
  </enc:EncryptedData>`, p[0], p[1])
	}
	sb.WriteString("\n</encryption>")
	return sb.String()
}

func TestCheckDRM(t *testing.T) {
	const (
		idpfFont  = "http://www.idpf.org/2008/embedding"
		adobeFont = "http://ns.adobe.com/pdf/enc#RC"
		aes       = "http://www.w3.org/2001/04/xmlenc#aes128-cbc"
	)

	tests := []struct {
		name           string
		files          map[string]string
		wantObfuscated int
		wantErr        error
	}{
		{
			name:  "no encryption.xml",
			files: map[string]string{"mimetype": "application/epub+zip"},
		},
		{
			name: "font obfuscation only",
			files: map[string]string{
				"META-INF/encryption.xml": encryptionXML(
					[2]string{idpfFont, "OEBPS/fonts/a.otf"},
					[2]string{adobeFont, "OEBPS/fonts/b.ttf"},
				),
			},
			wantObfuscated: 2,
		},
		{
			name: "case-insensitive path",
			files: map[string]string{
				"meta-inf/Encryption.xml": encryptionXML([2]string{idpfFont, "OEBPS/fonts/a.otf"}),
			},
			wantObfuscated: 1,
		},
		{
			name: "encrypted content document",
			files: map[string]string{
				"META-INF/encryption.xml": encryptionXML(
					[2]string{idpfFont, "OEBPS/fonts/a.otf"},
					[2]string{aes, "OEBPS/chapter01.xhtml"},
				),
			},
			wantErr: ErrDRMProtected,
		},
		{
			name:    "Apple FairPlay sinf",
			files:   map[string]string{"META-INF/sinf.xml": `<sinf/>`},
			wantErr: ErrDRMProtected,
		},
		{
			name:    "unparsable descriptor",
			files:   map[string]string{"META-INF/encryption.xml": `<encryption><EncryptedData>`},
			wantErr: ErrDRMProtected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obfuscated, err := checkDRM(newArchive(buildTestZip(t, tt.files)))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("checkDRM() error = %v, want %v", err, tt.wantErr)
			}
			if len(obfuscated) != tt.wantObfuscated {
				t.Errorf("checkDRM() obfuscated = %v, want %d entries", obfuscated, tt.wantObfuscated)
			}
		})
	}
}

func TestOpen_DRMProtected(t *testing.T) {
	chapters, spine := threeChapters()
	entries := append(testBook(chapters, spine), zipEntry{"META-INF/sinf.xml", "<sinf/>"})

	_, err := Open(buildTestEPubFile(t, entries))
	if !errors.Is(err, ErrDRMProtected) {
		t.Fatalf("Open() error = %v, want ErrDRMProtected", err)
	}
}

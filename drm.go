package epubtrans

import (
	"encoding/xml"
	"strings"
)

const (
	// encryptionFilePath is the standard path for the encryption descriptor.
	encryptionFilePath = "META-INF/encryption.xml"

	// sinfFilePath indicates Apple FairPlay DRM.
	sinfFilePath = "META-INF/sinf.xml"
)

// Font obfuscation algorithm URIs. These do not constitute DRM and leave
// content documents readable.
var fontObfuscationAlgorithms = map[string]bool{
	"http://www.idpf.org/2008/embedding": true,
	"http://ns.adobe.com/pdf/enc#RC":     true,
}

type xmlEncryption struct {
	XMLName       xml.Name           `xml:"encryption"`
	EncryptedData []xmlEncryptedData `xml:"EncryptedData"`
}

type xmlEncryptedData struct {
	EncryptionMethod struct {
		Algorithm string `xml:"Algorithm,attr"`
	} `xml:"EncryptionMethod"`
	CipherReference struct {
		URI string `xml:"URI,attr"`
	} `xml:"CipherData>CipherReference"`
}

// checkDRM reports whether the archive carries encrypted resources other
// than obfuscated fonts. It returns the font-obfuscated entry names so the
// caller can warn about them, or ErrDRMProtected.
func checkDRM(arc *archive) ([]string, error) {
	if arc.lookup(sinfFilePath) != nil {
		return nil, ErrDRMProtected
	}

	f := arc.lookup(encryptionFilePath)
	if f == nil {
		return nil, nil
	}

	data, err := readEntry(f)
	if err != nil {
		return nil, err
	}

	var enc xmlEncryption
	if err := xml.Unmarshal(stripBOM(data), &enc); err != nil {
		// An unreadable descriptor is treated as potential DRM.
		return nil, ErrDRMProtected
	}

	var obfuscated []string
	for _, ed := range enc.EncryptedData {
		if !fontObfuscationAlgorithms[strings.TrimSpace(ed.EncryptionMethod.Algorithm)] {
			return nil, ErrDRMProtected
		}
		obfuscated = append(obfuscated, ed.CipherReference.URI)
	}
	return obfuscated, nil
}
